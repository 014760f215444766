package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInsertAndGetBundle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	err := s.InsertBundle(ctx, Bundle{
		ID:               "bundle-1",
		Tx1Hash:          "0xaaa",
		Tx2Hash:          "0xbbb",
		SignerAddress:    "0xsigner",
		PaymentAmountWei: "1000",
		Formula:          "flat",
		Status:           "submitted",
		CreatedAt:        now,
		UpdatedAt:        now,
	})
	require.NoError(t, err)

	got, err := s.GetBundle(ctx, "bundle-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "0xaaa", got.Tx1Hash)
	require.Equal(t, "submitted", got.Status)
}

func TestGetBundleMissingReturnsNilNil(t *testing.T) {
	s := openTestStore(t)
	got, err := s.GetBundle(context.Background(), "nonexistent")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestInsertAndListRelaySubmissions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.InsertBundle(ctx, Bundle{
		ID: "bundle-2", Tx1Hash: "0x1", SignerAddress: "0xs", PaymentAmountWei: "1",
		Formula: "flat", Status: "submitted", CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, s.InsertRelaySubmission(ctx, RelaySubmission{
		BundleID: "bundle-2", RelayName: "flashbots", Accepted: true, BundleHash: "0xhash", SubmittedAt: now,
	}))
	require.NoError(t, s.InsertRelaySubmission(ctx, RelaySubmission{
		BundleID: "bundle-2", RelayName: "titan", Accepted: false, Error: "timeout", SubmittedAt: now,
	}))

	subs, err := s.ListRelaySubmissions(ctx, "bundle-2")
	require.NoError(t, err)
	require.Len(t, subs, 2)
}

func TestDeleteBundlesOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	old := time.Now().UTC().Add(-48 * time.Hour)

	require.NoError(t, s.InsertBundle(ctx, Bundle{
		ID: "old-bundle", Tx1Hash: "0x1", SignerAddress: "0xs", PaymentAmountWei: "1",
		Formula: "flat", Status: "submitted", CreatedAt: old, UpdatedAt: old,
	}))

	n, err := s.DeleteBundlesOlderThan(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, err := s.GetBundle(ctx, "old-bundle")
	require.NoError(t, err)
	require.Nil(t, got)
}
