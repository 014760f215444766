package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
	"github.com/swapnilraj/atomic-bundler/internal/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(config.BuilderConfig{
		Name:           "test-relay",
		RelayURL:       server.URL,
		PaymentAddress: "0x0000000000000000000000000000000000dEaD",
		TimeoutSeconds: 5,
	})
}

func respond(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	_, err := w.Write([]byte(body))
	require.NoError(t, err)
}

func TestSubmitBundleAcceptsBareStringResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `{"jsonrpc":"2.0","id":1,"result":"0xabc123"}`)
	})
	hash, err := c.SubmitBundle(context.Background(), []string{"0xaa", "0xbb"}, nil)
	require.NoError(t, err)
	require.Equal(t, "0xabc123", hash)
}

func TestSubmitBundleAcceptsObjectResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `{"jsonrpc":"2.0","id":1,"result":{"bundleHash":"0xdef456"}}`)
	})
	hash, err := c.SubmitBundle(context.Background(), []string{"0xaa", "0xbb"}, nil)
	require.NoError(t, err)
	require.Equal(t, "0xdef456", hash)
}

func TestSubmitBundleAcceptsBareBooleanResult(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `{"jsonrpc":"2.0","id":1,"result":true}`)
	})
	hash, err := c.SubmitBundle(context.Background(), []string{"0xaa", "0xbb"}, nil)
	require.NoError(t, err)
	require.Empty(t, hash)
}

func TestSubmitBundleSurfacesRPCError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"bundle too old"}}`)
	})
	_, err := c.SubmitBundle(context.Background(), []string{"0xaa", "0xbb"}, nil)
	require.Error(t, err)
	be, ok := bundlerrors.As(err)
	require.True(t, ok)
	require.Equal(t, bundlerrors.KindRelayBundleRejected, be.Kind)
}

func TestSubmitBundleOmitsBlockNumberWhenTargetNil(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var decoded rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&decoded))
		raw, err := json.Marshal(decoded.Params[0])
		require.NoError(t, err)
		require.NotContains(t, string(raw), "blockNumber")
		respond(t, w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	})
	_, err := c.SubmitBundle(context.Background(), []string{"0xaa"}, nil)
	require.NoError(t, err)
}

func TestSubmitBundleEncodesBlockNumberAsHex(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var decoded rpcRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&decoded))
		raw, err := json.Marshal(decoded.Params[0])
		require.NoError(t, err)
		require.Contains(t, string(raw), `"blockNumber":"0x2a"`)
		respond(t, w, `{"jsonrpc":"2.0","id":1,"result":"0x1"}`)
	})
	target := uint64(42)
	_, err := c.SubmitBundle(context.Background(), []string{"0xaa"}, &target)
	require.NoError(t, err)
}

func TestHealthCheckSucceeds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(t, w, `{"jsonrpc":"2.0","id":1,"result":"0x10"}`)
	})
	_, err := c.HealthCheck(context.Background())
	require.NoError(t, err)
}

func TestHealthCheckReportsHTTPFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	_, err := c.HealthCheck(context.Background())
	require.Error(t, err)
}
