// Package storage persists bundles, per-relay submission outcomes, and
// daily spending snapshots in SQLite, so restarts do not lose the
// bundle history the lookup endpoint serves.
package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	"github.com/swapnilraj/atomic-bundler/internal/bundlerrors"
)

// Store wraps a SQLite connection pool. A single *sql.DB is safe for
// concurrent use; SQLite itself serializes writers.
type Store struct {
	db *sql.DB
}

// Open creates (if absent) and migrates the SQLite database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "open sqlite database", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: one writer at a time avoids SQLITE_BUSY

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	const schema = `
CREATE TABLE IF NOT EXISTS bundles (
	id               TEXT PRIMARY KEY,
	tx1_hash         TEXT NOT NULL,
	tx2_hash         TEXT,
	signer_address   TEXT NOT NULL,
	payment_amount_wei TEXT NOT NULL,
	formula          TEXT NOT NULL,
	target_block     INTEGER,
	status           TEXT NOT NULL,
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relay_submissions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	bundle_id   TEXT NOT NULL REFERENCES bundles(id),
	relay_name  TEXT NOT NULL,
	accepted    INTEGER NOT NULL,
	bundle_hash TEXT,
	error       TEXT,
	submitted_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_relay_submissions_bundle ON relay_submissions(bundle_id);

CREATE TABLE IF NOT EXISTS daily_spending (
	date          TEXT PRIMARY KEY,
	total_wei     TEXT NOT NULL,
	bundle_count  INTEGER NOT NULL
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return bundlerrors.Wrap(bundlerrors.KindInternal, "run storage migrations", err)
	}
	return nil
}

// Bundle is the persisted record of one submission attempt.
type Bundle struct {
	ID               string
	Tx1Hash          string
	Tx2Hash          string
	SignerAddress    string
	PaymentAmountWei string
	Formula          string
	TargetBlock      *uint64
	Status           string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// RelaySubmission is the persisted per-relay outcome of one bundle.
type RelaySubmission struct {
	BundleID    string
	RelayName   string
	Accepted    bool
	BundleHash  string
	Error       string
	SubmittedAt time.Time
}

// InsertBundle records a new bundle row.
func (s *Store) InsertBundle(ctx context.Context, b Bundle) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bundles (id, tx1_hash, tx2_hash, signer_address, payment_amount_wei, formula, target_block, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.Tx1Hash, b.Tx2Hash, b.SignerAddress, b.PaymentAmountWei, b.Formula,
		nullableUint64(b.TargetBlock), b.Status, b.CreatedAt.UTC().Format(time.RFC3339Nano), b.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return bundlerrors.Wrap(bundlerrors.KindInternal, "insert bundle", err)
	}
	return nil
}

// UpdateBundleStatus updates a bundle's status and updated_at timestamp.
func (s *Store) UpdateBundleStatus(ctx context.Context, id, status string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bundles SET status = ?, updated_at = ? WHERE id = ?`,
		status, updatedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return bundlerrors.Wrap(bundlerrors.KindInternal, "update bundle status", err)
	}
	return nil
}

// InsertRelaySubmission records one relay's outcome for a bundle.
func (s *Store) InsertRelaySubmission(ctx context.Context, sub RelaySubmission) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relay_submissions (bundle_id, relay_name, accepted, bundle_hash, error, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sub.BundleID, sub.RelayName, boolToInt(sub.Accepted), sub.BundleHash, sub.Error, sub.SubmittedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return bundlerrors.Wrap(bundlerrors.KindInternal, "insert relay submission", err)
	}
	return nil
}

// GetBundle fetches a bundle by id, or (nil, nil) if it does not exist.
func (s *Store) GetBundle(ctx context.Context, id string) (*Bundle, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tx1_hash, tx2_hash, signer_address, payment_amount_wei, formula, target_block, status, created_at, updated_at
		FROM bundles WHERE id = ?`, id)

	var b Bundle
	var tx2Hash sql.NullString
	var targetBlock sql.NullInt64
	var createdAt, updatedAt string
	err := row.Scan(&b.ID, &b.Tx1Hash, &tx2Hash, &b.SignerAddress, &b.PaymentAmountWei, &b.Formula, &targetBlock, &b.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "query bundle", err)
	}

	b.Tx2Hash = tx2Hash.String
	if targetBlock.Valid {
		v := uint64(targetBlock.Int64)
		b.TargetBlock = &v
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &b, nil
}

// ListRelaySubmissions fetches all relay outcomes recorded for a bundle,
// ordered by submission time.
func (s *Store) ListRelaySubmissions(ctx context.Context, bundleID string) ([]RelaySubmission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bundle_id, relay_name, accepted, bundle_hash, error, submitted_at
		FROM relay_submissions WHERE bundle_id = ? ORDER BY submitted_at ASC`, bundleID)
	if err != nil {
		return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "query relay submissions", err)
	}
	defer rows.Close()

	var out []RelaySubmission
	for rows.Next() {
		var sub RelaySubmission
		var accepted int
		var bundleHash, errMsg sql.NullString
		var submittedAt string
		if err := rows.Scan(&sub.BundleID, &sub.RelayName, &accepted, &bundleHash, &errMsg, &submittedAt); err != nil {
			return nil, bundlerrors.Wrap(bundlerrors.KindInternal, "scan relay submission", err)
		}
		sub.Accepted = accepted != 0
		sub.BundleHash = bundleHash.String
		sub.Error = errMsg.String
		sub.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		out = append(out, sub)
	}
	return out, rows.Err()
}

// UpsertDailySpending writes one day's spending record (date, total,
// bundle count) to the daily_spending table. Nothing reads this table
// back: the policy gate's in-memory counter starts at zero on every
// process start.
func (s *Store) UpsertDailySpending(ctx context.Context, date, totalWei string, bundleCount uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_spending (date, total_wei, bundle_count) VALUES (?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET total_wei = excluded.total_wei, bundle_count = excluded.bundle_count`,
		date, totalWei, bundleCount)
	if err != nil {
		return bundlerrors.Wrap(bundlerrors.KindInternal, "upsert daily spending", err)
	}
	return nil
}

// DeleteBundlesOlderThan removes bundle rows (and their submissions)
// whose created_at precedes cutoff, used by the background scheduler
// to bound table growth.
func (s *Store) DeleteBundlesOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	cutoffStr := cutoff.UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(ctx, `DELETE FROM relay_submissions WHERE bundle_id IN (SELECT id FROM bundles WHERE created_at < ?)`, cutoffStr)
	if err != nil {
		return 0, bundlerrors.Wrap(bundlerrors.KindInternal, "delete stale relay submissions", err)
	}
	res, err = s.db.ExecContext(ctx, `DELETE FROM bundles WHERE created_at < ?`, cutoffStr)
	if err != nil {
		return 0, bundlerrors.Wrap(bundlerrors.KindInternal, "delete stale bundles", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func nullableUint64(v *uint64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
