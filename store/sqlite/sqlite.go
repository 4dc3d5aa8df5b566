/*
Package sqlite provides a SQLite-backed implementation of coins.Store.

TABLES:
  coins:    Single row (id = 1) holding the balance and the last credit time
  coupons:  Append-only redemption log

DURABILITY:
  Every write is a single statement in autocommit mode, so it is on disk
  (WAL) by the time the call returns. The Ledger relies on this: it treats a
  nil error from SaveCoins as "persisted".

CONCURRENCY:
  The pool is capped at one connection: the coin ledger is a single-process,
  single-writer store, and ":memory:" databases are per-connection. The
  Ledger already serializes calls; the mutex here keeps the Store safe when
  used directly.

TIMESTAMPS:
  Stored as fixed-width RFC 3339 with nanoseconds in UTC, so text ordering
  matches time ordering. A NULL last_update means no coin was ever credited.

USAGE:
  store, err := sqlite.New("./data/coins.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  mgr, err := coins.NewManager(ctx, store, coins.Options{})

SEE ALSO:
  - coins/store.go: Interface definition
  - coins/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/coin-rewards/coins"
)

// timeLayout is fixed-width so that ORDER BY on the text column is
// chronological.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ErrDuplicateRecord is returned when a coupon record ID is reused.
var ErrDuplicateRecord = errors.New("duplicate coupon record")

// Store implements coins.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens (or creates) the database at dbPath and migrates the schema.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	-- Balance (single row)
	CREATE TABLE IF NOT EXISTS coins (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		amount INTEGER NOT NULL CHECK (amount >= 0),
		last_update TEXT
	);

	-- Redemption log (append-only; cleared only as a whole)
	CREATE TABLE IF NOT EXISTS coupons (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		cost INTEGER NOT NULL CHECK (cost > 0),
		code TEXT NOT NULL,
		description TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_coupons_created_at
		ON coupons(created_at DESC, seq DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// BALANCE ROW
// =============================================================================

// LoadCoins reads the balance row.
func (s *Store) LoadCoins(ctx context.Context) (coins.CoinState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		state      coins.CoinState
		lastUpdate sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT amount, last_update FROM coins WHERE id = 1",
	).Scan(&state.Amount, &lastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return coins.CoinState{}, false, nil
	}
	if err != nil {
		return coins.CoinState{}, false, fmt.Errorf("failed to load coins: %w", err)
	}

	if lastUpdate.Valid && lastUpdate.String != "" {
		t, err := parseTime(lastUpdate.String)
		if err != nil {
			return coins.CoinState{}, false, fmt.Errorf("failed to parse last_update %q: %w", lastUpdate.String, err)
		}
		state.LastUpdate = t
	}
	return state, true, nil
}

// SaveCoins upserts the balance row.
func (s *Store) SaveCoins(ctx context.Context, state coins.CoinState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var lastUpdate sql.NullString
	if !state.LastUpdate.IsZero() {
		lastUpdate = sql.NullString{String: formatTime(state.LastUpdate), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coins (id, amount, last_update) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET amount = excluded.amount, last_update = excluded.last_update
	`, state.Amount, lastUpdate)
	if err != nil {
		return fmt.Errorf("failed to save coins: %w", err)
	}
	return nil
}

// =============================================================================
// REDEMPTION LOG
// =============================================================================

// AppendCoupon adds a record to the log.
func (s *Store) AppendCoupon(ctx context.Context, rec coins.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO coupons (id, type, cost, code, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.CouponID,
		rec.Cost,
		rec.Code,
		nullString(rec.Description),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateRecord, rec.ID)
		}
		return fmt.Errorf("failed to append coupon: %w", err)
	}
	return nil
}

// ListCoupons returns the log newest first. Records with equal timestamps
// come back in reverse insertion order.
func (s *Store) ListCoupons(ctx context.Context) ([]coins.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, cost, code, description, created_at
		FROM coupons
		ORDER BY created_at DESC, seq DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query coupons: %w", err)
	}
	defer rows.Close()

	records := []coins.Record{}
	for rows.Next() {
		rec, err := scanCoupon(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ClearCoupons deletes every record in the log.
func (s *Store) ClearCoupons(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, "DELETE FROM coupons"); err != nil {
		return fmt.Errorf("failed to clear coupons: %w", err)
	}
	return nil
}

// CountCoupons returns the number of records in the log.
func (s *Store) CountCoupons(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM coupons").Scan(&n)
	return n, err
}

func scanCoupon(rows *sql.Rows) (coins.Record, error) {
	var (
		rec         coins.Record
		description sql.NullString
		createdAt   string
	)
	if err := rows.Scan(&rec.ID, &rec.CouponID, &rec.Cost, &rec.Code, &description, &createdAt); err != nil {
		return rec, fmt.Errorf("failed to scan coupon: %w", err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return rec, fmt.Errorf("failed to parse created_at %q: %w", createdAt, err)
	}
	rec.CreatedAt = t
	rec.Description = description.String
	return rec, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	// RFC3339Nano also accepts rows written by older tools without the
	// fixed-width fraction.
	return time.Parse(time.RFC3339Nano, s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

var _ coins.Store = (*Store)(nil)
