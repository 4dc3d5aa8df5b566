/*
store.go - Persistence interface for the coin ledger

PURPOSE:
  Defines the boundary between the Ledger and the database. The Ledger
  serializes every call, so implementations do not need to coordinate
  concurrent writers among themselves; they must only be durable by the
  time a write returns.

TABLES:
  coins:   single row {amount, last_update}
  coupons: append-only redemption log

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - coins/store/memory.go:  In-memory for tests and dev

SEE ALSO:
  - ledger.go: The only caller of Store
*/
package coins

import "context"

// Store persists the balance row and the redemption log.
type Store interface {
	// LoadCoins returns the balance row. found is false when no row exists yet.
	LoadCoins(ctx context.Context) (state CoinState, found bool, err error)

	// SaveCoins upserts the balance row.
	SaveCoins(ctx context.Context, state CoinState) error

	// AppendCoupon adds a record to the redemption log.
	AppendCoupon(ctx context.Context, rec Record) error

	// ListCoupons returns the log, newest first.
	ListCoupons(ctx context.Context) ([]Record, error)

	// ClearCoupons truncates the log. The balance row is untouched.
	ClearCoupons(ctx context.Context) error
}
