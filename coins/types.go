/*
Package coins provides the coin-accrual and coupon-redemption engine.

PURPOSE:
  Users earn coins passively while the browser is running and spend them on
  discount coupons from a fixed catalog. This package owns the balance, the
  redemption log, the accrual timer and the events the UI listens to.

KEY CONCEPTS IN THIS FILE (types.go):
  - CoinState:    The persisted balance row (amount + last credit time)
  - CatalogEntry: A redeemable coupon type and its cost
  - Record:       One redeemed coupon instance (append-only log entry)
  - Events:       BalanceChanged / CouponGenerated payloads

DESIGN PRINCIPLES:
  1. Single owner: Ledger is the only thing that mutates the balance
  2. Serialized:   Every credit/debit and its persist run under one mutex
  3. All-or-nothing redemption: debit + log, or refund + error
  4. No globals: everything hangs off a Manager passed by pointer

USAGE:
  mgr, err := coins.NewManager(ctx, store, coins.Options{})
  mgr.SubscribeBalance(func(e coins.BalanceChanged) { ui.SetCoins(e.Balance) })
  mgr.StartAccrual(ctx)
  rec, err := mgr.Redeem(ctx, "SWIGGY50")

SEE ALSO:
  - ledger.go:   Balance ownership and persistence
  - accrual.go:  Timer-driven crediting
  - redeem.go:   Coupon redemption protocol
  - notifier.go: Observer registry
*/
package coins

import "time"

// =============================================================================
// COIN STATE - The single persisted balance row
// =============================================================================

// CoinState is the persisted form of the balance.
// LastUpdate is the time of the last successful credit; zero means never.
type CoinState struct {
	Amount     int64
	LastUpdate time.Time
}

// =============================================================================
// CATALOG ENTRY
// =============================================================================

// CatalogEntry is a redeemable coupon type.
type CatalogEntry struct {
	ID          string
	Cost        int64
	Description string
}

// =============================================================================
// REDEMPTION RECORD - Append-only log entry
// =============================================================================

// Record is one redeemed coupon. Records are never mutated once written;
// the only way to remove them is ClearRedemptions.
type Record struct {
	ID          string // stable row key (UUID)
	CouponID    string // catalog identifier
	Description string
	Cost        int64
	Code        string // CouponID + MMDDHHmmss (+ collision suffix)
	CreatedAt   time.Time
}

// =============================================================================
// EVENTS
// =============================================================================

// ChangeReason says why the balance moved.
type ChangeReason string

const (
	ReasonLoad       ChangeReason = "load"
	ReasonAccrual    ChangeReason = "accrual"
	ReasonCatchUp    ChangeReason = "catch_up"
	ReasonCredit     ChangeReason = "credit"
	ReasonDebit      ChangeReason = "debit"
	ReasonRedemption ChangeReason = "redemption"
	ReasonRefund     ChangeReason = "refund"

	// ReasonSnapshot marks a point-in-time read, not a change (Delta is 0).
	ReasonSnapshot ChangeReason = "snapshot"
)

// BalanceChanged is published after every balance mutation.
//
// Events are delivered after the ledger lock is released, so two concurrent
// mutations may reach a subscriber out of order. Version increases with
// every mutation; subscribers that care keep the highest one seen.
type BalanceChanged struct {
	Balance int64
	Delta   int64
	Reason  ChangeReason
	Version uint64
	At      time.Time
}

// CouponGenerated is published once a redemption is durably logged.
type CouponGenerated struct {
	Record Record
}
