/*
ledger.go - Owner of the balance and gateway to the Store

PURPOSE:
  The Ledger holds the one piece of shared mutable state in the engine: the
  coin balance. The accrual timer and user redemptions both go through it.

CRITICAL INVARIANTS:
  1. NEVER NEGATIVE: Debit fails (does not clamp) when balance < amount.
  2. SERIALIZED: Check, mutate and persist happen under l.mu, so no credit
     or debit can interleave with another.
  3. DURABLE OR UNCHANGED: Credit and Debit persist before returning. If the
     persist fails the in-memory value is not changed.
     Exception: Accrue keeps the in-memory advance and marks the ledger
     dirty; Flush writes it later.

LOCK SCOPE:
  Store I/O happens while l.mu is held. The store is local SQLite, so this
  is fine at this scale, but every Store call is on the critical path of
  every other balance operation.

EVENTS:
  BalanceChanged is built under the lock and published after unlocking.
*/
package coins

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Ledger serializes all balance mutations and their persistence.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	notifier *Notifier
	now      func() time.Time

	state   CoinState
	loaded  bool
	dirty   bool
	version uint64
}

// NewLedger creates a ledger over store. Call Load before anything else.
// notifier may be nil; now defaults to time.Now.
func NewLedger(store Store, notifier *Notifier, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{store: store, notifier: notifier, now: now}
}

// Load reads the persisted balance. When no row exists it initialises the
// balance to 0 with no last-update time and persists that row.
func (l *Ledger) Load(ctx context.Context) (int64, error) {
	l.mu.Lock()
	state, found, err := l.store.LoadCoins(ctx)
	if err != nil {
		l.mu.Unlock()
		return 0, &StorageError{Op: "load", Err: err}
	}
	if !found {
		state = CoinState{}
		if err := l.store.SaveCoins(ctx, state); err != nil {
			l.mu.Unlock()
			return 0, &StorageError{Op: "load", Err: err}
		}
	}
	if state.Amount < 0 {
		l.mu.Unlock()
		return 0, &StorageError{Op: "load", Err: fmt.Errorf("persisted balance is negative: %d", state.Amount)}
	}

	l.state = state
	l.loaded = true
	l.dirty = false
	l.version++
	ev := l.eventLocked(0, ReasonLoad)
	l.mu.Unlock()

	l.publish(ev)
	return state.Amount, nil
}

// Balance returns the current in-memory balance.
func (l *Ledger) Balance() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Amount
}

// LastUpdate returns the time of the last credit (zero if never).
func (l *Ledger) LastUpdate() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.LastUpdate
}

// Snapshot returns the current balance as an event carrying the version of
// the last committed change, so it can be ordered against later events.
func (l *Ledger) Snapshot() BalanceChanged {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.eventLocked(0, ReasonSnapshot)
}

// Dirty reports whether the in-memory state is ahead of the store.
func (l *Ledger) Dirty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dirty
}

// =============================================================================
// BALANCE MUTATIONS
// =============================================================================

// Credit adds amount to the balance and persists it. On a persist failure
// the balance is unchanged and a *StorageError is returned.
func (l *Ledger) Credit(ctx context.Context, amount int64) (int64, error) {
	return l.credit(ctx, amount, ReasonCredit, false)
}

// Accrue is the timer's credit. Unlike Credit it keeps the in-memory
// advance when the persist fails; the returned *StorageError is for
// logging and the ledger stays dirty until the next successful write.
func (l *Ledger) Accrue(ctx context.Context, amount int64) (int64, error) {
	return l.credit(ctx, amount, ReasonAccrual, true)
}

// Debit removes amount from the balance if it is covered. Otherwise it
// returns *InsufficientBalanceError and leaves the balance untouched.
func (l *Ledger) Debit(ctx context.Context, amount int64) (int64, error) {
	return l.debit(ctx, amount, ReasonDebit)
}

func (l *Ledger) credit(ctx context.Context, amount int64, reason ChangeReason, keepOnFailure bool) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: credit %d", ErrInvalidAmount, amount)
	}
	return l.apply(ctx, "credit", reason, keepOnFailure, func(s *CoinState) error {
		if s.Amount > math.MaxInt64-amount {
			return fmt.Errorf("%w: credit %d overflows balance %d", ErrInvalidAmount, amount, s.Amount)
		}
		s.Amount += amount
		// A refund returns coins already earned; it is not an accrual.
		if reason != ReasonRefund {
			s.LastUpdate = l.now()
		}
		return nil
	})
}

func (l *Ledger) debit(ctx context.Context, amount int64, reason ChangeReason) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: debit %d", ErrInvalidAmount, amount)
	}
	return l.apply(ctx, "debit", reason, false, func(s *CoinState) error {
		if s.Amount < amount {
			return &InsufficientBalanceError{Available: s.Amount, Requested: amount}
		}
		s.Amount -= amount
		return nil
	})
}

// apply runs fn against a copy of the state under the lock and persists
// the result. fn errors leave everything untouched.
func (l *Ledger) apply(ctx context.Context, op string, reason ChangeReason, keepOnFailure bool, fn func(*CoinState) error) (int64, error) {
	l.mu.Lock()
	if !l.loaded {
		l.mu.Unlock()
		return 0, ErrNotLoaded
	}

	next := l.state
	if err := fn(&next); err != nil {
		current := l.state.Amount
		l.mu.Unlock()
		return current, err
	}

	var persistErr error
	if err := l.store.SaveCoins(ctx, next); err != nil {
		persistErr = &StorageError{Op: op, Err: err}
		if !keepOnFailure {
			current := l.state.Amount
			l.mu.Unlock()
			return current, persistErr
		}
		l.dirty = true
	} else {
		l.dirty = false
	}

	delta := next.Amount - l.state.Amount
	l.state = next
	l.version++
	ev := l.eventLocked(delta, reason)
	l.mu.Unlock()

	l.publish(ev)
	return next.Amount, persistErr
}

// Flush writes the current in-memory state to the store.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded {
		return ErrNotLoaded
	}
	if err := l.store.SaveCoins(ctx, l.state); err != nil {
		return &StorageError{Op: "flush", Err: err}
	}
	l.dirty = false
	return nil
}

// =============================================================================
// REDEMPTION LOG
// =============================================================================

// AppendRedemption appends rec to the log.
func (l *Ledger) AppendRedemption(ctx context.Context, rec Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.AppendCoupon(ctx, rec); err != nil {
		return &StorageError{Op: "append redemption", Err: err}
	}
	return nil
}

// Redemptions returns the log, newest first.
func (l *Ledger) Redemptions(ctx context.Context) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	recs, err := l.store.ListCoupons(ctx)
	if err != nil {
		return nil, &StorageError{Op: "list redemptions", Err: err}
	}
	return recs, nil
}

// ClearRedemptions truncates the log. The balance is not affected.
func (l *Ledger) ClearRedemptions(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.store.ClearCoupons(ctx); err != nil {
		return &StorageError{Op: "clear redemptions", Err: err}
	}
	return nil
}

func (l *Ledger) eventLocked(delta int64, reason ChangeReason) BalanceChanged {
	return BalanceChanged{
		Balance: l.state.Amount,
		Delta:   delta,
		Reason:  reason,
		Version: l.version,
		At:      l.now(),
	}
}

func (l *Ledger) publish(ev BalanceChanged) {
	if l.notifier != nil {
		l.notifier.PublishBalance(ev)
	}
}
