/*
errors.go - Centralized error types for the coin engine

ERROR CATEGORIES:
  1. Storage errors    - ledger persistence failed (fatal for the operation)
  2. Client errors     - unknown coupon, insufficient balance, bad amount
  3. Redemption errors - a post-debit step failed and the debit was refunded

USAGE:
  rec, err := mgr.Redeem(ctx, id)
  switch {
  case errors.Is(err, coins.ErrUnknownCoupon):
  case errors.Is(err, coins.ErrInsufficientBalance):
  case errors.Is(err, coins.ErrRedemptionFailed):
  }
*/
package coins

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrStorage is returned when the ledger cannot read or write its store.
	// In-memory state is left as it was before the operation.
	ErrStorage = errors.New("ledger storage failure")

	// ErrUnknownCoupon is returned when an identifier is not in the catalog.
	ErrUnknownCoupon = errors.New("unknown coupon")

	// ErrInsufficientBalance is returned when a debit exceeds the balance.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrRedemptionFailed is returned when a step after the debit failed.
	// The debited amount has been refunded by the time the caller sees it.
	ErrRedemptionFailed = errors.New("redemption failed")

	// ErrInvalidAmount is returned for zero, negative or overflowing amounts.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrNotLoaded is returned when the ledger is used before Load.
	ErrNotLoaded = errors.New("ledger not loaded")

	// ErrInvalidCatalog is returned by NewCatalog for malformed entries.
	ErrInvalidCatalog = errors.New("invalid catalog")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// StorageError wraps a persistence failure with the ledger operation name.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("ledger %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() []error {
	return []error{ErrStorage, e.Err}
}

// InsufficientBalanceError provides details about a balance shortage.
type InsufficientBalanceError struct {
	Available int64
	Requested int64
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %d, requested %d, shortfall %d",
		e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error {
	return ErrInsufficientBalance
}

func (e *InsufficientBalanceError) Shortfall() int64 {
	return e.Requested - e.Available
}

// UnknownCouponError names the identifier that was not found.
type UnknownCouponError struct {
	ID string
}

func (e *UnknownCouponError) Error() string {
	return fmt.Sprintf("unknown coupon %q", e.ID)
}

func (e *UnknownCouponError) Unwrap() error {
	return ErrUnknownCoupon
}

// RedemptionError reports a redemption that was rolled back after the debit.
// RefundErr is set only when the compensating credit also failed.
type RedemptionError struct {
	CouponID  string
	Err       error
	RefundErr error
}

func (e *RedemptionError) Error() string {
	if e.RefundErr != nil {
		return fmt.Sprintf("redeem %s: %v (refund failed: %v)", e.CouponID, e.Err, e.RefundErr)
	}
	return fmt.Sprintf("redeem %s: %v (refunded)", e.CouponID, e.Err)
}

func (e *RedemptionError) Unwrap() []error {
	errs := []error{ErrRedemptionFailed, e.Err}
	if e.RefundErr != nil {
		errs = append(errs, e.RefundErr)
	}
	return errs
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// ErrorKind returns a stable label for err, suitable for metrics and API
// error codes. Returns "" for nil and "internal" for unclassified errors.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRedemptionFailed):
		return "redemption_failed"
	case errors.Is(err, ErrUnknownCoupon):
		return "unknown_coupon"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrStorage):
		return "storage"
	default:
		return "internal"
	}
}

// IsClientError returns true if the error is due to the caller's request
// rather than a failure of the engine.
func IsClientError(err error) bool {
	return errors.Is(err, ErrUnknownCoupon) ||
		errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrInvalidAmount)
}
