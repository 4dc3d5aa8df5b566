/*
redeem.go - Coins-for-coupon redemption

PROTOCOL:
  1. Look up the coupon in the catalog        -> ErrUnknownCoupon
  2. Debit its cost from the ledger           -> ErrInsufficientBalance
  3. Build the record (code, timestamp, UUID)
  4. Append the record to the redemption log
  5. Publish CouponGenerated
  If step 4 fails the cost is credited back and the caller gets a
  *RedemptionError (ErrRedemptionFailed).

GUARANTEE:
  From the caller's side a redemption is all-or-nothing: either the balance
  went down and a record exists, or the balance is what it was and no
  record exists. Between steps 2 and 4 other readers can briefly observe
  the lowered balance.
*/
package coins

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Redeemer executes redemptions against a ledger and catalog.
type Redeemer struct {
	ledger   *Ledger
	catalog  *Catalog
	notifier *Notifier
	codes    *CodeGenerator
	now      func() time.Time
	newID    func() string
	logger   *slog.Logger
}

func NewRedeemer(ledger *Ledger, catalog *Catalog, notifier *Notifier, now func() time.Time, newID func() string, logger *slog.Logger) *Redeemer {
	if now == nil {
		now = time.Now
	}
	if newID == nil {
		newID = uuid.NewString
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redeemer{
		ledger:   ledger,
		catalog:  catalog,
		notifier: notifier,
		codes:    NewCodeGenerator(),
		now:      now,
		newID:    newID,
		logger:   logger,
	}
}

// Redeem exchanges coins for one instance of the coupon couponID.
func (r *Redeemer) Redeem(ctx context.Context, couponID string) (Record, error) {
	entry, err := r.catalog.Get(couponID)
	if err != nil {
		return Record{}, err
	}

	if _, err := r.ledger.debit(ctx, entry.Cost, ReasonRedemption); err != nil {
		return Record{}, err
	}

	now := r.now()
	rec := Record{
		ID:          r.newID(),
		CouponID:    entry.ID,
		Description: entry.Description,
		Cost:        entry.Cost,
		Code:        r.codes.Next(entry.ID, now),
		CreatedAt:   now,
	}

	if err := r.ledger.AppendRedemption(ctx, rec); err != nil {
		return Record{}, r.refund(ctx, entry, err)
	}

	r.logger.Info("coupon redeemed", "coupon", rec.CouponID, "code", rec.Code, "cost", rec.Cost)
	if r.notifier != nil {
		r.notifier.PublishCoupon(CouponGenerated{Record: rec})
	}
	return rec, nil
}

// refund gives the debited cost back after a failed post-debit step.
// It runs even if ctx is already cancelled.
func (r *Redeemer) refund(ctx context.Context, entry CatalogEntry, cause error) error {
	rerr := &RedemptionError{CouponID: entry.ID, Err: cause}

	// keepOnFailure: if the refund cannot be persisted the in-memory balance
	// is still restored and the ledger stays dirty until the next write.
	balance, err := r.ledger.credit(context.WithoutCancel(ctx), entry.Cost, ReasonRefund, true)
	if err != nil {
		rerr.RefundErr = err
		r.logger.Error("refund not persisted", "coupon", entry.ID, "cost", entry.Cost, "balance", balance, "error", err)
	} else {
		r.logger.Warn("redemption rolled back", "coupon", entry.ID, "cost", entry.Cost, "balance", balance, "error", cause)
	}
	return rerr
}
