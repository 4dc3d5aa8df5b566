package coins

import (
	"context"
	"log/slog"
	"time"
)

// =============================================================================
// MANAGER - The interface the UI layer talks to
// =============================================================================

// Options configures a Manager. Zero values select the defaults.
type Options struct {
	Catalog *Catalog      // default: DefaultCatalog()
	Accrual AccrualConfig // default: DefaultAccrualConfig()
	Now     func() time.Time
	NewID   func() string // record IDs; default: uuid.NewString
	Logger  *slog.Logger
}

// Manager wires the ledger, catalog, accrual engine, redeemer and notifier
// around one Store. It is safe for concurrent use.
type Manager struct {
	ledger   *Ledger
	catalog  *Catalog
	notifier *Notifier
	accrual  *Accrual
	redeemer *Redeemer
}

// NewManager builds a Manager and loads the persisted balance.
// The accrual timer is not started.
func NewManager(ctx context.Context, store Store, opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "coins")

	catalog := opts.Catalog
	if catalog == nil {
		catalog = DefaultCatalog()
	}

	notifier := NewNotifier(logger)
	ledger := NewLedger(store, notifier, opts.Now)
	if _, err := ledger.Load(ctx); err != nil {
		return nil, err
	}

	return &Manager{
		ledger:   ledger,
		catalog:  catalog,
		notifier: notifier,
		accrual:  NewAccrual(ledger, opts.Accrual, opts.Now, logger),
		redeemer: NewRedeemer(ledger, catalog, notifier, opts.Now, opts.NewID, logger),
	}, nil
}

// Balance returns the current coin balance.
func (m *Manager) Balance() int64 { return m.ledger.Balance() }

// Snapshot returns the balance with its version. See Ledger.Snapshot.
func (m *Manager) Snapshot() BalanceChanged { return m.ledger.Snapshot() }

func (m *Manager) StartAccrual(ctx context.Context) error { return m.accrual.Start(ctx) }
func (m *Manager) StopAccrual(ctx context.Context) error  { return m.accrual.Stop(ctx) }
func (m *Manager) AccrualRunning() bool                   { return m.accrual.Running() }
func (m *Manager) AccrualProgress() AccrualProgress       { return m.accrual.Progress() }
func (m *Manager) AccrualConfig() AccrualConfig           { return m.accrual.Config() }

// Catalog returns every coupon type in catalog order.
func (m *Manager) Catalog() []CatalogEntry { return m.catalog.All() }

// Affordable returns the coupon types the current balance can pay for.
func (m *Manager) Affordable() []CatalogEntry {
	return m.catalog.Affordable(m.ledger.Balance())
}

// Redeem exchanges coins for a coupon. See Redeemer.Redeem.
func (m *Manager) Redeem(ctx context.Context, couponID string) (Record, error) {
	return m.redeemer.Redeem(ctx, couponID)
}

// History returns redeemed coupons, newest first.
func (m *Manager) History(ctx context.Context) ([]Record, error) {
	return m.ledger.Redemptions(ctx)
}

// ClearHistory deletes every redemption record. The balance is untouched.
func (m *Manager) ClearHistory(ctx context.Context) error {
	return m.ledger.ClearRedemptions(ctx)
}

func (m *Manager) SubscribeBalance(fn func(BalanceChanged)) Subscription {
	return m.notifier.SubscribeBalance(fn)
}

func (m *Manager) SubscribeCoupons(fn func(CouponGenerated)) Subscription {
	return m.notifier.SubscribeCoupons(fn)
}

func (m *Manager) Unsubscribe(s Subscription) { m.notifier.Unsubscribe(s) }

// Dirty reports whether the balance in memory is ahead of the store.
func (m *Manager) Dirty() bool { return m.ledger.Dirty() }

// Flush writes the in-memory balance to the store.
func (m *Manager) Flush(ctx context.Context) error { return m.ledger.Flush(ctx) }

// Close stops accrual (flushing the balance). The Store is not closed.
func (m *Manager) Close(ctx context.Context) error {
	return m.accrual.Stop(ctx)
}
