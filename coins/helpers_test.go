package coins_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/warp/coin-rewards/coins"
	"github.com/warp/coin-rewards/coins/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// sequentialIDs returns an ID generator yielding rec-1, rec-2, ...
func sequentialIDs() func() string {
	var n atomic.Int64
	return func() string {
		return fmt.Sprintf("rec-%d", n.Add(1))
	}
}

// slowAccrual never ticks during a test; only the catch-up path credits.
var slowAccrual = coins.AccrualConfig{
	Interval:     time.Hour,
	CatchUpAfter: 10 * time.Second,
	Amount:       1,
}

func newTestLedger(t *testing.T, balance int64, clock *fakeClock) (*coins.Ledger, *store.Memory) {
	t.Helper()
	mem := store.NewMemoryWithState(coins.CoinState{Amount: balance, LastUpdate: clock.Now()})
	ledger := coins.NewLedger(mem, coins.NewNotifier(nil), clock.Now)
	_, err := ledger.Load(context.Background())
	require.NoError(t, err)
	return ledger, mem
}

func newTestManager(t *testing.T, mem *store.Memory, clock *fakeClock) *coins.Manager {
	t.Helper()
	mgr, err := coins.NewManager(context.Background(), mem, coins.Options{
		Accrual: slowAccrual,
		Now:     clock.Now,
		NewID:   sequentialIDs(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close(context.Background()) })
	return mgr
}

// managerWithBalance returns a manager whose store already holds balance,
// credited recently enough that Start does not award a catch-up coin.
func managerWithBalance(t *testing.T, balance int64, clock *fakeClock) (*coins.Manager, *store.Memory) {
	t.Helper()
	mem := store.NewMemoryWithState(coins.CoinState{Amount: balance, LastUpdate: clock.Now()})
	return newTestManager(t, mem, clock), mem
}

// balanceRecorder collects BalanceChanged events.
type balanceRecorder struct {
	mu     sync.Mutex
	events []coins.BalanceChanged
}

func (r *balanceRecorder) record(e coins.BalanceChanged) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *balanceRecorder) all() []coins.BalanceChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]coins.BalanceChanged, len(r.events))
	copy(out, r.events)
	return out
}
