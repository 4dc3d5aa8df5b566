package coins_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coin-rewards/coins"
	"github.com/warp/coin-rewards/coins/store"
)

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestRedeem_Success(t *testing.T) {
	// GIVEN: Balance 15 and a catalog entry SWIGGY50 costing 10
	clock := newFakeClock()
	mgr, mem := managerWithBalance(t, 15, clock)

	var coupons []coins.CouponGenerated
	mgr.SubscribeCoupons(func(e coins.CouponGenerated) { coupons = append(coupons, e) })
	rec := &balanceRecorder{}
	mgr.SubscribeBalance(rec.record)

	// WHEN: Redeeming it
	got, err := mgr.Redeem(context.Background(), "SWIGGY50")

	// THEN: Balance 5, one record, one of each event
	require.NoError(t, err)
	assert.Equal(t, int64(5), mgr.Balance())
	assert.Equal(t, "rec-1", got.ID)
	assert.Equal(t, "SWIGGY50", got.CouponID)
	assert.Equal(t, int64(10), got.Cost)
	assert.Equal(t, "SWIGGY500310143000", got.Code)
	assert.Equal(t, clock.Now(), got.CreatedAt)
	assert.NotEmpty(t, got.Description)

	history, err := mgr.History(context.Background())
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, got, history[0])

	state, _ := mem.Persisted()
	assert.Equal(t, int64(5), state.Amount)

	require.Len(t, coupons, 1)
	assert.Equal(t, got, coupons[0].Record)

	events := rec.all()
	require.Len(t, events, 1)
	assert.Equal(t, coins.ReasonRedemption, events[0].Reason)
	assert.Equal(t, int64(-10), events[0].Delta)
	assert.Equal(t, int64(5), events[0].Balance)
}

func TestRedeem_TwiceSameCoupon(t *testing.T) {
	// GIVEN: Balance 25
	clock := newFakeClock()
	mgr, _ := managerWithBalance(t, 25, clock)
	ctx := context.Background()

	// WHEN: Redeeming SWIGGY50 three times in the same second
	first, err := mgr.Redeem(ctx, "SWIGGY50")
	require.NoError(t, err)
	second, err := mgr.Redeem(ctx, "SWIGGY50")
	require.NoError(t, err)
	_, err = mgr.Redeem(ctx, "SWIGGY50")

	// THEN: Two succeed with distinct codes; the third is short by 5
	assert.ErrorIs(t, err, coins.ErrInsufficientBalance)
	assert.NotEqual(t, first.Code, second.Code)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, int64(5), mgr.Balance())

	history, err := mgr.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, second.ID, history[0].ID, "newest first")
}

// =============================================================================
// REJECTIONS
// =============================================================================

func TestRedeem_UnknownCoupon(t *testing.T) {
	mgr, mem := managerWithBalance(t, 500, newFakeClock())
	saves := mem.Saves()

	_, err := mgr.Redeem(context.Background(), "DOESNOTEXIST")

	assert.ErrorIs(t, err, coins.ErrUnknownCoupon)
	assert.True(t, coins.IsClientError(err))
	assert.Equal(t, int64(500), mgr.Balance())
	assert.Equal(t, saves, mem.Saves())

	history, err := mgr.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedeem_InsufficientBalance(t *testing.T) {
	// GIVEN: Balance 9 and SWIGGY50 costing 10
	mgr, _ := managerWithBalance(t, 9, newFakeClock())

	var coupons int
	mgr.SubscribeCoupons(func(coins.CouponGenerated) { coupons++ })

	// WHEN: Redeeming
	_, err := mgr.Redeem(context.Background(), "SWIGGY50")

	// THEN: Rejected, nothing changes, no event
	assert.ErrorIs(t, err, coins.ErrInsufficientBalance)
	assert.Equal(t, int64(9), mgr.Balance())
	assert.Zero(t, coupons)

	history, err := mgr.History(context.Background())
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestRedeem_ZeroBalance(t *testing.T) {
	mgr, _ := managerWithBalance(t, 0, newFakeClock())

	for _, e := range mgr.Catalog() {
		_, err := mgr.Redeem(context.Background(), e.ID)
		assert.ErrorIs(t, err, coins.ErrInsufficientBalance, e.ID)
	}
	assert.Zero(t, mgr.Balance())
}

// =============================================================================
// ROLLBACK
// =============================================================================

func TestRedeem_AppendFailureRefunds(t *testing.T) {
	// GIVEN: Balance 15 and a log that rejects writes
	clock := newFakeClock()
	mgr, mem := managerWithBalance(t, 15, clock)
	mem.FailOn(store.OpAppendCoupon, errDiskFull)
	lastUpdate := clock.Now()
	clock.Advance(time.Minute)

	rec := &balanceRecorder{}
	mgr.SubscribeBalance(rec.record)
	var coupons int
	mgr.SubscribeCoupons(func(coins.CouponGenerated) { coupons++ })

	// WHEN: Redeeming
	_, err := mgr.Redeem(context.Background(), "SWIGGY50")

	// THEN: RedemptionError, balance restored in memory and on disk
	assert.ErrorIs(t, err, coins.ErrRedemptionFailed)
	assert.ErrorIs(t, err, coins.ErrStorage)
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, "redemption_failed", coins.ErrorKind(err))
	assert.False(t, coins.IsClientError(err))

	var rerr *coins.RedemptionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "SWIGGY50", rerr.CouponID)
	assert.NoError(t, rerr.RefundErr)

	assert.Equal(t, int64(15), mgr.Balance())
	state, _ := mem.Persisted()
	assert.Equal(t, int64(15), state.Amount)
	assert.Equal(t, lastUpdate, state.LastUpdate, "a refund is not an accrual")
	assert.Zero(t, coupons)

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, coins.ReasonRedemption, events[0].Reason)
	assert.Equal(t, coins.ReasonRefund, events[1].Reason)
	assert.Equal(t, int64(15), events[1].Balance)
}

func TestRedeem_RefundPersistFailure(t *testing.T) {
	// GIVEN: A store whose log fails, and whose balance row fails after the debit
	clock := newFakeClock()
	mgr, mem := managerWithBalance(t, 15, clock)
	mem.FailOn(store.OpAppendCoupon, errDiskFull)

	// The debit needs to persist, so fail SaveCoins only once the debit event fires.
	sub := mgr.SubscribeBalance(func(e coins.BalanceChanged) {
		if e.Reason == coins.ReasonRedemption {
			mem.FailOn(store.OpSaveCoins, errDiskFull)
		}
	})
	defer mgr.Unsubscribe(sub)

	// WHEN: Redeeming
	_, err := mgr.Redeem(context.Background(), "SWIGGY50")

	// THEN: RefundErr is reported; the in-memory balance is still restored
	var rerr *coins.RedemptionError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, rerr.RefundErr, coins.ErrStorage)
	assert.Equal(t, int64(15), mgr.Balance())

	// WHEN: The store recovers and accrual stops (flush)
	mem.FailOn(store.OpSaveCoins, nil)
	require.NoError(t, mgr.StartAccrual(context.Background()))
	require.NoError(t, mgr.StopAccrual(context.Background()))

	// THEN: The refund reaches disk
	state, _ := mem.Persisted()
	assert.Equal(t, int64(15), state.Amount)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestRedeem_ConcurrentNeverOverspends(t *testing.T) {
	// GIVEN: Balance 100 and SWIGGY50 costing 10
	mgr, _ := managerWithBalance(t, 100, newFakeClock())
	ctx := context.Background()

	// WHEN: 25 concurrent redemptions
	var (
		wg sync.WaitGroup
		mu sync.Mutex
		ok int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := mgr.Redeem(ctx, "SWIGGY50"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// THEN: Exactly 10 succeed, each with a record
	assert.Equal(t, 10, ok)
	assert.Zero(t, mgr.Balance())
	history, err := mgr.History(ctx)
	require.NoError(t, err)
	assert.Len(t, history, 10)

	codes := map[string]bool{}
	for _, r := range history {
		assert.False(t, codes[r.Code], "duplicate code %s", r.Code)
		codes[r.Code] = true
	}
}

// =============================================================================
// HISTORY
// =============================================================================

func TestClearHistory_KeepsBalanceAndIsIdempotent(t *testing.T) {
	mgr, _ := managerWithBalance(t, 50, newFakeClock())
	ctx := context.Background()

	_, err := mgr.Redeem(ctx, "SWIGGY50")
	require.NoError(t, err)
	_, err = mgr.Redeem(ctx, "ZOMATOFREEDEL")
	require.NoError(t, err)

	require.NoError(t, mgr.ClearHistory(ctx))
	require.NoError(t, mgr.ClearHistory(ctx))

	history, err := mgr.History(ctx)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Equal(t, int64(25), mgr.Balance())
}

func TestHistory_StorageFailure(t *testing.T) {
	mgr, mem := managerWithBalance(t, 50, newFakeClock())
	mem.FailOn(store.OpListCoupons, errDiskFull)

	_, err := mgr.History(context.Background())
	assert.ErrorIs(t, err, coins.ErrStorage)
	assert.Equal(t, "storage", coins.ErrorKind(err))
}
