package metrics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/coin-rewards/coins"
	"github.com/warp/coin-rewards/coins/store"
	"github.com/warp/coin-rewards/metrics"
)

func newManager(t *testing.T, balance int64) *coins.Manager {
	t.Helper()
	mem := store.NewMemoryWithState(coins.CoinState{Amount: balance, LastUpdate: time.Now()})
	mgr, err := coins.NewManager(context.Background(), mem, coins.Options{
		Accrual: coins.AccrualConfig{Interval: time.Hour, CatchUpAfter: time.Hour},
	})
	require.NoError(t, err)
	t.Cleanup(func() { mgr.Close(context.Background()) })
	return mgr
}

func TestRecorder_TracksManagerEvents(t *testing.T) {
	// GIVEN: A recorder attached to a manager with 30 coins
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)
	mgr := newManager(t, 30)
	detach := rec.Attach(mgr)

	// WHEN: Redeeming twice and failing once
	ctx := context.Background()
	_, err = mgr.Redeem(ctx, "SWIGGY50")
	require.NoError(t, err)
	_, err = mgr.Redeem(ctx, "ZOMATOFREEDEL")
	require.NoError(t, err)
	_, err = mgr.Redeem(ctx, "KFCMEAL")
	rec.ObserveRedeemError(err)

	// THEN
	assert.Equal(t, float64(5), testutil.ToFloat64(rec.BalanceGauge()))
	assert.Equal(t, float64(25), testutil.ToFloat64(rec.DebitedCounter("redemption")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.RedeemedCounter("SWIGGY50")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.RedeemedCounter("ZOMATOFREEDEL")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.RedemptionErrorCounter("insufficient_balance")))

	// WHEN: Detached, further events are not recorded
	detach()
	_, err = mgr.Redeem(ctx, "SWIGGY50")
	assert.ErrorIs(t, err, coins.ErrInsufficientBalance)
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.RedeemedCounter("SWIGGY50")))
}

func TestRecorder_Credits(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	rec.ObserveBalance(coins.BalanceChanged{Balance: 1, Delta: 1, Reason: coins.ReasonCatchUp})
	rec.ObserveBalance(coins.BalanceChanged{Balance: 2, Delta: 1, Reason: coins.ReasonAccrual})
	rec.ObserveBalance(coins.BalanceChanged{Balance: 3, Delta: 1, Reason: coins.ReasonAccrual})
	rec.ObserveBalance(coins.BalanceChanged{Balance: 3, Delta: 0, Reason: coins.ReasonLoad})

	assert.Equal(t, float64(3), testutil.ToFloat64(rec.BalanceGauge()))
	assert.Equal(t, float64(2), testutil.ToFloat64(rec.CreditedCounter("accrual")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.CreditedCounter("catch_up")))
}

func TestRecorder_ErrorKinds(t *testing.T) {
	rec, err := metrics.NewRecorder(prometheus.NewRegistry())
	require.NoError(t, err)

	rec.ObserveRedeemError(nil)
	rec.ObserveRedeemError(&coins.UnknownCouponError{ID: "X"})
	rec.ObserveRedeemError(&coins.RedemptionError{CouponID: "X", Err: errors.New("io")})

	assert.Equal(t, float64(1), testutil.ToFloat64(rec.RedemptionErrorCounter("unknown_coupon")))
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.RedemptionErrorCounter("redemption_failed")))
}

func TestRecorder_AccrualRunning(t *testing.T) {
	rec, err := metrics.NewRecorder(prometheus.NewRegistry())
	require.NoError(t, err)

	rec.ObserveAccrualRunning(true)
	assert.Equal(t, float64(1), testutil.ToFloat64(rec.AccrualRunningGauge()))
	rec.ObserveAccrualRunning(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(rec.AccrualRunningGauge()))
}

func TestNewRecorder_DoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewRecorder(reg)
	require.NoError(t, err)

	_, err = metrics.NewRecorder(reg)
	assert.Error(t, err)
}

func TestRecorder_NilSafe(t *testing.T) {
	var rec *metrics.Recorder
	assert.NotPanics(t, func() {
		rec.ObserveBalance(coins.BalanceChanged{Balance: 1, Delta: 1})
		rec.ObserveCoupon(coins.CouponGenerated{})
		rec.ObserveRedeemError(errors.New("x"))
		rec.ObserveAccrualRunning(true)
	})
}
