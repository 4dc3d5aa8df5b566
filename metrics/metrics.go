// Package metrics exposes Prometheus collectors for the coin engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/warp/coin-rewards/coins"
)

// EventSource is the part of coins.Manager the recorder listens to.
type EventSource interface {
	SubscribeBalance(fn func(coins.BalanceChanged)) coins.Subscription
	SubscribeCoupons(fn func(coins.CouponGenerated)) coins.Subscription
	Unsubscribe(s coins.Subscription)
}

type Recorder struct {
	balance          prometheus.Gauge
	credited         *prometheus.CounterVec
	debited          *prometheus.CounterVec
	redeemed         *prometheus.CounterVec
	redemptionErrors *prometheus.CounterVec
	accrualRunning   prometheus.Gauge
}

// NewRecorder creates the collectors and registers them on reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coins_balance",
			Help: "Current coin balance.",
		}),
		credited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coins_credited_total",
			Help: "Coins added to the balance by reason.",
		}, []string{"reason"}),
		debited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coins_debited_total",
			Help: "Coins removed from the balance by reason.",
		}, []string{"reason"}),
		redeemed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coins_coupons_redeemed_total",
			Help: "Coupons redeemed by catalog identifier.",
		}, []string{"coupon"}),
		redemptionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coins_redemption_errors_total",
			Help: "Rejected or failed redemptions by error kind.",
		}, []string{"kind"}),
		accrualRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "coins_accrual_running",
			Help: "1 while the accrual timer is armed.",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.balance, r.credited, r.debited, r.redeemed, r.redemptionErrors, r.accrualRunning,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Attach subscribes the recorder to src and returns a function that
// unsubscribes it.
func (r *Recorder) Attach(src EventSource) func() {
	balanceSub := src.SubscribeBalance(r.ObserveBalance)
	couponSub := src.SubscribeCoupons(r.ObserveCoupon)
	return func() {
		src.Unsubscribe(balanceSub)
		src.Unsubscribe(couponSub)
	}
}

func (r *Recorder) ObserveBalance(e coins.BalanceChanged) {
	if r == nil {
		return
	}
	r.balance.Set(float64(e.Balance))
	switch {
	case e.Delta > 0:
		r.credited.WithLabelValues(string(e.Reason)).Add(float64(e.Delta))
	case e.Delta < 0:
		r.debited.WithLabelValues(string(e.Reason)).Add(float64(-e.Delta))
	}
}

func (r *Recorder) ObserveCoupon(e coins.CouponGenerated) {
	if r == nil {
		return
	}
	r.redeemed.WithLabelValues(e.Record.CouponID).Inc()
}

// ObserveRedeemError counts a failed Redeem call. nil is ignored.
func (r *Recorder) ObserveRedeemError(err error) {
	if r == nil || err == nil {
		return
	}
	r.redemptionErrors.WithLabelValues(coins.ErrorKind(err)).Inc()
}

func (r *Recorder) ObserveAccrualRunning(running bool) {
	if r == nil {
		return
	}
	if running {
		r.accrualRunning.Set(1)
	} else {
		r.accrualRunning.Set(0)
	}
}
