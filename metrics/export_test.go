package metrics

import "github.com/prometheus/client_golang/prometheus"

func (r *Recorder) BalanceGauge() prometheus.Gauge        { return r.balance }
func (r *Recorder) AccrualRunningGauge() prometheus.Gauge { return r.accrualRunning }

func (r *Recorder) CreditedCounter(reason string) prometheus.Counter {
	return r.credited.WithLabelValues(reason)
}

func (r *Recorder) DebitedCounter(reason string) prometheus.Counter {
	return r.debited.WithLabelValues(reason)
}

func (r *Recorder) RedeemedCounter(coupon string) prometheus.Counter {
	return r.redeemed.WithLabelValues(coupon)
}

func (r *Recorder) RedemptionErrorCounter(kind string) prometheus.Counter {
	return r.redemptionErrors.WithLabelValues(kind)
}
