/*
notifier.go - Observer registry for balance and coupon events

DELIVERY:
  Synchronous, in the goroutine that produced the mutation, in registration
  order. The ledger publishes after releasing its lock, so a subscriber may
  call back into the Manager (read the balance, even redeem) without
  deadlocking.

SLOW SUBSCRIBERS:
  No timeout is enforced. A subscriber that blocks stalls the caller that
  triggered the event (the accrual tick or a Redeem call). Subscribers that
  forward to I/O should hand off to their own goroutine or buffered channel,
  as api/events.go does.

PANICS:
  A panicking subscriber is recovered and logged. The mutation that produced
  the event has already been committed and must not be reported as failed.
*/
package coins

import (
	"log/slog"
	"sync"
)

// Subscription identifies a registered callback. The zero value is never
// issued, so Unsubscribe(Subscription{}) is a harmless no-op.
type Subscription struct {
	id uint64
}

type balanceSub struct {
	id uint64
	fn func(BalanceChanged)
}

type couponSub struct {
	id uint64
	fn func(CouponGenerated)
}

// Notifier fans events out to subscribers.
type Notifier struct {
	mu      sync.RWMutex
	nextID  uint64
	balance []balanceSub
	coupons []couponSub
	logger  *slog.Logger
}

func NewNotifier(logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{logger: logger}
}

// SubscribeBalance registers fn for BalanceChanged events.
func (n *Notifier) SubscribeBalance(fn func(BalanceChanged)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.balance = append(n.balance, balanceSub{id: n.nextID, fn: fn})
	return Subscription{id: n.nextID}
}

// SubscribeCoupons registers fn for CouponGenerated events.
func (n *Notifier) SubscribeCoupons(fn func(CouponGenerated)) Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.nextID++
	n.coupons = append(n.coupons, couponSub{id: n.nextID, fn: fn})
	return Subscription{id: n.nextID}
}

// Unsubscribe removes a subscription. Unknown or already removed
// subscriptions are ignored.
func (n *Notifier) Unsubscribe(s Subscription) {
	if s.id == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	for i, sub := range n.balance {
		if sub.id == s.id {
			n.balance = append(n.balance[:i:i], n.balance[i+1:]...)
			return
		}
	}
	for i, sub := range n.coupons {
		if sub.id == s.id {
			n.coupons = append(n.coupons[:i:i], n.coupons[i+1:]...)
			return
		}
	}
}

// PublishBalance delivers e to every balance subscriber.
func (n *Notifier) PublishBalance(e BalanceChanged) {
	n.mu.RLock()
	subs := n.balance
	n.mu.RUnlock()

	for _, sub := range subs {
		n.deliver("balance_changed", func() { sub.fn(e) })
	}
}

// PublishCoupon delivers e to every coupon subscriber.
func (n *Notifier) PublishCoupon(e CouponGenerated) {
	n.mu.RLock()
	subs := n.coupons
	n.mu.RUnlock()

	for _, sub := range subs {
		n.deliver("coupon_generated", func() { sub.fn(e) })
	}
}

func (n *Notifier) deliver(event string, call func()) {
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("event subscriber panicked", "event", event, "panic", r)
		}
	}()
	call()
}
