package coins_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/warp/coin-rewards/coins"
)

func TestNotifier_DeliversInRegistrationOrder(t *testing.T) {
	n := coins.NewNotifier(nil)

	var order []string
	n.SubscribeBalance(func(coins.BalanceChanged) { order = append(order, "first") })
	n.SubscribeBalance(func(coins.BalanceChanged) { order = append(order, "second") })

	n.PublishBalance(coins.BalanceChanged{Balance: 1})

	assert.Equal(t, []string{"first", "second"}, order)
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := coins.NewNotifier(nil)

	var a, b int
	subA := n.SubscribeBalance(func(coins.BalanceChanged) { a++ })
	n.SubscribeBalance(func(coins.BalanceChanged) { b++ })

	n.PublishBalance(coins.BalanceChanged{})
	n.Unsubscribe(subA)
	n.PublishBalance(coins.BalanceChanged{})

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestNotifier_Unsubscribe_UnknownIsNoop(t *testing.T) {
	n := coins.NewNotifier(nil)

	var calls int
	sub := n.SubscribeCoupons(func(coins.CouponGenerated) { calls++ })

	n.Unsubscribe(coins.Subscription{})
	n.Unsubscribe(sub)
	n.Unsubscribe(sub)
	n.PublishCoupon(coins.CouponGenerated{})

	assert.Zero(t, calls)
}

func TestNotifier_PanickingSubscriberIsIsolated(t *testing.T) {
	// GIVEN: A subscriber that panics, registered before a healthy one
	n := coins.NewNotifier(nil)

	var got []int64
	n.SubscribeBalance(func(coins.BalanceChanged) { panic("boom") })
	n.SubscribeBalance(func(e coins.BalanceChanged) { got = append(got, e.Balance) })

	// WHEN: Publishing
	assert.NotPanics(t, func() {
		n.PublishBalance(coins.BalanceChanged{Balance: 7})
	})

	// THEN: The healthy subscriber still received the event
	assert.Equal(t, []int64{7}, got)
}

func TestNotifier_UnsubscribeDuringDelivery(t *testing.T) {
	// A subscriber removing itself must not disturb the current fan-out.
	n := coins.NewNotifier(nil)

	var self coins.Subscription
	var second int
	self = n.SubscribeBalance(func(coins.BalanceChanged) { n.Unsubscribe(self) })
	n.SubscribeBalance(func(coins.BalanceChanged) { second++ })

	n.PublishBalance(coins.BalanceChanged{})
	n.PublishBalance(coins.BalanceChanged{})

	assert.Equal(t, 2, second)
}

func TestNotifier_CouponAndBalanceAreSeparate(t *testing.T) {
	n := coins.NewNotifier(nil)

	var balance, coupon int
	n.SubscribeBalance(func(coins.BalanceChanged) { balance++ })
	n.SubscribeCoupons(func(coins.CouponGenerated) { coupon++ })

	n.PublishCoupon(coins.CouponGenerated{Record: coins.Record{CouponID: "OLA50"}})

	assert.Zero(t, balance)
	assert.Equal(t, 1, coupon)
}
