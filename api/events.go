/*
events.go - WebSocket push of balance and coupon events

PROTOCOL:
  GET /api/events upgrades to a WebSocket. The server sends JSON text
  frames shaped as Message{type, payload}:
    balance_changed   BalanceEventDTO   (first frame is a snapshot)
    coupon_generated  RecordDTO
  Client frames are ignored.

ORDERING:
  Balance events may arrive out of order under concurrent mutations.
  Clients keep the payload with the highest version.

BACKPRESSURE:
  Manager callbacks run on the goroutine that mutated the balance, so they
  must not block. Each connection has a bounded queue; a client that falls
  eventBuffer messages behind is disconnected with StatusPolicyViolation
  and is expected to reconnect (and receive a fresh snapshot).
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/warp/coin-rewards/coins"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	eventBuffer       = 32
	eventWriteTimeout = 5 * time.Second
)

// StreamEvents handles GET /api/events
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		// Accept has already written the HTTP error.
		h.Logger.Debug("websocket upgrade rejected", "error", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	ctx := conn.CloseRead(r.Context())

	q := newEventQueue(eventBuffer)
	balanceSub := h.Manager.SubscribeBalance(func(e coins.BalanceChanged) { q.push(balanceMessage(e)) })
	couponSub := h.Manager.SubscribeCoupons(func(e coins.CouponGenerated) { q.push(couponMessage(e)) })
	defer h.Manager.Unsubscribe(balanceSub)
	defer h.Manager.Unsubscribe(couponSub)

	// Subscribed first so nothing committed after the snapshot is missed.
	q.push(balanceMessage(h.Manager.Snapshot()))

	err = h.pump(ctx, conn, q)
	switch {
	case errors.Is(err, errSlowConsumer):
		h.Logger.Warn("closing slow event subscriber", "remote_addr", r.RemoteAddr)
		conn.Close(websocket.StatusPolicyViolation, "event queue overflow")
	case err != nil && websocket.CloseStatus(err) == -1 && ctx.Err() == nil:
		h.Logger.Debug("event stream write failed", "error", err)
		conn.Close(websocket.StatusInternalError, "stream error")
	}
}

func (h *Handler) pump(ctx context.Context, conn *websocket.Conn, q *eventQueue) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-q.overflow:
			return errSlowConsumer
		case msg := <-q.ch:
			if err := writeMessage(ctx, conn, msg); err != nil {
				return err
			}
		}
	}
}

func writeMessage(ctx context.Context, conn *websocket.Conn, msg Message) error {
	writeCtx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}

var errSlowConsumer = errors.New("event subscriber too slow")

// eventQueue is a bounded, non-blocking mailbox. push never blocks; when the
// queue is full it signals overflow once and drops the message.
type eventQueue struct {
	ch       chan Message
	overflow chan struct{}
	once     sync.Once
}

func newEventQueue(size int) *eventQueue {
	return &eventQueue{
		ch:       make(chan Message, size),
		overflow: make(chan struct{}),
	}
}

func (q *eventQueue) push(m Message) {
	select {
	case q.ch <- m:
	default:
		q.once.Do(func() { close(q.overflow) })
	}
}
