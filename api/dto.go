/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the coins domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - Message: WebSocket envelope

TYPES:
  Balance:     BalanceDTO, AccrualDTO
  Catalog:     CatalogEntryDTO
  Redemption:  RedeemRequest, RecordDTO
  Events:      Message, BalanceEventDTO
  Errors:      ErrorResponse

SEE ALSO:
  - handlers.go: Uses these types
  - events.go: WebSocket stream
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/coin-rewards/coins"
)

// =============================================================================
// BALANCE
// =============================================================================

// BalanceDTO is the response of GET /api/balance.
type BalanceDTO struct {
	Balance int64      `json:"balance"`
	Version uint64     `json:"version"`
	Accrual AccrualDTO `json:"accrual"`
}

// AccrualDTO describes the accrual timer. Progress is a decimal string in
// [0, 1] ("0.25") for the "next coin in" bar.
type AccrualDTO struct {
	Running         bool            `json:"running"`
	IntervalSeconds float64         `json:"interval_seconds"`
	Amount          int64           `json:"amount"`
	NextAt          *time.Time      `json:"next_at,omitempty"`
	RemainingMs     int64           `json:"remaining_ms"`
	Progress        decimal.Decimal `json:"progress"`
}

func toAccrualDTO(cfg coins.AccrualConfig, p coins.AccrualProgress) AccrualDTO {
	dto := AccrualDTO{
		Running:         p.Running,
		IntervalSeconds: cfg.Interval.Seconds(),
		Amount:          cfg.Amount,
		RemainingMs:     p.Remaining.Milliseconds(),
		Progress:        p.Fraction,
	}
	if p.Running {
		next := p.NextAt.UTC()
		dto.NextAt = &next
	}
	return dto
}

// =============================================================================
// CATALOG
// =============================================================================

// CatalogEntryDTO is one redeemable coupon type. Affordable reflects the
// balance at the time of the request.
type CatalogEntryDTO struct {
	ID          string `json:"id"`
	Cost        int64  `json:"cost"`
	Description string `json:"description"`
	Affordable  bool   `json:"affordable"`
}

// =============================================================================
// REDEMPTIONS
// =============================================================================

// RedeemRequest is the body of POST /api/redemptions.
type RedeemRequest struct {
	CouponID string `json:"coupon_id"`
}

// RecordDTO is one redeemed coupon.
type RecordDTO struct {
	ID          string    `json:"id"`
	CouponID    string    `json:"coupon_id"`
	Code        string    `json:"code"`
	Cost        int64     `json:"cost"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func toRecordDTO(r coins.Record) RecordDTO {
	return RecordDTO{
		ID:          r.ID,
		CouponID:    r.CouponID,
		Code:        r.Code,
		Cost:        r.Cost,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
	}
}

func toRecordDTOs(recs []coins.Record) []RecordDTO {
	out := make([]RecordDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, toRecordDTO(r))
	}
	return out
}

// =============================================================================
// EVENTS
// =============================================================================

// Event types sent on /api/events.
const (
	EventBalanceChanged  = "balance_changed"
	EventCouponGenerated = "coupon_generated"
)

// Message is the envelope for every WebSocket frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// BalanceEventDTO is the payload of a balance_changed message.
type BalanceEventDTO struct {
	Balance int64     `json:"balance"`
	Delta   int64     `json:"delta"`
	Reason  string    `json:"reason"`
	Version uint64    `json:"version"`
	At      time.Time `json:"at"`
}

func balanceMessage(e coins.BalanceChanged) Message {
	return Message{
		Type: EventBalanceChanged,
		Payload: BalanceEventDTO{
			Balance: e.Balance,
			Delta:   e.Delta,
			Reason:  string(e.Reason),
			Version: e.Version,
			At:      e.At.UTC(),
		},
	}
}

func couponMessage(e coins.CouponGenerated) Message {
	return Message{Type: EventCouponGenerated, Payload: toRecordDTO(e.Record)}
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the body of every non-2xx response. Code is a stable
// machine-readable label (see coins.ErrorKind).
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}
