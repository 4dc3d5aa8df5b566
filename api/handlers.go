/*
handlers.go - HTTP API handlers for the coin engine

PURPOSE:
  Exposes coins.Manager to the browser UI over REST. Handles HTTP
  request/response and JSON serialization and delegates everything else to
  the manager.

ENDPOINTS:
  Balance:
    GET    /api/balance            Balance, version and accrual progress
    POST   /api/accrual/start      Arm the accrual timer (catch-up if due)
    POST   /api/accrual/stop       Disarm the timer and flush

  Catalog:
    GET    /api/catalog            Coupon types with affordability

  Redemptions:
    POST   /api/redemptions        Redeem {"coupon_id": "..."}
    GET    /api/redemptions        History, newest first
    DELETE /api/redemptions        Clear history (balance untouched)

  Events:
    GET    /api/events             WebSocket stream (see events.go)

  Health:
    GET    /api/health             Store reachability

ERROR HANDLING:
  Errors are returned as JSON with a status from coins.ErrorKind:
  - 400: Malformed request body
  - 404: Unknown coupon
  - 409: Insufficient balance
  - 500: Storage failure or rolled-back redemption

SECURITY NOTE:
  No authentication. The server is meant to listen on loopback for the
  local browser UI only.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/warp/coin-rewards/coins"
	"github.com/warp/coin-rewards/metrics"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager *coins.Manager
	Metrics *metrics.Recorder // optional
	Health  Pinger            // optional
	Logger  *slog.Logger

	// OriginPatterns for WebSocket upgrades (nhooyr.io/websocket syntax).
	OriginPatterns []string
}

// NewHandler creates a handler for mgr. rec may be nil.
func NewHandler(mgr *coins.Manager, rec *metrics.Recorder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Manager: mgr,
		Metrics: rec,
		Logger:  logger.With("component", "api"),
	}
}

// =============================================================================
// BALANCE HANDLERS
// =============================================================================

// GetBalance handles GET /api/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	snap := h.Manager.Snapshot()
	writeJSON(w, http.StatusOK, BalanceDTO{
		Balance: snap.Balance,
		Version: snap.Version,
		Accrual: h.accrualDTO(),
	})
}

// StartAccrual handles POST /api/accrual/start
func (h *Handler) StartAccrual(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.StartAccrual(r.Context()); err != nil {
		h.writeCoinsError(w, "failed to start accrual", err)
		return
	}
	h.Metrics.ObserveAccrualRunning(true)
	writeJSON(w, http.StatusOK, h.accrualDTO())
}

// StopAccrual handles POST /api/accrual/stop
//
// The timer is stopped even when the flush fails; the error is still
// reported so the UI can warn that the last coins may not be on disk.
func (h *Handler) StopAccrual(w http.ResponseWriter, r *http.Request) {
	err := h.Manager.StopAccrual(r.Context())
	h.Metrics.ObserveAccrualRunning(h.Manager.AccrualRunning())
	if err != nil {
		h.writeCoinsError(w, "accrual stopped but balance not flushed", err)
		return
	}
	writeJSON(w, http.StatusOK, h.accrualDTO())
}

func (h *Handler) accrualDTO() AccrualDTO {
	return toAccrualDTO(h.Manager.AccrualConfig(), h.Manager.AccrualProgress())
}

// =============================================================================
// CATALOG HANDLERS
// =============================================================================

// ListCatalog handles GET /api/catalog
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	balance := h.Manager.Balance()
	entries := h.Manager.Catalog()

	result := make([]CatalogEntryDTO, 0, len(entries))
	for _, e := range entries {
		result = append(result, CatalogEntryDTO{
			ID:          e.ID,
			Cost:        e.Cost,
			Description: e.Description,
			Affordable:  e.Cost <= balance,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

// =============================================================================
// REDEMPTION HANDLERS
// =============================================================================

// Redeem handles POST /api/redemptions
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "", err)
		return
	}
	req.CouponID = strings.TrimSpace(req.CouponID)
	if req.CouponID == "" {
		writeError(w, http.StatusBadRequest, "coupon_id is required", "", nil)
		return
	}

	rec, err := h.Manager.Redeem(r.Context(), req.CouponID)
	if err != nil {
		h.Metrics.ObserveRedeemError(err)
		h.writeCoinsError(w, "redemption rejected", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// ListRedemptions handles GET /api/redemptions
func (h *Handler) ListRedemptions(w http.ResponseWriter, r *http.Request) {
	recs, err := h.Manager.History(r.Context())
	if err != nil {
		h.writeCoinsError(w, "failed to list redemptions", err)
		return
	}
	writeJSON(w, http.StatusOK, toRecordDTOs(recs))
}

// ClearRedemptions handles DELETE /api/redemptions
func (h *Handler) ClearRedemptions(w http.ResponseWriter, r *http.Request) {
	if err := h.Manager.ClearHistory(r.Context()); err != nil {
		h.writeCoinsError(w, "failed to clear redemptions", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// HEALTH
// =============================================================================

// HealthCheck handles GET /api/health
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	if h.Health != nil {
		if err := h.Health.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "store unavailable", "storage", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeCoinsError maps a coins error onto an HTTP status.
func (h *Handler) writeCoinsError(w http.ResponseWriter, message string, err error) {
	kind := coins.ErrorKind(err)
	status := statusForKind(kind)
	if status >= 500 {
		h.Logger.Error(message, "kind", kind, "error", err)
	}

	var ibe *coins.InsufficientBalanceError
	if errors.As(err, &ibe) {
		writeJSON(w, status, struct {
			ErrorResponse
			Available int64 `json:"available"`
			Requested int64 `json:"requested"`
		}{
			ErrorResponse: ErrorResponse{Error: message, Code: kind, Details: err.Error()},
			Available:     ibe.Available,
			Requested:     ibe.Requested,
		})
		return
	}
	writeError(w, status, message, kind, err)
}

func statusForKind(kind string) int {
	switch kind {
	case "unknown_coupon":
		return http.StatusNotFound
	case "insufficient_balance":
		return http.StatusConflict
	case "invalid_amount":
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
