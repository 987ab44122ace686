package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/outcomebet/paribet/internal/domain"
)

// SettleService defines the methods the settlement handler requires from the
// service layer.
type SettleService interface {
	Resolve(ctx context.Context, caller string, marketID uint64, outcome domain.Outcome) (domain.Market, error)
	Cancel(ctx context.Context, caller string, marketID uint64, reason string) (domain.CancelReport, error)
	SweepFees(ctx context.Context, caller string, marketID uint64) error
	SettlementEntries(marketID uint64) ([]domain.SettlementEntry, error)
}

// SettleHandler serves market settlement endpoints. All mutations require the
// caller to hold result authority; the service enforces that.
type SettleHandler struct {
	settle SettleService
	logger *slog.Logger
}

// NewSettleHandler creates a SettleHandler with the given service and logger.
func NewSettleHandler(settle SettleService, logger *slog.Logger) *SettleHandler {
	return &SettleHandler{
		settle: settle,
		logger: logger,
	}
}

// resolveRequest is the JSON body for declaring a market outcome.
type resolveRequest struct {
	Outcome domain.Outcome `json:"outcome"`
}

// Resolve declares the market outcome.
// POST /api/markets/{id}/resolve
func (h *SettleHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	caller := accountFrom(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.settle.Resolve(r.Context(), caller, id, req.Outcome)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// cancelRequest is the JSON body for voiding a market.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel voids the market and refunds every participant.
// POST /api/markets/{id}/cancel
func (h *SettleHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	caller := accountFrom(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.settle.Cancel(r.Context(), caller, id, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// Partial refund failure is still a successful cancellation; the report
	// carries the accounts that need operator recovery.
	status := http.StatusOK
	if len(report.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, report)
}

// SweepFees moves a resolved market's accrued fees to their recipients.
// POST /api/markets/{id}/sweep-fees
func (h *SettleHandler) SweepFees(w http.ResponseWriter, r *http.Request) {
	caller := accountFrom(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	if err := h.settle.SweepFees(r.Context(), caller, id); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": id, "swept": true})
}

// settlementsResponse lists per-participant entitlements for a settled market.
type settlementsResponse struct {
	MarketID     uint64                   `json:"market_id"`
	Entitlements []domain.SettlementEntry `json:"entitlements"`
}

// Settlements returns the entitlement lines of a settled market: payouts for
// a resolved market, refunds for a cancelled one.
// GET /api/markets/{id}/settlements
func (h *SettleHandler) Settlements(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	entries, err := h.settle.SettlementEntries(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settlementsResponse{
		MarketID:     id,
		Entitlements: entries,
	})
}
