package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/outcomebet/paribet/internal/domain"
)

// AdminService defines the methods the admin handler requires from the
// service layer.
type AdminService interface {
	State() domain.LedgerState
	SetPlatformFeeBps(ctx context.Context, caller string, bps int64) error
	SetMinStake(ctx context.Context, caller string, amount int64) error
	SetFeeRecipient(ctx context.Context, caller, account string) error
	AddAuthority(ctx context.Context, caller, account string) error
	RemoveAuthority(ctx context.Context, caller, account string) error
	FailedPayouts() []domain.FailedPayout
	RecoverPayout(ctx context.Context, caller string, marketID uint64, account string) error
}

// LedgerExporter dumps the journal to blob storage for operator backups.
type LedgerExporter interface {
	ExportLedger(ctx context.Context, now time.Time) (int64, error)
}

// AdminHandler serves operator endpoints: ledger parameters, authority
// management, payout recovery, event history and journal export. The service
// layer enforces that the caller is the admin account.
type AdminHandler struct {
	admin    AdminService
	exporter LedgerExporter      // optional
	events   domain.StreamReader // optional
	logger   *slog.Logger
}

// NewAdminHandler creates an AdminHandler. exporter and events may be nil
// when the deployment runs without S3 or Redis; the corresponding endpoints
// then return 501.
func NewAdminHandler(admin AdminService, exporter LedgerExporter, events domain.StreamReader, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		admin:    admin,
		exporter: exporter,
		events:   events,
		logger:   logger,
	}
}

// GetState returns the administrative state snapshot.
// GET /api/admin/state
func (h *AdminHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.admin.State())
}

// updateParamsRequest carries optional parameter updates; only the fields
// present in the body are applied.
type updateParamsRequest struct {
	PlatformFeeBps *int64  `json:"platform_fee_bps"`
	MinStake       *int64  `json:"min_stake"`
	FeeRecipient   *string `json:"fee_recipient"`
}

// UpdateParams applies the parameter updates present in the request body.
// PUT /api/admin/params
func (h *AdminHandler) UpdateParams(w http.ResponseWriter, r *http.Request) {
	caller := accountFrom(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	var req updateParamsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.PlatformFeeBps != nil {
		if err := h.admin.SetPlatformFeeBps(r.Context(), caller, *req.PlatformFeeBps); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.MinStake != nil {
		if err := h.admin.SetMinStake(r.Context(), caller, *req.MinStake); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	if req.FeeRecipient != nil {
		if err := h.admin.SetFeeRecipient(r.Context(), caller, *req.FeeRecipient); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.admin.State())
}

// authorityRequest names an account to grant or revoke.
type authorityRequest struct {
	Account string `json:"account"`
}

// AddAuthority grants result authority to an account.
// POST /api/admin/authorities
func (h *AdminHandler) AddAuthority(w http.ResponseWriter, r *http.Request) {
	caller := accountFrom(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	var req authorityRequest
	if err := decodeBody(r, &req); err != nil || req.Account == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.admin.AddAuthority(r.Context(), caller, req.Account); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.admin.State())
}

// RemoveAuthority revokes result authority from an account.
// DELETE /api/admin/authorities/{account}
func (h *AdminHandler) RemoveAuthority(w http.ResponseWriter, r *http.Request) {
	caller := accountFrom(r)
	if caller == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	if err := h.admin.RemoveAuthority(r.Context(), caller, account); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.admin.State())
}

// ListFailedPayouts returns entitlements awaiting recovery.
// GET /api/admin/failed-payouts
func (h *AdminHandler) ListFailedPayouts(w http.ResponseWriter, r *http.Request) {
	payouts := h.admin.FailedPayouts()
	if payouts == nil {
		payouts = []domain.FailedPayout{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"failed_payouts": payouts})
}

// RecoverPayout retries a failed payout.
// POST /api/admin/markets/{id}/recover
func (h *AdminHandler) RecoverPayout(w http.ResponseWriter, r *http.Request) {
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

	var req authorityRequest
	if err := decodeBody(r, &req); err != nil || req.Account == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.admin.RecoverPayout(r.Context(), caller, id, req.Account); err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id": id,
		"account":   req.Account,
		"recovered": true,
	})
}

// ExportLedger dumps the journal to blob storage.
// POST /api/admin/export
func (h *AdminHandler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeError(w, http.StatusNotImplemented, "export requires blob storage")
		return
	}

	count, err := h.exporter.ExportLedger(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: ledger export failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "export failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"records": count})
}

// eventEntry is one decoded entry of the durable event stream.
type eventEntry struct {
	StreamID string             `json:"stream_id"`
	Event    domain.LedgerEvent `json:"event"`
}

// EventHistory reads the durable event stream.
// GET /api/admin/events?last_id=0&count=100
func (h *AdminHandler) EventHistory(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		writeError(w, http.StatusNotImplemented, "event history requires redis")
		return
	}

	lastID := r.URL.Query().Get("last_id")
	if lastID == "" {
		lastID = "0"
	}
	count := 100
	if v := r.URL.Query().Get("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			count = n
		}
	}

	messages, err := h.events.StreamRead(r.Context(), domain.StreamLedger, lastID, count)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: event history read failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "event history read failed")
		return
	}

	entries := make([]eventEntry, 0, len(messages))
	for _, msg := range messages {
		var ev domain.LedgerEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			continue
		}
		entries = append(entries, eventEntry{StreamID: msg.ID, Event: ev})
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": entries})
}
