package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/outcomebet/paribet/internal/domain"
)

// BetService defines the methods the bet handler requires from the service
// layer.
type BetService interface {
	PlaceBet(ctx context.Context, account string, marketID uint64, side domain.Side, amount int64) (domain.Market, error)
	GetBet(marketID uint64, account string) (domain.ParticipantBet, error)
	Withdraw(ctx context.Context, account string, marketID uint64) (int64, error)
}

// BetHandler serves staking and withdrawal endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body for staking on a market.
type placeBetRequest struct {
	Side   domain.Side `json:"side"`
	Amount int64       `json:"amount"`
}

// placeBetResponse returns the updated pools alongside the caller's position.
type placeBetResponse struct {
	Market domain.Market         `json:"market"`
	Bet    domain.ParticipantBet `json:"bet"`
}

// PlaceBet stakes an amount on one side of a market for the calling account.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeBetRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.bets.PlaceBet(r.Context(), account, id, req.Side, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	bet, err := h.bets.GetBet(id, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, placeBetResponse{Market: m, Bet: bet})
}

// GetBet returns the calling account's position on a market. Accounts that
// never staked get a zero-valued position.
// GET /api/markets/{id}/bets
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	bet, err := h.bets.GetBet(id, account)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, bet)
}

// withdrawResponse reports the released amount.
type withdrawResponse struct {
	MarketID uint64 `json:"market_id"`
	Account  string `json:"account"`
	Amount   int64  `json:"amount"`
}

// Withdraw releases the calling account's entitlement from a settled market.
// POST /api/markets/{id}/withdraw
func (h *BetHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	account := accountFrom(r)
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	amount, err := h.bets.Withdraw(r.Context(), account, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, withdrawResponse{
		MarketID: id,
		Account:  account,
		Amount:   amount,
	})
}
