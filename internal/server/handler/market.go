package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/outcomebet/paribet/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, creator, question, description string, duration time.Duration, creatorFeeBps int64) (domain.Market, error)
	GetMarket(marketID uint64) (domain.Market, error)
	ListMarkets(status domain.MarketStatus) []domain.Market
	GetOdds(marketID uint64) (domain.Odds, error)
	ParticipantMarkets(account string) []uint64
}

// MarketHandler serves market-related HTTP endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// createMarketRequest is the JSON body for opening a market.
type createMarketRequest struct {
	Question      string `json:"question"`
	Description   string `json:"description"`
	DurationSecs  int64  `json:"duration_secs"`
	CreatorFeeBps int64  `json:"creator_fee_bps"`
}

// CreateMarket opens a new market for the calling account.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	creator := accountFrom(r)
	if creator == "" {
		writeError(w, http.StatusBadRequest, "missing X-Account header")
		return
	}

	var req createMarketRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := h.markets.CreateMarket(r.Context(), creator, req.Question, req.Description,
		time.Duration(req.DurationSecs)*time.Second, req.CreatorFeeBps)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, m)
}

// listMarketsResponse wraps the list endpoint output with metadata.
type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Total   int             `json:"total"`
}

// ListMarkets returns all markets, optionally filtered by status.
// GET /api/markets?status=active
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	status := domain.MarketStatus(r.URL.Query().Get("status"))

	markets := h.markets.ListMarkets(status)

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Total:   len(markets),
	})
}

// GetMarket returns a single market by its identifier.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	m, err := h.markets.GetMarket(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, m)
}

// GetOdds returns a market's implied odds in basis points.
// GET /api/markets/{id}/odds
func (h *MarketHandler) GetOdds(w http.ResponseWriter, r *http.Request) {
	id, err := marketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	odds, err := h.markets.GetOdds(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, odds)
}

// accountMarketsResponse lists the markets an account has touched.
type accountMarketsResponse struct {
	Account string   `json:"account"`
	Markets []uint64 `json:"markets"`
}

// AccountMarkets returns the ids of markets an account created or staked in.
// GET /api/accounts/{account}/markets
func (h *MarketHandler) AccountMarkets(w http.ResponseWriter, r *http.Request) {
	account := r.PathValue("account")
	if account == "" {
		writeError(w, http.StatusBadRequest, "missing account")
		return
	}

	ids := h.markets.ParticipantMarkets(account)
	if ids == nil {
		ids = []uint64{}
	}

	writeJSON(w, http.StatusOK, accountMarketsResponse{
		Account: account,
		Markets: ids,
	})
}
