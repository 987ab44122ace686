package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomebet/paribet/internal/custody"
	"github.com/outcomebet/paribet/internal/domain"
	"github.com/outcomebet/paribet/internal/ledger"
	"github.com/outcomebet/paribet/internal/server/handler"
	"github.com/outcomebet/paribet/internal/service"
)

const (
	testAdmin   = "admin"
	testAlice   = "alice"
	testBob     = "bob"
	testFeeRcpt = "treasury"
)

// testClock is a manually advanced clock shared with the ledger core.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestServer builds the full handler chain over a real core with an
// in-memory bank and no external infrastructure.
func newTestServer(t *testing.T, apiKey string) (*httptest.Server, *testClock) {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.DiscardHandler)

	core, err := ledger.New(ledger.Config{
		Admin:          testAdmin,
		Treasury:       custody.NewBank(1_000_000),
		PlatformFeeBps: 100,
		MinStake:       10,
		MinDuration:    time.Minute,
		FeeRecipient:   testFeeRcpt,
		Clock:          clock.Now,
		Logger:         logger,
	})
	require.NoError(t, err)

	svc := service.NewLedgerService(core, service.Deps{}, logger)

	handlers := Handlers{
		Health:  handler.NewHealthHandler(logger),
		Markets: handler.NewMarketHandler(svc, logger),
		Bets:    handler.NewBetHandler(svc, logger),
		Settle:  handler.NewSettleHandler(svc, logger),
		Admin:   handler.NewAdminHandler(svc, nil, nil, logger),
	}

	srv := NewServer(Config{Port: 0, APIKey: apiKey}, handlers, nil, nil, logger)

	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts, clock
}

// do issues a request with the given account identity and optional JSON body,
// decoding the response body into out when out is non-nil.
func do(t *testing.T, ts *httptest.Server, method, path, account string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	if account != "" {
		req.Header.Set("X-Account", account)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestMarketLifecycleOverHTTP(t *testing.T) {
	ts, clock := newTestServer(t, "")

	// Open a market with a 2% creator fee.
	var market domain.Market
	status := do(t, ts, http.MethodPost, "/api/markets", testAlice, map[string]any{
		"question":        "Will the canal freeze this winter?",
		"description":     "Official skating route announcement counts.",
		"duration_secs":   3600,
		"creator_fee_bps": 200,
	}, &market)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, uint64(1), market.ID)
	assert.Equal(t, domain.MarketStatusActive, market.Status)
	assert.Equal(t, testAlice, market.Creator)

	// Identity header is mandatory for mutations.
	status = do(t, ts, http.MethodPost, "/api/markets", "", map[string]any{
		"question": "anonymous", "duration_secs": 3600,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	// Unknown market id is a 404.
	status = do(t, ts, http.MethodGet, "/api/markets/99", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Stake both sides.
	var placed struct {
		Market domain.Market         `json:"market"`
		Bet    domain.ParticipantBet `json:"bet"`
	}
	status = do(t, ts, http.MethodPost, "/api/markets/1/bets", testAlice, map[string]any{
		"side": "yes", "amount": 1000,
	}, &placed)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(1000), placed.Bet.YesAmount)

	status = do(t, ts, http.MethodPost, "/api/markets/1/bets", testBob, map[string]any{
		"side": "no", "amount": 3000,
	}, &placed)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, int64(3000), placed.Market.NoTotal)

	// Stakes below the minimum are rejected.
	status = do(t, ts, http.MethodPost, "/api/markets/1/bets", testBob, map[string]any{
		"side": "no", "amount": 5,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	var odds domain.Odds
	status = do(t, ts, http.MethodGet, "/api/markets/1/odds", "", nil, &odds)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(2500), odds.YesBps)
	assert.Equal(t, int64(7500), odds.NoBps)

	// Resolution before the deadline is refused.
	status = do(t, ts, http.MethodPost, "/api/markets/1/resolve", testAdmin, map[string]any{
		"outcome": "yes",
	}, nil)
	assert.Equal(t, http.StatusConflict, status)

	clock.Advance(2 * time.Hour)

	// Only result authorities may resolve.
	status = do(t, ts, http.MethodPost, "/api/markets/1/resolve", testBob, map[string]any{
		"outcome": "yes",
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = do(t, ts, http.MethodPost, "/api/markets/1/resolve", testAdmin, map[string]any{
		"outcome": "yes",
	}, &market)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.MarketStatusResolved, market.Status)
	assert.Equal(t, domain.OutcomeYes, market.Outcome)

	// Losing pool 3000: platform fee 30 (100 bps), creator fee 60 (200 bps),
	// net 2910 goes to the sole winner on top of her 1000 principal.
	var settlements struct {
		MarketID     uint64                   `json:"market_id"`
		Entitlements []domain.SettlementEntry `json:"entitlements"`
	}
	status = do(t, ts, http.MethodGet, "/api/markets/1/settlements", "", nil, &settlements)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, settlements.Entitlements, 2)
	byAccount := map[string]int64{}
	for _, e := range settlements.Entitlements {
		byAccount[e.Account] = e.Payout
	}
	assert.Equal(t, int64(3910), byAccount[testAlice])
	assert.Equal(t, int64(0), byAccount[testBob])

	var withdrawal struct {
		MarketID uint64 `json:"market_id"`
		Account  string `json:"account"`
		Amount   int64  `json:"amount"`
	}
	status = do(t, ts, http.MethodPost, "/api/markets/1/withdraw", testAlice, nil, &withdrawal)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(3910), withdrawal.Amount)

	// The losing side has nothing to withdraw.
	status = do(t, ts, http.MethodPost, "/api/markets/1/withdraw", testBob, nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	status = do(t, ts, http.MethodPost, "/api/markets/1/sweep-fees", testAdmin, nil, nil)
	assert.Equal(t, http.StatusOK, status)
	status = do(t, ts, http.MethodPost, "/api/markets/1/sweep-fees", testAdmin, nil, nil)
	assert.Equal(t, http.StatusConflict, status)

	var listed struct {
		Markets []domain.Market `json:"markets"`
		Total   int             `json:"total"`
	}
	status = do(t, ts, http.MethodGet, "/api/markets?status=resolved", "", nil, &listed)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, listed.Total)

	var accountMarkets struct {
		Account string   `json:"account"`
		Markets []uint64 `json:"markets"`
	}
	status = do(t, ts, http.MethodGet, fmt.Sprintf("/api/accounts/%s/markets", testBob), "", nil, &accountMarkets)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []uint64{1}, accountMarkets.Markets)
}

func TestCancelOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, "")

	var market domain.Market
	status := do(t, ts, http.MethodPost, "/api/markets", testAlice, map[string]any{
		"question": "Will the merger close by Q3?", "duration_secs": 3600,
	}, &market)
	require.Equal(t, http.StatusCreated, status)

	status = do(t, ts, http.MethodPost, "/api/markets/1/bets", testBob, map[string]any{
		"side": "yes", "amount": 500,
	}, nil)
	require.Equal(t, http.StatusCreated, status)

	// Non-authorities may not cancel.
	status = do(t, ts, http.MethodPost, "/api/markets/1/cancel", testBob, map[string]any{
		"reason": "nope",
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	var report domain.CancelReport
	status = do(t, ts, http.MethodPost, "/api/markets/1/cancel", testAdmin, map[string]any{
		"reason": "deal terms were never published",
	}, &report)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, report.Refunded)
	assert.Empty(t, report.Failures)

	status = do(t, ts, http.MethodGet, "/api/markets/1", "", nil, &market)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, domain.MarketStatusCancelled, market.Status)
}

func TestAdminEndpointsOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t, "")

	var state struct {
		NextMarketID   uint64   `json:"next_market_id"`
		PlatformFeeBps int64    `json:"platform_fee_bps"`
		Authorities    []string `json:"authorities"`
	}
	status := do(t, ts, http.MethodGet, "/api/admin/state", testAdmin, nil, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(100), state.PlatformFeeBps)

	// Parameter changes are admin-only.
	status = do(t, ts, http.MethodPut, "/api/admin/params", testBob, map[string]any{
		"platform_fee_bps": 500,
	}, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status = do(t, ts, http.MethodPost, "/api/admin/authorities", testAdmin, map[string]any{
		"account": "oracle",
	}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = do(t, ts, http.MethodGet, "/api/admin/state", testAdmin, nil, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, state.Authorities, "oracle")

	status = do(t, ts, http.MethodDelete, "/api/admin/authorities/oracle", testAdmin, nil, nil)
	assert.Equal(t, http.StatusOK, status)

	status = do(t, ts, http.MethodPut, "/api/admin/params", testAdmin, map[string]any{
		"platform_fee_bps": 250,
	}, nil)
	assert.Equal(t, http.StatusOK, status)

	status = do(t, ts, http.MethodGet, "/api/admin/state", testAdmin, nil, &state)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, int64(250), state.PlatformFeeBps)

	// Journal export and event history need infrastructure that is not wired
	// in this configuration.
	status = do(t, ts, http.MethodPost, "/api/admin/export", testAdmin, nil, nil)
	assert.Equal(t, http.StatusNotImplemented, status)
	status = do(t, ts, http.MethodGet, "/api/admin/events", testAdmin, nil, nil)
	assert.Equal(t, http.StatusNotImplemented, status)
}

func TestAPIKeyAuth(t *testing.T) {
	ts, _ := newTestServer(t, "s3cret")

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/health", nil)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("X-API-Key", "wrong")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("X-API-Key", "s3cret")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req.Header.Del("X-API-Key")
	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = ts.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
