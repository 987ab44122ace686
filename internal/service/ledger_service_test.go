package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outcomebet/paribet/internal/domain"
	"github.com/outcomebet/paribet/internal/ledger"
)

const (
	admin   = "0xadmin"
	alice   = "0xalice"
	bob     = "0xbob"
	feeRcpt = "0xfees"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeTreasury struct {
	failFor map[string]bool
	out     map[string]int64
}

func newFakeTreasury() *fakeTreasury {
	return &fakeTreasury{failFor: make(map[string]bool), out: make(map[string]int64)}
}

func (t *fakeTreasury) TransferIn(ctx context.Context, from string, amount int64) error {
	return nil
}

func (t *fakeTreasury) TransferOut(ctx context.Context, to string, amount int64) error {
	if t.failFor[to] {
		return domain.ErrTransferFailed
	}
	t.out[to] += amount
	return nil
}

type memMarketStore struct {
	rows map[uint64]domain.Market
}

func newMemMarketStore() *memMarketStore {
	return &memMarketStore{rows: make(map[uint64]domain.Market)}
}

func (s *memMarketStore) Upsert(ctx context.Context, m domain.Market) error {
	s.rows[m.ID] = m
	return nil
}

func (s *memMarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	m, ok := s.rows[id]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return m, nil
}

func (s *memMarketStore) ListAll(ctx context.Context) ([]domain.Market, error) {
	out := make([]domain.Market, 0, len(s.rows))
	for _, m := range s.rows {
		out = append(out, m)
	}
	return out, nil
}

func (s *memMarketStore) Count(ctx context.Context) (int64, error) {
	return int64(len(s.rows)), nil
}

type betRowKey struct {
	marketID uint64
	account  string
}

type memBetStore struct {
	rows map[betRowKey]domain.ParticipantBet
}

func newMemBetStore() *memBetStore {
	return &memBetStore{rows: make(map[betRowKey]domain.ParticipantBet)}
}

func (s *memBetStore) Upsert(ctx context.Context, b domain.ParticipantBet) error {
	s.rows[betRowKey{b.MarketID, b.Account}] = b
	return nil
}

func (s *memBetStore) Get(ctx context.Context, marketID uint64, account string) (domain.ParticipantBet, error) {
	b, ok := s.rows[betRowKey{marketID, account}]
	if !ok {
		return domain.ParticipantBet{}, domain.ErrNotFound
	}
	return b, nil
}

func (s *memBetStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.ParticipantBet, error) {
	var out []domain.ParticipantBet
	for k, b := range s.rows {
		if k.marketID == marketID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *memBetStore) ListAll(ctx context.Context) ([]domain.ParticipantBet, error) {
	out := make([]domain.ParticipantBet, 0, len(s.rows))
	for _, b := range s.rows {
		out = append(out, b)
	}
	return out, nil
}

type memPayoutStore struct {
	rows map[betRowKey]domain.FailedPayout
}

func newMemPayoutStore() *memPayoutStore {
	return &memPayoutStore{rows: make(map[betRowKey]domain.FailedPayout)}
}

func (s *memPayoutStore) Upsert(ctx context.Context, p domain.FailedPayout) error {
	s.rows[betRowKey{p.MarketID, p.Account}] = p
	return nil
}

func (s *memPayoutStore) Delete(ctx context.Context, marketID uint64, account string) error {
	delete(s.rows, betRowKey{marketID, account})
	return nil
}

func (s *memPayoutStore) ListAll(ctx context.Context) ([]domain.FailedPayout, error) {
	out := make([]domain.FailedPayout, 0, len(s.rows))
	for _, p := range s.rows {
		out = append(out, p)
	}
	return out, nil
}

type memStateStore struct {
	state domain.LedgerState
	saved bool
}

func (s *memStateStore) Save(ctx context.Context, st domain.LedgerState) error {
	s.state = st
	s.saved = true
	return nil
}

func (s *memStateStore) Load(ctx context.Context) (domain.LedgerState, error) {
	if !s.saved {
		return domain.LedgerState{}, domain.ErrNotFound
	}
	return s.state, nil
}

type memBus struct {
	published []domain.LedgerEvent
	streamed  int
}

func (b *memBus) Publish(ctx context.Context, channel string, payload []byte) error {
	var ev domain.LedgerEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	b.published = append(b.published, ev)
	return nil
}

func (b *memBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte)
	close(ch)
	return ch, nil
}

func (b *memBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	b.streamed++
	return nil
}

type memArchiver struct {
	reports []domain.SettlementReport
}

func (a *memArchiver) ArchiveSettlement(ctx context.Context, report domain.SettlementReport) error {
	a.reports = append(a.reports, report)
	return nil
}

type heldLocks struct{}

func (heldLocks) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	return nil, domain.ErrLockHeld
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

type harness struct {
	svc      *LedgerService
	treasury *fakeTreasury
	markets  *memMarketStore
	bets     *memBetStore
	payouts  *memPayoutStore
	state    *memStateStore
	bus      *memBus
	archiver *memArchiver
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		treasury: newFakeTreasury(),
		markets:  newMemMarketStore(),
		bets:     newMemBetStore(),
		payouts:  newMemPayoutStore(),
		state:    &memStateStore{},
		bus:      &memBus{},
		archiver: &memArchiver{},
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	core, err := ledger.New(ledger.Config{
		Admin:          admin,
		Treasury:       h.treasury,
		PlatformFeeBps: 100,
		MinStake:       10,
		MinDuration:    time.Minute,
		FeeRecipient:   feeRcpt,
		Clock:          func() time.Time { return h.now },
		Logger:         slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	h.svc = NewLedgerService(core, Deps{
		Markets:  h.markets,
		Bets:     h.bets,
		Payouts:  h.payouts,
		State:    h.state,
		Bus:      h.bus,
		Archiver: h.archiver,
	}, slog.New(slog.DiscardHandler))
	return h
}

func (h *harness) eventTypes() []string {
	out := make([]string, 0, len(h.bus.published))
	for _, ev := range h.bus.published {
		out = append(out, ev.Type)
	}
	return out
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestLifecycleJournalsAndEvents(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.CreateMarket(ctx, alice, "Will it rain tomorrow?", "", time.Hour, 300)
	require.NoError(t, err)
	require.Equal(t, uint64(1), m.ID)

	_, err = h.svc.PlaceBet(ctx, alice, m.ID, domain.SideYes, 100)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, bob, m.ID, domain.SideNo, 300)
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	resolved, err := h.svc.Resolve(ctx, admin, m.ID, domain.OutcomeYes)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, resolved.Status)

	amount, err := h.svc.Withdraw(ctx, alice, m.ID)
	require.NoError(t, err)
	// 100 principal + (300 - 3 platform fee - 9 creator fee) net losing pool.
	assert.Equal(t, int64(388), amount)

	require.NoError(t, h.svc.SweepFees(ctx, admin, m.ID))
	assert.Equal(t, int64(3), h.treasury.out[feeRcpt])

	// Journal reflects every mutation.
	jm, err := h.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, jm.Status)
	assert.True(t, jm.FeesSwept)

	jb, err := h.bets.Get(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.True(t, jb.Withdrawn)

	assert.True(t, h.state.saved)
	assert.Equal(t, uint64(2), h.state.state.NextMarketID)

	assert.Equal(t, []string{
		domain.EventMarketCreated,
		domain.EventBetPlaced,
		domain.EventBetPlaced,
		domain.EventMarketResolved,
		domain.EventPayoutReleased,
		domain.EventFeesSwept,
	}, h.eventTypes())
	assert.Equal(t, len(h.bus.published), h.bus.streamed)

	require.Len(t, h.archiver.reports, 1)
	report := h.archiver.reports[0]
	assert.Equal(t, domain.OutcomeYes, report.Outcome)
	assert.Equal(t, int64(3), report.PlatformFee)
	assert.Equal(t, int64(9), report.CreatorFee)
	require.Len(t, report.Entitlements, 2)
}

func TestCancelJournalsRefundFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.CreateMarket(ctx, alice, "Will the launch slip?", "", time.Hour, 0)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, alice, m.ID, domain.SideYes, 100)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, bob, m.ID, domain.SideNo, 200)
	require.NoError(t, err)

	h.treasury.failFor[bob] = true

	report, err := h.svc.Cancel(ctx, admin, m.ID, "venue unavailable")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Refunded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bob, report.Failures[0].Account)

	// The failed refund is journaled for recovery and cleared once recovered.
	journaled, err := h.payouts.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, int64(200), journaled[0].Amount)

	h.treasury.failFor[bob] = false
	require.NoError(t, h.svc.RecoverPayout(ctx, admin, m.ID, bob))
	assert.Equal(t, int64(200), h.treasury.out[bob])

	journaled, err = h.payouts.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, journaled)

	require.Len(t, h.archiver.reports, 1)
	assert.Equal(t, domain.MarketStatusCancelled, h.archiver.reports[0].Status)
}

func TestWithdrawFailureJournalsPayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.CreateMarket(ctx, alice, "Will the bridge reopen?", "", time.Hour, 0)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, alice, m.ID, domain.SideYes, 100)
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	_, err = h.svc.Resolve(ctx, admin, m.ID, domain.OutcomeYes)
	require.NoError(t, err)

	h.treasury.failFor[alice] = true
	_, err = h.svc.Withdraw(ctx, alice, m.ID)
	require.ErrorIs(t, err, domain.ErrPayoutPending)

	// The committed flag reaches the journal even though the transfer failed.
	jb, err := h.bets.Get(ctx, m.ID, alice)
	require.NoError(t, err)
	assert.True(t, jb.Withdrawn)

	journaled, err := h.payouts.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, alice, journaled[0].Account)
}

// A failed fee transfer stacks on an already journaled failed payout for the
// same account; recovery releases the combined amount and clears the row.
func TestSweepFailureStacksJournaledPayout(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.CreateMarket(ctx, alice, "Will the port strike end?", "", time.Hour, 250)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, alice, m.ID, domain.SideYes, 100)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, bob, m.ID, domain.SideNo, 300)
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	_, err = h.svc.Resolve(ctx, admin, m.ID, domain.OutcomeYes)
	require.NoError(t, err)

	// Payout 390 = 100 + (300 - 3 platform fee - 7 creator fee) fails first.
	h.treasury.failFor[alice] = true
	_, err = h.svc.Withdraw(ctx, alice, m.ID)
	require.ErrorIs(t, err, domain.ErrPayoutPending)

	// Then the 7-unit creator fee to the same account fails during the sweep.
	err = h.svc.SweepFees(ctx, admin, m.ID)
	require.ErrorIs(t, err, domain.ErrPayoutPending)
	assert.Equal(t, int64(3), h.treasury.out[feeRcpt])

	// The swept flag reaches the journal, and the journaled entitlement is
	// the combined amount, not the last failure's.
	jm, err := h.markets.GetByID(ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, jm.FeesSwept)

	journaled, err := h.payouts.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, journaled, 1)
	assert.Equal(t, alice, journaled[0].Account)
	assert.Equal(t, int64(397), journaled[0].Amount)

	h.treasury.failFor[alice] = false
	require.NoError(t, h.svc.RecoverPayout(ctx, admin, m.ID, alice))
	assert.Equal(t, int64(397), h.treasury.out[alice])

	journaled, err = h.payouts.ListAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, journaled)
}

func TestRestoreReplaysJournal(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.CreateMarket(ctx, alice, "Will the election pass?", "", time.Hour, 200)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, alice, m.ID, domain.SideYes, 100)
	require.NoError(t, err)
	_, err = h.svc.PlaceBet(ctx, bob, m.ID, domain.SideNo, 300)
	require.NoError(t, err)

	h.now = h.now.Add(2 * time.Hour)
	_, err = h.svc.Resolve(ctx, admin, m.ID, domain.OutcomeYes)
	require.NoError(t, err)

	// Fresh core, same journal.
	core, err := ledger.New(ledger.Config{
		Admin:          admin,
		Treasury:       h.treasury,
		PlatformFeeBps: 100,
		MinStake:       10,
		MinDuration:    time.Minute,
		FeeRecipient:   feeRcpt,
		Clock:          func() time.Time { return h.now },
		Logger:         slog.New(slog.DiscardHandler),
	})
	require.NoError(t, err)

	restored := NewLedgerService(core, Deps{
		Markets: h.markets,
		Bets:    h.bets,
		Payouts: h.payouts,
		State:   h.state,
	}, slog.New(slog.DiscardHandler))
	require.NoError(t, restored.Restore(ctx))

	amount, err := restored.Withdraw(ctx, alice, m.ID)
	require.NoError(t, err)
	// 100 principal + (300 - 3 platform fee - 6 creator fee).
	assert.Equal(t, int64(391), amount)

	id, err := core.CreateMarket(bob, "Will it snow in June?", "", time.Hour, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), id)
}

func TestRestoreWithEmptyJournal(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.svc.Restore(context.Background()))
	assert.Empty(t, h.svc.ListMarkets(""))
}

func TestSettleLockBlocksConcurrentSettlement(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m, err := h.svc.CreateMarket(ctx, alice, "Will the vote pass?", "", time.Hour, 0)
	require.NoError(t, err)

	h.svc.deps.Locks = heldLocks{}

	h.now = h.now.Add(2 * time.Hour)
	_, err = h.svc.Resolve(ctx, admin, m.ID, domain.OutcomeYes)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	_, err = h.svc.Cancel(ctx, admin, m.ID, "stuck")
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	// The market is untouched behind the held lock.
	got, err := h.svc.GetMarket(m.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusActive, got.Status)
}
