// Package service composes the in-memory betting core with the durability
// and fan-out layers: the Postgres journal, the Redis cache and signal bus,
// the S3 settlement archive, and operator notifications. The core is always
// authoritative; everything else is written through on a best-effort basis
// and replayed into the core on startup.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/outcomebet/paribet/internal/domain"
	"github.com/outcomebet/paribet/internal/ledger"
)

// settleLockTTL bounds how long a replica may hold a market's settlement
// lock. Sweeps finish in well under a second; the TTL only matters if a
// replica dies mid-sweep.
const settleLockTTL = 30 * time.Second

// OperatorNotifier is the slice of the notify package the service uses.
type OperatorNotifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Deps collects the optional backing layers. Any field may be nil; the
// service skips the corresponding write-through. In demo mode everything but
// the core is nil.
type Deps struct {
	Markets  domain.MarketStore
	Bets     domain.BetStore
	Payouts  domain.PayoutStore
	State    domain.StateStore
	Cache    domain.MarketCache
	Bus      domain.SignalBus
	Locks    domain.LockManager
	Archiver domain.SettlementArchiver
	Notifier OperatorNotifier
}

// LedgerService is the transactional facade over the betting core.
type LedgerService struct {
	core   *ledger.Ledger
	deps   Deps
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService around an initialized core.
func NewLedgerService(core *ledger.Ledger, deps Deps, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		core:   core,
		deps:   deps,
		logger: logger.With(slog.String("component", "ledger_service")),
	}
}

// Core exposes the underlying ledger for components that need direct query
// access, such as the demo runner.
func (s *LedgerService) Core() *ledger.Ledger {
	return s.core
}

// Restore replays the journal into an empty core. It is a no-op when no
// journal is configured and tolerates a journal that has never been written.
func (s *LedgerService) Restore(ctx context.Context) error {
	if s.deps.Markets == nil || s.deps.Bets == nil || s.deps.State == nil {
		return nil
	}

	state, err := s.deps.State.Load(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("ledger_service: restore state: %w", err)
	}

	markets, err := s.deps.Markets.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("ledger_service: restore markets: %w", err)
	}
	bets, err := s.deps.Bets.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("ledger_service: restore bets: %w", err)
	}

	var payouts []domain.FailedPayout
	if s.deps.Payouts != nil {
		payouts, err = s.deps.Payouts.ListAll(ctx)
		if err != nil {
			return fmt.Errorf("ledger_service: restore payouts: %w", err)
		}
	}

	if err := s.core.Restore(state, markets, bets, payouts); err != nil {
		return fmt.Errorf("ledger_service: restore: %w", err)
	}

	s.logger.InfoContext(ctx, "journal replayed",
		slog.Int("markets", len(markets)),
		slog.Int("bets", len(bets)),
		slog.Int("failed_payouts", len(payouts)),
	)
	return nil
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

// CreateMarket opens a new market and returns its snapshot.
func (s *LedgerService) CreateMarket(ctx context.Context, creator, question, description string, duration time.Duration, creatorFeeBps int64) (domain.Market, error) {
	id, err := s.core.CreateMarket(creator, question, description, duration, creatorFeeBps)
	if err != nil {
		return domain.Market{}, err
	}

	m, err := s.core.GetMarket(id)
	if err != nil {
		return domain.Market{}, err
	}

	s.journalMarket(ctx, m)
	s.journalState(ctx)
	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventMarketCreated,
		MarketID: id,
		Account:  creator,
	})

	s.logger.InfoContext(ctx, "market created",
		slog.Uint64("market_id", id),
		slog.String("creator", creator),
	)
	return m, nil
}

// PlaceBet stakes amount on a side of the market for account.
func (s *LedgerService) PlaceBet(ctx context.Context, account string, marketID uint64, side domain.Side, amount int64) (domain.Market, error) {
	if err := s.core.PlaceBet(ctx, account, marketID, side, amount); err != nil {
		return domain.Market{}, err
	}

	m, err := s.core.GetMarket(marketID)
	if err != nil {
		return domain.Market{}, err
	}

	s.journalMarket(ctx, m)
	s.journalBet(ctx, marketID, account)
	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventBetPlaced,
		MarketID: marketID,
		Account:  account,
		Side:     side,
		Amount:   amount,
	})

	return m, nil
}

// Resolve settles the market to the given outcome. A distributed lock keeps
// replicas sharing a journal from settling the same market concurrently.
func (s *LedgerService) Resolve(ctx context.Context, caller string, marketID uint64, outcome domain.Outcome) (domain.Market, error) {
	unlock, err := s.acquireSettleLock(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}
	defer unlock()

	if err := s.core.Resolve(caller, marketID, outcome); err != nil {
		return domain.Market{}, err
	}

	m, err := s.core.GetMarket(marketID)
	if err != nil {
		return domain.Market{}, err
	}

	s.journalMarket(ctx, m)
	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventMarketResolved,
		MarketID: marketID,
		Account:  caller,
		Outcome:  outcome,
	})
	s.archiveSettlement(ctx, m)
	s.notify(ctx, domain.EventMarketResolved, "Market resolved",
		fmt.Sprintf("market %d resolved %s (pool %d)", marketID, outcome, m.Total))

	return m, nil
}

// Cancel voids the market and refunds every participant. Individual refund
// failures are reported per-account, journaled, and left for operator
// recovery; they never abort the remaining refunds.
func (s *LedgerService) Cancel(ctx context.Context, caller string, marketID uint64, reason string) (domain.CancelReport, error) {
	unlock, err := s.acquireSettleLock(ctx, marketID)
	if err != nil {
		return domain.CancelReport{}, err
	}
	defer unlock()

	report, err := s.core.Cancel(ctx, caller, marketID, reason)
	if err != nil {
		return domain.CancelReport{}, err
	}

	m, merr := s.core.GetMarket(marketID)
	if merr == nil {
		s.journalMarket(ctx, m)
	}
	for _, account := range m.Participants {
		s.journalBet(ctx, marketID, account)
	}
	for _, f := range report.Failures {
		s.journalFailedPayout(ctx, marketID, f.Account)
	}

	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventMarketCancelled,
		MarketID: marketID,
		Account:  caller,
		Reason:   reason,
	})
	s.archiveSettlement(ctx, m)

	if len(report.Failures) > 0 {
		s.notify(ctx, domain.EventPayoutFailed, "Refunds need recovery",
			fmt.Sprintf("market %d cancelled with %d failed refund(s)", marketID, len(report.Failures)))
	}

	s.logger.InfoContext(ctx, "market cancelled",
		slog.Uint64("market_id", marketID),
		slog.Int("refunded", report.Refunded),
		slog.Int("failures", len(report.Failures)),
	)
	return report, nil
}

// Withdraw releases the account's entitlement from a settled market and
// returns the amount paid.
func (s *LedgerService) Withdraw(ctx context.Context, account string, marketID uint64) (int64, error) {
	amount, err := s.core.Withdraw(ctx, account, marketID)

	// The withdrawn flag commits even when the treasury transfer fails, so
	// the journal must reflect the attempt either way.
	s.journalBet(ctx, marketID, account)

	if err != nil {
		if errors.Is(err, domain.ErrPayoutPending) {
			s.journalFailedPayout(ctx, marketID, account)
			s.publish(ctx, domain.LedgerEvent{
				Type:     domain.EventPayoutFailed,
				MarketID: marketID,
				Account:  account,
			})
			s.notify(ctx, domain.EventPayoutFailed, "Payout failed",
				fmt.Sprintf("market %d payout to %s needs recovery", marketID, account))
		}
		return 0, err
	}

	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventPayoutReleased,
		MarketID: marketID,
		Account:  account,
		Amount:   amount,
	})
	return amount, nil
}

// SweepFees moves a resolved market's accrued fees to the platform fee
// recipient and the market creator.
func (s *LedgerService) SweepFees(ctx context.Context, caller string, marketID uint64) error {
	err := s.core.SweepFees(ctx, caller, marketID)
	if err != nil && !errors.Is(err, domain.ErrPayoutPending) {
		return err
	}

	// The swept flag commits before the fee transfers, so the journal must
	// reflect it even when a transfer fails.
	if m, getErr := s.core.GetMarket(marketID); getErr == nil {
		s.journalMarket(ctx, m)
	}

	if err != nil {
		s.journalMarketPayouts(ctx, marketID)
		s.publish(ctx, domain.LedgerEvent{
			Type:     domain.EventPayoutFailed,
			MarketID: marketID,
		})
		s.notify(ctx, domain.EventPayoutFailed, "Fee sweep failed",
			fmt.Sprintf("market %d fee transfer needs recovery", marketID))
		return err
	}

	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventFeesSwept,
		MarketID: marketID,
		Account:  caller,
	})
	return nil
}

// RecoverPayout retries a failed payout and clears its record on success.
func (s *LedgerService) RecoverPayout(ctx context.Context, caller string, marketID uint64, account string) error {
	if err := s.core.RecoverPayout(ctx, caller, marketID, account); err != nil {
		return err
	}

	if s.deps.Payouts != nil {
		if err := s.deps.Payouts.Delete(ctx, marketID, account); err != nil {
			s.warn(ctx, "payout journal delete failed", marketID, err)
		}
	}
	s.publish(ctx, domain.LedgerEvent{
		Type:     domain.EventPayoutReleased,
		MarketID: marketID,
		Account:  account,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Admin parameters
// ---------------------------------------------------------------------------

// SetPlatformFeeBps updates the platform fee applied to future resolutions.
func (s *LedgerService) SetPlatformFeeBps(ctx context.Context, caller string, bps int64) error {
	if err := s.core.SetPlatformFeeBps(caller, bps); err != nil {
		return err
	}
	s.journalState(ctx)
	return nil
}

// SetMinStake updates the minimum accepted stake.
func (s *LedgerService) SetMinStake(ctx context.Context, caller string, amount int64) error {
	if err := s.core.SetMinStake(caller, amount); err != nil {
		return err
	}
	s.journalState(ctx)
	return nil
}

// SetFeeRecipient updates the platform fee destination.
func (s *LedgerService) SetFeeRecipient(ctx context.Context, caller, account string) error {
	if err := s.core.SetFeeRecipient(caller, account); err != nil {
		return err
	}
	s.journalState(ctx)
	return nil
}

// AddAuthority grants resolve/cancel rights to an account.
func (s *LedgerService) AddAuthority(ctx context.Context, caller, account string) error {
	if err := s.core.AddAuthority(caller, account); err != nil {
		return err
	}
	s.journalState(ctx)
	return nil
}

// RemoveAuthority revokes resolve/cancel rights from an account.
func (s *LedgerService) RemoveAuthority(ctx context.Context, caller, account string) error {
	if err := s.core.RemoveAuthority(caller, account); err != nil {
		return err
	}
	s.journalState(ctx)
	return nil
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// GetMarket returns a market snapshot from the core.
func (s *LedgerService) GetMarket(marketID uint64) (domain.Market, error) {
	return s.core.GetMarket(marketID)
}

// ListMarkets returns market snapshots, optionally filtered by status.
func (s *LedgerService) ListMarkets(status domain.MarketStatus) []domain.Market {
	return s.core.ListMarkets(status)
}

// GetOdds returns a market's implied odds.
func (s *LedgerService) GetOdds(marketID uint64) (domain.Odds, error) {
	return s.core.GetOdds(marketID)
}

// GetBet returns an account's position on a market.
func (s *LedgerService) GetBet(marketID uint64, account string) (domain.ParticipantBet, error) {
	return s.core.GetBet(marketID, account)
}

// ParticipantMarkets returns the ids of markets the account has touched.
func (s *LedgerService) ParticipantMarkets(account string) []uint64 {
	return s.core.ParticipantMarkets(account)
}

// FailedPayouts returns entitlements awaiting operator recovery.
func (s *LedgerService) FailedPayouts() []domain.FailedPayout {
	return s.core.FailedPayouts()
}

// SettlementEntries returns per-participant entitlements for a settled market.
func (s *LedgerService) SettlementEntries(marketID uint64) ([]domain.SettlementEntry, error) {
	return s.core.SettlementEntries(marketID)
}

// State returns the administrative state snapshot.
func (s *LedgerService) State() domain.LedgerState {
	return s.core.State()
}

// ---------------------------------------------------------------------------
// Write-through helpers
// ---------------------------------------------------------------------------

func (s *LedgerService) journalMarket(ctx context.Context, m domain.Market) {
	if s.deps.Markets != nil {
		if err := s.deps.Markets.Upsert(ctx, m); err != nil {
			s.warn(ctx, "market journal write failed", m.ID, err)
		}
	}
	if s.deps.Cache != nil {
		if err := s.deps.Cache.Set(ctx, m); err != nil {
			s.warn(ctx, "cache write failed", m.ID, err)
		}
	}
}

func (s *LedgerService) journalBet(ctx context.Context, marketID uint64, account string) {
	if s.deps.Bets == nil {
		return
	}
	bet, err := s.core.GetBet(marketID, account)
	if err != nil {
		return
	}
	if err := s.deps.Bets.Upsert(ctx, bet); err != nil {
		s.warn(ctx, "bet journal write failed", marketID, err)
	}
}

func (s *LedgerService) journalFailedPayout(ctx context.Context, marketID uint64, account string) {
	if s.deps.Payouts == nil {
		return
	}
	for _, fp := range s.core.FailedPayouts() {
		if fp.MarketID == marketID && fp.Account == account {
			if err := s.deps.Payouts.Upsert(ctx, fp); err != nil {
				s.warn(ctx, "payout journal write failed", marketID, err)
			}
			return
		}
	}
}

// journalMarketPayouts writes every outstanding failed payout of one market,
// used after a fee sweep where either transfer may have failed.
func (s *LedgerService) journalMarketPayouts(ctx context.Context, marketID uint64) {
	if s.deps.Payouts == nil {
		return
	}
	for _, fp := range s.core.FailedPayouts() {
		if fp.MarketID != marketID {
			continue
		}
		if err := s.deps.Payouts.Upsert(ctx, fp); err != nil {
			s.warn(ctx, "payout journal write failed", marketID, err)
		}
	}
}

func (s *LedgerService) journalState(ctx context.Context) {
	if s.deps.State == nil {
		return
	}
	if err := s.deps.State.Save(ctx, s.core.State()); err != nil {
		s.logger.WarnContext(ctx, "state journal write failed",
			slog.String("error", err.Error()),
		)
	}
}

// publish sends the event to the pub/sub channel and appends it to the
// durable stream. Failures are logged, never surfaced: event fan-out is
// best-effort and must not fail a committed ledger mutation.
func (s *LedgerService) publish(ctx context.Context, ev domain.LedgerEvent) {
	if s.deps.Bus == nil {
		return
	}

	ev.ID = uuid.New().String()
	ev.CreatedAt = time.Now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		s.warn(ctx, "event marshal failed", ev.MarketID, err)
		return
	}

	if err := s.deps.Bus.Publish(ctx, domain.ChannelLedger, payload); err != nil {
		s.warn(ctx, "event publish failed", ev.MarketID, err)
	}
	if err := s.deps.Bus.StreamAppend(ctx, domain.StreamLedger, payload); err != nil {
		s.warn(ctx, "event stream append failed", ev.MarketID, err)
	}
}

func (s *LedgerService) archiveSettlement(ctx context.Context, m domain.Market) {
	if s.deps.Archiver == nil {
		return
	}

	entries, err := s.core.SettlementEntries(m.ID)
	if err != nil {
		s.warn(ctx, "settlement entries failed", m.ID, err)
		return
	}

	settledAt := time.Now().UTC()
	if m.ResolvedAt != nil {
		settledAt = *m.ResolvedAt
	}

	report := domain.SettlementReport{
		MarketID:     m.ID,
		Question:     m.Question,
		Status:       m.Status,
		Outcome:      m.Outcome,
		YesTotal:     m.YesTotal,
		NoTotal:      m.NoTotal,
		PlatformFee:  m.PlatformFeeAccrued,
		CreatorFee:   m.CreatorFeeAccrued,
		CancelReason: m.CancelReason,
		SettledAt:    settledAt,
		Entitlements: entries,
	}

	if err := s.deps.Archiver.ArchiveSettlement(ctx, report); err != nil {
		s.warn(ctx, "settlement archive failed", m.ID, err)
	}
}

func (s *LedgerService) notify(ctx context.Context, event, title, message string) {
	if s.deps.Notifier == nil {
		return
	}
	if err := s.deps.Notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// acquireSettleLock takes the distributed settlement lock for a market. With
// no lock manager configured it returns a no-op unlock.
func (s *LedgerService) acquireSettleLock(ctx context.Context, marketID uint64) (func(), error) {
	if s.deps.Locks == nil {
		return func() {}, nil
	}
	unlock, err := s.deps.Locks.Acquire(ctx, fmt.Sprintf("settle:%d", marketID), settleLockTTL)
	if err != nil {
		return nil, err
	}
	return unlock, nil
}

func (s *LedgerService) warn(ctx context.Context, msg string, marketID uint64, err error) {
	s.logger.WarnContext(ctx, msg,
		slog.Uint64("market_id", marketID),
		slog.String("error", err.Error()),
	)
}
