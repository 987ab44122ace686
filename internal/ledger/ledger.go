// Package ledger implements the pari-mutuel betting core: the market
// registry, bet ledger, lifecycle state machine, settlement arithmetic and
// withdrawal gate. A Ledger is a single sequentially consistent state
// machine: every mutating operation runs as one serialized transaction
// behind the ledger mutex, so no operation ever observes another's
// partially-applied state.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/outcomebet/paribet/internal/domain"
)

const (
	// MaxCreatorFeeBps caps the per-market creator fee at 10%.
	MaxCreatorFeeBps = 1000
	// MaxPlatformFeeBps caps the global platform fee at 10%. Together the
	// two caps keep total fees at most 20% of the losing pool, so the net
	// pool can never go negative.
	MaxPlatformFeeBps = 1000
)

type betKey struct {
	marketID uint64
	account  string
}

// Config carries the constructor parameters for a Ledger.
type Config struct {
	// Admin is the administrative account. It may change fee parameters and
	// manage authorities, and implicitly holds result authority.
	Admin string

	// Treasury is the external custody collaborator. Required.
	Treasury domain.Treasury

	// Authority is an optional external permission set consulted in addition
	// to the ledger's own authority list.
	Authority domain.AuthorityRegistry

	PlatformFeeBps int64
	MinStake       int64
	MinDuration    time.Duration
	FeeRecipient   string

	// Clock overrides time.Now, for tests.
	Clock func() time.Time

	Logger *slog.Logger
}

// Ledger owns all markets, bets and administrative state. It is safe for
// concurrent use.
type Ledger struct {
	mu sync.Mutex

	now       func() time.Time
	treasury  domain.Treasury
	authority domain.AuthorityRegistry
	logger    *slog.Logger

	admin          string
	platformFeeBps int64
	minStake       int64
	minDuration    time.Duration
	feeRecipient   string
	authorities    map[string]bool

	nextID             uint64
	markets            map[uint64]*domain.Market
	bets               map[betKey]*domain.ParticipantBet
	participantMarkets map[string][]uint64
	failedPayouts      map[betKey]*domain.FailedPayout
}

// New constructs an empty Ledger from cfg.
func New(cfg Config) (*Ledger, error) {
	if cfg.Treasury == nil {
		return nil, fmt.Errorf("ledger: treasury is required")
	}
	if cfg.Admin == "" {
		return nil, fmt.Errorf("ledger: admin account is required")
	}
	if cfg.PlatformFeeBps < 0 || cfg.PlatformFeeBps > MaxPlatformFeeBps {
		return nil, fmt.Errorf("ledger: platform fee %d bps out of range [0, %d]: %w",
			cfg.PlatformFeeBps, MaxPlatformFeeBps, domain.ErrFeeTooHigh)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Ledger{
		now:                now,
		treasury:           cfg.Treasury,
		authority:          cfg.Authority,
		logger:             logger.With(slog.String("component", "ledger")),
		admin:              cfg.Admin,
		platformFeeBps:     cfg.PlatformFeeBps,
		minStake:           cfg.MinStake,
		minDuration:        cfg.MinDuration,
		feeRecipient:       cfg.FeeRecipient,
		authorities:        make(map[string]bool),
		nextID:             1,
		markets:            make(map[uint64]*domain.Market),
		bets:               make(map[betKey]*domain.ParticipantBet),
		participantMarkets: make(map[string][]uint64),
		failedPayouts:      make(map[betKey]*domain.FailedPayout),
	}, nil
}

// CreateMarket allocates the next market identifier and registers a new
// Active market. Identifiers are strictly sequential and never reused, even
// across cancelled markets.
func (l *Ledger) CreateMarket(creator, question, description string, duration time.Duration, creatorFeeBps int64) (uint64, error) {
	if question == "" {
		return 0, domain.ErrEmptyQuestion
	}
	if creatorFeeBps < 0 || creatorFeeBps > MaxCreatorFeeBps {
		return 0, fmt.Errorf("creator fee %d bps exceeds %d: %w", creatorFeeBps, MaxCreatorFeeBps, domain.ErrFeeTooHigh)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if duration < l.minDuration {
		return 0, fmt.Errorf("duration %s below minimum %s: %w", duration, l.minDuration, domain.ErrDurationTooShort)
	}

	now := l.now()
	id := l.nextID
	l.nextID++

	l.markets[id] = &domain.Market{
		ID:            id,
		Question:      question,
		Description:   description,
		Creator:       creator,
		CreatedAt:     now,
		EndTime:       now.Add(duration),
		Status:        domain.MarketStatusActive,
		Outcome:       domain.OutcomePending,
		CreatorFeeBps: creatorFeeBps,
	}
	l.participantMarkets[creator] = append(l.participantMarkets[creator], id)

	l.logger.Info("market created",
		slog.Uint64("market_id", id),
		slog.String("creator", creator),
		slog.Int64("creator_fee_bps", creatorFeeBps),
	)
	return id, nil
}

// PlaceBet pulls amount from the participant into custody and credits it to
// the chosen side of the market. The treasury pull happens inside the
// transaction, before any state mutation: if it fails the ledger is left
// untouched, and the credit is atomic with the successful pull.
func (l *Ledger) PlaceBet(ctx context.Context, account string, marketID uint64, side domain.Side, amount int64) error {
	if !side.Valid() {
		return domain.ErrInvalidSide
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.markets[marketID]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotActive
	}
	if !l.now().Before(m.EndTime) {
		return domain.ErrMarketExpired
	}
	if amount < l.minStake {
		return fmt.Errorf("stake %d below minimum %d: %w", amount, l.minStake, domain.ErrBetBelowMinimum)
	}

	if err := l.treasury.TransferIn(ctx, account, amount); err != nil {
		return fmt.Errorf("pull %d from %s: %w: %w", amount, account, domain.ErrTransferFailed, err)
	}

	key := betKey{marketID, account}
	bet, ok := l.bets[key]
	if !ok {
		bet = &domain.ParticipantBet{MarketID: marketID, Account: account}
		l.bets[key] = bet
		m.Participants = append(m.Participants, account)
		l.participantMarkets[account] = append(l.participantMarkets[account], marketID)
	}

	switch side {
	case domain.SideYes:
		bet.YesAmount += amount
		m.YesTotal += amount
	case domain.SideNo:
		bet.NoAmount += amount
		m.NoTotal += amount
	}
	m.Total = m.YesTotal + m.NoTotal

	l.logger.Info("bet placed",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.String("side", string(side)),
		slog.Int64("amount", amount),
	)
	return nil
}

// Resolve declares the market's outcome. The caller must hold result
// authority and the deadline must have passed. Fee amounts are accrued here,
// against the losing pool only; no funds move.
func (l *Ledger) Resolve(caller string, marketID uint64, outcome domain.Outcome) error {
	if !outcome.Valid() {
		return domain.ErrInvalidOutcome
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.isResultAuthority(caller) {
		return domain.ErrUnauthorized
	}
	m, ok := l.markets[marketID]
	if !ok {
		return domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusActive {
		return domain.ErrMarketNotActive
	}
	if l.now().Before(m.EndTime) {
		return domain.ErrDeadlineNotReached
	}

	now := l.now()
	m.Status = domain.MarketStatusResolved
	m.Outcome = outcome
	m.ResolvedAt = &now
	// Snapshot the global rate so later admin changes cannot alter the
	// payouts of an already resolved market.
	m.PlatformFeeBps = l.platformFeeBps

	losing := m.NoTotal
	if outcome == domain.OutcomeNo {
		losing = m.YesTotal
	}
	m.PlatformFeeAccrued = FeeAmount(losing, m.PlatformFeeBps)
	m.CreatorFeeAccrued = FeeAmount(losing, m.CreatorFeeBps)

	l.logger.Info("market resolved",
		slog.Uint64("market_id", marketID),
		slog.String("outcome", string(outcome)),
		slog.Int64("platform_fee", m.PlatformFeeAccrued),
		slog.Int64("creator_fee", m.CreatorFeeAccrued),
	)
	return nil
}

// Cancel voids an Active market and sweeps full refunds to every participant
// who has not withdrawn. Cancellation is allowed before or after the
// deadline, so an expired-but-unresolved market always has an exit path.
//
// The sweep uses skip-and-continue semantics: one participant's failed
// transfer never holds the others' funds hostage. Each refund's withdrawn
// flag is committed before its transfer is attempted; failed transfers are
// recorded as FailedPayouts and reported in the CancelReport.
func (l *Ledger) Cancel(ctx context.Context, caller string, marketID uint64, reason string) (domain.CancelReport, error) {
	type refund struct {
		account string
		amount  int64
	}

	l.mu.Lock()
	if !l.isResultAuthority(caller) {
		l.mu.Unlock()
		return domain.CancelReport{}, domain.ErrUnauthorized
	}
	m, ok := l.markets[marketID]
	if !ok {
		l.mu.Unlock()
		return domain.CancelReport{}, domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusActive {
		l.mu.Unlock()
		return domain.CancelReport{}, domain.ErrMarketNotActive
	}

	m.Status = domain.MarketStatusCancelled
	m.CancelReason = reason

	// Commit every refund's withdrawn flag inside the transaction. The
	// transfers themselves run after the lock is released so a slow or
	// re-entrant treasury cannot stall or re-enter the state machine.
	var refunds []refund
	for _, account := range m.Participants {
		bet := l.bets[betKey{marketID, account}]
		if bet == nil || bet.Withdrawn {
			continue
		}
		amount := bet.Staked()
		if amount == 0 {
			continue
		}
		bet.Withdrawn = true
		refunds = append(refunds, refund{account, amount})
	}
	l.mu.Unlock()

	report := domain.CancelReport{MarketID: marketID}
	for _, r := range refunds {
		if err := l.treasury.TransferOut(ctx, r.account, r.amount); err != nil {
			l.recordFailedPayout(marketID, r.account, r.amount, err)
			report.Failures = append(report.Failures, domain.RefundFailure{
				Account: r.account,
				Amount:  r.amount,
				Err:     err.Error(),
			})
			continue
		}
		report.Refunded++
	}

	l.logger.Info("market cancelled",
		slog.Uint64("market_id", marketID),
		slog.String("reason", reason),
		slog.Int("refunded", report.Refunded),
		slog.Int("failed", len(report.Failures)),
	)
	return report, nil
}

// Withdraw releases the caller's payout from a resolved market. The
// withdrawn flag is committed before the treasury call: a re-entrant or
// concurrent second withdrawal observes the flag and fails with
// ErrAlreadySettled, never a double payment.
//
// If the transfer fails after the flag is set, the entitlement is preserved
// as a FailedPayout and the call returns ErrPayoutPending. The flag is never
// flipped back; release goes through the operator RecoverPayout path.
func (l *Ledger) Withdraw(ctx context.Context, account string, marketID uint64) (int64, error) {
	l.mu.Lock()
	m, ok := l.markets[marketID]
	if !ok {
		l.mu.Unlock()
		return 0, domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusResolved {
		l.mu.Unlock()
		return 0, domain.ErrMarketNotResolved
	}
	bet, ok := l.bets[betKey{marketID, account}]
	if !ok {
		l.mu.Unlock()
		return 0, domain.ErrNoWinnings
	}
	if bet.Withdrawn {
		l.mu.Unlock()
		return 0, domain.ErrAlreadySettled
	}
	payout := Payout(m, bet)
	if payout == 0 {
		l.mu.Unlock()
		return 0, domain.ErrNoWinnings
	}
	bet.Withdrawn = true
	l.mu.Unlock()

	if err := l.treasury.TransferOut(ctx, account, payout); err != nil {
		l.recordFailedPayout(marketID, account, payout, err)
		return 0, fmt.Errorf("pay %d to %s: %w: %w", payout, account, domain.ErrPayoutPending, err)
	}

	l.logger.Info("payout released",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int64("amount", payout),
	)
	return payout, nil
}

// SweepFees moves a resolved market's accrued fees out of custody: the
// platform share to the configured fee recipient and the creator share to
// the market creator. At most once per market; the swept flag is committed
// before the transfers, and failed transfers land in the recovery queue like
// any other payout.
func (l *Ledger) SweepFees(ctx context.Context, caller string, marketID uint64) error {
	l.mu.Lock()
	if caller != l.admin {
		l.mu.Unlock()
		return domain.ErrUnauthorized
	}
	m, ok := l.markets[marketID]
	if !ok {
		l.mu.Unlock()
		return domain.ErrMarketNotFound
	}
	if m.Status != domain.MarketStatusResolved {
		l.mu.Unlock()
		return domain.ErrMarketNotResolved
	}
	if m.FeesSwept {
		l.mu.Unlock()
		return domain.ErrFeesAlreadySwept
	}
	if m.PlatformFeeAccrued > 0 && l.feeRecipient == "" {
		l.mu.Unlock()
		return domain.ErrNoFeeRecipient
	}
	m.FeesSwept = true
	platformShare, creatorShare := m.PlatformFeeAccrued, m.CreatorFeeAccrued
	recipient, creator := l.feeRecipient, m.Creator
	l.mu.Unlock()

	var failed error
	if platformShare > 0 {
		if err := l.treasury.TransferOut(ctx, recipient, platformShare); err != nil {
			l.recordFailedPayout(marketID, recipient, platformShare, err)
			failed = fmt.Errorf("platform fee to %s: %w: %w", recipient, domain.ErrPayoutPending, err)
		}
	}
	if creatorShare > 0 {
		if err := l.treasury.TransferOut(ctx, creator, creatorShare); err != nil {
			l.recordFailedPayout(marketID, creator, creatorShare, err)
			if failed == nil {
				failed = fmt.Errorf("creator fee to %s: %w: %w", creator, domain.ErrPayoutPending, err)
			}
		}
	}
	if failed != nil {
		return failed
	}

	l.logger.Info("fees swept",
		slog.Uint64("market_id", marketID),
		slog.Int64("platform_fee", platformShare),
		slog.Int64("creator_fee", creatorShare),
	)
	return nil
}

// RecoverPayout is the operator remediation path for payouts whose transfer
// failed after their state was committed. It re-issues the transfer and
// clears the record on success. Only the admin may call it.
func (l *Ledger) RecoverPayout(ctx context.Context, caller string, marketID uint64, account string) error {
	l.mu.Lock()
	if caller != l.admin {
		l.mu.Unlock()
		return domain.ErrUnauthorized
	}
	key := betKey{marketID, account}
	fp, ok := l.failedPayouts[key]
	if !ok {
		l.mu.Unlock()
		return domain.ErrNoFailedPayout
	}
	amount := fp.Amount
	l.mu.Unlock()

	if err := l.treasury.TransferOut(ctx, account, amount); err != nil {
		l.mu.Lock()
		fp.Reason = err.Error()
		fp.FailedAt = l.now()
		l.mu.Unlock()
		return fmt.Errorf("recover %d to %s: %w: %w", amount, account, domain.ErrTransferFailed, err)
	}

	// Another transfer may have stacked onto the record while this one was in
	// flight; clear only the amount actually released.
	l.mu.Lock()
	if fp, ok := l.failedPayouts[key]; ok {
		fp.Amount -= amount
		if fp.Amount <= 0 {
			delete(l.failedPayouts, key)
		}
	}
	l.mu.Unlock()

	l.logger.Info("payout recovered",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int64("amount", amount),
	)
	return nil
}

// recordFailedPayout stores the orphaned entitlement for operator recovery.
// An account can owe more than one failed transfer per market (a payout and
// a fee share, say); the amounts stack on one record so no entitlement is
// ever overwritten.
func (l *Ledger) recordFailedPayout(marketID uint64, account string, amount int64, cause error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := betKey{marketID, account}
	if fp, ok := l.failedPayouts[key]; ok {
		fp.Amount += amount
		fp.Reason = cause.Error()
		fp.FailedAt = l.now()
	} else {
		l.failedPayouts[key] = &domain.FailedPayout{
			MarketID: marketID,
			Account:  account,
			Amount:   amount,
			Reason:   cause.Error(),
			FailedAt: l.now(),
		}
	}
	l.logger.Error("payout transfer failed; queued for recovery",
		slog.Uint64("market_id", marketID),
		slog.String("account", account),
		slog.Int64("amount", amount),
		slog.String("error", cause.Error()),
	)
}

// isResultAuthority must be called with the ledger mutex held.
func (l *Ledger) isResultAuthority(account string) bool {
	if account == l.admin || l.authorities[account] {
		return true
	}
	return l.authority != nil && l.authority.IsResultAuthority(account)
}
