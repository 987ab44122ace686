package ledger

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/outcomebet/paribet/internal/domain"
)

// Restore replays journaled state into a freshly constructed ledger. It must
// be called before the ledger serves any operation; restoring a ledger that
// has already allocated markets is an error.
func (l *Ledger) Restore(state domain.LedgerState, markets []domain.Market, bets []domain.ParticipantBet, payouts []domain.FailedPayout) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.markets) != 0 {
		return fmt.Errorf("ledger: restore on a non-empty ledger")
	}

	if state.NextMarketID > 0 {
		l.nextID = state.NextMarketID
	}
	if state.PlatformFeeBps > 0 {
		if state.PlatformFeeBps > MaxPlatformFeeBps {
			return fmt.Errorf("ledger: restored platform fee %d bps: %w", state.PlatformFeeBps, domain.ErrFeeTooHigh)
		}
		l.platformFeeBps = state.PlatformFeeBps
	}
	if state.MinStake > 0 {
		l.minStake = state.MinStake
	}
	if state.FeeRecipient != "" {
		l.feeRecipient = state.FeeRecipient
	}
	for _, a := range state.Authorities {
		l.authorities[a] = true
	}

	sort.Slice(markets, func(i, j int) bool { return markets[i].ID < markets[j].ID })
	for _, m := range markets {
		if m.ID >= l.nextID {
			l.nextID = m.ID + 1
		}
		stored := snapshotMarket(&m)
		l.markets[m.ID] = &stored
		l.participantMarkets[m.Creator] = append(l.participantMarkets[m.Creator], m.ID)
	}

	// Rebuild the per-participant index from bets in market order; journal
	// rows carry no first-touch ordering.
	sort.Slice(bets, func(i, j int) bool { return bets[i].MarketID < bets[j].MarketID })
	for _, b := range bets {
		m, ok := l.markets[b.MarketID]
		if !ok {
			return fmt.Errorf("ledger: bet journal references unknown market %d", b.MarketID)
		}
		bet := b
		l.bets[betKey{b.MarketID, b.Account}] = &bet
		if b.Account != m.Creator {
			l.participantMarkets[b.Account] = append(l.participantMarkets[b.Account], b.MarketID)
		}
	}

	for _, p := range payouts {
		fp := p
		l.failedPayouts[betKey{p.MarketID, p.Account}] = &fp
	}

	l.logger.Info("ledger restored",
		slog.Int("markets", len(markets)),
		slog.Int("bets", len(bets)),
		slog.Int("failed_payouts", len(payouts)),
		slog.Uint64("next_market_id", l.nextID),
	)
	return nil
}
