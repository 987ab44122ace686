package ledger

import (
	"sort"

	"github.com/outcomebet/paribet/internal/domain"
)

// GetMarket returns a snapshot of the market. The returned value shares no
// mutable state with the ledger.
func (l *Ledger) GetMarket(marketID uint64) (domain.Market, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.markets[marketID]
	if !ok {
		return domain.Market{}, domain.ErrMarketNotFound
	}
	return snapshotMarket(m), nil
}

// ListMarkets returns snapshots of every market ordered by identifier. When
// status is non-empty only markets in that state are returned.
func (l *Ledger) ListMarkets(status domain.MarketStatus) []domain.Market {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.Market, 0, len(l.markets))
	for _, m := range l.markets {
		if status != "" && m.Status != status {
			continue
		}
		out = append(out, snapshotMarket(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetBet returns the participant's bet record for a market. A participant
// who never staked gets a zero-valued record, mirroring its implicit
// creation on first stake.
func (l *Ledger) GetBet(marketID uint64, account string) (domain.ParticipantBet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.markets[marketID]; !ok {
		return domain.ParticipantBet{}, domain.ErrMarketNotFound
	}
	if bet, ok := l.bets[betKey{marketID, account}]; ok {
		return *bet, nil
	}
	return domain.ParticipantBet{MarketID: marketID, Account: account}, nil
}

// GetOdds returns the market's current implied odds.
func (l *Ledger) GetOdds(marketID uint64) (domain.Odds, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.markets[marketID]
	if !ok {
		return domain.Odds{}, domain.ErrMarketNotFound
	}
	return OddsOf(m.YesTotal, m.NoTotal), nil
}

// ParticipantMarkets returns the ids of every market the account has touched
// (created or staked in), in first-touch order.
func (l *Ledger) ParticipantMarkets(account string) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	ids := l.participantMarkets[account]
	out := make([]uint64, len(ids))
	copy(out, ids)
	return out
}

// MarketCount returns the number of markets ever created.
func (l *Ledger) MarketCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nextID - 1
}

// FailedPayouts lists entitlements awaiting operator recovery, ordered by
// market then account.
func (l *Ledger) FailedPayouts() []domain.FailedPayout {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]domain.FailedPayout, 0, len(l.failedPayouts))
	for _, fp := range l.failedPayouts {
		out = append(out, *fp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].MarketID != out[j].MarketID {
			return out[i].MarketID < out[j].MarketID
		}
		return out[i].Account < out[j].Account
	})
	return out
}

// SettlementEntries builds the per-participant entitlement lines for a
// settled market: computed payouts for a resolved market, full refunds for a
// cancelled one. It fails while the market is still Active.
func (l *Ledger) SettlementEntries(marketID uint64) ([]domain.SettlementEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.markets[marketID]
	if !ok {
		return nil, domain.ErrMarketNotFound
	}
	if m.Status == domain.MarketStatusActive {
		return nil, domain.ErrMarketNotResolved
	}

	entries := make([]domain.SettlementEntry, 0, len(m.Participants))
	for _, account := range m.Participants {
		bet := l.bets[betKey{marketID, account}]
		if bet == nil {
			continue
		}
		entry := domain.SettlementEntry{
			Account:   account,
			YesAmount: bet.YesAmount,
			NoAmount:  bet.NoAmount,
		}
		if m.Status == domain.MarketStatusResolved {
			entry.Payout = Payout(m, bet)
		} else {
			entry.Payout = Refund(bet)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// State snapshots the administrative state for persistence.
func (l *Ledger) State() domain.LedgerState {
	l.mu.Lock()
	defer l.mu.Unlock()

	auths := make([]string, 0, len(l.authorities))
	for a := range l.authorities {
		auths = append(auths, a)
	}
	sort.Strings(auths)

	return domain.LedgerState{
		NextMarketID:   l.nextID,
		PlatformFeeBps: l.platformFeeBps,
		MinStake:       l.minStake,
		FeeRecipient:   l.feeRecipient,
		Authorities:    auths,
	}
}

func snapshotMarket(m *domain.Market) domain.Market {
	out := *m
	out.Participants = make([]string, len(m.Participants))
	copy(out.Participants, m.Participants)
	if m.ResolvedAt != nil {
		t := *m.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}
