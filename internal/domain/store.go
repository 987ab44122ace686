package domain

import "context"

// MarketStore journals market snapshots. The in-memory ledger is
// authoritative; the store exists for durability and historical query, and
// is replayed into the ledger on startup.
type MarketStore interface {
	Upsert(ctx context.Context, m Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	ListAll(ctx context.Context) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore journals participant bet records.
type BetStore interface {
	Upsert(ctx context.Context, b ParticipantBet) error
	Get(ctx context.Context, marketID uint64, account string) (ParticipantBet, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]ParticipantBet, error)
	ListAll(ctx context.Context) ([]ParticipantBet, error)
}

// PayoutStore journals failed payouts awaiting operator recovery.
type PayoutStore interface {
	Upsert(ctx context.Context, p FailedPayout) error
	Delete(ctx context.Context, marketID uint64, account string) error
	ListAll(ctx context.Context) ([]FailedPayout, error)
}

// StateStore persists the single ledger_state row (identifier counter and
// administrative parameters).
type StateStore interface {
	Save(ctx context.Context, s LedgerState) error
	Load(ctx context.Context) (LedgerState, error)
}
