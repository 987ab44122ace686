package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomebet/paribet/internal/domain"
)

// StateStore persists the singleton ledger_state row.
type StateStore struct {
	pool *pgxpool.Pool
}

// NewStateStore creates a new StateStore backed by the given connection pool.
func NewStateStore(pool *pgxpool.Pool) *StateStore {
	return &StateStore{pool: pool}
}

// Save writes the administrative state, replacing any previous row.
func (s *StateStore) Save(ctx context.Context, st domain.LedgerState) error {
	const query = `
		INSERT INTO ledger_state (id, next_market_id, platform_fee_bps, min_stake, fee_recipient, authorities, updated_at)
		VALUES (TRUE, $1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			next_market_id   = EXCLUDED.next_market_id,
			platform_fee_bps = EXCLUDED.platform_fee_bps,
			min_stake        = EXCLUDED.min_stake,
			fee_recipient    = EXCLUDED.fee_recipient,
			authorities      = EXCLUDED.authorities,
			updated_at       = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(st.NextMarketID), st.PlatformFeeBps, st.MinStake, st.FeeRecipient, st.Authorities)
	if err != nil {
		return fmt.Errorf("postgres: save ledger state: %w", err)
	}
	return nil
}

// Load reads the administrative state. Returns domain.ErrNotFound when the
// service has never persisted state before.
func (s *StateStore) Load(ctx context.Context) (domain.LedgerState, error) {
	var (
		st     domain.LedgerState
		nextID int64
	)
	err := s.pool.QueryRow(ctx, `
		SELECT next_market_id, platform_fee_bps, min_stake, fee_recipient, authorities
		FROM ledger_state WHERE id = TRUE`).
		Scan(&nextID, &st.PlatformFeeBps, &st.MinStake, &st.FeeRecipient, &st.Authorities)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LedgerState{}, domain.ErrNotFound
		}
		return domain.LedgerState{}, fmt.Errorf("postgres: load ledger state: %w", err)
	}
	st.NextMarketID = uint64(nextID)
	return st, nil
}

var _ domain.StateStore = (*StateStore)(nil)
