package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomebet/paribet/internal/domain"
)

// PayoutStore implements domain.PayoutStore using PostgreSQL. It journals
// transfers that were committed on the ledger but failed at the treasury, so
// operators can retry them after a restart.
type PayoutStore struct {
	pool *pgxpool.Pool
}

// NewPayoutStore creates a new PayoutStore backed by the given connection pool.
func NewPayoutStore(pool *pgxpool.Pool) *PayoutStore {
	return &PayoutStore{pool: pool}
}

// Upsert records a failed payout, keeping the most recent failure reason.
func (s *PayoutStore) Upsert(ctx context.Context, p domain.FailedPayout) error {
	const query = `
		INSERT INTO failed_payouts (market_id, account, amount, reason, failed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (market_id, account) DO UPDATE SET
			amount    = EXCLUDED.amount,
			reason    = EXCLUDED.reason,
			failed_at = EXCLUDED.failed_at`

	_, err := s.pool.Exec(ctx, query,
		int64(p.MarketID), p.Account, p.Amount, p.Reason, p.FailedAt)
	if err != nil {
		return fmt.Errorf("postgres: upsert failed payout %d/%s: %w", p.MarketID, p.Account, err)
	}
	return nil
}

// Delete removes a failed payout record after a successful retry.
func (s *PayoutStore) Delete(ctx context.Context, marketID uint64, account string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM failed_payouts WHERE market_id = $1 AND account = $2`,
		int64(marketID), account)
	if err != nil {
		return fmt.Errorf("postgres: delete failed payout %d/%s: %w", marketID, account, err)
	}
	return nil
}

// ListAll returns every outstanding failed payout ordered by market and account.
func (s *PayoutStore) ListAll(ctx context.Context) ([]domain.FailedPayout, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT market_id, account, amount, reason, failed_at
		FROM failed_payouts ORDER BY market_id, account`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list failed payouts: %w", err)
	}
	defer rows.Close()

	var out []domain.FailedPayout
	for rows.Next() {
		var (
			p  domain.FailedPayout
			id int64
		)
		if err := rows.Scan(&id, &p.Account, &p.Amount, &p.Reason, &p.FailedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan failed payout: %w", err)
		}
		p.MarketID = uint64(id)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list failed payouts: %w", err)
	}
	return out, nil
}

var _ domain.PayoutStore = (*PayoutStore)(nil)
