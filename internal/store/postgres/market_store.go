package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomebet/paribet/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketColumns = `
	id, question, description, creator, created_at, end_time, resolved_at,
	status, outcome, yes_total, no_total, total,
	creator_fee_bps, platform_fee_bps, platform_fee_accrued, creator_fee_accrued,
	fees_swept, cancel_reason, participants`

// Upsert inserts or updates a single market snapshot.
func (s *MarketStore) Upsert(ctx context.Context, m domain.Market) error {
	const query = `
		INSERT INTO markets (
			id, question, description, creator, created_at, end_time, resolved_at,
			status, outcome, yes_total, no_total, total,
			creator_fee_bps, platform_fee_bps, platform_fee_accrued, creator_fee_accrued,
			fees_swept, cancel_reason, participants, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19, NOW()
		)
		ON CONFLICT (id) DO UPDATE SET
			resolved_at          = EXCLUDED.resolved_at,
			status               = EXCLUDED.status,
			outcome              = EXCLUDED.outcome,
			yes_total            = EXCLUDED.yes_total,
			no_total             = EXCLUDED.no_total,
			total                = EXCLUDED.total,
			platform_fee_bps     = EXCLUDED.platform_fee_bps,
			platform_fee_accrued = EXCLUDED.platform_fee_accrued,
			creator_fee_accrued  = EXCLUDED.creator_fee_accrued,
			fees_swept           = EXCLUDED.fees_swept,
			cancel_reason        = EXCLUDED.cancel_reason,
			participants         = EXCLUDED.participants,
			updated_at           = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(m.ID), m.Question, m.Description, m.Creator, m.CreatedAt, m.EndTime, m.ResolvedAt,
		string(m.Status), string(m.Outcome), m.YesTotal, m.NoTotal, m.Total,
		m.CreatorFeeBps, m.PlatformFeeBps, m.PlatformFeeAccrued, m.CreatorFeeAccrued,
		m.FeesSwept, m.CancelReason, m.Participants,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %d: %w", m.ID, err)
	}
	return nil
}

// GetByID retrieves a market snapshot by identifier.
func (s *MarketStore) GetByID(ctx context.Context, id uint64) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, int64(id))
	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrMarketNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// ListAll returns every journaled market ordered by identifier.
func (s *MarketStore) ListAll(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var out []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	return out, nil
}

// Count returns the number of journaled markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return n, nil
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m       domain.Market
		id      int64
		status  string
		outcome string
	)
	err := row.Scan(
		&id, &m.Question, &m.Description, &m.Creator, &m.CreatedAt, &m.EndTime, &m.ResolvedAt,
		&status, &outcome, &m.YesTotal, &m.NoTotal, &m.Total,
		&m.CreatorFeeBps, &m.PlatformFeeBps, &m.PlatformFeeAccrued, &m.CreatorFeeAccrued,
		&m.FeesSwept, &m.CancelReason, &m.Participants,
	)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = uint64(id)
	m.Status = domain.MarketStatus(status)
	m.Outcome = domain.Outcome(outcome)
	return m, nil
}

var _ domain.MarketStore = (*MarketStore)(nil)
