package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/outcomebet/paribet/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betColumns = `market_id, account, yes_amount, no_amount, withdrawn`

// Upsert inserts or updates a participant position.
func (s *BetStore) Upsert(ctx context.Context, b domain.ParticipantBet) error {
	const query = `
		INSERT INTO bets (market_id, account, yes_amount, no_amount, withdrawn, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (market_id, account) DO UPDATE SET
			yes_amount = EXCLUDED.yes_amount,
			no_amount  = EXCLUDED.no_amount,
			withdrawn  = EXCLUDED.withdrawn,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		int64(b.MarketID), b.Account, b.YesAmount, b.NoAmount, b.Withdrawn)
	if err != nil {
		return fmt.Errorf("postgres: upsert bet %d/%s: %w", b.MarketID, b.Account, err)
	}
	return nil
}

// Get retrieves a participant position for a market.
func (s *BetStore) Get(ctx context.Context, marketID uint64, account string) (domain.ParticipantBet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id = $1 AND account = $2`,
		int64(marketID), account)
	b, err := scanBet(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ParticipantBet{}, domain.ErrNotFound
		}
		return domain.ParticipantBet{}, fmt.Errorf("postgres: get bet %d/%s: %w", marketID, account, err)
	}
	return b, nil
}

// ListByMarket returns all positions on a market ordered by account.
func (s *BetStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.ParticipantBet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets WHERE market_id = $1 ORDER BY account`,
		int64(marketID))
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %d: %w", marketID, err)
	}
	defer rows.Close()
	return collectBets(rows)
}

// ListAll returns every journaled position ordered by market and account.
func (s *BetStore) ListAll(ctx context.Context) ([]domain.ParticipantBet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betColumns+` FROM bets ORDER BY market_id, account`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	defer rows.Close()
	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.ParticipantBet, error) {
	var out []domain.ParticipantBet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list bets: %w", err)
	}
	return out, nil
}

func scanBet(row pgx.Row) (domain.ParticipantBet, error) {
	var (
		b  domain.ParticipantBet
		id int64
	)
	if err := row.Scan(&id, &b.Account, &b.YesAmount, &b.NoAmount, &b.Withdrawn); err != nil {
		return domain.ParticipantBet{}, err
	}
	b.MarketID = uint64(id)
	return b, nil
}

var _ domain.BetStore = (*BetStore)(nil)
