package risk

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"jax-papertrader/internal/apperr"
)

// PostgresBaselineStore is the pgxpool-backed BaselineStore implementation.
type PostgresBaselineStore struct {
	pool *pgxpool.Pool
}

// NewPostgresBaselineStore wraps a pgxpool.Pool.
func NewPostgresBaselineStore(pool *pgxpool.Pool) *PostgresBaselineStore {
	return &PostgresBaselineStore{pool: pool}
}

// GetOrCreate inserts a baseline row for (accountID, day) seeded with equity
// if none exists yet, then returns whichever row now exists — the first
// observation of a day wins, later calls just read it back.
func (s *PostgresBaselineStore) GetOrCreate(ctx context.Context, accountID string, day time.Time, equity float64) (DailyBaseline, error) {
	const upsert = `
		INSERT INTO daily_equity_baselines (account_id, day, day_start_equity, min_equity)
		VALUES ($1, $2, $3, $3)
		ON CONFLICT (account_id, day) DO NOTHING`
	if _, err := s.pool.Exec(ctx, upsert, accountID, day, equity); err != nil {
		return DailyBaseline{}, apperr.Wrap(apperr.KindStoreDown, "risk: seed daily baseline", err)
	}

	const query = `SELECT account_id, day, day_start_equity FROM daily_equity_baselines WHERE account_id = $1 AND day = $2`
	var b DailyBaseline
	err := s.pool.QueryRow(ctx, query, accountID, day).Scan(&b.AccountID, &b.Day, &b.DayStartEquity)
	if err != nil {
		return DailyBaseline{}, apperr.Wrap(apperr.KindStoreDown, "risk: fetch daily baseline", err)
	}

	if err := s.updateMinEquity(ctx, accountID, day, equity); err != nil {
		return DailyBaseline{}, err
	}
	return b, nil
}

func (s *PostgresBaselineStore) updateMinEquity(ctx context.Context, accountID string, day time.Time, equity float64) error {
	const query = `UPDATE daily_equity_baselines SET min_equity = LEAST(min_equity, $3) WHERE account_id = $1 AND day = $2`
	if _, err := s.pool.Exec(ctx, query, accountID, day, equity); err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "risk: update daily min equity", err)
	}
	return nil
}
