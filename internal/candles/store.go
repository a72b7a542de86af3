package candles

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jax-papertrader/internal/apperr"
)

// Store persists and retrieves candles for one instrument.
type Store interface {
	// Latest returns the most recently stored candle for (symbol, tf), or
	// apperr.NotFound if none exists.
	Latest(ctx context.Context, symbol, tf string) (*Candle, error)

	// Range returns candles in [start, end] ordered by open_time ascending,
	// bounded by limit (0 means unbounded).
	Range(ctx context.Context, symbol, tf string, start, end *time.Time, limit int) ([]Candle, error)

	// UpsertMany validates and writes candles. Invalid rows are skipped, not
	// fatal to the batch; the count of accepted rows is returned alongside
	// any skip reasons.
	UpsertMany(ctx context.Context, cs []Candle) (accepted int, skipped []SkipReason, err error)

	// DeleteOlderThan removes candles with open_time strictly before cutoff
	// and returns the number of rows deleted.
	DeleteOlderThan(ctx context.Context, symbol, tf string, cutoff time.Time) (int64, error)
}

// SkipReason explains why one candle in a batch was rejected.
type SkipReason struct {
	OpenTime time.Time
	Reason   string
}

// PostgresStore is the Store backed by a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps pool as a Store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Latest(ctx context.Context, symbol, tf string) (*Candle, error) {
	const query = `
		SELECT symbol, timeframe, open_time, open, high, low, close, volume, source, ingested_at
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY open_time DESC
		LIMIT 1
	`
	var c Candle
	err := s.pool.QueryRow(ctx, query, symbol, tf).Scan(
		&c.Symbol, &c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Source, &c.IngestedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.New(apperr.KindNotFound, fmt.Sprintf("no candles for %s/%s", symbol, tf))
		}
		return nil, apperr.Wrap(apperr.KindStoreDown, "candle lookup failed", err)
	}
	return &c, nil
}

func (s *PostgresStore) Range(ctx context.Context, symbol, tf string, start, end *time.Time, limit int) ([]Candle, error) {
	query := `
		SELECT symbol, timeframe, open_time, open, high, low, close, volume, source, ingested_at
		FROM candles
		WHERE symbol = $1 AND timeframe = $2
	`
	args := []any{symbol, tf}
	if start != nil {
		args = append(args, *start)
		query += fmt.Sprintf(" AND open_time >= $%d", len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += fmt.Sprintf(" AND open_time <= $%d", len(args))
	}
	query += " ORDER BY open_time ASC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "candle range query failed", err)
	}
	defer rows.Close()

	var out []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Symbol, &c.Timeframe, &c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &c.Source, &c.IngestedAt); err != nil {
			return nil, apperr.Wrap(apperr.KindStoreDown, "candle range scan failed", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "candle range iteration failed", err)
	}
	return out, nil
}

func (s *PostgresStore) UpsertMany(ctx context.Context, cs []Candle) (int, []SkipReason, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, nil, apperr.Wrap(apperr.KindStoreDown, "begin upsert transaction", err)
	}
	defer tx.Rollback(ctx)

	const query = `
		INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume, source, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now())
		ON CONFLICT (symbol, timeframe, open_time) DO UPDATE SET
			open = EXCLUDED.open, high = EXCLUDED.high, low = EXCLUDED.low,
			close = EXCLUDED.close, volume = EXCLUDED.volume, source = EXCLUDED.source,
			ingested_at = EXCLUDED.ingested_at
		WHERE candles.open IS DISTINCT FROM EXCLUDED.open
		   OR candles.high IS DISTINCT FROM EXCLUDED.high
		   OR candles.low IS DISTINCT FROM EXCLUDED.low
		   OR candles.close IS DISTINCT FROM EXCLUDED.close
		   OR candles.volume IS DISTINCT FROM EXCLUDED.volume
	`

	var accepted int
	var skipped []SkipReason
	for _, c := range cs {
		if err := c.Validate(); err != nil {
			skipped = append(skipped, SkipReason{OpenTime: c.OpenTime, Reason: err.Error()})
			continue
		}
		if !IsAligned(c.OpenTime, c.Timeframe) {
			skipped = append(skipped, SkipReason{OpenTime: c.OpenTime, Reason: "open_time not aligned to timeframe grid"})
			continue
		}
		if _, err := tx.Exec(ctx, query, c.Symbol, c.Timeframe, c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume, c.Source); err != nil {
			return 0, nil, apperr.Wrap(apperr.KindStoreDown, "candle upsert failed", err)
		}
		accepted++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, nil, apperr.Wrap(apperr.KindStoreDown, "commit upsert transaction", err)
	}
	return accepted, skipped, nil
}

func (s *PostgresStore) DeleteOlderThan(ctx context.Context, symbol, tf string, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM candles WHERE symbol = $1 AND timeframe = $2 AND open_time < $3`
	tag, err := s.pool.Exec(ctx, query, symbol, tf, cutoff)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreDown, "retention delete failed", err)
	}
	return tag.RowsAffected(), nil
}
