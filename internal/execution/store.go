package execution

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jax-papertrader/internal/apperr"
)

// Store provides the transactional operations Engine needs.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the subset of store operations available inside a Store.WithTx
// callback.
type Tx interface {
	CandleOpen(ctx context.Context, symbol, tf string, openTime time.Time) (float64, bool, error)
	NextCandleOpenAfter(ctx context.Context, symbol, tf string, ts time.Time) (time.Time, bool, error)
	NewOrders(ctx context.Context, symbol, tf string) ([]OrderRef, error)
	ExistingFill(ctx context.Context, orderID string) (Fill, bool, error)
	InsertFill(ctx context.Context, f Fill) error
	MarkOrderFilled(ctx context.Context, orderID string) error
}

// PostgresStore is the pgxpool-backed Store implementation.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps a pgxpool.Pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	pgxTx, err := s.pool.Begin(ctx)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "execution: begin transaction", err)
	}
	defer pgxTx.Rollback(ctx)

	if err := fn(ctx, &pgxExecTx{tx: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "execution: commit transaction", err)
	}
	return nil
}

type pgxExecTx struct {
	tx pgx.Tx
}

func (t *pgxExecTx) CandleOpen(ctx context.Context, symbol, tf string, openTime time.Time) (float64, bool, error) {
	const query = `SELECT open FROM candles WHERE symbol = $1 AND timeframe = $2 AND open_time = $3`
	var open float64
	err := t.tx.QueryRow(ctx, query, symbol, tf, openTime).Scan(&open)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, apperr.Wrap(apperr.KindStoreDown, "execution: fetch candle", err)
	}
	return open, true, nil
}

func (t *pgxExecTx) NextCandleOpenAfter(ctx context.Context, symbol, tf string, ts time.Time) (time.Time, bool, error) {
	const query = `
		SELECT open_time FROM candles
		WHERE symbol = $1 AND timeframe = $2 AND open_time > $3
		ORDER BY open_time ASC LIMIT 1`
	var openTime time.Time
	err := t.tx.QueryRow(ctx, query, symbol, tf, ts).Scan(&openTime)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperr.Wrap(apperr.KindStoreDown, "execution: fetch next candle", err)
	}
	return openTime, true, nil
}

func (t *pgxExecTx) NewOrders(ctx context.Context, symbol, tf string) ([]OrderRef, error) {
	const query = `
		SELECT id, ts, side, qty FROM orders
		WHERE symbol = $1 AND timeframe = $2 AND status = 'NEW'
		ORDER BY ts ASC, id ASC`
	rows, err := t.tx.Query(ctx, query, symbol, tf)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "execution: fetch new orders", err)
	}
	defer rows.Close()

	var out []OrderRef
	for rows.Next() {
		var o OrderRef
		o.Symbol = symbol
		if err := rows.Scan(&o.ID, &o.Ts, &o.Side, &o.Qty); err != nil {
			return nil, apperr.Wrap(apperr.KindStoreDown, "execution: scan order", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (t *pgxExecTx) ExistingFill(ctx context.Context, orderID string) (Fill, bool, error) {
	const query = `
		SELECT id, order_id, symbol, timeframe, side, qty, price, ts
		FROM fills WHERE order_id = $1`
	var f Fill
	err := t.tx.QueryRow(ctx, query, orderID).Scan(&f.ID, &f.OrderID, &f.Symbol, &f.Timeframe, &f.Side, &f.Qty, &f.Price, &f.Ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fill{}, false, nil
	}
	if err != nil {
		return Fill{}, false, apperr.Wrap(apperr.KindStoreDown, "execution: fetch existing fill", err)
	}
	return f, true, nil
}

func (t *pgxExecTx) InsertFill(ctx context.Context, f Fill) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO fills (id, order_id, symbol, timeframe, side, qty, price, ts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (order_id) DO NOTHING`
	_, err := t.tx.Exec(ctx, query, f.ID, f.OrderID, f.Symbol, f.Timeframe, f.Side, f.Qty, f.Price, f.Ts)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "execution: insert fill", err)
	}
	return nil
}

func (t *pgxExecTx) MarkOrderFilled(ctx context.Context, orderID string) error {
	const query = `UPDATE orders SET status = 'FILLED' WHERE id = $1`
	_, err := t.tx.Exec(ctx, query, orderID)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "execution: mark order filled", err)
	}
	return nil
}
