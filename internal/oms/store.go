package oms

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"jax-papertrader/internal/apperr"
)

// Store persists orders. Place runs its writes through a single transaction
// via WithTx so validation, the idempotency-key lookup, and the final insert
// are atomic, matching the teacher's artifacts.Store transaction idiom
// (tx.Begin / defer Rollback / Commit).
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	GetByID(ctx context.Context, id string) (Order, error)
	List(ctx context.Context, f Filters) ([]Order, error)
}

// Tx is the subset of order-store operations available inside a
// Store.WithTx callback.
type Tx interface {
	GetByIdempotencyKey(ctx context.Context, key string) (Order, bool, error)
	LatestCandleOpen(ctx context.Context, symbol, tf string) (openTime interface{}, mid float64, found bool, err error)
	Insert(ctx context.Context, o Order) error
	UpdateStatus(ctx context.Context, id string, status Status, reason string) error
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
		return apperr.Wrap(apperr.KindStoreDown, "oms: begin transaction", err)
	}
	defer pgxTx.Rollback(ctx)

	if err := fn(ctx, &pgxOrderTx{tx: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "oms: commit transaction", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Order, error) {
	const query = `
		SELECT id, ts, symbol, timeframe, side, order_type, qty, status, reason, requested_price, idempotency_key
		FROM orders WHERE id = $1`
	row := s.pool.QueryRow(ctx, query, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, apperr.New(apperr.KindNotFound, fmt.Sprintf("oms: order %s not found", id))
	}
	if err != nil {
		return Order{}, apperr.Wrap(apperr.KindStoreDown, "oms: get order", err)
	}
	return o, nil
}

func (s *PostgresStore) List(ctx context.Context, f Filters) ([]Order, error) {
	query := `
		SELECT id, ts, symbol, timeframe, side, order_type, qty, status, reason, requested_price, idempotency_key
		FROM orders WHERE 1=1`
	var args []interface{}
	n := 1
	if f.Symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", n)
		args = append(args, f.Symbol)
		n++
	}
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, string(f.Status))
		n++
	}
	query += " ORDER BY ts DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, f.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "oms: list orders", err)
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindStoreDown, "oms: scan order", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (Order, error) {
	var o Order
	var side, status string
	err := row.Scan(&o.ID, &o.Ts, &o.Symbol, &o.Timeframe, &side, &o.Type, &o.Qty, &status, &o.Reason, &o.RequestedPrice, &o.IdempotencyKey)
	o.Side = Side(side)
	o.Status = Status(status)
	return o, err
}

type pgxOrderTx struct {
	tx pgx.Tx
}

func (t *pgxOrderTx) GetByIdempotencyKey(ctx context.Context, key string) (Order, bool, error) {
	const query = `
		SELECT id, ts, symbol, timeframe, side, order_type, qty, status, reason, requested_price, idempotency_key
		FROM orders WHERE idempotency_key = $1`
	row := t.tx.QueryRow(ctx, query, key)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, false, nil
	}
	if err != nil {
		return Order{}, false, apperr.Wrap(apperr.KindStoreDown, "oms: idempotency lookup", err)
	}
	return o, true, nil
}

func (t *pgxOrderTx) LatestCandleOpen(ctx context.Context, symbol, tf string) (interface{}, float64, bool, error) {
	const query = `
		SELECT open_time, open FROM candles
		WHERE symbol = $1 AND timeframe = $2
		ORDER BY open_time DESC LIMIT 1`
	var openTime interface{}
	var open float64
	err := t.tx.QueryRow(ctx, query, symbol, tf).Scan(&openTime, &open)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, apperr.Wrap(apperr.KindStoreDown, "oms: resolve reference candle", err)
	}
	return openTime, open, true, nil
}

func (t *pgxOrderTx) Insert(ctx context.Context, o Order) error {
	const query = `
		INSERT INTO orders (id, ts, symbol, timeframe, side, order_type, qty, status, reason, requested_price, idempotency_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := t.tx.Exec(ctx, query, o.ID, o.Ts, o.Symbol, o.Timeframe, string(o.Side), o.Type, o.Qty, string(o.Status), o.Reason, o.RequestedPrice, o.IdempotencyKey)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "oms: insert order", err)
	}
	return nil
}

func (t *pgxOrderTx) UpdateStatus(ctx context.Context, id string, status Status, reason string) error {
	const query = `UPDATE orders SET status = $1, reason = $2 WHERE id = $3`
	_, err := t.tx.Exec(ctx, query, string(status), reason, id)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "oms: update order status", err)
	}
	return nil
}
