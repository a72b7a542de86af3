package accounting

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
	UnaccountedFills(ctx context.Context, symbol string, asofOpenTime time.Time) ([]Fill, error)
	StampFillAccounted(ctx context.Context, fillID string, asofOpenTime time.Time) error

	GetPosition(ctx context.Context, accountID, symbol string) (Position, bool, error)
	UpsertPosition(ctx context.Context, accountID string, p Position) error
	AllPositions(ctx context.Context, accountID string) ([]Position, error)

	GetBalance(ctx context.Context, accountID string) (float64, error)
	AddToBalance(ctx context.Context, accountID string, delta float64) error

	InsertTrade(ctx context.Context, t Trade) error
	UpsertSnapshot(ctx context.Context, s Snapshot) error
	GetLatestSnapshot(ctx context.Context, accountID string) (Snapshot, bool, error)
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
		return apperr.Wrap(apperr.KindStoreDown, "accounting: begin transaction", err)
	}
	defer pgxTx.Rollback(ctx)

	if err := fn(ctx, &pgxAccountingTx{tx: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "accounting: commit transaction", err)
	}
	return nil
}

type pgxAccountingTx struct {
	tx pgx.Tx
}

func (t *pgxAccountingTx) UnaccountedFills(ctx context.Context, symbol string, asofOpenTime time.Time) ([]Fill, error) {
	const query = `
		SELECT id, order_id, symbol, side, qty, price, ts
		FROM fills
		WHERE symbol = $1 AND accounted_at_open_time IS NULL AND ts <= $2
		ORDER BY ts ASC, id ASC`
	rows, err := t.tx.Query(ctx, query, symbol, asofOpenTime)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "accounting: fetch unaccounted fills", err)
	}
	defer rows.Close()

	var out []Fill
	for rows.Next() {
		var f Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Symbol, &f.Side, &f.Qty, &f.Price, &f.Ts); err != nil {
			return nil, apperr.Wrap(apperr.KindStoreDown, "accounting: scan fill", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (t *pgxAccountingTx) StampFillAccounted(ctx context.Context, fillID string, asofOpenTime time.Time) error {
	const query = `UPDATE fills SET accounted_at_open_time = $1 WHERE id = $2`
	_, err := t.tx.Exec(ctx, query, asofOpenTime, fillID)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "accounting: stamp fill accounted", err)
	}
	return nil
}

func (t *pgxAccountingTx) GetPosition(ctx context.Context, accountID, symbol string) (Position, bool, error) {
	const query = `SELECT symbol, net_qty, avg_entry_price, updated_open_time, entry_order_id FROM netting_positions WHERE account_id = $1 AND symbol = $2 FOR UPDATE`
	var p Position
	var entryOrderID *string
	err := t.tx.QueryRow(ctx, query, accountID, symbol).Scan(&p.Symbol, &p.NetQty, &p.AvgEntryPrice, &p.OpenedAt, &entryOrderID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Position{Symbol: symbol}, false, nil
	}
	if err != nil {
		return Position{}, false, apperr.Wrap(apperr.KindStoreDown, "accounting: fetch position", err)
	}
	if entryOrderID != nil {
		p.EntryOrderID = *entryOrderID
	}
	return p, true, nil
}

func (t *pgxAccountingTx) UpsertPosition(ctx context.Context, accountID string, p Position) error {
	const query = `
		INSERT INTO netting_positions (account_id, symbol, net_qty, avg_entry_price, updated_open_time, entry_order_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (account_id, symbol) DO UPDATE SET
			net_qty = EXCLUDED.net_qty,
			avg_entry_price = EXCLUDED.avg_entry_price,
			updated_open_time = EXCLUDED.updated_open_time,
			entry_order_id = EXCLUDED.entry_order_id`
	var entryOrderID *string
	if p.EntryOrderID != "" {
		entryOrderID = &p.EntryOrderID
	}
	_, err := t.tx.Exec(ctx, query, accountID, p.Symbol, p.NetQty, p.AvgEntryPrice, p.OpenedAt, entryOrderID)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "accounting: upsert position", err)
	}
	return nil
}

func (t *pgxAccountingTx) AllPositions(ctx context.Context, accountID string) ([]Position, error) {
	const query = `SELECT symbol, net_qty, avg_entry_price, updated_open_time, entry_order_id FROM netting_positions WHERE account_id = $1 AND net_qty <> 0`
	rows, err := t.tx.Query(ctx, query, accountID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStoreDown, "accounting: fetch positions", err)
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var p Position
		var entryOrderID *string
		if err := rows.Scan(&p.Symbol, &p.NetQty, &p.AvgEntryPrice, &p.OpenedAt, &entryOrderID); err != nil {
			return nil, apperr.Wrap(apperr.KindStoreDown, "accounting: scan position", err)
		}
		if entryOrderID != nil {
			p.EntryOrderID = *entryOrderID
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *pgxAccountingTx) GetLatestSnapshot(ctx context.Context, accountID string) (Snapshot, bool, error) {
	const query = `
		SELECT account_id, asof_open_time, balance, equity, unrealized_pnl, margin_used, free_margin
		FROM accounting_snapshots
		WHERE account_id = $1
		ORDER BY asof_open_time DESC
		LIMIT 1`
	var s Snapshot
	err := t.tx.QueryRow(ctx, query, accountID).Scan(&s.AccountID, &s.AsofOpenTime, &s.Balance, &s.Equity, &s.UnrealizedPnL, &s.MarginUsed, &s.FreeMargin)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, false, nil
	}
	if err != nil {
		return Snapshot{}, false, apperr.Wrap(apperr.KindStoreDown, "accounting: fetch latest snapshot", err)
	}
	return s, true, nil
}

func (t *pgxAccountingTx) GetBalance(ctx context.Context, accountID string) (float64, error) {
	const query = `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`
	var balance float64
	err := t.tx.QueryRow(ctx, query, accountID).Scan(&balance)
	if err != nil {
		return 0, apperr.Wrap(apperr.KindStoreDown, "accounting: fetch balance", err)
	}
	return balance, nil
}

func (t *pgxAccountingTx) AddToBalance(ctx context.Context, accountID string, delta float64) error {
	const query = `UPDATE accounts SET balance = balance + $1 WHERE id = $2`
	_, err := t.tx.Exec(ctx, query, delta, accountID)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "accounting: update balance", err)
	}
	return nil
}

func (t *pgxAccountingTx) InsertTrade(ctx context.Context, tr Trade) error {
	if tr.ID == "" {
		tr.ID = uuid.New().String()
	}
	const query = `
		INSERT INTO trades (id, entry_ts, exit_ts, symbol, qty, entry_price, exit_price, pnl, exit_reason, entry_order_id, exit_order_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := t.tx.Exec(ctx, query, tr.ID, tr.EntryTs, tr.ExitTs, tr.Symbol, tr.Qty, tr.EntryPrice, tr.ExitPrice, tr.PnL, string(tr.ExitReason), tr.EntryOrderID, tr.ExitOrderID)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "accounting: insert trade", err)
	}
	return nil
}

func (t *pgxAccountingTx) UpsertSnapshot(ctx context.Context, s Snapshot) error {
	const query = `
		INSERT INTO accounting_snapshots (account_id, asof_open_time, balance, equity, unrealized_pnl, margin_used, free_margin)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (account_id, asof_open_time) DO UPDATE SET
			balance = EXCLUDED.balance,
			equity = EXCLUDED.equity,
			unrealized_pnl = EXCLUDED.unrealized_pnl,
			margin_used = EXCLUDED.margin_used,
			free_margin = EXCLUDED.free_margin`
	_, err := t.tx.Exec(ctx, query, s.AccountID, s.AsofOpenTime, s.Balance, s.Equity, s.UnrealizedPnL, s.MarginUsed, s.FreeMargin)
	if err != nil {
		return apperr.Wrap(apperr.KindStoreDown, "accounting: upsert snapshot", err)
	}
	return nil
}
