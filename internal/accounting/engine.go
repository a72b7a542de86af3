package accounting

import (
	"context"
	"math"
	"time"

	"jax-papertrader/internal/pricing"
)

// Engine implements apply_new_fills, mark_to_market, and
// process_accounting_for_candle (C8).
type Engine struct {
	store     Store
	pricing   *pricing.Model
	accountID string
	leverage  float64
}

// NewEngine wraps a Store, the pricing Model used for the mark-to-market
// bid/ask-by-side rule, the account identifier, and the account's leverage.
func NewEngine(store Store, model *pricing.Model, accountID string, leverage float64) *Engine {
	return &Engine{store: store, pricing: model, accountID: accountID, leverage: leverage}
}

// ApplyNewFills consumes every fill not yet accounted for symbol with
// ts <= asofOpenTime, in (ts, id) order, updating the netting position and
// realizing PnL on any closed quantity. Idempotent: a second call over an
// unchanged fill set is a no-op because fills are stamped accounted_at_open_time.
func (e *Engine) ApplyNewFills(ctx context.Context, symbol string, asofOpenTime time.Time) ([]Trade, error) {
	var trades []Trade

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		fills, err := tx.UnaccountedFills(ctx, symbol, asofOpenTime)
		if err != nil {
			return err
		}
		if len(fills) == 0 {
			return nil
		}

		position, _, err := tx.GetPosition(ctx, e.accountID, symbol)
		if err != nil {
			return err
		}

		for _, fill := range fills {
			delta := fill.Qty
			if fill.Side == "SELL" {
				delta = -fill.Qty
			}

			trade, newPosition := applyFill(position, fill, delta)
			position = newPosition

			if trade != nil {
				if err := tx.InsertTrade(ctx, *trade); err != nil {
					return err
				}
				if err := tx.AddToBalance(ctx, e.accountID, trade.PnL); err != nil {
					return err
				}
				trades = append(trades, *trade)
			}

			if err := tx.StampFillAccounted(ctx, fill.ID, asofOpenTime); err != nil {
				return err
			}
		}

		return tx.UpsertPosition(ctx, e.accountID, position)
	})
	if err != nil {
		return nil, err
	}
	return trades, nil
}

// applyFill updates a single netting position with one fill's signed delta
// and returns the resulting Trade (nil if nothing closed) and new position.
func applyFill(position Position, fill Fill, delta float64) (*Trade, Position) {
	q := position.NetQty
	avg := position.AvgEntryPrice

	switch {
	case q == 0:
		return nil, Position{Symbol: fill.Symbol, NetQty: delta, AvgEntryPrice: fill.Price, OpenedAt: fill.Ts, EntryOrderID: fill.OrderID}

	case sameSign(q, delta):
		newQty := q + delta
		newAvg := (math.Abs(q)*avg + math.Abs(delta)*fill.Price) / math.Abs(newQty)
		return nil, Position{Symbol: fill.Symbol, NetQty: newQty, AvgEntryPrice: newAvg, OpenedAt: position.OpenedAt, EntryOrderID: position.EntryOrderID}

	default:
		absQ := math.Abs(q)
		absDelta := math.Abs(delta)

		if absDelta <= absQ {
			closedQty := absDelta
			pnl := realizedPnL(q, avg, fill.Price, closedQty)
			trade := &Trade{
				EntryTs:      position.OpenedAt,
				ExitTs:       fill.Ts,
				Symbol:       fill.Symbol,
				Qty:          closedQty,
				EntryPrice:   avg,
				ExitPrice:    fill.Price,
				PnL:          pnl,
				ExitReason:   ExitManual,
				EntryOrderID: position.EntryOrderID,
				ExitOrderID:  fill.OrderID,
			}
			remaining := sign(q) * (absQ - closedQty)
			newPos := Position{Symbol: fill.Symbol, NetQty: remaining, AvgEntryPrice: avg, OpenedAt: position.OpenedAt, EntryOrderID: position.EntryOrderID}
			if remaining == 0 {
				newPos.AvgEntryPrice = 0
				newPos.EntryOrderID = ""
			}
			return trade, newPos
		}

		// Cross-through reversal: close the existing side fully, then open
		// the opposite side with the remainder at the fill price.
		closedQty := absQ
		pnl := realizedPnL(q, avg, fill.Price, closedQty)
		trade := &Trade{
			EntryTs:      position.OpenedAt,
			ExitTs:       fill.Ts,
			Symbol:       fill.Symbol,
			Qty:          closedQty,
			EntryPrice:   avg,
			ExitPrice:    fill.Price,
			PnL:          pnl,
			ExitReason:   ExitFlip,
			EntryOrderID: position.EntryOrderID,
			ExitOrderID:  fill.OrderID,
		}
		remainder := absDelta - absQ
		newQty := sign(delta) * remainder
		newPos := Position{Symbol: fill.Symbol, NetQty: newQty, AvgEntryPrice: fill.Price, OpenedAt: fill.Ts, EntryOrderID: fill.OrderID}
		return trade, newPos
	}
}

// realizedPnL computes the realized profit/loss on closing closedQty of a
// position with net qty q (sign carries direction) and average entry avg,
// against exitPrice: longs profit when exitPrice > avg, shorts the reverse.
func realizedPnL(q, avg, exitPrice, closedQty float64) float64 {
	if q > 0 {
		return (exitPrice - avg) * closedQty
	}
	return (avg - exitPrice) * closedQty
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

// MarkToMarket values every open position at candleOpen using C3's
// bid/ask-by-side rule, computes equity/margin/free-margin, and upserts the
// (account, asof_open_time) snapshot.
func (e *Engine) MarkToMarket(ctx context.Context, asofOpenTime time.Time, candleOpen float64) (Snapshot, error) {
	var snap Snapshot

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		balance, err := tx.GetBalance(ctx, e.accountID)
		if err != nil {
			return err
		}

		positions, err := tx.AllPositions(ctx, e.accountID)
		if err != nil {
			return err
		}

		var unrealized, marginUsed float64
		for _, p := range positions {
			side := pricing.Buy
			if p.NetQty < 0 {
				side = pricing.Sell
			}
			mark := e.pricing.MarkPrice(side, candleOpen)
			unrealized += (mark - p.AvgEntryPrice) * p.NetQty
			marginUsed += math.Abs(p.NetQty) * candleOpen / e.leverage
		}

		equity := balance + unrealized
		snap = Snapshot{
			AccountID:     e.accountID,
			AsofOpenTime:  asofOpenTime,
			Balance:       balance,
			Equity:        equity,
			UnrealizedPnL: unrealized,
			MarginUsed:    marginUsed,
			FreeMargin:    equity - marginUsed,
		}
		return tx.UpsertSnapshot(ctx, snap)
	})
	if err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Position returns the current netting position for symbol. found is false,
// with a zero-value Position, only when no position row exists; a position
// closed back to flat keeps its row and is returned with NetQty 0.
func (e *Engine) Position(ctx context.Context, symbol string) (Position, bool, error) {
	var pos Position
	var found bool
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		p, ok, err := tx.GetPosition(ctx, e.accountID, symbol)
		if err != nil {
			return err
		}
		pos, found = p, ok
		return nil
	})
	if err != nil {
		return Position{}, false, err
	}
	return pos, found, nil
}

// Positions returns every open netting position, for reporting.
func (e *Engine) Positions(ctx context.Context) ([]Position, error) {
	var positions []Position
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		ps, err := tx.AllPositions(ctx, e.accountID)
		if err != nil {
			return err
		}
		positions = ps
		return nil
	})
	if err != nil {
		return nil, err
	}
	return positions, nil
}

// LatestSnapshot returns the most recent accounting snapshot for the
// account, if one has ever been recorded. Used by the risk gate and the
// account-status endpoint to read current equity/margin without forcing a
// mark-to-market.
func (e *Engine) LatestSnapshot(ctx context.Context) (Snapshot, bool, error) {
	var snap Snapshot
	var found bool
	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		s, ok, err := tx.GetLatestSnapshot(ctx, e.accountID)
		if err != nil {
			return err
		}
		snap, found = s, ok
		return nil
	})
	if err != nil {
		return Snapshot{}, false, err
	}
	return snap, found, nil
}

// ProcessAccountingForCandle applies new fills then marks to market, as one
// logical unit (each step is its own transaction; idempotent stamping makes
// the pair safe to retry as a whole).
func (e *Engine) ProcessAccountingForCandle(ctx context.Context, symbol string, asofOpenTime time.Time, candleOpen float64) ([]Trade, Snapshot, error) {
	trades, err := e.ApplyNewFills(ctx, symbol, asofOpenTime)
	if err != nil {
		return nil, Snapshot{}, err
	}
	snap, err := e.MarkToMarket(ctx, asofOpenTime, candleOpen)
	if err != nil {
		return nil, Snapshot{}, err
	}
	return trades, snap, nil
}
