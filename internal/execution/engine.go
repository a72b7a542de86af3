package execution

import (
	"context"
	"time"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/pricing"
)

// Engine implements process_new_orders_for_candle: the next-open fill rule.
type Engine struct {
	store   Store
	pricing *pricing.Model
}

// NewEngine wraps a Store and the pricing Model used to compute fill prices.
func NewEngine(store Store, model *pricing.Model) *Engine {
	return &Engine{store: store, pricing: model}
}

// ProcessNewOrdersForCandle fills every eligible NEW order for (symbol, tf)
// against fillCandleOpenTime in one transaction. An order is eligible only
// when fillCandleOpenTime is the first candle with open_time > order.ts; all
// others are left untouched for a later call. If the required fill candle is
// missing from the store, the engine fails fast with apperr.KindDeterminism
// and persists no state.
func (e *Engine) ProcessNewOrdersForCandle(ctx context.Context, fillCandleOpenTime time.Time, symbol, tf string) ([]Fill, error) {
	var fills []Fill

	err := e.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		candleOpen, found, err := tx.CandleOpen(ctx, symbol, tf, fillCandleOpenTime)
		if err != nil {
			return err
		}
		if !found {
			return apperr.New(apperr.KindDeterminism, "execution: required fill candle is missing from the store")
		}

		orders, err := tx.NewOrders(ctx, symbol, tf)
		if err != nil {
			return err
		}

		for _, order := range orders {
			nextOpen, hasNext, err := tx.NextCandleOpenAfter(ctx, symbol, tf, order.Ts)
			if err != nil {
				return err
			}
			if !hasNext || !nextOpen.Equal(fillCandleOpenTime) {
				continue
			}

			if existing, ok, err := tx.ExistingFill(ctx, order.ID); err != nil {
				return err
			} else if ok {
				fills = append(fills, existing)
				continue
			}

			side := pricing.Buy
			if order.Side == string(pricing.Sell) {
				side = pricing.Sell
			}
			fillPrice := e.pricing.FillPrice(side, candleOpen)

			fill := Fill{
				OrderID:   order.ID,
				Symbol:    symbol,
				Timeframe: tf,
				Side:      order.Side,
				Qty:       order.Qty,
				Price:     fillPrice,
				Ts:        fillCandleOpenTime,
			}
			if err := tx.InsertFill(ctx, fill); err != nil {
				return err
			}
			if err := tx.MarkOrderFilled(ctx, order.ID); err != nil {
				return err
			}
			// Return the row as persisted, so the caller sees the id the store
			// assigned — the same row a later re-invocation returns.
			if stored, ok, err := tx.ExistingFill(ctx, order.ID); err != nil {
				return err
			} else if ok {
				fill = stored
			}
			fills = append(fills, fill)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}
	return fills, nil
}
