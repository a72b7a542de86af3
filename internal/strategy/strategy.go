// Package strategy implements the strategy engine (C5): a pure function of
// a candle window to a trading intent. Strategies never read accounts,
// positions, or orders.
package strategy

import (
	"context"
	"time"

	"jax-papertrader/internal/candles"
)

// Action is the intent a strategy emits.
type Action string

const (
	Buy   Action = "BUY"
	Sell  Action = "SELL"
	Hold  Action = "HOLD"
	Close Action = "CLOSE"
)

// Indicators carries the indicator values that produced an Intent, surfaced
// for observability and the dry-run control-surface endpoint.
type Indicators struct {
	EMAFast float64
	EMASlow float64
	ATR     float64
}

// RiskHints are price levels the risk/OMS layer may use when sizing an
// order; the strategy itself never sizes or places anything.
type RiskHints struct {
	StopLossPrice   float64
	TakeProfitPrice float64
}

// Intent is the strategy's pure output for one candle window.
type Intent struct {
	Action     Action
	Reason     string
	Symbol     string
	Timeframe  string
	Ts         time.Time
	Indicators Indicators
	RiskHints  RiskHints
	Summary    string
}

// Strategy is the interface every strategy implementation satisfies.
type Strategy interface {
	// ID returns the strategy's unique identifier.
	ID() string
	// Name returns a human-readable name.
	Name() string
	// Analyze maps a candle window (oldest first, last element is the
	// current closed bar) to an Intent. Pure: no side effects.
	Analyze(ctx context.Context, window []candles.Candle) (Intent, error)
}
