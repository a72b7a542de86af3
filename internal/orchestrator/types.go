// Package orchestrator implements the cycle driver (C9): for one
// (symbol, timeframe, candle_ts) it marks the account to market, asks the
// strategy engine for an intent, routes a BUY/SELL intent through OMS and
// execution, runs accounting on any resulting fill, and persists exactly one
// run report. Uniqueness of the report on (symbol, tf, candle_ts) combined
// with deterministic order idempotency keys guarantees at most one order
// placed per cycle, no matter how many times the cycle is driven.
package orchestrator

import (
	"time"

	"jax-papertrader/internal/accounting"
	"jax-papertrader/internal/execution"
	"jax-papertrader/internal/oms"
	"jax-papertrader/internal/risk"
	"jax-papertrader/internal/strategy"
)

// Status is the outcome of one cycle.
type Status string

const (
	StatusOK    Status = "OK"
	StatusNOOP  Status = "NOOP"
	StatusError Status = "ERROR"
)

// OrderPlan is the strategy's intent translated into an OMS placement
// request, carrying the deterministic idempotency key that makes replaying
// the same cycle a no-op at the order layer.
type OrderPlan struct {
	Symbol         string
	Timeframe      string
	Side           oms.Side
	Qty            float64
	StopLossPrice  float64
	IdempotencyKey string
}

// RunReport is the persisted, unique-per-cycle record of what RunCycle did.
type RunReport struct {
	RunID        string
	Status       Status
	Symbol       string
	Timeframe    string
	CandleTs     time.Time
	Intent       *strategy.Intent
	RiskDecision *risk.Decision
	Order        *oms.Order
	Fill         *execution.Fill
	Positions    []accounting.Position
	Account      *accounting.Snapshot
	SummaryText  string
	TelegramText string
	ErrorText    string
	CreatedAt    time.Time
}
