// Package risk implements the pre-trade risk-and-portfolio gate (C6): sizing,
// position/notional caps, the daily-loss breaker, and the margin check that
// stands between a strategy intent and an order actually reaching the
// market. Engine is deliberately stateless per call — all portfolio and
// account facts are passed in, sourced from the accounting engine's latest
// snapshot, so risk decisions stay reproducible from stored state alone.
package risk

import "math"

// Limits are the per-account risk parameters spec.md §4.6 enumerates.
type Limits struct {
	MaxOpenPositions          int
	MaxOpenPositionsPerSymbol int
	MaxTotalNotional          float64
	MaxSymbolNotional         float64
	RiskPerTradePct           float64
	DailyLossLimitPct         float64
	DailyLossLimitAmount      float64
	Leverage                  float64
	LotStep                   float64
}

// PortfolioState is the current open-position footprint used for cap checks.
type PortfolioState struct {
	OpenPositionsTotal     int
	OpenPositionsForSymbol int
	TotalNotional          float64
	SymbolNotional         float64
}

// AccountState carries the account facts the gate needs from C8's latest
// snapshot: current equity/free-margin and the day's opening equity baseline.
type AccountState struct {
	Equity         float64
	FreeMargin     float64
	DayStartEquity float64
}

// OrderProposal is what the OMS asks the risk engine to size and approve.
type OrderProposal struct {
	Symbol           string
	Side             string // "BUY" or "SELL"
	RequestedQty     float64
	Mid              float64
	PipSize          float64
	StopDistancePips float64
}

// Decision is the risk engine's verdict: allowed or rejected, with the
// approved size and a stable reason string used verbatim on rejected orders.
type Decision struct {
	Allowed     bool
	ApprovedQty float64
	Reason      string
}

// Stable reason strings, reused verbatim as Order.reason on rejection.
const (
	ReasonMaxOpenPositions          = "max_open_positions"
	ReasonMaxOpenPositionsPerSymbol = "max_open_positions_per_symbol"
	ReasonMaxTotalNotional          = "max_total_notional"
	ReasonMaxSymbolNotional         = "max_symbol_notional"
	ReasonInsufficientMargin        = "insufficient_free_margin"
	ReasonDailyLossLimitPct         = "daily_loss_limit_pct"
	ReasonDailyLossLimitAmount      = "daily_loss_limit_amount"
	ReasonZeroApprovedQty           = "approved_qty_zero"
)

// Engine evaluates proposed orders against Limits, PortfolioState, and
// AccountState. An optional Enforcer layers the versioned, file-loadable
// policy on top of the per-account Limits gate. Evaluate passes it only the
// open-position count, so the policy's position cap can reject an order
// here but its drawdown halt always sees zero drawdown.
type Engine struct {
	enforcer *Enforcer
}

// NewEngine constructs an Engine with no policy layer.
func NewEngine() *Engine { return &Engine{} }

// NewEngineWithPolicy constructs an Engine that also consults enforcer's
// CheckPortfolio before approving size.
func NewEngineWithPolicy(enforcer *Enforcer) *Engine { return &Engine{enforcer: enforcer} }

// Evaluate applies spec.md §4.6's sizing/cap/margin/daily-loss sequence to a
// single proposed order and returns a Decision.
func (e *Engine) Evaluate(limits Limits, portfolio PortfolioState, account AccountState, order OrderProposal) Decision {
	if limits.MaxOpenPositions > 0 && portfolio.OpenPositionsTotal >= limits.MaxOpenPositions {
		return Decision{Reason: ReasonMaxOpenPositions}
	}
	if limits.MaxOpenPositionsPerSymbol > 0 && portfolio.OpenPositionsForSymbol >= limits.MaxOpenPositionsPerSymbol {
		return Decision{Reason: ReasonMaxOpenPositionsPerSymbol}
	}

	if e.enforcer != nil {
		snap := PortfolioSnapshot{OpenPositions: portfolio.OpenPositionsTotal}
		if vs := e.enforcer.CheckPortfolio(snap); !vs.IsEmpty() {
			return Decision{Reason: string(vs[0].Code)}
		}
	}

	riskAmount := account.Equity * limits.RiskPerTradePct
	var maxUnits float64
	if order.StopDistancePips > 0 && order.PipSize > 0 {
		maxUnits = riskAmount / (order.PipSize * order.StopDistancePips)
	}

	requestedQty := math.Abs(order.RequestedQty)
	approvedQty := floorToStep(math.Min(requestedQty, maxUnits), limits.LotStep)
	if approvedQty <= 0 {
		return Decision{Reason: ReasonZeroApprovedQty}
	}

	notional := approvedQty * order.Mid
	if limits.MaxTotalNotional > 0 && portfolio.TotalNotional+notional > limits.MaxTotalNotional {
		return Decision{Reason: ReasonMaxTotalNotional}
	}
	if limits.MaxSymbolNotional > 0 && portfolio.SymbolNotional+notional > limits.MaxSymbolNotional {
		return Decision{Reason: ReasonMaxSymbolNotional}
	}

	requiredMargin := notional / limits.Leverage
	if account.FreeMargin < requiredMargin {
		return Decision{Reason: ReasonInsufficientMargin}
	}

	if reason, breached := dailyLossBreached(limits, account); breached {
		return Decision{Reason: reason}
	}

	return Decision{Allowed: true, ApprovedQty: approvedQty}
}

func dailyLossBreached(limits Limits, account AccountState) (string, bool) {
	if account.DayStartEquity <= 0 {
		return "", false
	}
	if limits.DailyLossLimitPct > 0 {
		floor := account.DayStartEquity * (1 - limits.DailyLossLimitPct)
		if account.Equity <= floor {
			return ReasonDailyLossLimitPct, true
		}
	}
	if limits.DailyLossLimitAmount > 0 {
		floor := account.DayStartEquity - limits.DailyLossLimitAmount
		if account.Equity <= floor {
			return ReasonDailyLossLimitAmount, true
		}
	}
	return "", false
}

// floorToStep rounds v down to the nearest multiple of step. A non-positive
// step disables rounding (returns v unchanged).
func floorToStep(v, step float64) float64 {
	if step <= 0 {
		return v
	}
	return math.Floor(v/step) * step
}
