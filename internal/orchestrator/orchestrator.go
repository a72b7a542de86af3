package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"jax-papertrader/internal/accounting"
	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/candles"
	"jax-papertrader/internal/execution"
	"jax-papertrader/internal/oms"
	"jax-papertrader/internal/risk"
	"jax-papertrader/internal/strategy"
)

// Config holds the cycle's fixed parameters.
type Config struct {
	Symbol          string
	Timeframe       string
	WindowSize      int
	DefaultOrderQty float64
}

// Orchestrator drives one cycle end to end: verify candle, MTM, intent,
// order, fill, accounting, report. Grounded in the teacher's
// Orchestrator.Run shape (validate inputs, gather context from collaborators,
// persist one report row) but rewritten for the deterministic trading
// pipeline in place of AI-agent planning.
type Orchestrator struct {
	candles    candles.Store
	reports    Store
	strategies *strategy.Registry
	strategyID string
	oms        *oms.Service
	execution  *execution.Engine
	accounting *accounting.Engine
	cfg        Config

	cycleLocksMu sync.Mutex
	cycleLocks   map[string]*sync.Mutex
}

// NewOrchestrator wires the collaborators RunCycle needs.
func NewOrchestrator(
	candleStore candles.Store,
	reportStore Store,
	strategies *strategy.Registry,
	strategyID string,
	omsService *oms.Service,
	executionEngine *execution.Engine,
	accountingEngine *accounting.Engine,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		candles:    candleStore,
		reports:    reportStore,
		strategies: strategies,
		strategyID: strategyID,
		oms:        omsService,
		execution:  executionEngine,
		accounting: accountingEngine,
		cfg:        cfg,
		cycleLocks: make(map[string]*sync.Mutex),
	}
}

// cycleLock returns the process-wide mutex serializing RunCycle calls for
// (symbol, tf), creating it on first use. Two callers racing to run the same
// symbol/timeframe (a scheduler tick and a control-surface request, say)
// serialize here instead of double-running the cycle.
func (o *Orchestrator) cycleLock(symbol, tf string) *sync.Mutex {
	key := symbol + "/" + tf
	o.cycleLocksMu.Lock()
	defer o.cycleLocksMu.Unlock()
	l, ok := o.cycleLocks[key]
	if !ok {
		l = &sync.Mutex{}
		o.cycleLocks[key] = l
	}
	return l
}

// RunCycle runs the 10-step cycle for (symbol, tf, candleTs). An error from
// any step after the candle check and the prior-report lookup is captured
// into an ERROR report, persisted, and returned alongside the error so the
// caller can log it. A missing candle, a store error during those two
// lookups, or a failure to persist the report is returned with an empty
// report and nothing persisted.
func (o *Orchestrator) RunCycle(ctx context.Context, symbol, tf string, candleTs time.Time) (RunReport, error) {
	lock := o.cycleLock(symbol, tf)
	lock.Lock()
	defer lock.Unlock()

	candle, found, err := o.candleAt(ctx, symbol, tf, candleTs)
	if err != nil {
		return RunReport{}, err
	}
	if !found {
		return RunReport{}, apperr.New(apperr.KindDeterminism, fmt.Sprintf("orchestrator: no candle at %s for %s/%s", candleTs, symbol, tf))
	}

	if prior, ok, err := o.reports.GetReport(ctx, symbol, tf, candleTs); err != nil {
		return RunReport{}, err
	} else if ok && prior.Status != StatusError {
		return prior, nil
	}

	report, cycleErr := o.runCycle(ctx, symbol, tf, candleTs, candle)
	if cycleErr != nil {
		report = RunReport{
			RunID:     cycleRunID(symbol, tf, candleTs),
			Status:    StatusError,
			Symbol:    symbol,
			Timeframe: tf,
			CandleTs:  candleTs,
			ErrorText: cycleErr.Error(),
			CreatedAt: time.Now().UTC(),
		}
		report.SummaryText = fmt.Sprintf("cycle failed: %v", cycleErr)
		report.TelegramText = telegramText(report)
		if err := o.reports.InsertReport(ctx, report); err != nil {
			return RunReport{}, err
		}
		return report, cycleErr
	}

	if err := o.reports.InsertReport(ctx, report); err != nil {
		return RunReport{}, err
	}
	return report, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, symbol, tf string, candleTs time.Time, candle candles.Candle) (RunReport, error) {
	snap, err := o.accounting.MarkToMarket(ctx, candleTs, candle.Open)
	if err != nil {
		return RunReport{}, err
	}

	window, err := o.window(ctx, symbol, tf, candleTs)
	if err != nil {
		return RunReport{}, err
	}

	strat, ok := o.strategies.Get(o.strategyID)
	if !ok {
		return RunReport{}, apperr.New(apperr.KindValidation, fmt.Sprintf("orchestrator: unknown strategy %q", o.strategyID))
	}
	intent, err := strat.Analyze(ctx, window)
	if err != nil {
		return RunReport{}, err
	}

	position, hasPosition, err := o.accounting.Position(ctx, symbol)
	if err != nil {
		return RunReport{}, err
	}

	if intent.Action == strategy.Hold || (intent.Action == strategy.Close && (!hasPosition || position.NetQty == 0)) {
		positions, err := o.accounting.Positions(ctx)
		if err != nil {
			return RunReport{}, err
		}
		report := RunReport{
			RunID:       cycleRunID(symbol, tf, candleTs),
			Status:      StatusNOOP,
			Symbol:      symbol,
			Timeframe:   tf,
			CandleTs:    candleTs,
			Intent:      &intent,
			Positions:   positions,
			Account:     &snap,
			SummaryText: fmt.Sprintf("no action: %s (%s)", intent.Action, intent.Reason),
			CreatedAt:   time.Now().UTC(),
		}
		report.TelegramText = telegramText(report)
		return report, nil
	}

	plan := o.derivePlan(intent, position, hasPosition)
	idempotencyKey := cycleIdempotencyKey(symbol, tf, candleTs, plan.Side)

	order, err := o.oms.Place(ctx, oms.PlaceRequest{
		Symbol:         plan.Symbol,
		Timeframe:      plan.Timeframe,
		Side:           plan.Side,
		RequestedQty:   plan.Qty,
		StopLossPrice:  plan.StopLossPrice,
		IdempotencyKey: idempotencyKey,
		Ts:             candleTs,
	})
	if err != nil {
		return RunReport{}, err
	}

	decision := &risk.Decision{
		Allowed: order.Status != oms.StatusRejected,
		Reason:  order.Reason,
	}
	if decision.Allowed {
		decision.ApprovedQty = order.Qty
	}

	var fillPtr *execution.Fill
	if order.Status == oms.StatusNew {
		fills, err := o.execution.ProcessNewOrdersForCandle(ctx, candleTs, symbol, tf)
		if err != nil {
			return RunReport{}, err
		}
		for i := range fills {
			if fills[i].OrderID == order.ID {
				fillPtr = &fills[i]
				break
			}
		}
	}

	if fillPtr != nil {
		if _, _, err := o.accounting.ProcessAccountingForCandle(ctx, symbol, candleTs, candle.Open); err != nil {
			return RunReport{}, err
		}
		snap, err = o.accounting.MarkToMarket(ctx, candleTs, candle.Open)
		if err != nil {
			return RunReport{}, err
		}
	}

	positions, err := o.accounting.Positions(ctx)
	if err != nil {
		return RunReport{}, err
	}

	report := RunReport{
		RunID:        cycleRunID(symbol, tf, candleTs),
		Status:       StatusOK,
		Symbol:       symbol,
		Timeframe:    tf,
		CandleTs:     candleTs,
		Intent:       &intent,
		RiskDecision: decision,
		Order:        &order,
		Fill:         fillPtr,
		Positions:    positions,
		Account:      &snap,
		SummaryText:  fmt.Sprintf("%s %s qty=%.2f status=%s", intent.Action, symbol, order.Qty, order.Status),
		CreatedAt:    time.Now().UTC(),
	}
	report.TelegramText = telegramText(report)
	return report, nil
}

// derivePlan translates an actionable intent into an OrderPlan. BUY/SELL
// intents open or add in the signaled direction at the configured default
// size (the risk engine is the sole authority on the size actually
// approved); a CLOSE intent flattens the existing position exactly.
func (o *Orchestrator) derivePlan(intent strategy.Intent, position accounting.Position, hasPosition bool) OrderPlan {
	plan := OrderPlan{Symbol: o.cfg.Symbol, Timeframe: o.cfg.Timeframe}

	if intent.Action == strategy.Close {
		plan.Qty = abs(position.NetQty)
		if position.NetQty > 0 {
			plan.Side = oms.Sell
		} else {
			plan.Side = oms.Buy
		}
		return plan
	}

	plan.Qty = o.cfg.DefaultOrderQty
	plan.StopLossPrice = intent.RiskHints.StopLossPrice
	if intent.Action == strategy.Sell {
		plan.Side = oms.Sell
	} else {
		plan.Side = oms.Buy
	}
	return plan
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// candleAt fetches the exact candle for candleTs, used both to verify its
// existence (step 1) and to supply the open price MTM/execution need.
func (o *Orchestrator) candleAt(ctx context.Context, symbol, tf string, candleTs time.Time) (candles.Candle, bool, error) {
	rows, err := o.candles.Range(ctx, symbol, tf, &candleTs, &candleTs, 1)
	if err != nil {
		return candles.Candle{}, false, err
	}
	if len(rows) == 0 {
		return candles.Candle{}, false, nil
	}
	return rows[0], true, nil
}

// window fetches up to WindowSize candles ending at candleTs, oldest first,
// the shape strategy.Strategy.Analyze expects.
func (o *Orchestrator) window(ctx context.Context, symbol, tf string, candleTs time.Time) ([]candles.Candle, error) {
	rows, err := o.candles.Range(ctx, symbol, tf, nil, &candleTs, 0)
	if err != nil {
		return nil, err
	}
	if len(rows) <= o.cfg.WindowSize || o.cfg.WindowSize <= 0 {
		return rows, nil
	}
	return rows[len(rows)-o.cfg.WindowSize:], nil
}

// cycleIdempotencyKey computes uuid5(namespace, "symbol|tf|candle_ts|side"),
// making the order placed by a given cycle deterministic and stable across
// retries — grounded in the teacher's artifacts.builder deterministic-ID use
// of uuid.NewSHA1(uuid.NameSpaceOID, ...).
func cycleIdempotencyKey(symbol, tf string, candleTs time.Time, side oms.Side) string {
	name := fmt.Sprintf("%s|%s|%s|%s", symbol, tf, candleTs.UTC().Format(time.RFC3339), side)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

// cycleRunID computes uuid5(namespace, "symbol|tf|candle_ts"), so every run
// of the same cycle carries the same run_id.
func cycleRunID(symbol, tf string, candleTs time.Time) string {
	name := fmt.Sprintf("%s|%s|%s", symbol, tf, candleTs.UTC().Format(time.RFC3339))
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}

func telegramText(r RunReport) string {
	text := fmt.Sprintf("run_id=%s status=%s symbol=%s tf=%s candle_ts=%s\n%s",
		r.RunID, r.Status, r.Symbol, r.Timeframe, r.CandleTs.UTC().Format(time.RFC3339), r.SummaryText)
	if r.Order != nil {
		text += fmt.Sprintf("\norder=%s side=%s qty=%.2f status=%s", r.Order.ID, r.Order.Side, r.Order.Qty, r.Order.Status)
	}
	if r.Account != nil {
		text += fmt.Sprintf("\nequity=%.2f free_margin=%.2f", r.Account.Equity, r.Account.FreeMargin)
	}
	if r.ErrorText != "" {
		text += fmt.Sprintf("\nerror=%s", r.ErrorText)
	}
	return text
}
