package strategy

import (
	"context"
	"fmt"

	"jax-papertrader/internal/candles"
)

// EMACrossATR is the reference strategy: EMA(fast)/EMA(slow) crossover with
// Wilder ATR-derived stop-loss/take-profit hints. Grounded in the teacher's
// moving-average-crossover and RSI strategies' shape (Analyze over a window
// of indicator-bearing inputs, emit Signal/Intent with stop/target levels),
// recast onto this spec's window-of-candles input and EMA/ATR math.
type EMACrossATR struct {
	FastPeriod int
	SlowPeriod int
	ATRPeriod  int
	ATRSLMult  float64
	ATRTPMult  float64
}

// NewEMACrossATR builds the reference strategy with the given periods.
func NewEMACrossATR(fast, slow, atrPeriod int, slMult, tpMult float64) *EMACrossATR {
	return &EMACrossATR{FastPeriod: fast, SlowPeriod: slow, ATRPeriod: atrPeriod, ATRSLMult: slMult, ATRTPMult: tpMult}
}

func (s *EMACrossATR) ID() string   { return "ema_cross_atr_v1" }
func (s *EMACrossATR) Name() string { return "EMA Cross + ATR Hints" }

func (s *EMACrossATR) Analyze(ctx context.Context, window []candles.Candle) (Intent, error) {
	warmup := s.SlowPeriod
	if s.ATRPeriod > warmup {
		warmup = s.ATRPeriod
	}
	warmup++

	if len(window) < warmup {
		return Intent{
			Action: Hold,
			Reason: "insufficient_data",
		}, nil
	}

	last := window[len(window)-1]
	symbol, tf := last.Symbol, last.Timeframe

	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}

	fastEMA := ema(closes, s.FastPeriod)
	slowEMA := ema(closes, s.SlowPeriod)
	atrSeries := wilderATR(window, s.ATRPeriod)

	n := len(window)
	lastFast, lastSlow := fastEMA[n-1], slowEMA[n-1]
	prevFast, prevSlow := fastEMA[n-2], slowEMA[n-2]
	lastATR := atrSeries[n-1]

	action := Hold
	reason := "no_crossover"
	switch {
	case prevFast <= prevSlow && lastFast > lastSlow:
		action = Buy
		reason = "ema_fast_cross_above_slow"
	case prevFast >= prevSlow && lastFast < lastSlow:
		action = Sell
		reason = "ema_fast_cross_below_slow"
	}

	if hasGap(window) {
		reason += ",data_gap_detected"
	}

	intent := Intent{
		Action:    action,
		Reason:    reason,
		Symbol:    symbol,
		Timeframe: tf,
		Ts:        last.OpenTime,
		Indicators: Indicators{
			EMAFast: lastFast,
			EMASlow: lastSlow,
			ATR:     lastATR,
		},
	}

	entry := last.Close
	switch action {
	case Buy:
		intent.RiskHints = RiskHints{
			StopLossPrice:   entry - s.ATRSLMult*lastATR,
			TakeProfitPrice: entry + s.ATRTPMult*lastATR,
		}
	case Sell:
		intent.RiskHints = RiskHints{
			StopLossPrice:   entry + s.ATRSLMult*lastATR,
			TakeProfitPrice: entry - s.ATRTPMult*lastATR,
		}
	}

	intent.Summary = fmt.Sprintf("%s %s@%s ema_fast=%.5f ema_slow=%.5f atr=%.5f reason=%s",
		symbol, action, tf, lastFast, lastSlow, lastATR, reason)

	return intent, nil
}

// ema computes the exponential moving average series for period, seeded by
// a simple average of the first `period` values (matching the common
// charting convention); values before the seed index hold the running
// simple average of the values so far.
func ema(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	if period < 1 {
		period = 1
	}
	alpha := 2.0 / (float64(period) + 1.0)

	seedIdx := period - 1
	if seedIdx >= len(values) {
		seedIdx = len(values) - 1
	}

	var sum float64
	for i := 0; i <= seedIdx; i++ {
		sum += values[i]
		out[i] = sum / float64(i+1)
	}

	prev := out[seedIdx]
	for i := seedIdx + 1; i < len(values); i++ {
		prev = alpha*values[i] + (1-alpha)*prev
		out[i] = prev
	}
	return out
}

// wilderATR computes the Average True Range series using Wilder smoothing.
func wilderATR(window []candles.Candle, period int) []float64 {
	n := len(window)
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	if period < 1 {
		period = 1
	}

	tr := make([]float64, n)
	tr[0] = window[0].High - window[0].Low
	for i := 1; i < n; i++ {
		highLow := window[i].High - window[i].Low
		highPrevClose := abs(window[i].High - window[i-1].Close)
		lowPrevClose := abs(window[i].Low - window[i-1].Close)
		tr[i] = max3(highLow, highPrevClose, lowPrevClose)
	}

	seedIdx := period - 1
	if seedIdx >= n {
		seedIdx = n - 1
	}
	var sum float64
	for i := 0; i <= seedIdx; i++ {
		sum += tr[i]
		out[i] = sum / float64(i+1)
	}

	prev := out[seedIdx]
	for i := seedIdx + 1; i < n; i++ {
		prev = (prev*float64(period-1) + tr[i]) / float64(period)
		out[i] = prev
	}
	return out
}

// hasGap reports whether window contains any spacing between consecutive
// open_times that differs from the modal spacing (a simple, dependency-free
// way to flag provider gaps without a session calendar).
func hasGap(window []candles.Candle) bool {
	if len(window) < 2 {
		return false
	}
	expected := window[1].OpenTime.Sub(window[0].OpenTime)
	for i := 1; i < len(window); i++ {
		if window[i].OpenTime.Sub(window[i-1].OpenTime) != expected {
			return true
		}
	}
	return false
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}
