package marketdata

import (
	"context"
	"math"
	"time"

	"jax-papertrader/internal/candles"
)

// SyntheticAdapter is a deterministic candle generator: the same
// (symbol, tf, start, end) always yields byte-identical candles, with no
// dependence on wall-clock time or any process-external randomness. It
// exists so tests and local runs can drive the engine without a real vendor.
type SyntheticAdapter struct {
	// BasePrice anchors the generated series (defaults to 1.10 if zero).
	BasePrice float64
	// AmplitudePips controls how far the synthetic price oscillates.
	AmplitudePips float64
	// PipSize converts AmplitudePips to a price delta.
	PipSize float64
}

// NewSyntheticAdapter returns a SyntheticAdapter with EURUSD-scale defaults.
func NewSyntheticAdapter() *SyntheticAdapter {
	return &SyntheticAdapter{BasePrice: 1.10, AmplitudePips: 20, PipSize: 0.0001}
}

func (a *SyntheticAdapter) FetchCandles(ctx context.Context, symbol, tf string, start, end time.Time) ([]candles.Candle, error) {
	d, err := candles.Duration(tf)
	if err != nil {
		return nil, err
	}

	aligned, err := candles.AlignToGrid(start, tf)
	if err != nil {
		return nil, err
	}
	if aligned.Before(start) {
		aligned = aligned.Add(d)
	}

	base := a.BasePrice
	if base == 0 {
		base = 1.10
	}
	amp := a.AmplitudePips
	if amp == 0 {
		amp = 20
	}
	pip := a.PipSize
	if pip == 0 {
		pip = 0.0001
	}

	var out []candles.Candle
	for t := aligned; !t.After(end); t = t.Add(d) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		phase := float64(t.Unix()) / float64(d.Seconds()*24)
		mid := base + amp*pip*math.Sin(phase)
		spread := 3 * pip

		c := candles.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  t.UTC(),
			Open:      round(mid, pip),
			High:      round(mid+spread, pip),
			Low:       round(mid-spread, pip),
			Close:     round(mid+spread*math.Sin(phase*3), pip),
			Volume:    1000 + math.Mod(float64(t.Unix()), 500),
			Source:    "synthetic",
		}
		out = append(out, c)
	}
	return out, nil
}

func round(v, step float64) float64 {
	return math.Round(v/step) * step
}
