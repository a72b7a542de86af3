// Package marketdata provides the vendor adapter contract consumed by
// ingestion (C2): a pure fetch_candles capability plus a deterministic
// synthetic implementation for tests and a REST-backed implementation for a
// real vendor.
package marketdata

import (
	"context"
	"time"

	"jax-papertrader/internal/candles"
)

// VendorAdapter is the capability C2 consumes: fetch closed, aligned,
// UTC-timestamped bars for [start, end]. Implementations must be pure with
// respect to the core — no side effects beyond the network call itself.
type VendorAdapter interface {
	FetchCandles(ctx context.Context, symbol, tf string, start, end time.Time) ([]candles.Candle, error)
}
