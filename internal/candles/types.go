// Package candles implements the candle store (C1), ingestion/integrity
// checking (C2), and retention pruning (C10) for a single instrument.
package candles

import (
	"fmt"
	"time"
)

// Candle is one closed OHLCV bar for (symbol, timeframe, open_time).
type Candle struct {
	Symbol    string
	Timeframe string
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	Source    string
	IngestedAt time.Time
}

// Validate checks the OHLC sanity invariants spec.md requires. It does not
// check timeframe-grid alignment — that needs a Timeframe to compute against.
func (c Candle) Validate() error {
	if c.High < c.Open || c.High < c.Close || c.High < c.Low {
		return fmt.Errorf("high %v below max(open=%v, close=%v, low=%v)", c.High, c.Open, c.Close, c.Low)
	}
	if c.Low > c.Open || c.Low > c.Close || c.Low > c.High {
		return fmt.Errorf("low %v above min(open=%v, close=%v, high=%v)", c.Low, c.Open, c.Close, c.High)
	}
	if c.Symbol == "" || c.Timeframe == "" {
		return fmt.Errorf("symbol and timeframe are required")
	}
	if c.OpenTime.IsZero() {
		return fmt.Errorf("open_time is required")
	}
	return nil
}

// MissingRange is a maximal contiguous run of absent timeframe slots.
type MissingRange struct {
	FirstMissingOpenTime time.Time
	LastMissingOpenTime  time.Time
}

// IntegrityReport summarizes gap/duplicate detection over a window.
type IntegrityReport struct {
	Earliest        time.Time
	Latest          time.Time
	Expected        int
	Actual          int
	MissingRanges   []MissingRange
	DuplicatesCount int
	IsComplete      bool
}
