// Package pricing implements the deterministic bid/ask/slippage model (C3).
// Every derivation is a pure function of a candle's open and the configured
// spread/slippage/pip parameters — no randomness, no dependence on quantity
// or wall time.
package pricing

// Side is the direction of an order or position.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Config holds the instrument's pricing parameters.
type Config struct {
	SpreadPips   float64
	SlippagePips float64
	PipSize      float64
}

// Quote is the bid/ask derived from a candle's open.
type Quote struct {
	Mid float64
	Bid float64
	Ask float64
}

// Model derives quotes and fill/mark prices from Config.
type Model struct {
	Config Config
}

// NewModel wraps a Config.
func NewModel(cfg Config) *Model {
	return &Model{Config: cfg}
}

// Quote computes the mid/bid/ask for a candle's open price.
func (m *Model) Quote(open float64) Quote {
	halfSpread := m.Config.SpreadPips * m.Config.PipSize / 2
	return Quote{
		Mid: open,
		Bid: open - halfSpread,
		Ask: open + halfSpread,
	}
}

// FillPrice returns the price at which an order on side fills against a
// candle's open: BUY fills at ask plus slippage, SELL fills at bid minus
// slippage.
func (m *Model) FillPrice(side Side, open float64) float64 {
	q := m.Quote(open)
	slip := m.Config.SlippagePips * m.Config.PipSize
	switch side {
	case Buy:
		return q.Ask + slip
	case Sell:
		return q.Bid - slip
	default:
		return q.Mid
	}
}

// MarkPrice returns the price used to value an open position for
// mark-to-market: longs are valued at bid, shorts at ask.
func (m *Model) MarkPrice(side Side, open float64) float64 {
	q := m.Quote(open)
	switch side {
	case Buy:
		return q.Bid
	case Sell:
		return q.Ask
	default:
		return q.Mid
	}
}
