// Package execution implements the Execution Engine (C4): the next-open
// fill rule that turns a NEW order into exactly one Fill, transactionally,
// with no randomness or dependence on wall time.
package execution

import "time"

// Fill is the persisted fill row produced for a single order.
type Fill struct {
	ID        string
	OrderID   string
	Symbol    string
	Timeframe string
	Side      string
	Qty       float64
	Price     float64
	Ts        time.Time
}

// OrderRef is the subset of an order's fields the engine needs to decide
// eligibility and compute a fill.
type OrderRef struct {
	ID     string
	Ts     time.Time
	Side   string
	Qty    float64
	Symbol string
}
