package pricing

import "testing"

func TestModel_DeterministicFillPricing(t *testing.T) {
	m := NewModel(Config{SpreadPips: 1.0, SlippagePips: 0.5, PipSize: 0.00010})

	q := m.Quote(1.10000)
	if !almostEqual(q.Bid, 1.09995) {
		t.Errorf("expected bid=1.09995, got %v", q.Bid)
	}
	if !almostEqual(q.Ask, 1.10005) {
		t.Errorf("expected ask=1.10005, got %v", q.Ask)
	}

	buyFill := m.FillPrice(Buy, 1.10000)
	if !almostEqual(buyFill, 1.10010) {
		t.Errorf("expected BUY fill=1.10010, got %v", buyFill)
	}

	sellFill := m.FillPrice(Sell, 1.10000)
	if !almostEqual(sellFill, 1.09990) {
		t.Errorf("expected SELL fill=1.09990, got %v", sellFill)
	}
}

func TestModel_MarkPriceBySide(t *testing.T) {
	m := NewModel(Config{SpreadPips: 1.0, SlippagePips: 0.5, PipSize: 0.0001})

	if mark := m.MarkPrice(Buy, 1.10000); !almostEqual(mark, 1.09995) {
		t.Errorf("expected long mark=bid, got %v", mark)
	}
	if mark := m.MarkPrice(Sell, 1.10000); !almostEqual(mark, 1.10005) {
		t.Errorf("expected short mark=ask, got %v", mark)
	}
}

func almostEqual(a, b float64) bool {
	const eps = 1e-9
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < eps
}
