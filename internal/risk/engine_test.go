package risk

import "testing"

func baseLimits() Limits {
	return Limits{
		MaxOpenPositions:          10,
		MaxOpenPositionsPerSymbol: 1,
		MaxTotalNotional:          1_000_000,
		MaxSymbolNotional:         500_000,
		RiskPerTradePct:           0.02,
		DailyLossLimitPct:         0.05,
		DailyLossLimitAmount:      1000,
		Leverage:                  50,
		LotStep:                   1000,
	}
}

func TestEngine_ApprovesWithinLimits(t *testing.T) {
	e := NewEngine()
	d := e.Evaluate(baseLimits(),
		PortfolioState{},
		AccountState{Equity: 10000, FreeMargin: 10000, DayStartEquity: 10000},
		OrderProposal{Symbol: "EURUSD", Side: "BUY", RequestedQty: 100000, Mid: 1.1, PipSize: 0.0001, StopDistancePips: 20},
	)
	if !d.Allowed {
		t.Fatalf("expected order to be allowed, got reason=%s", d.Reason)
	}
	if d.ApprovedQty <= 0 {
		t.Errorf("expected positive approved qty, got %v", d.ApprovedQty)
	}
}

func TestEngine_RejectsMaxOpenPositionsPerSymbol(t *testing.T) {
	e := NewEngine()
	d := e.Evaluate(baseLimits(),
		PortfolioState{OpenPositionsForSymbol: 1},
		AccountState{Equity: 10000, FreeMargin: 10000, DayStartEquity: 10000},
		OrderProposal{Symbol: "EURUSD", Side: "BUY", RequestedQty: 100000, Mid: 1.1, PipSize: 0.0001, StopDistancePips: 20},
	)
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Reason != ReasonMaxOpenPositionsPerSymbol {
		t.Errorf("expected reason %q, got %q", ReasonMaxOpenPositionsPerSymbol, d.Reason)
	}
}

func TestEngine_RejectsInsufficientFreeMargin(t *testing.T) {
	e := NewEngine()
	limits := baseLimits()
	limits.RiskPerTradePct = 1.0
	limits.LotStep = 1
	limits.MaxTotalNotional = 1e9
	limits.MaxSymbolNotional = 1e9
	d := e.Evaluate(limits,
		PortfolioState{},
		AccountState{Equity: 10000, FreeMargin: 1, DayStartEquity: 10000},
		OrderProposal{Symbol: "EURUSD", Side: "BUY", RequestedQty: 1000, Mid: 1.1, PipSize: 0.0001, StopDistancePips: 5},
	)
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Reason != ReasonInsufficientMargin {
		t.Errorf("expected reason %q, got %q", ReasonInsufficientMargin, d.Reason)
	}
}

func TestEngine_RejectsDailyLossLimitPct(t *testing.T) {
	e := NewEngine()
	d := e.Evaluate(baseLimits(),
		PortfolioState{},
		AccountState{Equity: 9000, FreeMargin: 10000, DayStartEquity: 10000}, // 10% drawdown > 5% limit
		OrderProposal{Symbol: "EURUSD", Side: "BUY", RequestedQty: 1000, Mid: 1.1, PipSize: 0.0001, StopDistancePips: 20},
	)
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Reason != ReasonDailyLossLimitPct {
		t.Errorf("expected reason %q, got %q", ReasonDailyLossLimitPct, d.Reason)
	}
}

func TestEngine_ZeroApprovedQtyWhenStopTooWide(t *testing.T) {
	e := NewEngine()
	limits := baseLimits()
	limits.RiskPerTradePct = 0.0001
	d := e.Evaluate(limits,
		PortfolioState{},
		AccountState{Equity: 10000, FreeMargin: 10000, DayStartEquity: 10000},
		OrderProposal{Symbol: "EURUSD", Side: "BUY", RequestedQty: 100, Mid: 1.1, PipSize: 0.0001, StopDistancePips: 5000},
	)
	if d.Allowed {
		t.Fatal("expected rejection")
	}
	if d.Reason != ReasonZeroApprovedQty {
		t.Errorf("expected reason %q, got %q", ReasonZeroApprovedQty, d.Reason)
	}
}

func TestFloorToStep(t *testing.T) {
	cases := []struct {
		v, step, want float64
	}{
		{1234, 1000, 1000},
		{999, 1000, 0},
		{2500, 500, 2500},
		{5, 0, 5},
	}
	for _, c := range cases {
		if got := floorToStep(c.v, c.step); got != c.want {
			t.Errorf("floorToStep(%v, %v) = %v, want %v", c.v, c.step, got, c.want)
		}
	}
}
