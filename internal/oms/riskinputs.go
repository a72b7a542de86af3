package oms

import (
	"context"
	"time"

	"jax-papertrader/internal/accounting"
	"jax-papertrader/internal/risk"
)

// AccountingRiskInputs implements RiskInputsProvider by reading portfolio and
// account facts off the accounting engine's stored positions and latest
// snapshot, paired with a fixed set of account Limits and a BaselineStore
// for the daily-loss breaker's opening-equity reference.
type AccountingRiskInputs struct {
	Accounting *accounting.Engine
	Baselines  risk.BaselineStore
	AccountID  string
	Limits     risk.Limits
}

// RiskInputs gathers Limits, PortfolioState, and AccountState for symbol.
// Equity defaults to zero when no snapshot has ever been recorded (e.g. a
// brand-new account before its first mark-to-market), which correctly fails
// closed on any margin/notional check downstream.
func (p *AccountingRiskInputs) RiskInputs(ctx context.Context, symbol string, asofOpenTime time.Time) (RiskInputs, error) {
	positions, err := p.Accounting.Positions(ctx)
	if err != nil {
		return RiskInputs{}, err
	}

	var portfolio risk.PortfolioState
	for _, pos := range positions {
		if pos.NetQty == 0 {
			continue
		}
		notional := abs(pos.NetQty) * pos.AvgEntryPrice
		portfolio.OpenPositionsTotal++
		portfolio.TotalNotional += notional
		if pos.Symbol == symbol {
			portfolio.OpenPositionsForSymbol++
			portfolio.SymbolNotional += notional
		}
	}

	snap, found, err := p.Accounting.LatestSnapshot(ctx)
	if err != nil {
		return RiskInputs{}, err
	}
	var account risk.AccountState
	if found {
		account.Equity = snap.Equity
		account.FreeMargin = snap.FreeMargin
	}

	dayStart, err := risk.DayStartEquity(ctx, p.Baselines, p.AccountID, asofOpenTime, account.Equity)
	if err != nil {
		return RiskInputs{}, err
	}
	account.DayStartEquity = dayStart

	return RiskInputs{Limits: p.Limits, Portfolio: portfolio, Account: account}, nil
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
