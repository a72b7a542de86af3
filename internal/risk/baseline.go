package risk

import (
	"context"
	"time"
)

// DailyBaseline is the (account, day) opening-equity row used by the
// daily-loss breach check. Day is the UTC calendar date of the candle the
// baseline was first observed at.
type DailyBaseline struct {
	AccountID      string
	Day            time.Time
	DayStartEquity float64
}

// BaselineStore persists DailyBaseline rows keyed by (account_id, day).
type BaselineStore interface {
	// GetOrCreate returns the existing baseline for (accountID, day) or
	// creates one seeded with equity, idempotently: the first snapshot
	// recorded for a day wins and later calls are no-ops.
	GetOrCreate(ctx context.Context, accountID string, day time.Time, equity float64) (DailyBaseline, error)
}

// DayStartEquity resolves the day's opening-equity baseline for asofOpenTime,
// creating it on first observation for that UTC calendar day.
func DayStartEquity(ctx context.Context, store BaselineStore, accountID string, asofOpenTime time.Time, currentEquity float64) (float64, error) {
	day := utcDate(asofOpenTime)
	baseline, err := store.GetOrCreate(ctx, accountID, day, currentEquity)
	if err != nil {
		return 0, err
	}
	return baseline.DayStartEquity, nil
}

func utcDate(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
