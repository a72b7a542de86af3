package candles

import (
	"context"
	"time"
)

// Retention implements C10: pruning candles older than a configured
// horizon. This is the only path in the core where wall-clock time enters a
// decision — the cutoff never influences positions, fills, or equity
// because pruned candles are never referenced by a live decision.
type Retention struct {
	Store Store
}

// NewRetention wraps a Store.
func NewRetention(store Store) *Retention {
	return &Retention{Store: store}
}

// Prune deletes candles for (symbol, tf) whose open_time is older than
// now - beforeDays, returning the number deleted and the cutoff used.
func (r *Retention) Prune(ctx context.Context, symbol, tf string, beforeDays int, now time.Time) (int64, time.Time, error) {
	cutoff := now.Add(-time.Duration(beforeDays) * 24 * time.Hour)
	deleted, err := r.Store.DeleteOlderThan(ctx, symbol, tf, cutoff)
	if err != nil {
		return 0, cutoff, err
	}
	return deleted, cutoff, nil
}
