package marketdata

import (
	"context"
	"log"
	"time"

	"jax-papertrader/internal/candles"
)

// CachedAdapter wraps a VendorAdapter with an optional Redis cache, grounded
// in the teacher's fallback Client but collapsed to a single underlying
// adapter since this spec defines one vendor contract, not N with priority
// fallback.
type CachedAdapter struct {
	underlying VendorAdapter
	cache      *Cache
}

// NewCachedAdapter wraps underlying with cache. cache may be nil, in which
// case every call passes straight through.
func NewCachedAdapter(underlying VendorAdapter, cache *Cache) *CachedAdapter {
	return &CachedAdapter{underlying: underlying, cache: cache}
}

func (a *CachedAdapter) FetchCandles(ctx context.Context, symbol, tf string, start, end time.Time) ([]candles.Candle, error) {
	if a.cache != nil {
		if cs, ok := a.cache.Get(ctx, symbol, tf, start, end); ok {
			return cs, nil
		}
	}

	cs, err := a.underlying.FetchCandles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}

	if a.cache != nil {
		if err := a.cache.Set(ctx, symbol, tf, start, end, cs); err != nil {
			log.Printf("marketdata cache: failed to cache %s/%s: %v", symbol, tf, err)
		}
	}
	return cs, nil
}
