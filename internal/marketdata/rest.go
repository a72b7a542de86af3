package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"jax-papertrader/internal/candles"
	"jax-papertrader/internal/resilience"
)

// RESTAdapter fetches candles from a real HTTP-reachable vendor, wrapped in
// a circuit breaker so a degraded vendor fails fast instead of stalling an
// orchestrator cycle.
type RESTAdapter struct {
	BaseURL string
	Client  *http.Client
	breaker *resilience.CircuitBreaker
}

// NewRESTAdapter builds a RESTAdapter against baseURL.
func NewRESTAdapter(baseURL string) *RESTAdapter {
	return &RESTAdapter{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
		breaker: resilience.NewCircuitBreaker(resilience.DefaultConfig("marketdata-rest")),
	}
}

type restCandle struct {
	OpenTime string  `json:"open_time"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
}

func (a *RESTAdapter) FetchCandles(ctx context.Context, symbol, tf string, start, end time.Time) ([]candles.Candle, error) {
	result, err := a.breaker.ExecuteWithContext(ctx, func() (any, error) {
		return a.fetch(ctx, symbol, tf, start, end)
	})
	if err != nil {
		return nil, err
	}
	return result.([]candles.Candle), nil
}

func (a *RESTAdapter) fetch(ctx context.Context, symbol, tf string, start, end time.Time) ([]candles.Candle, error) {
	u, err := url.Parse(a.BaseURL + "/candles")
	if err != nil {
		return nil, fmt.Errorf("vendor: invalid base url: %w", err)
	}
	q := u.Query()
	q.Set("symbol", symbol)
	q.Set("timeframe", tf)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("vendor: build request: %w", err)
	}

	resp, err := a.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vendor: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vendor: unexpected status %d", resp.StatusCode)
	}

	var payload []restCandle
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("vendor: decode response: %w", err)
	}

	out := make([]candles.Candle, 0, len(payload))
	for _, rc := range payload {
		ts, err := time.Parse(time.RFC3339, rc.OpenTime)
		if err != nil {
			continue
		}
		out = append(out, candles.Candle{
			Symbol:    symbol,
			Timeframe: tf,
			OpenTime:  ts.UTC(),
			Open:      rc.Open,
			High:      rc.High,
			Low:       rc.Low,
			Close:     rc.Close,
			Volume:    rc.Volume,
			Source:    "vendor",
		})
	}
	return out, nil
}
