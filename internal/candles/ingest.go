package candles

import (
	"context"
	"time"

	"jax-papertrader/internal/apperr"
)

// VendorAdapter is the capability Ingestor consumes. Defined here (rather
// than imported from the marketdata package) to avoid a dependency cycle —
// marketdata.VendorAdapter satisfies this interface structurally.
type VendorAdapter interface {
	FetchCandles(ctx context.Context, symbol, tf string, start, end time.Time) ([]Candle, error)
}

// IngestResult summarizes one Ingest or Backfill call.
type IngestResult struct {
	Accepted int
	Skipped  []SkipReason
	Window   struct {
		Start time.Time
		End   time.Time
	}
	Integrity IntegrityReport
}

// Ingestor implements C2: pull from a vendor adapter, validate, upsert with
// overlap, then check integrity over the fetched window.
type Ingestor struct {
	Store   Store
	Vendor  VendorAdapter
	Overlap int // overlap_candles
}

// NewIngestor wires a Store and VendorAdapter.
func NewIngestor(store Store, vendor VendorAdapter, overlapCandles int) *Ingestor {
	return &Ingestor{Store: store, Vendor: vendor, Overlap: overlapCandles}
}

// Ingest implements the 4-step ingestion policy against "now" aligned to tf.
func (in *Ingestor) Ingest(ctx context.Context, symbol, tf string, initialBackfillDays int, now time.Time) (*IngestResult, error) {
	d, err := Duration(tf)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "unknown timeframe", err)
	}

	nowAligned, err := AlignToGrid(now, tf)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "failed to align now", err)
	}

	var start time.Time
	latest, err := in.Store.Latest(ctx, symbol, tf)
	switch {
	case err == nil:
		start = latest.OpenTime.Add(-time.Duration(in.Overlap) * d)
	case isNotFound(err):
		start = nowAligned.Add(-time.Duration(initialBackfillDays) * 24 * time.Hour)
	default:
		return nil, err
	}

	return in.fetchValidateUpsert(ctx, symbol, tf, start, nowAligned)
}

// Backfill fetches and upserts an explicit [start, end] window.
func (in *Ingestor) Backfill(ctx context.Context, symbol, tf string, start, end time.Time) (*IngestResult, error) {
	return in.fetchValidateUpsert(ctx, symbol, tf, start, end)
}

func (in *Ingestor) fetchValidateUpsert(ctx context.Context, symbol, tf string, start, end time.Time) (*IngestResult, error) {
	fetched, err := in.Vendor.FetchCandles(ctx, symbol, tf, start, end)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindVendorDown, "vendor fetch failed", err)
	}

	accepted, skipped, err := in.Store.UpsertMany(ctx, fetched)
	if err != nil {
		return nil, err
	}

	report, err := Integrity(ctx, in.Store, symbol, tf, start, end)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{Accepted: accepted, Skipped: skipped, Integrity: *report}
	result.Window.Start = start
	result.Window.End = end
	return result, nil
}

func isNotFound(err error) bool {
	kind, ok := apperr.KindOf(err)
	return ok && kind == apperr.KindNotFound
}

// Integrity computes the gap/duplicate report over [start, end] for
// (symbol, tf). Duplicates cannot occur under the store's primary-key
// constraint, so duplicates_count is always 0 here; it is retained in the
// report shape for forward-compatibility with non-unique-constrained stores.
func Integrity(ctx context.Context, store Store, symbol, tf string, start, end time.Time) (*IntegrityReport, error) {
	d, err := Duration(tf)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, "unknown timeframe", err)
	}

	alignedStart, err := AlignToGrid(start, tf)
	if err != nil {
		return nil, err
	}
	alignedEnd, err := AlignToGrid(end, tf)
	if err != nil {
		return nil, err
	}

	expected := int(alignedEnd.Sub(alignedStart)/d) + 1
	if expected < 0 {
		expected = 0
	}

	rows, err := store.Range(ctx, symbol, tf, &alignedStart, &alignedEnd, 0)
	if err != nil {
		return nil, err
	}

	present := make(map[int64]bool, len(rows))
	for _, c := range rows {
		present[c.OpenTime.Unix()] = true
	}

	var missingRanges []MissingRange
	var runStart *time.Time
	var prev time.Time
	for t := alignedStart; !t.After(alignedEnd); t = t.Add(d) {
		if present[t.Unix()] {
			if runStart != nil {
				missingRanges = append(missingRanges, MissingRange{FirstMissingOpenTime: *runStart, LastMissingOpenTime: prev})
				runStart = nil
			}
			continue
		}
		if runStart == nil {
			tCopy := t
			runStart = &tCopy
		}
		prev = t
	}
	if runStart != nil {
		missingRanges = append(missingRanges, MissingRange{FirstMissingOpenTime: *runStart, LastMissingOpenTime: prev})
	}

	actual := len(rows)
	missingCount := expected - actual
	if missingCount < 0 {
		missingCount = 0
	}

	return &IntegrityReport{
		Earliest:        alignedStart,
		Latest:          alignedEnd,
		Expected:        expected,
		Actual:          actual,
		MissingRanges:   missingRanges,
		DuplicatesCount: 0,
		IsComplete:      missingCount == 0,
	}, nil
}
