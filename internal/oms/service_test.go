package oms

import (
	"context"
	"testing"
	"time"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/risk"
)

type fakeTx struct {
	store *fakeStore
}

func (t *fakeTx) GetByIdempotencyKey(_ context.Context, key string) (Order, bool, error) {
	for _, o := range t.store.orders {
		if o.IdempotencyKey != nil && *o.IdempotencyKey == key {
			return o, true, nil
		}
	}
	return Order{}, false, nil
}

func (t *fakeTx) LatestCandleOpen(_ context.Context, _, _ string) (interface{}, float64, bool, error) {
	if !t.store.hasCandle {
		return nil, 0, false, nil
	}
	return t.store.candleOpenTime, t.store.candleMid, true, nil
}

func (t *fakeTx) Insert(_ context.Context, o Order) error {
	t.store.orders = append(t.store.orders, o)
	return nil
}

func (t *fakeTx) UpdateStatus(_ context.Context, id string, status Status, reason string) error {
	for i := range t.store.orders {
		if t.store.orders[i].ID == id {
			t.store.orders[i].Status = status
			t.store.orders[i].Reason = reason
			return nil
		}
	}
	return apperr.New(apperr.KindNotFound, "order not found")
}

type fakeStore struct {
	orders         []Order
	hasCandle      bool
	candleOpenTime interface{}
	candleMid      float64
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, &fakeTx{store: s})
}

func (s *fakeStore) GetByID(_ context.Context, id string) (Order, error) {
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, apperr.New(apperr.KindNotFound, "order not found")
}

func (s *fakeStore) List(_ context.Context, f Filters) ([]Order, error) {
	var out []Order
	for _, o := range s.orders {
		if f.Symbol != "" && o.Symbol != f.Symbol {
			continue
		}
		if f.Status != "" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

type fakeRiskInputs struct {
	inputs RiskInputs
}

func (f fakeRiskInputs) RiskInputs(_ context.Context, _ string, _ time.Time) (RiskInputs, error) {
	return f.inputs, nil
}

func allowingInputs() RiskInputs {
	return RiskInputs{
		Limits: risk.Limits{
			MaxOpenPositions:          10,
			MaxOpenPositionsPerSymbol: 1,
			MaxTotalNotional:          1_000_000,
			MaxSymbolNotional:         500_000,
			RiskPerTradePct:           0.02,
			DailyLossLimitPct:         0.05,
			DailyLossLimitAmount:      1000,
			Leverage:                  50,
			LotStep:                   1000,
		},
		Portfolio: risk.PortfolioState{},
		Account:   risk.AccountState{Equity: 10000, FreeMargin: 10000, DayStartEquity: 10000},
	}
}

func newTestService(store *fakeStore, inputs RiskInputs) *Service {
	cfg := Config{MinQty: 1000, AllowedSymbols: map[string]bool{"EURUSD": true}, PipSize: 0.0001}
	return NewService(store, risk.NewEngine(), fakeRiskInputs{inputs: inputs}, cfg, nil)
}

func TestService_PlaceApprovedOrderIsNew(t *testing.T) {
	store := &fakeStore{hasCandle: true, candleOpenTime: time.Now(), candleMid: 1.1}
	svc := newTestService(store, allowingInputs())

	order, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000, StopLossPrice: 1.098, IdempotencyKey: "key-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != StatusNew {
		t.Errorf("expected NEW, got %v (reason=%s)", order.Status, order.Reason)
	}
}

func TestService_PlaceRejectedOrderPersistsReason(t *testing.T) {
	store := &fakeStore{hasCandle: true, candleOpenTime: time.Now(), candleMid: 1.1}
	inputs := allowingInputs()
	inputs.Portfolio.OpenPositionsForSymbol = 1
	svc := newTestService(store, inputs)

	order, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000, StopLossPrice: 1.098,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.Status != StatusRejected {
		t.Errorf("expected REJECTED, got %v", order.Status)
	}
	if order.Reason != risk.ReasonMaxOpenPositionsPerSymbol {
		t.Errorf("expected reason %q, got %q", risk.ReasonMaxOpenPositionsPerSymbol, order.Reason)
	}
}

func TestService_PlaceIdempotentReplayReturnsSameOrder(t *testing.T) {
	store := &fakeStore{hasCandle: true, candleOpenTime: time.Now(), candleMid: 1.1}
	svc := newTestService(store, allowingInputs())

	first, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000, StopLossPrice: 1.098, IdempotencyKey: "dup-key",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	second, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000, StopLossPrice: 1.098, IdempotencyKey: "dup-key",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected replay to return the same order id, got %s vs %s", second.ID, first.ID)
	}
	if len(store.orders) != 1 {
		t.Errorf("expected exactly one persisted order, got %d", len(store.orders))
	}
}

func TestService_PlaceIdempotentReplayWithMismatchedPayloadConflicts(t *testing.T) {
	store := &fakeStore{hasCandle: true, candleOpenTime: time.Now(), candleMid: 1.1}
	svc := newTestService(store, allowingInputs())

	_, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000, StopLossPrice: 1.098, IdempotencyKey: "dup-key",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Sell, RequestedQty: 100000, StopLossPrice: 1.098, IdempotencyKey: "dup-key",
	})
	if kind, _ := apperr.KindOf(err); kind != apperr.KindIdempotency {
		t.Errorf("expected KindIdempotency, got %v (%v)", kind, err)
	}
	if len(store.orders) != 1 {
		t.Errorf("expected the conflicting replay not to persist a second order, got %d", len(store.orders))
	}
}

func TestService_PlaceRejectsDisallowedSymbol(t *testing.T) {
	store := &fakeStore{hasCandle: true, candleOpenTime: time.Now(), candleMid: 1.1}
	svc := newTestService(store, allowingInputs())

	_, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "GBPUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000,
	})
	if kind, _ := apperr.KindOf(err); kind != apperr.KindValidation {
		t.Errorf("expected KindValidation, got %v (%v)", kind, err)
	}
}

func TestService_CancelOnlyValidFromNew(t *testing.T) {
	store := &fakeStore{hasCandle: true, candleOpenTime: time.Now(), candleMid: 1.1}
	svc := newTestService(store, allowingInputs())

	order, err := svc.Place(context.Background(), PlaceRequest{
		Symbol: "EURUSD", Timeframe: "M1", Side: Buy, RequestedQty: 100000, StopLossPrice: 1.098,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := svc.Cancel(context.Background(), order.ID); err != nil {
		t.Fatalf("unexpected error canceling NEW order: %v", err)
	}

	err = svc.Cancel(context.Background(), order.ID)
	if kind, _ := apperr.KindOf(err); kind != apperr.KindInvalidState {
		t.Errorf("expected KindInvalidState on second cancel, got %v", err)
	}
}
