package accounting

import (
	"context"
	"testing"
	"time"

	"jax-papertrader/internal/pricing"
)

type fakeAcctTx struct {
	fills     []Fill
	positions map[string]Position
	balances  map[string]float64
	trades    []Trade
	snapshots map[string]Snapshot
	stamped   map[string]time.Time
}

func newFakeAcctTx() *fakeAcctTx {
	return &fakeAcctTx{
		positions: make(map[string]Position),
		balances:  make(map[string]float64),
		snapshots: make(map[string]Snapshot),
		stamped:   make(map[string]time.Time),
	}
}

func (t *fakeAcctTx) UnaccountedFills(_ context.Context, symbol string, asof time.Time) ([]Fill, error) {
	var out []Fill
	for _, f := range t.fills {
		if f.Symbol != symbol {
			continue
		}
		if _, done := t.stamped[f.ID]; done {
			continue
		}
		if f.Ts.After(asof) {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

func (t *fakeAcctTx) StampFillAccounted(_ context.Context, fillID string, asof time.Time) error {
	t.stamped[fillID] = asof
	return nil
}

func (t *fakeAcctTx) GetPosition(_ context.Context, accountID, symbol string) (Position, bool, error) {
	p, ok := t.positions[symbol]
	if !ok {
		return Position{Symbol: symbol}, false, nil
	}
	return p, true, nil
}

func (t *fakeAcctTx) UpsertPosition(_ context.Context, accountID string, p Position) error {
	t.positions[p.Symbol] = p
	return nil
}

func (t *fakeAcctTx) AllPositions(_ context.Context, accountID string) ([]Position, error) {
	var out []Position
	for _, p := range t.positions {
		if p.NetQty != 0 {
			out = append(out, p)
		}
	}
	return out, nil
}

func (t *fakeAcctTx) GetBalance(_ context.Context, accountID string) (float64, error) {
	return t.balances[accountID], nil
}

func (t *fakeAcctTx) AddToBalance(_ context.Context, accountID string, delta float64) error {
	t.balances[accountID] += delta
	return nil
}

func (t *fakeAcctTx) InsertTrade(_ context.Context, tr Trade) error {
	t.trades = append(t.trades, tr)
	return nil
}

func (t *fakeAcctTx) UpsertSnapshot(_ context.Context, s Snapshot) error {
	t.snapshots[s.AccountID] = s
	return nil
}

func (t *fakeAcctTx) GetLatestSnapshot(_ context.Context, accountID string) (Snapshot, bool, error) {
	s, ok := t.snapshots[accountID]
	return s, ok, nil
}

type fakeAcctStore struct {
	tx *fakeAcctTx
}

func (s *fakeAcctStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return fn(ctx, s.tx)
}

func newEngine(store *fakeAcctStore) *Engine {
	model := pricing.NewModel(pricing.Config{SpreadPips: 1, SlippagePips: 0.5, PipSize: 0.0001})
	return NewEngine(store, model, "acct-1", 50)
}

func TestApplyNewFills_OpensPositionOnFirstFill(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tx.fills = []Fill{{ID: "f1", OrderID: "o1", Symbol: "EURUSD", Side: "BUY", Qty: 1000, Price: 1.1000, Ts: t0}}

	trades, err := e.ApplyNewFills(context.Background(), "EURUSD", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected no trades on position open, got %d", len(trades))
	}
	pos := tx.positions["EURUSD"]
	if pos.NetQty != 1000 || pos.AvgEntryPrice != 1.1000 {
		t.Errorf("unexpected position %+v", pos)
	}
}

func TestApplyNewFills_SameSideWeightedAverage(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	tx.positions["EURUSD"] = Position{Symbol: "EURUSD", NetQty: 1000, AvgEntryPrice: 1.1000, OpenedAt: t0}
	tx.fills = []Fill{{ID: "f2", OrderID: "o2", Symbol: "EURUSD", Side: "BUY", Qty: 1000, Price: 1.1020, Ts: t1}}

	if _, err := e.ApplyNewFills(context.Background(), "EURUSD", t1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := tx.positions["EURUSD"]
	wantAvg := (1000*1.1000 + 1000*1.1020) / 2000
	if pos.NetQty != 2000 {
		t.Errorf("expected net qty 2000, got %v", pos.NetQty)
	}
	if diff := pos.AvgEntryPrice - wantAvg; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected avg %v, got %v", wantAvg, pos.AvgEntryPrice)
	}
}

func TestApplyNewFills_OppositeSidePartialCloseRealizesPnL(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	tx.positions["EURUSD"] = Position{Symbol: "EURUSD", NetQty: 1000, AvgEntryPrice: 1.1000, OpenedAt: t0}
	tx.fills = []Fill{{ID: "f3", OrderID: "o3", Symbol: "EURUSD", Side: "SELL", Qty: 400, Price: 1.1050, Ts: t1}}

	trades, err := e.ApplyNewFills(context.Background(), "EURUSD", t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	wantPnL := (1.1050 - 1.1000) * 400
	if diff := trades[0].PnL - wantPnL; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected pnl %v, got %v", wantPnL, trades[0].PnL)
	}
	pos := tx.positions["EURUSD"]
	if pos.NetQty != 600 {
		t.Errorf("expected remaining net qty 600, got %v", pos.NetQty)
	}
	if pos.AvgEntryPrice != 1.1000 {
		t.Errorf("expected avg entry unchanged at 1.1000, got %v", pos.AvgEntryPrice)
	}
	if tx.balances["acct-1"] != wantPnL {
		t.Errorf("expected balance to reflect realized pnl %v, got %v", wantPnL, tx.balances["acct-1"])
	}
}

func TestApplyNewFills_ThreadsEntryOrderIDThroughOpenAndClose(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	tx.fills = []Fill{{ID: "f1", OrderID: "open-order", Symbol: "EURUSD", Side: "BUY", Qty: 1000, Price: 1.1000, Ts: t0}}
	if _, err := e.ApplyNewFills(context.Background(), "EURUSD", t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := tx.positions["EURUSD"].EntryOrderID; got != "open-order" {
		t.Errorf("expected position entry_order_id %q, got %q", "open-order", got)
	}

	tx.fills = []Fill{{ID: "f2", OrderID: "close-order", Symbol: "EURUSD", Side: "SELL", Qty: 1000, Price: 1.1050, Ts: t1}}
	trades, err := e.ApplyNewFills(context.Background(), "EURUSD", t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(trades))
	}
	if trades[0].EntryOrderID != "open-order" {
		t.Errorf("expected trade entry_order_id %q, got %q", "open-order", trades[0].EntryOrderID)
	}
	if trades[0].ExitOrderID != "close-order" {
		t.Errorf("expected trade exit_order_id %q, got %q", "close-order", trades[0].ExitOrderID)
	}
}

func TestApplyNewFills_CrossThroughReversal(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Minute)
	tx.positions["EURUSD"] = Position{Symbol: "EURUSD", NetQty: 1000, AvgEntryPrice: 1.1000, OpenedAt: t0}
	tx.fills = []Fill{{ID: "f4", OrderID: "o4", Symbol: "EURUSD", Side: "SELL", Qty: 1500, Price: 1.0950, Ts: t1}}

	trades, err := e.ApplyNewFills(context.Background(), "EURUSD", t1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 1 || trades[0].ExitReason != ExitFlip {
		t.Fatalf("expected one FLIP trade, got %+v", trades)
	}
	pos := tx.positions["EURUSD"]
	if pos.NetQty != -500 {
		t.Errorf("expected reversed short of -500, got %v", pos.NetQty)
	}
	if pos.AvgEntryPrice != 1.0950 {
		t.Errorf("expected new entry at fill price 1.0950, got %v", pos.AvgEntryPrice)
	}
}

func TestApplyNewFills_IdempotentSecondCallIsNoOp(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tx.fills = []Fill{{ID: "f1", OrderID: "o1", Symbol: "EURUSD", Side: "BUY", Qty: 1000, Price: 1.1000, Ts: t0}}

	if _, err := e.ApplyNewFills(context.Background(), "EURUSD", t0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	posAfterFirst := tx.positions["EURUSD"]

	trades, err := e.ApplyNewFills(context.Background(), "EURUSD", t0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("expected no trades on idempotent replay, got %d", len(trades))
	}
	if tx.positions["EURUSD"] != posAfterFirst {
		t.Errorf("expected position unchanged on replay, got %+v vs %+v", tx.positions["EURUSD"], posAfterFirst)
	}
}

func TestMarkToMarket_ComputesEquityAndFreeMargin(t *testing.T) {
	tx := newFakeAcctTx()
	store := &fakeAcctStore{tx: tx}
	e := newEngine(store)

	tx.balances["acct-1"] = 10000
	tx.positions["EURUSD"] = Position{Symbol: "EURUSD", NetQty: 1000, AvgEntryPrice: 1.1000}

	asof := time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC)
	snap, err := e.MarkToMarket(context.Background(), asof, 1.1050)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.Balance != 10000 {
		t.Errorf("expected balance 10000, got %v", snap.Balance)
	}
	if snap.Equity != snap.Balance+snap.UnrealizedPnL {
		t.Errorf("expected equity = balance + unrealized_pnl")
	}
	if snap.FreeMargin != snap.Equity-snap.MarginUsed {
		t.Errorf("expected free_margin = equity - margin_used")
	}
}
