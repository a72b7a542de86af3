package risk

import (
	"context"
	"testing"
	"time"
)

type fakeBaselineStore struct {
	baselines map[string]DailyBaseline
}

func newFakeBaselineStore() *fakeBaselineStore {
	return &fakeBaselineStore{baselines: make(map[string]DailyBaseline)}
}

func (f *fakeBaselineStore) GetOrCreate(_ context.Context, accountID string, day time.Time, equity float64) (DailyBaseline, error) {
	key := accountID + "|" + day.Format("2006-01-02")
	if existing, ok := f.baselines[key]; ok {
		return existing, nil
	}
	created := DailyBaseline{AccountID: accountID, Day: day, DayStartEquity: equity}
	f.baselines[key] = created
	return created, nil
}

func TestDayStartEquity_CreatesOnceThenIsIdempotent(t *testing.T) {
	store := newFakeBaselineStore()
	day := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	first, err := DayStartEquity(context.Background(), store, "acct-1", day, 10000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != 10000 {
		t.Errorf("expected first baseline 10000, got %v", first)
	}

	later := day.Add(6 * time.Hour)
	second, err := DayStartEquity(context.Background(), store, "acct-1", later, 9500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != 10000 {
		t.Errorf("expected baseline to remain 10000 for the same day, got %v", second)
	}
}

func TestDayStartEquity_NewBaselinePerDay(t *testing.T) {
	store := newFakeBaselineStore()
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	if _, err := DayStartEquity(context.Background(), store, "acct-1", day1, 10000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := DayStartEquity(context.Background(), store, "acct-1", day2, 10500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second != 10500 {
		t.Errorf("expected new day to seed its own baseline 10500, got %v", second)
	}
}
