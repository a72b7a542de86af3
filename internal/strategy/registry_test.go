package strategy

import "testing"

func TestRegistry_RegisterGetList(t *testing.T) {
	r := NewRegistry()
	ema := NewEMACrossATR(12, 26, 14, 1.5, 2.0)

	if err := r.Register(ema); err != nil {
		t.Fatalf("unexpected error registering: %v", err)
	}

	got, ok := r.Get(ema.ID())
	if !ok {
		t.Fatalf("expected strategy to be found")
	}
	if got.ID() != ema.ID() {
		t.Errorf("expected id %q, got %q", ema.ID(), got.ID())
	}

	if err := r.Register(ema); err == nil {
		t.Error("expected duplicate registration to fail")
	}

	ids := r.List()
	if len(ids) != 1 || ids[0] != ema.ID() {
		t.Errorf("expected single id %q, got %v", ema.ID(), ids)
	}

	md, ok := r.GetMetadata(ema.ID())
	if !ok || md.Name != ema.Name() {
		t.Errorf("expected metadata name %q, got %+v", ema.Name(), md)
	}

	all := r.ListAll()
	if len(all) != 1 || all[0].ID != ema.ID() {
		t.Errorf("expected ListAll to contain %q, got %+v", ema.ID(), all)
	}
}

func TestRegistry_GetMissing(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Get("missing"); ok {
		t.Error("expected missing strategy to not be found")
	}
	if _, ok := r.GetMetadata("missing"); ok {
		t.Error("expected missing metadata to not be found")
	}
}
