package observability

import (
	"reflect"
	"testing"
)

func TestRedactValue_RedactsSensitiveFields(t *testing.T) {
	input := map[string]any{
		"symbol": "EURUSD",
		"order_payload": map[string]any{
			"qty": 1000,
		},
		"jwt_secret": "shh",
		"nested": map[string]any{
			"password": "secret",
		},
	}

	expected := map[string]any{
		"symbol":        "EURUSD",
		"order_payload": redactedValue,
		"jwt_secret":    redactedValue,
		"nested": map[string]any{
			"password": redactedValue,
		},
	}

	got := RedactValue(input)
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %#v, got %#v", expected, got)
	}
}

func TestRedactValue_RedactsSliceValues(t *testing.T) {
	input := []any{
		map[string]any{"api_key": "secret"},
		map[string]any{"ok": true},
	}

	expected := []any{
		map[string]any{"api_key": redactedValue},
		map[string]any{"ok": true},
	}

	got := RedactValue(input)
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected %#v, got %#v", expected, got)
	}
}

type samplePayload struct {
	Symbol  string `json:"symbol"`
	Token   string `json:"token"`
	RawOrder map[string]any `json:"raw_order"`
}

func TestRedactValue_DecodesStructs(t *testing.T) {
	input := samplePayload{
		Symbol: "EURUSD",
		Token:  "secret",
		RawOrder: map[string]any{
			"price": 1.0950,
		},
	}

	got := RedactValue(input)
	asMap, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map output, got %#v", got)
	}
	if asMap["token"] != redactedValue {
		t.Fatalf("expected token to be redacted")
	}
	if asMap["raw_order"] != redactedValue {
		t.Fatalf("expected raw_order to be redacted")
	}
}
