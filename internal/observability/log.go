package observability

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"
)

var logger = log.New(os.Stdout, "", 0)

// LogEvent writes one structured JSON line to stdout, enriched with whatever
// RunInfo is attached to ctx. fields named "input" or "payload" are passed
// through RedactValue before being serialized.
func LogEvent(ctx context.Context, level string, event string, fields map[string]any) {
	payload := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"level": level,
		"event": event,
	}

	info := RunInfoFromContext(ctx)
	if info.FlowID != "" {
		payload["flow_id"] = info.FlowID
	}
	if info.RunID != "" {
		payload["run_id"] = info.RunID
	}
	if info.Symbol != "" {
		payload["symbol"] = info.Symbol
	}
	if info.Timeframe != "" {
		payload["timeframe"] = info.Timeframe
	}

	for key, value := range normalizeFields(fields) {
		payload[key] = value
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		logger.Printf("{\"level\":\"error\",\"event\":\"log_marshal_failed\",\"error\":%q}", err.Error())
		return
	}
	logger.Print(string(raw))
}

// LogCycle records the outcome of one orchestrator cycle.
func LogCycle(ctx context.Context, status string, duration time.Duration, err error) {
	fields := map[string]any{
		"status":     status,
		"latency_ms": duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "cycle_complete", fields)
}

// LogRetention records the outcome of a retention pruning pass.
func LogRetention(ctx context.Context, table string, rowsDeleted int64, err error) {
	fields := map[string]any{
		"table":        table,
		"rows_deleted": rowsDeleted,
		"success":      err == nil,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	LogEvent(ctx, "info", "retention_prune", fields)
}

func normalizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		switch key {
		case "input", "payload", "order_request":
			out[key] = RedactValue(value)
			continue
		}
		if err, ok := value.(error); ok {
			out[key] = err.Error()
			continue
		}
		out[key] = value
	}
	return out
}
