package observability

import "context"

type contextKey string

const (
	runIDKey  contextKey = "run_id"
	symbolKey contextKey = "symbol"
	tfKey     contextKey = "timeframe"
	flowIDKey contextKey = "flow_id"
)

// RunInfo carries trace identifiers through a cycle's context. FlowID spans
// the whole candle-close decision chain (ingest → signal → risk → fill →
// accounting); RunID identifies one orchestrator cycle.
type RunInfo struct {
	RunID     string
	Symbol    string
	Timeframe string
	FlowID    string
}

func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	if info.RunID != "" {
		ctx = context.WithValue(ctx, runIDKey, info.RunID)
	}
	if info.Symbol != "" {
		ctx = context.WithValue(ctx, symbolKey, info.Symbol)
	}
	if info.Timeframe != "" {
		ctx = context.WithValue(ctx, tfKey, info.Timeframe)
	}
	if info.FlowID != "" {
		ctx = context.WithValue(ctx, flowIDKey, info.FlowID)
	}
	return ctx
}

func RunInfoFromContext(ctx context.Context) RunInfo {
	info := RunInfo{}
	if v := ctx.Value(runIDKey); v != nil {
		if s, ok := v.(string); ok {
			info.RunID = s
		}
	}
	if v := ctx.Value(symbolKey); v != nil {
		if s, ok := v.(string); ok {
			info.Symbol = s
		}
	}
	if v := ctx.Value(tfKey); v != nil {
		if s, ok := v.(string); ok {
			info.Timeframe = s
		}
	}
	if v := ctx.Value(flowIDKey); v != nil {
		if s, ok := v.(string); ok {
			info.FlowID = s
		}
	}
	return info
}

// WithFlowID attaches a flow_id to ctx without disturbing any other RunInfo
// fields already present.
func WithFlowID(ctx context.Context, flowID string) context.Context {
	if flowID == "" {
		return ctx
	}
	return context.WithValue(ctx, flowIDKey, flowID)
}

func FlowIDFromContext(ctx context.Context) string {
	if v := ctx.Value(flowIDKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
