package httpapi

import (
	"context"
	"net/http"
	"time"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/candles"
)

func (s *Server) registerStrategyRoutes() {
	s.mux.HandleFunc("/strategy/strategies", s.handleStrategyList)
	s.mux.HandleFunc("/strategy/run", s.handleStrategyRun)
}

func (s *Server) handleStrategyList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": s.Strategies.ListAll()})
}

type strategyRunRequest struct {
	StrategyID string `json:"strategy_id"`
	Symbol     string `json:"symbol"`
	Timeframe  string `json:"timeframe"`
	WindowSize int    `json:"window_size"`
}

// handleStrategyRun dry-runs a registered strategy against the current
// candle window without placing an order or touching any stored state —
// the control-surface equivalent of the orchestrator's step 4 in isolation.
func (s *Server) handleStrategyRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req strategyRunRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if req.StrategyID == "" {
		writeError(w, apperr.New(apperr.KindValidation, "strategy_id is required"))
		return
	}
	strat, ok := s.Strategies.Get(req.StrategyID)
	if !ok {
		writeError(w, apperr.New(apperr.KindNotFound, "unknown strategy_id"))
		return
	}
	symbol := orDefault(req.Symbol, s.Symbol)
	tf := orDefault(req.Timeframe, s.Timeframe)

	latest, err := s.Candles.Latest(r.Context(), symbol, tf)
	if err != nil {
		writeError(w, err)
		return
	}
	window, err := dryRunWindow(r.Context(), s.Candles, symbol, tf, latest.OpenTime, req.WindowSize)
	if err != nil {
		writeError(w, err)
		return
	}

	intent, err := strat.Analyze(r.Context(), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, intent)
}

// dryRunWindow mirrors the orchestrator's own window-fetch logic (up to
// windowSize candles ending at endOpenTime, oldest first) without requiring
// an Orchestrator instance — used here purely for a read-only dry run.
func dryRunWindow(ctx context.Context, store candles.Store, symbol, tf string, endOpenTime time.Time, windowSize int) ([]candles.Candle, error) {
	rows, err := store.Range(ctx, symbol, tf, nil, &endOpenTime, 0)
	if err != nil {
		return nil, err
	}
	if windowSize <= 0 || len(rows) <= windowSize {
		return rows, nil
	}
	return rows[len(rows)-windowSize:], nil
}
