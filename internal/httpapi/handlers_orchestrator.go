package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"jax-papertrader/internal/apperr"
)

func (s *Server) registerOrchestratorRoutes() {
	s.mux.HandleFunc("/orchestrator/run", s.requireAuth(s.handleOrchestratorRun))
	s.mux.HandleFunc("/orchestrator/runs", s.handleOrchestratorRuns)
	s.mux.HandleFunc("/orchestrator/runs/", s.handleOrchestratorRunByID)
}

type runRequest struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	CandleTs  time.Time `json:"candle_ts"`
}

func (s *Server) handleOrchestratorRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req runRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	symbol := orDefault(req.Symbol, s.Symbol)
	tf := orDefault(req.Timeframe, s.Timeframe)

	candleTs := req.CandleTs
	if candleTs.IsZero() {
		candle, err := s.Candles.Latest(r.Context(), symbol, tf)
		if err != nil {
			writeError(w, err)
			return
		}
		candleTs = candle.OpenTime
	}

	report, err := s.Orchestrator.RunCycle(r.Context(), symbol, tf, candleTs.UTC())
	if err != nil && report.RunID == "" {
		// A bare error with no report means the cycle never got far enough to
		// persist one (e.g. the candle doesn't exist yet) — nothing to return
		// but the failure itself.
		writeError(w, err)
		return
	}
	// A cycle that failed mid-way still persists and returns an ERROR report;
	// surface it as a normal 200 so callers can inspect error_text.
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleOrchestratorRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	symbol := orDefault(q.Get("symbol"), s.Symbol)
	tf := orDefault(q.Get("tf"), s.Timeframe)
	limit := 50
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperr.New(apperr.KindValidation, "invalid limit"))
			return
		}
		limit = n
	}

	reports, err := s.Reports.ListReports(r.Context(), symbol, tf, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": reports})
}

func (s *Server) handleOrchestratorRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/orchestrator/runs/")
	id = strings.Trim(id, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	report, found, err := s.Reports.GetReportByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, apperr.New(apperr.KindNotFound, "no run report with that id"))
		return
	}
	writeJSON(w, http.StatusOK, report)
}
