package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/candles"
)

func (s *Server) registerCandleRoutes() {
	s.mux.HandleFunc("/v1/candles/latest", s.handleCandlesLatest)
	s.mux.HandleFunc("/v1/candles/integrity", s.handleCandlesIntegrity)
	s.mux.HandleFunc("/v1/candles/admin/ingest", s.requireAuth(s.handleCandlesIngest))
	s.mux.HandleFunc("/v1/candles/admin/backfill", s.requireAuth(s.handleCandlesBackfill))
	s.mux.HandleFunc("/v1/candles/admin/prune", s.requireAuth(s.handleCandlesPrune))
	s.mux.HandleFunc("/v1/candles", s.handleCandlesRange)
}

func (s *Server) symbolTF(q map[string][]string) (string, string) {
	symbol := firstOr(q, "symbol", s.Symbol)
	tf := firstOr(q, "tf", s.Timeframe)
	return symbol, tf
}

func firstOr(q map[string][]string, key, def string) string {
	if vs, ok := q[key]; ok && len(vs) > 0 && vs[0] != "" {
		return vs[0]
	}
	return def
}

func (s *Server) handleCandlesLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol, tf := s.symbolTF(r.URL.Query())
	candle, err := s.Candles.Latest(r.Context(), symbol, tf)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, candle)
}

func (s *Server) handleCandlesRange(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	symbol, tf := s.symbolTF(q)

	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid start timestamp"))
		return
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		writeError(w, apperr.New(apperr.KindValidation, "invalid end timestamp"))
		return
	}
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperr.New(apperr.KindValidation, "invalid limit"))
			return
		}
		limit = n
	}

	rows, err := s.Candles.Range(r.Context(), symbol, tf, start, end, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"candles": rows})
}

func (s *Server) handleCandlesIntegrity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	symbol, tf := s.symbolTF(q)

	days := 7
	if raw := q.Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, apperr.New(apperr.KindValidation, "invalid days"))
			return
		}
		days = n
	}

	end := time.Now().UTC()
	start := end.Add(-time.Duration(days) * 24 * time.Hour)
	report, err := candles.Integrity(r.Context(), s.Candles, symbol, tf, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type ingestRequest struct {
	Symbol string `json:"symbol"`
	TF     string `json:"tf"`
}

func (s *Server) handleCandlesIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ingestRequest
	_ = decodeJSONBody(r, &req)
	symbol := orDefault(req.Symbol, s.Symbol)
	tf := orDefault(req.TF, s.Timeframe)

	result, err := s.Ingestor.Ingest(r.Context(), symbol, tf, s.InitialBackfillDays, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type backfillRequest struct {
	Symbol string    `json:"symbol"`
	TF     string    `json:"tf"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

func (s *Server) handleCandlesBackfill(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req backfillRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		writeError(w, apperr.New(apperr.KindValidation, "start and end are required"))
		return
	}
	symbol := orDefault(req.Symbol, s.Symbol)
	tf := orDefault(req.TF, s.Timeframe)

	result, err := s.Ingestor.Backfill(r.Context(), symbol, tf, req.Start.UTC(), req.End.UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type pruneRequest struct {
	Symbol      string `json:"symbol"`
	TF          string `json:"tf"`
	BeforeDays  int    `json:"before_days"`
}

func (s *Server) handleCandlesPrune(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req pruneRequest
	_ = decodeJSONBody(r, &req)
	symbol := orDefault(req.Symbol, s.Symbol)
	tf := orDefault(req.TF, s.Timeframe)
	if req.BeforeDays <= 0 {
		writeError(w, apperr.New(apperr.KindValidation, "before_days must be positive"))
		return
	}

	deleted, cutoff, err := s.Retention.Prune(r.Context(), symbol, tf, req.BeforeDays, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted, "cutoff": cutoff.Format(time.RFC3339)})
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}
