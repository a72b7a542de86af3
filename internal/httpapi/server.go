// Package httpapi implements the control surface (C11): a net/http.ServeMux
// router exposing the engine's candle, order, risk, account, orchestrator,
// and strategy operations over JSON request/response bodies. Grounded in the
// teacher's internal/infra/http Server/mux-registration pattern
// (handlers_trades.go), generalized from one resource to the full surface
// and fronted by internal/auth bearer-token checks on mutating routes.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"jax-papertrader/internal/accounting"
	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/auth"
	"jax-papertrader/internal/candles"
	"jax-papertrader/internal/oms"
	"jax-papertrader/internal/orchestrator"
	"jax-papertrader/internal/risk"
	"jax-papertrader/internal/strategy"
)

// Server wires every collaborator the control surface's handlers need and
// owns the mux they're registered on.
type Server struct {
	mux *http.ServeMux

	Candles      candles.Store
	Ingestor     *candles.Ingestor
	Retention    *candles.Retention
	OMS          *oms.Service
	Risk         *risk.Engine
	RiskLimits   risk.Limits
	RiskInputs   oms.RiskInputsProvider
	Accounting   *accounting.Engine
	Orchestrator *orchestrator.Orchestrator
	Reports      orchestrator.Store
	Strategies   *strategy.Registry

	Auth                *auth.Manager
	Symbol              string
	Timeframe           string
	InitialBackfillDays int
	PipSize             float64
}

// NewServer registers every route and returns a Server ready to be used as
// an http.Handler.
func NewServer(s *Server) *Server {
	s.mux = http.NewServeMux()
	s.registerCandleRoutes()
	s.registerOrderRoutes()
	s.registerRiskRoutes()
	s.registerAccountRoutes()
	s.registerOrchestratorRoutes()
	s.registerStrategyRoutes()
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// requireAuth gates a mutating/admin route behind a bearer token, unless no
// Auth manager was configured (e.g. in tests), in which case it passes
// through unguarded.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.Auth == nil {
		return next
	}
	return s.Auth.RequireAuth(next)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "ts": time.Now().UTC().Format(time.RFC3339)})
}

// decodeJSONBody decodes r's body into dest. An empty body is not an error —
// callers that only read optional fields rely on this to fall through to
// their defaults.
func decodeJSONBody(r *http.Request, dest any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps a classified apperr.Error to an HTTP status and writes a
// structured error body; any other error is treated as an internal failure.
func writeError(w http.ResponseWriter, err error) {
	status, code := statusForError(err)
	writeJSON(w, status, map[string]any{"error": err.Error(), "code": code})
}

func statusForError(err error) (int, string) {
	kind, ok := apperr.KindOf(err)
	if !ok {
		return http.StatusInternalServerError, "internal"
	}
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest, string(kind)
	case apperr.KindNotFound:
		return http.StatusNotFound, string(kind)
	case apperr.KindRiskRejected, apperr.KindInvalidState, apperr.KindIdempotency:
		return http.StatusConflict, string(kind)
	case apperr.KindDeterminism:
		return http.StatusUnprocessableEntity, string(kind)
	case apperr.KindStoreDown, apperr.KindVendorDown:
		return http.StatusServiceUnavailable, string(kind)
	default:
		return http.StatusInternalServerError, string(kind)
	}
}
