package httpapi

import (
	"net/http"

	"jax-papertrader/internal/apperr"
)

func (s *Server) registerAccountRoutes() {
	s.mux.HandleFunc("/v7/account/status", s.handleAccountStatus)
	s.mux.HandleFunc("/v7/account/recompute", s.requireAuth(s.handleAccountRecompute))
}

func (s *Server) handleAccountStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap, found, err := s.Accounting.LatestSnapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, apperr.New(apperr.KindNotFound, "no accounting snapshot recorded yet"))
		return
	}
	positions, err := s.Accounting.Positions(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"account": snap, "positions": positions})
}

type accountRecomputeRequest struct {
	Symbol     string  `json:"symbol"`
	CandleOpen float64 `json:"candle_open"`
}

func (s *Server) handleAccountRecompute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req accountRecomputeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	symbol := orDefault(req.Symbol, s.Symbol)

	candle, err := s.Candles.Latest(r.Context(), symbol, s.Timeframe)
	if err != nil {
		writeError(w, err)
		return
	}
	candleOpen := req.CandleOpen
	if candleOpen == 0 {
		candleOpen = candle.Open
	}

	snap, err := s.Accounting.MarkToMarket(r.Context(), candle.OpenTime, candleOpen)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}
