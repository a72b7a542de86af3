package httpapi

import (
	"net/http"
	"strings"
	"time"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/risk"
)

func (s *Server) registerRiskRoutes() {
	s.mux.HandleFunc("/v6/risk/status", s.handleRiskStatus)
	s.mux.HandleFunc("/v6/risk/check", s.handleRiskCheck)
}

func (s *Server) handleRiskStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	symbol := orDefault(r.URL.Query().Get("symbol"), s.Symbol)

	inputs, err := s.RiskInputs.RiskInputs(r.Context(), symbol, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"limits":    inputs.Limits,
		"portfolio": inputs.Portfolio,
		"account":   inputs.Account,
	})
}

type riskCheckRequest struct {
	Symbol           string  `json:"symbol"`
	Side             string  `json:"side"`
	RequestedQty     float64 `json:"requested_qty"`
	Mid              float64 `json:"mid"`
	StopDistancePips float64 `json:"stop_distance_pips"`
}

func (s *Server) handleRiskCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req riskCheckRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	symbol := orDefault(req.Symbol, s.Symbol)

	mid := req.Mid
	if mid == 0 {
		candle, err := s.Candles.Latest(r.Context(), symbol, s.Timeframe)
		if err != nil {
			writeError(w, err)
			return
		}
		mid = candle.Open
	}

	inputs, err := s.RiskInputs.RiskInputs(r.Context(), symbol, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}

	decision := s.Risk.Evaluate(inputs.Limits, inputs.Portfolio, inputs.Account, risk.OrderProposal{
		Symbol:           symbol,
		Side:             strings.ToUpper(req.Side),
		RequestedQty:     req.RequestedQty,
		Mid:              mid,
		PipSize:          s.PipSize,
		StopDistancePips: req.StopDistancePips,
	})
	writeJSON(w, http.StatusOK, decision)
}
