package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/oms"
)

func (s *Server) registerOrderRoutes() {
	s.mux.HandleFunc("/paper/order", s.requireAuth(s.handlePlaceOrder))
	s.mux.HandleFunc("/paper/orders", s.handleListOrders)
	s.mux.HandleFunc("/paper/orders/", s.handleOrderByID)
}

type placeOrderRequest struct {
	Symbol        string  `json:"symbol"`
	Timeframe     string  `json:"timeframe"`
	Side          string  `json:"side"`
	Qty           float64 `json:"qty"`
	StopLossPrice float64 `json:"stop_loss_price"`
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req placeOrderRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeError(w, apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return
	}
	symbol := orDefault(req.Symbol, s.Symbol)
	tf := orDefault(req.Timeframe, s.Timeframe)

	order, err := s.OMS.Place(r.Context(), oms.PlaceRequest{
		Symbol:        symbol,
		Timeframe:     tf,
		Side:          oms.Side(strings.ToUpper(req.Side)),
		RequestedQty:  req.Qty,
		StopLossPrice: req.StopLossPrice,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	filters := oms.Filters{
		Symbol: q.Get("symbol"),
		Status: oms.Status(strings.ToUpper(q.Get("status"))),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, apperr.New(apperr.KindValidation, "invalid limit"))
			return
		}
		filters.Limit = n
	}

	orders, err := s.OMS.List(r.Context(), filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

func (s *Server) handleOrderByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/paper/orders/")
	path = strings.Trim(path, "/")
	if path == "" {
		http.NotFound(w, r)
		return
	}

	if id, ok := strings.CutSuffix(path, "/cancel"); ok {
		s.requireAuth(s.handleCancelOrder(id))(w, r)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	order, err := s.OMS.Get(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleCancelOrder(id string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if err := s.OMS.Cancel(r.Context(), id); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "CANCELED"})
	}
}
