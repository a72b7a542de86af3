package oms

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"jax-papertrader/internal/apperr"
	"jax-papertrader/internal/risk"
)

// RiskInputs bundles the facts Service.Place needs to call risk.Engine.Evaluate.
type RiskInputs struct {
	Limits    risk.Limits
	Portfolio risk.PortfolioState
	Account   risk.AccountState
}

// RiskInputsProvider resolves the current risk-gate inputs for a symbol as of
// a reference time, sourced from the accounting engine's latest snapshot and
// account configuration.
type RiskInputsProvider interface {
	RiskInputs(ctx context.Context, symbol string, asofOpenTime time.Time) (RiskInputs, error)
}

// Config holds OMS-level validation parameters.
type Config struct {
	MinQty         float64
	AllowedSymbols map[string]bool
	PipSize        float64
}

// Service implements C7: place, list, get, cancel. Grounded in the teacher's
// execution.Service.ExecuteTrade sequencing (fetch → validate → risk-gate →
// persist → invoke downstream), rewritten for market-order/paper semantics,
// idempotency keys, and the NEW→terminal state machine.
type Service struct {
	store    Store
	engine   *risk.Engine
	riskIn   RiskInputsProvider
	cfg      Config
	onPlaced func(ctx context.Context, order Order) error
}

// NewService constructs a Service. onPlaced, if non-nil, is invoked after an
// order is persisted as NEW, to invoke the execution engine for the next
// candle if one is already present; it may be nil when execution is driven
// separately by the orchestrator cycle.
func NewService(store Store, engine *risk.Engine, riskIn RiskInputsProvider, cfg Config, onPlaced func(ctx context.Context, order Order) error) *Service {
	return &Service{store: store, engine: engine, riskIn: riskIn, cfg: cfg, onPlaced: onPlaced}
}

// Place runs the 7-step place protocol: validate, then in one transaction
// the idempotency-key lookup, reference-candle resolve, stop-distance
// compute, risk-gate, and NEW/REJECTED persist; after commit, a NEW order
// is handed to onPlaced to invoke execution.
func (s *Service) Place(ctx context.Context, req PlaceRequest) (Order, error) {
	if err := s.validate(req); err != nil {
		return Order{}, err
	}

	var result Order
	err := s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		if req.IdempotencyKey != "" {
			existing, found, err := tx.GetByIdempotencyKey(ctx, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found {
				if !samePayload(existing, req) {
					return apperr.New(apperr.KindIdempotency, fmt.Sprintf("oms: idempotency key %q already used with a different order payload", req.IdempotencyKey))
				}
				result = existing
				return nil
			}
		}

		_, mid, found, err := tx.LatestCandleOpen(ctx, req.Symbol, req.Timeframe)
		if err != nil {
			return err
		}
		if !found {
			return apperr.New(apperr.KindDeterminism, "oms: no reference candle available for symbol/timeframe")
		}

		stopDistancePips := 0.0
		if s.cfg.PipSize > 0 && req.StopLossPrice > 0 {
			stopDistancePips = math.Abs(mid-req.StopLossPrice) / s.cfg.PipSize
		}

		inputs, err := s.riskIn.RiskInputs(ctx, req.Symbol, time.Now().UTC())
		if err != nil {
			return err
		}

		decision := s.engine.Evaluate(inputs.Limits, inputs.Portfolio, inputs.Account, risk.OrderProposal{
			Symbol:           req.Symbol,
			Side:             string(req.Side),
			RequestedQty:     req.RequestedQty,
			Mid:              mid,
			PipSize:          s.cfg.PipSize,
			StopDistancePips: stopDistancePips,
		})

		orderTs := req.Ts
		if orderTs.IsZero() {
			orderTs = time.Now().UTC()
		}

		order := Order{
			ID:             uuid.New().String(),
			Ts:             orderTs,
			Symbol:         req.Symbol,
			Timeframe:      req.Timeframe,
			Side:           req.Side,
			Type:           "market",
			RequestedPrice: req.RequestedPrice,
		}
		if req.IdempotencyKey != "" {
			key := req.IdempotencyKey
			order.IdempotencyKey = &key
		}

		if !decision.Allowed {
			order.Status = StatusRejected
			order.Reason = decision.Reason
			order.Qty = req.RequestedQty
			if err := tx.Insert(ctx, order); err != nil {
				return err
			}
			result = order
			return nil
		}

		order.Status = StatusNew
		order.Qty = decision.ApprovedQty
		if err := tx.Insert(ctx, order); err != nil {
			return err
		}
		result = order
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	if result.Status == StatusNew && s.onPlaced != nil {
		if err := s.onPlaced(ctx, result); err != nil {
			return result, err
		}
	}

	return result, nil
}

// samePayload reports whether a replayed idempotency key was submitted with
// the same order-defining fields as the order it originally produced. A
// mismatch means the caller reused a key for a logically different order.
func samePayload(existing Order, req PlaceRequest) bool {
	if existing.Symbol != req.Symbol || existing.Timeframe != req.Timeframe || existing.Side != req.Side {
		return false
	}
	switch {
	case existing.RequestedPrice == nil && req.RequestedPrice == nil:
		return true
	case existing.RequestedPrice == nil || req.RequestedPrice == nil:
		return false
	default:
		return *existing.RequestedPrice == *req.RequestedPrice
	}
}

func (s *Service) validate(req PlaceRequest) error {
	if len(s.cfg.AllowedSymbols) > 0 && !s.cfg.AllowedSymbols[req.Symbol] {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("oms: symbol %q not in allow-list", req.Symbol))
	}
	if req.RequestedQty < s.cfg.MinQty {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("oms: requested qty %.2f below minimum %.2f", req.RequestedQty, s.cfg.MinQty))
	}
	if req.Side != Buy && req.Side != Sell {
		return apperr.New(apperr.KindValidation, fmt.Sprintf("oms: invalid side %q", req.Side))
	}
	return nil
}

// List returns orders matching f.
func (s *Service) List(ctx context.Context, f Filters) ([]Order, error) {
	return s.store.List(ctx, f)
}

// Get returns a single order by ID.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	return s.store.GetByID(ctx, id)
}

// Cancel transitions an order NEW→CANCELED. Any other source state fails
// with apperr.KindInvalidState.
func (s *Service) Cancel(ctx context.Context, id string) error {
	return s.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := s.store.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Status != StatusNew {
			return apperr.New(apperr.KindInvalidState, fmt.Sprintf("oms: cannot cancel order in state %s", current.Status))
		}
		return tx.UpdateStatus(ctx, id, StatusCanceled, "canceled_by_request")
	})
}
