package risk

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"
)

// PortfolioConstraints mirrors the "portfolio_constraints" block of a
// risk policy file. Collapsed from the teacher's multi-sector portfolio
// model (max_sector_exposure, max_correlated_exposure) to this engine's
// single-instrument case: max open positions and a drawdown halt.
type PortfolioConstraints struct {
	MaxPositions int     `json:"max_positions"`
	MaxDrawdown  float64 `json:"max_drawdown"`
}

// PositionLimits mirrors the "position_limits" block.
type PositionLimits struct {
	MaxRiskPerTrade float64 `json:"max_risk_per_trade"`
	MinStopDistance float64 `json:"min_stop_distance"`
	MaxStopDistance float64 `json:"max_stop_distance"`
}

// Policy is the immutable, versioned risk policy loaded once at startup and
// passed read-only to an Enforcer. Retained from the teacher's
// libs/risk/policy.go Policy/LoadPolicy/DefaultPolicy shape.
type Policy struct {
	Portfolio  PortfolioConstraints `json:"portfolio_constraints"`
	Position   PositionLimits       `json:"position_limits"`
	LoadedFrom string               `json:"-"`
	LoadedAt   time.Time            `json:"-"`
	Version    string               `json:"-"`
}

// LoadPolicy reads a JSON policy file, falling back to DefaultPolicy when
// path is empty or the file does not exist.
func LoadPolicy(path string) (*Policy, error) {
	if path == "" {
		return DefaultPolicy(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultPolicy(), nil
		}
		return nil, fmt.Errorf("risk: read policy file %q: %w", path, err)
	}

	var p Policy
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("risk: parse policy file %q: %w", path, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("risk: invalid policy in %q: %w", path, err)
	}

	p.LoadedFrom = path
	p.LoadedAt = time.Now().UTC()
	p.Version = policyVersion(data)
	return &p, nil
}

// DefaultPolicy returns a conservative policy for when no file is configured.
func DefaultPolicy() *Policy {
	p := &Policy{
		Portfolio: PortfolioConstraints{
			MaxPositions: 5,
			MaxDrawdown:  0.20,
		},
		Position: PositionLimits{
			MaxRiskPerTrade: 0.02,
			MinStopDistance: 0.0005,
			MaxStopDistance: 0.05,
		},
		LoadedAt: time.Now().UTC(),
	}
	b, _ := json.Marshal(p)
	p.Version = policyVersion(b)
	return p
}

func (p *Policy) validate() error {
	var errs []string
	if p.Position.MaxRiskPerTrade <= 0 || p.Position.MaxRiskPerTrade > 1 {
		errs = append(errs, fmt.Sprintf("max_risk_per_trade must be in (0,1], got %.4f", p.Position.MaxRiskPerTrade))
	}
	if p.Position.MinStopDistance < 0 || p.Position.MinStopDistance >= p.Position.MaxStopDistance {
		errs = append(errs, fmt.Sprintf("min_stop_distance (%.4f) must be < max_stop_distance (%.4f)", p.Position.MinStopDistance, p.Position.MaxStopDistance))
	}
	if p.Portfolio.MaxPositions <= 0 {
		errs = append(errs, "max_positions must be > 0")
	}
	if p.Portfolio.MaxDrawdown <= 0 || p.Portfolio.MaxDrawdown > 1 {
		errs = append(errs, fmt.Sprintf("max_drawdown must be in (0,1], got %.4f", p.Portfolio.MaxDrawdown))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func policyVersion(data []byte) string {
	h := uint64(14695981039346656037)
	for _, b := range data {
		h ^= uint64(b)
		h *= 1099511628211
	}
	return fmt.Sprintf("v%x", h&0xffffffffffff)
}

// ViolationCode is a machine-readable identifier for a policy breach.
type ViolationCode string

const (
	ViolationStopTooTight     ViolationCode = "stop_too_tight"
	ViolationStopTooWide      ViolationCode = "stop_too_wide"
	ViolationRiskTooHigh      ViolationCode = "risk_per_trade_too_high"
	ViolationTooManyPositions ViolationCode = "too_many_open_positions"
	ViolationDrawdownHalt     ViolationCode = "drawdown_halt"
)

// Violation describes a single policy breach.
type Violation struct {
	Code     ViolationCode
	Message  string
	Limit    float64
	Observed float64
}

func (v Violation) Error() string {
	return fmt.Sprintf("risk violation [%s]: %s (limit=%.4f, observed=%.4f)", v.Code, v.Message, v.Limit, v.Observed)
}

// Violations is a slice of Violation that also satisfies the error interface.
type Violations []Violation

func (vs Violations) Error() string {
	msgs := make([]string, len(vs))
	for i, v := range vs {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, " | ")
}

// IsEmpty reports whether there are no violations.
func (vs Violations) IsEmpty() bool { return len(vs) == 0 }

// SignalInput carries the per-order values needed for CheckSignal's
// stop-distance and per-trade-risk checks. Engine.Evaluate does not call
// CheckSignal.
type SignalInput struct {
	EntryPrice    float64
	StopLoss      float64
	AccountEquity float64
	PositionValue float64
}

// PortfolioSnapshot carries the current portfolio facts needed for
// portfolio-level gates.
type PortfolioSnapshot struct {
	NetLiquidation  int
	OpenPositions   int
	CurrentDrawdown float64
}

// Enforcer applies a Policy to signals and portfolio state. It is the
// additional, versioned layer Engine.Evaluate consults before sizing: caps
// that come from a file-loadable policy rather than per-account Limits.
type Enforcer struct {
	policy *Policy
}

// NewEnforcer creates an Enforcer backed by the given Policy.
func NewEnforcer(policy *Policy) *Enforcer { return &Enforcer{policy: policy} }

// Policy returns the enforcer's policy for logging/audit.
func (e *Enforcer) Policy() *Policy { return e.policy }

// CheckSignal validates a single proposed order against the per-trade
// position limits in the policy's Position block.
func (e *Enforcer) CheckSignal(sig SignalInput) Violations {
	var vs Violations
	p := e.policy.Position

	if sig.EntryPrice <= 0 {
		return vs
	}

	stopDist := abs(sig.EntryPrice-sig.StopLoss) / sig.EntryPrice

	if p.MinStopDistance > 0 && stopDist < p.MinStopDistance {
		vs = append(vs, Violation{
			Code:     ViolationStopTooTight,
			Message:  fmt.Sprintf("stop distance %.4f%% is below minimum %.4f%%", stopDist*100, p.MinStopDistance*100),
			Limit:    p.MinStopDistance,
			Observed: stopDist,
		})
	}
	if p.MaxStopDistance > 0 && stopDist > p.MaxStopDistance {
		vs = append(vs, Violation{
			Code:     ViolationStopTooWide,
			Message:  fmt.Sprintf("stop distance %.4f%% exceeds maximum %.4f%%", stopDist*100, p.MaxStopDistance*100),
			Limit:    p.MaxStopDistance,
			Observed: stopDist,
		})
	}

	if sig.AccountEquity > 0 {
		riskDollar := abs(sig.EntryPrice-sig.StopLoss) * (sig.PositionValue / sig.EntryPrice)
		riskFrac := riskDollar / sig.AccountEquity
		if p.MaxRiskPerTrade > 0 && riskFrac > p.MaxRiskPerTrade {
			vs = append(vs, Violation{
				Code:     ViolationRiskTooHigh,
				Message:  fmt.Sprintf("trade risk %.4f%% exceeds maximum %.4f%%", riskFrac*100, p.MaxRiskPerTrade*100),
				Limit:    p.MaxRiskPerTrade,
				Observed: riskFrac,
			})
		}
	}

	return vs
}

// CheckPortfolio validates the current portfolio state against the policy's
// Portfolio block: open-position count and drawdown halt.
func (e *Enforcer) CheckPortfolio(snap PortfolioSnapshot) Violations {
	var vs Violations
	pc := e.policy.Portfolio

	if pc.MaxPositions > 0 && snap.OpenPositions >= pc.MaxPositions {
		vs = append(vs, Violation{
			Code:     ViolationTooManyPositions,
			Message:  fmt.Sprintf("open positions %d has reached maximum %d", snap.OpenPositions, pc.MaxPositions),
			Limit:    float64(pc.MaxPositions),
			Observed: float64(snap.OpenPositions),
		})
	}
	if pc.MaxDrawdown > 0 && snap.CurrentDrawdown >= pc.MaxDrawdown {
		vs = append(vs, Violation{
			Code:     ViolationDrawdownHalt,
			Message:  fmt.Sprintf("drawdown %.4f%% has reached halt threshold %.4f%%", snap.CurrentDrawdown*100, pc.MaxDrawdown*100),
			Limit:    pc.MaxDrawdown,
			Observed: snap.CurrentDrawdown,
		})
	}

	return vs
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
