package orchestrator

import (
	"context"
	"sync"
	"time"

	"jax-papertrader/internal/candles"
	"jax-papertrader/internal/observability"
)

// SchedulerState is the live-loop's current state flag (§9: one serial
// worker per (symbol, tf), {STOPPED, RUNNING, ERROR}).
type SchedulerState string

const (
	StateStopped SchedulerState = "STOPPED"
	StateRunning SchedulerState = "RUNNING"
	StateError   SchedulerState = "ERROR"
)

type controlMsg int

const (
	msgStart controlMsg = iota
	msgStop
)

// Scheduler runs one goroutine per (symbol, tf) that drives RunCycle as new
// candles arrive, grounded in cmd/trader/main.go's background-goroutine /
// os.Signal control-channel shutdown idiom. A snapshot primitive (state,
// via an atomic-guarded field read under mu) lets status readers never
// block the worker.
type Scheduler struct {
	orch     *Orchestrator
	candles  candles.Store
	symbol   string
	tf       string
	poll     time.Duration
	control  chan controlMsg
	mu       sync.Mutex
	state    SchedulerState
	lastErr  error
	lastSeen time.Time
}

// NewScheduler wraps an Orchestrator to drive cycles for (symbol, tf) every
// poll interval.
func NewScheduler(orch *Orchestrator, candleStore candles.Store, symbol, tf string, poll time.Duration) *Scheduler {
	return &Scheduler{
		orch:    orch,
		candles: candleStore,
		symbol:  symbol,
		tf:      tf,
		poll:    poll,
		control: make(chan controlMsg, 1),
		state:   StateStopped,
	}
}

// Start launches the worker goroutine, returning immediately. Calling Start
// twice without an intervening Stop is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = StateRunning
	s.mu.Unlock()

	go s.run(ctx)
}

// Stop signals the worker to exit after its current iteration.
func (s *Scheduler) Stop() {
	select {
	case s.control <- msgStop:
	default:
	}
}

// Snapshot returns the scheduler's current state and last error without
// blocking the worker goroutine.
func (s *Scheduler) Snapshot() (SchedulerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.lastErr
}

func (s *Scheduler) run(ctx context.Context) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setState(StateStopped, nil)
			return
		case msg := <-s.control:
			if msg == msgStop {
				s.setState(StateStopped, nil)
				return
			}
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick drives execution for any order becoming due at the latest candle
// regardless of this candle's intent, then runs one cycle for the latest
// candle. Running execution unconditionally — ahead of RunCycle's own
// NOOP short-circuit — ensures a pending order from a prior BUY/SELL cycle
// still fills on a later HOLD candle instead of stalling forever.
func (s *Scheduler) tick(ctx context.Context) {
	latest, err := s.candles.Latest(ctx, s.symbol, s.tf)
	if err != nil {
		// No candle ingested yet for this pair; nothing to drive.
		return
	}
	if !latest.OpenTime.After(s.lastSeen) && !s.lastSeen.IsZero() {
		return
	}

	if _, err := s.orch.execution.ProcessNewOrdersForCandle(ctx, latest.OpenTime, s.symbol, s.tf); err != nil {
		observability.LogEvent(ctx, "error", "scheduler_execution_failed", map[string]any{"error": err})
	}

	start := time.Now()
	report, err := s.orch.RunCycle(ctx, s.symbol, s.tf, latest.OpenTime)
	observability.LogCycle(observability.WithRunInfo(ctx, observability.RunInfo{RunID: report.RunID, Symbol: s.symbol, Timeframe: s.tf}), string(report.Status), time.Since(start), err)

	s.mu.Lock()
	s.lastSeen = latest.OpenTime
	s.mu.Unlock()

	if err != nil {
		s.setState(StateError, err)
		return
	}
	s.setState(StateRunning, nil)
}

func (s *Scheduler) setState(state SchedulerState, err error) {
	s.mu.Lock()
	s.state = state
	s.lastErr = err
	s.mu.Unlock()
}
