// Package scheduler runs the virtual user pool: N concurrent workers each
// looping over a workload iteration with a pacing delay, until a wall-clock
// deadline, an iteration cap, or an external stop.
package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/studiowebux/loadcli/internal/logging"
	"github.com/studiowebux/loadcli/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Workload is one iteration of user-supplied work. Implementations perform
// requests and emit samples through the VU. An iteration error is recorded
// and never stops the virtual user.
type Workload interface {
	Iteration(ctx context.Context, vu *VU) error
}

// VU is the per-virtual-user state handed to each iteration. Virtual users
// share no mutable state with each other except the sample sink.
type VU struct {
	ID         int
	Iterations int64

	sink metrics.Sink
}

// NewVU creates a standalone virtual user bound to a sink. The scheduler
// creates its own; this is for driving a workload directly.
func NewVU(id int, sink metrics.Sink) *VU {
	return &VU{ID: id, sink: sink}
}

// Emit submits a sample tagged with this virtual user's identity.
func (vu *VU) Emit(s metrics.Sample) {
	if s.Tags == nil {
		s.Tags = map[string]string{}
	}
	s.Tags["vu"] = strconv.Itoa(vu.ID)
	vu.sink.Submit(s)
}

// Stage is one step of a target-concurrency plan.
type Stage struct {
	Duration time.Duration
	Target   int
}

// Config is the immutable scheduler configuration for one run.
type Config struct {
	VUs        int
	Duration   time.Duration // 0 = unbounded (iteration cap or Stop governs)
	Iterations int64         // 0 = unbounded, shared across all VUs
	Pacing     time.Duration
	Stages     []Stage // optional; overrides VUs/Duration when set
}

// Scheduler manages the virtual user pool for a single run.
type Scheduler struct {
	cfg      Config
	workload Workload
	sink     metrics.Sink

	mu      sync.Mutex
	handles []*vuHandle
	nextID  int

	vuWG     sync.WaitGroup
	runCtx   context.Context
	cancel   context.CancelFunc
	stopping chan struct{}
	done     chan struct{}
	claimed  int64
}

type vuHandle struct {
	cancel context.CancelFunc
}

// New creates a scheduler. The config must describe a bounded run: a
// duration, an iteration cap, or stages.
func New(cfg Config, workload Workload, sink metrics.Sink) (*Scheduler, error) {
	if workload == nil {
		return nil, fmt.Errorf("workload is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("sample sink is required")
	}
	if len(cfg.Stages) == 0 && cfg.VUs <= 0 {
		return nil, fmt.Errorf("virtual user count must be greater than 0")
	}
	for i, st := range cfg.Stages {
		if st.Target < 0 {
			return nil, fmt.Errorf("stage %d: target cannot be negative", i)
		}
		if st.Duration <= 0 {
			return nil, fmt.Errorf("stage %d: duration must be greater than 0", i)
		}
	}
	if len(cfg.Stages) == 0 && cfg.Duration <= 0 && cfg.Iterations <= 0 {
		return nil, fmt.Errorf("a duration, iteration cap, or stages are required")
	}
	return &Scheduler{
		cfg:      cfg,
		workload: workload,
		sink:     sink,
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run executes the plan and blocks until every virtual user has exited.
// Cancellation of ctx stops the run cooperatively: each VU finishes its
// in-flight iteration first. No sample is emitted after Run returns.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.Lock()
	s.runCtx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()
	defer s.cancel()
	defer close(s.done)

	go func() {
		<-s.runCtx.Done()
		close(s.stopping)
	}()

	plan := s.cfg.Stages
	if len(plan) == 0 {
		plan = []Stage{{Duration: s.cfg.Duration, Target: s.cfg.VUs}}
	}

	// First stage starts synchronously so the pool exists before anyone
	// waits on it.
	s.scaleTo(plan[0].Target)

	g, _ := errgroup.WithContext(s.runCtx)
	g.Go(func() error {
		s.controlLoop(plan)
		return nil
	})

	s.vuWG.Wait()
	s.cancel() // release the control loop if VUs drained first (iteration cap)
	if err := g.Wait(); err != nil {
		return err
	}
	return nil
}

// controlLoop walks the stage plan, rescaling the pool at each boundary,
// then requests a stop once the plan is exhausted.
func (s *Scheduler) controlLoop(plan []Stage) {
	for i, st := range plan {
		if i > 0 {
			s.scaleTo(st.Target)
		}

		if st.Duration == 0 {
			// Unbounded stage: the iteration cap or an external stop ends it.
			<-s.runCtx.Done()
			return
		}

		select {
		case <-s.runCtx.Done():
			return
		case <-time.After(st.Duration):
		}
	}
	s.cancel()
}

// Stopping is closed once the run starts winding down, whatever the cause:
// deadline, stage plan exhausted, iteration cap, or cancellation. Virtual
// users may still be finishing their in-flight iterations.
func (s *Scheduler) Stopping() <-chan struct{} { return s.stopping }

// Stop requests cancellation and blocks until all virtual users have
// observed it and exited. Idempotent; before Run it is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-s.done
}

// scaleTo adjusts the pool to the target concurrency. New users start
// immediately; retired users finish their in-flight iteration before
// exiting.
func (s *Scheduler) scaleTo(target int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.handles) < target {
		s.nextID++
		vuCtx, cancel := context.WithCancel(s.runCtx)
		s.handles = append(s.handles, &vuHandle{cancel: cancel})
		s.vuWG.Add(1)
		go s.runVU(vuCtx, s.nextID)
	}
	for len(s.handles) > target {
		last := len(s.handles) - 1
		s.handles[last].cancel()
		s.handles = s.handles[:last]
	}

	s.sink.Submit(metrics.Sample{
		Metric: metrics.MetricVUs,
		Kind:   metrics.Gauge,
		Value:  float64(target),
		Time:   time.Now(),
	})
}

// runVU is one virtual user's loop: claim an iteration, run it, record it,
// pace, repeat. The stop signal is only checked between iterations.
func (s *Scheduler) runVU(ctx context.Context, id int) {
	defer s.vuWG.Done()

	vu := &VU{ID: id, sink: s.sink}

	// Iterations are never aborted mid-flight: they get a context that
	// survives the stop signal. The workload bounds each request with its
	// own timeout.
	iterCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if s.cfg.Iterations > 0 {
			if atomic.AddInt64(&s.claimed, 1) > s.cfg.Iterations {
				s.cancel()
				return
			}
		}

		start := time.Now()
		err := s.safeIteration(iterCtx, vu)
		elapsed := time.Since(start)
		vu.Iterations++

		now := time.Now()
		vu.Emit(metrics.Sample{Metric: metrics.MetricIterations, Kind: metrics.Counter, Value: 1, Time: now})
		vu.Emit(metrics.Sample{Metric: metrics.MetricIterationDuration, Kind: metrics.Trend, Value: float64(elapsed.Milliseconds()), Time: now})

		if err != nil {
			vu.Emit(metrics.Sample{Metric: metrics.MetricErrors, Kind: metrics.Counter, Value: 1, Time: now})
			vu.Emit(metrics.Sample{
				Metric: metrics.MetricChecks,
				Kind:   metrics.Rate,
				Value:  0,
				Time:   now,
				Tags:   map[string]string{"check": "iteration"},
			})
			logging.Debug("iteration failed",
				zap.Int("vu", id),
				zap.Int64("iteration", vu.Iterations),
				zap.Error(err))
		}

		if s.cfg.Pacing > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Pacing):
			}
		}
	}
}

// safeIteration runs one iteration, converting a panic into an error so a
// misbehaving workload never takes down the virtual user.
func (s *Scheduler) safeIteration(ctx context.Context, vu *VU) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("iteration panic: %v", r)
		}
	}()
	return s.workload.Iteration(ctx, vu)
}
