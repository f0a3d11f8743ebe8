// Package run orchestrates a load test: configuration, the virtual user
// scheduler, metric aggregation, threshold evaluation, reporting, and the
// process exit code.
package run

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/studiowebux/loadcli/internal/logging"
	"github.com/studiowebux/loadcli/internal/metrics"
	"github.com/studiowebux/loadcli/internal/output"
	"github.com/studiowebux/loadcli/internal/parser"
	"github.com/studiowebux/loadcli/internal/scenario"
	"github.com/studiowebux/loadcli/internal/scheduler"
	"github.com/studiowebux/loadcli/internal/threshold"
	"github.com/studiowebux/loadcli/internal/types"
	"github.com/studiowebux/loadcli/internal/workload"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the controller's lifecycle phase.
type State int

const (
	Idle State = iota
	Configuring
	Running
	Draining
	Evaluating
	Reporting
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Configuring:
		return "configuring"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Evaluating:
		return "evaluating"
	case Reporting:
		return "reporting"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Options configures a run. CLI flags override the scenario file's values.
type Options struct {
	ScenarioPath string

	// Overrides; zero values leave the scenario untouched.
	VUs        int
	Duration   time.Duration
	Iterations int64
	Pacing     time.Duration
	Outputs    []string

	ExtraVars map[string]string
	EnvFile   string

	// TrendCap bounds per-trend sample retention; 0 selects the default.
	TrendCap int
}

// Controller drives a single run through its lifecycle.
type Controller struct {
	opts  Options
	runID string

	mu    sync.Mutex
	state State
}

// New creates a run controller.
func New(opts Options) *Controller {
	return &Controller{opts: opts, runID: uuid.NewString(), state: Idle}
}

// RunID returns the run's unique identifier.
func (c *Controller) RunID() string { return c.runID }

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	logging.Debug("run state changed", zap.String("state", s.String()), zap.String("run", c.runID))
}

// Execute runs the full lifecycle and returns the process exit code.
// Cancelling ctx stops the run cooperatively; the summary is still
// evaluated and reported.
func (c *Controller) Execute(ctx context.Context) int {
	c.setState(Configuring)

	prep, err := c.configure()
	if err != nil {
		logging.Error("run aborted", zap.Error(err))
		c.setState(Done)
		return ExitConfigError
	}
	defer prep.closeSinks()

	logging.Info("starting run",
		zap.String("run", c.runID),
		zap.String("scenario", prep.scenario.Name),
		zap.Int("vus", prep.scenario.MaxVUs()),
		zap.Duration("duration", prep.scenario.Duration.D()),
		zap.Int64("iterations", prep.scenario.Iterations))

	c.setState(Running)
	startedAt := time.Now()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	status := "completed"
	var statusMu sync.Mutex
	setStatus := func(s string) {
		statusMu.Lock()
		if status == "completed" {
			status = s
		}
		statusMu.Unlock()
	}

	// Continuous threshold evaluation: abort-on-fail thresholds can stop
	// the run early on best-effort snapshots.
	watcherDone := make(chan struct{})
	if prep.hasAbortThresholds() {
		go func() {
			defer close(watcherDone)
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-runCtx.Done():
					return
				case <-ticker.C:
					snap := prep.registry.Snapshot(time.Now())
					if res, breached := threshold.AbortBreached(prep.thresholds, snap); breached {
						logging.Warn("threshold breached, aborting run",
							zap.String("metric", res.Metric),
							zap.String("expression", res.Expression),
							zap.Float64("observed", res.Observed))
						setStatus("aborted")
						cancel()
						return
					}
				}
			}
		}()
	} else {
		close(watcherDone)
	}

	schedDone := make(chan error, 1)
	go func() { schedDone <- prep.sched.Run(runCtx) }()

	var schedErr error
	select {
	case schedErr = <-schedDone:
	case <-prep.sched.Stopping():
		// Deadline, iteration cap, or cancellation: virtual users finish
		// their in-flight iterations before the scheduler joins.
		if ctx.Err() != nil {
			setStatus("cancelled")
		}
		c.setState(Draining)
		schedErr = <-schedDone
	}
	cancel()
	<-watcherDone
	completedAt := time.Now()

	c.setState(Evaluating)
	summaries := prep.registry.Snapshot(completedAt)
	report := threshold.EvaluateAll(prep.thresholds, summaries)

	c.setState(Reporting)
	summary := &output.RunSummary{
		RunID:       c.runID,
		Scenario:    prep.scenario.Name,
		StartedAt:   startedAt,
		CompletedAt: completedAt,
		Status:      status,
		Metrics:     summaries,
		Thresholds:  report,
	}
	c.report(prep.outputs, summary)

	c.setState(Done)

	if schedErr != nil {
		logging.Error("run failed", zap.Error(&SchedulerFault{Err: schedErr}))
		return ExitSchedulerFault
	}
	if !report.Pass {
		for _, res := range report.Results {
			if !res.Passed {
				reason := res.Reason
				if reason == "" {
					reason = fmt.Sprintf("observed %.2f", res.Observed)
				}
				logging.Error("threshold failed",
					zap.String("metric", res.Metric),
					zap.String("expression", res.Expression),
					zap.String("reason", reason))
			}
		}
		return ExitThresholdsFailed
	}

	logging.Info("run passed", zap.String("run", c.runID), zap.String("status", status))
	return ExitOK
}

// prepared holds everything built during the Configuring phase.
type prepared struct {
	scenario   *scenario.Scenario
	registry   *metrics.Registry
	thresholds []*threshold.Threshold
	sched      *scheduler.Scheduler
	outputs    []output.Output
}

func (p *prepared) hasAbortThresholds() bool {
	for _, t := range p.thresholds {
		if t.AbortOnFail {
			return true
		}
	}
	return false
}

func (p *prepared) closeSinks() {
	for _, out := range p.outputs {
		if sink, ok := out.(output.SampleSink); ok {
			if err := sink.Close(); err != nil {
				logging.Warn("failed to close output", zap.String("output", sink.Name()), zap.Error(err))
			}
		}
	}
}

// configure loads and validates the scenario and builds every collaborator.
// All failures here are configuration errors: nothing has started yet.
func (c *Controller) configure() (*prepared, error) {
	sc, err := scenario.Load(c.opts.ScenarioPath)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	// CLI overrides
	if c.opts.VUs > 0 {
		sc.VUs = c.opts.VUs
	}
	if c.opts.Duration > 0 {
		sc.Duration = scenario.Duration(c.opts.Duration)
	}
	if c.opts.Iterations > 0 {
		sc.Iterations = c.opts.Iterations
	}
	if c.opts.Pacing > 0 {
		sc.Pacing = scenario.Duration(c.opts.Pacing)
	}
	if len(c.opts.Outputs) > 0 {
		sc.Outputs = c.opts.Outputs
	}
	if len(sc.Outputs) == 0 {
		sc.Outputs = []string{"text"}
	}

	if err := sc.Validate(); err != nil {
		return nil, &ConfigError{Err: err}
	}

	thresholds, err := compileThresholds(sc)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	request, err := c.resolveRequest(sc)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	checks, err := workload.CompileChecks(sc.Checks)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}
	custom, err := workload.CompileMetrics(sc.Metrics)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	clientCfg := workload.ClientConfig{
		MaxConns:       sc.MaxVUs(),
		RequestTimeout: sc.GetRequestTimeout(),
		TLS:            request.TLS,
	}
	if clientCfg.TLS == nil {
		clientCfg.TLS = sc.TLS
	}
	if sc.Auth != nil {
		clientCfg.Auth = &workload.OAuthConfig{
			TokenURL:     sc.Auth.TokenURL,
			ClientID:     sc.Auth.ClientID,
			ClientSecret: sc.Auth.ClientSecret,
			Scopes:       sc.Auth.Scopes,
		}
	}
	client, err := workload.BuildClient(clientCfg)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	wl, err := workload.NewHTTP(request, client, checks, custom)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	registry := metrics.NewRegistry(c.opts.TrendCap)

	outputs, err := output.Build(sc.Outputs, c.runID)
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	// Live sinks see the raw stream alongside the aggregator.
	sinks := []metrics.Sink{registry}
	for _, out := range outputs {
		if sink, ok := out.(output.SampleSink); ok {
			sinks = append(sinks, sink)
		}
	}

	stages := make([]scheduler.Stage, len(sc.Stages))
	for i, st := range sc.Stages {
		stages[i] = scheduler.Stage{Duration: st.Duration.D(), Target: st.Target}
	}

	sched, err := scheduler.New(scheduler.Config{
		VUs:        sc.VUs,
		Duration:   sc.Duration.D(),
		Iterations: sc.Iterations,
		Pacing:     sc.Pacing.D(),
		Stages:     stages,
	}, wl, metrics.Tee(sinks...))
	if err != nil {
		return nil, &ConfigError{Err: err}
	}

	return &prepared{
		scenario:   sc,
		registry:   registry,
		thresholds: thresholds,
		sched:      sched,
		outputs:    outputs,
	}, nil
}

func compileThresholds(sc *scenario.Scenario) ([]*threshold.Threshold, error) {
	var thresholds []*threshold.Threshold
	for metric, specs := range sc.Thresholds {
		for _, spec := range specs {
			t, err := threshold.Compile(metric, spec.Expr, spec.AbortOnFail)
			if err != nil {
				return nil, err
			}
			thresholds = append(thresholds, t)
		}
	}
	return thresholds, nil
}

// resolveRequest builds the immutable request definition from the scenario,
// resolving {{var}} placeholders. Unresolved placeholders abort the run
// before any virtual user starts.
func (c *Controller) resolveRequest(sc *scenario.Scenario) (*types.HttpRequest, error) {
	var request *types.HttpRequest

	if sc.Request != nil {
		request = &types.HttpRequest{
			Name:    sc.Name,
			Method:  strings.ToUpper(sc.Request.Method),
			URL:     sc.Request.URL,
			Headers: sc.Request.Headers,
			Body:    sc.Request.Body,
		}
		if request.Headers == nil {
			request.Headers = map[string]string{}
		}
	} else {
		file, err := parser.ParseHTTPFile(sc.RequestFile)
		if err != nil {
			return nil, err
		}
		req, ok := file.FindRequest(sc.RequestName)
		if !ok {
			return nil, fmt.Errorf("request %q not found in %s", sc.RequestName, sc.RequestFile)
		}
		request = req
	}

	envVars := parser.LoadSystemEnv()
	if c.opts.EnvFile != "" {
		fileVars, err := parser.LoadEnvFile(c.opts.EnvFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fileVars {
			envVars[k] = v
		}
	}

	resolver := parser.NewVariableResolver(sc.Vars, c.opts.ExtraVars, envVars)
	resolved := resolver.ResolveRequest(request)
	if unresolved := resolver.GetUnresolvedVariables(); len(unresolved) > 0 {
		return nil, fmt.Errorf("unresolved variables: %s", strings.Join(unresolved, ", "))
	}

	return resolved, nil
}

// report fans the final summary out to every writer. Failures are logged
// and never change the run's outcome.
func (c *Controller) report(outputs []output.Output, summary *output.RunSummary) {
	var g errgroup.Group
	for _, out := range outputs {
		writer, ok := out.(output.SummaryWriter)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := writer.WriteSummary(summary); err != nil {
				logging.Warn("summary handler failed",
					zap.String("output", writer.Name()),
					zap.Error(err))
			}
			return nil
		})
	}
	g.Wait()
}
