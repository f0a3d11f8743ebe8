// Package output implements the summary handlers: consumers of the final
// aggregated run data (text, JSON) and live sample sinks (SQLite raw
// metrics, Prometheus). A handler failure is logged by the run controller
// and never changes the run's outcome.
package output

import (
	"fmt"
	"strings"
	"time"

	"github.com/studiowebux/loadcli/internal/metrics"
	"github.com/studiowebux/loadcli/internal/threshold"
)

// RunSummary is the final snapshot handed to every summary writer.
type RunSummary struct {
	RunID       string                     `json:"runId"`
	Scenario    string                     `json:"scenario"`
	StartedAt   time.Time                  `json:"startedAt"`
	CompletedAt time.Time                  `json:"completedAt"`
	Status      string                     `json:"status"` // completed, cancelled, aborted
	Metrics     map[string]metrics.Summary `json:"metrics"`
	Thresholds  threshold.Report           `json:"thresholds"`
}

// ElapsedSeconds returns the run's wall-clock duration in seconds.
func (s *RunSummary) ElapsedSeconds() float64 {
	return s.CompletedAt.Sub(s.StartedAt).Seconds()
}

// Output is anything built from an output spec string.
type Output interface {
	Name() string
}

// SummaryWriter receives the final run summary once, at run end.
type SummaryWriter interface {
	Output
	WriteSummary(s *RunSummary) error
}

// SampleSink receives the raw sample stream during the run and is closed
// after the final summary is written.
type SampleSink interface {
	Output
	metrics.Sink
	Close() error
}

// Build constructs outputs from spec strings of the form "name" or
// "name=argument": text, json=<path|->, sqlite=<path>, prometheus=<addr>.
func Build(specs []string, runID string) ([]Output, error) {
	outputs := make([]Output, 0, len(specs))
	for _, spec := range specs {
		name, arg, _ := strings.Cut(spec, "=")
		switch name {
		case "text":
			outputs = append(outputs, NewText(nil))
		case "json":
			if arg == "" {
				arg = "-"
			}
			outputs = append(outputs, NewJSON(arg))
		case "sqlite":
			if arg == "" {
				return nil, fmt.Errorf("sqlite output requires a file path")
			}
			s, err := NewSQLite(arg, runID)
			if err != nil {
				return nil, fmt.Errorf("failed to open sqlite output: %w", err)
			}
			outputs = append(outputs, s)
		case "prometheus":
			if arg == "" {
				return nil, fmt.Errorf("prometheus output requires a listen address")
			}
			p, err := NewPrometheus(arg)
			if err != nil {
				return nil, fmt.Errorf("failed to start prometheus output: %w", err)
			}
			outputs = append(outputs, p)
		default:
			return nil, fmt.Errorf("unknown output %q", name)
		}
	}
	return outputs, nil
}
