package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/studiowebux/loadcli/internal/metrics"
)

var (
	styleTitle  = lipgloss.NewStyle().Bold(true)
	styleSubtle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	stylePass   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	styleFail   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

// Text renders the final summary for the terminal.
type Text struct {
	w io.Writer
}

// NewText creates a text summary writer. A nil writer selects stdout.
func NewText(w io.Writer) *Text {
	if w == nil {
		w = os.Stdout
	}
	return &Text{w: w}
}

func (t *Text) Name() string { return "text" }

// WriteSummary renders the run report.
func (t *Text) WriteSummary(s *RunSummary) error {
	var b strings.Builder

	b.WriteString(styleTitle.Render(s.Scenario) + "\n")
	b.WriteString(styleSubtle.Render("Run: ") + s.RunID + "\n\n")

	b.WriteString(styleTitle.Render("Status") + "\n")
	b.WriteString(fmt.Sprintf("Status:     %s\n", s.Status))
	b.WriteString(fmt.Sprintf("Started:    %s\n", s.StartedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Completed:  %s\n", s.CompletedAt.Format("2006-01-02 15:04:05")))
	b.WriteString(fmt.Sprintf("Duration:   %.1fs\n\n", s.ElapsedSeconds()))

	if reqs, ok := s.Metrics[metrics.MetricHTTPReqs]; ok {
		b.WriteString(styleTitle.Render("Requests") + "\n")
		b.WriteString(fmt.Sprintf("Total:        %d\n", reqs.Count))
		b.WriteString(fmt.Sprintf("Rate:         %.1f/s\n", reqs.Rate))
		if failed, ok := s.Metrics[metrics.MetricHTTPReqFailed]; ok {
			b.WriteString(fmt.Sprintf("Failed:       %d (%.1f%%)\n", failed.Passes, failed.Rate*100))
		}
		b.WriteString("\n")
	}

	if dur, ok := s.Metrics[metrics.MetricHTTPReqDuration]; ok {
		b.WriteString(styleTitle.Render("Latency") + "\n")
		b.WriteString(fmt.Sprintf("Average:    %.0fms\n", dur.Avg))
		b.WriteString(fmt.Sprintf("Min:        %.0fms\n", dur.Min))
		b.WriteString(fmt.Sprintf("Max:        %.0fms\n", dur.Max))
		b.WriteString(fmt.Sprintf("P50:        %.0fms\n", dur.Med))
		b.WriteString(fmt.Sprintf("P90:        %.0fms\n", dur.P90))
		b.WriteString(fmt.Sprintf("P95:        %.0fms\n", dur.P95))
		b.WriteString(fmt.Sprintf("P99:        %.0fms\n\n", dur.P99))
	}

	if iters, ok := s.Metrics[metrics.MetricIterations]; ok {
		b.WriteString(styleTitle.Render("Iterations") + "\n")
		b.WriteString(fmt.Sprintf("Total:        %d\n", iters.Count))
		b.WriteString(fmt.Sprintf("Rate:         %.1f/s\n", iters.Rate))
		if checks, ok := s.Metrics[metrics.MetricChecks]; ok {
			b.WriteString(fmt.Sprintf("Checks:       %d passed, %d failed (%.1f%%)\n",
				checks.Passes, checks.Fails, checks.Rate*100))
		}
		b.WriteString("\n")
	}

	if custom := customMetrics(s.Metrics); len(custom) > 0 {
		b.WriteString(styleTitle.Render("Custom Metrics") + "\n")
		for _, m := range custom {
			switch m.Kind {
			case metrics.Trend:
				b.WriteString(fmt.Sprintf("%-20s avg=%.2f min=%.2f max=%.2f p95=%.2f\n",
					m.Metric, m.Avg, m.Min, m.Max, m.P95))
			case metrics.Rate:
				b.WriteString(fmt.Sprintf("%-20s rate=%.2f%% (%d/%d)\n",
					m.Metric, m.Rate*100, m.Passes, m.Count))
			case metrics.Gauge:
				b.WriteString(fmt.Sprintf("%-20s value=%.2f min=%.2f max=%.2f\n",
					m.Metric, m.Value, m.Min, m.Max))
			default:
				b.WriteString(fmt.Sprintf("%-20s count=%.0f rate=%.2f/s\n", m.Metric, m.Sum, m.Rate))
			}
		}
		b.WriteString("\n")
	}

	if len(s.Thresholds.Results) > 0 {
		b.WriteString(styleTitle.Render("Thresholds") + "\n")
		for _, res := range s.Thresholds.Results {
			mark := stylePass.Render("PASS")
			if !res.Passed {
				mark = styleFail.Render("FAIL")
			}
			line := fmt.Sprintf("%s  %s: %s", mark, res.Metric, res.Expression)
			if res.Reason != "" {
				line += styleSubtle.Render(" (" + res.Reason + ")")
			} else {
				line += styleSubtle.Render(fmt.Sprintf(" (observed %.2f)", res.Observed))
			}
			b.WriteString(line + "\n")
		}
		if s.Thresholds.Pass {
			b.WriteString("\n" + stylePass.Render("All thresholds passed") + "\n")
		} else {
			b.WriteString("\n" + styleFail.Render("Thresholds failed") + "\n")
		}
	}

	_, err := io.WriteString(t.w, b.String())
	return err
}

// customMetrics returns non-builtin summaries sorted by name.
func customMetrics(all map[string]metrics.Summary) []metrics.Summary {
	builtin := map[string]bool{
		metrics.MetricIterations:        true,
		metrics.MetricIterationDuration: true,
		metrics.MetricHTTPReqs:          true,
		metrics.MetricHTTPReqDuration:   true,
		metrics.MetricHTTPReqFailed:     true,
		metrics.MetricChecks:            true,
		metrics.MetricDataSent:          true,
		metrics.MetricDataReceived:      true,
		metrics.MetricErrors:            true,
		metrics.MetricVUs:               true,
	}

	var out []metrics.Summary
	for name, s := range all {
		if !builtin[name] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}
