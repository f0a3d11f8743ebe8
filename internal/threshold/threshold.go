// Package threshold implements pass/fail rules over aggregated metrics.
//
// A threshold is a boolean expression bound to one metric name, compiled
// once and evaluated against that metric's summary. Expressions see the
// summary's statistics as variables:
//
//	count, rate, avg, min, max, med, p90, p95, p99, value
//
// Examples: "p95 < 500", "rate > 0.99", "avg < 200 && max < 1000".
package threshold

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/studiowebux/loadcli/internal/metrics"
)

// Env exposes a metric summary to threshold expressions.
type Env struct {
	Count float64 `expr:"count"`
	Rate  float64 `expr:"rate"`
	Avg   float64 `expr:"avg"`
	Min   float64 `expr:"min"`
	Max   float64 `expr:"max"`
	Med   float64 `expr:"med"`
	P90   float64 `expr:"p90"`
	P95   float64 `expr:"p95"`
	P99   float64 `expr:"p99"`
	Value float64 `expr:"value"`
}

// statNames ordered longest-first so "p95" is not matched inside "p9".
var statNames = []string{"count", "value", "rate", "avg", "min", "max", "med", "p90", "p95", "p99"}

// Threshold is a compiled pass/fail rule for a single metric.
type Threshold struct {
	Metric      string
	Expression  string
	AbortOnFail bool

	program  *vm.Program
	observed string // the first stat name referenced by the expression
}

// Result is the outcome of evaluating one threshold.
type Result struct {
	Metric      string  `json:"metric"`
	Expression  string  `json:"expression"`
	Passed      bool    `json:"passed"`
	Observed    float64 `json:"observed"`
	Reason      string  `json:"reason,omitempty"`
	AbortOnFail bool    `json:"abortOnFail,omitempty"`
}

// Report is the outcome of evaluating a full threshold set.
type Report struct {
	Pass    bool     `json:"pass"`
	Results []Result `json:"results"`
}

// Compile builds a threshold from its expression source.
func Compile(metric, source string, abortOnFail bool) (*Threshold, error) {
	program, err := expr.Compile(source, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("threshold %q on %s: failed to compile expression: %w", source, metric, err)
	}

	return &Threshold{
		Metric:      metric,
		Expression:  source,
		AbortOnFail: abortOnFail,
		program:     program,
		observed:    firstStat(source),
	}, nil
}

// firstStat returns the earliest stat name referenced in the source.
func firstStat(source string) string {
	best := ""
	bestIdx := len(source) + 1
	for _, name := range statNames {
		idx := strings.Index(source, name)
		if idx >= 0 && idx < bestIdx {
			bestIdx = idx
			best = name
		}
	}
	return best
}

// Evaluate runs the threshold against a summary. hasData=false (metric never
// received a sample) fails with reason "no data" rather than being skipped.
// Evaluation is deterministic and side-effect free: calling it twice on the
// same summary yields identical results.
func (t *Threshold) Evaluate(s metrics.Summary, hasData bool) Result {
	res := Result{
		Metric:      t.Metric,
		Expression:  t.Expression,
		AbortOnFail: t.AbortOnFail,
	}

	if !hasData || s.Count == 0 {
		res.Passed = false
		res.Reason = "no data"
		return res
	}

	env := envFor(s)
	res.Observed = env.stat(t.observed)

	out, err := expr.Run(t.program, env)
	if err != nil {
		res.Passed = false
		res.Reason = fmt.Sprintf("evaluation error: %v", err)
		return res
	}
	res.Passed = out.(bool)
	return res
}

// EvaluateAll evaluates every threshold against the summary set. Overall
// pass is the logical AND of all results; an empty set passes by default.
func EvaluateAll(thresholds []*Threshold, summaries map[string]metrics.Summary) Report {
	report := Report{Pass: true, Results: make([]Result, 0, len(thresholds))}

	for _, t := range thresholds {
		s, ok := summaries[t.Metric]
		res := t.Evaluate(s, ok)
		if !res.Passed {
			report.Pass = false
		}
		report.Results = append(report.Results, res)
	}
	return report
}

// AbortBreached reports the first abort-on-fail threshold that is failing
// with data present. Missing data never triggers an abort: early in a run a
// metric may simply not have received samples yet.
func AbortBreached(thresholds []*Threshold, summaries map[string]metrics.Summary) (Result, bool) {
	for _, t := range thresholds {
		if !t.AbortOnFail {
			continue
		}
		s, ok := summaries[t.Metric]
		if !ok || s.Count == 0 {
			continue
		}
		if res := t.Evaluate(s, true); !res.Passed {
			return res, true
		}
	}
	return Result{}, false
}

func envFor(s metrics.Summary) Env {
	return Env{
		Count: float64(s.Count),
		Rate:  s.Rate,
		Avg:   s.Avg,
		Min:   s.Min,
		Max:   s.Max,
		Med:   s.Med,
		P90:   s.P90,
		P95:   s.P95,
		P99:   s.P99,
		Value: s.Value,
	}
}

func (e Env) stat(name string) float64 {
	switch name {
	case "count":
		return e.Count
	case "rate":
		return e.Rate
	case "avg":
		return e.Avg
	case "min":
		return e.Min
	case "max":
		return e.Max
	case "med":
		return e.Med
	case "p90":
		return e.P90
	case "p95":
		return e.P95
	case "p99":
		return e.P99
	case "value":
		return e.Value
	default:
		return 0
	}
}
