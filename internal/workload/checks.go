package workload

import (
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/jmespath/go-jmespath"
	"github.com/studiowebux/loadcli/internal/metrics"
	"github.com/studiowebux/loadcli/internal/scenario"
	"github.com/studiowebux/loadcli/internal/types"
)

// Check is one compiled assertion evaluated against each response.
type Check struct {
	Name string

	status       []int
	bodyContains string
	bodyPattern  *regexp.Regexp
	jsonPath     *jmespath.JMESPath
	equals       string
	equalsRx     *regexp.Regexp
}

// CustomMetric extracts a named sample from each response body.
type CustomMetric struct {
	Name string
	Kind metrics.Kind
	path *jmespath.JMESPath
}

// CompileChecks compiles check declarations; regexes and JMESPath
// expressions are compiled once, before any virtual user starts.
func CompileChecks(cfgs []scenario.CheckConfig) ([]Check, error) {
	checks := make([]Check, 0, len(cfgs))
	for i, cfg := range cfgs {
		c := Check{
			Name:         cfg.Name,
			status:       cfg.Status,
			bodyContains: cfg.BodyContains,
			equals:       cfg.Equals,
		}

		if cfg.BodyPattern != "" {
			rx, err := regexp.Compile(cfg.BodyPattern)
			if err != nil {
				return nil, fmt.Errorf("check %d: invalid body pattern: %w", i, err)
			}
			c.bodyPattern = rx
		}
		if cfg.JSONPath != "" {
			jp, err := jmespath.Compile(cfg.JSONPath)
			if err != nil {
				return nil, fmt.Errorf("check %d: invalid jsonPath: %w", i, err)
			}
			c.jsonPath = jp

			// Expected value as /regex/ is matched, otherwise compared
			// literally.
			if strings.HasPrefix(cfg.Equals, "/") && strings.HasSuffix(cfg.Equals, "/") && len(cfg.Equals) > 1 {
				rx, err := regexp.Compile(cfg.Equals[1 : len(cfg.Equals)-1])
				if err != nil {
					return nil, fmt.Errorf("check %d: invalid equals pattern: %w", i, err)
				}
				c.equalsRx = rx
			}
		}

		if c.Name == "" {
			c.Name = deriveCheckName(cfg)
		}
		checks = append(checks, c)
	}
	return checks, nil
}

func deriveCheckName(cfg scenario.CheckConfig) string {
	switch {
	case len(cfg.Status) > 0:
		parts := make([]string, len(cfg.Status))
		for i, s := range cfg.Status {
			parts[i] = fmt.Sprintf("%d", s)
		}
		return "status is " + strings.Join(parts, "|")
	case cfg.BodyContains != "":
		return "body contains " + cfg.BodyContains
	case cfg.BodyPattern != "":
		return "body matches " + cfg.BodyPattern
	case cfg.JSONPath != "":
		return cfg.JSONPath + " equals " + cfg.Equals
	default:
		return "check"
	}
}

// Evaluate runs the assertion against a response. bodyJSON is the decoded
// body, or nil when the body is not JSON or no check needs it.
func (c *Check) Evaluate(result *types.RequestResult, bodyJSON any) bool {
	switch {
	case len(c.status) > 0:
		return slices.Contains(c.status, result.Status)
	case c.bodyContains != "":
		return strings.Contains(result.Body, c.bodyContains)
	case c.bodyPattern != nil:
		return c.bodyPattern.MatchString(result.Body)
	case c.jsonPath != nil:
		if bodyJSON == nil {
			return false
		}
		value, err := c.jsonPath.Search(bodyJSON)
		if err != nil || value == nil {
			return false
		}
		actual := stringify(value)
		if c.equalsRx != nil {
			return c.equalsRx.MatchString(actual)
		}
		return actual == c.equals
	default:
		return true
	}
}

// needsJSON reports whether this check requires the decoded body.
func (c *Check) needsJSON() bool { return c.jsonPath != nil }

// CompileMetrics compiles custom metric declarations.
func CompileMetrics(cfgs []scenario.CustomMetricConfig) ([]CustomMetric, error) {
	out := make([]CustomMetric, 0, len(cfgs))
	for _, cfg := range cfgs {
		jp, err := jmespath.Compile(cfg.JSONPath)
		if err != nil {
			return nil, fmt.Errorf("metric %q: invalid jsonPath: %w", cfg.Name, err)
		}
		kind := metrics.Trend
		switch cfg.Kind {
		case "counter":
			kind = metrics.Counter
		case "gauge":
			kind = metrics.Gauge
		case "rate":
			kind = metrics.Rate
		}
		out = append(out, CustomMetric{Name: cfg.Name, Kind: kind, path: jp})
	}
	return out, nil
}

// Extract pulls the metric value out of a decoded response body. Booleans
// map to 1/0; numeric strings are parsed.
func (m *CustomMetric) Extract(bodyJSON any) (float64, bool) {
	if bodyJSON == nil {
		return 0, false
	}
	value, err := m.path.Search(bodyJSON)
	if err != nil {
		return 0, false
	}
	switch v := value.(type) {
	case float64:
		return v, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}
