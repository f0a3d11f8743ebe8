// Package scenario loads and validates the declarative workload
// specification driving a run: virtual users, duration, pacing, the request
// to execute, checks, custom metrics, thresholds, and output artifacts.
// Scenario files are YAML; JSON with comments is accepted too.
package scenario

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/studiowebux/loadcli/internal/types"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Scenario is the parsed workload specification. Immutable once the run
// starts.
type Scenario struct {
	Name           string            `yaml:"name"`
	VUs            int               `yaml:"vus"`
	Duration       Duration          `yaml:"duration"`
	Iterations     int64             `yaml:"iterations"`
	Pacing         Duration          `yaml:"pacing"`
	RequestTimeout Duration          `yaml:"requestTimeout"`
	Stages         []StageConfig     `yaml:"stages"`
	Vars           map[string]string `yaml:"vars"`

	Request     *RequestConfig   `yaml:"request"`
	RequestFile string           `yaml:"requestFile"`
	RequestName string           `yaml:"requestName"`
	TLS         *types.TLSConfig `yaml:"tls"`
	Auth        *AuthConfig      `yaml:"auth"`

	Checks     []CheckConfig              `yaml:"checks"`
	Metrics    []CustomMetricConfig       `yaml:"metrics"`
	Thresholds map[string][]ThresholdSpec `yaml:"thresholds"`
	Outputs    []string                   `yaml:"outputs"`
}

// StageConfig is one step of a target-concurrency ramp.
type StageConfig struct {
	Duration Duration `yaml:"duration"`
	Target   int      `yaml:"target"`
}

// RequestConfig is an inline request declaration.
type RequestConfig struct {
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`
	Body    string            `yaml:"body"`
}

// AuthConfig configures OAuth2 client-credentials authentication for the
// workload's HTTP client.
type AuthConfig struct {
	TokenURL     string   `yaml:"tokenUrl"`
	ClientID     string   `yaml:"clientId"`
	ClientSecret string   `yaml:"clientSecret"`
	Scopes       []string `yaml:"scopes"`
}

// CheckConfig declares one assertion evaluated against each response.
type CheckConfig struct {
	Name         string `yaml:"name"`
	Status       []int  `yaml:"status"`
	BodyContains string `yaml:"bodyContains"`
	BodyPattern  string `yaml:"bodyPattern"`
	JSONPath     string `yaml:"jsonPath"`
	Equals       string `yaml:"equals"` // literal, or /regex/ when JSONPath is set
}

// CustomMetricConfig declares a metric extracted from each response body.
type CustomMetricConfig struct {
	Name     string `yaml:"name"`
	Kind     string `yaml:"kind"` // counter, gauge, rate, trend (default)
	JSONPath string `yaml:"jsonPath"`
}

// ThresholdSpec is one threshold declaration. YAML accepts the short scalar
// form ("p95 < 500") or the long form with abortOnFail.
type ThresholdSpec struct {
	Expr        string `yaml:"expr"`
	AbortOnFail bool   `yaml:"abortOnFail"`
}

// UnmarshalYAML supports both the scalar and the mapping form.
func (t *ThresholdSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		t.Expr = node.Value
		return nil
	}
	type raw ThresholdSpec
	return node.Decode((*raw)(t))
}

// Duration wraps time.Duration with Go duration-string parsing from YAML
// ("30s", "1m30s"). A bare number is taken as seconds.
type Duration time.Duration

// UnmarshalYAML parses a duration scalar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %v", node.Kind)
	}
	if !strings.ContainsAny(node.Value, "smhµu") {
		var secs float64
		if err := node.Decode(&secs); err == nil {
			*d = Duration(time.Duration(secs * float64(time.Second)))
			return nil
		}
	}
	parsed, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", node.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// D returns the wrapped time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Load reads and parses a scenario file. JSON/JSONC files are converted to
// plain JSON first; yaml.v3 handles both syntaxes from there.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	s := &Scenario{}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}

	if s.Name == "" {
		base := filepath.Base(path)
		s.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	// Request file paths are relative to the scenario file
	if s.RequestFile != "" && !filepath.IsAbs(s.RequestFile) {
		s.RequestFile = filepath.Join(filepath.Dir(path), s.RequestFile)
	}

	return s, nil
}

// MaxVUs returns the peak concurrency the scenario can reach.
func (s *Scenario) MaxVUs() int {
	maxVUs := s.VUs
	for _, st := range s.Stages {
		if st.Target > maxVUs {
			maxVUs = st.Target
		}
	}
	return maxVUs
}

// GetRequestTimeout returns the per-request timeout, defaulting to 10s.
func (s *Scenario) GetRequestTimeout() time.Duration {
	if s.RequestTimeout == 0 {
		return 10 * time.Second
	}
	return s.RequestTimeout.D()
}

// Validate checks the scenario configuration before any virtual user starts.
func (s *Scenario) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("scenario name is required")
	}
	if len(s.Stages) == 0 {
		if s.VUs <= 0 {
			return fmt.Errorf("virtual user count must be greater than 0")
		}
		if s.Duration <= 0 && s.Iterations <= 0 {
			return fmt.Errorf("a duration, an iteration count, or stages are required")
		}
	}
	if s.MaxVUs() > 1000 {
		return fmt.Errorf("virtual user count cannot exceed 1000")
	}
	if s.Iterations < 0 {
		return fmt.Errorf("iteration count cannot be negative")
	}
	if s.Iterations > 1000000 {
		return fmt.Errorf("iteration count cannot exceed 1,000,000")
	}
	if s.Duration < 0 {
		return fmt.Errorf("duration cannot be negative")
	}
	if s.Pacing < 0 {
		return fmt.Errorf("pacing delay cannot be negative")
	}
	if s.RequestTimeout < 0 {
		return fmt.Errorf("request timeout cannot be negative")
	}

	for i, st := range s.Stages {
		if st.Duration <= 0 {
			return fmt.Errorf("stage %d: duration must be greater than 0", i)
		}
		if st.Target < 0 {
			return fmt.Errorf("stage %d: target cannot be negative", i)
		}
	}

	if s.Request == nil && s.RequestFile == "" {
		return fmt.Errorf("a request (inline or requestFile) is required")
	}
	if s.Request != nil && s.RequestFile != "" {
		return fmt.Errorf("request and requestFile are mutually exclusive")
	}
	if s.Request != nil {
		if s.Request.Method == "" {
			return fmt.Errorf("request method is required")
		}
		if s.Request.URL == "" {
			return fmt.Errorf("request url is required")
		}
	}

	if s.Auth != nil {
		if s.Auth.TokenURL == "" || s.Auth.ClientID == "" {
			return fmt.Errorf("auth requires tokenUrl and clientId")
		}
	}

	for i, c := range s.Checks {
		assertions := 0
		if len(c.Status) > 0 {
			assertions++
		}
		if c.BodyContains != "" {
			assertions++
		}
		if c.BodyPattern != "" {
			assertions++
		}
		if c.JSONPath != "" {
			assertions++
		}
		if assertions == 0 {
			return fmt.Errorf("check %d: no assertion declared", i)
		}
		if assertions > 1 {
			return fmt.Errorf("check %d: declare exactly one assertion per check", i)
		}
		if c.JSONPath != "" && c.Equals == "" {
			return fmt.Errorf("check %d: jsonPath requires equals", i)
		}
	}

	for i, m := range s.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric %d: name is required", i)
		}
		if m.JSONPath == "" {
			return fmt.Errorf("metric %q: jsonPath is required", m.Name)
		}
		switch m.Kind {
		case "", "counter", "gauge", "rate", "trend":
		default:
			return fmt.Errorf("metric %q: unknown kind %q", m.Name, m.Kind)
		}
	}

	for metric, specs := range s.Thresholds {
		if len(specs) == 0 {
			return fmt.Errorf("thresholds on %s: empty expression list", metric)
		}
		for _, spec := range specs {
			if strings.TrimSpace(spec.Expr) == "" {
				return fmt.Errorf("thresholds on %s: empty expression", metric)
			}
		}
	}

	for _, out := range s.Outputs {
		name, _, _ := strings.Cut(out, "=")
		switch name {
		case "text", "json", "sqlite", "prometheus":
		default:
			return fmt.Errorf("unknown output %q", name)
		}
	}

	return nil
}
