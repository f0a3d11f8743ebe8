package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeScenario(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write scenario: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeScenario(t, "smoke.yaml", `
name: smoke
vus: 10
duration: 30s
pacing: 100ms
request:
  method: get
  url: https://example.com/health
checks:
  - status: [200]
thresholds:
  http_req_duration:
    - "p95 < 500"
    - expr: "p99 < 1000"
      abortOnFail: true
outputs:
  - text
  - json=summary.json
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if s.Name != "smoke" {
		t.Errorf("expected name smoke, got %q", s.Name)
	}
	if s.VUs != 10 {
		t.Errorf("expected 10 vus, got %d", s.VUs)
	}
	if s.Duration.D() != 30*time.Second {
		t.Errorf("expected 30s duration, got %v", s.Duration.D())
	}
	if s.Pacing.D() != 100*time.Millisecond {
		t.Errorf("expected 100ms pacing, got %v", s.Pacing.D())
	}

	specs := s.Thresholds["http_req_duration"]
	if len(specs) != 2 {
		t.Fatalf("expected 2 threshold specs, got %d", len(specs))
	}
	if specs[0].Expr != "p95 < 500" || specs[0].AbortOnFail {
		t.Errorf("unexpected short-form spec %+v", specs[0])
	}
	if specs[1].Expr != "p99 < 1000" || !specs[1].AbortOnFail {
		t.Errorf("unexpected long-form spec %+v", specs[1])
	}

	if err := s.Validate(); err != nil {
		t.Errorf("expected valid scenario: %v", err)
	}
}

func TestLoadJSONC(t *testing.T) {
	path := writeScenario(t, "api.jsonc", `{
	// comment stripped before parsing
	"name": "api",
	"vus": 5,
	"iterations": 100,
	"request": {"method": "POST", "url": "https://example.com/items"},
}`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Name != "api" || s.VUs != 5 || s.Iterations != 100 {
		t.Errorf("unexpected scenario %+v", s)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("expected valid scenario: %v", err)
	}
}

func TestLoadDefaultsNameFromFile(t *testing.T) {
	path := writeScenario(t, "checkout-flow.yaml", `
vus: 1
duration: 1s
request:
  method: GET
  url: https://example.com
`)

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if s.Name != "checkout-flow" {
		t.Errorf("expected name from file base, got %q", s.Name)
	}
}

func TestLoadRequestFileRelativeToScenario(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run.yaml")
	content := "name: run\nvus: 1\nduration: 1s\nrequestFile: requests.http\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write scenario: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	want := filepath.Join(dir, "requests.http")
	if s.RequestFile != want {
		t.Errorf("expected request file %q, got %q", want, s.RequestFile)
	}
}

func TestDurationForms(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"30s", 30 * time.Second},
		{"1m30s", 90 * time.Second},
		{"500ms", 500 * time.Millisecond},
		{"45", 45 * time.Second},
		{"0.5", 500 * time.Millisecond},
	}
	for _, tt := range tests {
		path := writeScenario(t, "d.yaml", "name: d\nvus: 1\nduration: "+tt.value+"\nrequest:\n  method: GET\n  url: https://example.com\n")
		s, err := Load(path)
		if err != nil {
			t.Errorf("duration %q: load failed: %v", tt.value, err)
			continue
		}
		if s.Duration.D() != tt.want {
			t.Errorf("duration %q: got %v, want %v", tt.value, s.Duration.D(), tt.want)
		}
	}

	path := writeScenario(t, "bad.yaml", "name: bad\nvus: 1\nduration: sideways\nrequest:\n  method: GET\n  url: https://example.com\n")
	if _, err := Load(path); err == nil {
		t.Error("expected error for unparseable duration")
	}
}

func TestValidateErrors(t *testing.T) {
	base := func() *Scenario {
		return &Scenario{
			Name:     "t",
			VUs:      1,
			Duration: Duration(time.Second),
			Request:  &RequestConfig{Method: "GET", URL: "https://example.com"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Scenario)
		wantErr string
	}{
		{"no vus", func(s *Scenario) { s.VUs = 0 }, "virtual user count"},
		{"unbounded", func(s *Scenario) { s.Duration = 0 }, "duration"},
		{"too many vus", func(s *Scenario) { s.VUs = 1001 }, "1000"},
		{"too many iterations", func(s *Scenario) { s.Iterations = 1000001 }, "1,000,000"},
		{"negative pacing", func(s *Scenario) { s.Pacing = -1 }, "pacing"},
		{"no request", func(s *Scenario) { s.Request = nil }, "request"},
		{"both requests", func(s *Scenario) { s.RequestFile = "a.http" }, "mutually exclusive"},
		{"missing method", func(s *Scenario) { s.Request.Method = "" }, "method"},
		{"missing url", func(s *Scenario) { s.Request.URL = "" }, "url"},
		{"empty check", func(s *Scenario) { s.Checks = []CheckConfig{{}} }, "no assertion"},
		{"double check", func(s *Scenario) {
			s.Checks = []CheckConfig{{Status: []int{200}, BodyContains: "ok"}}
		}, "exactly one"},
		{"jsonpath without equals", func(s *Scenario) {
			s.Checks = []CheckConfig{{JSONPath: "status"}}
		}, "equals"},
		{"metric without name", func(s *Scenario) {
			s.Metrics = []CustomMetricConfig{{JSONPath: "latency"}}
		}, "name"},
		{"metric bad kind", func(s *Scenario) {
			s.Metrics = []CustomMetricConfig{{Name: "m", JSONPath: "v", Kind: "histogram"}}
		}, "kind"},
		{"empty threshold", func(s *Scenario) {
			s.Thresholds = map[string][]ThresholdSpec{"http_reqs": {{Expr: "  "}}}
		}, "empty expression"},
		{"unknown output", func(s *Scenario) { s.Outputs = []string{"csv=out.csv"} }, "unknown output"},
		{"auth without token url", func(s *Scenario) {
			s.Auth = &AuthConfig{ClientID: "id"}
		}, "auth"},
		{"bad stage", func(s *Scenario) {
			s.Stages = []StageConfig{{Duration: Duration(time.Second), Target: -1}}
		}, "target"},
	}

	for _, tt := range tests {
		s := base()
		tt.mutate(s)
		err := s.Validate()
		if err == nil {
			t.Errorf("%s: expected validation error", tt.name)
			continue
		}
		if !strings.Contains(err.Error(), tt.wantErr) {
			t.Errorf("%s: error %q does not mention %q", tt.name, err, tt.wantErr)
		}
	}
}

func TestValidateStagesOnly(t *testing.T) {
	s := &Scenario{
		Name:    "ramp",
		Request: &RequestConfig{Method: "GET", URL: "https://example.com"},
		Stages: []StageConfig{
			{Duration: Duration(10 * time.Second), Target: 10},
			{Duration: Duration(20 * time.Second), Target: 50},
		},
	}
	if err := s.Validate(); err != nil {
		t.Errorf("stage-driven scenario should be valid: %v", err)
	}
	if s.MaxVUs() != 50 {
		t.Errorf("expected peak 50 vus, got %d", s.MaxVUs())
	}
}

func TestGetRequestTimeoutDefault(t *testing.T) {
	s := &Scenario{}
	if s.GetRequestTimeout() != 10*time.Second {
		t.Errorf("expected 10s default, got %v", s.GetRequestTimeout())
	}
	s.RequestTimeout = Duration(2 * time.Second)
	if s.GetRequestTimeout() != 2*time.Second {
		t.Errorf("expected 2s, got %v", s.GetRequestTimeout())
	}
}
