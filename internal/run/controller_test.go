package run

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/studiowebux/loadcli/internal/output"
)

func writeScenario(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write scenario: %v", err)
	}
	return path
}

func TestExecutePassingRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	path := writeScenario(t, fmt.Sprintf(`
name: passing
vus: 2
iterations: 20
request:
  method: GET
  url: %s/health
checks:
  - status: [200]
  - jsonPath: status
    equals: ok
thresholds:
  http_req_failed:
    - "rate < 0.01"
  checks:
    - "rate > 0.99"
`, srv.URL))

	c := New(Options{ScenarioPath: path, Outputs: []string{"json=" + summaryPath}})
	code := c.Execute(context.Background())
	if code != ExitOK {
		t.Fatalf("expected exit %d, got %d", ExitOK, code)
	}
	if c.State() != Done {
		t.Errorf("expected done state, got %s", c.State())
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("failed to read summary artifact: %v", err)
	}
	var summary output.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("summary artifact is not valid JSON: %v", err)
	}
	if summary.Status != "completed" {
		t.Errorf("expected status completed, got %q", summary.Status)
	}
	if !summary.Thresholds.Pass {
		t.Errorf("expected thresholds to pass: %+v", summary.Thresholds)
	}
	if summary.Metrics["http_reqs"].Count != 20 {
		t.Errorf("expected exactly 20 requests, got %d", summary.Metrics["http_reqs"].Count)
	}
	if summary.RunID != c.RunID() {
		t.Errorf("summary run id %q does not match controller %q", summary.RunID, c.RunID())
	}
}

func TestExecuteFailingThreshold(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	path := writeScenario(t, fmt.Sprintf(`
name: failing
vus: 1
iterations: 5
request:
  method: GET
  url: %s/
thresholds:
  http_req_failed:
    - "rate < 0.01"
`, srv.URL))

	code := New(Options{ScenarioPath: path, Outputs: []string{"json=-"}}).Execute(context.Background())
	if code != ExitThresholdsFailed {
		t.Errorf("expected exit %d, got %d", ExitThresholdsFailed, code)
	}
}

func TestExecuteNoDataThresholdFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	// No checks declared, so the checks metric never receives a sample
	path := writeScenario(t, fmt.Sprintf(`
name: nodata
vus: 1
iterations: 2
request:
  method: GET
  url: %s/
thresholds:
  checks:
    - "rate > 0.99"
`, srv.URL))

	code := New(Options{ScenarioPath: path, Outputs: []string{"json=-"}}).Execute(context.Background())
	if code != ExitThresholdsFailed {
		t.Errorf("expected exit %d for a no-data threshold, got %d", ExitThresholdsFailed, code)
	}
}

func TestExecuteConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing file", ""},
		{"invalid yaml", "name: t\nvus: [\n"},
		{"no request", "name: t\nvus: 1\nduration: 1s\n"},
		{"bad threshold", "name: t\nvus: 1\niterations: 1\nrequest:\n  method: GET\n  url: http://localhost\nthresholds:\n  http_reqs:\n    - \"count <\"\n"},
		{"unresolved var", "name: t\nvus: 1\niterations: 1\nrequest:\n  method: GET\n  url: http://{{nowhere}}/\n"},
	}
	for _, tt := range tests {
		var path string
		if tt.content == "" {
			path = filepath.Join(t.TempDir(), "absent.yaml")
		} else {
			path = writeScenario(t, tt.content)
		}
		code := New(Options{ScenarioPath: path}).Execute(context.Background())
		if code != ExitConfigError {
			t.Errorf("%s: expected exit %d, got %d", tt.name, ExitConfigError, code)
		}
	}
}

func TestExecuteCLIOverridesAndVars(t *testing.T) {
	var hits int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt64(&hits, 1)
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	path := writeScenario(t, `
name: overrides
vus: 5
duration: 1h
request:
  method: GET
  url: "{{base}}/"
  headers:
    X-Token: "{{token}}"
thresholds:
  http_req_failed:
    - "rate < 0.01"
`)

	code := New(Options{
		ScenarioPath: path,
		VUs:          1,
		Iterations:   3,
		Outputs:      []string{"json=-"},
		ExtraVars:    map[string]string{"base": srv.URL, "token": "secret"},
	}).Execute(context.Background())
	if code != ExitOK {
		t.Fatalf("expected exit %d, got %d", ExitOK, code)
	}
	if got := atomic.LoadInt64(&hits); got != 3 {
		t.Errorf("expected 3 authorized requests, got %d", got)
	}
}

func TestExecuteCancelledRunStillReports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
	}))
	defer srv.Close()

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	path := writeScenario(t, fmt.Sprintf(`
name: cancelled
vus: 2
duration: 1h
request:
  method: GET
  url: %s/
`, srv.URL))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	code := New(Options{ScenarioPath: path, Outputs: []string{"json=" + summaryPath}}).Execute(ctx)
	if code != ExitOK {
		t.Fatalf("expected exit %d for a cancelled run without thresholds, got %d", ExitOK, code)
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("cancelled run must still write its summary: %v", err)
	}
	var summary output.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		t.Fatalf("summary artifact is not valid JSON: %v", err)
	}
	if summary.Status != "cancelled" {
		t.Errorf("expected status cancelled, got %q", summary.Status)
	}
	if summary.Metrics["http_reqs"].Count == 0 {
		t.Error("expected some requests before cancellation")
	}
}

func TestExecuteAbortOnFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	summaryPath := filepath.Join(t.TempDir(), "summary.json")
	path := writeScenario(t, fmt.Sprintf(`
name: abort
vus: 2
duration: 1h
request:
  method: GET
  url: %s/
thresholds:
  http_req_failed:
    - expr: "rate < 0.5"
      abortOnFail: true
`, srv.URL))

	start := time.Now()
	code := New(Options{ScenarioPath: path, Outputs: []string{"json=" + summaryPath}}).Execute(context.Background())
	elapsed := time.Since(start)

	if code != ExitThresholdsFailed {
		t.Errorf("expected exit %d, got %d", ExitThresholdsFailed, code)
	}
	if elapsed > 30*time.Second {
		t.Errorf("abort did not stop the run promptly: %v", elapsed)
	}

	data, err := os.ReadFile(summaryPath)
	if err != nil {
		t.Fatalf("failed to read summary artifact: %v", err)
	}
	if !strings.Contains(string(data), `"status": "aborted"`) {
		t.Errorf("expected aborted status in summary:\n%s", data)
	}
}

func TestExecuteDrainsOnDeadline(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	path := writeScenario(t, fmt.Sprintf(`
name: deadline
vus: 2
duration: 300ms
request:
  method: GET
  url: %s/
`, srv.URL))

	c := New(Options{ScenarioPath: path, Outputs: []string{"json=-"}})

	var mu sync.Mutex
	seen := map[State]bool{}
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			mu.Lock()
			seen[c.State()] = true
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()

	code := c.Execute(context.Background())
	close(stop)
	if code != ExitOK {
		t.Fatalf("expected exit %d, got %d", ExitOK, code)
	}

	mu.Lock()
	defer mu.Unlock()
	if !seen[Running] {
		t.Error("expected the run to pass through running")
	}
	if !seen[Draining] {
		t.Error("expected the deadline to drive the run through draining")
	}
}

func TestStateString(t *testing.T) {
	states := map[State]string{
		Idle: "idle", Configuring: "configuring", Running: "running",
		Draining: "draining", Evaluating: "evaluating", Reporting: "reporting", Done: "done",
	}
	for s, want := range states {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
