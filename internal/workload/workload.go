// Package workload implements the per-iteration work a virtual user
// performs: one HTTP request against the target, followed by checks and
// custom metric extraction, all emitting samples into the metric stream.
package workload

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/studiowebux/loadcli/internal/metrics"
	"github.com/studiowebux/loadcli/internal/scheduler"
	"github.com/studiowebux/loadcli/internal/types"
)

// HTTP executes one request per iteration using a shared pooled client.
// Safe for concurrent use by all virtual users: the request definition is
// immutable and the client is the only shared resource.
type HTTP struct {
	request *types.HttpRequest
	client  *http.Client
	checks  []Check
	custom  []CustomMetric
}

// NewHTTP creates an HTTP workload from a resolved request definition.
func NewHTTP(request *types.HttpRequest, client *http.Client, checks []Check, custom []CustomMetric) (*HTTP, error) {
	if request == nil {
		return nil, fmt.Errorf("request definition is required")
	}
	if client == nil {
		return nil, fmt.Errorf("http client is required")
	}
	return &HTTP{request: request, client: client, checks: checks, custom: custom}, nil
}

// Iteration performs the request, emits the built-in HTTP samples, runs the
// checks, and extracts custom metrics. A network failure (connection error,
// timeout) is returned as the iteration's error after the failure samples
// are recorded; check failures are recorded but are not errors.
func (h *HTTP) Iteration(ctx context.Context, vu *scheduler.VU) error {
	result, err := h.executeRequest(ctx)
	now := time.Now()

	vu.Emit(metrics.Sample{Metric: metrics.MetricHTTPReqs, Kind: metrics.Counter, Value: 1, Time: now})
	if result != nil && result.RequestSize > 0 {
		vu.Emit(metrics.Sample{Metric: metrics.MetricDataSent, Kind: metrics.Counter, Value: float64(result.RequestSize), Time: now})
	}

	if err != nil {
		vu.Emit(metrics.Sample{Metric: metrics.MetricHTTPReqFailed, Kind: metrics.Rate, Value: 1, Time: now})
		return err
	}

	failed := 0.0
	if result.Status == 0 || result.Status >= 400 {
		failed = 1.0
	}
	vu.Emit(metrics.Sample{Metric: metrics.MetricHTTPReqFailed, Kind: metrics.Rate, Value: failed, Time: now})
	vu.Emit(metrics.Sample{Metric: metrics.MetricHTTPReqDuration, Kind: metrics.Trend, Value: float64(result.Duration), Time: now})
	if result.ResponseSize > 0 {
		vu.Emit(metrics.Sample{Metric: metrics.MetricDataReceived, Kind: metrics.Counter, Value: float64(result.ResponseSize), Time: now})
	}

	bodyJSON := h.decodeBody(result.Body)

	for i := range h.checks {
		c := &h.checks[i]
		pass := 0.0
		if c.Evaluate(result, bodyJSON) {
			pass = 1.0
		}
		vu.Emit(metrics.Sample{
			Metric: metrics.MetricChecks,
			Kind:   metrics.Rate,
			Value:  pass,
			Time:   now,
			Tags:   map[string]string{"check": c.Name},
		})
	}

	for i := range h.custom {
		m := &h.custom[i]
		if value, ok := m.Extract(bodyJSON); ok {
			vu.Emit(metrics.Sample{Metric: m.Name, Kind: m.Kind, Value: value, Time: now})
		}
	}

	return nil
}

// decodeBody parses the response body as JSON when any check or custom
// metric needs it. Decoded once per iteration.
func (h *HTTP) decodeBody(body string) any {
	needed := len(h.custom) > 0
	if !needed {
		for i := range h.checks {
			if h.checks[i].needsJSON() {
				needed = true
				break
			}
		}
	}
	if !needed || body == "" {
		return nil
	}

	var bodyJSON any
	if err := json.Unmarshal([]byte(body), &bodyJSON); err != nil {
		return nil
	}
	return bodyJSON
}

// executeRequest executes a single HTTP request using the shared client.
func (h *HTTP) executeRequest(ctx context.Context) (*types.RequestResult, error) {
	startTime := time.Now()

	var bodyReader io.Reader
	requestSize := 0
	if h.request.Body != "" {
		bodyReader = bytes.NewBufferString(h.request.Body)
		requestSize = len(h.request.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, h.request.Method, h.request.URL, bodyReader)
	if err != nil {
		return &types.RequestResult{RequestSize: requestSize}, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range h.request.Headers {
		httpReq.Header.Set(key, value)
	}

	resp, err := h.client.Do(httpReq)
	duration := time.Since(startTime).Milliseconds()

	if err != nil {
		// Connection failure, timeout, or other network error. Status 0
		// marks the request as never answered.
		return &types.RequestResult{
			Error:       err.Error(),
			Duration:    duration,
			RequestSize: requestSize,
			Status:      0,
		}, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &types.RequestResult{
			Status:      resp.StatusCode,
			StatusText:  resp.Status,
			Duration:    duration,
			RequestSize: requestSize,
		}, fmt.Errorf("failed to read response body: %w", err)
	}

	headers := make(map[string]string)
	for key, values := range resp.Header {
		headers[key] = strings.Join(values, ", ")
	}

	return &types.RequestResult{
		Status:       resp.StatusCode,
		StatusText:   resp.Status,
		Headers:      headers,
		Body:         string(bodyBytes),
		Duration:     duration,
		RequestSize:  requestSize,
		ResponseSize: len(bodyBytes),
	}, nil
}
