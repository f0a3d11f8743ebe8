package metrics

import "time"

// Kind identifies how samples for a metric are aggregated.
type Kind int

const (
	// Counter accumulates totals and derives a per-second rate.
	Counter Kind = iota
	// Gauge keeps the most recent value plus min/max.
	Gauge
	// Rate tracks the ratio of non-zero (passing) samples.
	Rate
	// Trend retains a distribution of values for percentile computation.
	Trend
)

func (k Kind) String() string {
	switch k {
	case Counter:
		return "counter"
	case Gauge:
		return "gauge"
	case Rate:
		return "rate"
	case Trend:
		return "trend"
	default:
		return "unknown"
	}
}

// Built-in metric names emitted by the scheduler and the HTTP workload.
const (
	MetricIterations        = "iterations"
	MetricIterationDuration = "iteration_duration"
	MetricHTTPReqs          = "http_reqs"
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqFailed     = "http_req_failed"
	MetricChecks            = "checks"
	MetricDataSent          = "data_sent"
	MetricDataReceived      = "data_received"
	MetricErrors            = "errors"
	MetricVUs               = "vus"
)

// Sample is a single timestamped measurement. Samples are immutable;
// ownership transfers to the sink on Submit.
type Sample struct {
	Metric string
	Kind   Kind
	Value  float64
	Time   time.Time
	Tags   map[string]string
}

// Sink accepts samples. The Registry is the primary sink; outputs that
// consume the raw sample stream (SQLite, Prometheus) implement it too.
type Sink interface {
	Submit(s Sample)
}

// Tee fans samples out to multiple sinks.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

type teeSink []Sink

func (t teeSink) Submit(s Sample) {
	for _, sink := range t {
		sink.Submit(s)
	}
}
