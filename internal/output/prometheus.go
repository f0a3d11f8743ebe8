package output

import (
	"net"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/studiowebux/loadcli/internal/logging"
	"github.com/studiowebux/loadcli/internal/metrics"
	"go.uber.org/zap"
)

// Prometheus exposes the live sample stream on an HTTP /metrics endpoint
// for scraping during the run.
type Prometheus struct {
	registry *prometheus.Registry
	counters *prometheus.CounterVec
	gauges   *prometheus.GaugeVec
	rates    *prometheus.CounterVec
	trends   *prometheus.HistogramVec
	server   *http.Server
	listener net.Listener
}

// NewPrometheus starts the exporter listening on addr.
func NewPrometheus(addr string) (*Prometheus, error) {
	reg := prometheus.NewRegistry()

	p := &Prometheus{
		registry: reg,
		counters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcli_counter_total",
			Help: "Cumulative counter metric totals.",
		}, []string{"metric"}),
		gauges: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "loadcli_gauge",
			Help: "Last observed gauge metric values.",
		}, []string{"metric"}),
		rates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "loadcli_rate_total",
			Help: "Rate metric outcomes partitioned by result.",
		}, []string{"metric", "result"}),
		trends: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "loadcli_trend",
			Help:    "Trend metric value distributions.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}, []string{"metric"}),
	}
	reg.MustRegister(p.counters, p.gauges, p.rates, p.trends)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	p.listener = ln
	p.server = &http.Server{Handler: mux}

	go func() {
		if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Warn("prometheus exporter stopped", zap.Error(err))
		}
	}()

	logging.Info("prometheus exporter listening", zap.String("addr", ln.Addr().String()))
	return p, nil
}

func (p *Prometheus) Name() string { return "prometheus" }

// Addr returns the exporter's bound address.
func (p *Prometheus) Addr() string { return p.listener.Addr().String() }

// Submit records a sample into the exported collectors.
func (p *Prometheus) Submit(smp metrics.Sample) {
	switch smp.Kind {
	case metrics.Counter:
		p.counters.WithLabelValues(smp.Metric).Add(smp.Value)
	case metrics.Gauge:
		p.gauges.WithLabelValues(smp.Metric).Set(smp.Value)
	case metrics.Rate:
		result := "fail"
		if smp.Value != 0 {
			result = "pass"
		}
		p.rates.WithLabelValues(smp.Metric, result).Inc()
	case metrics.Trend:
		p.trends.WithLabelValues(smp.Metric).Observe(smp.Value)
	}
}

// Close shuts the exporter down.
func (p *Prometheus) Close() error {
	return p.server.Close()
}
