package metrics

import (
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"github.com/studiowebux/loadcli/internal/logging"
	"go.uber.org/zap"
)

// numShards spreads series across independently locked maps so concurrent
// virtual users submitting to different metrics never contend on one lock.
const numShards = 16

// Registry is the aggregator: it consumes the sample stream and maintains
// online per-metric summaries. Safe for concurrent multi-writer use.
type Registry struct {
	shards   [numShards]*shard
	start    time.Time
	trendCap int
}

type shard struct {
	mu     sync.RWMutex
	series map[string]*series
}

type series struct {
	mu     sync.Mutex
	name   string
	kind   Kind
	count  int64
	sum    float64
	min    float64
	max    float64
	passes int64
	last   float64
	trend  *reservoir
	warned bool
}

// NewRegistry creates a registry. trendCap bounds per-trend retention;
// zero selects DefaultReservoirSize.
func NewRegistry(trendCap int) *Registry {
	r := &Registry{start: time.Now(), trendCap: trendCap}
	for i := range r.shards {
		r.shards[i] = &shard{series: make(map[string]*series)}
	}
	return r
}

func (r *Registry) shardFor(name string) *shard {
	h := fnv.New32a()
	h.Write([]byte(name))
	return r.shards[h.Sum32()%numShards]
}

// Submit records a sample. The metric is registered implicitly with the
// sample's kind on first submission; later samples with a conflicting kind
// are dropped with a single logged warning per metric.
func (r *Registry) Submit(smp Sample) {
	sh := r.shardFor(smp.Metric)

	sh.mu.RLock()
	sr := sh.series[smp.Metric]
	sh.mu.RUnlock()

	if sr == nil {
		sh.mu.Lock()
		sr = sh.series[smp.Metric]
		if sr == nil {
			sr = &series{
				name: smp.Metric,
				kind: smp.Kind,
			}
			if smp.Kind == Trend {
				sr.trend = newReservoir(r.trendCap, rand.New(rand.NewSource(time.Now().UnixNano())))
			}
			sh.series[smp.Metric] = sr
		}
		sh.mu.Unlock()
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	if smp.Kind != sr.kind {
		if !sr.warned {
			sr.warned = true
			logging.Warn("metric kind conflict, dropping samples",
				zap.String("metric", smp.Metric),
				zap.String("registered", sr.kind.String()),
				zap.String("submitted", smp.Kind.String()))
		}
		return
	}

	// count == 0 marks the first sample; any value, negative included, is a
	// valid observation.
	if sr.count == 0 || smp.Value < sr.min {
		sr.min = smp.Value
	}
	if sr.count == 0 || smp.Value > sr.max {
		sr.max = smp.Value
	}
	sr.count++
	sr.sum += smp.Value
	sr.last = smp.Value

	switch sr.kind {
	case Rate:
		if smp.Value != 0 {
			sr.passes++
		}
	case Trend:
		sr.trend.add(smp.Value)
	}
}

// Snapshot returns summaries for every registered metric, reflecting all
// submissions completed before the call. Snapshots taken while samples are
// still arriving are best-effort; the final snapshot after the scheduler
// joins is exact.
func (r *Registry) Snapshot(now time.Time) map[string]Summary {
	out := make(map[string]Summary)
	elapsed := now.Sub(r.start)

	for _, sh := range r.shards {
		sh.mu.RLock()
		names := make([]*series, 0, len(sh.series))
		for _, sr := range sh.series {
			names = append(names, sr)
		}
		sh.mu.RUnlock()

		for _, sr := range names {
			sum := sr.summarize(elapsed)
			out[sum.Metric] = sum
		}
	}
	return out
}

// Get returns the summary for a single metric.
func (r *Registry) Get(name string, now time.Time) (Summary, bool) {
	sh := r.shardFor(name)
	sh.mu.RLock()
	sr := sh.series[name]
	sh.mu.RUnlock()
	if sr == nil {
		return Summary{}, false
	}
	return sr.summarize(now.Sub(r.start)), true
}

func (sr *series) summarize(elapsed time.Duration) Summary {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	s := Summary{
		Metric: sr.name,
		Kind:   sr.kind,
		Count:  sr.count,
		Sum:    sr.sum,
		Min:    sr.min,
		Max:    sr.max,
		Value:  sr.last,
	}
	if sr.count > 0 {
		s.Avg = sr.sum / float64(sr.count)
	}

	switch sr.kind {
	case Counter:
		if elapsed > 0 {
			s.Rate = sr.sum / elapsed.Seconds()
		}
	case Rate:
		s.Passes = sr.passes
		s.Fails = sr.count - sr.passes
		if sr.count > 0 {
			s.Rate = float64(sr.passes) / float64(sr.count)
		}
	case Trend:
		ps := sr.trend.percentiles(50, 90, 95, 99)
		s.Med, s.P90, s.P95, s.P99 = ps[0], ps[1], ps[2], ps[3]
	}
	return s
}
