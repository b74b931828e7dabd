// Package telemetry records per-operation timings and cache hit rates
// for the pipeline, and exposes them three ways: an in-process
// windowed-stats API (TrackOperation/OperationStats, grounded on
// performance_monitor.py's PerformanceMonitor), a Prometheus registry
// for external scraping, and OpenTelemetry spans for distributed
// tracing.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/model"
)

const ringCapacity = 1000

var buckets = []model.Bucket{model.BucketData, model.BucketChart, model.BucketAnalysis}
var ops = []model.Op{model.OpDataFetch, model.OpChartGen, model.OpLLMAnalyze, model.OpReportGeneration}

// Sink is the single telemetry collector threaded through the
// orchestrator, cache, and stage runners. Build one with NewSink and
// share it; all methods are safe for concurrent use.
type Sink struct {
	log    *zap.Logger
	tracer trace.Tracer
	reg    *prometheus.Registry

	durationHist *prometheus.HistogramVec
	cacheHits    *prometheus.CounterVec

	mu      sync.Mutex
	rings   map[model.Op]*ringBuffer
	cache   map[model.Bucket]*model.CacheStats
	session model.SessionStats
}

// NewSink builds a Sink with its own private Prometheus registry (never
// the global default registerer, so tests can construct as many Sinks
// as they like without collector-already-registered panics) and an
// OTel tracer named after the pipeline.
func NewSink(log *zap.Logger) *Sink {
	reg := prometheus.NewRegistry()

	durationHist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_operation_duration_seconds",
		Help:    "Duration of pipeline operations by op and cache outcome.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"op", "cache_hit"})

	cacheHits := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_cache_outcomes_total",
		Help: "Cache hit/miss counts by bucket.",
	}, []string{"bucket", "outcome"})

	reg.MustRegister(durationHist, cacheHits)

	s := &Sink{
		log:          log,
		tracer:       otel.Tracer("project-alpha/pipeline"),
		reg:          reg,
		durationHist: durationHist,
		cacheHits:    cacheHits,
		rings:        make(map[model.Op]*ringBuffer, len(ops)),
		cache:        make(map[model.Bucket]*model.CacheStats, len(buckets)),
	}
	for _, op := range ops {
		s.rings[op] = newRingBuffer(ringCapacity)
	}
	for _, b := range buckets {
		s.cache[b] = &model.CacheStats{}
	}
	return s
}

// Registry exposes the private Prometheus registry so the process
// wiring can mount it behind /metrics via promhttp.HandlerFor.
func (s *Sink) Registry() *prometheus.Registry { return s.reg }

// TrackOperation records one timed operation. nowS is the unix-second
// timestamp to stamp the record with; callers pass time.Now().Unix()
// in production and a fixed clock in tests. Only the three ops with a
// cache bucket of their own (data_fetch, chart_gen, llm_analyze) update
// the cache-hit-rate counters; report_generation has no cache and is
// timed only.
func (s *Sink) TrackOperation(ctx context.Context, op model.Op, ticker string, duration time.Duration, cacheHit bool, nowS int64) {
	_, span := s.tracer.Start(ctx, "telemetry.track_operation",
		trace.WithAttributes(
			attribute.String("op", string(op)),
			attribute.Bool("cache_hit", cacheHit),
			attribute.String("ticker", ticker),
		))
	defer span.End()

	durationMS := float64(duration.Microseconds()) / 1000.0
	hitLabel := "miss"
	if cacheHit {
		hitLabel = "hit"
	}
	s.durationHist.WithLabelValues(string(op), hitLabel).Observe(duration.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()
	ring, ok := s.rings[op]
	if !ok {
		ring = newRingBuffer(ringCapacity)
		s.rings[op] = ring
	}
	ring.push(model.OperationRecord{
		Op: op, DurationMS: durationMS, CacheHit: cacheHit, Ticker: ticker, TimestampS: nowS,
	})

	bucket, hasBucket := op.Bucket()
	if !hasBucket {
		return
	}
	s.cacheHits.WithLabelValues(string(bucket), hitLabel).Inc()
	stats, ok := s.cache[bucket]
	if !ok {
		stats = &model.CacheStats{}
		s.cache[bucket] = stats
	}
	if cacheHit {
		stats.Hits++
	} else {
		stats.Misses++
	}
}

// TrackRequest folds one completed end-to-end request's duration into
// the session's running average and successful/failed split, mirroring
// performance_monitor.py's track_request weighted-mean update.
func (s *Sink) TrackRequest(success bool, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.Accumulate(success, float64(duration.Microseconds())/1000.0)
}

// OperationStats is the windowed summary performance_monitor.py's
// get_operation_stats returns: count, average/min/max duration, and
// cache hit rate, restricted to records within the trailing window.
type OperationStats struct {
	Count       int
	AvgMS       float64
	MinMS       float64
	MaxMS       float64
	CacheHitPct float64
}

// OperationStatsSince returns OperationStats for op restricted to
// records with TimestampS >= sinceS. Pass 0 to include the whole ring.
func (s *Sink) OperationStatsSince(op model.Op, sinceS int64) OperationStats {
	s.mu.Lock()
	ring, ok := s.rings[op]
	var records []model.OperationRecord
	if ok {
		records = ring.snapshot()
	}
	s.mu.Unlock()
	if !ok {
		return OperationStats{}
	}

	var out OperationStats
	var total, hits float64
	first := true
	for _, rec := range records {
		if rec.TimestampS < sinceS {
			continue
		}
		out.Count++
		total += rec.DurationMS
		if rec.CacheHit {
			hits++
		}
		if first || rec.DurationMS < out.MinMS {
			out.MinMS = rec.DurationMS
		}
		if first || rec.DurationMS > out.MaxMS {
			out.MaxMS = rec.DurationMS
		}
		first = false
	}
	if out.Count > 0 {
		out.AvgMS = total / float64(out.Count)
		out.CacheHitPct = hits / float64(out.Count) * 100
	}
	return out
}

// CacheHitRates returns the all-time hit rate per bucket, mirroring
// get_cache_hit_rates.
func (s *Sink) CacheHitRates() map[model.Bucket]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.Bucket]float64, len(s.cache))
	for b, stats := range s.cache {
		out[b] = stats.HitRate()
	}
	return out
}

// SessionSnapshot returns a copy of the running session stats.
func (s *Sink) SessionSnapshot() model.SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

// Reset clears all in-process stats (rings, cache counters, session
// average) without touching the Prometheus registry, matching
// performance_monitor.py's reset_stats — Prometheus counters are
// cumulative by design and are not meant to be reset mid-process.
func (s *Sink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		s.rings[op] = newRingBuffer(ringCapacity)
	}
	for _, b := range buckets {
		s.cache[b] = &model.CacheStats{}
	}
	s.session = model.SessionStats{}
	s.log.Info("telemetry stats reset")
}
