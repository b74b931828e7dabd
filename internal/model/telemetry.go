package model

// Bucket names the three cache-bearing operation classes the tiered
// cache keys its hit-rate stats on.
type Bucket string

const (
	BucketData     Bucket = "data"
	BucketChart    Bucket = "chart"
	BucketAnalysis Bucket = "analysis"
)

// Op names the four operations telemetry times. The first three each
// correspond to a cache Bucket; report_generation wraps the whole
// pipeline run and has no cache of its own.
type Op string

const (
	OpDataFetch         Op = "data_fetch"
	OpChartGen          Op = "chart_gen"
	OpLLMAnalyze        Op = "llm_analyze"
	OpReportGeneration  Op = "report_generation"
)

// Bucket returns the cache bucket op maps to, and false for an op (only
// OpReportGeneration today) that has no cache of its own.
func (o Op) Bucket() (Bucket, bool) {
	switch o {
	case OpDataFetch:
		return BucketData, true
	case OpChartGen:
		return BucketChart, true
	case OpLLMAnalyze:
		return BucketAnalysis, true
	default:
		return "", false
	}
}

// OperationRecord is one entry in a telemetry ring buffer: a single
// timed, possibly cache-hit operation.
type OperationRecord struct {
	Op         Op
	DurationMS float64
	CacheHit   bool
	Ticker     string
	TimestampS int64 // unix seconds, set by the caller
}

// CacheStats accumulates hit/miss counts for one bucket.
type CacheStats struct {
	Hits   int64
	Misses int64
}

// HitRate returns hits/(hits+misses), or 0 when there have been no
// observations yet.
func (c CacheStats) HitRate() float64 {
	total := c.Hits + c.Misses
	if total == 0 {
		return 0
	}
	return float64(c.Hits) / float64(total)
}

// SessionStats is the running, weighted-average view of the whole
// session: a successful/failed request split and a running mean of
// end-to-end duration across both.
type SessionStats struct {
	Successful      int64
	Failed          int64
	AvgDurationMS   float64
	TotalDurationMS float64
}

// TotalRequests is the derived successful+failed count. Kept as a
// method rather than a stored field so it can never drift out of sync
// with the two counters it's computed from.
func (s SessionStats) TotalRequests() int64 {
	return s.Successful + s.Failed
}

// Accumulate folds one more completed request's duration into the
// running mean and the successful/failed split, using the same
// incremental-average formula as performance_monitor.py's track_request:
// avg' = (avg*(n-1) + total) / n.
func (s *SessionStats) Accumulate(success bool, durationMS float64) {
	if success {
		s.Successful++
	} else {
		s.Failed++
	}
	n := s.TotalRequests()
	s.TotalDurationMS += durationMS
	s.AvgDurationMS = (s.AvgDurationMS*float64(n-1) + durationMS) / float64(n)
}
