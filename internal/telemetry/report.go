package telemetry

import (
	"fmt"
	"strings"
)

// Report renders a human-readable multi-line performance summary,
// grounded on performance_monitor.py's generate_report: per-bucket
// stats plus a short advisory section keyed off the same thresholds
// the source uses (hit rate below 50% suggests raising TTLs, above 80%
// is already good; average duration above 20s flags a bottleneck,
// below 5s is considered fast).
func (s *Sink) Report() string {
	var b strings.Builder
	b.WriteString("Performance report\n")
	b.WriteString("===================\n\n")

	session := s.SessionSnapshot()
	fmt.Fprintf(&b, "Requests served: %d (successful=%d failed=%d)\n",
		session.TotalRequests(), session.Successful, session.Failed)
	fmt.Fprintf(&b, "Average request duration: %.1f ms\n\n", session.AvgDurationMS)

	hitRates := s.CacheHitRates()
	for _, op := range ops {
		stats := s.OperationStatsSince(op, 0)
		if bucket, ok := op.Bucket(); ok {
			rate := hitRates[bucket] * 100
			fmt.Fprintf(&b, "[%s] count=%d avg=%.1fms min=%.1fms max=%.1fms cache_hit_rate=%.1f%%\n",
				op, stats.Count, stats.AvgMS, stats.MinMS, stats.MaxMS, rate)
			continue
		}
		fmt.Fprintf(&b, "[%s] count=%d avg=%.1fms min=%.1fms max=%.1fms\n",
			op, stats.Count, stats.AvgMS, stats.MinMS, stats.MaxMS)
	}

	b.WriteString("\nAdvisory\n")
	for _, bucket := range buckets {
		rate := hitRates[bucket] * 100
		switch {
		case rate < 50:
			fmt.Fprintf(&b, "- %s: hit rate %.1f%%, consider raising its TTL\n", bucket, rate)
		case rate > 80:
			fmt.Fprintf(&b, "- %s: hit rate %.1f%%, healthy\n", bucket, rate)
		default:
			fmt.Fprintf(&b, "- %s: hit rate %.1f%%, moderate\n", bucket, rate)
		}
	}
	switch {
	case session.AvgDurationMS > 20000:
		b.WriteString("- average request duration is high, check upstream bottlenecks\n")
	case session.AvgDurationMS > 0 && session.AvgDurationMS < 5000:
		b.WriteString("- average request duration is low, pipeline is responsive\n")
	}
	return b.String()
}
