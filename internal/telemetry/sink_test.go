package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/model"
)

func TestTrackOperationUpdatesCacheStatsAndRing(t *testing.T) {
	s := NewSink(zap.NewNop())
	ctx := context.Background()

	s.TrackOperation(ctx, model.OpDataFetch, "AAPL", 100*time.Millisecond, false, 1000)
	s.TrackOperation(ctx, model.OpDataFetch, "AAPL", 50*time.Millisecond, true, 1001)

	rates := s.CacheHitRates()
	if got := rates[model.BucketData]; got != 0.5 {
		t.Fatalf("hit rate = %v, want 0.5", got)
	}

	stats := s.OperationStatsSince(model.OpDataFetch, 0)
	if stats.Count != 2 {
		t.Fatalf("count = %d, want 2", stats.Count)
	}
	if stats.MinMS != 50 || stats.MaxMS != 100 {
		t.Fatalf("min/max = %v/%v, want 50/100", stats.MinMS, stats.MaxMS)
	}
	if stats.AvgMS != 75 {
		t.Fatalf("avg = %v, want 75", stats.AvgMS)
	}
}

func TestOperationStatsSinceWindowsOutOldRecords(t *testing.T) {
	s := NewSink(zap.NewNop())
	ctx := context.Background()

	s.TrackOperation(ctx, model.OpChartGen, "MSFT", 10*time.Millisecond, false, 100)
	s.TrackOperation(ctx, model.OpChartGen, "MSFT", 20*time.Millisecond, false, 200)

	stats := s.OperationStatsSince(model.OpChartGen, 150)
	if stats.Count != 1 {
		t.Fatalf("count = %d, want 1 (only the record at ts=200 should survive)", stats.Count)
	}
	if stats.AvgMS != 20 {
		t.Fatalf("avg = %v, want 20", stats.AvgMS)
	}
}

func TestOperationStatsSinceUnknownOpReturnsZeroValue(t *testing.T) {
	s := NewSink(zap.NewNop())
	stats := s.OperationStatsSince(model.Op("unknown"), 0)
	if stats != (OperationStats{}) {
		t.Fatalf("expected zero-value stats for unknown op, got %+v", stats)
	}
}

func TestTrackOperationReportGenerationSkipsCacheCounters(t *testing.T) {
	s := NewSink(zap.NewNop())
	ctx := context.Background()

	s.TrackOperation(ctx, model.OpReportGeneration, "AAPL", 500*time.Millisecond, false, 1)

	stats := s.OperationStatsSince(model.OpReportGeneration, 0)
	if stats.Count != 1 {
		t.Fatalf("count = %d, want 1", stats.Count)
	}
	rates := s.CacheHitRates()
	for bucket, rate := range rates {
		if rate != 0 {
			t.Fatalf("expected report_generation to leave bucket %q hit rate untouched, got %v", bucket, rate)
		}
	}
}

func TestTrackRequestAccumulatesWeightedAverageAndSplit(t *testing.T) {
	s := NewSink(zap.NewNop())
	s.TrackRequest(true, 100*time.Millisecond)
	s.TrackRequest(false, 200*time.Millisecond)

	snap := s.SessionSnapshot()
	if snap.TotalRequests() != 2 {
		t.Fatalf("TotalRequests = %d, want 2", snap.TotalRequests())
	}
	if snap.Successful != 1 || snap.Failed != 1 {
		t.Fatalf("Successful/Failed = %d/%d, want 1/1", snap.Successful, snap.Failed)
	}
	if snap.AvgDurationMS != 150 {
		t.Fatalf("AvgDurationMS = %v, want 150", snap.AvgDurationMS)
	}
}

func TestResetClearsRingsAndSession(t *testing.T) {
	s := NewSink(zap.NewNop())
	ctx := context.Background()
	s.TrackOperation(ctx, model.OpLLMAnalyze, "AAPL", 10*time.Millisecond, true, 1)
	s.TrackRequest(true, 500*time.Millisecond)

	s.Reset()

	stats := s.OperationStatsSince(model.OpLLMAnalyze, 0)
	if stats.Count != 0 {
		t.Fatalf("expected no operation records after Reset, got %d", stats.Count)
	}
	snap := s.SessionSnapshot()
	if snap.TotalRequests() != 0 || snap.AvgDurationMS != 0 {
		t.Fatalf("expected zeroed session stats after Reset, got %+v", snap)
	}
}

func TestReportIncludesSessionAndOpLines(t *testing.T) {
	s := NewSink(zap.NewNop())
	ctx := context.Background()
	s.TrackOperation(ctx, model.OpDataFetch, "AAPL", 10*time.Millisecond, true, 1)
	s.TrackRequest(true, 2*time.Second)

	report := s.Report()
	if report == "" {
		t.Fatal("expected a non-empty report")
	}
	if !strings.Contains(report, "Requests served: 1") {
		t.Fatalf("expected report to mention request count, got:\n%s", report)
	}
	if !strings.Contains(report, "successful=1 failed=0") {
		t.Fatalf("expected report to mention the successful/failed split, got:\n%s", report)
	}
	if !strings.Contains(report, string(model.OpDataFetch)) {
		t.Fatalf("expected report to mention the data_fetch op, got:\n%s", report)
	}
	if !strings.Contains(report, string(model.OpReportGeneration)) {
		t.Fatalf("expected report to mention the report_generation op, got:\n%s", report)
	}
}

func TestRegistryIsPrivatePerSink(t *testing.T) {
	a := NewSink(zap.NewNop())
	b := NewSink(zap.NewNop())
	if a.Registry() == b.Registry() {
		t.Fatal("expected each Sink to own a distinct Prometheus registry")
	}
}
