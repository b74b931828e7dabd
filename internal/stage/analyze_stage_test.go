package stage

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/fingerprint"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

type fakeAnalysisCache struct {
	entries map[string]string
}

func newFakeAnalysisCache() *fakeAnalysisCache {
	return &fakeAnalysisCache{entries: make(map[string]string)}
}

func (f *fakeAnalysisCache) GetAnalysis(ctx context.Context, digest string) (string, bool) {
	v, ok := f.entries[digest]
	return v, ok
}

func (f *fakeAnalysisCache) SetAnalysis(ctx context.Context, digest string, markdown string) error {
	f.entries[digest] = markdown
	return nil
}

func TestAnalyzeStageRejectsMissingAPIKey(t *testing.T) {
	cache := newFakeAnalysisCache()
	sink := telemetry.NewSink(zap.NewNop())
	stage := NewAnalyzeStage("", cache, sink, zap.NewNop())

	_, err := stage.Analyze(context.Background(), "AAPL", nil, model.IndicatorSnapshot{})
	if err == nil {
		t.Fatal("expected an error when no API key is configured")
	}
	perr, ok := err.(*pipelineerr.Error)
	if !ok || perr.Kind != pipelineerr.MissingCredentials {
		t.Fatalf("expected a MissingCredentials error, got %v", err)
	}
}

func TestAnalyzeStageReturnsCachedResultWithoutCallingGemini(t *testing.T) {
	cache := newFakeAnalysisCache()
	sink := telemetry.NewSink(zap.NewNop())
	stage := NewAnalyzeStage("fake-key", cache, sink, zap.NewNop())

	snap := model.IndicatorSnapshot{LatestClose: 100, BBUpper: 110, BBMiddle: 100, BBLower: 90, StochK: 50, StochD: 45}
	digest := fingerprint.AnalysisDigest("AAPL", snap)
	cache.entries[digest] = "cached narrative"

	text, err := stage.Analyze(context.Background(), "AAPL", nil, snap)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if text != "cached narrative" {
		t.Fatalf("expected cached narrative to be returned, got %q", text)
	}
}

func TestAnalyzeStageCacheKeyExcludesChartBytes(t *testing.T) {
	cache := newFakeAnalysisCache()
	snap := model.IndicatorSnapshot{LatestClose: 100, BBUpper: 110, BBMiddle: 100, BBLower: 90, StochK: 50, StochD: 45}
	digestWithNilPNG := fingerprint.AnalysisDigest("AAPL", snap)

	cache.entries[digestWithNilPNG] = "narrative keyed off indicators alone"
	sink := telemetry.NewSink(zap.NewNop())
	stage := NewAnalyzeStage("fake-key", cache, sink, zap.NewNop())

	// Passing a non-nil png must still resolve to the same cache entry,
	// since the orchestrator always calls Analyze with a nil png and the
	// digest is computed from the snapshot, not the image bytes.
	text, err := stage.Analyze(context.Background(), "AAPL", []byte("irrelevant"), snap)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if text != "narrative keyed off indicators alone" {
		t.Fatalf("expected the snapshot-keyed cache entry, got %q", text)
	}
}
