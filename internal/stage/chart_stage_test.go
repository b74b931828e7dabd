package stage

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/fingerprint"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

type fakeChartCache struct {
	entries map[string][]byte
}

func newFakeChartCache() *fakeChartCache {
	return &fakeChartCache{entries: make(map[string][]byte)}
}

func (f *fakeChartCache) GetChart(ctx context.Context, digest string) ([]byte, bool) {
	v, ok := f.entries[digest]
	return v, ok
}

func (f *fakeChartCache) SetChart(ctx context.Context, digest string, png []byte) error {
	f.entries[digest] = png
	return nil
}

func testSeries() model.OHLCVSeries {
	candles := make([]model.Candle, 40)
	price := 100.0
	for i := range candles {
		price += float64(i%3) - 1
		candles[i] = model.Candle{Time: int64(i + 1), Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10}
	}
	return model.OHLCVSeries{Candles: candles}
}

func TestChartStageRendersPNGOnCacheMiss(t *testing.T) {
	cache := newFakeChartCache()
	sink := telemetry.NewSink(zap.NewNop())
	stage := NewChartStage(cache, sink, zap.NewNop())

	snap := model.IndicatorSnapshot{LatestClose: 100, BBUpper: 110, BBMiddle: 100, BBLower: 90, StochK: 50, StochD: 45}
	png, err := stage.Render(context.Background(), "AAPL", model.Interval1d, testSeries(), snap)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatal("expected a PNG-encoded result")
	}
	if len(cache.entries) != 1 {
		t.Fatalf("expected one cache entry after a miss, got %d", len(cache.entries))
	}
}

func TestChartStageReturnsCachedResultWithoutRendering(t *testing.T) {
	cache := newFakeChartCache()
	sink := telemetry.NewSink(zap.NewNop())
	stage := NewChartStage(cache, sink, zap.NewNop())
	series := testSeries()
	snap := model.IndicatorSnapshot{}

	cache.entries[fingerprint.ChartDigest("AAPL", model.Interval1d, series)] = []byte("cached-png")
	png, err := stage.Render(context.Background(), "AAPL", model.Interval1d, series, snap)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if string(png) != "cached-png" {
		t.Fatalf("expected the cached payload to be returned verbatim, got %q", png)
	}
}

func TestChartStageEmptySeriesFails(t *testing.T) {
	cache := newFakeChartCache()
	sink := telemetry.NewSink(zap.NewNop())
	stage := NewChartStage(cache, sink, zap.NewNop())

	_, err := stage.Render(context.Background(), "AAPL", model.Interval1d, model.OHLCVSeries{}, model.IndicatorSnapshot{})
	if err == nil {
		t.Fatal("expected an error for an empty series")
	}
	var perr *pipelineerr.Error
	if pe, ok := err.(*pipelineerr.Error); ok {
		perr = pe
	}
	if perr == nil || perr.Kind != pipelineerr.ChartRenderFailed {
		t.Fatalf("expected a ChartRenderFailed error, got %v", err)
	}
}
