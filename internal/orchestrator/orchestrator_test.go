package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/composer"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
	"github.com/Archerouyang/project-alpha/internal/reportindex"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

type fakeDataProvider struct {
	series model.OHLCVSeries
	err    error
}

func (f *fakeDataProvider) Fetch(ctx context.Context, ticker string, interval model.Interval, numCandles int, exchange *string) (model.OHLCVSeries, error) {
	return f.series, f.err
}

type fakeChartRenderer struct {
	png   []byte
	err   error
	delay time.Duration
}

func (f *fakeChartRenderer) Render(ctx context.Context, ticker string, interval model.Interval, series model.OHLCVSeries, snap model.IndicatorSnapshot) ([]byte, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.png, f.err
}

type fakeAnalyzer struct {
	text  string
	err   error
	calls int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, ticker string, png []byte, snap model.IndicatorSnapshot) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeComposer struct {
	out []byte
	err error
}

func (f *fakeComposer) Compose(ctx context.Context, in composer.Input) ([]byte, error) {
	return f.out, f.err
}

type fakeIndex struct {
	inserted []reportindex.Record
}

func (f *fakeIndex) Insert(ctx context.Context, rec reportindex.Record) error {
	f.inserted = append(f.inserted, rec)
	return nil
}

// fakeSeriesCache is a no-op SeriesCache: every lookup misses and Set
// just records what was stored, which is enough for the orchestrator
// tests that don't care about the data bucket's hit path.
type fakeSeriesCache struct {
	stored map[string]model.OHLCVSeries
}

func newFakeSeriesCache() *fakeSeriesCache {
	return &fakeSeriesCache{stored: make(map[string]model.OHLCVSeries)}
}

func (f *fakeSeriesCache) GetSeries(ctx context.Context, digest string) (model.OHLCVSeries, bool) {
	series, ok := f.stored[digest]
	return series, ok
}

func (f *fakeSeriesCache) SetSeries(ctx context.Context, digest string, series model.OHLCVSeries) error {
	f.stored[digest] = series
	return nil
}

func validSeries() model.OHLCVSeries {
	candles := make([]model.Candle, 60)
	price := 100.0
	for i := range candles {
		price += float64(i%3) - 1
		candles[i] = model.Candle{Time: int64(i + 1), Open: price, High: price + 1, Low: price - 1, Close: price, Volume: 10}
	}
	return model.OHLCVSeries{Candles: candles}
}

func newTestOrchestrator(t *testing.T, data DataProvider, chart ChartRenderer, analyzer Analyzer, comp ReportComposer, index ReportIndex) *Orchestrator {
	t.Helper()
	sink := telemetry.NewSink(zap.NewNop())
	return New(data, newFakeSeriesCache(), chart, analyzer, comp, index, sink, zap.NewNop(), t.TempDir())
}

func testSpec(t *testing.T) model.RequestSpec {
	t.Helper()
	spec, err := model.NewRequestSpec("AAPL", model.Interval1d, 60, nil)
	require.NoError(t, err)
	return spec
}

func TestGenerateReportHappyPath(t *testing.T) {
	orch := newTestOrchestrator(t,
		&fakeDataProvider{series: validSeries()},
		&fakeChartRenderer{png: []byte("chart-bytes")},
		&fakeAnalyzer{text: "narrative"},
		&fakeComposer{out: []byte("final-image")},
		&fakeIndex{},
	)

	path, message, err := orch.GenerateReport(context.Background(), testSpec(t))
	require.NoError(t, err)
	assert.NotEmpty(t, path)
	assert.Equal(t, "report generated successfully", message)
}

func TestGenerateReportDataFetchFailure(t *testing.T) {
	wantErr := pipelineerr.New(pipelineerr.UpstreamUnavailable, "data_provider", "AAPL", errors.New("timeout"))
	orch := newTestOrchestrator(t,
		&fakeDataProvider{err: wantErr},
		&fakeChartRenderer{png: []byte("chart-bytes")},
		&fakeAnalyzer{text: "narrative"},
		&fakeComposer{out: []byte("final-image")},
		&fakeIndex{},
	)

	path, _, err := orch.GenerateReport(context.Background(), testSpec(t))
	assert.Empty(t, path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, &pipelineerr.Error{Kind: pipelineerr.UpstreamUnavailable}))
}

func TestGenerateReportChartFailureStillRunsAnalysis(t *testing.T) {
	analyzer := &fakeAnalyzer{text: "narrative"}
	orch := newTestOrchestrator(t,
		&fakeDataProvider{series: validSeries()},
		&fakeChartRenderer{err: pipelineerr.New(pipelineerr.ChartRenderFailed, "chart_stage", "AAPL", errors.New("render failed"))},
		analyzer,
		&fakeComposer{out: []byte("final-image")},
		&fakeIndex{},
	)

	_, _, err := orch.GenerateReport(context.Background(), testSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, &pipelineerr.Error{Kind: pipelineerr.ChartRenderFailed}))
	assert.Equal(t, 1, analyzer.calls, "expected the analysis branch to run despite the chart failure")
}

func TestGenerateReportAnalysisFailure(t *testing.T) {
	orch := newTestOrchestrator(t,
		&fakeDataProvider{series: validSeries()},
		&fakeChartRenderer{png: []byte("chart-bytes")},
		&fakeAnalyzer{err: pipelineerr.New(pipelineerr.AnalysisUnavailable, "analyze_stage", "AAPL", errors.New("model down"))},
		&fakeComposer{out: []byte("final-image")},
		&fakeIndex{},
	)

	_, _, err := orch.GenerateReport(context.Background(), testSpec(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, &pipelineerr.Error{Kind: pipelineerr.AnalysisUnavailable}))
}

func TestGenerateReportRecordsToIndex(t *testing.T) {
	index := &fakeIndex{}
	orch := newTestOrchestrator(t,
		&fakeDataProvider{series: validSeries()},
		&fakeChartRenderer{png: []byte("chart-bytes")},
		&fakeAnalyzer{text: "narrative"},
		&fakeComposer{out: []byte("final-image")},
		index,
	)

	_, _, err := orch.GenerateReport(context.Background(), testSpec(t))
	require.NoError(t, err)
	require.Len(t, index.inserted, 1)
	assert.Equal(t, "AAPL", index.inserted[0].Ticker)
}

func TestPhase3RunsChartAndAnalysisConcurrently(t *testing.T) {
	orch := newTestOrchestrator(t,
		&fakeDataProvider{series: validSeries()},
		&fakeChartRenderer{png: []byte("chart-bytes"), delay: 20 * time.Millisecond},
		&fakeAnalyzer{text: "narrative"},
		&fakeComposer{out: []byte("final-image")},
		&fakeIndex{},
	)

	start := time.Now()
	_, _, err := orch.GenerateReport(context.Background(), testSpec(t))
	elapsed := time.Since(start)
	require.NoError(t, err)
	assert.Less(t, elapsed, 200*time.Millisecond, "expected chart render delay not to block on a serial analysis call")
}
