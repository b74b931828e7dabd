// Package orchestrator drives the end-to-end report generation flow:
// fetch data, compute indicators, render a chart and obtain an LLM
// narrative in parallel, compose the result, and record it in the
// report index. Grounded on orchestrator.py's AnalysisOrchestrator
// and cmd/server/main.go's constructor-injection wiring style.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/composer"
	"github.com/Archerouyang/project-alpha/internal/fingerprint"
	"github.com/Archerouyang/project-alpha/internal/indicator"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
	"github.com/Archerouyang/project-alpha/internal/reportindex"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

// Orchestrator wires the pipeline's external collaborators together.
// Build one with New and call GenerateReport per request; it holds no
// per-request state itself, so one Orchestrator is safe to reuse
// across concurrent requests.
type Orchestrator struct {
	data        DataProvider
	seriesCache SeriesCache
	chart       ChartRenderer
	analyzer    Analyzer
	compose     ReportComposer
	index       ReportIndex
	sink        *telemetry.Sink
	log         *zap.Logger
	outputDir   string
	now         func() time.Time
}

// New builds an Orchestrator. index may be nil, in which case the
// orchestrator skips the report-index write step — useful for
// deployments that haven't provisioned a Postgres instance yet.
func New(data DataProvider, seriesCache SeriesCache, chart ChartRenderer, analyzer Analyzer, compose ReportComposer, index ReportIndex, sink *telemetry.Sink, log *zap.Logger, outputDir string) *Orchestrator {
	return &Orchestrator{
		data: data, seriesCache: seriesCache, chart: chart, analyzer: analyzer, compose: compose, index: index,
		sink: sink, log: log, outputDir: outputDir, now: time.Now,
	}
}

// phase3Result carries one side of the parallel chart/analysis
// execution back to the coordinating goroutine.
type phase3Result struct {
	chartPNG []byte
	chartErr error
	analysis string
	analysisErr error
}

// GenerateReport runs the full pipeline for spec and returns the path
// to the composed report image plus a human-readable status message.
// On failure it returns ("", message, err) with err wrapping a
// *pipelineerr.Error so callers can branch on Kind.
func (o *Orchestrator) GenerateReport(ctx context.Context, spec model.RequestSpec) (string, string, error) {
	start := time.Now()
	ticker := spec.Ticker()
	state := StateInit
	success := false

	defer func() {
		o.sink.TrackRequest(success, time.Since(start))
	}()

	// Phase 1: data fetch, wrapped by the data bucket of the tiered
	// cache — get_data/set_data in spec terms.
	series, err := o.fetchSeriesCached(ctx, ticker, spec)
	if err != nil {
		return o.fail(state, ticker, "data fetch failed", err)
	}
	state = StateDataReady

	// Phase 2: indicator snapshot.
	snap := indicator.Compute(series)
	if !snap.Valid() {
		return o.fail(state, ticker, "indicator snapshot failed cross-field validation",
			pipelineerr.New(pipelineerr.IndicatorComputeFailed, "orchestrator", ticker, fmt.Errorf("invalid snapshot")))
	}
	state = StateSnapshotReady

	// Phase 3: chart render and LLM analysis run as independent
	// goroutines, not an errgroup.Group — a failure in one must not
	// cancel the other, so both always run to completion and the
	// survivor can still populate its cache bucket. The request is
	// then aborted if either of them failed. This mirrors
	// asyncio.gather(..., return_exceptions=True) in orchestrator.py's
	// Phase 3.
	result := o.runPhase3(ctx, ticker, spec.Interval(), series, snap)

	if result.chartErr != nil {
		return o.fail(state, ticker, "chart generation failed", result.chartErr)
	}
	state = StateChartReady

	if result.analysisErr != nil {
		return o.fail(state, ticker, "LLM analysis failed", result.analysisErr)
	}
	state = StateAnalysisReady

	// Phase 4: compose and persist.
	paths, err := newReportPaths(o.outputDir, ticker, string(spec.Interval()), o.now())
	if err != nil {
		return o.fail(state, ticker, "failed to create report directory",
			pipelineerr.Wrap(pipelineerr.ReportComposeFailed, "orchestrator", err))
	}

	composed, err := o.compose.Compose(ctx, composer.Input{
		Ticker:      ticker,
		Interval:    string(spec.Interval()),
		ChartPNG:    result.chartPNG,
		Analysis:    result.analysis,
		LatestClose: snap.LatestClose,
		Author:      "Archerouyang",
	})
	if err != nil {
		return o.fail(state, ticker, "report composition failed",
			pipelineerr.Wrap(pipelineerr.ReportComposeFailed, "orchestrator", err))
	}
	if err := os.WriteFile(paths.finalImagePath, composed, 0o644); err != nil {
		return o.fail(state, ticker, "failed to write composed report",
			pipelineerr.Wrap(pipelineerr.ReportComposeFailed, "orchestrator", err))
	}
	state = StateComposed

	if o.index != nil {
		rec := reportindex.Record{
			Ticker: ticker, Interval: string(spec.Interval()), ReportPath: paths.finalImagePath,
			GeneratedAt: o.now(), LatestClose: snap.LatestClose,
			BBUpper: snap.BBUpper, BBMiddle: snap.BBMiddle, BBLower: snap.BBLower,
			StochRSIK: snap.StochK, StochRSID: snap.StochD,
		}
		if err := o.index.Insert(ctx, rec); err != nil {
			o.log.Warn("failed to insert report into index", zap.String("ticker", ticker), zap.Error(err))
		} else {
			state = StateRecorded
		}
	}

	state = StateDone
	success = true
	totalElapsed := time.Since(start)
	o.sink.TrackOperation(ctx, model.OpReportGeneration, ticker, totalElapsed, false, o.now().Unix())
	o.log.Info("report generated", zap.String("ticker", ticker), zap.String("path", paths.finalImagePath),
		zap.Duration("duration", totalElapsed), zap.String("state", string(state)))
	return paths.finalImagePath, "report generated successfully", nil
}

// fetchSeriesCached wraps DataProvider.Fetch with the data bucket of
// the tiered cache, keyed on (ticker, interval). An empty or error
// result is never cached.
func (o *Orchestrator) fetchSeriesCached(ctx context.Context, ticker string, spec model.RequestSpec) (model.OHLCVSeries, error) {
	digest := fingerprint.SeriesDigest(ticker, spec.Interval())
	start := o.now()

	if o.seriesCache != nil {
		if series, ok := o.seriesCache.GetSeries(ctx, digest); ok {
			o.sink.TrackOperation(ctx, model.OpDataFetch, ticker, o.now().Sub(start), true, start.Unix())
			return series, nil
		}
	}

	series, err := o.data.Fetch(ctx, ticker, spec.Interval(), spec.NumCandles(), spec.Exchange())
	elapsed := o.now().Sub(start)
	if err != nil {
		o.sink.TrackOperation(ctx, model.OpDataFetch, ticker, elapsed, false, start.Unix())
		return model.OHLCVSeries{}, err
	}
	if series.Len() == 0 {
		o.sink.TrackOperation(ctx, model.OpDataFetch, ticker, elapsed, false, start.Unix())
		return series, nil
	}

	if o.seriesCache != nil {
		if err := o.seriesCache.SetSeries(ctx, digest, series); err != nil {
			o.log.Warn("failed to cache fetched series", zap.String("ticker", ticker), zap.Error(err))
		}
	}
	o.sink.TrackOperation(ctx, model.OpDataFetch, ticker, elapsed, false, start.Unix())
	return series, nil
}

func (o *Orchestrator) runPhase3(ctx context.Context, ticker string, interval model.Interval, series model.OHLCVSeries, snap model.IndicatorSnapshot) phase3Result {
	chartCh := make(chan phase3Result, 1)
	analysisCh := make(chan phase3Result, 1)

	go func() {
		png, err := o.chart.Render(ctx, ticker, interval, series, snap)
		chartCh <- phase3Result{chartPNG: png, chartErr: err}
	}()
	go func() {
		// The analyzer is driven off the indicator snapshot alone, not
		// the rendered chart bytes — it caches and keys on key-data,
		// matching analyze_chart_image_cached's b'' placeholder call
		// in orchestrator.py's Phase 3.
		text, err := o.analyzer.Analyze(ctx, ticker, nil, snap)
		analysisCh <- phase3Result{analysis: text, analysisErr: err}
	}()

	chartRes := <-chartCh
	analysisRes := <-analysisCh
	return phase3Result{
		chartPNG: chartRes.chartPNG, chartErr: chartRes.chartErr,
		analysis: analysisRes.analysis, analysisErr: analysisRes.analysisErr,
	}
}

func (o *Orchestrator) fail(state State, ticker, message string, err error) (string, string, error) {
	o.log.Error("report generation failed",
		zap.String("ticker", ticker), zap.String("state", string(state)), zap.Error(err))
	return "", message, err
}
