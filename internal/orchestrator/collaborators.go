package orchestrator

import (
	"context"

	"github.com/Archerouyang/project-alpha/internal/composer"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/reportindex"
)

// DataProvider fetches OHLCV candles for a ticker. The polygon package
// is the production implementation; tests supply a fake.
type DataProvider interface {
	Fetch(ctx context.Context, ticker string, interval model.Interval, numCandles int, exchange *string) (model.OHLCVSeries, error)
}

// ChartRenderer renders a candlestick chart. The stage package's
// ChartStage is the production implementation.
type ChartRenderer interface {
	Render(ctx context.Context, ticker string, interval model.Interval, series model.OHLCVSeries, snap model.IndicatorSnapshot) ([]byte, error)
}

// SeriesCache is the subset of cache.TieredCache the orchestrator needs
// to wrap DataProvider.Fetch with the data bucket, keyed on
// (ticker, interval).
type SeriesCache interface {
	GetSeries(ctx context.Context, digest string) (model.OHLCVSeries, bool)
	SetSeries(ctx context.Context, digest string, series model.OHLCVSeries) error
}

// Analyzer obtains an LLM narrative for a chart. The stage package's
// AnalyzeStage is the production implementation.
type Analyzer interface {
	Analyze(ctx context.Context, ticker string, png []byte, snap model.IndicatorSnapshot) (string, error)
}

// ReportComposer composes the final report artifact.
type ReportComposer interface {
	Compose(ctx context.Context, in composer.Input) ([]byte, error)
}

// ReportIndex records the generated report in the external index.
type ReportIndex interface {
	Insert(ctx context.Context, rec reportindex.Record) error
}
