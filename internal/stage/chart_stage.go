package stage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/pplcc/plotext/custplotter"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/fingerprint"
	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
	"github.com/Archerouyang/project-alpha/internal/telemetry"
)

const (
	chartWidthPx  = 1280
	chartHeightPx = 720
)

// ChartCache is the subset of cache.TieredCache ChartStage needs.
type ChartCache interface {
	GetChart(ctx context.Context, digest string) ([]byte, bool)
	SetChart(ctx context.Context, digest string, png []byte) error
}

// ChartStage renders a candlestick chart with a Bollinger Band
// overlay. Grounded on internal/app/strategy/strategies.go's
// custplotter.TOHLCVs + gonum/plot render path, rendered in-process
// rather than shelling out to a headless browser.
type ChartStage struct {
	cache *cachedStage[[]byte]
}

func NewChartStage(c ChartCache, sink *telemetry.Sink, log *zap.Logger) *ChartStage {
	return &ChartStage{
		cache: &cachedStage[[]byte]{
			op:      model.OpChartGen,
			get:     c.GetChart,
			set:     c.SetChart,
			sink:    sink,
			log:     log,
			isEmpty: func(b []byte) bool { return len(b) == 0 },
		},
	}
}

// Render returns a PNG-encoded candlestick chart for series, with a
// Bollinger Band overlay from snap. Results are cached by ticker,
// interval and the series' data fingerprint; a cache hit skips
// rendering entirely.
func (s *ChartStage) Render(ctx context.Context, ticker string, interval model.Interval, series model.OHLCVSeries, snap model.IndicatorSnapshot) ([]byte, error) {
	digest := fingerprint.ChartDigest(ticker, interval, series)
	png, err := s.cache.run(ctx, ticker, digest, func(ctx context.Context) ([]byte, error) {
		return renderCandles(series, snap)
	})
	if err != nil {
		if err == errEmptyResult {
			return nil, pipelineerr.New(pipelineerr.ChartRenderFailed, "chart_stage", ticker, fmt.Errorf("renderer produced an empty image"))
		}
		return nil, pipelineerr.New(pipelineerr.ChartRenderFailed, "chart_stage", ticker, err)
	}
	return png, nil
}

func renderCandles(series model.OHLCVSeries, snap model.IndicatorSnapshot) ([]byte, error) {
	if series.Len() == 0 {
		return nil, fmt.Errorf("cannot render chart for an empty series")
	}

	var bars custplotter.TOHLCVs
	for _, c := range series.Candles {
		bars = append(bars, struct {
			T, O, H, L, C, V float64
		}{
			T: float64(c.Time),
			O: c.Open,
			H: c.High,
			L: c.Low,
			C: c.Close,
			V: c.Volume,
		})
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("%d candles", series.Len())
	p.X.Tick.Marker = plot.TimeTicks{Format: "01-02\n15:04"}

	candles, err := custplotter.NewCandlesticks(bars)
	if err != nil {
		return nil, fmt.Errorf("candles: %w", err)
	}
	p.Add(candles)

	if line := bollingerLine(series, snap.BBUpper); line != nil {
		p.Add(line)
	}
	if line := bollingerLine(series, snap.BBMiddle); line != nil {
		p.Add(line)
	}
	if line := bollingerLine(series, snap.BBLower); line != nil {
		p.Add(line)
	}

	var buf bytes.Buffer
	wt, err := p.WriterTo(vg.Points(chartWidthPx), vg.Points(chartHeightPx), "png")
	if err != nil {
		return nil, fmt.Errorf("writer: %w", err)
	}
	if _, err := wt.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

// bollingerLine draws a flat reference line at value across the full
// series width. The source renders Bollinger bands as full-width bands
// overlaid on the candles rather than per-bar computed series, since
// only the latest snapshot value is available to the chart stage — a
// deliberate simplification the cache-key digest (data fingerprint,
// not option fingerprint) already assumes.
func bollingerLine(series model.OHLCVSeries, value float64) *plotter.Line {
	if value != value { // NaN check without importing math for one use
		return nil
	}
	pts := make(plotter.XYs, series.Len())
	for i, c := range series.Candles {
		pts[i].X = float64(c.Time)
		pts[i].Y = value
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil
	}
	return line
}
