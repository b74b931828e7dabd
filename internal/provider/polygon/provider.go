// Package polygon adapts github.com/polygon-io/client-go into the
// pipeline's DataProvider contract. Grounded on
// utils/quote.go: the same ListAggs params shape, retry-with-backoff
// discipline, and 90s per-attempt context timeout.
package polygon

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"go.uber.org/zap"

	"github.com/Archerouyang/project-alpha/internal/model"
	"github.com/Archerouyang/project-alpha/internal/pipelineerr"
)

const (
	maxRetries   = 3
	attemptLimit = 90 * time.Second
)

// Provider fetches OHLCV series from Polygon.io.
type Provider struct {
	client *polygon.Client
	log    *zap.Logger
}

// New builds a Provider on the client library's default HTTP client;
// the per-attempt timeout is applied in Fetch through the context.
func New(apiKey string, log *zap.Logger) *Provider {
	return &Provider{client: polygon.New(apiKey), log: log}
}

// Fetch retrieves the most recent numCandles bars for ticker at
// interval, classifying the symbol as crypto or equity to decide the
// ticker prefix and estimate the lookback window needed.
func (p *Provider) Fetch(ctx context.Context, ticker string, interval model.Interval, numCandles int, exchange *string) (model.OHLCVSeries, error) {
	mult, timespan, err := toPolygon(interval)
	if err != nil {
		return model.OHLCVSeries{}, pipelineerr.New(pipelineerr.InvalidInterval, "data_provider", ticker, err)
	}

	crypto := isCrypto(ticker, exchange)
	resolvedTicker := resolveTicker(ticker, exchange, crypto)
	days := estimateLookbackDays(interval, numCandles, crypto)
	now := time.Now().UTC()
	from := models.Millis(now.Add(-time.Duration(days) * 24 * time.Hour))
	to := models.Millis(now)

	params := models.ListAggsParams{
		Ticker:     resolvedTicker,
		Multiplier: mult,
		Timespan:   models.Timespan(timespan),
		From:       from,
		To:         to,
	}.WithOrder(models.Desc).WithLimit(numCandles).WithAdjusted(true)

	var lastErr error
	var bars []models.Agg
	for attempt := 1; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, attemptLimit)
		iter := p.client.ListAggs(callCtx, params)
		collected := make([]models.Agg, 0, numCandles)
		for iter.Next() {
			collected = append(collected, iter.Item())
		}
		cancel()
		if err := iter.Err(); err != nil {
			lastErr = err
			if attempt < maxRetries {
				time.Sleep(time.Duration(attempt*2) * time.Second)
			}
			continue
		}
		bars = collected
		lastErr = nil
		break
	}
	if lastErr != nil {
		return model.OHLCVSeries{}, pipelineerr.New(pipelineerr.UpstreamUnavailable, "data_provider", ticker,
			fmt.Errorf("fetch aggregates after %d attempts: %w", maxRetries, lastErr))
	}
	if len(bars) == 0 {
		return model.OHLCVSeries{}, pipelineerr.New(pipelineerr.UnknownSymbol, "data_provider", ticker,
			fmt.Errorf("no aggregate bars returned for %s", resolvedTicker))
	}

	series, err := normalize(bars, numCandles)
	if err != nil {
		return model.OHLCVSeries{}, pipelineerr.New(pipelineerr.SchemaMismatch, "data_provider", ticker, err)
	}
	return series, nil
}

// normalize converts Polygon's descending-order aggregate bars into an
// ascending, validated, trimmed-to-numCandles OHLCVSeries. Rows that
// fail the per-candle OHLC invariant are dropped rather than failing
// the whole fetch — a handful of bad ticks shouldn't sink an otherwise
// usable window.
func normalize(bars []models.Agg, numCandles int) (model.OHLCVSeries, error) {
	candles := make([]model.Candle, 0, len(bars))
	for _, b := range bars {
		c := model.Candle{
			Time:   time.Time(b.Timestamp).Unix(),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		}
		if err := c.Validate(); err != nil {
			continue
		}
		candles = append(candles, c)
	}
	if len(candles) == 0 {
		return model.OHLCVSeries{}, fmt.Errorf("no valid candles after normalization")
	}

	for i, j := 0, len(candles)-1; i < j; i, j = i+1, j-1 {
		candles[i], candles[j] = candles[j], candles[i]
	}

	deduped := candles[:0]
	for i, c := range candles {
		if i > 0 && c.Time == deduped[len(deduped)-1].Time {
			continue
		}
		deduped = append(deduped, c)
	}

	if len(deduped) > numCandles {
		deduped = deduped[len(deduped)-numCandles:]
	}

	series := model.OHLCVSeries{Candles: deduped}
	if err := series.Validate(); err != nil {
		return model.OHLCVSeries{}, err
	}
	return series, nil
}

// toPolygon maps the pipeline's Interval enum onto Polygon's
// (multiplier, timespan) pair.
func toPolygon(iv model.Interval) (int, string, error) {
	switch iv {
	case model.Interval1m:
		return 1, "minute", nil
	case model.Interval5m:
		return 5, "minute", nil
	case model.Interval15m:
		return 15, "minute", nil
	case model.Interval30m:
		return 30, "minute", nil
	case model.Interval1h:
		return 1, "hour", nil
	case model.Interval4h:
		return 4, "hour", nil
	case model.Interval1d:
		return 1, "day", nil
	case model.Interval1w:
		return 1, "week", nil
	case model.Interval1mo:
		return 1, "month", nil
	default:
		return 0, "", fmt.Errorf("unsupported interval %q", iv)
	}
}

// lookbackPadDays is a constant buffer added on top of the scaled
// lookback window, absorbing the occasional upstream gap that the
// per-interval buffer multiplier alone wouldn't cover.
const lookbackPadDays = 2

// cryptoExchanges lists the known crypto trading venues an explicit
// --exchange override can name, e.g. "KRAKEN". A ticker traded on one
// of these is crypto even when it doesn't contain a "-" pair separator.
var cryptoExchanges = map[string]bool{
	"KRAKEN":   true,
	"COINBASE": true,
	"BINANCE":  true,
	"GEMINI":   true,
	"BITFINEX": true,
}

// estimateLookbackDays picks a fetch window wide enough to contain
// numCandles bars at the given interval. Crypto trades nearly
// continuously, so a 1.2x buffer is enough; equities have weekends,
// holidays and after-hours gaps to absorb, so they get a wider 1.7x
// buffer. Both add a constant lookbackPadDays on top.
func estimateLookbackDays(iv model.Interval, numCandles int, crypto bool) int {
	perDay := iv.CandlesPerDay()
	if perDay <= 0 {
		perDay = 1
	}
	buffer := 1.7
	if crypto {
		buffer = 1.2
	}
	days := math.Ceil(float64(numCandles)/perDay*buffer) + lookbackPadDays
	if days < 1 {
		days = 1
	}
	return int(days)
}

// isCrypto reports whether ticker should be treated as a crypto pair:
// either exchange names a known crypto venue, or ticker contains a "-"
// separator (e.g. "BTC-USD"), matching how the source's data fetcher
// branches on symbol shape when no explicit venue is given.
func isCrypto(ticker string, exchange *string) bool {
	if exchange != nil && cryptoExchanges[strings.ToUpper(*exchange)] {
		return true
	}
	return strings.Contains(ticker, "-")
}

// resolveTicker applies Polygon's crypto ("X:") prefix when crypto is
// true and no explicit exchange override was given.
func resolveTicker(ticker string, exchange *string, crypto bool) string {
	if exchange != nil && *exchange != "" {
		return *exchange + ":" + ticker
	}
	if crypto {
		return "X:" + strings.ReplaceAll(ticker, "-", "")
	}
	return ticker
}
