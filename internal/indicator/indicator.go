// Package indicator computes the scalar indicator snapshot the
// pipeline attaches to every report: Bollinger Bands and the
// stochastic RSI, both evaluated with github.com/markcheno/go-talib
// rather than hand-rolled math, matching how this lineage's other
// technical-analysis services source their indicator math.
package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"github.com/Archerouyang/project-alpha/internal/model"
)

const (
	bbPeriod    = 20
	bbDevUp     = 2.0
	bbDevDown   = 2.0
	stochPeriod = 14
	stochFastK  = 14
	stochFastD  = 3
	stochSmooth = 3
)

// Compute derives an IndicatorSnapshot from a series' closing prices.
// Bollinger Bands(20,2) and StochRSI(14,14,3) both need a warm-up
// window; when series is shorter than that window the corresponding
// fields come back as NaN rather than a zero value, so callers never
// mistake "not enough data yet" for "computed to zero."
func Compute(series model.OHLCVSeries) model.IndicatorSnapshot {
	n := series.Len()
	if n == 0 {
		return model.IndicatorSnapshot{
			LatestClose: math.NaN(), PeriodHigh: math.NaN(), PeriodLow: math.NaN(),
			BBUpper: math.NaN(), BBMiddle: math.NaN(), BBLower: math.NaN(),
			StochK: math.NaN(), StochD: math.NaN(),
		}
	}

	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	for i, c := range series.Candles {
		closes[i] = c.Close
		highs[i] = c.High
		lows[i] = c.Low
	}

	periodHigh, periodLow := highs[0], lows[0]
	for i := 1; i < n; i++ {
		if highs[i] > periodHigh {
			periodHigh = highs[i]
		}
		if lows[i] < periodLow {
			periodLow = lows[i]
		}
	}

	upper, middle, lower := bollinger(closes)
	stochK, stochD := stochRSI(closes)

	snap := model.IndicatorSnapshot{
		LatestClose: series.Last().Close,
		PeriodHigh:  periodHigh,
		PeriodLow:   periodLow,
		BBUpper:     lastOrNaN(upper),
		BBMiddle:    lastOrNaN(middle),
		BBLower:     lastOrNaN(lower),
		StochK:      lastOrNaN(stochK),
		StochD:      lastOrNaN(stochD),
	}
	return model.RoundForSnapshot(snap)
}

// bollinger wraps talib.Bbands with the pipeline's fixed (20, 2, 2,
// SMA) parameters.
func bollinger(closes []float64) (upper, middle, lower []float64) {
	if len(closes) < bbPeriod {
		return nil, nil, nil
	}
	return talib.Bbands(closes, bbPeriod, bbDevUp, bbDevDown, talib.SMA)
}

// stochRSI wraps talib.StochRsi with the pipeline's fixed
// (14, 14, 3, SMA) parameters: k is talib's fast %K and d is its
// 3-period SMA. k itself is not smoothed further; stochSmooth is not
// passed to talib.
func stochRSI(closes []float64) (k, d []float64) {
	if len(closes) < stochPeriod+stochFastK {
		return nil, nil
	}
	return talib.StochRsi(closes, stochPeriod, stochFastK, stochFastD, talib.SMA)
}

func lastOrNaN(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	v := xs[len(xs)-1]
	if math.IsNaN(v) {
		return math.NaN()
	}
	return v
}
