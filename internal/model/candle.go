package model

import (
	"fmt"
	"math"
)

// Candle is one OHLCV bar.
type Candle struct {
	Time   int64   `json:"time"` // unix seconds
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Validate enforces low <= min(open,close) <= max(open,close) <= high and
// volume >= 0.
func (c Candle) Validate() error {
	if c.Volume < 0 {
		return fmt.Errorf("candle at %d: negative volume %v", c.Time, c.Volume)
	}
	lo := math.Min(c.Open, c.Close)
	hi := math.Max(c.Open, c.Close)
	if !(c.Low <= lo && lo <= hi && hi <= c.High) {
		return fmt.Errorf("candle at %d: OHLC invariant violated (low=%v open=%v close=%v high=%v)",
			c.Time, c.Low, c.Open, c.Close, c.High)
	}
	return nil
}

// OHLCVSeries is an ordered, strictly-ascending, duplicate-free sequence
// of candles.
type OHLCVSeries struct {
	Candles []Candle
}

// Len returns the number of candles in the series.
func (s OHLCVSeries) Len() int { return len(s.Candles) }

// Validate checks the series-level invariants: strictly
// ascending timestamps, no duplicates. Per-candle invariants are the
// caller's responsibility (DataProvider drops invalid rows before they
// ever reach a series).
func (s OHLCVSeries) Validate() error {
	for i := 1; i < len(s.Candles); i++ {
		if s.Candles[i].Time <= s.Candles[i-1].Time {
			return fmt.Errorf("series not strictly ascending at index %d: %d <= %d",
				i, s.Candles[i].Time, s.Candles[i-1].Time)
		}
	}
	return nil
}

// First returns the earliest candle. Callers must check Len() > 0 first.
func (s OHLCVSeries) First() Candle { return s.Candles[0] }

// Last returns the most recent candle. Callers must check Len() > 0 first.
func (s OHLCVSeries) Last() Candle { return s.Candles[len(s.Candles)-1] }
