package model

import (
	"encoding/json"
	"math"
)

// IndicatorSnapshot is the scalar digest of the latest bar after indicator
// computation. Fields may be NaN during warm-up; NaN marshals to JSON
// null, the "unavailable" encoding used throughout the pipeline.
type IndicatorSnapshot struct {
	LatestClose float64
	PeriodHigh  float64
	PeriodLow   float64
	BBUpper     float64
	BBMiddle    float64
	BBLower     float64
	StochK      float64
	StochD      float64
}

// Valid reports whether the cross-field invariants hold
// for whichever fields are finite. Non-finite fields are exempt per the
// "whenever all three are finite" qualifier.
func (s IndicatorSnapshot) Valid() bool {
	if isFinite(s.PeriodLow) && isFinite(s.LatestClose) && isFinite(s.PeriodHigh) {
		if !(s.PeriodLow <= s.LatestClose && s.LatestClose <= s.PeriodHigh) {
			return false
		}
	}
	if isFinite(s.BBLower) && isFinite(s.BBMiddle) && isFinite(s.BBUpper) {
		if !(s.BBLower <= s.BBMiddle && s.BBMiddle <= s.BBUpper) {
			return false
		}
	}
	if isFinite(s.StochK) && !(s.StochK >= 0 && s.StochK <= 100) {
		return false
	}
	if isFinite(s.StochD) && !(s.StochD >= 0 && s.StochD <= 100) {
		return false
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// indicatorSnapshotJSON mirrors IndicatorSnapshot but with *float64 fields
// so NaN serializes as null rather than the invalid JSON token "NaN".
type indicatorSnapshotJSON struct {
	LatestClose *float64 `json:"latest_close"`
	PeriodHigh  *float64 `json:"period_high"`
	PeriodLow   *float64 `json:"period_low"`
	BBUpper     *float64 `json:"bb_upper"`
	BBMiddle    *float64 `json:"bb_middle"`
	BBLower     *float64 `json:"bb_lower"`
	StochK      *float64 `json:"stoch_k"`
	StochD      *float64 `json:"stoch_d"`
}

func nilIfNaN(v float64) *float64 {
	if !isFinite(v) {
		return nil
	}
	return &v
}

// MarshalJSON encodes NaN/Inf fields as null: NaN encodes as unavailable.
func (s IndicatorSnapshot) MarshalJSON() ([]byte, error) {
	return json.Marshal(indicatorSnapshotJSON{
		LatestClose: nilIfNaN(s.LatestClose),
		PeriodHigh:  nilIfNaN(s.PeriodHigh),
		PeriodLow:   nilIfNaN(s.PeriodLow),
		BBUpper:     nilIfNaN(s.BBUpper),
		BBMiddle:    nilIfNaN(s.BBMiddle),
		BBLower:     nilIfNaN(s.BBLower),
		StochK:      nilIfNaN(s.StochK),
		StochD:      nilIfNaN(s.StochD),
	})
}

// UnmarshalJSON is the inverse of MarshalJSON; null fields become NaN.
func (s *IndicatorSnapshot) UnmarshalJSON(data []byte) error {
	var raw indicatorSnapshotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	deref := func(v *float64) float64 {
		if v == nil {
			return math.NaN()
		}
		return *v
	}
	s.LatestClose = deref(raw.LatestClose)
	s.PeriodHigh = deref(raw.PeriodHigh)
	s.PeriodLow = deref(raw.PeriodLow)
	s.BBUpper = deref(raw.BBUpper)
	s.BBMiddle = deref(raw.BBMiddle)
	s.BBLower = deref(raw.BBLower)
	s.StochK = deref(raw.StochK)
	s.StochD = deref(raw.StochD)
	return nil
}

// RoundForSnapshot applies the snapshot rounding rules: Bollinger fields to
// 2 decimals, Stoch to integer, others to 4 decimals. Applied once at
// construction time so every consumer (cache, prompt template, report
// index) sees the same rounded values.
func RoundForSnapshot(s IndicatorSnapshot) IndicatorSnapshot {
	round := func(v float64, places int) float64 {
		if !isFinite(v) {
			return v
		}
		mult := math.Pow(10, float64(places))
		return math.Round(v*mult) / mult
	}
	return IndicatorSnapshot{
		LatestClose: round(s.LatestClose, 4),
		PeriodHigh:  round(s.PeriodHigh, 4),
		PeriodLow:   round(s.PeriodLow, 4),
		BBUpper:     round(s.BBUpper, 2),
		BBMiddle:    round(s.BBMiddle, 2),
		BBLower:     round(s.BBLower, 2),
		StochK:      round(s.StochK, 0),
		StochD:      round(s.StochD, 0),
	}
}
