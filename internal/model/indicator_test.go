package model

import (
	"encoding/json"
	"math"
	"testing"
)

func TestIndicatorSnapshotMarshalNaNAsNull(t *testing.T) {
	snap := IndicatorSnapshot{
		LatestClose: 100, PeriodHigh: 110, PeriodLow: 90,
		BBUpper: math.NaN(), BBMiddle: math.NaN(), BBLower: math.NaN(),
		StochK: math.NaN(), StochD: math.NaN(),
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal into map failed: %v", err)
	}
	if decoded["bb_upper"] != nil {
		t.Fatalf("expected bb_upper to be null, got %v", decoded["bb_upper"])
	}
	if decoded["latest_close"] != float64(100) {
		t.Fatalf("expected latest_close 100, got %v", decoded["latest_close"])
	}
}

func TestIndicatorSnapshotRoundTrip(t *testing.T) {
	snap := IndicatorSnapshot{
		LatestClose: 123.456, PeriodHigh: 130, PeriodLow: 100,
		BBUpper: 140, BBMiddle: 120, BBLower: 100,
		StochK: 55, StochD: 50,
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	var decoded IndicatorSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if decoded != snap {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, snap)
	}
}

func TestIndicatorSnapshotValid(t *testing.T) {
	valid := IndicatorSnapshot{
		LatestClose: 100, PeriodHigh: 110, PeriodLow: 90,
		BBUpper: 110, BBMiddle: 100, BBLower: 90,
		StochK: 50, StochD: 50,
	}
	if !valid.Valid() {
		t.Fatal("expected snapshot to be valid")
	}

	outOfRange := valid
	outOfRange.LatestClose = 200
	if outOfRange.Valid() {
		t.Fatal("expected snapshot with close outside period range to be invalid")
	}

	badBands := valid
	badBands.BBLower = 150
	if badBands.Valid() {
		t.Fatal("expected snapshot with inverted bollinger bands to be invalid")
	}

	badStoch := valid
	badStoch.StochK = 150
	if badStoch.Valid() {
		t.Fatal("expected snapshot with out-of-range stoch K to be invalid")
	}
}

func TestRoundForSnapshot(t *testing.T) {
	raw := IndicatorSnapshot{
		LatestClose: 123.45678, BBUpper: 130.125, BBMiddle: 120.005, BBLower: 110.004,
		StochK: 55.6, StochD: 44.4,
	}
	rounded := RoundForSnapshot(raw)
	if rounded.LatestClose != 123.4568 {
		t.Errorf("LatestClose = %v, want 123.4568", rounded.LatestClose)
	}
	if rounded.BBUpper != 130.13 && rounded.BBUpper != 130.12 {
		t.Errorf("BBUpper = %v, want rounded to 2 places near 130.12", rounded.BBUpper)
	}
	if rounded.StochK != 56 {
		t.Errorf("StochK = %v, want 56", rounded.StochK)
	}
}
