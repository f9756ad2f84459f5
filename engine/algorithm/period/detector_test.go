package period

import "testing"

func syntheticDailySeries(days int, pointsPerDay int) ([]int64, []float64) {
	var ts []int64
	var vs []float64
	interval := int64(secondsPerDay / int64(pointsPerDay))
	for d := 0; d < days; d++ {
		for p := 0; p < pointsPerDay; p++ {
			t := int64(d)*secondsPerDay + int64(p)*interval
			ts = append(ts, t)
			// Same shape every day: a sine-ish repeating pattern by slot.
			vs = append(vs, float64(p%10))
		}
	}
	return ts, vs
}

// TestDetectFindsDailyPeriodicityInRepeatingSeries confirms a series with
// an identical daily shape across several days is detected as periodic
// once it clears MinDataPointsPerDay/MinCommonPoints.
func TestDetectFindsDailyPeriodicityInRepeatingSeries(t *testing.T) {
	cfg := Config{MinDataPointsPerDay: 100, MinCommonPoints: 100, CorrelationThreshold: 0.3}
	ts, vs := syntheticDailySeries(5, 144)
	if !Detect(cfg, ts, vs) {
		t.Fatalf("expected identical daily shapes to be detected as periodic")
	}
}

// TestDetectRejectsShortSpan confirms a series spanning under two days
// never reaches the correlation stage.
func TestDetectRejectsShortSpan(t *testing.T) {
	cfg := DefaultConfig()
	ts, vs := syntheticDailySeries(1, 720)
	if Detect(cfg, ts, vs) {
		t.Fatalf("expected a single day's span to be rejected")
	}
}

// TestDetectRejectsMismatchedLengths confirms timestamps/values length
// mismatch degrades to false instead of panicking.
func TestDetectRejectsMismatchedLengths(t *testing.T) {
	cfg := DefaultConfig()
	if Detect(cfg, []int64{1, 2, 3}, []float64{1, 2}) {
		t.Fatalf("expected mismatched lengths to report non-periodic")
	}
}

// TestDetectRejectsEmptyInput confirms an empty series reports false
// rather than panicking on index 0 access.
func TestDetectRejectsEmptyInput(t *testing.T) {
	cfg := DefaultConfig()
	if Detect(cfg, nil, nil) {
		t.Fatalf("expected empty input to report non-periodic")
	}
}
