package threshold

import (
	"testing"
	"time"

	"github.com/volcengine/ite/engine/model"
)

func flatSeries(hours int, pointsPerHour int, value float64) ([]int64, []float64) {
	var ts []int64
	var vs []float64
	interval := int64(3600 / pointsPerHour)
	for h := 0; h < hours; h++ {
		for p := 0; p < pointsPerHour; p++ {
			ts = append(ts, int64(h)*3600+int64(p)*interval)
			vs = append(vs, value)
		}
	}
	return ts, vs
}

// TestRecommendThresholdUpDirectionCoversFullDay confirms a flat series
// without time-split produces a single full-day block.
func TestRecommendThresholdUpDirectionCoversFullDay(t *testing.T) {
	cfg := DefaultConfig()
	ts, vs := flatSeries(48, 6, 100)

	blocks := RecommendThreshold(cfg, ts, vs, 5, false, false, nil, nil, nil, 10, 3.0, model.DirectionUp)
	if len(blocks) == 0 {
		t.Fatalf("expected at least one block for a well-formed flat series")
	}
	if blocks[0].StartHour != 0 || blocks[len(blocks)-1].EndHour != 24 {
		t.Fatalf("expected blocks to cover the full day, got first=%v last=%v", blocks[0], blocks[len(blocks)-1])
	}
}

// TestRecommendThresholdHandlesEmptySeries confirms an empty series never
// panics and returns no blocks.
func TestRecommendThresholdHandlesEmptySeries(t *testing.T) {
	cfg := DefaultConfig()
	blocks := RecommendThreshold(cfg, nil, nil, 5, false, false, nil, nil, nil, 10, 3.0, model.DirectionDown)
	if len(blocks) != 0 {
		t.Fatalf("expected no blocks for empty input, got %d", len(blocks))
	}
}

// TestGetTimestampHourUsesConfiguredLocation confirms the decimal-hour
// conversion respects the supplied time.Location rather than always UTC.
func TestGetTimestampHourUsesConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*60*60)
	// 2024-01-01T12:10:00Z, which is 20:10 in UTC+8
	hour := getTimestampHour(1704111000, loc)
	if hour < 20.0 || hour >= 21.0 {
		t.Fatalf("expected hour in [20,21), got %v", hour)
	}
}
