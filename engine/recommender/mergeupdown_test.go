package recommender

import (
	"testing"

	"github.com/volcengine/ite/engine/algorithm/merge"
	"github.com/volcengine/ite/engine/model"
)

func fv(v float64) *float64 { return &v }

// TestMergeUpDownFailurePropagates confirms a failed up-direction result
// short-circuits the merge for that series regardless of the down result.
func TestMergeUpDownFailurePropagates(t *testing.T) {
	up := []model.MetricThresholdResult{
		{UniqueKey: "a", Status: model.StatusFailed, ErrorMessage: "up broke"},
	}
	down := []model.MetricThresholdResult{
		{UniqueKey: "a", Status: model.StatusSuccess},
	}
	out := mergeUpDown(merge.DefaultConfig(), up, down)
	if len(out) != 1 || out[0].Status != model.StatusFailed || out[0].ErrorMessage != "up broke" {
		t.Fatalf("expected propagated up failure, got %+v", out)
	}
}

// TestMergeUpDownBothConsolidated confirms two single full-day blocks merge
// into one block taking the up-direction's upper bound and the
// down-direction's lower bound.
func TestMergeUpDownBothConsolidated(t *testing.T) {
	up := []model.MetricThresholdResult{
		{UniqueKey: "a", Status: model.StatusSuccess, Thresholds: []model.IntelligentThresholdConfig{
			{StartHour: 0, EndHour: 24, UpperBound: fv(100), WindowSize: 5},
		}},
	}
	down := []model.MetricThresholdResult{
		{UniqueKey: "a", Status: model.StatusSuccess, Thresholds: []model.IntelligentThresholdConfig{
			{StartHour: 0, EndHour: 24, LowerBound: fv(10), WindowSize: 3},
		}},
	}
	out := mergeUpDown(merge.DefaultConfig(), up, down)
	if len(out) != 1 {
		t.Fatalf("expected one merged series, got %d", len(out))
	}
	th := out[0].Thresholds
	if len(th) != 1 || *th[0].UpperBound != 100 || *th[0].LowerBound != 10 || th[0].WindowSize != 5 {
		t.Fatalf("unexpected merged thresholds: %+v", th)
	}
}

// TestMergeUpDownOnlyUpConsolidated confirms an up-direction consolidated
// single block broadcasts its upper bound across every down-direction block.
func TestMergeUpDownOnlyUpConsolidated(t *testing.T) {
	up := []model.MetricThresholdResult{
		{UniqueKey: "a", Status: model.StatusSuccess, Thresholds: []model.IntelligentThresholdConfig{
			{StartHour: 0, EndHour: 24, UpperBound: fv(100), WindowSize: 5},
		}},
	}
	down := []model.MetricThresholdResult{
		{UniqueKey: "a", Status: model.StatusSuccess, Thresholds: []model.IntelligentThresholdConfig{
			{StartHour: 0, EndHour: 12, LowerBound: fv(1), WindowSize: 5},
			{StartHour: 12, EndHour: 24, LowerBound: fv(2), WindowSize: 5},
		}},
	}
	out := mergeUpDown(merge.DefaultConfig(), up, down)
	if len(out) != 1 {
		t.Fatalf("expected one merged series, got %d", len(out))
	}
	for _, b := range out[0].Thresholds {
		if b.UpperBound == nil || *b.UpperBound != 100 {
			t.Fatalf("expected every block to carry up's upper bound, got %+v", b)
		}
	}
}

// TestMergeUpDownUnmatchedSeriesPassThrough confirms a series present only
// on one side of the merge passes through unchanged.
func TestMergeUpDownUnmatchedSeriesPassThrough(t *testing.T) {
	up := []model.MetricThresholdResult{
		{UniqueKey: "only-up", Status: model.StatusSuccess},
	}
	down := []model.MetricThresholdResult{
		{UniqueKey: "only-down", Status: model.StatusSuccess},
	}
	out := mergeUpDown(merge.DefaultConfig(), up, down)
	if len(out) != 2 {
		t.Fatalf("expected both unmatched series to pass through, got %d", len(out))
	}
}
