package merge

import (
	"testing"

	"github.com/volcengine/ite/engine/model"
)

func f(v float64) *float64 { return &v }

func block(start, end float64, lower, upper *float64, window int) model.IntelligentThresholdConfig {
	return model.IntelligentThresholdConfig{StartHour: start, EndHour: end, LowerBound: lower, UpperBound: upper, WindowSize: window}
}

// TestGreedyMergeWithinTolerance confirms adjacent blocks with the same
// window size and bounds within 10% of each other collapse into one.
func TestGreedyMergeWithinTolerance(t *testing.T) {
	blocks := []model.IntelligentThresholdConfig{
		block(0, 8, f(10), f(100), 5),
		block(8, 16, f(10.5), f(104), 5),
		block(16, 24, f(50), f(500), 5),
	}
	out := Merge(DefaultConfig(), blocks)
	if len(out) != 2 {
		t.Fatalf("expected 2 blocks after merge, got %d: %+v", len(out), out)
	}
	if out[0].StartHour != 0 || out[0].EndHour != 16 {
		t.Fatalf("expected first block to span [0,16), got [%v,%v)", out[0].StartHour, out[0].EndHour)
	}
}

// TestMergeDifferentWindowSizesNeverCollapse confirms a mismatched window
// size blocks the greedy merge even when bounds are identical.
func TestMergeDifferentWindowSizesNeverCollapse(t *testing.T) {
	blocks := []model.IntelligentThresholdConfig{
		block(0, 12, f(10), f(100), 5),
		block(12, 24, f(10), f(100), 10),
	}
	out := Merge(DefaultConfig(), blocks)
	if len(out) != 2 {
		t.Fatalf("expected blocks to remain separate, got %d", len(out))
	}
}

// TestMixedNilBoundsNeverCompatible confirms a group where one block has a
// nil bound and another doesn't is never merged, even with the other bound
// side equal.
func TestMixedNilBoundsNeverCompatible(t *testing.T) {
	blocks := []model.IntelligentThresholdConfig{
		block(0, 12, f(10), nil, 5),
		block(12, 24, f(10), f(100), 5),
	}
	out := Merge(DefaultConfig(), blocks)
	if len(out) != 2 {
		t.Fatalf("expected blocks to remain separate, got %d", len(out))
	}
}

// TestHierarchicalCapCollapsesClosestPair confirms the hierarchical cap
// stage repeatedly merges the pair with the smallest relative distance
// until the block count is at or under MaximumThresholdBlocks.
func TestHierarchicalCapCollapsesClosestPair(t *testing.T) {
	blocks := []model.IntelligentThresholdConfig{
		block(0, 4, f(10), f(100), 5),
		block(4, 8, f(200), f(300), 5),
		block(8, 12, f(205), f(305), 5),
		block(12, 16, f(900), f(1000), 5),
	}
	out := Merge(Config{MaximumThresholdBlocks: 2}, blocks)
	if len(out) != 2 {
		t.Fatalf("expected cap to reduce to 2 blocks, got %d: %+v", len(out), out)
	}
}

// TestMergeEmptyInput confirms an empty slice passes through unchanged
// rather than panicking on the group[0] access in greedyAdjacencyMerge.
func TestMergeEmptyInput(t *testing.T) {
	out := Merge(DefaultConfig(), nil)
	if len(out) != 0 {
		t.Fatalf("expected empty output, got %d", len(out))
	}
}

// TestMergeSortsUnorderedInput confirms blocks are sorted by StartHour
// before merging, regardless of input order.
func TestMergeSortsUnorderedInput(t *testing.T) {
	blocks := []model.IntelligentThresholdConfig{
		block(12, 24, f(10), f(100), 5),
		block(0, 12, f(10), f(100), 5),
	}
	out := Merge(DefaultConfig(), blocks)
	if len(out) != 1 || out[0].StartHour != 0 || out[0].EndHour != 24 {
		t.Fatalf("expected single merged block spanning full day, got %+v", out)
	}
}
