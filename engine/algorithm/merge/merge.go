// Package merge implements the block merger (C3): a greedy
// adjacency merge under 10% tolerance, followed by a hierarchical cap
// that keeps the result under maximum_threshold_blocks.
package merge

import (
	"math"
	"sort"

	"github.com/volcengine/ite/engine/model"
)

// Config carries the hierarchical-cap tunable.
type Config struct {
	MaximumThresholdBlocks int // default 8
}

// DefaultConfig matches spec.md §6's default.
func DefaultConfig() Config {
	return Config{MaximumThresholdBlocks: 8}
}

// Merge sorts blocks by StartHour and runs both stages over them; blocks
// must be contiguous and cover [0,24].
func Merge(cfg Config, blocks []model.IntelligentThresholdConfig) []model.IntelligentThresholdConfig {
	if len(blocks) == 0 {
		return blocks
	}
	sorted := append([]model.IntelligentThresholdConfig(nil), blocks...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartHour < sorted[j].StartHour })

	merged := greedyAdjacencyMerge(sorted)

	cap := cfg.MaximumThresholdBlocks
	if cap < 1 {
		cap = 8
	}
	for len(merged) > cap {
		if len(merged) < 2 {
			break
		}
		i := smallestDistancePair(merged)
		merged = mergePair(merged, i)
	}
	return merged
}

func greedyAdjacencyMerge(blocks []model.IntelligentThresholdConfig) []model.IntelligentThresholdConfig {
	var result []model.IntelligentThresholdConfig
	group := []model.IntelligentThresholdConfig{blocks[0]}

	for i := 1; i < len(blocks); i++ {
		candidate := append(append([]model.IntelligentThresholdConfig(nil), group...), blocks[i])
		if compatible(candidate) {
			group = candidate
			continue
		}
		result = append(result, collapse(group))
		group = []model.IntelligentThresholdConfig{blocks[i]}
	}
	result = append(result, collapse(group))
	return result
}

// compatible reports whether every block in the group shares window_size
// and whether upper/lower bounds lie within 10% of their max (treating
// max=0 as "allow only when all equal").
func compatible(group []model.IntelligentThresholdConfig) bool {
	window := group[0].WindowSize
	for _, b := range group[1:] {
		if b.WindowSize != window {
			return false
		}
	}
	return boundsWithinTolerance(group, true) && boundsWithinTolerance(group, false)
}

func boundsWithinTolerance(group []model.IntelligentThresholdConfig, upper bool) bool {
	var values []float64
	nilCount := 0
	for _, b := range group {
		v := b.LowerBound
		if upper {
			v = b.UpperBound
		}
		if v == nil {
			nilCount++
			continue
		}
		values = append(values, *v)
	}
	if len(values) == 0 {
		return true
	}
	if nilCount > 0 {
		// Mixed null/non-null bounds within a group are never compatible.
		return false
	}
	max, min := values[0], values[0]
	for _, v := range values {
		if v > max {
			max = v
		}
		if v < min {
			min = v
		}
	}
	if max == 0 {
		return min == max
	}
	return (max-min)/max <= 0.10
}

func collapse(group []model.IntelligentThresholdConfig) model.IntelligentThresholdConfig {
	out := model.IntelligentThresholdConfig{
		StartHour:  group[0].StartHour,
		EndHour:    group[len(group)-1].EndHour,
		WindowSize: group[0].WindowSize,
	}
	out.UpperBound = aggregate(group, true, math.Max)
	out.LowerBound = aggregate(group, false, math.Min)
	return out
}

func aggregate(group []model.IntelligentThresholdConfig, upper bool, combine func(a, b float64) float64) *float64 {
	var result *float64
	for _, b := range group {
		v := b.LowerBound
		if upper {
			v = b.UpperBound
		}
		if v == nil {
			continue
		}
		if result == nil {
			val := *v
			result = &val
			continue
		}
		val := combine(*result, *v)
		result = &val
	}
	return result
}

// smallestDistancePair returns the index i such that blocks[i] and
// blocks[i+1] have the smallest average relative difference of their
// upper and lower bounds.
func smallestDistancePair(blocks []model.IntelligentThresholdConfig) int {
	best := -1
	bestDist := math.Inf(1)
	for i := 0; i < len(blocks)-1; i++ {
		d := pairDistance(blocks[i], blocks[i+1])
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

func pairDistance(a, b model.IntelligentThresholdConfig) float64 {
	var total float64
	var terms int
	if a.UpperBound != nil && b.UpperBound != nil {
		total += relDiff(*a.UpperBound, *b.UpperBound)
		terms++
	}
	if a.LowerBound != nil && b.LowerBound != nil {
		total += relDiff(*a.LowerBound, *b.LowerBound)
		terms++
	}
	if terms == 0 {
		return 0
	}
	return total / float64(terms)
}

func relDiff(a, b float64) float64 {
	max := math.Max(math.Abs(a), math.Abs(b))
	if max == 0 {
		return 0
	}
	return math.Abs(a-b) / max
}

func mergePair(blocks []model.IntelligentThresholdConfig, i int) []model.IntelligentThresholdConfig {
	merged := collapse([]model.IntelligentThresholdConfig{blocks[i], blocks[i+1]})
	window := blocks[i].WindowSize
	if blocks[i+1].WindowSize > window {
		window = blocks[i+1].WindowSize
	}
	merged.WindowSize = window

	out := make([]model.IntelligentThresholdConfig, 0, len(blocks)-1)
	out = append(out, blocks[:i]...)
	out = append(out, merged)
	out = append(out, blocks[i+2:]...)
	return out
}
