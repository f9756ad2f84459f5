// Package threshold implements the sliding-window anomaly-filtered
// threshold estimator (C2): time-of-day segmentation, per-range
// candidate generation, and the 1-D DBSCAN-based peak estimator.
package threshold

import (
	"math"
	"sort"
	"time"

	"github.com/montanaflynn/stats"

	"github.com/volcengine/ite/engine/algorithm/period"
	"github.com/volcengine/ite/engine/model"
)

// Config mirrors the environment-driven defaults in spec.md §6.
type Config struct {
	NumberOfTimeSplit int // default 4
	Period            period.Config
	Location          *time.Location
}

// DefaultConfig matches spec.md §6.
func DefaultConfig() Config {
	return Config{NumberOfTimeSplit: 4, Period: period.DefaultConfig(), Location: time.UTC}
}

// Block is one produced (start_hour, end_hour, threshold) range before it
// is classified into upper/lower bound by direction.
type Block struct {
	StartHour  float64
	EndHour    float64
	Threshold  *float64
	WindowSize int
}

// normalizeTimestampsToSeconds rescales each timestamp into seconds,
// inferring its precision independently: divide by 1e9 if >= 1e18, by
// 1e6 if >= 1e15, by 1e3 if >= 1e12, else unchanged.
func normalizeTimestampsToSeconds(ts []int64) []int64 {
	out := make([]int64, len(ts))
	for i, t := range ts {
		out[i] = normalizeTimestampToSeconds(t)
	}
	return out
}

func normalizeTimestampToSeconds(t int64) int64 {
	abs := t
	if abs < 0 {
		abs = -abs
	}
	switch {
	case abs >= 1_000_000_000_000_000_000:
		return t / 1_000_000_000
	case abs >= 1_000_000_000_000_000:
		return t / 1_000_000
	case abs >= 1_000_000_000_000:
		return t / 1_000
	default:
		return t
	}
}

// getTimestampHour returns the decimal hour-of-day (hour + minute/60 +
// second/3600) of t in loc.
func getTimestampHour(t int64, loc *time.Location) float64 {
	tm := time.Unix(t, 0).In(loc)
	return float64(tm.Hour()) + float64(tm.Minute())/60 + float64(tm.Second())/3600
}

// RecommendThreshold is C2's entry point.
func RecommendThreshold(
	cfg Config,
	timestamps []int64,
	values []float64,
	defaultWindow int,
	timeSplit bool,
	autoWindowAdjust bool,
	minValue, maxValue, normalThreshold *float64,
	minTSLength int,
	sensitivity float64,
	direction model.Direction,
) []Block {
	if len(timestamps) == 0 || len(values) == 0 {
		return nil
	}
	ts := normalizeTimestampsToSeconds(timestamps)

	periodic := false
	if timeSplit {
		periodic = period.Detect(cfg.Period, ts, values)
	}

	if !timeSplit || !periodic {
		threshold, window := slidingWindow(ts, values, defaultWindow, 0, autoWindowAdjust, minValue, maxValue, normalThreshold, direction, sensitivity)
		return []Block{{StartHour: 0, EndHour: 24, Threshold: threshold, WindowSize: window}}
	}

	k := cfg.NumberOfTimeSplit
	if k < 1 {
		k = 4
	}
	step := 24.0 / float64(k)

	type rangeCandidate struct {
		startHour, endHour float64
		sufficient         bool
		t0, t1             *float64
		t0Window, t1Window int
		ratio              float64
	}

	candidates := make([]rangeCandidate, k)
	for i := 0; i < k; i++ {
		startHour := float64(i) * step
		endHour := startHour + step
		candidates[i] = rangeCandidate{startHour: startHour, endHour: endHour}

		rts, rvals := filterByHourRange(ts, values, startHour, endHour, cfg.Location)
		required := float64(minTSLength) * (endHour - startHour) / 24
		if float64(len(rts)) < required {
			continue
		}
		t1, t1w := slidingWindow(rts, rvals, defaultWindow, 1, autoWindowAdjust, minValue, maxValue, normalThreshold, direction, sensitivity)
		t0, t0w := slidingWindow(rts, rvals, defaultWindow, 0, autoWindowAdjust, minValue, maxValue, normalThreshold, direction, sensitivity)

		ratio := 1.0
		if t1 != nil && *t1 != 0 {
			if t0 != nil {
				ratio = *t0 / *t1
			}
		}
		candidates[i].sufficient = true
		candidates[i].t0, candidates[i].t1 = t0, t1
		candidates[i].t0Window, candidates[i].t1Window = t0w, t1w
		candidates[i].ratio = ratio
	}

	order := make([]int, 0, k)
	for i, c := range candidates {
		if c.sufficient {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return candidates[order[a]].ratio > candidates[order[b]].ratio })

	blocks := make([]Block, k)
	for i, c := range candidates {
		blocks[i] = Block{StartHour: c.startHour, EndHour: c.endHour}
		if !c.sufficient {
			blocks[i].WindowSize = 1
			continue
		}
		blocks[i].Threshold = c.t0
		blocks[i].WindowSize = c.t0Window
	}
	if len(order) > 0 {
		top := order[0]
		blocks[top].Threshold = candidates[top].t1
		blocks[top].WindowSize = candidates[top].t1Window
	}
	return blocks
}

func filterByHourRange(ts []int64, values []float64, startHour, endHour float64, loc *time.Location) ([]int64, []float64) {
	var rts []int64
	var rvals []float64
	for i, t := range ts {
		h := getTimestampHour(t, loc)
		if h >= startHour && h < endHour {
			rts = append(rts, t)
			rvals = append(rvals, values[i])
		}
	}
	return rts, rvals
}

// slidingWindow enumerates candidate windows [defaultWindow, ..., 9] (or
// just [defaultWindow] when autoWindowAdjust is false), stopping at the
// first candidate whose general-threshold estimate succeeds; otherwise it
// keeps the last candidate tried. The result is finally clamped against
// normalThreshold: max for up, min for down.
func slidingWindow(
	ts []int64,
	values []float64,
	defaultWindow int,
	ignoreCount int,
	autoWindowAdjust bool,
	minValue, maxValue, normalThreshold *float64,
	direction model.Direction,
	sensitivity float64,
) (*float64, int) {
	windows := []int{defaultWindow}
	if autoWindowAdjust {
		windows = nil
		for w := defaultWindow; w <= 9; w++ {
			windows = append(windows, w)
		}
		if len(windows) == 0 {
			windows = []int{defaultWindow}
		}
	}

	var result *float64
	usedWindow := defaultWindow
	for _, w := range windows {
		value, ok := recommendGeneralThreshold(ts, values, w, ignoreCount, minValue, maxValue, direction, sensitivity)
		usedWindow = w
		if ok {
			result = value
			break
		}
		result = value
	}

	if result == nil {
		return nil, usedWindow
	}
	v := *result
	if normalThreshold != nil {
		if direction == model.DirectionUp {
			v = math.Max(v, *normalThreshold)
		} else {
			v = math.Min(v, *normalThreshold)
		}
	}
	return &v, usedWindow
}

// recommendGeneralThreshold is the core DBSCAN + anomaly-elimination
// estimator. ok=false means the estimate failed outright (degenerate
// median time delta); a non-nil value with ok=true may still have come
// from the 95th-percentile fallback.
func recommendGeneralThreshold(
	ts []int64,
	values []float64,
	window int,
	ignoreCount int,
	minValue, maxValue *float64,
	direction model.Direction,
	sensitivity float64,
) (*float64, bool) {
	n := len(values)
	if n == 0 {
		return nil, false
	}

	vals := make([]float64, n)
	copy(vals, values)
	if direction == model.DirectionDown {
		for i := range vals {
			vals[i] = -vals[i]
		}
	}

	coefficient := 1.05 + 0.3*sensitivity

	deltas := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		deltas = append(deltas, float64(ts[i]-ts[i-1]))
	}
	if len(deltas) == 0 {
		return nil, false
	}
	medianDelta, err := stats.Median(deltas)
	if err != nil || medianDelta <= 0 {
		return nil, false
	}

	clusterSize := int(3600.0 / medianDelta)
	if clusterSize < 1 {
		clusterSize = 1
	}
	if clusterSize > n {
		clusterSize = n
	}

	mean, _ := stats.Mean(vals)
	eps := math.Abs(mean) / 5

	labels := dbscan1D(vals, eps, clusterSize)
	clusterMax := map[int]float64{}
	clusterSize2 := map[int]int{}
	for i, lbl := range labels {
		if lbl < 0 {
			continue
		}
		clusterSize2[lbl]++
		if v, ok := clusterMax[lbl]; !ok || vals[i] > v {
			clusterMax[lbl] = vals[i]
		}
	}
	m := math.Inf(-1)
	for lbl, size := range clusterSize2 {
		if size >= clusterSize {
			if clusterMax[lbl] > m {
				m = clusterMax[lbl]
			}
		}
	}

	if !math.IsInf(m, -1) {
		m = eliminateAbnormalRegions(ts, vals, m, window, ignoreCount)
	}

	if math.IsInf(m, -1) {
		baseline, err := stats.Percentile(append([]float64(nil), vals...), 95)
		if err != nil {
			return nil, false
		}
		if direction == model.DirectionUp {
			r := baseline * coefficient
			return &r, true
		}
		// Down fallback: preserved literally without re-negating the
		// percentile computed over the already-negated series.
		r := baseline / coefficient
		return &r, true
	}

	if direction == model.DirectionUp {
		threshold := m * coefficient
		if maxValue != nil {
			threshold = math.Min(threshold, *maxValue)
		}
		return &threshold, true
	}

	// Un-negate back to the original domain.
	original := -m
	threshold := original / coefficient
	if minValue != nil {
		_ = math.Max(*minValue, threshold) // computed, intentionally unused: matches the original's dead clamp
	}
	return &threshold, true
}

type abnormalRun struct {
	left, right int
	minVal      float64
}

// eliminateAbnormalRegions repeatedly walks the series for maximal runs
// above the current peak candidate M, drops short runs, merges nearby
// runs, and raises M until at most ignoreCount runs survive.
func eliminateAbnormalRegions(ts []int64, vals []float64, m float64, window, ignoreCount int) float64 {
	for {
		var runs []abnormalRun
		i := 0
		n := len(vals)
		for i < n {
			if vals[i] > m {
				j := i
				minVal := vals[i]
				for j+1 < n && vals[j+1] > m {
					j++
					if vals[j] < minVal {
						minVal = vals[j]
					}
				}
				runs = append(runs, abnormalRun{left: i, right: j, minVal: minVal})
				i = j + 1
			} else {
				i++
			}
		}

		var filtered []abnormalRun
		for _, r := range runs {
			if r.right-r.left+1 >= window {
				filtered = append(filtered, r)
			}
		}

		merged := mergeNearbyRuns(ts, filtered)

		sort.SliceStable(merged, func(a, b int) bool { return merged[a].minVal > merged[b].minVal })

		if len(merged) <= ignoreCount {
			return m
		}
		newM := merged[len(merged)-1].minVal
		if newM <= m {
			return m
		}
		m = newM
	}
}

func mergeNearbyRuns(ts []int64, runs []abnormalRun) []abnormalRun {
	if len(runs) == 0 {
		return runs
	}
	sort.Slice(runs, func(a, b int) bool { return runs[a].left < runs[b].left })
	merged := []abnormalRun{runs[0]}
	for _, r := range runs[1:] {
		last := &merged[len(merged)-1]
		gap := ts[r.left] - ts[last.right]
		if gap < 3600 {
			last.right = r.right
			if r.minVal < last.minVal {
				last.minVal = r.minVal
			}
		} else {
			merged = append(merged, r)
		}
	}
	return merged
}
