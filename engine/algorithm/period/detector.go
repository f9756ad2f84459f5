// Package period implements the daily-periodicity gate (C1): given a
// series, decide whether it has a repeating daily shape worth splitting
// into time-of-day threshold ranges.
package period

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

const secondsPerDay = 86400

// Config carries the tunables the detector needs; all have the defaults
// named in spec.md §6.
type Config struct {
	MinDataPointsPerDay int     // default 720
	MinCommonPoints     int     // default 720
	CorrelationThreshold float64 // default 0.3
}

// DefaultConfig matches spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{MinDataPointsPerDay: 720, MinCommonPoints: 720, CorrelationThreshold: 0.3}
}

// Detect reports whether the series, restricted to its trailing 7-day
// window, shows daily periodicity. Any numerical degeneracy is absorbed
// and reported as false: detection is a heuristic gate, never fatal.
func Detect(cfg Config, timestamps []int64, values []float64) (daily bool) {
	defer func() {
		if recover() != nil {
			daily = false
		}
	}()
	return detect(cfg, timestamps, values)
}

func detect(cfg Config, timestamps []int64, values []float64) bool {
	n := len(timestamps)
	if n == 0 || n != len(values) {
		return false
	}

	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return timestamps[idx[a]] < timestamps[idx[b]] })
	ts := make([]int64, n)
	vs := make([]float64, n)
	for i, j := range idx {
		ts[i] = timestamps[j]
		vs[i] = values[j]
	}

	if ts[n-1]-ts[0] < 2*secondsPerDay {
		return false
	}

	// Restrict to the trailing 7-day window.
	cutoff := ts[n-1] - 7*secondsPerDay
	start := sort.Search(n, func(i int) bool { return ts[i] >= cutoff })
	ts = ts[start:]
	vs = vs[start:]
	n = len(ts)
	if n < 2 {
		return false
	}

	delta := determineSamplingInterval(ts)
	if delta <= 0 {
		return false
	}

	t0 := ts[0]
	type cell struct {
		value float64
		set   bool
	}
	dayTimes := map[int64][]int64{}
	buckets := map[[2]int64]float64{}
	for i, t := range ts {
		dayIdx := (t - t0) / secondsPerDay
		slot := ((t - t0) % secondsPerDay) / delta
		key := [2]int64{dayIdx, slot}
		buckets[key] = vs[i] // last value written wins
		dayTimes[dayIdx] = append(dayTimes[dayIdx], t)
	}

	complete := map[int64]bool{}
	for day, times := range dayTimes {
		mn, mx := times[0], times[0]
		for _, t := range times {
			if t < mn {
				mn = t
			}
			if t > mx {
				mx = t
			}
		}
		if mx-mn >= secondsPerDay-delta {
			complete[day] = true
		}
	}

	slotsByDay := map[int64]map[int64]float64{}
	for key, v := range buckets {
		day, slot := key[0], key[1]
		if slotsByDay[day] == nil {
			slotsByDay[day] = map[int64]float64{}
		}
		slotsByDay[day][slot] = v
	}

	var keptDays []int64
	for day, slots := range slotsByDay {
		if len(slots) >= cfg.MinDataPointsPerDay {
			keptDays = append(keptDays, day)
		}
	}
	if len(keptDays) < 2 {
		return false
	}
	sort.Slice(keptDays, func(i, j int) bool { return keptDays[i] < keptDays[j] })

	// Shape-destroying drift guard: among pairs of *complete* days only.
	var completeKept []int64
	for _, d := range keptDays {
		if complete[d] {
			completeKept = append(completeKept, d)
		}
	}
	for i := 0; i < len(completeKept); i++ {
		for j := i + 1; j < len(completeKept); j++ {
			mini, maxi := rangeOf(slotsByDay[completeKept[i]])
			minj, maxj := rangeOf(slotsByDay[completeKept[j]])
			if mini >= maxj || maxi <= minj {
				return false
			}
		}
	}

	// Global common slot set across all kept days.
	var globalCommon []int64
	for slot := range slotsByDay[keptDays[0]] {
		inAll := true
		for _, d := range keptDays[1:] {
			if _, ok := slotsByDay[d][slot]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			globalCommon = append(globalCommon, slot)
		}
	}

	var correlations []float64
	if len(globalCommon) >= cfg.MinCommonPoints {
		for i := 0; i < len(keptDays); i++ {
			for j := i + 1; j < len(keptDays); j++ {
				a := valuesAt(slotsByDay[keptDays[i]], globalCommon)
				b := valuesAt(slotsByDay[keptDays[j]], globalCommon)
				if c, ok := correlate(a, b); ok {
					correlations = append(correlations, c)
				}
			}
		}
	} else {
		for i := 0; i < len(keptDays); i++ {
			for j := i + 1; j < len(keptDays); j++ {
				var common []int64
				for slot := range slotsByDay[keptDays[i]] {
					if _, ok := slotsByDay[keptDays[j]][slot]; ok {
						common = append(common, slot)
					}
				}
				if len(common) < cfg.MinCommonPoints {
					continue
				}
				a := valuesAt(slotsByDay[keptDays[i]], common)
				b := valuesAt(slotsByDay[keptDays[j]], common)
				if c, ok := correlate(a, b); ok {
					correlations = append(correlations, c)
				}
			}
		}
	}

	if len(correlations) == 0 {
		return false
	}
	sum := 0.0
	for _, c := range correlations {
		sum += c
	}
	mean := sum / float64(len(correlations))
	return mean >= cfg.CorrelationThreshold
}

func rangeOf(m map[int64]float64) (min, max float64) {
	first := true
	for _, v := range m {
		if first {
			min, max = v, v
			first = false
			continue
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return
}

func valuesAt(m map[int64]float64, slots []int64) []float64 {
	out := make([]float64, len(slots))
	for i, s := range slots {
		out[i] = m[s]
	}
	return out
}

// correlate computes Pearson correlation; contributes only if both
// vectors are non-constant and finite.
func correlate(a, b []float64) (float64, bool) {
	if !nonConstant(a) || !nonConstant(b) {
		return 0, false
	}
	c, err := stats.Correlation(a, b)
	if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	return c, true
}

func nonConstant(v []float64) bool {
	if len(v) == 0 {
		return false
	}
	first := v[0]
	for _, x := range v {
		if !isFinite(x) {
			return false
		}
		if x != first {
			return true
		}
	}
	return false
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

// determineSamplingInterval infers the dominant positive consecutive
// timestamp delta by a manual tally sorted by count descending, matching
// the original implementation (not a generic statistics-library "mode"
// call, since order of first occurrence among ties matters).
func determineSamplingInterval(ts []int64) int64 {
	counts := map[int64]int{}
	order := []int64{}
	for i := 1; i < len(ts); i++ {
		d := ts[i] - ts[i-1]
		if d <= 0 {
			continue
		}
		if _, ok := counts[d]; !ok {
			order = append(order, d)
		}
		counts[d]++
	}
	if len(order) == 0 {
		return 0
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	return order[0]
}
