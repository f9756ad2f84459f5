package recommender

import (
	"github.com/volcengine/ite/engine/algorithm/merge"
	"github.com/volcengine/ite/engine/model"
)

// mergeUpDown implements C4.4.1: combine the up-direction and
// down-direction per-series results of a direction=both run.
func mergeUpDown(mergeCfg merge.Config, up, down []model.MetricThresholdResult) []model.MetricThresholdResult {
	downByKey := map[string]model.MetricThresholdResult{}
	for _, d := range down {
		downByKey[d.UniqueKey] = d
	}
	seen := map[string]bool{}

	var out []model.MetricThresholdResult
	for _, u := range up {
		d, ok := downByKey[u.UniqueKey]
		if !ok {
			out = append(out, u)
			continue
		}
		seen[u.UniqueKey] = true
		out = append(out, mergeEntry(mergeCfg, u, d))
	}
	for _, d := range down {
		if !seen[d.UniqueKey] {
			if _, ok := indexByKey(up, d.UniqueKey); !ok {
				out = append(out, d)
			}
		}
	}
	return out
}

func indexByKey(list []model.MetricThresholdResult, key string) (model.MetricThresholdResult, bool) {
	for _, r := range list {
		if r.UniqueKey == key {
			return r, true
		}
	}
	return model.MetricThresholdResult{}, false
}

func mergeEntry(mergeCfg merge.Config, up, down model.MetricThresholdResult) model.MetricThresholdResult {
	if up.Status == model.StatusFailed {
		return failedMerged(up, up.ErrorMessage)
	}
	if down.Status == model.StatusFailed {
		return failedMerged(up, down.ErrorMessage)
	}

	upConsolidated := isConsolidated(up.Thresholds)
	downConsolidated := isConsolidated(down.Thresholds)

	var blocks []model.IntelligentThresholdConfig
	switch {
	case upConsolidated && !downConsolidated:
		upper := up.Thresholds[0].UpperBound
		for _, b := range down.Thresholds {
			blocks = append(blocks, model.IntelligentThresholdConfig{
				StartHour: b.StartHour, EndHour: b.EndHour,
				UpperBound: upper, LowerBound: b.LowerBound, WindowSize: b.WindowSize,
			})
		}
	case downConsolidated && !upConsolidated:
		lower := down.Thresholds[0].LowerBound
		for _, b := range up.Thresholds {
			blocks = append(blocks, model.IntelligentThresholdConfig{
				StartHour: b.StartHour, EndHour: b.EndHour,
				UpperBound: b.UpperBound, LowerBound: lower, WindowSize: b.WindowSize,
			})
		}
	case upConsolidated && downConsolidated:
		window := up.Thresholds[0].WindowSize
		if down.Thresholds[0].WindowSize > window {
			window = down.Thresholds[0].WindowSize
		}
		blocks = []model.IntelligentThresholdConfig{{
			StartHour: 0, EndHour: 24,
			UpperBound: up.Thresholds[0].UpperBound,
			LowerBound: down.Thresholds[0].LowerBound,
			WindowSize: window,
		}}
	default:
		downByRange := map[[2]float64]model.IntelligentThresholdConfig{}
		for _, b := range down.Thresholds {
			downByRange[[2]float64{b.StartHour, b.EndHour}] = b
		}
		matched := map[[2]float64]bool{}
		for _, b := range up.Thresholds {
			key := [2]float64{b.StartHour, b.EndHour}
			if db, ok := downByRange[key]; ok {
				matched[key] = true
				window := b.WindowSize
				if db.WindowSize > window {
					window = db.WindowSize
				}
				blocks = append(blocks, model.IntelligentThresholdConfig{
					StartHour: b.StartHour, EndHour: b.EndHour,
					UpperBound: b.UpperBound, LowerBound: db.LowerBound, WindowSize: window,
				})
			} else {
				blocks = append(blocks, b)
			}
		}
		for _, b := range down.Thresholds {
			key := [2]float64{b.StartHour, b.EndHour}
			if !matched[key] {
				blocks = append(blocks, b)
			}
		}
	}

	return model.MetricThresholdResult{
		Name:       up.Name,
		Labels:     up.Labels,
		UniqueKey:  up.UniqueKey,
		Status:     model.StatusSuccess,
		Thresholds: merge.Merge(mergeCfg, blocks),
	}
}

func isConsolidated(blocks []model.IntelligentThresholdConfig) bool {
	return len(blocks) == 1 && blocks[0].StartHour == 0 && blocks[0].EndHour == 24
}

func failedMerged(base model.MetricThresholdResult, msg string) model.MetricThresholdResult {
	return model.MetricThresholdResult{
		Name:         base.Name,
		Labels:       base.Labels,
		UniqueKey:    base.UniqueKey,
		Status:       model.StatusFailed,
		ErrorMessage: msg,
	}
}
