package threshold

import "github.com/volcengine/ite/engine/model"

// ToConfigs classifies each Block's estimated threshold into an upper or
// lower bound depending on direction, producing the
// IntelligentThresholdConfig list C3 consumes. fallbackWindow is used for
// blocks whose WindowSize was never set (insufficient-data blocks already
// carry 1).
func ToConfigs(blocks []Block, direction model.Direction, fallbackWindow int) []model.IntelligentThresholdConfig {
	out := make([]model.IntelligentThresholdConfig, len(blocks))
	for i, b := range blocks {
		window := b.WindowSize
		if window == 0 {
			window = fallbackWindow
		}
		cfg := model.IntelligentThresholdConfig{
			StartHour:  b.StartHour,
			EndHour:    b.EndHour,
			WindowSize: window,
		}
		if b.Threshold != nil {
			if direction == model.DirectionUp {
				v := *b.Threshold
				cfg.UpperBound = &v
			} else {
				v := *b.Threshold
				cfg.LowerBound = &v
			}
		}
		out[i] = cfg
	}
	return out
}
