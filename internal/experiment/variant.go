package experiment

import (
	"github.com/nubrick/nubrick-go/pkg/models"
)

// SelectVariant picks a variant from the config using a normalized user
// random value in [0,1).
//
// The weights [baseline, v1, ..., vN] partition [0,1) by cumulative
// probability mass; the first bucket whose cumulative mass reaches rnd
// wins. A config with no variants always returns the baseline. Returns
// nil when the config has no baseline, or if a floating-point edge case
// produces an index beyond the variant list.
func SelectVariant(cfg *models.ExperimentConfig, normalizedUserRnd float64) *models.ExperimentVariant {
	if cfg == nil || cfg.Baseline == nil {
		return nil
	}
	if len(cfg.Variants) == 0 {
		return cfg.Baseline
	}

	weights := make([]int, 0, len(cfg.Variants)+1)
	weights = append(weights, cfg.Baseline.WeightOrDefault())
	sum := weights[0]
	for i := range cfg.Variants {
		w := cfg.Variants[i].WeightOrDefault()
		weights = append(weights, w)
		sum += w
	}
	if sum <= 0 {
		return cfg.Baseline
	}

	// X is selected when F_X(x) >= rnd, with F_X the cumulative
	// distribution over the weight list.
	cumulative := 0.0
	selected := 0
	for i, w := range weights {
		cumulative += float64(w) / float64(sum)
		if cumulative >= normalizedUserRnd {
			selected = i
			break
		}
	}

	if selected == 0 {
		return cfg.Baseline
	}
	if selected-1 < len(cfg.Variants) {
		return &cfg.Variants[selected-1]
	}
	return nil
}
