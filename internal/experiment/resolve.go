package experiment

import (
	"time"

	"github.com/nubrick/nubrick-go/pkg/models"
)

// Predicates are the history-backed checks resolution delegates to the
// caller, keeping this package free of I/O.
type Predicates struct {
	// Properties returns the user property set for a config seed.
	Properties func(seed *int) []models.UserProperty

	// IsNotInFrequency reports that an experiment is outside its
	// frequency cap and may be shown.
	IsNotInFrequency func(experimentID string, freq *models.ExperimentFrequency) bool

	// MatchedEventFrequency reports that all event-frequency conditions
	// hold for the recorded event counts.
	MatchedEventFrequency func(conds []models.UserEventFrequencyCondition) bool
}

// IsEligible reports whether a single config may be delivered now for the
// requested kinds. Pure predicate over its inputs.
func IsEligible(cfg *models.ExperimentConfig, kinds []models.ExperimentKind, now time.Time, p Predicates) bool {
	if cfg.Kind == "" || !kindRequested(cfg.Kind, kinds) {
		return false
	}
	if !cfg.IsRunning(now) {
		return false
	}
	if !p.IsNotInFrequency(cfg.ID, cfg.Frequency) {
		return false
	}
	if !p.MatchedEventFrequency(cfg.EventFrequencyConditions) {
		return false
	}
	return InDistributionTarget(cfg.Distribution, p.Properties(cfg.Seed))
}

// Resolve picks exactly one eligible config from the catalog: the one with
// the highest priority, ties broken by the latest start date. Missing
// priority ranks lowest; missing start date loses all ties; remaining ties
// keep the earlier catalog entry. Returns nil when nothing is eligible.
//
// Resolution is deterministic: the same catalog, time, properties, and
// history snapshot always pick the same config.
func Resolve(catalog *models.ExperimentConfigs, kinds []models.ExperimentKind, now time.Time, p Predicates) *models.ExperimentConfig {
	if catalog == nil || len(catalog.Configs) == 0 {
		return nil
	}

	var best *models.ExperimentConfig
	for i := range catalog.Configs {
		cfg := &catalog.Configs[i]
		if !IsEligible(cfg, kinds, now, p) {
			continue
		}
		if best == nil || ranksAbove(cfg, best) {
			best = cfg
		}
	}
	return best
}

func kindRequested(kind models.ExperimentKind, kinds []models.ExperimentKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// ranksAbove reports whether a should replace b as the current best.
// Strict comparison keeps the scan stable: equal configs never replace
// an earlier entry.
func ranksAbove(a, b *models.ExperimentConfig) bool {
	ap, bp := priorityOrLowest(a), priorityOrLowest(b)
	if ap != bp {
		return ap > bp
	}
	switch {
	case a.StartedAt == nil:
		return false
	case b.StartedAt == nil:
		return true
	default:
		return a.StartedAt.After(*b.StartedAt)
	}
}

func priorityOrLowest(cfg *models.ExperimentConfig) int {
	if cfg.Priority == nil {
		return minInt
	}
	return *cfg.Priority
}

const minInt = -int(^uint(0)>>1) - 1
