package storage

import (
	"context"
	"time"

	"github.com/nubrick/nubrick-go/pkg/models"
)

// IsNotInFrequency reports whether an experiment is outside its frequency
// cap and may be shown. A nil frequency never caps. A frequency without a
// period means the experiment is shown at most once.
func IsNotInFrequency(ctx context.Context, h HistoryStore, experimentID string, freq *models.ExperimentFrequency, now time.Time) (bool, error) {
	if freq == nil {
		return true, nil
	}
	last, seen, err := h.LastExperimentSeen(ctx, experimentID)
	if err != nil {
		return false, err
	}
	if !seen {
		return true, nil
	}
	period, ok := freq.PeriodDuration()
	if !ok {
		return false, nil
	}
	return now.Sub(last) >= period, nil
}

// MatchedEventFrequency reports whether all event-frequency conditions are
// satisfied by recorded event counts. Vacuously true for no conditions.
func MatchedEventFrequency(ctx context.Context, h HistoryStore, conds []models.UserEventFrequencyCondition, now time.Time) (bool, error) {
	for _, cond := range conds {
		ok, err := matchedEventFrequencyCondition(ctx, h, cond, now)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchedEventFrequencyCondition(ctx context.Context, h HistoryStore, cond models.UserEventFrequencyCondition, now time.Time) (bool, error) {
	if cond.EventName == "" {
		return false, nil
	}
	var since time.Time
	if cond.LookbackPeriod != nil {
		since = now.Add(-time.Duration(*cond.LookbackPeriod) * time.Second)
	}
	count, err := h.CountUserEvents(ctx, cond.EventName, since)
	if err != nil {
		return false, err
	}

	threshold := 1
	if cond.Threshold != nil {
		threshold = *cond.Threshold
	}
	switch cond.Operator {
	case models.OperatorEqual:
		return count == threshold, nil
	case models.OperatorNotEqual:
		return count != threshold, nil
	case models.OperatorGreaterThan:
		return count > threshold, nil
	case models.OperatorLessThan:
		return count < threshold, nil
	case models.OperatorLessThanOrEqual:
		return count <= threshold, nil
	default:
		// GreaterThanOrEqual is the default comparison.
		return count >= threshold, nil
	}
}
