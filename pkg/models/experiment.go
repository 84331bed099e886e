// Package models provides the wire-level domain types for the Nubrick SDK.
package models

import (
	"time"
)

// ExperimentKind categorizes how a config's content is delivered.
type ExperimentKind string

const (
	// ExperimentKindEmbed is content embedded into a host view by id.
	ExperimentKindEmbed ExperimentKind = "EMBED"
	// ExperimentKindPopup is content presented as a modal overlay.
	ExperimentKindPopup ExperimentKind = "POPUP"
	// ExperimentKindTooltip is content anchored to a host element.
	ExperimentKindTooltip ExperimentKind = "TOOLTIP"
	// ExperimentKindConfig is a remote configuration value, never rendered.
	ExperimentKindConfig ExperimentKind = "CONFIG"
)

// ExperimentConfigs is the catalog payload fetched from the CDN.
type ExperimentConfigs struct {
	Configs []ExperimentConfig `json:"configs,omitempty"`
}

// ExperimentConfig is one targeting rule plus its candidate variants.
// Immutable once fetched; identified by ID.
type ExperimentConfig struct {
	ID        string         `json:"id,omitempty"`
	Kind      ExperimentKind `json:"kind,omitempty"`
	StartedAt *time.Time     `json:"startedAt,omitempty"`
	EndedAt   *time.Time     `json:"endedAt,omitempty"`

	// Priority ranks eligible configs; missing ranks lowest.
	Priority *int `json:"priority,omitempty"`

	// Seed reseeds the per-user random value and user properties, so a
	// config can re-roll its bucketing independently of other configs.
	Seed *int `json:"seed,omitempty"`

	Frequency                *ExperimentFrequency          `json:"frequency,omitempty"`
	EventFrequencyConditions []UserEventFrequencyCondition `json:"eventFrequencyConditions,omitempty"`

	// Distribution is the set of targeting conditions. Empty means the
	// config targets everyone.
	Distribution []ExperimentCondition `json:"distribution,omitempty"`

	Baseline *ExperimentVariant  `json:"baseline,omitempty"`
	Variants []ExperimentVariant `json:"variants,omitempty"`
}

// IsRunning reports whether now falls within the config's time window.
// Open-ended bounds are treated as unbounded.
func (c *ExperimentConfig) IsRunning(now time.Time) bool {
	if c.StartedAt != nil && now.Before(*c.StartedAt) {
		return false
	}
	if c.EndedAt != nil && now.After(*c.EndedAt) {
		return false
	}
	return true
}

// ExperimentVariant is one concrete payload a user may be shown.
type ExperimentVariant struct {
	ID string `json:"id,omitempty"`

	// Weight is the relative selection weight; missing defaults to 1.
	Weight *int `json:"weight,omitempty"`

	Configs []VariantConfig `json:"configs,omitempty"`
}

// WeightOrDefault returns the variant's weight, defaulting to 1.
func (v *ExperimentVariant) WeightOrDefault() int {
	if v.Weight == nil {
		return 1
	}
	return *v.Weight
}

// ComponentID returns the renderable component referenced by the variant:
// the value of the first config entry. Empty when the variant carries none.
func (v *ExperimentVariant) ComponentID() string {
	if len(v.Configs) == 0 {
		return ""
	}
	return v.Configs[0].Value
}

// ConfigValue returns the value stored under key, for remote-config variants.
func (v *ExperimentVariant) ConfigValue(key string) (string, bool) {
	for _, c := range v.Configs {
		if c.Key == key {
			return c.Value, true
		}
	}
	return "", false
}

// VariantConfig is a key/value entry of a variant payload.
type VariantConfig struct {
	Key   string `json:"key,omitempty"`
	Value string `json:"value,omitempty"`
}

// ConditionOperator compares a user property against a condition value.
type ConditionOperator string

const (
	OperatorEqual              ConditionOperator = "Equal"
	OperatorNotEqual           ConditionOperator = "NotEqual"
	OperatorGreaterThan        ConditionOperator = "GreaterThan"
	OperatorGreaterThanOrEqual ConditionOperator = "GreaterThanOrEqual"
	OperatorLessThan           ConditionOperator = "LessThan"
	OperatorLessThanOrEqual    ConditionOperator = "LessThanOrEqual"
	OperatorIn                 ConditionOperator = "In"
	OperatorNotIn              ConditionOperator = "NotIn"
	OperatorBetween            ConditionOperator = "Between"
	OperatorRegex              ConditionOperator = "Regex"
)

// ExperimentCondition is a single targeting predicate over a named user
// property. A condition missing its property, operator, or value never
// matches and therefore excludes the config.
type ExperimentCondition struct {
	Property string            `json:"property,omitempty"`
	Operator ConditionOperator `json:"operator,omitempty"`
	Value    string            `json:"value,omitempty"`
	AsType   UserPropertyType  `json:"asType,omitempty"`
}

// FrequencyUnit scales an ExperimentFrequency period.
type FrequencyUnit string

const (
	FrequencyUnitMinute FrequencyUnit = "MINUTE"
	FrequencyUnitHour   FrequencyUnit = "HOUR"
	FrequencyUnitDay    FrequencyUnit = "DAY"
)

// ExperimentFrequency caps how often an experiment may be re-shown to the
// same user. A missing period means the experiment is shown at most once.
type ExperimentFrequency struct {
	Period *int          `json:"period,omitempty"`
	Unit   FrequencyUnit `json:"unit,omitempty"`
}

// PeriodDuration returns the cooldown window, or (0, false) for the
// at-most-once cap.
func (f *ExperimentFrequency) PeriodDuration() (time.Duration, bool) {
	if f.Period == nil {
		return 0, false
	}
	unit := time.Duration(24) * time.Hour
	switch f.Unit {
	case FrequencyUnitMinute:
		unit = time.Minute
	case FrequencyUnitHour:
		unit = time.Hour
	}
	return time.Duration(*f.Period) * unit, true
}

// UserEventFrequencyCondition gates a config on how often a named user
// event has been recorded, optionally inside a lookback window.
type UserEventFrequencyCondition struct {
	EventName string `json:"eventName,omitempty"`

	// LookbackPeriod bounds the count window in seconds; missing counts
	// the whole history.
	LookbackPeriod *int `json:"lookbackPeriod,omitempty"`

	Threshold *int              `json:"threshold,omitempty"`
	Operator  ConditionOperator `json:"operator,omitempty"`
}
