// Package experiment implements the pure decision core: targeting rule
// evaluation, catalog resolution, and weighted variant selection.
package experiment

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nubrick/nubrick-go/pkg/models"
)

// InDistributionTarget reports whether the user's properties satisfy every
// condition of a config's distribution. An empty distribution targets
// everyone. A condition missing its property, operator, or value, naming a
// property the user does not have, or using an unknown operator never
// matches, so it excludes the config.
func InDistributionTarget(distribution []models.ExperimentCondition, properties []models.UserProperty) bool {
	if len(distribution) == 0 {
		return true
	}
	byName := make(map[string]models.UserProperty, len(properties))
	for _, p := range properties {
		byName[p.Name] = p
	}
	for _, cond := range distribution {
		if cond.Property == "" || cond.Operator == "" || cond.Value == "" {
			return false
		}
		prop, ok := byName[cond.Property]
		if !ok {
			return false
		}
		if !matchCondition(prop, cond) {
			return false
		}
	}
	return true
}

func matchCondition(prop models.UserProperty, cond models.ExperimentCondition) bool {
	typ := cond.AsType
	if typ == "" {
		typ = prop.Type
	}
	if typ == "" {
		typ = models.UserPropertyTypeString
	}

	switch cond.Operator {
	case models.OperatorEqual:
		return compareTyped(prop.Value, cond.Value, typ) == 0
	case models.OperatorNotEqual:
		return compareTyped(prop.Value, cond.Value, typ) != 0
	case models.OperatorGreaterThan:
		return compareTyped(prop.Value, cond.Value, typ) > 0
	case models.OperatorGreaterThanOrEqual:
		return compareTyped(prop.Value, cond.Value, typ) >= 0
	case models.OperatorLessThan:
		return compareTyped(prop.Value, cond.Value, typ) < 0
	case models.OperatorLessThanOrEqual:
		return compareTyped(prop.Value, cond.Value, typ) <= 0
	case models.OperatorIn:
		return containsValue(cond.Value, prop.Value)
	case models.OperatorNotIn:
		return !containsValue(cond.Value, prop.Value)
	case models.OperatorBetween:
		bounds := splitValues(cond.Value)
		if len(bounds) != 2 {
			return false
		}
		return compareTyped(prop.Value, bounds[0], typ) >= 0 &&
			compareTyped(prop.Value, bounds[1], typ) <= 0
	case models.OperatorRegex:
		matched, err := regexp.MatchString(cond.Value, prop.Value)
		return err == nil && matched
	default:
		return false
	}
}

// splitValues splits a multi-valued condition value on commas.
func splitValues(value string) []string {
	parts := strings.Split(value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func containsValue(listValue, propValue string) bool {
	for _, v := range splitValues(listValue) {
		if v == propValue {
			return true
		}
	}
	return false
}

// compareTyped compares a property value against a condition value under
// the declared type, falling back to string comparison when either side
// fails to parse.
func compareTyped(propValue, condValue string, typ models.UserPropertyType) int {
	switch typ {
	case models.UserPropertyTypeInteger:
		a, errA := strconv.ParseInt(propValue, 10, 64)
		b, errB := strconv.ParseInt(condValue, 10, 64)
		if errA == nil && errB == nil {
			return compareOrdered(a, b)
		}
	case models.UserPropertyTypeDouble:
		a, errA := strconv.ParseFloat(propValue, 64)
		b, errB := strconv.ParseFloat(condValue, 64)
		if errA == nil && errB == nil {
			return compareOrdered(a, b)
		}
	case models.UserPropertyTypeTimestampz:
		a, errA := time.Parse(time.RFC3339, propValue)
		b, errB := time.Parse(time.RFC3339, condValue)
		if errA == nil && errB == nil {
			return a.Compare(b)
		}
	case models.UserPropertyTypeSemver:
		return compareSemver(propValue, condValue)
	}
	return strings.Compare(propValue, condValue)
}

func compareOrdered[T int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareSemver compares dotted numeric versions segment by segment.
// A missing segment counts as zero, so "1.2" equals "1.2.0".
func compareSemver(a, b string) int {
	as := strings.Split(a, ".")
	bs := strings.Split(b, ".")
	n := len(as)
	if len(bs) > n {
		n = len(bs)
	}
	for i := 0; i < n; i++ {
		av, bv := 0, 0
		if i < len(as) {
			av, _ = strconv.Atoi(as[i])
		}
		if i < len(bs) {
			bv, _ = strconv.Atoi(bs[i])
		}
		if av != bv {
			return compareOrdered(int64(av), int64(bv))
		}
	}
	return 0
}
