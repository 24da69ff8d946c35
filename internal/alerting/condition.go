package alerting

import (
	"fmt"

	"github.com/inferloop/hvacmon/pkg/errors"
)

// ConditionKind enumerates the supported rule comparisons.
type ConditionKind string

const (
	ConditionGreaterThan ConditionKind = "greater_than"
	ConditionLessThan    ConditionKind = "less_than"
	ConditionEquals      ConditionKind = "equals"
	ConditionNotEquals   ConditionKind = "not_equals"
	ConditionRange       ConditionKind = "range"
)

// Condition is a tagged comparison validated at construction, so rule
// evaluation never sees an unknown condition string. Threshold carries the
// scalar kinds; Min/Max carry range.
type Condition struct {
	Kind      ConditionKind `json:"condition"`
	Threshold float64       `json:"threshold,omitempty"`
	Min       float64       `json:"min,omitempty"`
	Max       float64       `json:"max,omitempty"`
}

// GreaterThan triggers when the value exceeds the threshold.
func GreaterThan(threshold float64) Condition {
	return Condition{Kind: ConditionGreaterThan, Threshold: threshold}
}

// LessThan triggers when the value is below the threshold.
func LessThan(threshold float64) Condition {
	return Condition{Kind: ConditionLessThan, Threshold: threshold}
}

// Equals triggers on exact equality with the threshold.
func Equals(threshold float64) Condition {
	return Condition{Kind: ConditionEquals, Threshold: threshold}
}

// NotEquals triggers on exact inequality with the threshold.
func NotEquals(threshold float64) Condition {
	return Condition{Kind: ConditionNotEquals, Threshold: threshold}
}

// OutsideRange triggers when the value leaves [min, max].
func OutsideRange(min, max float64) Condition {
	return Condition{Kind: ConditionRange, Min: min, Max: max}
}

// ParseCondition builds a Condition from configuration fields, rejecting
// unknown kinds and inverted ranges.
func ParseCondition(kind string, threshold, min, max float64) (Condition, error) {
	switch ConditionKind(kind) {
	case ConditionGreaterThan:
		return GreaterThan(threshold), nil
	case ConditionLessThan:
		return LessThan(threshold), nil
	case ConditionEquals:
		return Equals(threshold), nil
	case ConditionNotEquals:
		return NotEquals(threshold), nil
	case ConditionRange:
		if min > max {
			return Condition{}, errors.NewValidationError(errors.CodeInvalidThreshold,
				fmt.Sprintf("range condition has min %v above max %v", min, max))
		}
		return OutsideRange(min, max), nil
	default:
		return Condition{}, errors.NewValidationError(errors.CodeInvalidCondition,
			"unknown rule condition: "+kind)
	}
}

// Evaluate reports whether the value trips the condition. Equality kinds use
// exact comparison, matching how thresholds are configured in practice.
func (c Condition) Evaluate(value float64) bool {
	switch c.Kind {
	case ConditionGreaterThan:
		return value > c.Threshold
	case ConditionLessThan:
		return value < c.Threshold
	case ConditionEquals:
		return value == c.Threshold
	case ConditionNotEquals:
		return value != c.Threshold
	case ConditionRange:
		return value < c.Min || value > c.Max
	default:
		return false
	}
}

// ThresholdString renders the threshold for messages and audit fields.
func (c Condition) ThresholdString() string {
	if c.Kind == ConditionRange {
		return fmt.Sprintf("[%v, %v]", c.Min, c.Max)
	}
	return fmt.Sprintf("%v", c.Threshold)
}

// Describe renders the violated condition, e.g. "temperature greater_than 28".
func (c Condition) Describe(parameter string) string {
	return fmt.Sprintf("%s %s %s", parameter, c.Kind, c.ThresholdString())
}
