package alerting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionEvaluate(t *testing.T) {
	tests := []struct {
		name      string
		condition Condition
		value     float64
		want      bool
	}{
		{"greater_than above", GreaterThan(28), 28.1, true},
		{"greater_than equal", GreaterThan(28), 28.0, false},
		{"less_than below", LessThan(18), 17.9, true},
		{"less_than equal", LessThan(18), 18.0, false},
		{"equals exact", Equals(0), 0, true},
		{"equals off", Equals(0), 0.0001, false},
		{"not_equals off", NotEquals(0), 0.0001, true},
		{"not_equals exact", NotEquals(0), 0, false},
		{"range inside", OutsideRange(20, 26), 23, false},
		{"range at bound", OutsideRange(20, 26), 26, false},
		{"range above", OutsideRange(20, 26), 26.1, true},
		{"range below", OutsideRange(20, 26), 19.9, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.condition.Evaluate(tt.value))
		})
	}
}

func TestParseCondition(t *testing.T) {
	c, err := ParseCondition("greater_than", 28, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, GreaterThan(28), c)

	c, err = ParseCondition("range", 0, 20, 26)
	require.NoError(t, err)
	assert.Equal(t, OutsideRange(20, 26), c)

	_, err = ParseCondition("between", 0, 0, 0)
	require.Error(t, err)

	_, err = ParseCondition("range", 0, 26, 20)
	require.Error(t, err)
}

func TestConditionDescribe(t *testing.T) {
	assert.Equal(t, "temperature greater_than 28", GreaterThan(28).Describe("temperature"))
	assert.Equal(t, "temperature range [20, 26]", OutsideRange(20, 26).Describe("temperature"))
}
