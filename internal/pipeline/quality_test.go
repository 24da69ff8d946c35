package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/inferloop/hvacmon/pkg/models"
)

func qualityReading(values map[string]float64, ts time.Time) *models.Reading {
	return &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: ts,
		Values:    values,
	}
}

func TestQualityPerfectReading(t *testing.T) {
	assessor := NewQualityAssessor()
	reading := qualityReading(map[string]float64{
		models.ParamTemperature: 22,
		models.ParamHumidity:    45,
		models.ParamCO2:         450,
		models.ParamOccupancy:   2,
	}, time.Now())

	assert.Equal(t, 1.0, assessor.Assess(reading, nil))
}

func TestQualityOutOfRangeValues(t *testing.T) {
	assessor := NewQualityAssessor()
	now := time.Now()

	tests := []struct {
		name   string
		values map[string]float64
		want   float64
	}{
		{"temperature too high", map[string]float64{models.ParamTemperature: 60}, 0.5},
		{"temperature too low", map[string]float64{models.ParamTemperature: -30}, 0.5},
		{"humidity over 100", map[string]float64{models.ParamHumidity: 110}, 0.5},
		{"co2 below ambient floor", map[string]float64{models.ParamCO2: 100}, 0.5},
		{"negative occupancy", map[string]float64{models.ParamOccupancy: -1}, 0.7},
		{"two defects compound", map[string]float64{
			models.ParamTemperature: 60,
			models.ParamHumidity:    110,
		}, 0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score := assessor.Assess(qualityReading(tt.values, now), nil)
			assert.InDelta(t, tt.want, score, 1e-9)
		})
	}
}

func TestQualityStaleTimestamp(t *testing.T) {
	assessor := NewQualityAssessor()
	reading := qualityReading(map[string]float64{models.ParamTemperature: 22}, time.Now().Add(-11*time.Minute))
	assert.InDelta(t, 0.7, assessor.Assess(reading, nil), 1e-9)

	fresh := qualityReading(map[string]float64{models.ParamTemperature: 22}, time.Now().Add(-time.Minute))
	assert.Equal(t, 1.0, assessor.Assess(fresh, nil))
}

func TestQualityConsistencyWithHistory(t *testing.T) {
	assessor := NewQualityAssessor()
	now := time.Now()

	// Recent history hovers around 22 with max deviation 0.5; a jump to 30
	// exceeds three times that spread.
	history := map[string][]float64{
		models.ParamTemperature: {21.5, 22.0, 22.5},
	}
	jumpy := qualityReading(map[string]float64{models.ParamTemperature: 30}, now)
	assert.InDelta(t, 0.8, assessor.Assess(jumpy, history), 1e-9)

	steady := qualityReading(map[string]float64{models.ParamTemperature: 22.4}, now)
	assert.Equal(t, 1.0, assessor.Assess(steady, history))

	// Fewer than three historical samples skip the consistency check.
	short := map[string][]float64{models.ParamTemperature: {22.0, 22.5}}
	assert.Equal(t, 1.0, assessor.Assess(jumpy, short))
}
