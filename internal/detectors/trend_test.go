package detectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/hvacmon/pkg/models"
)

func TestTrendDetectorInsufficientData(t *testing.T) {
	detector := NewTrendDetector(DefaultTrendConfig(), nil)

	now := time.Now()
	for i := 0; i < minSamples-1; i++ {
		detector.Ingest("sensor-1", models.ParamTemperature, 22.0, now)
	}

	isAnomaly, _, details := detector.Detect("sensor-1", models.ParamTemperature)
	assert.False(t, isAnomaly)
	assert.Equal(t, "insufficient_trend_data", details["method"])
}

func TestTrendDetectorStableSeries(t *testing.T) {
	detector := NewTrendDetector(DefaultTrendConfig(), nil)

	now := time.Now()
	for i := 0; i < 20; i++ {
		detector.Ingest("sensor-1", models.ParamTemperature, 22.0, now)
	}

	isAnomaly, _, _ := detector.Detect("sensor-1", models.ParamTemperature)
	assert.False(t, isAnomaly)
}

func TestTrendDetectorSuddenChange(t *testing.T) {
	detector := NewTrendDetector(DefaultTrendConfig(), nil)

	now := time.Now()
	for i := 0; i < 17; i++ {
		detector.Ingest("sensor-1", models.ParamTemperature, 22.0, now)
	}
	for _, value := range []float64{27, 32, 37} {
		detector.Ingest("sensor-1", models.ParamTemperature, value, now)
	}

	isAnomaly, score, details := detector.Detect("sensor-1", models.ParamTemperature)
	assert.True(t, isAnomaly)
	assert.Greater(t, score, 0.0)
	assert.Equal(t, "trend_analysis", details["method"])
	assert.True(t, details["sudden_change"].(bool))
}

func TestTrendDetectorClassify(t *testing.T) {
	tests := []struct {
		name   string
		values func(i int) float64
		want   TrendClass
	}{
		{"flat", func(i int) float64 { return 22.0 }, TrendStable},
		{"slow rise", func(i int) float64 { return 22.0 + 0.2*float64(i) }, TrendRising},
		{"fast rise", func(i int) float64 { return 22.0 + 1.0*float64(i) }, TrendRisingFast},
		{"slow fall", func(i int) float64 { return 22.0 - 0.2*float64(i) }, TrendFalling},
		{"fast fall", func(i int) float64 { return 22.0 - 1.0*float64(i) }, TrendFallingFast},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detector := NewTrendDetector(DefaultTrendConfig(), nil)
			now := time.Now()
			for i := 0; i < 10; i++ {
				detector.Ingest("sensor-1", models.ParamTemperature, tt.values(i), now)
			}
			assert.Equal(t, tt.want, detector.Classify("sensor-1", models.ParamTemperature))
		})
	}
}

func TestTrendDetectorClassifyInsufficientData(t *testing.T) {
	detector := NewTrendDetector(DefaultTrendConfig(), nil)
	detector.Ingest("sensor-1", models.ParamTemperature, 22.0, time.Now())
	assert.Equal(t, TrendUnknown, detector.Classify("sensor-1", models.ParamTemperature))
}

func TestTrendDetectorProcessTracksConfiguredParametersOnly(t *testing.T) {
	detector := NewTrendDetector(TrendConfig{
		WindowSize: 20,
		Parameters: []string{models.ParamTemperature},
	}, nil)

	now := time.Now()
	for i := 0; i < 20; i++ {
		_, err := detector.Process(&models.Reading{
			SensorID:  "sensor-1",
			Timestamp: now,
			Values: map[string]float64{
				models.ParamTemperature: 22.0,
				models.ParamOccupancy:   float64(i * 10),
			},
		})
		require.NoError(t, err)
	}

	// Occupancy swings wildly but is not a tracked parameter.
	assert.Equal(t, TrendUnknown, detector.Classify("sensor-1", models.ParamOccupancy))
}
