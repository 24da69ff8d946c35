package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/hvacmon/internal/alerting"
	"github.com/inferloop/hvacmon/internal/detectors"
	"github.com/inferloop/hvacmon/pkg/models"
)

// Sunday 23:00 UTC, outside work hours.
var quietHours = time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC)

// Wednesday 10:00 UTC, inside work hours.
var busyHours = time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC)

type countingSink struct {
	name     string
	consumed []*ProcessedReading
	fail     bool
}

func (s *countingSink) Name() string { return s.name }

func (s *countingSink) Consume(_ context.Context, processed *ProcessedReading) error {
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.consumed = append(s.consumed, processed)
	return nil
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	logger := logrus.New()

	trend := detectors.NewTrendDetector(detectors.DefaultTrendConfig(), logger)
	coordinator := detectors.NewCoordinator([]detectors.Detector{
		detectors.NewStatisticalDetector(detectors.DefaultStatisticalConfig(), logger),
		trend,
		detectors.NewContextualDetector(detectors.DefaultContextualConfig(), logger),
	}, logger)

	dispatcher := alerting.NewDispatcher(64, logger)
	dispatcher.Register(alerting.NewLogChannel("email", logger))
	store := alerting.NewStore(logger)
	escalator := alerting.NewEscalator(store, dispatcher, nil, 0, logger)
	manager := alerting.NewManager(alerting.NewEngine(alerting.DefaultRuleSet(), logger), store, alerting.NewCorrelator(0), escalator, logger)

	return NewProcessor(coordinator, trend, manager, Config{
		RoomCapacities: map[string]int{"Room 101": 10},
	}, nil, logger)
}

func TestProcessorNormalReading(t *testing.T) {
	processor := newTestProcessor(t)

	processed, err := processor.Process(context.Background(), &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: time.Now(),
		Values: map[string]float64{
			models.ParamTemperature: 22.0,
			models.ParamHumidity:    45.0,
			models.ParamCO2:         450.0,
			models.ParamOccupancy:   1.0,
		},
	})
	require.NoError(t, err)

	assert.False(t, processed.Anomaly.IsAnomaly)
	assert.Empty(t, processed.Alerts)
	assert.Equal(t, 1.0, processed.QualityScore)
	assert.Equal(t, 22.0, processed.FilteredValues[models.ParamTemperature])
	assert.Equal(t, string(detectors.TrendUnknown), processed.TrendIndicators[models.ParamTemperature])
	assert.Empty(t, processed.Recommendations)
	assert.Equal(t, 0, processor.alerts.Store().ActiveCount())
}

func TestProcessorHighTemperatureRaisesAlert(t *testing.T) {
	processor := newTestProcessor(t)

	processed, err := processor.Process(context.Background(), &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: quietHours,
		Values:    map[string]float64{models.ParamTemperature: 30.0},
	})
	require.NoError(t, err)

	require.Len(t, processed.Alerts, 1)
	assert.Equal(t, models.AlertTemperatureHigh, processed.Alerts[0].AlertType)
	assert.Contains(t, processed.Recommendations, "Increase cooling output")
	assert.Equal(t, 1, processor.alerts.Store().ActiveCount())
}

func TestProcessorMaintenanceSilencesEverything(t *testing.T) {
	processor := newTestProcessor(t)
	processor.alerts.Engine().SetMaintenanceMode("s1", time.Hour)

	processed, err := processor.Process(context.Background(), &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: time.Now(),
		Values: map[string]float64{
			models.ParamTemperature: 60.0,
			models.ParamHumidity:    110.0,
		},
	})
	require.NoError(t, err)

	assert.Empty(t, processed.Alerts)
	assert.Equal(t, 0, processor.alerts.Store().ActiveCount())
}

func TestProcessorDataQualityAlert(t *testing.T) {
	processor := newTestProcessor(t)

	processed, err := processor.Process(context.Background(), &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: time.Now(),
		Values: map[string]float64{
			models.ParamTemperature: 60.0,
			models.ParamHumidity:    110.0,
		},
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.25, processed.QualityScore, 1e-9)

	var qualityAlert *models.Alert
	for _, alert := range processed.Alerts {
		if alert.AlertType == models.AlertDataQualityLow {
			qualityAlert = alert
		}
	}
	require.NotNil(t, qualityAlert)
	assert.Equal(t, models.SeverityLow, qualityAlert.Severity)
}

func TestProcessorHighOccupancyRecommendation(t *testing.T) {
	processor := newTestProcessor(t)

	processed, err := processor.Process(context.Background(), &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: busyHours,
		Values: map[string]float64{
			models.ParamTemperature: 22.0,
			models.ParamOccupancy:   9.0,
			models.ParamCO2:         850.0,
		},
	})
	require.NoError(t, err)
	assert.Contains(t, processed.Recommendations, "High occupancy, boost cooling and ventilation")
}

func TestProcessorSinks(t *testing.T) {
	processor := newTestProcessor(t)
	good := &countingSink{name: "influx"}
	bad := &countingSink{name: "redis", fail: true}
	processor.AddSink(good)
	processor.AddSink(bad)

	_, err := processor.Process(context.Background(), &models.Reading{
		SensorID:  "s1",
		Location:  "Room 101",
		Timestamp: time.Now(),
		Values:    map[string]float64{models.ParamTemperature: 22.0},
	})
	require.NoError(t, err)

	// A failing sink is logged and skipped; the healthy one still runs.
	assert.Len(t, good.consumed, 1)
}

func TestProcessorRejectsMalformedReading(t *testing.T) {
	processor := newTestProcessor(t)

	_, err := processor.Process(context.Background(), &models.Reading{
		Timestamp: time.Now(),
		Values:    map[string]float64{models.ParamTemperature: 22.0},
	})
	require.Error(t, err)
}
