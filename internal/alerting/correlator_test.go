package alerting

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/hvacmon/pkg/models"
)

func correlationAlert(sensorID, location string, alertType models.AlertType, ts time.Time) *models.Alert {
	return &models.Alert{
		AlertID:   uuid.NewString(),
		SensorID:  sensorID,
		Location:  location,
		AlertType: alertType,
		Severity:  models.SeverityMedium,
		Status:    models.StatusActive,
		Timestamp: ts,
	}
}

func TestCorrelatorTemperatureHumiditySameSensor(t *testing.T) {
	correlator := NewCorrelator(0)
	now := time.Now()

	humidity := correlationAlert("s1", "Room 101", models.AlertHumidityHigh, now.Add(-time.Minute))
	otherSensor := correlationAlert("s2", "Room 101", models.AlertHumidityHigh, now.Add(-time.Minute))
	temperature := correlationAlert("s1", "Room 101", models.AlertTemperatureHigh, now)

	related := correlator.Correlate(temperature, []*models.Alert{humidity, otherSensor})
	require.Len(t, related, 1)
	assert.Equal(t, humidity.AlertID, related[0].AlertID)
}

func TestCorrelatorCO2OccupancySameLocation(t *testing.T) {
	correlator := NewCorrelator(0)
	now := time.Now()

	occupancy := correlationAlert("s2", "Room 101", models.AlertOccupancyAnomaly, now.Add(-time.Minute))
	elsewhere := correlationAlert("s3", "Room 102", models.AlertOccupancyAnomaly, now.Add(-time.Minute))
	co2 := correlationAlert("s1", "Room 101", models.AlertCO2High, now)

	related := correlator.Correlate(co2, []*models.Alert{occupancy, elsewhere})
	require.Len(t, related, 1)
	assert.Equal(t, occupancy.AlertID, related[0].AlertID)
}

func TestCorrelatorSystemWidePairsAcrossSensors(t *testing.T) {
	correlator := NewCorrelator(0)
	now := time.Now()

	offline := correlationAlert("s9", "Basement", models.AlertSensorOffline, now.Add(-5*time.Minute))
	quality := correlationAlert("s1", "Room 101", models.AlertDataQualityLow, now)

	related := correlator.Correlate(quality, []*models.Alert{offline})
	require.Len(t, related, 1)
}

func TestCorrelatorWindowAndResolvedExclusions(t *testing.T) {
	correlator := NewCorrelator(10 * time.Minute)
	now := time.Now()

	stale := correlationAlert("s1", "Room 101", models.AlertHumidityHigh, now.Add(-11*time.Minute))
	resolvedAt := now.Add(-time.Minute)
	resolved := correlationAlert("s1", "Room 101", models.AlertHumidityHigh, now.Add(-time.Minute))
	resolved.ResolvedAt = &resolvedAt
	temperature := correlationAlert("s1", "Room 101", models.AlertTemperatureHigh, now)

	related := correlator.Correlate(temperature, []*models.Alert{stale, resolved})
	assert.Empty(t, related)
}

func TestCorrelatorUnrelatedTypes(t *testing.T) {
	correlator := NewCorrelator(0)
	now := time.Now()

	co2 := correlationAlert("s1", "Room 101", models.AlertCO2High, now.Add(-time.Minute))
	temperature := correlationAlert("s1", "Room 101", models.AlertTemperatureHigh, now)

	assert.Empty(t, correlator.Correlate(temperature, []*models.Alert{co2}))
}

func TestSharedCorrelationID(t *testing.T) {
	now := time.Now()
	a := correlationAlert("s1", "Room 101", models.AlertHumidityHigh, now)
	b := correlationAlert("s1", "Room 101", models.AlertHumidityLow, now)

	fresh := uuid.NewString()
	assert.Equal(t, fresh, SharedCorrelationID([]*models.Alert{a, b}, fresh))

	b.CorrelationID = "existing-group"
	assert.Equal(t, "existing-group", SharedCorrelationID([]*models.Alert{a, b}, fresh))
}
