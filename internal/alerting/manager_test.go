package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/hvacmon/pkg/models"
)

func newTestManager(t *testing.T) (*Manager, *captureChannel) {
	t.Helper()
	email := &captureChannel{name: "email"}
	dispatcher := NewDispatcher(64, nil)
	dispatcher.Register(email)

	store := NewStore(nil)
	escalator := NewEscalator(store, dispatcher, nil, 0, nil)
	return NewManager(NewEngine(DefaultRuleSet(), nil), store, NewCorrelator(0), escalator, nil), email
}

func TestManagerProcessReadingRaisesAndStores(t *testing.T) {
	manager, _ := newTestManager(t)

	raised := manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 30.0}, "Room 101", time.Now())
	require.Len(t, raised, 1)
	assert.Equal(t, models.AlertTemperatureHigh, raised[0].AlertType)
	assert.Equal(t, 1, manager.Store().ActiveCount())
}

func TestManagerMaintenanceProducesNothing(t *testing.T) {
	manager, _ := newTestManager(t)
	manager.Engine().SetMaintenanceMode("s1", time.Hour)

	raised := manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 40.0}, "Room 101", time.Now())
	assert.Empty(t, raised)
	assert.Equal(t, 0, manager.Store().ActiveCount())

	// Anomaly-driven alerts are silenced too.
	alert := manager.RaiseFromAnomaly(&models.AnomalyResult{
		SensorID:         "s1",
		Timestamp:        time.Now(),
		IsAnomaly:        true,
		OverallScore:     0.9,
		DetectionMethods: []string{models.MethodStatistical},
	}, map[string]float64{models.ParamTemperature: 40.0}, "Room 101")
	assert.Nil(t, alert)
}

func TestManagerCorrelatesRelatedAlerts(t *testing.T) {
	manager, _ := newTestManager(t)
	now := time.Now()

	humidity := manager.ProcessReading("s1", map[string]float64{models.ParamHumidity: 80.0}, "Room 101", now)
	require.Len(t, humidity, 1)

	temperature := manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 30.0}, "Room 101", now.Add(time.Minute))
	require.Len(t, temperature, 1)

	// Both alerts share a correlation id and reference each other.
	tempAlert, err := manager.Store().Get(temperature[0].AlertID)
	require.NoError(t, err)
	humAlert, err := manager.Store().Get(humidity[0].AlertID)
	require.NoError(t, err)

	require.NotEmpty(t, tempAlert.CorrelationID)
	assert.Equal(t, tempAlert.CorrelationID, humAlert.CorrelationID)
	assert.Contains(t, tempAlert.RelatedAlertIDs, humAlert.AlertID)
	assert.Contains(t, humAlert.RelatedAlertIDs, tempAlert.AlertID)
}

func TestManagerCorrelationReusesExistingGroup(t *testing.T) {
	manager, _ := newTestManager(t)
	now := time.Now()

	first := manager.ProcessReading("s1", map[string]float64{models.ParamHumidity: 80.0}, "Room 101", now)
	require.Len(t, first, 1)
	second := manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 30.0}, "Room 101", now.Add(time.Minute))
	require.Len(t, second, 1)

	groupID, err := manager.Store().Get(second[0].AlertID)
	require.NoError(t, err)

	// A third related alert joins the existing group instead of minting a
	// new correlation id.
	third := manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 35.0}, "Room 101", now.Add(6*time.Minute))
	require.NotEmpty(t, third)
	joined, err := manager.Store().Get(third[0].AlertID)
	require.NoError(t, err)
	assert.Equal(t, groupID.CorrelationID, joined.CorrelationID)
}

func TestManagerRaiseFromAnomaly(t *testing.T) {
	manager, _ := newTestManager(t)

	values := map[string]float64{models.ParamTemperature: 45.0}
	result := &models.AnomalyResult{
		SensorID:         "s1",
		Timestamp:        time.Now(),
		IsAnomaly:        true,
		OverallScore:     0.85,
		DetectionMethods: []string{models.MethodStatistical, models.MethodTrend},
	}

	alert := manager.RaiseFromAnomaly(result, values, "Room 101")
	require.NotNil(t, alert)
	assert.Equal(t, models.AlertAnomalyDetected, alert.AlertType)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	assert.Equal(t, 1, manager.Store().ActiveCount())

	// A weak consensus stays below the alerting bar.
	weak := manager.RaiseFromAnomaly(&models.AnomalyResult{
		SensorID:     "s2",
		Timestamp:    time.Now(),
		IsAnomaly:    true,
		OverallScore: 0.5,
	}, values, "Room 101")
	assert.Nil(t, weak)
}

func TestManagerAnomalyAlertCooldown(t *testing.T) {
	manager, _ := newTestManager(t)

	now := time.Now()
	values := map[string]float64{models.ParamTemperature: 45.0}
	result := func(ts time.Time) *models.AnomalyResult {
		return &models.AnomalyResult{
			SensorID:         "s1",
			Timestamp:        ts,
			IsAnomaly:        true,
			OverallScore:     0.9,
			DetectionMethods: []string{models.MethodStatistical},
		}
	}

	// A persistently anomalous sensor raises one alert, not one per reading.
	require.NotNil(t, manager.RaiseFromAnomaly(result(now), values, "Room 101"))
	assert.Nil(t, manager.RaiseFromAnomaly(result(now.Add(time.Second)), values, "Room 101"))
	assert.Equal(t, 1, manager.Store().ActiveCount())

	// Other sensors have their own cooldown clock.
	other := result(now)
	other.SensorID = "s2"
	require.NotNil(t, manager.RaiseFromAnomaly(other, values, "Room 102"))

	// Past the cooldown the sensor may alert again.
	assert.NotNil(t, manager.RaiseFromAnomaly(result(now.Add(defaultCooldown)), values, "Room 101"))
	assert.Equal(t, 3, manager.Store().ActiveCount())
}

func TestManagerSummary(t *testing.T) {
	manager, _ := newTestManager(t)
	now := time.Now()

	manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 30.0}, "Room 101", now)
	manager.ProcessReading("s2", map[string]float64{models.ParamCO2: 1600.0}, "Room 102", now)
	manager.Engine().SetMaintenanceMode("s3", time.Hour)

	summary := manager.Summary()
	// CO2 at 1600 trips both the 1000 and 1500 ppm rules.
	assert.Equal(t, 3, summary.ActiveTotal)
	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 1, summary.InMaintenance)
	assert.Equal(t, 8, summary.TotalRules)
	assert.Equal(t, 8, summary.EnabledRules)
	assert.Equal(t, 1, summary.ActiveBySeverity[string(models.SeverityHigh)])
}

func TestManagerInitialNotifications(t *testing.T) {
	manager, email := newTestManager(t)

	manager.ProcessReading("s1", map[string]float64{models.ParamTemperature: 30.0}, "Room 101", time.Now())

	// Dispatch is asynchronous; without a running worker the request sits
	// in the queue rather than blocking the pipeline.
	assert.Equal(t, 0, email.count())
}
