package alerting

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/hvacmon/pkg/models"
)

func TestDefaultRuleSet(t *testing.T) {
	rules := DefaultRuleSet()
	byID := make(map[string]*Rule, len(rules))
	for _, r := range rules {
		byID[r.ID] = r
	}
	require.Len(t, byID, 8)

	assert.Equal(t, GreaterThan(28.0), byID["temp_high"].Condition)
	assert.Equal(t, models.SeverityMedium, byID["temp_high"].Severity)
	assert.Equal(t, GreaterThan(32.0), byID["temp_critical_high"].Condition)
	assert.Equal(t, models.SeverityCritical, byID["temp_critical_high"].Severity)
	assert.Equal(t, LessThan(18.0), byID["temp_low"].Condition)
	assert.Equal(t, LessThan(15.0), byID["temp_critical_low"].Condition)
	assert.Equal(t, GreaterThan(70.0), byID["humidity_high"].Condition)
	assert.Equal(t, LessThan(30.0), byID["humidity_low"].Condition)
	assert.Equal(t, GreaterThan(1000.0), byID["co2_high"].Condition)
	assert.Equal(t, GreaterThan(1500.0), byID["co2_critical"].Condition)
	assert.Equal(t, models.SeverityHigh, byID["co2_critical"].Severity)

	for _, r := range rules {
		assert.True(t, r.Enabled, "rule %s should default to enabled", r.ID)
		assert.Equal(t, defaultCooldown, r.Cooldown)
	}
}

func TestEngineStartsWithOnlyGivenRules(t *testing.T) {
	engine := NewEngine(nil, nil)

	enabled, total := engine.RuleCounts()
	assert.Equal(t, 0, enabled)
	assert.Equal(t, 0, total)

	alerts := engine.EvaluateAll("s1", map[string]float64{models.ParamTemperature: 45.0}, "Room 101", time.Now())
	assert.Empty(t, alerts)
}

func TestEngineHighTemperatureScenario(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)

	alerts := engine.EvaluateAll("s1", map[string]float64{models.ParamTemperature: 30.0}, "Room 101", time.Now())
	require.Len(t, alerts, 1)

	alert := alerts[0]
	assert.Equal(t, models.AlertTemperatureHigh, alert.AlertType)
	assert.Equal(t, models.SeverityMedium, alert.Severity)
	assert.Equal(t, models.StatusActive, alert.Status)
	assert.Equal(t, 0, alert.EscalationLevel)
	assert.Equal(t, "Temperature 30.0°C exceeds threshold 28°C at Room 101", alert.Message)
	assert.Equal(t, "temperature greater_than 28", alert.ThresholdViolated)
	assert.Equal(t, []string{"temperature", "medium"}, alert.Tags)
	assert.Equal(t, map[string]float64{models.ParamTemperature: 30.0}, alert.Values)
}

func TestEngineCriticalTemperatureTriggersBothRules(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)

	alerts := engine.EvaluateAll("s1", map[string]float64{models.ParamTemperature: 35.0}, "Room 101", time.Now())
	require.Len(t, alerts, 2)

	types := []models.AlertType{alerts[0].AlertType, alerts[1].AlertType}
	assert.Contains(t, types, models.AlertTemperatureHigh)
	assert.Contains(t, types, models.AlertTemperatureCriticalHigh)
	for _, alert := range alerts {
		if alert.AlertType == models.AlertTemperatureCriticalHigh {
			assert.Equal(t, models.SeverityCritical, alert.Severity)
		}
	}
}

func TestEngineCooldownSuppressesRetrigger(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)
	values := map[string]float64{models.ParamTemperature: 30.0}
	base := time.Now()

	first := engine.EvaluateAll("s1", values, "Room 101", base)
	require.Len(t, first, 1)

	// Rapid re-trigger within the cooldown window yields nothing...
	for _, offset := range []time.Duration{time.Second, time.Minute, 4 * time.Minute} {
		again := engine.EvaluateAll("s1", values, "Room 101", base.Add(offset))
		assert.Empty(t, again, "re-trigger after %v should be suppressed", offset)
	}

	// ...but another sensor has its own cooldown state.
	other := engine.EvaluateAll("s2", values, "Room 102", base.Add(time.Second))
	assert.Len(t, other, 1)

	// Past the cooldown the rule fires again.
	after := engine.EvaluateAll("s1", values, "Room 101", base.Add(defaultCooldown))
	assert.Len(t, after, 1)
}

func TestEngineMaintenanceModeSilencesSensor(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)
	engine.SetMaintenanceMode("s1", time.Hour)

	alerts := engine.EvaluateAll("s1", map[string]float64{models.ParamTemperature: 40.0}, "Room 101", time.Now())
	assert.Empty(t, alerts)
	assert.True(t, engine.IsInMaintenance("s1"))
	assert.Equal(t, 1, engine.MaintenanceCount())

	// Other sensors are unaffected.
	alerts = engine.EvaluateAll("s2", map[string]float64{models.ParamTemperature: 40.0}, "Room 102", time.Now())
	assert.NotEmpty(t, alerts)

	engine.ClearMaintenanceMode("s1")
	assert.False(t, engine.IsInMaintenance("s1"))
	alerts = engine.EvaluateAll("s1", map[string]float64{models.ParamTemperature: 40.0}, "Room 101", time.Now().Add(defaultCooldown))
	assert.NotEmpty(t, alerts)
}

func TestEngineMaintenanceGauge(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)
	recorder := newRecorderMetrics()
	engine.SetMetrics(recorder)

	engine.SetMaintenanceMode("s1", time.Hour)
	engine.SetMaintenanceMode("s2", time.Hour)
	assert.Equal(t, 2.0, recorder.maintenance)

	engine.ClearMaintenanceMode("s1")
	assert.Equal(t, 1.0, recorder.maintenance)
}

func TestEngineMaintenanceModeExpires(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)
	engine.SetMaintenanceMode("s1", -time.Minute)

	assert.False(t, engine.IsInMaintenance("s1"))
	assert.Equal(t, 0, engine.MaintenanceCount())
}

func TestEngineDisableAndRemoveRules(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)
	values := map[string]float64{models.ParamCO2: 1200.0}

	require.NoError(t, engine.DisableRule("co2_high"))
	alerts := engine.EvaluateAll("s1", values, "Room 101", time.Now())
	assert.Empty(t, alerts)

	require.NoError(t, engine.EnableRule("co2_high"))
	alerts = engine.EvaluateAll("s1", values, "Room 101", time.Now())
	assert.Len(t, alerts, 1)

	require.NoError(t, engine.RemoveRule("co2_high"))
	assert.Error(t, engine.RemoveRule("co2_high"))
	assert.Error(t, engine.EnableRule("co2_high"))

	enabled, total := engine.RuleCounts()
	assert.Equal(t, 7, total)
	assert.Equal(t, 7, enabled)
}

func TestEngineImportRules(t *testing.T) {
	engine := NewEngine(DefaultRuleSet(), nil)
	enabledFalse := false

	imported, err := engine.ImportRules([]RuleConfig{
		{
			ID:                "pressure_range",
			Name:              "Pressure Out Of Range",
			Parameter:         "pressure",
			Condition:         "range",
			Min:               980,
			Max:               1050,
			Severity:          "HIGH",
			AlertType:         string(models.AlertPressureAnomaly),
			MessageTemplate:   "Pressure {value:.1f} hPa out of range at {location}",
			RecommendedAction: "Inspect duct static pressure sensors",
			CooldownMinutes:   10,
			EscalationMinutes: 20,
		},
		{
			ID:        "disabled_rule",
			Name:      "Disabled",
			Parameter: "co2",
			Condition: "greater_than",
			Threshold: 900,
			Severity:  "LOW",
			AlertType: string(models.AlertCO2High),
			Enabled:   &enabledFalse,
		},
		{
			ID:        "bad_rule",
			Name:      "Bad",
			Parameter: "co2",
			Condition: "approximately",
			Severity:  "LOW",
		},
	})
	require.Error(t, err)
	assert.Equal(t, 2, imported)

	alerts := engine.EvaluateAll("s1", map[string]float64{"pressure": 960.0, "co2": 950.0}, "Plant Room", time.Now())
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertPressureAnomaly, alerts[0].AlertType)
	assert.Equal(t, "Pressure 960.0 hPa out of range at Plant Room", alerts[0].Message)
}

func TestFormatTemplate(t *testing.T) {
	fields := map[string]interface{}{
		"sensor_id": "s1",
		"value":     30.456,
		"threshold": "28",
		"parameter": "temperature",
		"location":  "Room 101",
	}

	assert.Equal(t, "30.5 at Room 101",
		formatTemplate("{value:.1f} at {location}", fields))
	assert.Equal(t, "30 ppm over 28",
		formatTemplate("{value:.0f} ppm over {threshold}", fields))
	assert.Equal(t, "s1 temperature 30.456",
		formatTemplate("{sensor_id} {parameter} {value}", fields))
	assert.Equal(t, "{unknown} stays",
		formatTemplate("{unknown} stays", fields))
}
