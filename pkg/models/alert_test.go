package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertRecordRoundTrip(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	ackAt := ts.Add(2 * time.Minute)
	escAt := ts.Add(5 * time.Minute)

	alert := &Alert{
		AlertID:           "a-1",
		SensorID:          "hvac_office_a1",
		Location:          "Office A1",
		AlertType:         AlertTemperatureHigh,
		Severity:          SeverityMedium,
		Status:            StatusAcknowledged,
		Message:           "Temperature 30.0°C exceeds threshold 28°C at Office A1",
		Description:       "High Temperature",
		Timestamp:         ts,
		Values:            map[string]float64{ParamTemperature: 30.0, ParamHumidity: 48.5},
		ThresholdViolated: "temperature greater_than 28",
		RecommendedAction: "Check HVAC cooling system",
		EscalationLevel:   1,
		AcknowledgedBy:    "operator",
		AcknowledgedAt:    &ackAt,
		EscalatedAt:       &escAt,
		Tags:              []string{"temperature", "medium"},
		CorrelationID:     "c-1",
		RelatedAlertIDs:   []string{"a-2"},
	}

	parsed, err := AlertFromRecord(alert.ToRecord())
	require.NoError(t, err)
	assert.Equal(t, alert, parsed)
}

func TestAlertFromRecordRejectsBadFields(t *testing.T) {
	rec := &AlertRecord{Timestamp: "yesterday", Severity: "MEDIUM"}
	_, err := AlertFromRecord(rec)
	assert.Error(t, err)

	rec = &AlertRecord{Timestamp: time.Now().Format(time.RFC3339Nano), Severity: "URGENT"}
	_, err = AlertFromRecord(rec)
	assert.Error(t, err)
}

func TestParseSeverity(t *testing.T) {
	for _, s := range []string{"LOW", "MEDIUM", "HIGH", "CRITICAL"} {
		severity, err := ParseSeverity(s)
		require.NoError(t, err)
		assert.Equal(t, s, string(severity))
	}
	_, err := ParseSeverity("medium")
	assert.Error(t, err)
}

func TestSeverityRank(t *testing.T) {
	assert.True(t, SeverityCritical.Rank() > SeverityHigh.Rank())
	assert.True(t, SeverityHigh.Rank() > SeverityMedium.Rank())
	assert.True(t, SeverityMedium.Rank() > SeverityLow.Rank())
	assert.Equal(t, -1, AlertSeverity("URGENT").Rank())
}

func TestAlertCloneIsDeep(t *testing.T) {
	ackAt := time.Now()
	alert := &Alert{
		AlertID:        "a-1",
		Values:         map[string]float64{ParamTemperature: 30.0},
		Tags:           []string{"temperature"},
		AcknowledgedAt: &ackAt,
	}

	cp := alert.Clone()
	cp.Values[ParamTemperature] = 99.0
	cp.Tags[0] = "mutated"
	*cp.AcknowledgedAt = ackAt.Add(time.Hour)

	assert.Equal(t, 30.0, alert.Values[ParamTemperature])
	assert.Equal(t, "temperature", alert.Tags[0])
	assert.Equal(t, ackAt, *alert.AcknowledgedAt)
}
