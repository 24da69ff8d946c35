package models

import (
	"time"

	"github.com/inferloop/hvacmon/pkg/errors"
)

// AlertSeverity defines alert severity levels
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "LOW"
	SeverityMedium   AlertSeverity = "MEDIUM"
	SeverityHigh     AlertSeverity = "HIGH"
	SeverityCritical AlertSeverity = "CRITICAL"
)

// Rank orders severities for sorting; higher is more urgent.
func (s AlertSeverity) Rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// ParseSeverity validates a severity string from configuration.
func ParseSeverity(s string) (AlertSeverity, error) {
	switch AlertSeverity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return AlertSeverity(s), nil
	default:
		return "", errors.NewValidationError(errors.CodeInvalidSeverity, "unknown alert severity: "+s)
	}
}

// AlertType classifies what kind of condition raised an alert
type AlertType string

const (
	AlertTemperatureHigh         AlertType = "TEMPERATURE_HIGH"
	AlertTemperatureLow          AlertType = "TEMPERATURE_LOW"
	AlertTemperatureCriticalHigh AlertType = "TEMPERATURE_CRITICAL_HIGH"
	AlertTemperatureCriticalLow  AlertType = "TEMPERATURE_CRITICAL_LOW"
	AlertHumidityHigh            AlertType = "HUMIDITY_HIGH"
	AlertHumidityLow             AlertType = "HUMIDITY_LOW"
	AlertHumidityCriticalHigh    AlertType = "HUMIDITY_CRITICAL_HIGH"
	AlertHumidityCriticalLow     AlertType = "HUMIDITY_CRITICAL_LOW"
	AlertCO2High                 AlertType = "CO2_HIGH"
	AlertCO2Critical             AlertType = "CO2_CRITICAL"
	AlertOccupancyAnomaly        AlertType = "OCCUPANCY_ANOMALY"
	AlertSystemMalfunction       AlertType = "SYSTEM_MALFUNCTION"
	AlertDataQualityLow          AlertType = "DATA_QUALITY_LOW"
	AlertAnomalyDetected         AlertType = "ANOMALY_DETECTED"
	AlertSensorOffline           AlertType = "SENSOR_OFFLINE"
	AlertMaintenanceDue          AlertType = "MAINTENANCE_DUE"
	AlertEnergyEfficiencyLow     AlertType = "ENERGY_EFFICIENCY_LOW"
	AlertPressureAnomaly         AlertType = "PRESSURE_ANOMALY"
)

// AlertStatus defines alert lifecycle states
type AlertStatus string

const (
	StatusActive       AlertStatus = "ACTIVE"
	StatusAcknowledged AlertStatus = "ACKNOWLEDGED"
	StatusResolved     AlertStatus = "RESOLVED"
	StatusSuppressed   AlertStatus = "SUPPRESSED"
)

// Alert is a single triggered alert. It is owned by the alert store until
// resolved; all mutation goes through store methods under the store lock.
type Alert struct {
	AlertID           string             `json:"alert_id"`
	SensorID          string             `json:"sensor_id"`
	Location          string             `json:"location"`
	AlertType         AlertType          `json:"alert_type"`
	Severity          AlertSeverity      `json:"severity"`
	Status            AlertStatus        `json:"status"`
	Message           string             `json:"message"`
	Description       string             `json:"description"`
	Timestamp         time.Time          `json:"timestamp"`
	Values            map[string]float64 `json:"values"`
	ThresholdViolated string             `json:"threshold_violated"`
	RecommendedAction string             `json:"recommended_action"`
	EscalationLevel   int                `json:"escalation_level"`
	AcknowledgedBy    string             `json:"acknowledged_by,omitempty"`
	ResolvedBy        string             `json:"resolved_by,omitempty"`
	AcknowledgedAt    *time.Time         `json:"acknowledged_at,omitempty"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
	EscalatedAt       *time.Time         `json:"escalated_at,omitempty"`
	SuppressedUntil   *time.Time         `json:"suppressed_until,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	CorrelationID     string             `json:"correlation_id,omitempty"`
	RelatedAlertIDs   []string           `json:"related_alert_ids,omitempty"`
}

// IsAcknowledged reports whether the alert has been acknowledged.
func (a *Alert) IsAcknowledged() bool {
	return a.AcknowledgedAt != nil
}

// IsResolved reports whether the alert has been resolved.
func (a *Alert) IsResolved() bool {
	return a.ResolvedAt != nil
}

// Clone returns a deep copy so callers never alias store-owned state.
func (a *Alert) Clone() *Alert {
	cp := *a
	if a.Values != nil {
		cp.Values = make(map[string]float64, len(a.Values))
		for k, v := range a.Values {
			cp.Values[k] = v
		}
	}
	cp.Tags = append([]string(nil), a.Tags...)
	cp.RelatedAlertIDs = append([]string(nil), a.RelatedAlertIDs...)
	if a.AcknowledgedAt != nil {
		t := *a.AcknowledgedAt
		cp.AcknowledgedAt = &t
	}
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		cp.ResolvedAt = &t
	}
	if a.EscalatedAt != nil {
		t := *a.EscalatedAt
		cp.EscalatedAt = &t
	}
	if a.SuppressedUntil != nil {
		t := *a.SuppressedUntil
		cp.SuppressedUntil = &t
	}
	return &cp
}

// AlertRecord is the flat wire form consumed by persistence and notification
// collaborators: enums as strings, datetimes as ISO8601.
type AlertRecord struct {
	AlertID           string             `json:"alert_id"`
	SensorID          string             `json:"sensor_id"`
	Location          string             `json:"location"`
	AlertType         string             `json:"alert_type"`
	Severity          string             `json:"severity"`
	Status            string             `json:"status"`
	Message           string             `json:"message"`
	Description       string             `json:"description"`
	Timestamp         string             `json:"timestamp"`
	Values            map[string]float64 `json:"values"`
	ThresholdViolated string             `json:"threshold_violated"`
	RecommendedAction string             `json:"recommended_action"`
	EscalationLevel   int                `json:"escalation_level"`
	AcknowledgedBy    string             `json:"acknowledged_by,omitempty"`
	ResolvedBy        string             `json:"resolved_by,omitempty"`
	AcknowledgedAt    string             `json:"acknowledged_at,omitempty"`
	ResolvedAt        string             `json:"resolved_at,omitempty"`
	EscalatedAt       string             `json:"escalated_at,omitempty"`
	SuppressedUntil   string             `json:"suppressed_until,omitempty"`
	Tags              []string           `json:"tags,omitempty"`
	CorrelationID     string             `json:"correlation_id,omitempty"`
	RelatedAlertIDs   []string           `json:"related_alert_ids,omitempty"`
}

// ToRecord flattens the alert for export.
func (a *Alert) ToRecord() *AlertRecord {
	rec := &AlertRecord{
		AlertID:           a.AlertID,
		SensorID:          a.SensorID,
		Location:          a.Location,
		AlertType:         string(a.AlertType),
		Severity:          string(a.Severity),
		Status:            string(a.Status),
		Message:           a.Message,
		Description:       a.Description,
		Timestamp:         a.Timestamp.Format(time.RFC3339Nano),
		Values:            a.Values,
		ThresholdViolated: a.ThresholdViolated,
		RecommendedAction: a.RecommendedAction,
		EscalationLevel:   a.EscalationLevel,
		AcknowledgedBy:    a.AcknowledgedBy,
		ResolvedBy:        a.ResolvedBy,
		Tags:              a.Tags,
		CorrelationID:     a.CorrelationID,
		RelatedAlertIDs:   a.RelatedAlertIDs,
	}
	if a.AcknowledgedAt != nil {
		rec.AcknowledgedAt = a.AcknowledgedAt.Format(time.RFC3339Nano)
	}
	if a.ResolvedAt != nil {
		rec.ResolvedAt = a.ResolvedAt.Format(time.RFC3339Nano)
	}
	if a.EscalatedAt != nil {
		rec.EscalatedAt = a.EscalatedAt.Format(time.RFC3339Nano)
	}
	if a.SuppressedUntil != nil {
		rec.SuppressedUntil = a.SuppressedUntil.Format(time.RFC3339Nano)
	}
	return rec
}

// AlertFromRecord parses a flat record back into an Alert.
func AlertFromRecord(rec *AlertRecord) (*Alert, error) {
	ts, err := time.Parse(time.RFC3339Nano, rec.Timestamp)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "invalid alert timestamp")
	}
	severity, err := ParseSeverity(rec.Severity)
	if err != nil {
		return nil, err
	}

	alert := &Alert{
		AlertID:           rec.AlertID,
		SensorID:          rec.SensorID,
		Location:          rec.Location,
		AlertType:         AlertType(rec.AlertType),
		Severity:          severity,
		Status:            AlertStatus(rec.Status),
		Message:           rec.Message,
		Description:       rec.Description,
		Timestamp:         ts,
		Values:            rec.Values,
		ThresholdViolated: rec.ThresholdViolated,
		RecommendedAction: rec.RecommendedAction,
		EscalationLevel:   rec.EscalationLevel,
		AcknowledgedBy:    rec.AcknowledgedBy,
		ResolvedBy:        rec.ResolvedBy,
		Tags:              rec.Tags,
		CorrelationID:     rec.CorrelationID,
		RelatedAlertIDs:   rec.RelatedAlertIDs,
	}

	parseOptional := func(s string, dst **time.Time, field string) error {
		if s == "" {
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidInput, "invalid "+field)
		}
		*dst = &t
		return nil
	}
	if err := parseOptional(rec.AcknowledgedAt, &alert.AcknowledgedAt, "acknowledged_at"); err != nil {
		return nil, err
	}
	if err := parseOptional(rec.ResolvedAt, &alert.ResolvedAt, "resolved_at"); err != nil {
		return nil, err
	}
	if err := parseOptional(rec.EscalatedAt, &alert.EscalatedAt, "escalated_at"); err != nil {
		return nil, err
	}
	if err := parseOptional(rec.SuppressedUntil, &alert.SuppressedUntil, "suppressed_until"); err != nil {
		return nil, err
	}
	return alert, nil
}

// NotificationRequest is handed to external channel senders. The alerting
// engine decides whether and what to send; delivery happens elsewhere.
type NotificationRequest struct {
	Channel    string                 `json:"channel"`
	Recipients []string               `json:"recipients"`
	Subject    string                 `json:"subject"`
	Message    string                 `json:"message"`
	Priority   AlertSeverity          `json:"priority"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
