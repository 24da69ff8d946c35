package alerting

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

// Manager is the alerting facade: rule evaluation, correlation, storage and
// initial notification for every raised alert.
type Manager struct {
	engine     *Engine
	store      *Store
	correlator *Correlator
	escalator  *Escalator
	logger     *logrus.Logger
}

// NewManager wires the alerting components together.
func NewManager(engine *Engine, store *Store, correlator *Correlator,
	escalator *Escalator, logger *logrus.Logger) *Manager {
	if logger == nil {
		logger = logrus.New()
	}
	return &Manager{
		engine:     engine,
		store:      store,
		correlator: correlator,
		escalator:  escalator,
		logger:     logger,
	}
}

// Engine exposes the rule engine for configuration surfaces.
func (m *Manager) Engine() *Engine { return m.engine }

// Store exposes the alert store for query surfaces.
func (m *Manager) Store() *Store { return m.store }

// ProcessReading evaluates the rules against one reading and raises every
// triggered alert. Sensors in maintenance produce nothing.
func (m *Manager) ProcessReading(sensorID string, values map[string]float64,
	location string, timestamp time.Time) []*models.Alert {
	triggered := m.engine.EvaluateAll(sensorID, values, location, timestamp)

	var raised []*models.Alert
	for _, alert := range triggered {
		if err := m.Raise(alert); err != nil {
			m.logger.WithFields(logrus.Fields{
				"alert_id": alert.AlertID,
				"error":    err.Error(),
			}).Error("Failed to raise alert")
			continue
		}
		raised = append(raised, alert)
	}
	return raised
}

// Raise correlates, stores and announces one new alert.
func (m *Manager) Raise(alert *models.Alert) error {
	related := m.correlator.Correlate(alert, m.store.ActiveAlerts("", ""))
	if len(related) > 0 {
		correlationID := SharedCorrelationID(related, uuid.NewString())
		relatedIDs := make([]string, len(related))
		for i, r := range related {
			relatedIDs[i] = r.AlertID
		}
		m.store.correlate(alert, relatedIDs, correlationID)
	}

	if err := m.store.Insert(alert); err != nil {
		return err
	}

	m.escalator.NotifyNew(alert)

	m.logger.WithFields(logrus.Fields{
		"alert_id":   alert.AlertID,
		"sensor_id":  alert.SensorID,
		"alert_type": string(alert.AlertType),
		"severity":   string(alert.Severity),
	}).Info(alert.Message)
	return nil
}

// RaiseFromAnomaly turns a strong detector consensus into an alert. Returns
// nil when the score is below the reporting threshold or the sensor is in
// maintenance.
func (m *Manager) RaiseFromAnomaly(result *models.AnomalyResult, values map[string]float64, location string) *models.Alert {
	if !result.IsAnomaly || result.OverallScore <= anomalyAlertThreshold {
		return nil
	}
	alert := m.engine.AnomalyAlert(result, values, location)
	if alert == nil {
		return nil
	}
	if err := m.Raise(alert); err != nil {
		m.logger.WithFields(logrus.Fields{
			"alert_id": alert.AlertID,
			"error":    err.Error(),
		}).Error("Failed to raise anomaly alert")
		return nil
	}
	return alert
}

// Summary reports the current alerting posture.
func (m *Manager) Summary() *Summary {
	stats := m.store.Stats()
	enabled, total := m.engine.RuleCounts()
	return &Summary{
		ActiveTotal:      m.store.ActiveCount(),
		ActiveBySeverity: m.store.ActiveBySeverity(),
		TotalProcessed:   stats.TotalAlerts,
		BySeverity:       stats.AlertsBySeverity,
		ByType:           stats.AlertsByType,
		InMaintenance:    m.engine.MaintenanceCount(),
		EnabledRules:     enabled,
		TotalRules:       total,
	}
}
