package alerting

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/errors"
	"github.com/inferloop/hvacmon/pkg/models"
)

const defaultHistoryLimit = 10000

// StoreStats are monotonic counters over the store's lifetime.
type StoreStats struct {
	TotalAlerts      int            `json:"total_alerts"`
	AlertsBySeverity map[string]int `json:"alerts_by_severity"`
	AlertsByType     map[string]int `json:"alerts_by_type"`
}

// Summary is a point-in-time view of alerting activity.
type Summary struct {
	ActiveTotal      int            `json:"active_alerts_total"`
	ActiveBySeverity map[string]int `json:"active_alerts_by_severity"`
	TotalProcessed   int            `json:"total_alerts_processed"`
	BySeverity       map[string]int `json:"alerts_by_severity"`
	ByType           map[string]int `json:"alerts_by_type"`
	InMaintenance    int            `json:"sensors_in_maintenance"`
	EnabledRules     int            `json:"enabled_rules"`
	TotalRules       int            `json:"total_rules"`
}

// Store owns every live alert. Alerts live in the active map until resolved
// and in a bounded history forever after. All access, including the
// escalation sweep's, goes through these methods under one lock; alert
// pointers never escape, only clones.
type Store struct {
	mu           sync.Mutex
	active       map[string]*models.Alert
	history      []*models.Alert
	historyLimit int
	stats        StoreStats
	logger       *logrus.Logger
}

// NewStore creates an alert store.
func NewStore(logger *logrus.Logger) *Store {
	if logger == nil {
		logger = logrus.New()
	}
	return &Store{
		active:       make(map[string]*models.Alert),
		historyLimit: defaultHistoryLimit,
		stats: StoreStats{
			AlertsBySeverity: make(map[string]int),
			AlertsByType:     make(map[string]int),
		},
		logger: logger,
	}
}

// Insert adds a new alert to the active set and history. Duplicate IDs are
// rejected; with UUID generation a collision means an invariant broke
// upstream.
func (s *Store) Insert(alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.active[alert.AlertID]; exists {
		s.logger.WithField("alert_id", alert.AlertID).Error("Duplicate alert ID rejected")
		return errors.NewAlertingError(errors.CodeDuplicateAlertID, "alert already active: "+alert.AlertID)
	}

	s.active[alert.AlertID] = alert
	s.history = append(s.history, alert)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}

	s.stats.TotalAlerts++
	s.stats.AlertsBySeverity[string(alert.Severity)]++
	s.stats.AlertsByType[string(alert.AlertType)]++
	return nil
}

// Acknowledge stamps the alert and halts its escalation.
func (s *Store) Acknowledge(alertID, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.active[alertID]
	if !ok {
		return errors.NewAlertingError(errors.CodeAlertNotFound, "alert not active: "+alertID)
	}

	now := time.Now()
	alert.Status = models.StatusAcknowledged
	alert.AcknowledgedBy = by
	alert.AcknowledgedAt = &now

	s.logger.WithFields(logrus.Fields{
		"alert_id":        alertID,
		"acknowledged_by": by,
	}).Info("Alert acknowledged")
	return nil
}

// Resolve stamps the alert and removes it from the active set. Resolved
// alerts survive only in history and never re-escalate.
func (s *Store) Resolve(alertID, by string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.active[alertID]
	if !ok {
		return errors.NewAlertingError(errors.CodeAlertNotFound, "alert not active: "+alertID)
	}

	now := time.Now()
	alert.Status = models.StatusResolved
	alert.ResolvedBy = by
	alert.ResolvedAt = &now
	delete(s.active, alertID)

	s.logger.WithFields(logrus.Fields{
		"alert_id":    alertID,
		"resolved_by": by,
	}).Info("Alert resolved")
	return nil
}

// Suppress silences an alert until the duration elapses. The escalation
// sweep reverts it to ACTIVE once the window passes.
func (s *Store) Suppress(alertID string, duration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.active[alertID]
	if !ok {
		return errors.NewAlertingError(errors.CodeAlertNotFound, "alert not active: "+alertID)
	}

	until := time.Now().Add(duration)
	alert.Status = models.StatusSuppressed
	alert.SuppressedUntil = &until

	s.logger.WithFields(logrus.Fields{
		"alert_id": alertID,
		"until":    until.Format(time.RFC3339),
	}).Info("Alert suppressed")
	return nil
}

// Get returns a clone of an active alert.
func (s *Store) Get(alertID string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, ok := s.active[alertID]
	if !ok {
		return nil, errors.NewAlertingError(errors.CodeAlertNotFound, "alert not active: "+alertID)
	}
	return alert.Clone(), nil
}

// ActiveAlerts returns clones of the active alerts, optionally filtered,
// ordered most urgent first and newest first within a severity.
func (s *Store) ActiveAlerts(severity models.AlertSeverity, sensorID string) []*models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts := make([]*models.Alert, 0, len(s.active))
	for _, alert := range s.active {
		if severity != "" && alert.Severity != severity {
			continue
		}
		if sensorID != "" && alert.SensorID != sensorID {
			continue
		}
		alerts = append(alerts, alert.Clone())
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Severity.Rank() != alerts[j].Severity.Rank() {
			return alerts[i].Severity.Rank() > alerts[j].Severity.Rank()
		}
		return alerts[i].Timestamp.After(alerts[j].Timestamp)
	})
	return alerts
}

// ActiveCount reports the number of active alerts.
func (s *Store) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Export returns flat records for alerts whose timestamp falls inside
// [start, end], drawn from history so resolved alerts are included.
func (s *Store) Export(start, end time.Time) []*models.AlertRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []*models.AlertRecord
	for _, alert := range s.history {
		if alert.Timestamp.Before(start) || alert.Timestamp.After(end) {
			continue
		}
		records = append(records, alert.ToRecord())
	}
	return records
}

// Stats returns a copy of the lifetime counters.
func (s *Store) Stats() StoreStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := StoreStats{
		TotalAlerts:      s.stats.TotalAlerts,
		AlertsBySeverity: make(map[string]int, len(s.stats.AlertsBySeverity)),
		AlertsByType:     make(map[string]int, len(s.stats.AlertsByType)),
	}
	for k, v := range s.stats.AlertsBySeverity {
		stats.AlertsBySeverity[k] = v
	}
	for k, v := range s.stats.AlertsByType {
		stats.AlertsByType[k] = v
	}
	return stats
}

// ActiveBySeverity counts active alerts per severity.
func (s *Store) ActiveBySeverity() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[string]int)
	for _, alert := range s.active {
		counts[string(alert.Severity)]++
	}
	return counts
}

// mutateActive runs fn over every active alert under the store lock. The
// escalation sweep uses it so each alert's transition is atomic with respect
// to inserts and lifecycle calls.
func (s *Store) mutateActive(fn func(alert *models.Alert)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, alert := range s.active {
		fn(alert)
	}
}

// correlate links a new alert with its related active alerts under the store
// lock: shared correlation id, bidirectional related ids.
func (s *Store) correlate(alert *models.Alert, relatedIDs []string, correlationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert.CorrelationID = correlationID
	for _, id := range relatedIDs {
		related, ok := s.active[id]
		if !ok {
			continue
		}
		alert.RelatedAlertIDs = append(alert.RelatedAlertIDs, id)
		related.CorrelationID = correlationID
		related.RelatedAlertIDs = append(related.RelatedAlertIDs, alert.AlertID)
	}
}
