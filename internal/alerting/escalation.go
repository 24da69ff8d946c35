package alerting

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

const defaultSweepInterval = 30 * time.Second

// EscalationPolicy controls how quickly an unhandled alert climbs and who
// hears about it.
type EscalationPolicy struct {
	Severity models.AlertSeverity `json:"severity"`
	Interval time.Duration        `json:"escalation_interval"`
	Channels []string             `json:"action_channels"`
	MaxLevel int                  `json:"max_level"`
}

// DefaultEscalationPolicies returns the standard cadence per severity.
func DefaultEscalationPolicies() map[models.AlertSeverity]EscalationPolicy {
	return map[models.AlertSeverity]EscalationPolicy{
		models.SeverityLow: {
			Severity: models.SeverityLow,
			Interval: 60 * time.Minute,
			Channels: []string{"email"},
			MaxLevel: 2,
		},
		models.SeverityMedium: {
			Severity: models.SeverityMedium,
			Interval: 30 * time.Minute,
			Channels: []string{"email", "slack"},
			MaxLevel: 2,
		},
		models.SeverityHigh: {
			Severity: models.SeverityHigh,
			Interval: 15 * time.Minute,
			Channels: []string{"email", "slack", "sms"},
			MaxLevel: 3,
		},
		models.SeverityCritical: {
			Severity: models.SeverityCritical,
			Interval: 5 * time.Minute,
			Channels: []string{"email", "slack", "sms"},
			MaxLevel: 3,
		},
	}
}

// InitialRecipients lists who is notified when an alert first fires.
func InitialRecipients(severity models.AlertSeverity) []string {
	switch severity {
	case models.SeverityLow:
		return []string{"facility@company.com"}
	case models.SeverityMedium:
		return []string{"facility@company.com", "maintenance@company.com"}
	case models.SeverityHigh:
		return []string{"facility@company.com", "maintenance@company.com", "manager@company.com"}
	case models.SeverityCritical:
		return []string{"facility@company.com", "maintenance@company.com", "manager@company.com", "emergency@company.com"}
	default:
		return []string{"facility@company.com"}
	}
}

// EscalationRecipients lists who is notified at each escalation level.
func EscalationRecipients(level int) []string {
	switch level {
	case 1:
		return []string{"supervisor@company.com"}
	case 2:
		return []string{"manager@company.com"}
	case 3:
		return []string{"director@company.com", "emergency@company.com"}
	default:
		return []string{"emergency@company.com"}
	}
}

// Escalator periodically sweeps active alerts, bumping escalation levels for
// alerts nobody has handled and waking suppressed alerts whose window passed.
type Escalator struct {
	store      *Store
	dispatcher *Dispatcher
	policies   map[models.AlertSeverity]EscalationPolicy
	interval   time.Duration
	metrics    Metrics
	logger     *logrus.Logger
}

// NewEscalator creates an escalation engine over the store; zero interval
// means the 30-second default sweep.
func NewEscalator(store *Store, dispatcher *Dispatcher, policies map[models.AlertSeverity]EscalationPolicy,
	interval time.Duration, logger *logrus.Logger) *Escalator {
	if logger == nil {
		logger = logrus.New()
	}
	if policies == nil {
		policies = DefaultEscalationPolicies()
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &Escalator{
		store:      store,
		dispatcher: dispatcher,
		policies:   policies,
		interval:   interval,
		logger:     logger,
	}
}

// SetMetrics installs the escalation instrumentation. Must be called before Run.
func (e *Escalator) SetMetrics(m Metrics) {
	e.metrics = m
}

// Run sweeps on a fixed timer until the context is cancelled. A sweep in
// progress finishes before Run returns.
func (e *Escalator) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(time.Now())
		}
	}
}

// Sweep checks every active alert once. Each alert's transition completes
// atomically under the store lock before the next alert is considered.
func (e *Escalator) Sweep(now time.Time) {
	var escalated []*models.Alert

	e.store.mutateActive(func(alert *models.Alert) {
		if alert.Status == models.StatusSuppressed {
			if alert.SuppressedUntil != nil && now.After(*alert.SuppressedUntil) {
				alert.Status = models.StatusActive
				alert.SuppressedUntil = nil
				e.logger.WithField("alert_id", alert.AlertID).Info("Suppression window elapsed, alert active again")
			}
			return
		}

		policy, ok := e.policies[alert.Severity]
		if !ok || !e.shouldEscalate(alert, policy, now) {
			return
		}

		alert.EscalationLevel++
		escalatedAt := now
		alert.EscalatedAt = &escalatedAt
		escalated = append(escalated, alert.Clone())
	})

	for _, alert := range escalated {
		policy := e.policies[alert.Severity]
		if e.metrics != nil {
			e.metrics.RecordEscalation(string(alert.Severity))
		}
		e.dispatcher.NotifyAlert(alert, policy.Channels, EscalationRecipients(alert.EscalationLevel))
		e.logger.WithFields(logrus.Fields{
			"alert_id": alert.AlertID,
			"severity": string(alert.Severity),
			"level":    alert.EscalationLevel,
		}).Warn("Alert escalated")
	}
}

// shouldEscalate applies the policy: unhandled, below the level cap, and the
// escalation interval has elapsed since the later of creation and the last
// escalation.
func (e *Escalator) shouldEscalate(alert *models.Alert, policy EscalationPolicy, now time.Time) bool {
	if alert.IsAcknowledged() || alert.IsResolved() {
		return false
	}
	if alert.EscalationLevel >= policy.MaxLevel {
		return false
	}

	since := alert.Timestamp
	if alert.EscalatedAt != nil && alert.EscalatedAt.After(since) {
		since = *alert.EscalatedAt
	}
	return now.Sub(since) >= policy.Interval
}

// NotifyNew dispatches the initial notifications for a freshly raised alert
// on the severity's channels.
func (e *Escalator) NotifyNew(alert *models.Alert) {
	policy, ok := e.policies[alert.Severity]
	if !ok {
		return
	}
	e.dispatcher.NotifyAlert(alert, policy.Channels, InitialRecipients(alert.Severity))
}
