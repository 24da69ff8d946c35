package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/internal/alerting"
	"github.com/inferloop/hvacmon/internal/detectors"
	apperrors "github.com/inferloop/hvacmon/pkg/errors"
	"github.com/inferloop/hvacmon/pkg/models"
)

const (
	defaultSummaryHours       = 24
	defaultSuppressMinutes    = 30
	defaultMaintenanceMinutes = 60
)

// Handlers serves the alerting and anomaly API.
type Handlers struct {
	alerts      *alerting.Manager
	coordinator *detectors.Coordinator
	metrics     HTTPMetrics
	logger      *logrus.Logger
	startTime   time.Time
}

// NewHandlers creates the API handlers. metrics may be nil.
func NewHandlers(alerts *alerting.Manager, coordinator *detectors.Coordinator,
	metrics HTTPMetrics, logger *logrus.Logger) *Handlers {
	if logger == nil {
		logger = logrus.New()
	}
	return &Handlers{
		alerts:      alerts,
		coordinator: coordinator,
		metrics:     metrics,
		logger:      logger,
		startTime:   time.Now(),
	}
}

// Health handles GET /health.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
	})
}

// ListAlerts handles GET /api/v1/alerts with optional severity and
// sensor_id filters.
func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	var severity models.AlertSeverity
	if raw := r.URL.Query().Get("severity"); raw != "" {
		parsed, err := models.ParseSeverity(raw)
		if err != nil {
			h.writeError(w, err)
			return
		}
		severity = parsed
	}

	alerts := h.alerts.Store().ActiveAlerts(severity, r.URL.Query().Get("sensor_id"))
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// GetAlert handles GET /api/v1/alerts/{id}.
func (h *Handlers) GetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := h.alerts.Store().Get(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, alert)
}

// AcknowledgeAlert handles POST /api/v1/alerts/{id}/acknowledge.
func (h *Handlers) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AcknowledgedBy string `json:"acknowledged_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.AcknowledgedBy == "" {
		h.writeError(w, apperrors.NewValidationError(apperrors.CodeMissingField, "acknowledged_by is required"))
		return
	}

	if err := h.alerts.Store().Acknowledge(mux.Vars(r)["id"], body.AcknowledgedBy); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

// ResolveAlert handles POST /api/v1/alerts/{id}/resolve.
func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ResolvedBy string `json:"resolved_by"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.ResolvedBy == "" {
		h.writeError(w, apperrors.NewValidationError(apperrors.CodeMissingField, "resolved_by is required"))
		return
	}

	if err := h.alerts.Store().Resolve(mux.Vars(r)["id"], body.ResolvedBy); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// SuppressAlert handles POST /api/v1/alerts/{id}/suppress.
func (h *Handlers) SuppressAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DurationMinutes int `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.NewValidationError(apperrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if body.DurationMinutes <= 0 {
		body.DurationMinutes = defaultSuppressMinutes
	}

	duration := time.Duration(body.DurationMinutes) * time.Minute
	if err := h.alerts.Store().Suppress(mux.Vars(r)["id"], duration); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":           "suppressed",
		"duration_minutes": body.DurationMinutes,
	})
}

// ExportAlerts handles GET /api/v1/alerts/export?start=&end= with
// RFC3339 bounds. Defaults to the trailing 24 hours.
func (h *Handlers) ExportAlerts(w http.ResponseWriter, r *http.Request) {
	end := time.Now().UTC()
	start := end.Add(-24 * time.Hour)

	if raw := r.URL.Query().Get("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, apperrors.NewValidationError(apperrors.CodeInvalidInput, "end must be RFC3339"))
			return
		}
		end = parsed
	}
	if raw := r.URL.Query().Get("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.writeError(w, apperrors.NewValidationError(apperrors.CodeInvalidInput, "start must be RFC3339"))
			return
		}
		start = parsed
	}

	records := h.alerts.Store().Export(start, end)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": records,
		"count":  len(records),
		"start":  start.Format(time.RFC3339),
		"end":    end.Format(time.RFC3339),
	})
}

// AlertSummary handles GET /api/v1/alerts/summary.
func (h *Handlers) AlertSummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.alerts.Summary())
}

// AnomalySummary handles GET /api/v1/anomalies/summary?hours=.
func (h *Handlers) AnomalySummary(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coordinator.Summary(h.hoursParam(r)))
}

// SensorAnomalyProfile handles GET /api/v1/anomalies/sensors/{id}?hours=.
func (h *Handlers) SensorAnomalyProfile(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.coordinator.SensorProfile(mux.Vars(r)["id"], h.hoursParam(r)))
}

// ruleView is the read-side shape of a rule.
type ruleView struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Parameter         string  `json:"parameter"`
	Condition         string  `json:"condition"`
	Severity          string  `json:"severity"`
	AlertType         string  `json:"alert_type"`
	CooldownSeconds   float64 `json:"cooldown_seconds"`
	EscalationSeconds float64 `json:"escalation_seconds"`
	Enabled           bool    `json:"enabled"`
}

// ListRules handles GET /api/v1/rules.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	rules := h.alerts.Engine().Rules()
	views := make([]ruleView, 0, len(rules))
	for _, rule := range rules {
		views = append(views, ruleView{
			ID:                rule.ID,
			Name:              rule.Name,
			Parameter:         rule.Parameter,
			Condition:         rule.Condition.Describe(rule.Parameter),
			Severity:          string(rule.Severity),
			AlertType:         string(rule.AlertType),
			CooldownSeconds:   rule.Cooldown.Seconds(),
			EscalationSeconds: rule.EscalationTime.Seconds(),
			Enabled:           rule.Enabled,
		})
	}

	enabled, total := h.alerts.Engine().RuleCounts()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":   views,
		"enabled": enabled,
		"total":   total,
	})
}

// ImportRules handles POST /api/v1/rules/import with a JSON array of
// rule definitions. Invalid rules are rejected individually.
func (h *Handlers) ImportRules(w http.ResponseWriter, r *http.Request) {
	var configs []alerting.RuleConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		h.writeError(w, apperrors.NewValidationError(apperrors.CodeInvalidInput, "invalid rule definitions"))
		return
	}

	imported, err := h.alerts.Engine().ImportRules(configs)
	response := map[string]interface{}{
		"imported": imported,
		"total":    len(configs),
	}
	if err != nil {
		response["error"] = err.Error()
	}
	h.writeJSON(w, http.StatusOK, response)
}

// EnableRule handles POST /api/v1/rules/{id}/enable.
func (h *Handlers) EnableRule(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Engine().EnableRule(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "enabled"})
}

// DisableRule handles POST /api/v1/rules/{id}/disable.
func (h *Handlers) DisableRule(w http.ResponseWriter, r *http.Request) {
	if err := h.alerts.Engine().DisableRule(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

// SetMaintenance handles POST /api/v1/maintenance/{sensor_id}.
func (h *Handlers) SetMaintenance(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DurationMinutes int `json:"duration_minutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.NewValidationError(apperrors.CodeInvalidInput, "invalid request body"))
		return
	}
	if body.DurationMinutes <= 0 {
		body.DurationMinutes = defaultMaintenanceMinutes
	}

	sensorID := mux.Vars(r)["sensor_id"]
	h.alerts.Engine().SetMaintenanceMode(sensorID, time.Duration(body.DurationMinutes)*time.Minute)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensor_id":        sensorID,
		"maintenance":      true,
		"duration_minutes": body.DurationMinutes,
	})
}

// ClearMaintenance handles DELETE /api/v1/maintenance/{sensor_id}.
func (h *Handlers) ClearMaintenance(w http.ResponseWriter, r *http.Request) {
	sensorID := mux.Vars(r)["sensor_id"]
	h.alerts.Engine().ClearMaintenanceMode(sensorID)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sensor_id":   sensorID,
		"maintenance": false,
	})
}

// NotFound handles unmatched routes.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusNotFound, map[string]interface{}{
		"error": map[string]string{
			"code":    "NOT_FOUND",
			"message": "route not found",
		},
	})
}

func (h *Handlers) hoursParam(r *http.Request) int {
	hours := defaultSummaryHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			hours = parsed
		}
	}
	return hours
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := apperrors.CodeInternalError

	if appErr, ok := err.(*apperrors.AppError); ok {
		code = appErr.Code
		switch appErr.Code {
		case apperrors.CodeAlertNotFound, apperrors.CodeRuleNotFound, apperrors.CodeDetectorNotFound:
			status = http.StatusNotFound
		default:
			if appErr.Type == apperrors.ErrorTypeValidation {
				status = http.StatusBadRequest
			}
		}
	}

	h.writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": err.Error(),
		},
	})
}
