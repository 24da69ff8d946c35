package alerting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/errors"
	"github.com/inferloop/hvacmon/pkg/models"
)

const (
	defaultCooldown       = 5 * time.Minute
	defaultEscalationTime = 30 * time.Minute
)

// Rule maps a parameter condition to the alert it raises. LastTriggered is
// the per-sensor cooldown map; it is mutated on every trigger and guarded by
// the engine lock.
type Rule struct {
	ID                string
	Name              string
	Parameter         string
	Condition         Condition
	Severity          models.AlertSeverity
	AlertType         models.AlertType
	MessageTemplate   string
	RecommendedAction string
	Cooldown          time.Duration
	EscalationTime    time.Duration
	Enabled           bool

	LastTriggered map[string]time.Time
}

// RuleConfig is the wire/configuration form of a rule.
type RuleConfig struct {
	ID                string  `json:"id" yaml:"id"`
	Name              string  `json:"name" yaml:"name"`
	Parameter         string  `json:"parameter" yaml:"parameter"`
	Condition         string  `json:"condition" yaml:"condition"`
	Threshold         float64 `json:"threshold" yaml:"threshold"`
	Min               float64 `json:"min" yaml:"min"`
	Max               float64 `json:"max" yaml:"max"`
	Severity          string  `json:"severity" yaml:"severity"`
	AlertType         string  `json:"alert_type" yaml:"alert_type"`
	MessageTemplate   string  `json:"message_template" yaml:"message_template"`
	RecommendedAction string  `json:"recommended_action" yaml:"recommended_action"`
	CooldownMinutes   int     `json:"cooldown_minutes" yaml:"cooldown_minutes"`
	EscalationMinutes int     `json:"escalation_time_minutes" yaml:"escalation_time_minutes"`
	Enabled           *bool   `json:"enabled" yaml:"enabled"`
}

// newRule builds a default-cadence rule.
func newRule(id, name, parameter string, condition Condition, severity models.AlertSeverity,
	alertType models.AlertType, messageTemplate, recommendedAction string) *Rule {
	return &Rule{
		ID:                id,
		Name:              name,
		Parameter:         parameter,
		Condition:         condition,
		Severity:          severity,
		AlertType:         alertType,
		MessageTemplate:   messageTemplate,
		RecommendedAction: recommendedAction,
		Cooldown:          defaultCooldown,
		EscalationTime:    defaultEscalationTime,
		Enabled:           true,
		LastTriggered:     make(map[string]time.Time),
	}
}

// RuleFromConfig validates a configured rule definition.
func RuleFromConfig(cfg RuleConfig) (*Rule, error) {
	if cfg.ID == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "rule id is required")
	}
	if cfg.Parameter == "" {
		return nil, errors.NewValidationError(errors.CodeMissingField, "rule parameter is required")
	}
	condition, err := ParseCondition(cfg.Condition, cfg.Threshold, cfg.Min, cfg.Max)
	if err != nil {
		return nil, err
	}
	severity, err := models.ParseSeverity(cfg.Severity)
	if err != nil {
		return nil, err
	}

	rule := newRule(cfg.ID, cfg.Name, cfg.Parameter, condition, severity,
		models.AlertType(cfg.AlertType), cfg.MessageTemplate, cfg.RecommendedAction)
	if cfg.CooldownMinutes > 0 {
		rule.Cooldown = time.Duration(cfg.CooldownMinutes) * time.Minute
	}
	if cfg.EscalationMinutes > 0 {
		rule.EscalationTime = time.Duration(cfg.EscalationMinutes) * time.Minute
	}
	if cfg.Enabled != nil {
		rule.Enabled = *cfg.Enabled
	}
	return rule, nil
}

// DefaultRuleSet returns the standard HVAC threshold rules.
func DefaultRuleSet() []*Rule {
	return []*Rule{
		newRule("temp_high", "High Temperature", models.ParamTemperature, GreaterThan(28.0),
			models.SeverityMedium, models.AlertTemperatureHigh,
			"Temperature {value:.1f}°C exceeds threshold {threshold}°C at {location}",
			"Check HVAC cooling system, verify thermostat settings"),
		newRule("temp_critical_high", "Critical High Temperature", models.ParamTemperature, GreaterThan(32.0),
			models.SeverityCritical, models.AlertTemperatureCriticalHigh,
			"CRITICAL: Temperature {value:.1f}°C at {location} requires immediate attention",
			"Emergency cooling required - check HVAC system immediately"),
		newRule("temp_low", "Low Temperature", models.ParamTemperature, LessThan(18.0),
			models.SeverityMedium, models.AlertTemperatureLow,
			"Temperature {value:.1f}°C below threshold {threshold}°C at {location}",
			"Check HVAC heating system, verify thermostat settings"),
		newRule("temp_critical_low", "Critical Low Temperature", models.ParamTemperature, LessThan(15.0),
			models.SeverityCritical, models.AlertTemperatureCriticalLow,
			"CRITICAL: Temperature {value:.1f}°C at {location} too low",
			"Emergency heating required - check HVAC system immediately"),
		newRule("humidity_high", "High Humidity", models.ParamHumidity, GreaterThan(70.0),
			models.SeverityMedium, models.AlertHumidityHigh,
			"Humidity {value:.1f}% exceeds threshold {threshold}% at {location}",
			"Check dehumidification system, increase ventilation"),
		newRule("humidity_low", "Low Humidity", models.ParamHumidity, LessThan(30.0),
			models.SeverityMedium, models.AlertHumidityLow,
			"Humidity {value:.1f}% below threshold {threshold}% at {location}",
			"Check humidification system, reduce ventilation"),
		newRule("co2_high", "High CO2", models.ParamCO2, GreaterThan(1000.0),
			models.SeverityMedium, models.AlertCO2High,
			"CO2 level {value:.0f} ppm exceeds threshold {threshold} ppm at {location}",
			"Increase ventilation, check occupancy levels"),
		newRule("co2_critical", "Critical CO2", models.ParamCO2, GreaterThan(1500.0),
			models.SeverityHigh, models.AlertCO2Critical,
			"CRITICAL: CO2 level {value:.0f} ppm at {location} requires immediate ventilation",
			"Emergency ventilation required - increase fresh air intake"),
	}
}

// evaluate checks the rule against one value and builds the alert on trigger.
// Caller holds the engine lock; the cooldown stamp happens here.
func (r *Rule) evaluate(sensorID string, value float64, timestamp time.Time,
	values map[string]float64, location string) *models.Alert {
	if !r.Enabled {
		return nil
	}
	if last, ok := r.LastTriggered[sensorID]; ok {
		if timestamp.Sub(last) < r.Cooldown {
			return nil
		}
	}
	if !r.Condition.Evaluate(value) {
		return nil
	}

	r.LastTriggered[sensorID] = timestamp

	message := formatTemplate(r.MessageTemplate, map[string]interface{}{
		"sensor_id": sensorID,
		"value":     value,
		"threshold": r.Condition.ThresholdString(),
		"parameter": r.Parameter,
		"location":  location,
	})

	snapshot := make(map[string]float64, len(values))
	for k, v := range values {
		snapshot[k] = v
	}

	return &models.Alert{
		AlertID:           uuid.NewString(),
		SensorID:          sensorID,
		Location:          location,
		AlertType:         r.AlertType,
		Severity:          r.Severity,
		Status:            models.StatusActive,
		Message:           message,
		Description:       fmt.Sprintf("%s: %s", r.Name, message),
		Timestamp:         timestamp,
		Values:            snapshot,
		ThresholdViolated: r.Condition.Describe(r.Parameter),
		RecommendedAction: r.RecommendedAction,
		Tags:              []string{r.Parameter, strings.ToLower(string(r.Severity))},
	}
}

// templatePlaceholder matches {name} and {name:.Nf} placeholders.
var templatePlaceholder = regexp.MustCompile(`\{(\w+)(?::\.(\d)f)?\}`)

// formatTemplate substitutes {sensor_id}, {value}, {threshold}, {parameter}
// and {location} into a message template. Numeric fields honor an optional
// precision suffix, e.g. {value:.1f}.
func formatTemplate(template string, fields map[string]interface{}) string {
	return templatePlaceholder.ReplaceAllStringFunc(template, func(match string) string {
		groups := templatePlaceholder.FindStringSubmatch(match)
		value, ok := fields[groups[1]]
		if !ok {
			return match
		}
		if groups[2] != "" {
			if f, isFloat := value.(float64); isFloat {
				precision, _ := strconv.Atoi(groups[2])
				return strconv.FormatFloat(f, 'f', precision, 64)
			}
		}
		return fmt.Sprintf("%v", value)
	})
}

// Engine evaluates rules against readings and owns maintenance-mode state.
// All rule and maintenance mutation happens under one lock so the per-sensor
// cooldown maps are never raced.
type Engine struct {
	mu          sync.Mutex
	rules       map[string]*Rule
	maintenance map[string]time.Time

	// anomalyLastTriggered is the per-sensor cooldown map for
	// detector-consensus alerts, the counterpart of Rule.LastTriggered.
	anomalyLastTriggered map[string]time.Time

	metrics Metrics
	logger  *logrus.Logger
}

// NewEngine creates a rule engine seeded with the given rules. Callers
// wanting the standard HVAC thresholds pass DefaultRuleSet().
func NewEngine(rules []*Rule, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	e := &Engine{
		rules:                make(map[string]*Rule, len(rules)),
		maintenance:          make(map[string]time.Time),
		anomalyLastTriggered: make(map[string]time.Time),
		logger:               logger,
	}
	for _, rule := range rules {
		e.rules[rule.ID] = rule
	}
	return e
}

// AddRule registers or replaces a rule.
func (e *Engine) AddRule(rule *Rule) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if rule.LastTriggered == nil {
		rule.LastTriggered = make(map[string]time.Time)
	}
	e.rules[rule.ID] = rule
	e.logger.WithField("rule_id", rule.ID).Info("Added alert rule")
}

// RemoveRule deletes a rule by id.
func (e *Engine) RemoveRule(ruleID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.rules[ruleID]; !ok {
		return errors.NewAlertingError(errors.CodeRuleNotFound, "rule not found: "+ruleID)
	}
	delete(e.rules, ruleID)
	e.logger.WithField("rule_id", ruleID).Info("Removed alert rule")
	return nil
}

// EnableRule turns a rule on.
func (e *Engine) EnableRule(ruleID string) error {
	return e.setEnabled(ruleID, true)
}

// DisableRule turns a rule off without removing it.
func (e *Engine) DisableRule(ruleID string) error {
	return e.setEnabled(ruleID, false)
}

func (e *Engine) setEnabled(ruleID string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	rule, ok := e.rules[ruleID]
	if !ok {
		return errors.NewAlertingError(errors.CodeRuleNotFound, "rule not found: "+ruleID)
	}
	rule.Enabled = enabled
	e.logger.WithFields(logrus.Fields{
		"rule_id": ruleID,
		"enabled": enabled,
	}).Info("Toggled alert rule")
	return nil
}

// ImportRules loads configured rule definitions, rejecting invalid entries
// individually so one bad rule does not block the rest.
func (e *Engine) ImportRules(configs []RuleConfig) (int, error) {
	var imported int
	var firstErr error
	for _, cfg := range configs {
		rule, err := RuleFromConfig(cfg)
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"rule_id": cfg.ID,
				"error":   err.Error(),
			}).Error("Rejected alert rule from configuration")
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		e.AddRule(rule)
		imported++
	}
	return imported, firstErr
}

// Rules returns a snapshot of the registered rules.
func (e *Engine) Rules() []*Rule {
	e.mu.Lock()
	defer e.mu.Unlock()

	rules := make([]*Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	return rules
}

// RuleCounts returns (enabled, total) for summaries.
func (e *Engine) RuleCounts() (enabled, total int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range e.rules {
		if rule.Enabled {
			enabled++
		}
	}
	return enabled, len(e.rules)
}

// SetMetrics installs the engine instrumentation.
func (e *Engine) SetMetrics(m Metrics) {
	e.mu.Lock()
	e.metrics = m
	e.mu.Unlock()
}

// SetMaintenanceMode silences a sensor until the duration elapses.
func (e *Engine) SetMaintenanceMode(sensorID string, duration time.Duration) {
	until := time.Now().Add(duration)

	e.mu.Lock()
	e.maintenance[sensorID] = until
	e.recordMaintenanceLocked()
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"sensor_id": sensorID,
		"until":     until.Format(time.RFC3339),
	}).Info("Sensor entered maintenance mode")
}

// ClearMaintenanceMode removes a sensor's maintenance window early.
func (e *Engine) ClearMaintenanceMode(sensorID string) {
	e.mu.Lock()
	delete(e.maintenance, sensorID)
	e.recordMaintenanceLocked()
	e.mu.Unlock()

	e.logger.WithField("sensor_id", sensorID).Info("Sensor left maintenance mode")
}

func (e *Engine) recordMaintenanceLocked() {
	if e.metrics != nil {
		e.metrics.SetSensorsInMaintenance(float64(len(e.maintenance)))
	}
}

// IsInMaintenance reports whether the sensor is silenced, clearing expired
// entries as a side effect.
func (e *Engine) IsInMaintenance(sensorID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inMaintenanceLocked(sensorID)
}

func (e *Engine) inMaintenanceLocked(sensorID string) bool {
	until, ok := e.maintenance[sensorID]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(e.maintenance, sensorID)
		e.recordMaintenanceLocked()
		return false
	}
	return true
}

// MaintenanceCount reports how many sensors are currently silenced.
func (e *Engine) MaintenanceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.maintenance)
}

// EvaluateAll runs every rule against the reading and returns the triggered
// alerts. A sensor in maintenance mode produces no alerts at all.
func (e *Engine) EvaluateAll(sensorID string, values map[string]float64,
	location string, timestamp time.Time) []*models.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.inMaintenanceLocked(sensorID) {
		return nil
	}

	var alerts []*models.Alert
	for _, rule := range e.rules {
		value, ok := values[rule.Parameter]
		if !ok {
			continue
		}
		if alert := rule.evaluate(sensorID, value, timestamp, values, location); alert != nil {
			alerts = append(alerts, alert)
		}
	}
	return alerts
}

// AnomalyAlert builds the alert raised when detector consensus crosses the
// reporting threshold. Returns nil for sensors in maintenance or still inside
// the anomaly cooldown window.
func (e *Engine) AnomalyAlert(result *models.AnomalyResult, values map[string]float64, location string) *models.Alert {
	e.mu.Lock()
	if e.inMaintenanceLocked(result.SensorID) {
		e.mu.Unlock()
		return nil
	}
	if last, ok := e.anomalyLastTriggered[result.SensorID]; ok {
		if result.Timestamp.Sub(last) < anomalyAlertCooldown {
			e.mu.Unlock()
			return nil
		}
	}
	e.anomalyLastTriggered[result.SensorID] = result.Timestamp
	e.mu.Unlock()

	snapshot := make(map[string]float64, len(values))
	for k, v := range values {
		snapshot[k] = v
	}

	methods := strings.Join(result.DetectionMethods, ", ")
	return &models.Alert{
		AlertID:           uuid.NewString(),
		SensorID:          result.SensorID,
		Location:          location,
		AlertType:         models.AlertAnomalyDetected,
		Severity:          models.SeverityMedium,
		Status:            models.StatusActive,
		Message:           fmt.Sprintf("Anomaly detected at %s (score %.2f, methods: %s)", location, result.OverallScore, methods),
		Description:       fmt.Sprintf("Anomaly Detection: score %.2f from %s", result.OverallScore, methods),
		Timestamp:         result.Timestamp,
		Values:            snapshot,
		ThresholdViolated: fmt.Sprintf("anomaly_score greater_than %.2f", anomalyAlertThreshold),
		RecommendedAction: "Investigate sensor readings and recent environmental changes",
		Tags:              []string{"anomaly", strings.ToLower(string(models.SeverityMedium))},
	}
}

// anomalyAlertThreshold is the consensus score above which an anomaly becomes
// an alert in its own right.
const anomalyAlertThreshold = 0.7

// anomalyAlertCooldown is the per-sensor minimum spacing between
// detector-consensus alerts, so a persistently anomalous sensor raises one
// alert per window instead of one per reading.
const anomalyAlertCooldown = defaultCooldown
