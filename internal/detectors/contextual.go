package detectors

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

// ContextualConfig configures plausibility checks that depend on time of day
// and occupancy rather than per-parameter history.
type ContextualConfig struct {
	WorkHourStart int `json:"work_hour_start" yaml:"work_hour_start"`
	WorkHourEnd   int `json:"work_hour_end" yaml:"work_hour_end"`

	BaselineCO2  float64 `json:"baseline_co2" yaml:"baseline_co2"`
	CO2PerPerson float64 `json:"co2_per_person" yaml:"co2_per_person"`

	// Severity must exceed this before the verdict flips to anomalous.
	SeverityThreshold float64 `json:"severity_threshold" yaml:"severity_threshold"`

	WorkHoursTempMin float64 `json:"work_hours_temp_min" yaml:"work_hours_temp_min"`
	WorkHoursTempMax float64 `json:"work_hours_temp_max" yaml:"work_hours_temp_max"`
	OffHoursTempMin  float64 `json:"off_hours_temp_min" yaml:"off_hours_temp_min"`
	OffHoursTempMax  float64 `json:"off_hours_temp_max" yaml:"off_hours_temp_max"`
}

// DefaultContextualConfig returns standard office expectations: work hours
// 08:00-18:00 on weekdays, 400 ppm ambient CO2 plus 50 ppm per occupant.
func DefaultContextualConfig() ContextualConfig {
	return ContextualConfig{
		WorkHourStart:     8,
		WorkHourEnd:       18,
		BaselineCO2:       400,
		CO2PerPerson:      50,
		SeverityThreshold: 0.3,
		WorkHoursTempMin:  20,
		WorkHoursTempMax:  26,
		OffHoursTempMin:   16,
		OffHoursTempMax:   28,
	}
}

// ContextualDetector checks cross-parameter plausibility: CO2 against
// occupancy, occupancy against work hours, and temperature against time of
// day. Stateless between readings.
type ContextualDetector struct {
	config ContextualConfig
	logger *logrus.Logger
}

// NewContextualDetector creates a contextual detector.
func NewContextualDetector(config ContextualConfig, logger *logrus.Logger) *ContextualDetector {
	if logger == nil {
		logger = logrus.New()
	}
	return &ContextualDetector{config: config, logger: logger}
}

// Name implements Detector.
func (d *ContextualDetector) Name() string {
	return models.MethodContextual
}

// contextFinding is one rule's contribution to the contextual verdict.
type contextFinding struct {
	kind     string
	severity float64
	details  map[string]interface{}
}

// Detect runs every contextual rule and returns whether any finding's
// severity crosses the threshold, with the max severity as the score.
func (d *ContextualDetector) Detect(sensorID string, values map[string]float64, timestamp time.Time) (bool, float64, map[string]interface{}) {
	findings := d.evaluate(values, timestamp)
	if len(findings) == 0 {
		return false, 0, map[string]interface{}{"method": "contextual", "no_anomalies": true}
	}

	maxSeverity := 0.0
	anomalies := make([]map[string]interface{}, 0, len(findings))
	for _, f := range findings {
		if f.severity > maxSeverity {
			maxSeverity = f.severity
		}
		entry := map[string]interface{}{
			"type":     f.kind,
			"severity": f.severity,
		}
		for k, v := range f.details {
			entry[k] = v
		}
		anomalies = append(anomalies, entry)
	}

	details := map[string]interface{}{
		"method":          "contextual",
		"anomalies_found": anomalies,
		"timestamp":       timestamp.Format(time.RFC3339),
		"is_work_hours":   d.isWorkHours(timestamp),
	}

	return maxSeverity > d.config.SeverityThreshold, maxSeverity, details
}

// Process implements Detector.
func (d *ContextualDetector) Process(reading *models.Reading) ([]models.Detection, error) {
	isAnomaly, score, details := d.Detect(reading.SensorID, reading.Values, reading.Timestamp)
	if !isAnomaly {
		return nil, nil
	}
	return []models.Detection{{
		Method:    models.MethodContextual,
		Parameter: "context",
		Score:     score,
		Details:   details,
	}}, nil
}

func (d *ContextualDetector) evaluate(values map[string]float64, timestamp time.Time) []contextFinding {
	var findings []contextFinding

	occupancy, hasOccupancy := values[models.ParamOccupancy]
	co2, hasCO2 := values[models.ParamCO2]

	// CO2 should scale with how many people are breathing in the room.
	if hasOccupancy && hasCO2 {
		expectedCO2 := d.config.BaselineCO2 + occupancy*d.config.CO2PerPerson
		deviation := math.Abs(co2-expectedCO2) / math.Max(expectedCO2, 1)
		if deviation > 0.5 {
			findings = append(findings, contextFinding{
				kind:     "occupancy_co2_mismatch",
				severity: deviation,
				details: map[string]interface{}{
					"expected_co2": expectedCO2,
					"actual_co2":   co2,
				},
			})
		}
	}

	workHours := d.isWorkHours(timestamp)

	if hasOccupancy && !workHours && occupancy > 0 {
		findings = append(findings, contextFinding{
			kind:     "unexpected_occupancy",
			severity: occupancy / 10,
			details: map[string]interface{}{
				"time": timestamp.Format("15:04"),
				"day":  int(timestamp.Weekday()),
			},
		})
	}

	if temp, ok := values[models.ParamTemperature]; ok {
		lo, hi := d.config.OffHoursTempMin, d.config.OffHoursTempMax
		if workHours {
			lo, hi = d.config.WorkHoursTempMin, d.config.WorkHoursTempMax
		}
		if temp < lo || temp > hi {
			deviation := math.Max(math.Max(lo-temp, temp-hi), 0)
			findings = append(findings, contextFinding{
				kind:     "temperature_time_mismatch",
				severity: math.Min(deviation/5, 1.0),
				details: map[string]interface{}{
					"expected_range": fmt.Sprintf("%.1f-%.1f", lo, hi),
					"actual_temp":    temp,
				},
			})
		}
	}

	return findings
}

// isWorkHours reports whether the timestamp falls inside the configured
// weekday work window.
func (d *ContextualDetector) isWorkHours(t time.Time) bool {
	hour := t.Hour()
	weekday := t.Weekday()
	return hour >= d.config.WorkHourStart && hour <= d.config.WorkHourEnd &&
		weekday >= time.Monday && weekday <= time.Friday
}
