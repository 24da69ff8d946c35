package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/internal/alerting"
	"github.com/inferloop/hvacmon/internal/detectors"
	"github.com/inferloop/hvacmon/pkg/models"
)

const (
	// qualityAlertThreshold is the score below which a reading raises a
	// data-quality alert.
	qualityAlertThreshold = 0.5

	// historySize bounds the per-parameter history kept for consistency
	// checks.
	historySize = 10
)

// MetricsRecorder is the slice of metrics the pipeline emits. A nil recorder
// disables instrumentation.
type MetricsRecorder interface {
	RecordReading(location string, duration time.Duration)
	RecordDiscardedReading(reason string)
	RecordAnomaly(method string)
	RecordAlert(severity, alertType string)
	SetQualityScore(sensorID string, score float64)
	SetActiveAlerts(count float64)
}

// Sink consumes fully processed readings, typically persisting or publishing
// them. Sink failures are logged and never abort the pipeline.
type Sink interface {
	Name() string
	Consume(ctx context.Context, processed *ProcessedReading) error
}

// ProcessedReading is the pipeline's output for one reading: the anomaly
// verdict, data quality, smoothed values, trend labels, operator
// recommendations, and whatever alerts the reading raised.
type ProcessedReading struct {
	Reading         *models.Reading       `json:"reading"`
	ProcessedAt     time.Time             `json:"processed_at"`
	Anomaly         *models.AnomalyResult `json:"anomaly"`
	QualityScore    float64               `json:"quality_score"`
	FilteredValues  map[string]float64    `json:"filtered_values"`
	TrendIndicators map[string]string     `json:"trend_indicators"`
	Recommendations []string              `json:"recommendations,omitempty"`
	Alerts          []*models.Alert       `json:"alerts,omitempty"`
}

// Config tunes the processing pipeline.
type Config struct {
	FilterAlpha    float64        `json:"filter_alpha" yaml:"filter_alpha"`
	RoomCapacities map[string]int `json:"room_capacities" yaml:"room_capacities"`
}

// Processor runs the full per-reading pipeline: detection, smoothing,
// quality assessment, trend labeling, rule evaluation and alert raising.
// Readings from the same sensor are serialized on a per-sensor lock; readings
// from different sensors proceed in parallel.
type Processor struct {
	coordinator *detectors.Coordinator
	trend       *detectors.TrendDetector
	alerts      *alerting.Manager
	filter      *Filter
	quality     *QualityAssessor
	metrics     MetricsRecorder
	sinks       []Sink
	config      Config
	logger      *logrus.Logger

	mu          sync.Mutex
	sensorLocks map[string]*sync.Mutex
	histories   map[string]map[string][]float64
}

// NewProcessor wires the pipeline. trend may be nil to skip trend labels;
// metrics may be nil.
func NewProcessor(coordinator *detectors.Coordinator, trend *detectors.TrendDetector,
	alerts *alerting.Manager, config Config, metrics MetricsRecorder, logger *logrus.Logger) *Processor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Processor{
		coordinator: coordinator,
		trend:       trend,
		alerts:      alerts,
		filter:      NewFilter(config.FilterAlpha),
		quality:     NewQualityAssessor(),
		metrics:     metrics,
		config:      config,
		logger:      logger,
		sensorLocks: make(map[string]*sync.Mutex),
		histories:   make(map[string]map[string][]float64),
	}
}

// AddSink registers a consumer of processed readings. Call before Process.
func (p *Processor) AddSink(sink Sink) {
	p.sinks = append(p.sinks, sink)
}

// Process runs one reading through the pipeline. All side effects for the
// reading are applied before it returns.
func (p *Processor) Process(ctx context.Context, reading *models.Reading) (*ProcessedReading, error) {
	if err := reading.Validate(); err != nil {
		if p.metrics != nil {
			p.metrics.RecordDiscardedReading("malformed")
		}
		return nil, err
	}

	lock := p.sensorLock(reading.SensorID)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	history := p.historySnapshot(reading.SensorID)

	result, err := p.coordinator.Process(reading)
	if err != nil {
		return nil, err
	}

	qualityScore := p.quality.Assess(reading, history)
	filtered := p.filter.SmoothAll(reading.SensorID, reading.Values)
	trends := p.trendIndicators(reading.SensorID)

	processed := &ProcessedReading{
		Reading:         reading,
		ProcessedAt:     time.Now(),
		Anomaly:         result,
		QualityScore:    qualityScore,
		FilteredValues:  filtered,
		TrendIndicators: trends,
	}

	processed.Alerts = p.alerts.ProcessReading(reading.SensorID, reading.Values, reading.Location, reading.Timestamp)
	if alert := p.alerts.RaiseFromAnomaly(result, reading.Values, reading.Location); alert != nil {
		processed.Alerts = append(processed.Alerts, alert)
	}
	if alert := p.raiseQualityAlert(reading, qualityScore); alert != nil {
		processed.Alerts = append(processed.Alerts, alert)
	}

	processed.Recommendations = p.recommendations(reading, processed.Alerts, trends)

	p.appendHistory(reading.SensorID, reading.Values)
	p.record(reading, result, processed, time.Since(start))

	for _, sink := range p.sinks {
		if err := sink.Consume(ctx, processed); err != nil {
			p.logger.WithFields(logrus.Fields{
				"sink":      sink.Name(),
				"sensor_id": reading.SensorID,
				"error":     err.Error(),
			}).Error("Sink failed to consume processed reading")
		}
	}

	return processed, nil
}

func (p *Processor) sensorLock(sensorID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, ok := p.sensorLocks[sensorID]
	if !ok {
		lock = &sync.Mutex{}
		p.sensorLocks[sensorID] = lock
	}
	return lock
}

func (p *Processor) historySnapshot(sensorID string) map[string][]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	history := p.histories[sensorID]
	snapshot := make(map[string][]float64, len(history))
	for parameter, values := range history {
		snapshot[parameter] = append([]float64(nil), values...)
	}
	return snapshot
}

func (p *Processor) appendHistory(sensorID string, values map[string]float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	history, ok := p.histories[sensorID]
	if !ok {
		history = make(map[string][]float64)
		p.histories[sensorID] = history
	}
	for parameter, value := range values {
		series := append(history[parameter], value)
		if len(series) > historySize {
			series = series[len(series)-historySize:]
		}
		history[parameter] = series
	}
}

func (p *Processor) trendIndicators(sensorID string) map[string]string {
	if p.trend == nil {
		return nil
	}
	trends := make(map[string]string)
	for _, parameter := range []string{models.ParamTemperature, models.ParamHumidity, models.ParamCO2} {
		trends[parameter] = string(p.trend.Classify(sensorID, parameter))
	}
	return trends
}

// raiseQualityAlert reports readings whose quality score dropped below the
// alerting bar. Maintenance-mode sensors stay silent.
func (p *Processor) raiseQualityAlert(reading *models.Reading, score float64) *models.Alert {
	if score >= qualityAlertThreshold {
		return nil
	}
	if p.alerts.Engine().IsInMaintenance(reading.SensorID) {
		return nil
	}

	snapshot := make(map[string]float64, len(reading.Values))
	for k, v := range reading.Values {
		snapshot[k] = v
	}

	alert := &models.Alert{
		AlertID:           uuid.NewString(),
		SensorID:          reading.SensorID,
		Location:          reading.Location,
		AlertType:         models.AlertDataQualityLow,
		Severity:          models.SeverityLow,
		Status:            models.StatusActive,
		Message:           fmt.Sprintf("Data quality score %.2f from sensor %s at %s", score, reading.SensorID, reading.Location),
		Description:       fmt.Sprintf("Data Quality: score %.2f below %.2f", score, qualityAlertThreshold),
		Timestamp:         reading.Timestamp,
		Values:            snapshot,
		ThresholdViolated: fmt.Sprintf("quality_score less_than %v", qualityAlertThreshold),
		RecommendedAction: "Inspect sensor calibration and connectivity",
		Tags:              []string{"data_quality", strings.ToLower(string(models.SeverityLow))},
	}
	if err := p.alerts.Raise(alert); err != nil {
		p.logger.WithFields(logrus.Fields{
			"alert_id": alert.AlertID,
			"error":    err.Error(),
		}).Error("Failed to raise data quality alert")
		return nil
	}
	return alert
}

// recommendations turns the reading's alerts and trend labels into operator
// guidance.
func (p *Processor) recommendations(reading *models.Reading, alerts []*models.Alert, trends map[string]string) []string {
	var recs []string

	for _, alert := range alerts {
		switch alert.AlertType {
		case models.AlertTemperatureHigh, models.AlertTemperatureCriticalHigh:
			recs = append(recs, "Increase cooling output")
		case models.AlertTemperatureLow, models.AlertTemperatureCriticalLow:
			recs = append(recs, "Increase heating output")
		case models.AlertHumidityHigh:
			recs = append(recs, "Increase ventilation to reduce humidity")
		case models.AlertHumidityLow:
			recs = append(recs, "Add humidification")
		case models.AlertCO2High, models.AlertCO2Critical:
			recs = append(recs, "Increase ventilation to clear CO2")
		}
	}

	if trends[models.ParamTemperature] == string(detectors.TrendRisingFast) {
		recs = append(recs, "Temperature climbing fast, inspect cooling system")
	}
	if trends[models.ParamCO2] == string(detectors.TrendRisingFast) {
		recs = append(recs, "CO2 rising fast, increase fresh air intake immediately")
	}

	if occupancy, ok := reading.Value(models.ParamOccupancy); ok && occupancy > 0 {
		if capacity, known := p.config.RoomCapacities[reading.Location]; known && capacity > 0 {
			if occupancy/float64(capacity) > 0.8 {
				recs = append(recs, "High occupancy, boost cooling and ventilation")
			}
		}
	}

	return dedupe(recs)
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func (p *Processor) record(reading *models.Reading, result *models.AnomalyResult,
	processed *ProcessedReading, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	p.metrics.RecordReading(reading.Location, elapsed)
	p.metrics.SetQualityScore(reading.SensorID, processed.QualityScore)
	for _, method := range result.DetectionMethods {
		p.metrics.RecordAnomaly(method)
	}
	for _, alert := range processed.Alerts {
		p.metrics.RecordAlert(string(alert.Severity), string(alert.AlertType))
	}
	p.metrics.SetActiveAlerts(float64(p.alerts.Store().ActiveCount()))
}
