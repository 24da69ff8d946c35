package detectors

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

const historyLimit = 1000

// Coordinator fans a reading out to every registered detector and merges
// the per-method findings into a single result. A detector failure degrades
// to a warning so the remaining detectors still run.
type Coordinator struct {
	mu        sync.Mutex
	detectors []Detector
	history   []*models.AnomalyResult
	logger    *logrus.Logger
}

// NewCoordinator creates a coordinator over the given detectors.
func NewCoordinator(detectors []Detector, logger *logrus.Logger) *Coordinator {
	if logger == nil {
		logger = logrus.New()
	}
	return &Coordinator{
		detectors: detectors,
		logger:    logger,
	}
}

// Process runs all detectors on a reading and merges their findings. The
// overall score is the maximum across detections and the result lists every
// method that fired.
func (c *Coordinator) Process(reading *models.Reading) (*models.AnomalyResult, error) {
	if err := reading.Validate(); err != nil {
		return nil, err
	}

	result := &models.AnomalyResult{
		SensorID:  reading.SensorID,
		Timestamp: reading.Timestamp,
	}

	methods := make(map[string]bool)
	for _, detector := range c.detectors {
		detections, err := detector.Process(reading)
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"detector":  detector.Name(),
				"sensor_id": reading.SensorID,
				"error":     err.Error(),
			}).Warn("Detector failed, continuing with remaining detectors")
			continue
		}
		for _, det := range detections {
			result.Detections = append(result.Detections, det)
			result.OverallScore = math.Max(result.OverallScore, det.Score)
			methods[det.Method] = true
		}
	}

	for method := range methods {
		result.DetectionMethods = append(result.DetectionMethods, method)
	}
	result.IsAnomaly = len(result.Detections) > 0

	c.record(result)
	return result, nil
}

func (c *Coordinator) record(result *models.AnomalyResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.history = append(c.history, result)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
}

// Summary aggregates anomaly counts over the trailing window.
func (c *Coordinator) Summary(hours int) *models.AnomalySummary {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	c.mu.Lock()
	defer c.mu.Unlock()

	summary := &models.AnomalySummary{}
	methods := make(map[string]bool)
	sensors := make(map[string]bool)
	var scoreSum float64

	for _, result := range c.history {
		if result.Timestamp.Before(cutoff) {
			continue
		}
		summary.TotalReadings++
		if !result.IsAnomaly {
			continue
		}
		summary.AnomaliesFound++
		sensors[result.SensorID] = true
		scoreSum += result.OverallScore
		summary.MaxScore = math.Max(summary.MaxScore, result.OverallScore)
		for _, method := range result.DetectionMethods {
			methods[method] = true
		}
	}

	for method := range methods {
		summary.MethodsUsed = append(summary.MethodsUsed, method)
	}
	sort.Strings(summary.MethodsUsed)
	for sensor := range sensors {
		summary.SensorsAffected = append(summary.SensorsAffected, sensor)
	}
	sort.Strings(summary.SensorsAffected)

	if summary.TotalReadings > 0 {
		summary.AnomalyRate = float64(summary.AnomaliesFound) / float64(summary.TotalReadings)
	}
	if summary.AnomaliesFound > 0 {
		summary.AverageScore = scoreSum / float64(summary.AnomaliesFound)
	}
	return summary
}

// SensorProfile aggregates anomaly activity for a single sensor over the
// trailing window.
func (c *Coordinator) SensorProfile(sensorID string, hours int) *models.SensorAnomalyProfile {
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour)

	c.mu.Lock()
	defer c.mu.Unlock()

	profile := &models.SensorAnomalyProfile{
		SensorID:           sensorID,
		ParameterAnomalies: make(map[string]int),
		MethodBreakdown:    make(map[string]int),
	}

	for _, result := range c.history {
		if result.SensorID != sensorID || result.Timestamp.Before(cutoff) {
			continue
		}
		profile.TotalReadings++
		if !result.IsAnomaly {
			continue
		}
		profile.AnomaliesFound++
		for _, det := range result.Detections {
			profile.ParameterAnomalies[det.Parameter]++
		}
		for _, method := range result.DetectionMethods {
			profile.MethodBreakdown[method]++
		}
		if len(profile.RecentAnomalies) < 10 {
			profile.RecentAnomalies = append(profile.RecentAnomalies, *result)
		}
	}

	if profile.TotalReadings > 0 {
		profile.AnomalyRate = float64(profile.AnomaliesFound) / float64(profile.TotalReadings)
	}
	return profile
}
