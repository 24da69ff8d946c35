package detectors

import (
	"math"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/hvacmon/pkg/models"
)

// MultivariateConfig configures the pluggable multivariate detector.
type MultivariateConfig struct {
	Enabled    bool    `json:"enabled" yaml:"enabled"`
	BufferSize int     `json:"buffer_size" yaml:"buffer_size"`
	MinSamples int     `json:"min_samples" yaml:"min_samples"`
	Threshold  float64 `json:"threshold" yaml:"threshold"`
}

// DefaultMultivariateConfig buffers 100 samples per sensor and needs 50
// before scoring.
func DefaultMultivariateConfig() MultivariateConfig {
	return MultivariateConfig{
		Enabled:    true,
		BufferSize: 100,
		MinSamples: 50,
		Threshold:  3.0,
	}
}

// MultivariateDetector scores whole readings against the joint distribution
// of a sensor's recent samples. The model is a diagonal-covariance distance:
// per-feature Z-scores recomputed from the rolling buffer, combined as a
// root-mean-square. It retrains incrementally as the buffer fills, standing
// in for heavier outlier models behind the same Detector interface.
type MultivariateDetector struct {
	mu      sync.Mutex
	config  MultivariateConfig
	buffers map[string][]map[string]float64
	logger  *logrus.Logger
}

// NewMultivariateDetector creates a multivariate detector.
func NewMultivariateDetector(config MultivariateConfig, logger *logrus.Logger) *MultivariateDetector {
	if logger == nil {
		logger = logrus.New()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultMultivariateConfig().BufferSize
	}
	if config.MinSamples <= 0 {
		config.MinSamples = DefaultMultivariateConfig().MinSamples
	}
	if config.Threshold <= 0 {
		config.Threshold = DefaultMultivariateConfig().Threshold
	}
	return &MultivariateDetector{
		config:  config,
		buffers: make(map[string][]map[string]float64),
		logger:  logger,
	}
}

// Name implements Detector.
func (d *MultivariateDetector) Name() string {
	return models.MethodMultivariate
}

// Observe buffers a sample for incremental training.
func (d *MultivariateDetector) Observe(sensorID string, values map[string]float64) {
	sample := make(map[string]float64, len(values))
	for k, v := range values {
		sample[k] = v
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	buf := append(d.buffers[sensorID], sample)
	if len(buf) > d.config.BufferSize {
		buf = buf[len(buf)-d.config.BufferSize:]
	}
	d.buffers[sensorID] = buf
}

// Detect scores a reading against the sensor's buffered distribution.
func (d *MultivariateDetector) Detect(sensorID string, values map[string]float64) (bool, float64, map[string]interface{}) {
	d.mu.Lock()
	buf := d.buffers[sensorID]
	d.mu.Unlock()

	if len(buf) < d.config.MinSamples {
		return false, 0, map[string]interface{}{"method": "model_not_trained"}
	}
	if len(values) < 2 {
		return false, 0, map[string]interface{}{"method": "insufficient_features"}
	}

	var features []string
	for name := range values {
		features = append(features, name)
	}
	sort.Strings(features)

	var sumSq float64
	var used int
	for _, feature := range features {
		series := make([]float64, 0, len(buf))
		for _, sample := range buf {
			if v, ok := sample[feature]; ok {
				series = append(series, v)
			}
		}
		if len(series) < d.config.MinSamples {
			continue
		}
		mean := stat.Mean(series, nil)
		std := popStdDev(series)
		if std == 0 {
			continue
		}
		z := (values[feature] - mean) / std
		sumSq += z * z
		used++
	}

	if used < 2 {
		return false, 0, map[string]interface{}{"method": "insufficient_features"}
	}

	distance := math.Sqrt(sumSq / float64(used))
	isAnomaly := distance > d.config.Threshold
	score := math.Min(distance/d.config.Threshold, 1.0)

	details := map[string]interface{}{
		"method":          "multivariate",
		"distance":        distance,
		"threshold":       d.config.Threshold,
		"features_used":   used,
		"trained_samples": len(buf),
	}

	return isAnomaly, score, details
}

// Process implements Detector: observe first, then score the same reading.
func (d *MultivariateDetector) Process(reading *models.Reading) ([]models.Detection, error) {
	if !d.config.Enabled {
		return nil, nil
	}

	d.Observe(reading.SensorID, reading.Values)

	isAnomaly, score, details := d.Detect(reading.SensorID, reading.Values)
	if !isAnomaly {
		return nil, nil
	}
	return []models.Detection{{
		Method:    models.MethodMultivariate,
		Parameter: "multivariate",
		Score:     score,
		Details:   details,
	}}, nil
}
