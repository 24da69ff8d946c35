package detectors

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/hvacmon/pkg/models"
)

const (
	// minSamples is the smallest window that supports a statistical verdict.
	minSamples = 10

	// modifiedZThreshold is the standard cutoff for the MAD-based score.
	modifiedZThreshold = 3.5

	// madScale rescales the MAD so the modified Z-score is comparable to a
	// standard Z-score under normality.
	madScale = 0.6745

	// iqrMultiplier widens the quartile fences for outlier detection.
	iqrMultiplier = 1.5
)

// StatisticalConfig configures the statistical detector.
type StatisticalConfig struct {
	WindowSize   int     `json:"window_size" yaml:"window_size"`
	StdThreshold float64 `json:"std_threshold" yaml:"std_threshold"`
}

// DefaultStatisticalConfig returns the default window and threshold.
func DefaultStatisticalConfig() StatisticalConfig {
	return StatisticalConfig{
		WindowSize:   50,
		StdThreshold: 2.5,
	}
}

// StatisticalDetector flags single readings that deviate from the recent
// per-(sensor, parameter) distribution, combining Z-score, modified Z-score
// and IQR fences.
type StatisticalDetector struct {
	mu      sync.Mutex
	config  StatisticalConfig
	windows map[windowKey]*window
	logger  *logrus.Logger
}

// NewStatisticalDetector creates a statistical detector.
func NewStatisticalDetector(config StatisticalConfig, logger *logrus.Logger) *StatisticalDetector {
	if logger == nil {
		logger = logrus.New()
	}
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultStatisticalConfig().WindowSize
	}
	if config.StdThreshold <= 0 {
		config.StdThreshold = DefaultStatisticalConfig().StdThreshold
	}
	return &StatisticalDetector{
		config:  config,
		windows: make(map[windowKey]*window),
		logger:  logger,
	}
}

// Name implements Detector.
func (d *StatisticalDetector) Name() string {
	return models.MethodStatistical
}

// Ingest appends a sample to the (sensor, parameter) window, evicting the
// oldest sample beyond capacity.
func (d *StatisticalDetector) Ingest(sensorID, parameter string, value float64, timestamp time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := windowKey{sensorID: sensorID, parameter: parameter}
	w, ok := d.windows[key]
	if !ok {
		w = newWindow(d.config.WindowSize)
		d.windows[key] = w
	}
	w.Append(value, timestamp)
}

// Detect scores a value against the current window contents.
func (d *StatisticalDetector) Detect(sensorID, parameter string, value float64) (bool, float64, map[string]interface{}) {
	d.mu.Lock()
	w, ok := d.windows[windowKey{sensorID: sensorID, parameter: parameter}]
	var values []float64
	if ok {
		values = w.Values()
	}
	d.mu.Unlock()

	if len(values) < minSamples {
		return false, 0, map[string]interface{}{"method": "insufficient_data"}
	}

	mean := stat.Mean(values, nil)
	std := popStdDev(values)
	if std == 0 {
		return false, 0, map[string]interface{}{"method": "no_variation"}
	}

	zScore := math.Abs((value - mean) / std)

	med := median(values)
	deviations := make([]float64, len(values))
	for i, v := range values {
		deviations[i] = math.Abs(v - med)
	}
	mad := median(deviations)
	modifiedZ := 0.0
	if mad > 0 {
		modifiedZ = madScale * (value - med) / mad
	}

	q1 := percentile(values, 25)
	q3 := percentile(values, 75)
	iqr := q3 - q1
	iqrLower := q1 - iqrMultiplier*iqr
	iqrUpper := q3 + iqrMultiplier*iqr
	iqrAnomaly := value < iqrLower || value > iqrUpper

	isAnomaly := zScore > d.config.StdThreshold ||
		math.Abs(modifiedZ) > modifiedZThreshold ||
		iqrAnomaly

	score := math.Min(math.Max(zScore/d.config.StdThreshold, math.Abs(modifiedZ)/modifiedZThreshold), 1.0)

	details := map[string]interface{}{
		"method":           "statistical",
		"z_score":          zScore,
		"modified_z_score": modifiedZ,
		"iqr_anomaly":      iqrAnomaly,
		"mean":             mean,
		"std":              std,
		"median":           med,
		"threshold":        d.config.StdThreshold,
	}

	return isAnomaly, score, details
}

// Process feeds every numeric parameter into its window and reports the
// parameters whose current value is anomalous.
func (d *StatisticalDetector) Process(reading *models.Reading) ([]models.Detection, error) {
	var detections []models.Detection

	for parameter, value := range reading.Values {
		d.Ingest(reading.SensorID, parameter, value, reading.Timestamp)

		isAnomaly, score, details := d.Detect(reading.SensorID, parameter, value)
		if !isAnomaly {
			continue
		}
		detections = append(detections, models.Detection{
			Method:    models.MethodStatistical,
			Parameter: parameter,
			Score:     score,
			Details:   details,
		})
	}

	return detections, nil
}
