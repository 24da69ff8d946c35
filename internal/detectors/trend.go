package detectors

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/hvacmon/pkg/models"
)

// TrendConfig configures the trend detector.
type TrendConfig struct {
	WindowSize int      `json:"window_size" yaml:"window_size"`
	Parameters []string `json:"parameters" yaml:"parameters"`
}

// DefaultTrendConfig returns the default trend window and the parameters
// worth trend-watching.
func DefaultTrendConfig() TrendConfig {
	return TrendConfig{
		WindowSize: 20,
		Parameters: []string{models.ParamTemperature, models.ParamHumidity, models.ParamCO2},
	}
}

// TrendClass labels the direction of a parameter's recent movement.
type TrendClass string

const (
	TrendStable      TrendClass = "stable"
	TrendRising      TrendClass = "rising"
	TrendRisingFast  TrendClass = "rising_fast"
	TrendFalling     TrendClass = "falling"
	TrendFallingFast TrendClass = "falling_fast"
	TrendUnknown     TrendClass = "insufficient_data"
)

// TrendDetector flags sudden changes and steep sustained trends in a
// per-(sensor, parameter) window, using a linear-regression slope and the
// first-difference series.
type TrendDetector struct {
	mu      sync.Mutex
	config  TrendConfig
	windows map[windowKey]*window
	logger  *logrus.Logger
}

// NewTrendDetector creates a trend detector.
func NewTrendDetector(config TrendConfig, logger *logrus.Logger) *TrendDetector {
	if logger == nil {
		logger = logrus.New()
	}
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultTrendConfig().WindowSize
	}
	if len(config.Parameters) == 0 {
		config.Parameters = DefaultTrendConfig().Parameters
	}
	return &TrendDetector{
		config:  config,
		windows: make(map[windowKey]*window),
		logger:  logger,
	}
}

// Name implements Detector.
func (d *TrendDetector) Name() string {
	return models.MethodTrend
}

// Ingest appends a sample to the trend window for (sensor, parameter).
func (d *TrendDetector) Ingest(sensorID, parameter string, value float64, timestamp time.Time) {
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

// Detect evaluates the current window for sudden changes and steep trends.
func (d *TrendDetector) Detect(sensorID, parameter string) (bool, float64, map[string]interface{}) {
	values := d.values(sensorID, parameter)
	if len(values) < minSamples {
		return false, 0, map[string]interface{}{"method": "insufficient_trend_data"}
	}

	slope, rSquared := indexRegression(values)

	diffs := make([]float64, len(values)-1)
	absSum := 0.0
	for i := 1; i < len(values); i++ {
		diffs[i-1] = values[i] - values[i-1]
		absSum += math.Abs(diffs[i-1])
	}
	meanDiff := absSum / float64(len(diffs))
	stdDiff := popStdDev(diffs)

	recent := diffs
	if len(diffs) >= 3 {
		recent = diffs[len(diffs)-3:]
	}
	recentSum := 0.0
	for _, v := range recent {
		recentSum += math.Abs(v)
	}
	recentMagnitude := recentSum / float64(len(recent))

	valuesStd := popStdDev(values)
	suddenChange := recentMagnitude > meanDiff+2*stdDiff
	steepTrend := math.Abs(slope) > 0.5*valuesStd

	isAnomaly := suddenChange || steepTrend

	changeScore := math.Min(recentMagnitude/(meanDiff+stdDiff+1e-6), 1.0)
	trendScore := math.Min(math.Abs(slope)/(valuesStd+1e-6), 1.0)
	score := math.Max(changeScore, trendScore)

	details := map[string]interface{}{
		"method":                  "trend_analysis",
		"slope":                   slope,
		"r_squared":               rSquared,
		"recent_change_magnitude": recentMagnitude,
		"mean_change":             meanDiff,
		"sudden_change":           suddenChange,
		"steep_trend":             steepTrend,
	}

	return isAnomaly, score, details
}

// Classify labels the current trend direction for a (sensor, parameter) pair.
func (d *TrendDetector) Classify(sensorID, parameter string) TrendClass {
	values := d.values(sensorID, parameter)
	if len(values) < 5 {
		return TrendUnknown
	}

	slope, _ := indexRegression(values)
	switch {
	case slope > 0.5:
		return TrendRisingFast
	case slope > 0.1:
		return TrendRising
	case slope < -0.5:
		return TrendFallingFast
	case slope < -0.1:
		return TrendFalling
	default:
		return TrendStable
	}
}

// Process ingests the tracked parameters and reports trend anomalies.
func (d *TrendDetector) Process(reading *models.Reading) ([]models.Detection, error) {
	var detections []models.Detection

	for _, parameter := range d.config.Parameters {
		value, ok := reading.Value(parameter)
		if !ok {
			continue
		}
		d.Ingest(reading.SensorID, parameter, value, reading.Timestamp)

		isAnomaly, score, details := d.Detect(reading.SensorID, parameter)
		if !isAnomaly {
			continue
		}
		detections = append(detections, models.Detection{
			Method:    models.MethodTrend,
			Parameter: parameter,
			Score:     score,
			Details:   details,
		})
	}

	return detections, nil
}

func (d *TrendDetector) values(sensorID, parameter string) []float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	w, ok := d.windows[windowKey{sensorID: sensorID, parameter: parameter}]
	if !ok {
		return nil
	}
	return w.Values()
}

// indexRegression fits value against sample index and returns the slope and
// the coefficient of determination.
func indexRegression(values []float64) (slope, rSquared float64) {
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(xs, values, nil, false)
	return beta, stat.RSquared(xs, values, nil, alpha, beta)
}
