package pipeline

import (
	"math"
	"sync"
)

const defaultFilterAlpha = 0.1

// Filter applies exponential smoothing per (sensor, parameter) to strip
// sensor noise. The first sample for a key passes through unchanged.
type Filter struct {
	mu    sync.Mutex
	alpha float64
	last  map[filterKey]float64
}

type filterKey struct {
	sensorID  string
	parameter string
}

// NewFilter creates a smoothing filter; alpha outside (0, 1] uses the
// default strength.
func NewFilter(alpha float64) *Filter {
	if alpha <= 0 || alpha > 1 {
		alpha = defaultFilterAlpha
	}
	return &Filter{
		alpha: alpha,
		last:  make(map[filterKey]float64),
	}
}

// Smooth returns the exponentially smoothed value for one parameter and
// updates the filter state.
func (f *Filter) Smooth(sensorID, parameter string, value float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := filterKey{sensorID: sensorID, parameter: parameter}
	prev, ok := f.last[key]
	if !ok {
		f.last[key] = value
		return value
	}

	smoothed := f.alpha*value + (1-f.alpha)*prev
	f.last[key] = smoothed
	return smoothed
}

// SmoothAll filters every parameter of a reading, rounded to two decimals.
func (f *Filter) SmoothAll(sensorID string, values map[string]float64) map[string]float64 {
	filtered := make(map[string]float64, len(values))
	for parameter, value := range values {
		filtered[parameter] = math.Round(f.Smooth(sensorID, parameter, value)*100) / 100
	}
	return filtered
}
