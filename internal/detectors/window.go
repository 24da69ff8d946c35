package detectors

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// point is one observed sample inside a detection window.
type point struct {
	value     float64
	timestamp time.Time
}

// window is a fixed-capacity ring of samples for one (sensor, parameter)
// pair. The oldest sample is evicted on overflow. A window is owned by a
// single detector and mutated only through Append.
type window struct {
	points   []point
	capacity int
	start    int
	size     int
}

func newWindow(capacity int) *window {
	return &window{
		points:   make([]point, capacity),
		capacity: capacity,
	}
}

// Append adds a sample, evicting the oldest when full.
func (w *window) Append(value float64, timestamp time.Time) {
	idx := (w.start + w.size) % w.capacity
	w.points[idx] = point{value: value, timestamp: timestamp}
	if w.size < w.capacity {
		w.size++
	} else {
		w.start = (w.start + 1) % w.capacity
	}
}

// Len returns the number of samples currently held.
func (w *window) Len() int {
	return w.size
}

// Values returns the samples oldest-first. The slice is freshly allocated;
// statistics are always recomputed from it, never carried incrementally.
func (w *window) Values() []float64 {
	values := make([]float64, w.size)
	for i := 0; i < w.size; i++ {
		values[i] = w.points[(w.start+i)%w.capacity].value
	}
	return values
}

// popStdDev is the population standard deviation (divide by n, not n-1).
func popStdDev(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	mean := stat.Mean(values, nil)
	var sum float64
	for _, v := range values {
		d := v - mean
		sum += d * d
	}
	return math.Sqrt(sum / float64(len(values)))
}

// median returns the middle value, averaging the two middles for even n.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// percentile computes the p-th percentile with linear interpolation between
// order statistics.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}
