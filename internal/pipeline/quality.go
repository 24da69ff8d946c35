package pipeline

import (
	"math"
	"time"

	"github.com/inferloop/hvacmon/pkg/models"
)

// Physical plausibility bounds per parameter. Values outside these ranges
// degrade the reading's quality score rather than rejecting it outright.
const (
	validTempMin     = -20.0
	validTempMax     = 50.0
	validHumidityMin = 0.0
	validHumidityMax = 100.0
	validCO2Min      = 300.0
	validCO2Max      = 5000.0

	// staleThreshold is how far a reading's timestamp may sit from the wall
	// clock before the reading counts as stale.
	staleThreshold = 10 * time.Minute
)

// QualityAssessor scores readings in [0,1] from three independent checks:
// value plausibility, consistency with recent history, and timestamp
// freshness. Scores multiply, so multiple defects compound.
type QualityAssessor struct {
	now func() time.Time
}

// NewQualityAssessor creates a quality assessor.
func NewQualityAssessor() *QualityAssessor {
	return &QualityAssessor{now: time.Now}
}

// Assess scores one reading. history holds the sensor's recent per-parameter
// values, oldest first.
func (q *QualityAssessor) Assess(reading *models.Reading, history map[string][]float64) float64 {
	score := q.checkValidity(reading.Values)
	score *= q.checkConsistency(reading.Values, history)
	score *= q.checkFreshness(reading.Timestamp)
	return math.Max(0, math.Min(1, score))
}

func (q *QualityAssessor) checkValidity(values map[string]float64) float64 {
	score := 1.0
	if temp, ok := values[models.ParamTemperature]; ok {
		if temp < validTempMin || temp > validTempMax {
			score *= 0.5
		}
	}
	if humidity, ok := values[models.ParamHumidity]; ok {
		if humidity < validHumidityMin || humidity > validHumidityMax {
			score *= 0.5
		}
	}
	if co2, ok := values[models.ParamCO2]; ok {
		if co2 < validCO2Min || co2 > validCO2Max {
			score *= 0.5
		}
	}
	if occupancy, ok := values[models.ParamOccupancy]; ok {
		if occupancy < 0 {
			score *= 0.7
		}
	}
	return score
}

// checkConsistency compares each parameter against the spread of its recent
// history: a value deviating more than three times the historical maximum
// deviation is suspect.
func (q *QualityAssessor) checkConsistency(values map[string]float64, history map[string][]float64) float64 {
	score := 1.0
	for _, parameter := range []string{models.ParamTemperature, models.ParamHumidity, models.ParamCO2} {
		current, ok := values[parameter]
		if !ok {
			continue
		}
		recent := history[parameter]
		if len(recent) < 3 {
			continue
		}

		var sum float64
		for _, v := range recent {
			sum += v
		}
		mean := sum / float64(len(recent))

		var maxDeviation float64
		for _, v := range recent {
			maxDeviation = math.Max(maxDeviation, math.Abs(v-mean))
		}
		if maxDeviation > 0 && math.Abs(current-mean) > maxDeviation*3 {
			score *= 0.8
		}
	}
	return score
}

func (q *QualityAssessor) checkFreshness(timestamp time.Time) float64 {
	diff := q.now().Sub(timestamp)
	if diff < 0 {
		diff = -diff
	}
	if diff > staleThreshold {
		return 0.7
	}
	return 1.0
}
