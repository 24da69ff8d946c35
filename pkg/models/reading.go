package models

import (
	"encoding/json"
	"time"

	"github.com/inferloop/hvacmon/pkg/errors"
)

// Reading is a single sensor sampling tick: one immutable snapshot of every
// numeric parameter a sensor reports (temperature, humidity, co2, occupancy,
// air_quality_index, ...).
type Reading struct {
	SensorID  string             `json:"sensor_id"`
	Location  string             `json:"location"`
	Timestamp time.Time          `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// Well-known parameter names.
const (
	ParamTemperature     = "temperature"
	ParamHumidity        = "humidity"
	ParamCO2             = "co2"
	ParamOccupancy       = "occupancy"
	ParamAirQualityIndex = "air_quality_index"
)

// Value returns the named parameter and whether it is present.
func (r *Reading) Value(parameter string) (float64, bool) {
	v, ok := r.Values[parameter]
	return v, ok
}

// Validate checks the reading carries the fields the pipeline requires.
func (r *Reading) Validate() error {
	if r.SensorID == "" {
		return errors.NewValidationError(errors.CodeMissingField, "sensor_id is required")
	}
	if r.Timestamp.IsZero() {
		return errors.NewValidationError(errors.CodeMissingField, "timestamp is required")
	}
	if len(r.Values) == 0 {
		return errors.NewValidationError(errors.CodeMalformedReading, "reading carries no parameter values")
	}
	return nil
}

// readingRecord is the wire form: timestamps as ISO8601 strings.
type readingRecord struct {
	SensorID  string             `json:"sensor_id"`
	Location  string             `json:"location"`
	Timestamp string             `json:"timestamp"`
	Values    map[string]float64 `json:"values"`
}

// MarshalJSON serializes the reading with an RFC3339 timestamp.
func (r Reading) MarshalJSON() ([]byte, error) {
	return json.Marshal(readingRecord{
		SensorID:  r.SensorID,
		Location:  r.Location,
		Timestamp: r.Timestamp.Format(time.RFC3339Nano),
		Values:    r.Values,
	})
}

// UnmarshalJSON parses the wire form back into a Reading.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var rec readingRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	var ts time.Time
	if rec.Timestamp != "" {
		var err error
		ts, err = time.Parse(time.RFC3339Nano, rec.Timestamp)
		if err != nil {
			return errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeMalformedReading, "invalid reading timestamp")
		}
	}
	r.SensorID = rec.SensorID
	r.Location = rec.Location
	r.Timestamp = ts
	r.Values = rec.Values
	return nil
}
