package detectors

import (
	"github.com/inferloop/hvacmon/pkg/models"
)

// Detector is the capability shared by all anomaly detectors. Process ingests
// the reading into whatever state the detector keeps and returns its positive
// detections for that reading. An empty slice is a valid negative result; an
// error degrades to "no detection" for that method in the coordinator fan-out.
type Detector interface {
	Name() string
	Process(reading *models.Reading) ([]models.Detection, error)
}

// windowKey identifies a per-(sensor, parameter) detection window.
type windowKey struct {
	sensorID  string
	parameter string
}
