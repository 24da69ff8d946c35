package alerting

import (
	"time"

	"github.com/inferloop/hvacmon/pkg/models"
)

const defaultCorrelationWindow = 10 * time.Minute

var temperatureTypes = map[models.AlertType]bool{
	models.AlertTemperatureHigh:         true,
	models.AlertTemperatureLow:          true,
	models.AlertTemperatureCriticalHigh: true,
	models.AlertTemperatureCriticalLow:  true,
}

var humidityTypes = map[models.AlertType]bool{
	models.AlertHumidityHigh:         true,
	models.AlertHumidityLow:          true,
	models.AlertHumidityCriticalHigh: true,
	models.AlertHumidityCriticalLow:  true,
}

var co2Types = map[models.AlertType]bool{
	models.AlertCO2High:     true,
	models.AlertCO2Critical: true,
}

var systemWideTypes = map[models.AlertType]bool{
	models.AlertSystemMalfunction: true,
	models.AlertSensorOffline:     true,
	models.AlertDataQualityLow:    true,
}

// Correlator groups alerts that describe one underlying condition so
// downstream consumers can treat them as a single incident.
type Correlator struct {
	window time.Duration
}

// NewCorrelator creates a correlator with the given window; zero means the
// 10-minute default.
func NewCorrelator(window time.Duration) *Correlator {
	if window <= 0 {
		window = defaultCorrelationWindow
	}
	return &Correlator{window: window}
}

// Correlate returns the candidates related to the new alert. Only unresolved
// alerts within the correlation window are considered; the first matching
// rule wins per pair.
func (c *Correlator) Correlate(alert *models.Alert, candidates []*models.Alert) []*models.Alert {
	var related []*models.Alert
	for _, candidate := range candidates {
		if candidate.AlertID == alert.AlertID || candidate.IsResolved() {
			continue
		}
		gap := alert.Timestamp.Sub(candidate.Timestamp)
		if gap < 0 {
			gap = -gap
		}
		if gap > c.window {
			continue
		}
		if c.matches(alert, candidate) {
			related = append(related, candidate)
		}
	}
	return related
}

func (c *Correlator) matches(a, b *models.Alert) bool {
	return correlateTempHumidity(a, b) ||
		correlateCO2Occupancy(a, b) ||
		correlateSystemWide(a, b)
}

// Temperature and humidity on the same sensor usually share one HVAC cause.
func correlateTempHumidity(a, b *models.Alert) bool {
	crossed := (temperatureTypes[a.AlertType] && humidityTypes[b.AlertType]) ||
		(humidityTypes[a.AlertType] && temperatureTypes[b.AlertType])
	return crossed && a.SensorID == b.SensorID
}

// High CO2 with an occupancy anomaly in the same location points at
// ventilation, not two independent faults.
func correlateCO2Occupancy(a, b *models.Alert) bool {
	crossed := (co2Types[a.AlertType] && b.AlertType == models.AlertOccupancyAnomaly) ||
		(a.AlertType == models.AlertOccupancyAnomaly && co2Types[b.AlertType])
	return crossed && a.Location == b.Location
}

// System-level faults correlate pairwise regardless of sensor.
func correlateSystemWide(a, b *models.Alert) bool {
	return systemWideTypes[a.AlertType] && systemWideTypes[b.AlertType]
}

// SharedCorrelationID picks the correlation ID a new group should use: an
// existing one when any related alert is already grouped, otherwise the
// provided fresh ID. Reusing keeps transitively related alerts in one group.
func SharedCorrelationID(related []*models.Alert, fresh string) string {
	for _, alert := range related {
		if alert.CorrelationID != "" {
			return alert.CorrelationID
		}
	}
	return fresh
}
