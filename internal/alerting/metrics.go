package alerting

// Metrics is the instrumentation surface the alerting layer emits. A nil
// Metrics disables recording.
type Metrics interface {
	RecordEscalation(severity string)
	RecordNotification(channel, status string)
	SetSensorsInMaintenance(count float64)
}
