package models

import "time"

// Detection method names reported in anomaly verdicts.
const (
	MethodStatistical  = "statistical"
	MethodTrend        = "trend"
	MethodContextual   = "contextual"
	MethodMultivariate = "multivariate"
)

// Detection is one detector's positive finding for a reading.
type Detection struct {
	Method    string                 `json:"method"`
	Parameter string                 `json:"parameter"`
	Score     float64                `json:"anomaly_score"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// AnomalyResult is the unified verdict the coordinator produces per reading.
// OverallScore is the max across contributing detections, clamped to [0,1].
type AnomalyResult struct {
	SensorID         string      `json:"sensor_id"`
	Timestamp        time.Time   `json:"timestamp"`
	IsAnomaly        bool        `json:"is_anomaly"`
	OverallScore     float64     `json:"overall_anomaly_score"`
	Detections       []Detection `json:"anomalies_detected,omitempty"`
	DetectionMethods []string    `json:"detection_methods,omitempty"`
}

// AnomalySummary aggregates coordinator history over a time window.
type AnomalySummary struct {
	TotalReadings    int      `json:"total_readings"`
	AnomaliesFound   int      `json:"anomalies_detected"`
	AnomalyRate      float64  `json:"anomaly_rate"`
	MethodsUsed      []string `json:"methods_used"`
	SensorsAffected  []string `json:"sensors_affected"`
	AverageScore     float64  `json:"average_anomaly_score"`
	MaxScore         float64  `json:"max_anomaly_score"`
}

// SensorAnomalyProfile breaks anomalies down for a single sensor.
type SensorAnomalyProfile struct {
	SensorID           string          `json:"sensor_id"`
	TotalReadings      int             `json:"total_readings"`
	AnomaliesFound     int             `json:"anomalies_detected"`
	AnomalyRate        float64         `json:"anomaly_rate"`
	ParameterAnomalies map[string]int  `json:"parameter_anomalies"`
	MethodBreakdown    map[string]int  `json:"method_breakdown"`
	RecentAnomalies    []AnomalyResult `json:"recent_anomalies,omitempty"`
}
