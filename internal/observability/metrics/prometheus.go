package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// PrometheusMetrics provides Prometheus-based metrics collection
type PrometheusMetrics struct {
	logger   *logrus.Logger
	registry *prometheus.Registry
	server   *http.Server
	config   *PrometheusConfig

	// Pipeline metrics
	readingsTotal     *prometheus.CounterVec
	readingDuration   *prometheus.HistogramVec
	anomaliesTotal    *prometheus.CounterVec
	qualityScore      *prometheus.GaugeVec
	readingsDiscarded *prometheus.CounterVec

	// Alerting metrics
	alertsTotal          *prometheus.CounterVec
	alertsActive         prometheus.Gauge
	escalationsTotal     *prometheus.CounterVec
	notificationsTotal   *prometheus.CounterVec
	notificationsDropped prometheus.Counter
	sensorsInMaintenance prometheus.Gauge

	// Transport and storage metrics
	mqttMessagesTotal      *prometheus.CounterVec
	storageOperationsTotal *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
}

// PrometheusConfig configures Prometheus metrics
type PrometheusConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Port      int    `json:"port" yaml:"port"`
	Path      string `json:"path" yaml:"path"`
	Namespace string `json:"namespace" yaml:"namespace"`
}

func getDefaultPrometheusConfig() *PrometheusConfig {
	return &PrometheusConfig{
		Enabled:   true,
		Port:      9090,
		Path:      "/metrics",
		Namespace: "hvacmon",
	}
}

// NewPrometheusMetrics creates a new Prometheus metrics instance
func NewPrometheusMetrics(config *PrometheusConfig, logger *logrus.Logger) (*PrometheusMetrics, error) {
	if config == nil {
		config = getDefaultPrometheusConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	pm := &PrometheusMetrics{
		logger:   logger,
		registry: prometheus.NewRegistry(),
		config:   config,
	}

	pm.initializeMetrics()
	if err := pm.registerMetrics(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	return pm, nil
}

// Start starts the Prometheus metrics server
func (pm *PrometheusMetrics) Start(ctx context.Context) error {
	if !pm.config.Enabled {
		pm.logger.Info("Prometheus metrics disabled")
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(pm.config.Path, promhttp.HandlerFor(pm.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))

	pm.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", pm.config.Port),
		Handler: mux,
	}

	pm.logger.WithFields(logrus.Fields{
		"port": pm.config.Port,
		"path": pm.config.Path,
	}).Info("Starting Prometheus metrics server")

	go func() {
		if err := pm.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			pm.logger.WithError(err).Error("Prometheus metrics server error")
		}
	}()
	return nil
}

// Stop stops the Prometheus metrics server
func (pm *PrometheusMetrics) Stop(ctx context.Context) error {
	if pm.server == nil {
		return nil
	}
	pm.logger.Info("Stopping Prometheus metrics server")
	return pm.server.Shutdown(ctx)
}

// Pipeline metrics

func (pm *PrometheusMetrics) RecordReading(location string, duration time.Duration) {
	pm.readingsTotal.WithLabelValues(location).Inc()
	pm.readingDuration.WithLabelValues(location).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) RecordDiscardedReading(reason string) {
	pm.readingsDiscarded.WithLabelValues(reason).Inc()
}

func (pm *PrometheusMetrics) RecordAnomaly(method string) {
	pm.anomaliesTotal.WithLabelValues(method).Inc()
}

func (pm *PrometheusMetrics) SetQualityScore(sensorID string, score float64) {
	pm.qualityScore.WithLabelValues(sensorID).Set(score)
}

// Alerting metrics

func (pm *PrometheusMetrics) RecordAlert(severity, alertType string) {
	pm.alertsTotal.WithLabelValues(severity, alertType).Inc()
}

func (pm *PrometheusMetrics) SetActiveAlerts(count float64) {
	pm.alertsActive.Set(count)
}

func (pm *PrometheusMetrics) RecordEscalation(severity string) {
	pm.escalationsTotal.WithLabelValues(severity).Inc()
}

func (pm *PrometheusMetrics) RecordNotification(channel, status string) {
	pm.notificationsTotal.WithLabelValues(channel, status).Inc()
}

func (pm *PrometheusMetrics) RecordDroppedNotification() {
	pm.notificationsDropped.Inc()
}

func (pm *PrometheusMetrics) SetSensorsInMaintenance(count float64) {
	pm.sensorsInMaintenance.Set(count)
}

// Transport and storage metrics

func (pm *PrometheusMetrics) RecordMQTTMessage(kind, direction string) {
	pm.mqttMessagesTotal.WithLabelValues(kind, direction).Inc()
}

func (pm *PrometheusMetrics) RecordStorageOperation(backend, operation, status string) {
	pm.storageOperationsTotal.WithLabelValues(backend, operation, status).Inc()
}

func (pm *PrometheusMetrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	pm.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	pm.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (pm *PrometheusMetrics) initializeMetrics() {
	namespace := pm.config.Namespace

	pm.readingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Total number of sensor readings processed",
		},
		[]string{"location"},
	)
	pm.readingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reading_processing_duration_seconds",
			Help:      "Time spent processing a sensor reading end to end",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"location"},
	)
	pm.readingsDiscarded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_discarded_total",
			Help:      "Readings discarded before processing",
		},
		[]string{"reason"},
	)
	pm.anomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Anomaly detections by method",
		},
		[]string{"method"},
	)
	pm.qualityScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading_quality_score",
			Help:      "Most recent data quality score per sensor",
		},
		[]string{"sensor_id"},
	)

	pm.alertsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alerts_total",
			Help:      "Alerts raised by severity and type",
		},
		[]string{"severity", "alert_type"},
	)
	pm.alertsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alerts_active",
			Help:      "Number of currently active alerts",
		},
	)
	pm.escalationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_escalations_total",
			Help:      "Alert escalations by severity",
		},
		[]string{"severity"},
	)
	pm.notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by channel and status",
		},
		[]string{"channel", "status"},
	)
	pm.notificationsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the dispatch queue was full",
		},
	)
	pm.sensorsInMaintenance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sensors_in_maintenance",
			Help:      "Number of sensors currently in maintenance mode",
		},
	)

	pm.mqttMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_messages_total",
			Help:      "MQTT messages by kind and direction",
		},
		[]string{"kind", "direction"},
	)
	pm.storageOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_operations_total",
			Help:      "Storage operations by backend, operation and status",
		},
		[]string{"backend", "operation", "status"},
	)
	pm.httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	pm.httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
}

func (pm *PrometheusMetrics) registerMetrics() error {
	collectors := []prometheus.Collector{
		pm.readingsTotal,
		pm.readingDuration,
		pm.readingsDiscarded,
		pm.anomaliesTotal,
		pm.qualityScore,
		pm.alertsTotal,
		pm.alertsActive,
		pm.escalationsTotal,
		pm.notificationsTotal,
		pm.notificationsDropped,
		pm.sensorsInMaintenance,
		pm.mqttMessagesTotal,
		pm.storageOperationsTotal,
		pm.httpRequestsTotal,
		pm.httpRequestDuration,
	}
	for _, collector := range collectors {
		if err := pm.registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}
