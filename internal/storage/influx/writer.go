package influx

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/internal/pipeline"
	"github.com/inferloop/hvacmon/pkg/errors"
)

// Config contains InfluxDB connection settings.
type Config struct {
	URL           string        `json:"url" yaml:"url"`
	Token         string        `json:"token" yaml:"token"`
	Organization  string        `json:"organization" yaml:"organization"`
	Bucket        string        `json:"bucket" yaml:"bucket"`
	BatchSize     int           `json:"batch_size" yaml:"batch_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`
	UseGZip       bool          `json:"use_gzip" yaml:"use_gzip"`
}

// DefaultConfig returns the connection settings used when nothing is
// configured.
func DefaultConfig() *Config {
	return &Config{
		URL:           "http://localhost:8086",
		Organization:  "hvacmon",
		Bucket:        "hvac",
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// StorageMetrics records storage operation counters.
type StorageMetrics interface {
	RecordStorageOperation(backend, operation, status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordStorageOperation(backend, operation, status string) {}

// Writer persists processed readings and anomaly scores to InfluxDB.
// It implements the pipeline sink interface; points are written through
// the non-blocking batch API.
type Writer struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	config   *Config
	metrics  StorageMetrics
	logger   *logrus.Logger
}

// NewWriter creates an InfluxDB writer. Connectivity is verified by Ping.
func NewWriter(config *Config, metrics StorageMetrics, logger *logrus.Logger) (*Writer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.URL == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "InfluxDB URL is required")
	}
	if config.BatchSize == 0 {
		config.BatchSize = 500
	}
	if config.FlushInterval == 0 {
		config.FlushInterval = time.Second
	}

	client := influxdb2.NewClientWithOptions(
		config.URL,
		config.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(config.BatchSize)).
			SetFlushInterval(uint(config.FlushInterval.Milliseconds())).
			SetUseGZip(config.UseGZip).
			SetPrecision(time.Millisecond),
	)

	w := &Writer{
		client:   client,
		writeAPI: client.WriteAPI(config.Organization, config.Bucket),
		config:   config,
		metrics:  metrics,
		logger:   logger,
	}

	go w.handleWriteErrors()

	return w, nil
}

// Name identifies the sink.
func (w *Writer) Name() string {
	return "influxdb"
}

// Ping verifies the server is reachable and healthy.
func (w *Writer) Ping(ctx context.Context) error {
	health, err := w.client.Health(ctx)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to reach InfluxDB")
	}
	if health.Status != "pass" {
		return errors.NewStorageError(errors.CodeConnectionFailed, "InfluxDB health check failed")
	}
	return nil
}

// Consume writes one processed reading: a point per reading with the
// filtered values as fields, and an anomaly point when a score exists.
func (w *Writer) Consume(ctx context.Context, pr *pipeline.ProcessedReading) error {
	reading := pr.Reading

	point := influxdb2.NewPointWithMeasurement("hvac_readings").
		AddTag("sensor_id", reading.SensorID).
		AddTag("location", reading.Location).
		AddField("quality_score", pr.QualityScore).
		SetTime(reading.Timestamp)

	for parameter, value := range reading.Values {
		point.AddField(parameter, value)
	}
	for parameter, value := range pr.FilteredValues {
		point.AddField(parameter+"_filtered", value)
	}

	w.writeAPI.WritePoint(point)
	w.metrics.RecordStorageOperation("influxdb", "write_reading", "success")

	if pr.Anomaly != nil && pr.Anomaly.IsAnomaly {
		anomalyPoint := influxdb2.NewPointWithMeasurement("hvac_anomalies").
			AddTag("sensor_id", reading.SensorID).
			AddTag("location", reading.Location).
			AddField("score", pr.Anomaly.OverallScore).
			AddField("detection_count", len(pr.Anomaly.Detections)).
			SetTime(reading.Timestamp)

		for _, method := range pr.Anomaly.DetectionMethods {
			anomalyPoint.AddTag("method_"+method, "true")
		}

		w.writeAPI.WritePoint(anomalyPoint)
		w.metrics.RecordStorageOperation("influxdb", "write_anomaly", "success")
	}

	return nil
}

// Close flushes pending writes and releases the client.
func (w *Writer) Close() {
	w.writeAPI.Flush()
	w.client.Close()
	w.logger.Info("InfluxDB writer closed")
}

func (w *Writer) handleWriteErrors() {
	for err := range w.writeAPI.Errors() {
		w.metrics.RecordStorageOperation("influxdb", "write_reading", "error")
		w.logger.WithError(err).Error("InfluxDB write failed")
	}
}
