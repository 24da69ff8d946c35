package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/internal/pipeline"
	"github.com/inferloop/hvacmon/pkg/errors"
	"github.com/inferloop/hvacmon/pkg/models"
)

const (
	defaultAlertStream  = "hvac:alerts"
	defaultStreamMaxLen = 10000
	defaultLatestTTL    = time.Hour
)

// Config contains Redis connection settings.
type Config struct {
	Addr         string        `json:"addr" yaml:"addr"`
	Password     string        `json:"password,omitempty" yaml:"password,omitempty"`
	DB           int           `json:"db" yaml:"db"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`
	AlertStream  string        `json:"alert_stream" yaml:"alert_stream"`
	StreamMaxLen int64         `json:"stream_max_len" yaml:"stream_max_len"`
	LatestTTL    time.Duration `json:"latest_ttl" yaml:"latest_ttl"`
}

// DefaultConfig returns the connection settings used when nothing is
// configured.
func DefaultConfig() *Config {
	return &Config{
		Addr:         "localhost:6379",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		AlertStream:  defaultAlertStream,
		StreamMaxLen: defaultStreamMaxLen,
		LatestTTL:    defaultLatestTTL,
	}
}

// StorageMetrics records storage operation counters.
type StorageMetrics interface {
	RecordStorageOperation(backend, operation, status string)
}

type noopMetrics struct{}

func (noopMetrics) RecordStorageOperation(backend, operation, status string) {}

// AlertStream appends raised alerts to a capped Redis stream and keeps
// the latest processed reading per sensor for dashboard lookups. It
// implements the pipeline sink interface.
type AlertStream struct {
	client  *redis.Client
	config  *Config
	metrics StorageMetrics
	logger  *logrus.Logger
}

// NewAlertStream creates the Redis-backed alert stream.
func NewAlertStream(config *Config, metrics StorageMetrics, logger *logrus.Logger) (*AlertStream, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.Addr == "" {
		return nil, errors.NewStorageError(errors.CodeInvalidInput, "Redis address is required")
	}
	if config.AlertStream == "" {
		config.AlertStream = defaultAlertStream
	}
	if config.StreamMaxLen == 0 {
		config.StreamMaxLen = defaultStreamMaxLen
	}
	if config.LatestTTL == 0 {
		config.LatestTTL = defaultLatestTTL
	}

	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		PoolSize:     config.PoolSize,
	})

	return &AlertStream{
		client:  client,
		config:  config,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Name identifies the sink.
func (s *AlertStream) Name() string {
	return "redis"
}

// Connect verifies the server is reachable.
func (s *AlertStream) Connect(ctx context.Context) error {
	if _, err := s.client.Ping(ctx).Result(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to connect to Redis")
	}
	s.logger.WithFields(logrus.Fields{
		"addr": s.config.Addr,
		"db":   s.config.DB,
	}).Info("Connected to Redis")
	return nil
}

// Consume appends the reading's alerts to the capped stream and caches
// the latest reading snapshot for its sensor.
func (s *AlertStream) Consume(ctx context.Context, pr *pipeline.ProcessedReading) error {
	for _, alert := range pr.Alerts {
		if err := s.AppendAlert(ctx, alert); err != nil {
			return err
		}
	}
	return s.cacheLatest(ctx, pr)
}

// AppendAlert appends a single alert record to the stream, trimming to
// the configured approximate length.
func (s *AlertStream) AppendAlert(ctx context.Context, alert *models.Alert) error {
	record := alert.ToRecord()
	payload, err := json.Marshal(record)
	if err != nil {
		return err
	}

	_, err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream:       s.config.AlertStream,
		MaxLenApprox: s.config.StreamMaxLen,
		Values: map[string]interface{}{
			"alert_id":   alert.AlertID,
			"alert_type": string(alert.AlertType),
			"severity":   string(alert.Severity),
			"sensor_id":  alert.SensorID,
			"record":     string(payload),
		},
	}).Result()
	if err != nil {
		s.metrics.RecordStorageOperation("redis", "append_alert", "error")
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to append alert to stream")
	}

	s.metrics.RecordStorageOperation("redis", "append_alert", "success")
	return nil
}

// RecentAlerts returns up to count of the newest alert records on the
// stream, newest first.
func (s *AlertStream) RecentAlerts(ctx context.Context, count int64) ([]*models.Alert, error) {
	entries, err := s.client.XRevRangeN(ctx, s.config.AlertStream, "+", "-", count).Result()
	if err != nil {
		s.metrics.RecordStorageOperation("redis", "read_alerts", "error")
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to read alert stream")
	}

	alerts := make([]*models.Alert, 0, len(entries))
	for _, entry := range entries {
		raw, ok := entry.Values["record"].(string)
		if !ok {
			continue
		}
		var record models.AlertRecord
		if err := json.Unmarshal([]byte(raw), &record); err != nil {
			s.logger.WithField("entry_id", entry.ID).Warn("Skipping undecodable alert record")
			continue
		}
		alert, err := models.AlertFromRecord(&record)
		if err != nil {
			s.logger.WithField("entry_id", entry.ID).Warn("Skipping invalid alert record")
			continue
		}
		alerts = append(alerts, alert)
	}

	s.metrics.RecordStorageOperation("redis", "read_alerts", "success")
	return alerts, nil
}

// LatestReading returns the cached snapshot for a sensor, or nil when
// no snapshot exists.
func (s *AlertStream) LatestReading(ctx context.Context, sensorID string) (*models.Reading, error) {
	raw, err := s.client.Get(ctx, latestKey(sensorID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeConnectionFailed, "failed to read latest reading")
	}

	var reading models.Reading
	if err := json.Unmarshal([]byte(raw), &reading); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeMalformedReading, "invalid cached reading")
	}
	return &reading, nil
}

// Close releases the connection pool.
func (s *AlertStream) Close() error {
	return s.client.Close()
}

func (s *AlertStream) cacheLatest(ctx context.Context, pr *pipeline.ProcessedReading) error {
	payload, err := json.Marshal(pr.Reading)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, latestKey(pr.Reading.SensorID), payload, s.config.LatestTTL).Err(); err != nil {
		s.metrics.RecordStorageOperation("redis", "cache_latest", "error")
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed, "failed to cache latest reading")
	}

	s.metrics.RecordStorageOperation("redis", "cache_latest", "success")
	return nil
}

func latestKey(sensorID string) string {
	return "hvac:latest:" + sensorID
}
