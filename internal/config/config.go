package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/inferloop/hvacmon/internal/detectors"
	"github.com/inferloop/hvacmon/internal/observability/metrics"
	"github.com/inferloop/hvacmon/internal/pipeline"
	"github.com/inferloop/hvacmon/internal/server"
	"github.com/inferloop/hvacmon/internal/storage/influx"
	storageredis "github.com/inferloop/hvacmon/internal/storage/redis"
	"github.com/inferloop/hvacmon/internal/transport/mqtt"
)

// Config aggregates every component's settings.
type Config struct {
	Logging   LoggingConfig            `yaml:"logging"`
	Server    server.Config            `yaml:"server"`
	MQTT      mqtt.ClientConfig        `yaml:"mqtt"`
	InfluxDB  InfluxConfig             `yaml:"influxdb"`
	Redis     RedisConfig              `yaml:"redis"`
	Metrics   metrics.PrometheusConfig `yaml:"metrics"`
	Pipeline  pipeline.Config          `yaml:"pipeline"`
	Detectors DetectorConfig           `yaml:"detectors"`
	Alerting  AlertingConfig           `yaml:"alerting"`
	Simulator SimulatorConfig          `yaml:"simulator"`
}

// LoggingConfig controls the process-wide logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// InfluxConfig wraps the InfluxDB settings with an enable switch.
type InfluxConfig struct {
	Enabled bool `yaml:"enabled"`
	influx.Config `yaml:",inline"`
}

// RedisConfig wraps the Redis settings with an enable switch.
type RedisConfig struct {
	Enabled bool `yaml:"enabled"`
	storageredis.Config `yaml:",inline"`
}

// DetectorConfig groups the anomaly detector tunables.
type DetectorConfig struct {
	Statistical  detectors.StatisticalConfig  `yaml:"statistical"`
	Trend        detectors.TrendConfig        `yaml:"trend"`
	Contextual   detectors.ContextualConfig   `yaml:"contextual"`
	Multivariate detectors.MultivariateConfig `yaml:"multivariate"`
}

// AlertingConfig groups the alert delivery tunables.
type AlertingConfig struct {
	QueueSize         int           `yaml:"queue_size"`
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	CorrelationWindow time.Duration `yaml:"correlation_window"`
	MQTTNotifications bool          `yaml:"mqtt_notifications"`
}

// SimulatorConfig controls the virtual sensor fleet.
type SimulatorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Server: server.Config{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		MQTT: *mqtt.DefaultClientConfig(),
		InfluxDB: InfluxConfig{
			Enabled: false,
			Config:  *influx.DefaultConfig(),
		},
		Redis: RedisConfig{
			Enabled: false,
			Config:  *storageredis.DefaultConfig(),
		},
		Metrics: metrics.PrometheusConfig{
			Enabled:   true,
			Port:      9090,
			Path:      "/metrics",
			Namespace: "hvacmon",
		},
		Pipeline: pipeline.Config{
			FilterAlpha: 0.1,
		},
		Detectors: DetectorConfig{
			Statistical:  detectors.DefaultStatisticalConfig(),
			Trend:        detectors.DefaultTrendConfig(),
			Contextual:   detectors.DefaultContextualConfig(),
			Multivariate: detectors.DefaultMultivariateConfig(),
		},
		Alerting: AlertingConfig{
			QueueSize:         256,
			SweepInterval:     30 * time.Second,
			CorrelationWindow: 10 * time.Minute,
		},
		Simulator: SimulatorConfig{
			Enabled:  false,
			Interval: 5 * time.Second,
		},
	}
}

// Load reads the configuration file, layering it over the defaults.
// A missing file is not an error; environment variables with the
// HVACMON_ prefix override file values.
func Load(cfgFile string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/hvacmon")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("HVACMON")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config, yamlTagName); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return config, nil
}

// yamlTagName keys the decoder off the yaml tags the component configs
// already carry.
func yamlTagName(dc *mapstructure.DecoderConfig) {
	dc.TagName = "yaml"
	dc.Squash = true
}
