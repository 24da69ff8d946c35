package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/hvacmon/internal/alerting"
	"github.com/inferloop/hvacmon/internal/config"
	"github.com/inferloop/hvacmon/internal/detectors"
	"github.com/inferloop/hvacmon/internal/observability/metrics"
	"github.com/inferloop/hvacmon/internal/pipeline"
	"github.com/inferloop/hvacmon/internal/server"
	"github.com/inferloop/hvacmon/internal/simulator"
	"github.com/inferloop/hvacmon/internal/storage/influx"
	storageredis "github.com/inferloop/hvacmon/internal/storage/redis"
	"github.com/inferloop/hvacmon/internal/transport/mqtt"
	"github.com/inferloop/hvacmon/pkg/models"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgFile)
		},
	}
}

func runServe(cfgFile string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"commit":  GitCommit,
	}).Info("Starting HVAC monitoring daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Metrics
	var promMetrics *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		promMetrics, err = metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
		if err != nil {
			return err
		}
		if err := promMetrics.Start(ctx); err != nil {
			return err
		}
		defer promMetrics.Stop(context.Background())
	}

	// Detectors
	trendDetector := detectors.NewTrendDetector(cfg.Detectors.Trend, logger)
	coordinator := detectors.NewCoordinator([]detectors.Detector{
		detectors.NewStatisticalDetector(cfg.Detectors.Statistical, logger),
		trendDetector,
		detectors.NewContextualDetector(cfg.Detectors.Contextual, logger),
		detectors.NewMultivariateDetector(cfg.Detectors.Multivariate, logger),
	}, logger)

	// Alerting
	engine := alerting.NewEngine(alerting.DefaultRuleSet(), logger)
	store := alerting.NewStore(logger)

	dispatcher := alerting.NewDispatcher(cfg.Alerting.QueueSize, logger)
	for _, name := range []string{"email", "slack", "sms"} {
		dispatcher.Register(alerting.NewLogChannel(name, logger))
	}
	escalator := alerting.NewEscalator(store, dispatcher, nil, cfg.Alerting.SweepInterval, logger)
	if promMetrics != nil {
		dispatcher.SetDropHandler(promMetrics.RecordDroppedNotification)
		dispatcher.SetMetrics(promMetrics)
		escalator.SetMetrics(promMetrics)
		engine.SetMetrics(promMetrics)
	}
	correlator := alerting.NewCorrelator(cfg.Alerting.CorrelationWindow)
	manager := alerting.NewManager(engine, store, correlator, escalator, logger)

	// Pipeline
	var pipelineMetrics pipeline.MetricsRecorder
	if promMetrics != nil {
		pipelineMetrics = promMetrics
	}
	processor := pipeline.NewProcessor(coordinator, trendDetector, manager, cfg.Pipeline, pipelineMetrics, logger)

	// Storage sinks
	if cfg.InfluxDB.Enabled {
		var storageMetrics influx.StorageMetrics
		if promMetrics != nil {
			storageMetrics = promMetrics
		}
		writer, err := influx.NewWriter(&cfg.InfluxDB.Config, storageMetrics, logger)
		if err != nil {
			return err
		}
		defer writer.Close()
		if err := writer.Ping(ctx); err != nil {
			logger.WithError(err).Warn("InfluxDB unreachable, writes will be retried by the batch API")
		}
		processor.AddSink(writer)
	}

	if cfg.Redis.Enabled {
		var storageMetrics storageredis.StorageMetrics
		if promMetrics != nil {
			storageMetrics = promMetrics
		}
		stream, err := storageredis.NewAlertStream(&cfg.Redis.Config, storageMetrics, logger)
		if err != nil {
			return err
		}
		defer stream.Close()
		if err := stream.Connect(ctx); err != nil {
			return err
		}
		processor.AddSink(stream)
	}

	// Notification and escalation workers
	go dispatcher.Run(ctx)
	go escalator.Run(ctx)

	// MQTT ingest and alert publishing
	var mqttMetrics mqtt.MessageMetrics
	if promMetrics != nil {
		mqttMetrics = promMetrics
	}
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, mqttMetrics, logger)
	if err != nil {
		return err
	}

	if err := mqttClient.Connect(ctx); err != nil {
		logger.WithError(err).Warn("MQTT broker unreachable, running without MQTT transport")
	} else {
		defer mqttClient.Disconnect()

		ingestor := mqtt.NewIngestor(mqttClient, mqtt.ReadingHandlerFunc(
			func(ctx context.Context, reading *models.Reading) error {
				_, err := processor.Process(ctx, reading)
				return err
			}), logger)
		if err := ingestor.Start(ctx); err != nil {
			return err
		}
		defer ingestor.Stop()

		publisher := mqtt.NewAlertPublisher(mqttClient, logger)
		processor.AddSink(publisher)
		if cfg.Alerting.MQTTNotifications {
			dispatcher.Register(publisher)
		}
	}

	// Simulated sensor fleet
	if cfg.Simulator.Enabled {
		fleet := simulator.NewFleet(func(ctx context.Context, reading *models.Reading) {
			if _, err := processor.Process(ctx, reading); err != nil {
				logger.WithFields(logrus.Fields{
					"sensor_id": reading.SensorID,
					"error":     err.Error(),
				}).Error("Failed to process simulated reading")
			}
		}, cfg.Simulator.Interval, logger)
		fleet.Start(ctx)
		defer fleet.Stop()
	}

	// HTTP API
	var httpMetrics server.HTTPMetrics
	if promMetrics != nil {
		httpMetrics = promMetrics
	}
	handlers := server.NewHandlers(manager, coordinator, httpMetrics, logger)
	srv := server.NewServer(&cfg.Server, handlers, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.WithError(err).Error("HTTP server failed")
			return err
		}
	}

	if err := srv.Stop(context.Background()); err != nil {
		logger.WithError(err).Error("HTTP server shutdown failed")
	}

	logger.Info("Daemon stopped")
	return nil
}

func setupLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	return logger
}
