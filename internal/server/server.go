package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Config contains HTTP server configuration.
type Config struct {
	Host            string        `json:"host" yaml:"host"`
	Port            int           `json:"port" yaml:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout"`
}

func getDefaultConfig() *Config {
	return &Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server exposes the alerting and anomaly state over HTTP.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	handlers   *Handlers
	config     *Config
	logger     *logrus.Logger
}

// NewServer creates the API server around the given handlers.
func NewServer(config *Config, handlers *Handlers, logger *logrus.Logger) *Server {
	if config == nil {
		config = getDefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: handlers,
		config:   config,
		logger:   logger,
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.logger.WithFields(logrus.Fields{
		"host": s.config.Host,
		"port": s.config.Port,
	}).Info("Starting HTTP server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}

// Router exposes the underlying router, mainly for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handlers.Health).Methods("GET")

	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Alert endpoints
	api.HandleFunc("/alerts", s.handlers.ListAlerts).Methods("GET")
	api.HandleFunc("/alerts/summary", s.handlers.AlertSummary).Methods("GET")
	api.HandleFunc("/alerts/export", s.handlers.ExportAlerts).Methods("GET")
	api.HandleFunc("/alerts/{id}", s.handlers.GetAlert).Methods("GET")
	api.HandleFunc("/alerts/{id}/acknowledge", s.handlers.AcknowledgeAlert).Methods("POST")
	api.HandleFunc("/alerts/{id}/resolve", s.handlers.ResolveAlert).Methods("POST")
	api.HandleFunc("/alerts/{id}/suppress", s.handlers.SuppressAlert).Methods("POST")

	// Anomaly endpoints
	api.HandleFunc("/anomalies/summary", s.handlers.AnomalySummary).Methods("GET")
	api.HandleFunc("/anomalies/sensors/{id}", s.handlers.SensorAnomalyProfile).Methods("GET")

	// Rule endpoints
	api.HandleFunc("/rules", s.handlers.ListRules).Methods("GET")
	api.HandleFunc("/rules/import", s.handlers.ImportRules).Methods("POST")
	api.HandleFunc("/rules/{id}/enable", s.handlers.EnableRule).Methods("POST")
	api.HandleFunc("/rules/{id}/disable", s.handlers.DisableRule).Methods("POST")

	// Maintenance endpoints
	api.HandleFunc("/maintenance/{sensor_id}", s.handlers.SetMaintenance).Methods("POST")
	api.HandleFunc("/maintenance/{sensor_id}", s.handlers.ClearMaintenance).Methods("DELETE")

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
}
