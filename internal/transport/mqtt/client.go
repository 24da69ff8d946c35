package mqtt

import (
	"context"
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/errors"
)

// Client wraps a paho MQTT connection shared by the ingestor and the
// alert publisher.
type Client struct {
	config  *ClientConfig
	client  mqtt.Client
	logger  *logrus.Logger
	metrics MessageMetrics
	mu      sync.Mutex
	running bool
}

// ClientConfig contains MQTT client configuration.
type ClientConfig struct {
	Broker               string          `json:"broker" yaml:"broker"`
	Port                 int             `json:"port" yaml:"port"`
	ClientID             string          `json:"client_id" yaml:"client_id"`
	Username             string          `json:"username,omitempty" yaml:"username,omitempty"`
	Password             string          `json:"password,omitempty" yaml:"password,omitempty"`
	CleanSession         bool            `json:"clean_session" yaml:"clean_session"`
	KeepAlive            time.Duration   `json:"keep_alive" yaml:"keep_alive"`
	ConnectTimeout       time.Duration   `json:"connect_timeout" yaml:"connect_timeout"`
	WriteTimeout         time.Duration   `json:"write_timeout" yaml:"write_timeout"`
	PingTimeout          time.Duration   `json:"ping_timeout" yaml:"ping_timeout"`
	MaxReconnectInterval time.Duration   `json:"max_reconnect_interval" yaml:"max_reconnect_interval"`
	AutoReconnect        bool            `json:"auto_reconnect" yaml:"auto_reconnect"`
	TLS                  TLSConfig       `json:"tls" yaml:"tls"`
	LastWill             *LastWillConfig `json:"last_will,omitempty" yaml:"last_will,omitempty"`
	QoS                  byte            `json:"qos" yaml:"qos"`
	Topics               TopicConfig     `json:"topics" yaml:"topics"`
}

// TLSConfig contains TLS configuration for the broker connection.
type TLSConfig struct {
	Enabled            bool   `json:"enabled" yaml:"enabled"`
	InsecureSkipVerify bool   `json:"insecure_skip_verify" yaml:"insecure_skip_verify"`
	ServerName         string `json:"server_name,omitempty" yaml:"server_name,omitempty"`
}

// LastWillConfig contains last will and testament configuration.
type LastWillConfig struct {
	Topic    string `json:"topic" yaml:"topic"`
	Message  string `json:"message" yaml:"message"`
	QoS      byte   `json:"qos" yaml:"qos"`
	Retained bool   `json:"retained" yaml:"retained"`
}

// TopicConfig contains the topics used by the pipeline.
type TopicConfig struct {
	SensorData string `json:"sensor_data" yaml:"sensor_data"`
	Alerts     string `json:"alerts" yaml:"alerts"`
	Status     string `json:"status" yaml:"status"`
}

// MessageMetrics records MQTT traffic counters.
type MessageMetrics interface {
	RecordMQTTMessage(kind, direction string)
}

type noopMetrics struct{}

func (noopMetrics) RecordMQTTMessage(kind, direction string) {}

// DefaultClientConfig returns the broker settings used when nothing is
// configured.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Broker:               "localhost",
		Port:                 1883,
		ClientID:             "hvacmon-edge",
		CleanSession:         true,
		KeepAlive:            30 * time.Second,
		ConnectTimeout:       10 * time.Second,
		WriteTimeout:         5 * time.Second,
		PingTimeout:          10 * time.Second,
		MaxReconnectInterval: time.Minute,
		AutoReconnect:        true,
		QoS:                  1,
		Topics: TopicConfig{
			SensorData: "hvac/sensors/+/data",
			Alerts:     "hvac/alerts",
			Status:     "hvac/status",
		},
	}
}

// NewClient creates an MQTT client wrapper. The connection is not
// established until Connect is called.
func NewClient(config *ClientConfig, metrics MessageMetrics, logger *logrus.Logger) (*Client, error) {
	if config == nil {
		config = DefaultClientConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if config.Broker == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "MQTT broker must be specified")
	}
	if config.ClientID == "" {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "MQTT client ID must be specified")
	}

	c := &Client{
		config:  config,
		logger:  logger,
		metrics: metrics,
	}

	opts := mqtt.NewClientOptions()
	scheme := "tcp"
	if config.TLS.Enabled {
		scheme = "ssl"
		tlsConfig := &tls.Config{InsecureSkipVerify: config.TLS.InsecureSkipVerify}
		if config.TLS.ServerName != "" {
			tlsConfig.ServerName = config.TLS.ServerName
		}
		opts.SetTLSConfig(tlsConfig)
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, config.Broker, config.Port))
	opts.SetClientID(config.ClientID)
	opts.SetCleanSession(config.CleanSession)
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetPingTimeout(config.PingTimeout)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetWriteTimeout(config.WriteTimeout)
	opts.SetMaxReconnectInterval(config.MaxReconnectInterval)
	opts.SetAutoReconnect(config.AutoReconnect)

	if config.Username != "" {
		opts.SetUsername(config.Username)
		if config.Password != "" {
			opts.SetPassword(config.Password)
		}
	}

	if config.LastWill != nil {
		opts.SetWill(config.LastWill.Topic, config.LastWill.Message, config.LastWill.QoS, config.LastWill.Retained)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	return c, nil
}

// Connect establishes the broker connection.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.NewNetworkError(errors.CodeConnectionFailed, "timeout connecting to MQTT broker")
	}
	if err := token.Error(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeNetwork, errors.CodeConnectionFailed, "failed to connect to MQTT broker")
	}

	c.running = true
	c.logger.WithFields(logrus.Fields{
		"broker":    c.config.Broker,
		"port":      c.config.Port,
		"client_id": c.config.ClientID,
	}).Info("Connected to MQTT broker")

	return nil
}

// Disconnect closes the broker connection after a short quiesce.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}

	c.client.Disconnect(250)
	c.running = false
	c.logger.Info("Disconnected from MQTT broker")
}

// IsConnected reports whether the underlying client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// Topics returns the configured topic layout.
func (c *Client) Topics() TopicConfig {
	return c.config.Topics
}

func (c *Client) publish(topic string, payload []byte, retained bool) error {
	if !c.IsConnected() {
		return errors.NewNetworkError(errors.CodeConnectionFailed, "MQTT client is not connected")
	}

	token := c.client.Publish(topic, c.config.QoS, retained, payload)
	if !token.WaitTimeout(c.config.WriteTimeout) {
		return errors.NewNetworkError(errors.CodePublishFailed, "timeout publishing MQTT message")
	}
	if err := token.Error(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeNetwork, errors.CodePublishFailed, "failed to publish MQTT message")
	}
	return nil
}

func (c *Client) subscribe(topic string, handler mqtt.MessageHandler) error {
	token := c.client.Subscribe(topic, c.config.QoS, handler)
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.NewNetworkError(errors.CodeConnectionFailed, "timeout subscribing to MQTT topic")
	}
	if err := token.Error(); err != nil {
		return errors.WrapError(err, errors.ErrorTypeNetwork, errors.CodeConnectionFailed, "failed to subscribe to MQTT topic")
	}
	return nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.logger.WithField("client_id", c.config.ClientID).Debug("MQTT connection established")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.WithError(err).Warn("MQTT connection lost")
}
