package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

// ReadingHandler consumes decoded sensor readings.
type ReadingHandler interface {
	HandleReading(ctx context.Context, reading *models.Reading) error
}

// ReadingHandlerFunc adapts a function to the ReadingHandler interface.
type ReadingHandlerFunc func(ctx context.Context, reading *models.Reading) error

// HandleReading calls f.
func (f ReadingHandlerFunc) HandleReading(ctx context.Context, reading *models.Reading) error {
	return f(ctx, reading)
}

// Ingestor subscribes to the sensor data topic and feeds decoded
// readings into the processing pipeline.
type Ingestor struct {
	client  *Client
	handler ReadingHandler
	logger  *logrus.Logger
	mu      sync.Mutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewIngestor creates an ingestor bound to the client's sensor topic.
func NewIngestor(client *Client, handler ReadingHandler, logger *logrus.Logger) *Ingestor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ingestor{
		client:  client,
		handler: handler,
		logger:  logger,
	}
}

// Start subscribes to the sensor data topic. Messages are handled on
// the paho callback goroutine until Stop is called.
func (i *Ingestor) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.running {
		return nil
	}

	i.ctx, i.cancel = context.WithCancel(ctx)

	topic := i.client.Topics().SensorData
	if err := i.client.subscribe(topic, i.onMessage); err != nil {
		i.cancel()
		return err
	}

	i.running = true
	i.logger.WithField("topic", topic).Info("Subscribed to sensor data topic")
	return nil
}

// Stop cancels message handling. The broker subscription is released
// when the client disconnects.
func (i *Ingestor) Stop() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.running {
		return
	}

	i.cancel()
	i.running = false
	i.logger.Info("Sensor ingestor stopped")
}

func (i *Ingestor) onMessage(_ mqtt.Client, msg mqtt.Message) {
	i.client.metrics.RecordMQTTMessage("sensor_data", "inbound")

	reading, err := DecodeReading(msg.Topic(), msg.Payload())
	if err != nil {
		i.logger.WithFields(logrus.Fields{
			"topic": msg.Topic(),
			"error": err.Error(),
		}).Warn("Discarding undecodable sensor message")
		return
	}

	if err := i.handler.HandleReading(i.ctx, reading); err != nil {
		i.logger.WithFields(logrus.Fields{
			"sensor_id": reading.SensorID,
			"error":     err.Error(),
		}).Error("Failed to process sensor reading")
	}
}

// DecodeReading parses a sensor data payload. A missing sensor ID is
// filled from the topic segment (hvac/sensors/<id>/data) and a missing
// timestamp from the wall clock.
func DecodeReading(topic string, payload []byte) (*models.Reading, error) {
	var reading models.Reading
	if err := json.Unmarshal(payload, &reading); err != nil {
		return nil, err
	}

	if reading.SensorID == "" {
		reading.SensorID = sensorIDFromTopic(topic)
	}
	if reading.Timestamp.IsZero() {
		reading.Timestamp = time.Now().UTC()
	}

	return &reading, nil
}

func sensorIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) >= 3 && parts[0] == "hvac" && parts[1] == "sensors" {
		return parts[2]
	}
	return ""
}
