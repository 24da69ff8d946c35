package mqtt

import (
	"context"
	"encoding/json"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/internal/pipeline"
	"github.com/inferloop/hvacmon/pkg/models"
)

// AlertPublisher publishes alert records to the alerts topic. It also
// satisfies the notification channel interface so escalations can fan
// out over MQTT alongside email and slack.
type AlertPublisher struct {
	client *Client
	logger *logrus.Logger
}

// NewAlertPublisher creates a publisher bound to the client's alerts topic.
func NewAlertPublisher(client *Client, logger *logrus.Logger) *AlertPublisher {
	if logger == nil {
		logger = logrus.New()
	}
	return &AlertPublisher{client: client, logger: logger}
}

// Name identifies the publisher as a notification channel.
func (p *AlertPublisher) Name() string {
	return "mqtt"
}

// PublishAlert serializes the alert wire record to the alerts topic.
func (p *AlertPublisher) PublishAlert(ctx context.Context, alert *models.Alert) error {
	payload, err := json.Marshal(alert.ToRecord())
	if err != nil {
		return err
	}

	if err := p.client.publish(p.client.Topics().Alerts, payload, false); err != nil {
		return err
	}

	p.client.metrics.RecordMQTTMessage("alert", "outbound")
	p.logger.WithFields(logrus.Fields{
		"alert_id": alert.AlertID,
		"severity": string(alert.Severity),
		"topic":    p.client.Topics().Alerts,
	}).Debug("Published alert")

	return nil
}

// Consume publishes every alert the pipeline raised for a reading,
// making the publisher usable as a pipeline sink.
func (p *AlertPublisher) Consume(ctx context.Context, pr *pipeline.ProcessedReading) error {
	for _, alert := range pr.Alerts {
		if err := p.PublishAlert(ctx, alert); err != nil {
			return err
		}
	}
	return nil
}

// Send publishes a notification request as a JSON message, keyed by the
// alert metadata attached by the dispatcher.
func (p *AlertPublisher) Send(ctx context.Context, req *models.NotificationRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	if err := p.client.publish(p.client.Topics().Alerts, payload, false); err != nil {
		return err
	}

	p.client.metrics.RecordMQTTMessage("notification", "outbound")
	return nil
}

// PublishStatus publishes a retained node status message.
func (p *AlertPublisher) PublishStatus(ctx context.Context, status map[string]interface{}) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return err
	}

	if err := p.client.publish(p.client.Topics().Status, payload, true); err != nil {
		return err
	}

	p.client.metrics.RecordMQTTMessage("status", "outbound")
	return nil
}
