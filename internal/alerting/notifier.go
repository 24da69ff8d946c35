package alerting

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

const defaultQueueSize = 256

// Channel delivers a notification to one external medium (email, slack,
// sms, an MQTT topic). Send may block or fail; the dispatcher isolates the
// alerting path from both.
type Channel interface {
	Name() string
	Send(ctx context.Context, req *models.NotificationRequest) error
}

// Dispatcher fans notification requests out to registered channels through a
// buffered queue and a single worker, so a slow or failing channel never
// stalls alert processing. Enqueue is fire-and-forget: a full queue drops
// the request with a warning.
type Dispatcher struct {
	mu       sync.RWMutex
	channels map[string]Channel

	queue chan *models.NotificationRequest

	onDrop  func()
	metrics Metrics
	logger  *logrus.Logger
}

// NewDispatcher creates a dispatcher; queueSize <= 0 uses the default.
func NewDispatcher(queueSize int, logger *logrus.Logger) *Dispatcher {
	if logger == nil {
		logger = logrus.New()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Dispatcher{
		channels: make(map[string]Channel),
		queue:    make(chan *models.NotificationRequest, queueSize),
		logger:   logger,
	}
}

// Register installs a delivery channel under its name.
func (d *Dispatcher) Register(channel Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[channel.Name()] = channel
}

// SetDropHandler installs a callback invoked when a request is dropped,
// used to bump a metric.
func (d *Dispatcher) SetDropHandler(fn func()) {
	d.onDrop = fn
}

// SetMetrics installs the delivery instrumentation. Must be called before Run.
func (d *Dispatcher) SetMetrics(m Metrics) {
	d.metrics = m
}

// Run consumes the queue until the context is cancelled. The in-flight
// request finishes before Run returns.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-d.queue:
			d.deliver(ctx, req)
		}
	}
}

// Enqueue submits a request without blocking. Requests naming an
// unregistered channel are logged and skipped; a full queue drops the
// request.
func (d *Dispatcher) Enqueue(req *models.NotificationRequest) {
	d.mu.RLock()
	_, known := d.channels[req.Channel]
	d.mu.RUnlock()
	if !known {
		d.logger.WithField("channel", req.Channel).Warn("Skipping notification for unregistered channel")
		return
	}

	select {
	case d.queue <- req:
	default:
		d.logger.WithFields(logrus.Fields{
			"channel": req.Channel,
			"subject": req.Subject,
		}).Warn("Notification queue full, dropping request")
		if d.onDrop != nil {
			d.onDrop()
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, req *models.NotificationRequest) {
	d.mu.RLock()
	channel, ok := d.channels[req.Channel]
	d.mu.RUnlock()
	if !ok {
		d.logger.WithField("channel", req.Channel).Warn("Channel unregistered before delivery")
		return
	}

	status := "sent"
	if err := channel.Send(ctx, req); err != nil {
		status = "failed"
		d.logger.WithFields(logrus.Fields{
			"channel": req.Channel,
			"error":   err.Error(),
		}).Error("Notification delivery failed")
	}
	if d.metrics != nil {
		d.metrics.RecordNotification(req.Channel, status)
	}
}

// NotifyAlert builds the per-channel requests for a newly raised or escalated
// alert and enqueues them.
func (d *Dispatcher) NotifyAlert(alert *models.Alert, channels, recipients []string) {
	subject := fmt.Sprintf("[%s] %s", alert.Severity, alert.AlertType)
	for _, name := range channels {
		d.Enqueue(&models.NotificationRequest{
			Channel:    name,
			Recipients: recipients,
			Subject:    subject,
			Message:    alert.Message,
			Priority:   alert.Severity,
			Metadata: map[string]interface{}{
				"alert_id":         alert.AlertID,
				"sensor_id":        alert.SensorID,
				"location":         alert.Location,
				"escalation_level": alert.EscalationLevel,
			},
		})
	}
}

// LogChannel is the built-in channel used when no external transport is
// configured: it writes the notification to the structured log.
type LogChannel struct {
	name   string
	logger *logrus.Logger
}

// NewLogChannel creates a log-backed channel under the given name.
func NewLogChannel(name string, logger *logrus.Logger) *LogChannel {
	if logger == nil {
		logger = logrus.New()
	}
	return &LogChannel{name: name, logger: logger}
}

// Name implements Channel.
func (c *LogChannel) Name() string { return c.name }

// Send implements Channel.
func (c *LogChannel) Send(_ context.Context, req *models.NotificationRequest) error {
	c.logger.WithFields(logrus.Fields{
		"channel":    c.name,
		"recipients": req.Recipients,
		"subject":    req.Subject,
		"priority":   string(req.Priority),
	}).Info(req.Message)
	return nil
}
