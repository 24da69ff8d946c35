package simulator

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/hvacmon/pkg/models"
)

const defaultInterval = 5 * time.Second

// Emitter receives each simulated reading.
type Emitter func(ctx context.Context, reading *models.Reading)

// roomSpec describes one room in the default building layout.
type roomSpec struct {
	id       string
	location string
	capacity int
	kind     RoomKind
}

var defaultBuilding = []roomSpec{
	{"hvac_office_a1", "Office A1", 4, RoomOffice},
	{"hvac_office_a2", "Office A2", 4, RoomOffice},
	{"hvac_meeting_room", "Meeting Room", 12, RoomMeeting},
	{"hvac_main_corridor", "Main Corridor", 0, RoomTransit},
	{"hvac_kitchen", "Kitchen", 6, RoomCommon},
	{"hvac_reception", "Reception", 8, RoomCommon},
	{"hvac_restroom", "Restroom", 0, RoomTransit},
}

// Fleet drives a set of simulated sensors on a fixed interval and feeds
// their readings to an emitter.
type Fleet struct {
	sensors  []*Sensor
	emitter  Emitter
	interval time.Duration
	logger   *logrus.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewFleet builds the default seven-room building. Zero interval means
// the five-second default.
func NewFleet(emitter Emitter, interval time.Duration, logger *logrus.Logger) *Fleet {
	if logger == nil {
		logger = logrus.New()
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	sensors := make([]*Sensor, 0, len(defaultBuilding))
	for i, spec := range defaultBuilding {
		sensors = append(sensors, NewSensor(spec.id, spec.location, spec.capacity, spec.kind,
			time.Now().UnixNano()+int64(i)))
	}

	return &Fleet{
		sensors:  sensors,
		emitter:  emitter,
		interval: interval,
		logger:   logger,
	}
}

// Sensors exposes the fleet, mainly for mode changes and tests.
func (f *Fleet) Sensors() []*Sensor {
	return f.sensors
}

// SetModeAll switches every sensor's HVAC mode.
func (f *Fleet) SetModeAll(mode HVACMode) {
	for _, sensor := range f.sensors {
		sensor.SetMode(mode)
	}
}

// ReadAll produces one reading per sensor.
func (f *Fleet) ReadAll() []*models.Reading {
	readings := make([]*models.Reading, 0, len(f.sensors))
	for _, sensor := range f.sensors {
		readings = append(readings, sensor.Read())
	}
	return readings
}

// Start launches the emission loop. It returns immediately.
func (f *Fleet) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	f.running = true

	go f.run(runCtx)

	f.logger.WithFields(logrus.Fields{
		"sensors":  len(f.sensors),
		"interval": f.interval.String(),
	}).Info("Sensor simulator started")
}

// Stop halts the emission loop and waits for it to drain.
func (f *Fleet) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	cancel, done := f.cancel, f.done
	f.mu.Unlock()

	cancel()
	<-done
	f.logger.Info("Sensor simulator stopped")
}

func (f *Fleet) run(ctx context.Context) {
	defer close(f.done)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, reading := range f.ReadAll() {
				f.emitter(ctx, reading)
			}
		}
	}
}
