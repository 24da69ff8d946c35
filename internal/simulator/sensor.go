package simulator

import (
	"math"
	"math/rand"
	"time"

	"github.com/inferloop/hvacmon/pkg/models"
)

// RoomKind selects the occupancy pattern a room follows.
type RoomKind string

const (
	RoomOffice  RoomKind = "office"
	RoomMeeting RoomKind = "meeting"
	RoomCommon  RoomKind = "common"
	RoomTransit RoomKind = "transit"
)

// HVACMode is the simulated equipment state for a room.
type HVACMode string

const (
	ModeAuto        HVACMode = "AUTO"
	ModeCooling     HVACMode = "COOLING"
	ModeHeating     HVACMode = "HEATING"
	ModeVentilation HVACMode = "VENTILATION"
	ModeOff         HVACMode = "OFF"
)

const malfunctionProbability = 0.01

// occupancyPattern describes when a room fills up during the day.
type occupancyPattern struct {
	peakHours [][2]int
	baseRate  float64
	peakRate  float64
}

var patterns = map[RoomKind]occupancyPattern{
	RoomOffice:  {peakHours: [][2]int{{9, 12}, {14, 17}}, baseRate: 0.3, peakRate: 0.8},
	RoomMeeting: {peakHours: [][2]int{{10, 11}, {14, 15}, {16, 17}}, baseRate: 0.1, peakRate: 0.9},
	RoomCommon:  {peakHours: [][2]int{{12, 13}, {16, 17}}, baseRate: 0.2, peakRate: 0.6},
	RoomTransit: {},
}

// Sensor simulates one HVAC sensor: plausible daily temperature and
// humidity cycles, occupancy-driven CO2, and rare malfunction readings.
type Sensor struct {
	ID       string
	Location string
	Capacity int
	Kind     RoomKind

	baseTemperature float64
	baseHumidity    float64
	baseCO2         float64
	temperaturePhi  float64
	humidityPhi     float64

	mode      HVACMode
	occupancy int
	lastRead  time.Time

	rng *rand.Rand
	now func() time.Time
}

// NewSensor creates a simulated sensor for a room.
func NewSensor(id, location string, capacity int, kind RoomKind, seed int64) *Sensor {
	rng := rand.New(rand.NewSource(seed))
	return &Sensor{
		ID:              id,
		Location:        location,
		Capacity:        capacity,
		Kind:            kind,
		baseTemperature: 22.0,
		baseHumidity:    45.0,
		baseCO2:         400,
		temperaturePhi:  rng.Float64() * 2 * math.Pi,
		humidityPhi:     rng.Float64() * 2 * math.Pi,
		mode:            ModeAuto,
		rng:             rng,
		now:             time.Now,
	}
}

// SetMode switches the simulated HVAC equipment state.
func (s *Sensor) SetMode(mode HVACMode) {
	s.mode = mode
}

// Calibrate shifts the sensor's baselines.
func (s *Sensor) Calibrate(temperatureOffset, humidityOffset float64) {
	s.baseTemperature += temperatureOffset
	s.baseHumidity += humidityOffset
}

// Read produces one reading. Roughly one reading in a hundred is a
// malfunction with wild values, which exercises the quality checks
// downstream.
func (s *Sensor) Read() *models.Reading {
	now := s.now()
	s.occupancy = s.calculateOccupancy(now)

	var temperature, humidity, co2 float64
	if s.rng.Float64() < malfunctionProbability {
		temperature = 10 + s.rng.Float64()*30
		humidity = 10 + s.rng.Float64()*80
		co2 = 300 + float64(s.rng.Intn(2200))
	} else {
		temperature = s.simulateTemperature(now)
		humidity = s.simulateHumidity(now)
		co2 = s.simulateCO2(now)
	}

	s.lastRead = now

	return &models.Reading{
		SensorID:  s.ID,
		Location:  s.Location,
		Timestamp: now,
		Values: map[string]float64{
			models.ParamTemperature:     temperature,
			models.ParamHumidity:        humidity,
			models.ParamCO2:             co2,
			models.ParamOccupancy:       float64(s.occupancy),
			models.ParamAirQualityIndex: airQualityIndex(temperature, humidity, co2),
		},
	}
}

func (s *Sensor) calculateOccupancy(now time.Time) int {
	if s.Capacity == 0 {
		return 0
	}

	hour := now.Hour()
	if hour < 7 || hour > 19 {
		return int(float64(s.Capacity) * 0.1 * (0.5 + s.rng.Float64()))
	}

	pattern := patterns[s.Kind]
	rate := pattern.baseRate
	for _, window := range pattern.peakHours {
		if hour >= window[0] && hour <= window[1] {
			rate = pattern.peakRate
			break
		}
	}

	rate *= 0.7 + s.rng.Float64()*0.6
	rate = math.Max(0, math.Min(1, rate))
	return int(float64(s.Capacity) * rate)
}

func (s *Sensor) simulateTemperature(now time.Time) float64 {
	dailyVariation := 2 * math.Sin(2*math.Pi*float64(now.Hour())/24+s.temperaturePhi)
	occupancyEffect := float64(s.occupancy) * 0.3
	seasonal := seasonalTemperature(now.Month()) * 0.1
	noise := s.rng.Float64() - 0.5

	temperature := s.baseTemperature + dailyVariation + occupancyEffect + seasonal + s.hvacEffect() + noise
	return math.Round(temperature*10) / 10
}

func (s *Sensor) simulateHumidity(now time.Time) float64 {
	dailyVariation := 5 * math.Sin(2*math.Pi*float64(now.Hour())/24+s.humidityPhi)
	occupancyEffect := float64(s.occupancy) * 2

	var locationEffect float64
	if s.Kind == RoomCommon {
		locationEffect = 5
	}

	var hvacEffect float64
	if s.mode == ModeCooling {
		hvacEffect = -2
	}

	noise := s.rng.Float64()*4 - 2
	humidity := s.baseHumidity + dailyVariation + occupancyEffect + locationEffect + hvacEffect + noise
	return math.Round(math.Max(20, math.Min(80, humidity))*10) / 10
}

func (s *Sensor) simulateCO2(now time.Time) float64 {
	occupancyEffect := float64(s.occupancy) * 50

	var ventilationEffect float64
	if s.mode == ModeVentilation {
		ventilationEffect = -50
	}

	// CO2 builds up about 10 ppm per minute between reads.
	var accumulation float64
	if !s.lastRead.IsZero() {
		accumulation = math.Min(100, now.Sub(s.lastRead).Minutes()*10)
	}

	noise := float64(s.rng.Intn(41) - 20)
	co2 := s.baseCO2 + occupancyEffect + ventilationEffect + accumulation + noise
	return math.Max(350, math.Min(2000, math.Trunc(co2)))
}

func (s *Sensor) hvacEffect() float64 {
	switch s.mode {
	case ModeCooling:
		return -1.5
	case ModeHeating:
		return 1.5
	case ModeAuto:
		if float64(s.occupancy) > float64(s.Capacity)*0.6 {
			return -0.5
		}
	}
	return 0
}

func seasonalTemperature(month time.Month) float64 {
	seasonal := map[time.Month]float64{
		time.December: -2, time.January: -3, time.February: -1,
		time.March: 2, time.April: 5, time.May: 8,
		time.June: 12, time.July: 15, time.August: 14,
		time.September: 8, time.October: 4, time.November: 0,
	}
	return seasonal[month]
}

// airQualityIndex blends temperature, humidity and CO2 into a 0..100
// comfort score.
func airQualityIndex(temperature, humidity, co2 float64) float64 {
	tempScore := math.Max(0, 100-math.Abs(temperature-22)*10)
	humidityScore := math.Max(0, 100-math.Abs(humidity-45)*2)
	co2Score := math.Max(0, 100-(co2-400)/10)

	aqi := tempScore*0.3 + humidityScore*0.3 + co2Score*0.4
	return math.Round(aqi*10) / 10
}
