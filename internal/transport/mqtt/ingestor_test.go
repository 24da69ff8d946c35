package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeReading(t *testing.T) {
	payload := []byte(`{"sensor_id":"temp_001","location":"Room 101","timestamp":"2024-03-13T10:00:00Z","values":{"temperature":22.5}}`)

	reading, err := DecodeReading("hvac/sensors/temp_001/data", payload)
	require.NoError(t, err)

	assert.Equal(t, "temp_001", reading.SensorID)
	assert.Equal(t, "Room 101", reading.Location)
	assert.Equal(t, time.Date(2024, 3, 13, 10, 0, 0, 0, time.UTC), reading.Timestamp.UTC())
	assert.Equal(t, 22.5, reading.Values["temperature"])
}

func TestDecodeReadingFillsSensorIDFromTopic(t *testing.T) {
	payload := []byte(`{"location":"Room 101","timestamp":"2024-03-13T10:00:00Z","values":{"co2":450}}`)

	reading, err := DecodeReading("hvac/sensors/co2_007/data", payload)
	require.NoError(t, err)

	assert.Equal(t, "co2_007", reading.SensorID)
}

func TestDecodeReadingFillsMissingTimestamp(t *testing.T) {
	payload := []byte(`{"sensor_id":"temp_001","values":{"temperature":21.0}}`)

	before := time.Now().UTC()
	reading, err := DecodeReading("hvac/sensors/temp_001/data", payload)
	require.NoError(t, err)

	assert.False(t, reading.Timestamp.Before(before))
}

func TestDecodeReadingRejectsMalformedPayload(t *testing.T) {
	_, err := DecodeReading("hvac/sensors/temp_001/data", []byte(`{not json`))
	assert.Error(t, err)

	_, err = DecodeReading("hvac/sensors/temp_001/data", []byte(`{"timestamp":"yesterday","values":{"temperature":21.0}}`))
	assert.Error(t, err)
}

func TestSensorIDFromTopic(t *testing.T) {
	assert.Equal(t, "temp_001", sensorIDFromTopic("hvac/sensors/temp_001/data"))
	assert.Equal(t, "", sensorIDFromTopic("other/sensors/temp_001/data"))
	assert.Equal(t, "", sensorIDFromTopic("hvac/alerts"))
}

func TestNewClientValidation(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.Broker = ""
	_, err := NewClient(cfg, nil, nil)
	assert.Error(t, err)

	cfg = DefaultClientConfig()
	cfg.ClientID = ""
	_, err = NewClient(cfg, nil, nil)
	assert.Error(t, err)

	client, err := NewClient(nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "hvac/sensors/+/data", client.Topics().SensorData)
	assert.Equal(t, "hvac/alerts", client.Topics().Alerts)
	assert.False(t, client.IsConnected())
}
