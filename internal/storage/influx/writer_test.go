package influx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWriterDefaults(t *testing.T) {
	writer, err := NewWriter(nil, nil, nil)
	require.NoError(t, err)
	defer writer.Close()

	assert.Equal(t, "influxdb", writer.Name())
	assert.Equal(t, "hvac", writer.config.Bucket)
	assert.Equal(t, 500, writer.config.BatchSize)
}

func TestNewWriterRequiresURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = ""
	_, err := NewWriter(cfg, nil, nil)
	assert.Error(t, err)
}
