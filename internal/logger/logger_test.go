package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithDefaults(t *testing.T) {
	log, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, "info", log.GetLevel())
}

func TestNewInvalidLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud", Format: "console", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewInvalidFormat(t *testing.T) {
	_, err := New(&Config{Level: "info", Format: "xml", Output: "stdout"})
	assert.Error(t, err)
}

func TestNewJSONFormat(t *testing.T) {
	log, err := New(&Config{Level: "debug", Format: "json", Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, "debug", log.GetLevel())
}

func TestFileOutput(t *testing.T) {
	path := t.TempDir() + "/logs/app.log"
	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	log.Info("hello")
}

func TestDerivedLoggers(t *testing.T) {
	log, err := New(&Config{Level: "error", Format: "json", Output: "stderr"})
	require.NoError(t, err)

	stationLog := log.ForStation("abcd1234")
	require.NotNil(t, stationLog)
	connectorLog := stationLog.ForConnector(2)
	require.NotNil(t, connectorLog)
	commandLog := connectorLog.WithCommand("Heartbeat", "m-1")
	require.NotNil(t, commandLog)

	// 派生不影响原实例配置
	assert.Equal(t, "error", commandLog.GetLevel())
}

func TestDefaultLogger(t *testing.T) {
	log := Default()
	require.NotNil(t, log)
	assert.Same(t, log, Default())
}
