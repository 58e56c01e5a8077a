package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Setenv("APP_PROFILE", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "charge-point-simulator", cfg.App.Name)
	assert.Equal(t, "local", cfg.App.Profile)
	assert.Equal(t, "simulator-1", cfg.SimulatorID)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "workerSet", cfg.Worker.Mode)
	assert.Equal(t, 10, cfg.Worker.ElementsPerWorker)
	assert.Equal(t, "none", cfg.Storage.Backend)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Empty(t, cfg.Stations)
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("STORAGE_BACKEND", "file")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "file", cfg.Storage.Backend)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestValidate(t *testing.T) {
	valid := &Config{
		Worker:  WorkerConfig{Mode: "fixedPool"},
		Storage: StorageConfig{Backend: "redis"},
		Stations: []StationGroup{
			{TemplateFile: "templates/basic.json", Count: 5},
		},
	}
	assert.NoError(t, valid.Validate())

	badMode := *valid
	badMode.Worker.Mode = "threadPool"
	assert.Error(t, badMode.Validate())

	badBackend := *valid
	badBackend.Storage.Backend = "mongo"
	assert.Error(t, badBackend.Validate())

	badStations := *valid
	badStations.Stations = []StationGroup{{TemplateFile: "", Count: 1}}
	assert.Error(t, badStations.Validate())

	badCount := *valid
	badCount.Stations = []StationGroup{{TemplateFile: "t.json", Count: 0}}
	assert.Error(t, badCount.Validate())
}
