package perf

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryStore 测试用存储
type memoryStore struct {
	mu      sync.Mutex
	records [][]byte
}

func (m *memoryStore) PersistStation(ctx context.Context, stationID string, snapshot []byte) error {
	return nil
}
func (m *memoryStore) LoadStation(ctx context.Context, stationID string) ([]byte, bool, error) {
	return nil, false, nil
}
func (m *memoryStore) StorePerformanceStatistics(ctx context.Context, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}
func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func TestObserveRequestAggregation(t *testing.T) {
	collector := NewCollector(&Config{Enabled: true, FlushInterval: time.Hour}, "sim-1", nil, nil)

	collector.ObserveRequest("Heartbeat", 10*time.Millisecond, false)
	collector.ObserveRequest("Heartbeat", 30*time.Millisecond, false)
	collector.ObserveRequest("Heartbeat", 20*time.Millisecond, true)

	stats := collector.snapshotCommands()["Heartbeat"]
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, int64(1), stats.Errors)
	assert.InDelta(t, 10, stats.MinMs, 0.01)
	assert.InDelta(t, 30, stats.MaxMs, 0.01)
	assert.InDelta(t, 20, stats.AvgMs(), 0.01)
}

func TestObserveRequestDisabled(t *testing.T) {
	collector := NewCollector(&Config{Enabled: false}, "sim-1", nil, nil)
	collector.ObserveRequest("Heartbeat", time.Millisecond, false)
	assert.Empty(t, collector.snapshotCommands())
}

func TestFlushWritesRecord(t *testing.T) {
	store := &memoryStore{}
	collector := NewCollector(&Config{Enabled: true, FlushInterval: time.Hour}, "sim-1", store, nil)
	collector.ObserveRequest("StartTransaction", 15*time.Millisecond, false)

	collector.flush()
	require.Equal(t, 1, store.count())

	var record Record
	require.NoError(t, json.Unmarshal(store.records[0], &record))
	assert.Equal(t, "sim-1", record.SimulatorID)
	assert.Contains(t, record.Commands, "StartTransaction")
	assert.Equal(t, int64(1), record.Commands["StartTransaction"].Count)
	assert.False(t, record.Timestamp.IsZero())
}

func TestStopFlushesFinalRecord(t *testing.T) {
	store := &memoryStore{}
	collector := NewCollector(&Config{Enabled: true, FlushInterval: time.Hour}, "sim-1", store, nil)
	collector.Start()
	collector.ObserveRequest("Heartbeat", time.Millisecond, false)

	collector.Stop()
	assert.Equal(t, 1, store.count())
}

func TestAvgMsEmpty(t *testing.T) {
	stats := &CommandStats{}
	assert.Equal(t, 0.0, stats.AvgMs())
}
