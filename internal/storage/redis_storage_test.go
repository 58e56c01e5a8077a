package storage

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockedRedisStorage() (*RedisStorage, redismock.ClientMock) {
	client, mock := redismock.NewClientMock()
	return &RedisStorage{Client: client, Prefix: "simulator:"}, mock
}

func TestRedisPersistStation(t *testing.T) {
	store, mock := newMockedRedisStorage()
	snapshot := []byte(`{"stationId":"CP-1"}`)

	mock.ExpectSet("simulator:station:CP-1", snapshot, 0).SetVal("OK")
	require.NoError(t, store.PersistStation(context.Background(), "CP-1", snapshot))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLoadStation(t *testing.T) {
	store, mock := newMockedRedisStorage()

	mock.ExpectGet("simulator:station:CP-1").SetVal(`{"stationId":"CP-1"}`)
	data, found, err := store.LoadStation(context.Background(), "CP-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, `{"stationId":"CP-1"}`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisLoadStationMissing(t *testing.T) {
	store, mock := newMockedRedisStorage()

	mock.ExpectGet("simulator:station:CP-404").RedisNil()
	data, found, err := store.LoadStation(context.Background(), "CP-404")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, data)
}

func TestRedisStorePerformanceStatistics(t *testing.T) {
	store, mock := newMockedRedisStorage()
	record := []byte(`{"cpuPercent":12.5}`)

	mock.ExpectRPush("simulator:performance", record).SetVal(1)
	require.NoError(t, store.StorePerformanceStatistics(context.Background(), record))
	assert.NoError(t, mock.ExpectationsWereMet())
}
