package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-point-simulator/internal/registry"
)

func newIdleStation(t *testing.T, idTags []string) *Station {
	t.Helper()
	sta, err := New(Options{
		ID:       "CP-UNIT-000001",
		Template: testTemplate("ws://localhost:9", 2),
		Registry: registry.Standard(),
		IdTags:   idTags,
		Logger:   testLogger(t),
	})
	require.NoError(t, err)
	return sta
}

func TestSecureRandomRange(t *testing.T) {
	for i := 0; i < 1000; i++ {
		r := secureRandom()
		assert.GreaterOrEqual(t, r, 0.0)
		assert.Less(t, r, 1.0)
	}
}

func TestUniformDuration(t *testing.T) {
	g := newIdleStation(t, nil).ATG()

	assert.Equal(t, 5*time.Second, g.uniformDuration(5, 5))
	assert.Equal(t, 5*time.Second, g.uniformDuration(5, 3))

	for i := 0; i < 100; i++ {
		d := g.uniformDuration(1, 3)
		assert.GreaterOrEqual(t, d, 1*time.Second)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}

func TestPickIdTagDistributions(t *testing.T) {
	tags := []string{"T0", "T1", "T2"}

	// round-robin按顺序循环
	g := newIdleStation(t, tags).ATG()
	g.config.IdTagDistribution = "round-robin"
	assert.Equal(t, "T0", g.pickIdTag(1))
	assert.Equal(t, "T1", g.pickIdTag(1))
	assert.Equal(t, "T2", g.pickIdTag(1))
	assert.Equal(t, "T0", g.pickIdTag(1))

	// connector-affinity按连接器取模
	g.config.IdTagDistribution = "connector-affinity"
	assert.Equal(t, "T1", g.pickIdTag(1))
	assert.Equal(t, "T1", g.pickIdTag(4))
	assert.Equal(t, "T2", g.pickIdTag(2))

	// random只保证结果来自列表
	g.config.IdTagDistribution = "random"
	for i := 0; i < 20; i++ {
		assert.Contains(t, tags, g.pickIdTag(1))
	}
}

func TestPickIdTagWithoutTags(t *testing.T) {
	g := newIdleStation(t, nil).ATG()
	assert.Equal(t, "AA000000", g.pickIdTag(1))
}

func TestATGStatusAccounting(t *testing.T) {
	status := &ATGStatus{
		AcceptedStartTransactionRequests: 7,
		RejectedStartTransactionRequests: 3,
	}
	assert.Equal(t, int64(10), status.StartTransactionRequests())
}

func TestATGSnapshotRestore(t *testing.T) {
	g := newIdleStation(t, nil).ATG()

	internal := g.status(1)
	internal.AcceptedStartTransactionRequests = 5
	internal.Running = true

	snapshot := g.SnapshotStatuses()
	require.Contains(t, snapshot, 1)

	restored := newIdleStation(t, nil).ATG()
	restored.RestoreStatuses(snapshot)

	status := restored.Status(1)
	assert.Equal(t, int64(5), status.AcceptedStartTransactionRequests)
	// 恢复后running标志被清除
	assert.False(t, status.Running)
}

func TestATGStartStopIdempotent(t *testing.T) {
	g := newIdleStation(t, nil).ATG()

	assert.False(t, g.IsRunning())
	g.Stop() // 未启动时停止是空操作

	g.Start()
	assert.True(t, g.IsRunning())
	g.Start() // 重复启动是空操作

	g.Stop()
	assert.False(t, g.IsRunning())
}
