package worker

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-point-simulator/internal/logger"
)

// fakeElement 测试用元素
type fakeElement struct {
	id       string
	startErr error
	started  atomic.Int32
	stopped  atomic.Int32
}

func (f *fakeElement) ID() string { return f.id }
func (f *fakeElement) Start() error {
	f.started.Add(1)
	return f.startErr
}
func (f *fakeElement) Stop() error {
	f.stopped.Add(1)
	return nil
}

func testHostConfig(mode Mode) *Config {
	config := DefaultConfig()
	config.Mode = mode
	config.ElementsPerWorker = 2
	config.PoolMinSize = 1
	config.PoolMaxSize = 4
	config.WorkerStartDelay = time.Millisecond
	config.ElementAddDelay = time.Millisecond
	config.StopDeadline = 5 * time.Second
	return config
}

func quietLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New(&logger.Config{Level: "error", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	return log
}

func TestHostInvalidConfig(t *testing.T) {
	_, err := NewHost(&Config{Mode: "magicPool"}, quietLogger(t))
	assert.Error(t, err)

	_, err = NewHost(&Config{Mode: ModeFixedPool, PoolMaxSize: 0}, quietLogger(t))
	assert.Error(t, err)

	_, err = NewHost(&Config{Mode: ModeWorkerSet, ElementsPerWorker: 0}, quietLogger(t))
	assert.Error(t, err)
}

func TestHostLifecycle(t *testing.T) {
	host, err := NewHost(testHostConfig(ModeWorkerSet), quietLogger(t))
	require.NoError(t, err)

	require.NoError(t, host.Start())
	assert.Error(t, host.Start(), "double start must fail")

	require.NoError(t, host.Stop())
	require.NoError(t, host.Stop(), "double stop is a no-op")
}

func TestHostAddElementBeforeStart(t *testing.T) {
	host, err := NewHost(testHostConfig(ModeWorkerSet), quietLogger(t))
	require.NoError(t, err)
	assert.Error(t, host.AddElement(&fakeElement{id: "e1"}))
}

func runModeTest(t *testing.T, mode Mode) {
	host, err := NewHost(testHostConfig(mode), quietLogger(t))
	require.NoError(t, err)
	require.NoError(t, host.Start())

	elements := make([]*fakeElement, 5)
	for i := range elements {
		elements[i] = &fakeElement{id: fmt.Sprintf("e%d", i)}
		require.NoError(t, host.AddElement(elements[i]))
	}
	assert.Equal(t, 5, host.ElementCount())

	// 全部元素都被启动
	require.Eventually(t, func() bool {
		for _, element := range elements {
			if element.started.Load() == 0 {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, host.Stop())
	for _, element := range elements {
		assert.Equal(t, int32(1), element.stopped.Load(), "element %s", element.id)
	}
}

func TestHostWorkerSet(t *testing.T) {
	runModeTest(t, ModeWorkerSet)
}

func TestHostFixedPool(t *testing.T) {
	runModeTest(t, ModeFixedPool)
}

func TestHostDynamicPool(t *testing.T) {
	runModeTest(t, ModeDynamicPool)
}

// workerSet模式下每组elementsPerWorker个元素，超出时顺序拉起新工作者
func TestWorkerSetScaling(t *testing.T) {
	host, err := NewHost(testHostConfig(ModeWorkerSet), quietLogger(t))
	require.NoError(t, err)
	require.NoError(t, host.Start())
	defer host.Stop()

	assert.Equal(t, 0, host.WorkerCount())
	for i := 0; i < 5; i++ {
		require.NoError(t, host.AddElement(&fakeElement{id: fmt.Sprintf("e%d", i)}))
	}
	// 5个元素，每组2个，需要3个工作者
	assert.Equal(t, 3, host.WorkerCount())
}

func TestFixedPoolWorkerCount(t *testing.T) {
	host, err := NewHost(testHostConfig(ModeFixedPool), quietLogger(t))
	require.NoError(t, err)
	require.NoError(t, host.Start())
	defer host.Stop()

	assert.Equal(t, 4, host.WorkerCount())
}

// 启动失败的元素产生elementError事件，宿主继续运行
func TestHostElementError(t *testing.T) {
	host, err := NewHost(testHostConfig(ModeFixedPool), quietLogger(t))
	require.NoError(t, err)
	require.NoError(t, host.Start())

	var wg sync.WaitGroup
	wg.Add(1)
	errorSeen := make(chan Event, 1)
	go func() {
		defer wg.Done()
		for event := range host.Events() {
			if event.Type == EventElementError {
				select {
				case errorSeen <- event:
				default:
				}
			}
		}
	}()

	bad := &fakeElement{id: "bad", startErr: fmt.Errorf("boom")}
	good := &fakeElement{id: "good"}
	require.NoError(t, host.AddElement(bad))
	require.NoError(t, host.AddElement(good))

	select {
	case event := <-errorSeen:
		assert.Equal(t, "bad", event.ElementID)
		assert.Error(t, event.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("no elementError event received")
	}

	require.Eventually(t, func() bool { return good.started.Load() == 1 },
		5*time.Second, 10*time.Millisecond)

	require.NoError(t, host.Stop())
	wg.Wait()
}

func TestJitterBounds(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		d := jitter(base)
		assert.GreaterOrEqual(t, d, 75*time.Millisecond)
		assert.LessOrEqual(t, d, 125*time.Millisecond)
	}
	assert.Equal(t, time.Duration(0), jitter(0))
}
