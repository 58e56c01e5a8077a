package worker

import (
	"context"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/logger"
)

// Mode 工作者复用模式
type Mode string

const (
	// ModeWorkerSet 每组最多elementsPerWorker个元素，一组一个工作者
	ModeWorkerSet Mode = "workerSet"
	// ModeFixedPool 固定大小的工作者池
	ModeFixedPool Mode = "fixedPool"
	// ModeDynamicPool 介于最小与最大之间按需增长的池
	ModeDynamicPool Mode = "dynamicPool"
)

// Element 可被宿主调度的元素，站点运行时实现该接口
type Element interface {
	ID() string
	Start() error
	Stop() error
}

// EventType 宿主事件类型
type EventType string

const (
	EventStarted      EventType = "started"
	EventStopped      EventType = "stopped"
	EventElementAdded EventType = "elementAdded"
	EventElementError EventType = "elementError"
	EventError        EventType = "error"
)

// Event 宿主事件
type Event struct {
	Type      EventType `json:"type"`
	WorkerID  int       `json:"workerId,omitempty"`
	ElementID string    `json:"elementId,omitempty"`
	Err       error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`
}

// Config 宿主配置
type Config struct {
	Mode              Mode          `json:"mode"`
	ElementsPerWorker int           `json:"elements_per_worker"`
	PoolMinSize       int           `json:"pool_min_size"`
	PoolMaxSize       int           `json:"pool_max_size"`
	WorkerStartDelay  time.Duration `json:"worker_start_delay"`
	ElementAddDelay   time.Duration `json:"element_add_delay"`
	EventChannelSize  int           `json:"event_channel_size"`
	StopDeadline      time.Duration `json:"stop_deadline"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Mode:              ModeWorkerSet,
		ElementsPerWorker: 10,
		PoolMinSize:       4,
		PoolMaxSize:       16,
		WorkerStartDelay:  500 * time.Millisecond,
		ElementAddDelay:   100 * time.Millisecond,
		EventChannelSize:  1000,
		StopDeadline:      60 * time.Second,
	}
}

// task 投递给工作者的启动任务
type task struct {
	element Element
}

// Host 把多个站点运行时复用到有限的工作者集合上。
// 只允许在主流程中创建一次；AddElement在每次投递后按elementAddDelay节流。
type Host struct {
	config *Config

	mu       sync.Mutex
	started  bool
	elements []Element
	workers  int

	taskCh    chan task
	eventChan chan Event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Logger
}

// NewHost 创建宿主
func NewHost(config *Config, log *logger.Logger) (*Host, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}

	switch config.Mode {
	case ModeWorkerSet, ModeFixedPool, ModeDynamicPool:
	default:
		return nil, fmt.Errorf("unsupported worker mode: %s", config.Mode)
	}
	if config.Mode != ModeWorkerSet && config.PoolMaxSize < 1 {
		return nil, fmt.Errorf("pool max size must be at least 1")
	}
	if config.Mode == ModeWorkerSet && config.ElementsPerWorker < 1 {
		return nil, fmt.Errorf("elements per worker must be at least 1")
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Host{
		config:    config,
		taskCh:    make(chan task, 256),
		eventChan: make(chan Event, config.EventChannelSize),
		ctx:       ctx,
		cancel:    cancel,
		logger:    log,
	}, nil
}

// Start 启动宿主
func (h *Host) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return fmt.Errorf("worker host already started")
	}

	initial := 0
	switch h.config.Mode {
	case ModeFixedPool:
		initial = h.config.PoolMaxSize
	case ModeDynamicPool:
		initial = h.config.PoolMinSize
	}
	for i := 0; i < initial; i++ {
		h.spawnWorkerLocked()
	}

	h.started = true
	h.sendEvent(Event{Type: EventStarted, Timestamp: time.Now()})
	h.logger.Infof("Worker host started in %s mode", h.config.Mode)
	return nil
}

// spawnWorkerLocked 启动一个工作者，调用方持有h.mu
func (h *Host) spawnWorkerLocked() {
	h.workers++
	workerID := h.workers
	h.wg.Add(1)
	go h.supervise(workerID)
}

// supervise 工作者监督循环：工作者崩溃后重建
func (h *Host) supervise(workerID int) {
	defer h.wg.Done()

	for {
		crashed := h.runWorker(workerID)
		if !crashed || h.ctx.Err() != nil {
			return
		}
		h.logger.Warnf("Worker %d crashed, restarting", workerID)
		h.sendEvent(Event{Type: EventError, WorkerID: workerID, Timestamp: time.Now()})
	}
}

// runWorker 工作者主循环，返回true表示因panic退出
func (h *Host) runWorker(workerID int) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
		}
	}()

	h.logger.Debugf("Worker %d started", workerID)
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Debugf("Worker %d stopped", workerID)
			return false
		case t := <-h.taskCh:
			h.startElement(workerID, t.element)
		}
	}
}

// startElement 启动一个元素并上报结果事件
func (h *Host) startElement(workerID int, element Element) {
	if err := element.Start(); err != nil {
		h.logger.Errorf("Worker %d failed to start element %s: %v", workerID, element.ID(), err)
		h.sendEvent(Event{
			Type:      EventElementError,
			WorkerID:  workerID,
			ElementID: element.ID(),
			Err:       err,
			Timestamp: time.Now(),
		})
		return
	}
	h.sendEvent(Event{
		Type:      EventElementAdded,
		WorkerID:  workerID,
		ElementID: element.ID(),
		Timestamp: time.Now(),
	})
}

// AddElement 投递一个元素。
// 每次投递后按elementAddDelay加抖动休眠，把启动压力摊开。
func (h *Host) AddElement(element Element) error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return fmt.Errorf("worker host not started")
	}
	h.elements = append(h.elements, element)
	count := len(h.elements)

	switch h.config.Mode {
	case ModeWorkerSet:
		// 元素数超出现有组容量时顺序拉起新工作者
		if count > h.workers*h.config.ElementsPerWorker {
			h.spawnWorkerLocked()
			h.mu.Unlock()
			h.pause(h.config.WorkerStartDelay)
			h.mu.Lock()
		}
	case ModeDynamicPool:
		if len(h.taskCh) > 0 && h.workers < h.config.PoolMaxSize {
			h.spawnWorkerLocked()
		}
	}
	h.mu.Unlock()

	select {
	case h.taskCh <- task{element: element}:
	case <-h.ctx.Done():
		return fmt.Errorf("worker host stopped")
	}

	h.pause(jitter(h.config.ElementAddDelay))
	return nil
}

// pause 可被停止打断的休眠
func (h *Host) pause(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-h.ctx.Done():
	}
}

// jitter 加减25%以内的随机抖动
func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	span := float64(d) / 4
	return d + time.Duration((mathrand.Float64()*2-1)*span)
}

// Stop 停止宿主：先停全部元素，再停工作者，整体受StopDeadline约束
func (h *Host) Stop() error {
	h.mu.Lock()
	if !h.started {
		h.mu.Unlock()
		return nil
	}
	h.started = false
	elements := make([]Element, len(h.elements))
	copy(elements, h.elements)
	h.mu.Unlock()

	h.logger.Infof("Stopping worker host with %d elements", len(elements))

	done := make(chan struct{})
	go func() {
		defer close(done)
		var stopWg sync.WaitGroup
		for _, element := range elements {
			stopWg.Add(1)
			go func(e Element) {
				defer stopWg.Done()
				if err := e.Stop(); err != nil {
					h.logger.Errorf("Failed to stop element %s: %v", e.ID(), err)
					h.sendEvent(Event{
						Type:      EventElementError,
						ElementID: e.ID(),
						Err:       err,
						Timestamp: time.Now(),
					})
				}
			}(element)
		}
		stopWg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(h.config.StopDeadline):
		h.logger.Warn("Worker host stop deadline exceeded, forcing termination")
	}

	h.cancel()
	h.wg.Wait()
	h.sendEvent(Event{Type: EventStopped, Timestamp: time.Now()})
	close(h.eventChan)
	h.logger.Info("Worker host stopped")
	return nil
}

// Events 宿主事件流
func (h *Host) Events() <-chan Event {
	return h.eventChan
}

// ElementCount 已托管的元素数量
func (h *Host) ElementCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.elements)
}

// WorkerCount 当前工作者数量
func (h *Host) WorkerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.workers
}

// sendEvent 发布事件，通道满时丢弃
func (h *Host) sendEvent(event Event) {
	select {
	case h.eventChan <- event:
	default:
		h.logger.Warnf("Event channel full, dropping event type: %s", event.Type)
	}
}
