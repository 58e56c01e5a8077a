package perf

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/charging-platform/charge-point-simulator/internal/logger"
	"github.com/charging-platform/charge-point-simulator/internal/storage"
)

// CommandStats 单个命令的请求统计
type CommandStats struct {
	Count    int64   `json:"count"`
	Errors   int64   `json:"errors"`
	MinMs    float64 `json:"minMs"`
	MaxMs    float64 `json:"maxMs"`
	TotalMs  float64 `json:"totalMs"`
}

// AvgMs 平均往返耗时
func (s *CommandStats) AvgMs() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.TotalMs / float64(s.Count)
}

// Record 一次落盘的性能统计记录
type Record struct {
	SimulatorID string                   `json:"simulatorId"`
	Timestamp   time.Time                `json:"timestamp"`
	CPUPercent  float64                  `json:"cpuPercent"`
	MemoryUsedPercent float64            `json:"memoryUsedPercent"`
	Commands    map[string]*CommandStats `json:"commands"`
}

// Config 性能统计配置
type Config struct {
	Enabled       bool          `json:"enabled"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Enabled:       false,
		FlushInterval: 60 * time.Second,
	}
}

// Collector 聚合全部站点的请求耗时并周期性落盘。
// 宿主机CPU与内存占用随每条记录一起采样，用于评估模拟器自身的资源开销。
type Collector struct {
	config      *Config
	simulatorID string
	store       storage.Storage

	mu       sync.Mutex
	commands map[string]*CommandStats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logger.Logger
}

// NewCollector 创建性能统计收集器
func NewCollector(config *Config, simulatorID string, store storage.Storage, log *logger.Logger) *Collector {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Collector{
		config:      config,
		simulatorID: simulatorID,
		store:       store,
		commands:    make(map[string]*CommandStats),
		ctx:         ctx,
		cancel:      cancel,
		logger:      log,
	}
}

// ObserveRequest 记录一次请求往返
func (c *Collector) ObserveRequest(action string, elapsed time.Duration, failed bool) {
	if !c.config.Enabled {
		return
	}

	ms := float64(elapsed.Microseconds()) / 1000

	c.mu.Lock()
	defer c.mu.Unlock()

	stats, ok := c.commands[action]
	if !ok {
		stats = &CommandStats{MinMs: ms, MaxMs: ms}
		c.commands[action] = stats
	}
	stats.Count++
	if failed {
		stats.Errors++
	}
	stats.TotalMs += ms
	if ms < stats.MinMs {
		stats.MinMs = ms
	}
	if ms > stats.MaxMs {
		stats.MaxMs = ms
	}
}

// Start 启动周期性落盘
func (c *Collector) Start() {
	if !c.config.Enabled || c.store == nil {
		return
	}
	c.wg.Add(1)
	go c.flushRoutine()
}

// Stop 停止收集并落盘最后一条记录
func (c *Collector) Stop() {
	c.cancel()
	c.wg.Wait()
	if c.config.Enabled && c.store != nil {
		c.flush()
	}
}

func (c *Collector) flushRoutine() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.flush()
		}
	}
}

// flush 采样宿主资源并写出当前统计
func (c *Collector) flush() {
	record := &Record{
		SimulatorID: c.simulatorID,
		Timestamp:   time.Now().UTC(),
		Commands:    c.snapshotCommands(),
	}

	if percentages, err := cpu.Percent(0, false); err == nil && len(percentages) > 0 {
		record.CPUPercent = percentages[0]
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		record.MemoryUsedPercent = vm.UsedPercent
	}

	data, err := json.Marshal(record)
	if err != nil {
		c.logger.Errorf("Failed to marshal performance record: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.store.StorePerformanceStatistics(ctx, data); err != nil {
		c.logger.Errorf("Failed to store performance record: %v", err)
	}
}

func (c *Collector) snapshotCommands() map[string]*CommandStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]*CommandStats, len(c.commands))
	for action, stats := range c.commands {
		copied := *stats
		out[action] = &copied
	}
	return out
}
