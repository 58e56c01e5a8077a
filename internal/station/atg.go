package station

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"math"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
	"github.com/charging-platform/charge-point-simulator/internal/logger"
)

// ATGStatus 单个连接器的ATG运行统计，站点信息持久化开启时随快照保存
type ATGStatus struct {
	AcceptedAuthorizeRequests int64 `json:"acceptedAuthorizeRequests"`
	RejectedAuthorizeRequests int64 `json:"rejectedAuthorizeRequests"`
	AcceptedStartTransactionRequests int64 `json:"acceptedStartTransactionRequests"`
	RejectedStartTransactionRequests int64 `json:"rejectedStartTransactionRequests"`
	AcceptedStopTransactionRequests  int64 `json:"acceptedStopTransactionRequests"`
	RejectedStopTransactionRequests  int64 `json:"rejectedStopTransactionRequests"`
	SkippedConsecutiveTransactions   int64 `json:"skippedConsecutiveTransactions"`
	SkippedTransactions              int64 `json:"skippedTransactions"`

	Running     bool       `json:"running"`
	StartDate   *time.Time `json:"startDate,omitempty"`
	StopDate    *time.Time `json:"stopDate,omitempty"`
	LastRunDate *time.Time `json:"lastRunDate,omitempty"`
	StoppedDate *time.Time `json:"stoppedDate,omitempty"`
}

// StartTransactionRequests 发出的交易启动请求总数
func (st *ATGStatus) StartTransactionRequests() int64 {
	return st.AcceptedStartTransactionRequests + st.RejectedStartTransactionRequests
}

// Generator 自动交易发生器，每个连接器一条独立循环
type Generator struct {
	station *Station
	config  ATGConfig

	mu       sync.Mutex
	statuses map[int]*ATGStatus
	running  bool
	rrIndex  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newGenerator 创建ATG
func newGenerator(s *Station, config ATGConfig) *Generator {
	return &Generator{
		station:  s,
		config:   config,
		statuses: make(map[int]*ATGStatus),
	}
}

// Config 当前配置
func (g *Generator) Config() ATGConfig {
	return g.config
}

// Status 连接器的ATG统计副本
func (g *Generator) Status(connectorID int) ATGStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	if status, ok := g.statuses[connectorID]; ok {
		return *status
	}
	return ATGStatus{}
}

func (g *Generator) status(connectorID int) *ATGStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.statuses[connectorID]
	if !ok {
		status = &ATGStatus{}
		g.statuses[connectorID] = status
	}
	return status
}

// IsRunning ATG是否运行中
func (g *Generator) IsRunning() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.running
}

// Start 为每个连接器启动一条交易循环
func (g *Generator) Start() {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return
	}
	g.running = true
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.mu.Unlock()

	for _, connector := range g.station.model.All() {
		g.wg.Add(1)
		go g.connectorLoop(connector)
	}
	g.station.logger.Infof("ATG started for %d connectors", g.station.model.Len())
}

// Stop 停止全部循环并等待退出，睡眠会被立即打断
func (g *Generator) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	cancel := g.cancel
	g.mu.Unlock()

	cancel()
	g.wg.Wait()
	g.station.logger.Info("ATG stopped")
}

// sleep 可取消睡眠
func (g *Generator) sleep(d time.Duration) bool {
	if d <= 0 {
		return g.ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-g.ctx.Done():
		return false
	}
}

// connectorLoop 单连接器交易循环
func (g *Generator) connectorLoop(connector *Connector) {
	defer g.wg.Done()

	log := g.station.logger.ForConnector(connector.ID)
	status := g.status(connector.ID)

	now := time.Now()
	g.mu.Lock()
	status.Running = true
	status.StartDate = &now
	if status.StopDate == nil || !g.config.StopAbsoluteDuration {
		stop := now.Add(time.Duration(g.config.StopAfterHours * float64(time.Hour)))
		status.StopDate = &stop
	}
	stopDate := *status.StopDate
	g.mu.Unlock()

	defer func() {
		stopped := time.Now()
		g.mu.Lock()
		status.Running = false
		status.StoppedDate = &stopped
		g.mu.Unlock()
	}()

	for g.ctx.Err() == nil {
		if !g.waitUntilRunnable(connector) {
			return
		}
		if time.Now().After(stopDate) {
			log.Debug("ATG reached its stop date")
			return
		}

		if !g.sleep(g.uniformDuration(g.config.MinDelayBetweenTwoTransactions, g.config.MaxDelayBetweenTwoTransactions)) {
			return
		}

		lastRun := time.Now()
		g.mu.Lock()
		status.LastRunDate = &lastRun
		g.mu.Unlock()

		if secureRandom() >= g.config.ProbabilityOfStart {
			g.mu.Lock()
			status.SkippedConsecutiveTransactions++
			status.SkippedTransactions++
			skipped := status.SkippedConsecutiveTransactions
			g.mu.Unlock()
			log.Debugf("ATG skipped start (%d consecutive)", skipped)
			continue
		}

		g.mu.Lock()
		status.SkippedConsecutiveTransactions = 0
		g.mu.Unlock()

		if err := g.runTransaction(connector, status, log); err != nil {
			log.Errorf("ATG iteration failed: %v", err)
			// 出错后保护性停顿，避免紧循环轰炸CSMS
			if !g.sleep(5 * time.Second) {
				return
			}
		}
	}
}

// waitUntilRunnable 等待站点注册通过、连接器可用且无交易；
// 出站队列达到高水位后一并等待，直到队列降到低水位以下
func (g *Generator) waitUntilRunnable(connector *Connector) bool {
	throttled := false
	for {
		if g.ctx.Err() != nil {
			return false
		}
		if g.station.OutboundSaturated() {
			throttled = true
		} else if throttled && g.station.OutboundDrained() {
			throttled = false
		}
		if g.station.State() == StateAccepted &&
			connector.IsAvailable() &&
			!throttled {
			return true
		}
		if !g.sleep(time.Second) {
			return false
		}
	}
}

// runTransaction 一次完整的授权-启动-充电-停止流程
func (g *Generator) runTransaction(connector *Connector, status *ATGStatus, log *logger.Logger) error {
	idTag := g.pickIdTag(connector.ID)

	if g.config.RequireAuthorize && len(g.station.idTags) > 0 {
		ctx, cancel := context.WithTimeout(g.ctx, g.station.messageTimeout()+time.Second)
		accepted, err := g.station.Authorize(ctx, idTag)
		cancel()
		if err != nil {
			return err
		}
		g.mu.Lock()
		if accepted {
			status.AcceptedAuthorizeRequests++
		} else {
			status.RejectedAuthorizeRequests++
		}
		g.mu.Unlock()
		if !accepted {
			log.Debugf("Authorization rejected for idTag %s", idTag)
			return nil
		}
	}

	startCtx, cancelStart := context.WithTimeout(g.ctx, g.station.messageTimeout()*3)
	accepted, err := g.station.StartTransaction(startCtx, connector.ID, idTag)
	cancelStart()
	if err != nil {
		g.mu.Lock()
		status.RejectedStartTransactionRequests++
		g.mu.Unlock()
		return err
	}
	g.mu.Lock()
	if accepted {
		status.AcceptedStartTransactionRequests++
	} else {
		status.RejectedStartTransactionRequests++
	}
	g.mu.Unlock()
	if !accepted {
		log.Debugf("StartTransaction rejected for idTag %s", idTag)
		return nil
	}

	// 充电时长内保持交易，睡眠可被停止请求打断
	g.sleep(g.uniformDuration(g.config.MinDuration, g.config.MaxDuration))

	stopCtx, cancelStop := context.WithTimeout(context.Background(), g.station.messageTimeout()*3)
	defer cancelStop()
	stopAccepted, err := g.station.StopTransaction(stopCtx, connector.ID, ocpp16.ReasonLocal)
	g.mu.Lock()
	if err == nil && stopAccepted {
		status.AcceptedStopTransactionRequests++
	} else {
		status.RejectedStopTransactionRequests++
	}
	g.mu.Unlock()
	return err
}

// pickIdTag 按配置的分布选择idTag
func (g *Generator) pickIdTag(connectorID int) string {
	tags := g.station.idTags
	if len(tags) == 0 {
		return "AA000000"
	}

	switch g.config.IdTagDistribution {
	case "random":
		return tags[mathrand.Intn(len(tags))]
	case "connector-affinity":
		return tags[connectorID%len(tags)]
	default: // round-robin
		g.mu.Lock()
		tag := tags[g.rrIndex%len(tags)]
		g.rrIndex++
		g.mu.Unlock()
		return tag
	}
}

// uniformDuration [min,max]秒之间的均匀随机时长
func (g *Generator) uniformDuration(minSeconds, maxSeconds int) time.Duration {
	if maxSeconds <= minSeconds {
		return time.Duration(minSeconds) * time.Second
	}
	span := float64(maxSeconds - minSeconds)
	return time.Duration((float64(minSeconds) + secureRandom()*span) * float64(time.Second))
}

// secureRandom 密码学随机的[0,1)均匀实数
func secureRandom() float64 {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// 随机源不可用时退化为math/rand
		return mathrand.Float64()
	}
	return float64(binary.BigEndian.Uint64(buf[:])>>11) / math.Exp2(53)
}

// SnapshotStatuses 导出ATG统计用于站点快照
func (g *Generator) SnapshotStatuses() map[int]*ATGStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[int]*ATGStatus, len(g.statuses))
	for id, status := range g.statuses {
		copied := *status
		out[id] = &copied
	}
	return out
}

// RestoreStatuses 从站点快照恢复ATG统计
func (g *Generator) RestoreStatuses(statuses map[int]*ATGStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, status := range statuses {
		copied := *status
		copied.Running = false
		g.statuses[id] = &copied
	}
}
