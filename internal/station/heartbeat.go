package station

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// startHeartbeat 注册通过后启动心跳定时器。
// 心跳周期由CSMS在Boot响应中下发；窗口内已有其他消息发出时跳过本次心跳。
func (s *Station) startHeartbeat() {
	s.heartbeatMu.Lock()
	if s.heartbeatCancel != nil {
		s.heartbeatMu.Unlock()
		return
	}
	interval := s.heartbeatInterval
	ctx, cancel := context.WithCancel(s.ctx)
	s.heartbeatCancel = cancel
	s.heartbeatMu.Unlock()

	if interval <= 0 {
		interval = 300 * time.Second
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		timer := time.NewTimer(interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			s.heartbeatMu.Lock()
			idle := time.Since(s.lastSend)
			current := s.heartbeatInterval
			s.heartbeatMu.Unlock()
			if current > 0 {
				interval = current
			}

			if idle < interval {
				// 窗口内发过消息，推迟到窗口耗尽
				timer.Reset(interval - idle)
				continue
			}

			if err := s.sendHeartbeat(ctx); err != nil {
				s.logger.Warnf("Heartbeat failed: %v", err)
			}
			timer.Reset(interval)
		}
	}()
}

// stopHeartbeat 停止心跳定时器
func (s *Station) stopHeartbeat() {
	s.heartbeatMu.Lock()
	cancel := s.heartbeatCancel
	s.heartbeatCancel = nil
	s.heartbeatMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// sendHeartbeat 发送一次心跳并同步CSMS时间
func (s *Station) sendHeartbeat(ctx context.Context) error {
	var payload interface{}
	if s.version == Version201 {
		payload = struct{}{}
	} else {
		payload = &ocpp16.HeartbeatRequest{}
	}

	raw, err := s.call(ctx, "Heartbeat", payload)
	if err != nil {
		return err
	}

	var resp struct {
		CurrentTime string `json:"currentTime"`
	}
	if err := json.Unmarshal(raw, &resp); err == nil && resp.CurrentTime != "" {
		s.logger.Debugf("Heartbeat acknowledged at %s", resp.CurrentTime)
	}
	return nil
}
