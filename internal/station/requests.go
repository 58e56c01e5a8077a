package station

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
	"github.com/charging-platform/charge-point-simulator/internal/metrics"
	"github.com/charging-platform/charge-point-simulator/internal/registry"
)

// pendingResult 出站请求的最终结果
type pendingResult struct {
	payload json.RawMessage
	err     error
}

// pendingEntry 待响应的出站Call
type pendingEntry struct {
	action   string
	respCh   chan pendingResult
	timer    *time.Timer
	sentAt   time.Time
	deadline time.Time
}

// registerPending 登记一个待响应请求并启动超时定时器
func (s *Station) registerPending(messageID, action string, timeout time.Duration) *pendingEntry {
	entry := &pendingEntry{
		action:   action,
		respCh:   make(chan pendingResult, 1),
		sentAt:   time.Now(),
		deadline: time.Now().Add(timeout),
	}
	entry.timer = time.AfterFunc(timeout, func() {
		metrics.RequestTimeouts.WithLabelValues(action).Inc()
		s.resolvePending(messageID, pendingResult{err: ErrTimeout})
	})

	s.pendingMu.Lock()
	s.pending[messageID] = entry
	s.pendingMu.Unlock()
	return entry
}

// resolvePending 将结果交给等待协程并移除登记。
// 同一messageID只投递一次；未知或已完成的响应被丢弃并告警。
func (s *Station) resolvePending(messageID string, result pendingResult) bool {
	s.pendingMu.Lock()
	entry, exists := s.pending[messageID]
	if exists {
		delete(s.pending, messageID)
	}
	s.pendingMu.Unlock()

	if !exists {
		return false
	}
	entry.timer.Stop()
	entry.respCh <- result
	return true
}

// failAllPending 连接断开时以给定错误结束全部待响应请求
func (s *Station) failAllPending(err error) {
	s.pendingMu.Lock()
	entries := s.pending
	s.pending = make(map[string]*pendingEntry)
	s.pendingMu.Unlock()

	for _, entry := range entries {
		entry.timer.Stop()
		entry.respCh <- pendingResult{err: err}
	}
}

// PendingCount 当前待响应请求数量
func (s *Station) PendingCount() int {
	s.pendingMu.RLock()
	defer s.pendingMu.RUnlock()
	return len(s.pending)
}

// call 发送一个Call并等待响应，单次尝试
func (s *Station) call(ctx context.Context, action string, payload interface{}) (json.RawMessage, error) {
	if s.strict && payload != nil {
		if err := s.validator.ValidateStruct(payload); err != nil {
			return nil, err
		}
	}

	messageID := uuid.NewString()
	data, err := s.codec.EncodeCall(messageID, action, payload)
	if err != nil {
		return nil, err
	}

	entry := s.registerPending(messageID, action, s.messageTimeout())

	if err := s.deliver(action, data); err != nil {
		s.resolvePending(messageID, pendingResult{err: err})
		<-entry.respCh
		return nil, err
	}
	s.noteSend()
	metrics.MessagesSent.WithLabelValues(string(s.version), action).Inc()
	s.logger.WithCommand(action, messageID).Debug("Call sent")

	select {
	case result := <-entry.respCh:
		elapsed := time.Since(entry.sentAt)
		metrics.RequestDuration.WithLabelValues(action).Observe(elapsed.Seconds())
		if s.perf != nil {
			s.perf.ObserveRequest(action, elapsed, result.err != nil)
		}
		return result.payload, result.err
	case <-ctx.Done():
		s.resolvePending(messageID, pendingResult{err: ctx.Err()})
		<-entry.respCh
		return nil, ctx.Err()
	}
}

// deliver 将编码后的帧写入连接。
// 未注册成功的站点把除BootNotification外的出站帧缓存到内存队列，注册通过后按序冲刷。
func (s *Station) deliver(action string, data []byte) error {
	s.connMu.Lock()
	client := s.client
	if client == nil {
		if action == bootNotificationAction {
			s.connMu.Unlock()
			return ErrDisconnected
		}
		s.outbound = append(s.outbound, data)
		s.connMu.Unlock()
		return nil
	}
	if s.getState() != StateAccepted && action != bootNotificationAction {
		s.outbound = append(s.outbound, data)
		s.connMu.Unlock()
		return nil
	}
	s.connMu.Unlock()

	// 锁外写入，Send在队列满时会阻塞等待写协程排空
	return client.Send(data)
}

// flushOutbound 注册通过后冲刷缓存队列，保持入队顺序
func (s *Station) flushOutbound() {
	s.connMu.Lock()
	queued := s.outbound
	s.outbound = nil
	client := s.client
	s.connMu.Unlock()

	if client == nil {
		return
	}
	for _, data := range queued {
		if err := client.Send(data); err != nil {
			s.logger.Warnf("Failed to flush queued frame: %v", err)
			return
		}
	}
	if len(queued) > 0 {
		s.logger.Debugf("Flushed %d queued frames", len(queued))
	}
}

// request 发送请求并按需应用重试策略。
// 交易相关命令在超时或断连后按MessageAttempts×MessageAttemptInterval重发，
// 重试保留原始载荷但使用新的messageId。
func (s *Station) request(ctx context.Context, action string, payload interface{}, retryable bool) (json.RawMessage, error) {
	attempts := 1
	if retryable {
		attempts = s.messageAttempts()
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := s.call(ctx, action, payload)
		if err == nil {
			return response, nil
		}
		lastErr = err

		// CallError是确定性响应，不重试；上下文取消直接退出
		var callErr *CallError
		if errors.As(err, &callErr) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < attempts {
			s.logger.Warnf("Request %s failed (attempt %d/%d): %v", action, attempt, attempts, err)
			if !s.sleep(ctx, s.messageAttemptInterval()) {
				return nil, ctx.Err()
			}
		}
	}
	return nil, lastErr
}

// messageTimeout 出站请求超时时间
func (s *Station) messageTimeout() time.Duration {
	if v, ok := s.resolveRegistryInt(registry.ComponentOCPPCommCtrlr, registry.VariableMessageTimeout, ""); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	return 30 * time.Second
}

// messageAttempts 交易相关请求的最大尝试次数
func (s *Station) messageAttempts() int {
	if v, ok := s.resolveRegistryInt(registry.ComponentOCPPCommCtrlr, registry.VariableMessageAttempts, "TransactionEvent"); ok && v > 0 {
		return v
	}
	return 3
}

// messageAttemptInterval 两次尝试之间的间隔
func (s *Station) messageAttemptInterval() time.Duration {
	if v, ok := s.resolveRegistryInt(registry.ComponentOCPPCommCtrlr, registry.VariableMessageAttemptInterval, "TransactionEvent"); ok && v > 0 {
		return time.Duration(v) * time.Second
	}
	return 10 * time.Second
}

// resolveRegistryInt 从设备模型解析整型设置
func (s *Station) resolveRegistryInt(component, variable, instance string) (int, bool) {
	metadata, ok := s.registry.Lookup(component, variable, instance)
	if !ok {
		return 0, false
	}
	raw := s.registry.ResolveValue(s.stationInfo(), s.overlay, metadata)
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return value, true
}

// resolveCallResult CallResult帧到达时解除等待
func (s *Station) resolveCallResult(frame *serialization.Frame) {
	if !s.resolvePending(frame.MessageID, pendingResult{payload: frame.Payload}) {
		s.logger.Warnf("Dropping CallResult with unknown message id %s", frame.MessageID)
	}
}

// resolveCallError CallError帧到达时以错误解除等待
func (s *Station) resolveCallError(frame *serialization.Frame) {
	err := &CallError{
		Code:        serialization.CallErrorCode(frame.ErrorCode),
		Description: frame.ErrorDescription,
	}
	if !s.resolvePending(frame.MessageID, pendingResult{err: err}) {
		s.logger.Warnf("Dropping CallError with unknown message id %s", frame.MessageID)
	}
}
