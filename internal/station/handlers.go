package station

import (
	"context"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
)

// dispatchEntry 入站命令的分发表条目
type dispatchEntry struct {
	// newPayload 构造载荷实例用于反序列化与校验
	newPayload func() interface{}
	// handle 业务处理，返回响应载荷或错误
	handle func(ctx context.Context, payload interface{}) (interface{}, *callFault)
	// pendingBlocked Pending状态下严格模式拒绝该命令
	pendingBlocked bool
}

// dispatchTable 按协议版本构建分发表
func (s *Station) dispatchTable() map[string]dispatchEntry {
	if s.version == Version201 {
		return s.handlers201()
	}
	return s.handlers16()
}

// dispatchCall 处理CSMS下发的Call帧
func (s *Station) dispatchCall(frame *serialization.Frame) {
	log := s.logger.WithCommand(frame.Action, frame.MessageID)
	log.Debug("Call received")

	entry, known := s.dispatchTable()[frame.Action]
	if !known {
		s.respondError(frame.MessageID, serialization.ErrorCodeNotImplemented,
			"action "+frame.Action+" is not implemented", nil)
		return
	}

	if fault := s.guardIncoming(entry); fault != nil {
		s.respondError(frame.MessageID, fault.code, fault.description, fault.details)
		return
	}

	payload := entry.newPayload()
	if payload != nil {
		if err := s.codec.DecodePayload(frame.Payload, payload); err != nil {
			s.respondError(frame.MessageID, serialization.ErrorCodeFormatError, err.Error(), nil)
			return
		}
		if s.strict {
			if err := s.validator.ValidateStruct(payload); err != nil {
				s.respondError(frame.MessageID, serialization.ErrorCodeValidationError, err.Error(), nil)
				return
			}
		}
	}

	ctx, cancel := context.WithTimeout(s.ctx, 30*time.Second)
	defer cancel()

	response, fault := s.invokeHandler(ctx, entry, payload)
	if fault != nil {
		log.Warnf("Handler rejected call: %s", fault.description)
		s.respondError(frame.MessageID, fault.code, fault.description, fault.details)
		return
	}
	s.respondResult(frame.MessageID, response)
}

// invokeHandler 调用处理器并把panic转为InternalError
func (s *Station) invokeHandler(ctx context.Context, entry dispatchEntry, payload interface{}) (response interface{}, fault *callFault) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Errorf("Handler panicked: %v", r)
			response = nil
			fault = newFault(serialization.ErrorCodeInternalError, "internal handler failure")
		}
	}()
	return entry.handle(ctx, payload)
}

// guardIncoming 注册状态守卫。
// 未注册成功的站点拒绝下发命令；Pending状态下严格模式额外拒绝远程启停。
func (s *Station) guardIncoming(entry dispatchEntry) *callFault {
	state := s.getState()

	switch state {
	case StateAccepted:
		return nil
	case StatePending:
		if s.strict && entry.pendingBlocked {
			return newFault(serialization.ErrorCodeSecurityError,
				"command not allowed while registration is pending")
		}
		return nil
	case StateUnknown:
		if !s.strict {
			return nil
		}
	}
	return newFault(serialization.ErrorCodeSecurityError,
		"station is not accepted by the central system")
}

// respondResult 发送CallResult，注册守卫不适用于响应帧
func (s *Station) respondResult(messageID string, payload interface{}) {
	data, err := s.codec.EncodeCallResult(messageID, payload)
	if err != nil {
		s.logger.Errorf("Failed to encode CallResult: %v", err)
		return
	}
	s.sendDirect(data)
}

// respondError 发送CallError
func (s *Station) respondError(messageID string, code serialization.CallErrorCode, description string, details interface{}) {
	data, err := s.codec.EncodeCallError(messageID, code, description, details)
	if err != nil {
		s.logger.Errorf("Failed to encode CallError: %v", err)
		return
	}
	s.sendDirect(data)
}

// sendDirect 绕过出站缓冲直接写连接，用于响应帧
func (s *Station) sendDirect(data []byte) {
	s.connMu.Lock()
	client := s.client
	s.connMu.Unlock()
	if client == nil {
		s.logger.Warn("Dropping response frame, connection is gone")
		return
	}
	if err := client.Send(data); err != nil {
		s.logger.Errorf("Failed to send response frame: %v", err)
	}
	s.noteSend()
}
