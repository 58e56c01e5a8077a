package serialization

import (
	"encoding/json"
	"fmt"
)

// MessageType OCPP-J消息类型
type MessageType int

const (
	// MessageTypeCall 请求消息 [2, messageId, action, payload]
	MessageTypeCall MessageType = 2
	// MessageTypeCallResult 响应消息 [3, messageId, payload]
	MessageTypeCallResult MessageType = 3
	// MessageTypeCallError 错误消息 [4, messageId, errorCode, errorDescription, errorDetails]
	MessageTypeCallError MessageType = 4
)

// CallErrorCode OCPP-J错误代码
type CallErrorCode string

const (
	ErrorCodeFormatError       CallErrorCode = "FormatError"
	ErrorCodeGenericError      CallErrorCode = "GenericError"
	ErrorCodeInternalError     CallErrorCode = "InternalError"
	ErrorCodeNotImplemented    CallErrorCode = "NotImplemented"
	ErrorCodeNotSupported      CallErrorCode = "NotSupported"
	ErrorCodeSecurityError     CallErrorCode = "SecurityError"
	ErrorCodeValidationError   CallErrorCode = "ValidationError"
	ErrorCodePropertyConstraintViolation CallErrorCode = "PropertyConstraintViolation"
)

// Frame 解码后的OCPP-J帧
type Frame struct {
	Type             MessageType
	MessageID        string
	Action           string          // 仅Call
	Payload          json.RawMessage // Call与CallResult
	ErrorCode        string          // 仅CallError
	ErrorDescription string          // 仅CallError
	ErrorDetails     json.RawMessage // 仅CallError
}

// WireError 帧编解码错误
type WireError struct {
	Code    CallErrorCode
	Message string
	Cause   error
}

// Error 实现error接口
func (e *WireError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap 支持errors.Is/As
func (e *WireError) Unwrap() error {
	return e.Cause
}

func formatError(msg string, cause error) *WireError {
	return &WireError{Code: ErrorCodeFormatError, Message: msg, Cause: cause}
}

// Serializer OCPP-J帧编解码器
type Serializer struct{}

// NewSerializer 创建新的编解码器
func NewSerializer() *Serializer {
	return &Serializer{}
}

// EncodeCall 编码请求帧
func (s *Serializer) EncodeCall(messageID, action string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal([]interface{}{int(MessageTypeCall), messageID, action, payload})
	if err != nil {
		return nil, formatError("failed to marshal Call", err)
	}
	return data, nil
}

// EncodeCallResult 编码响应帧
func (s *Serializer) EncodeCallResult(messageID string, payload interface{}) ([]byte, error) {
	if payload == nil {
		payload = struct{}{}
	}
	data, err := json.Marshal([]interface{}{int(MessageTypeCallResult), messageID, payload})
	if err != nil {
		return nil, formatError("failed to marshal CallResult", err)
	}
	return data, nil
}

// EncodeCallError 编码错误帧
func (s *Serializer) EncodeCallError(messageID string, code CallErrorCode, description string, details interface{}) ([]byte, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	data, err := json.Marshal([]interface{}{int(MessageTypeCallError), messageID, string(code), description, details})
	if err != nil {
		return nil, formatError("failed to marshal CallError", err)
	}
	return data, nil
}

// Decode 解码入站帧并按消息类型分类
func (s *Serializer) Decode(data []byte) (*Frame, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil {
		return nil, formatError("message is not a JSON array", err)
	}
	if len(elements) < 3 {
		return nil, formatError(fmt.Sprintf("message has %d elements, need at least 3", len(elements)), nil)
	}

	var messageType int
	if err := json.Unmarshal(elements[0], &messageType); err != nil {
		return nil, formatError("message type is not an integer", err)
	}

	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil {
		return nil, formatError("message id is not a string", err)
	}
	if messageID == "" {
		return nil, formatError("message id is empty", nil)
	}

	frame := &Frame{Type: MessageType(messageType), MessageID: messageID}

	switch MessageType(messageType) {
	case MessageTypeCall:
		if len(elements) != 4 {
			return nil, formatError(fmt.Sprintf("Call has %d elements, need 4", len(elements)), nil)
		}
		if err := json.Unmarshal(elements[2], &frame.Action); err != nil {
			return nil, formatError("Call action is not a string", err)
		}
		if frame.Action == "" {
			return nil, formatError("Call action is empty", nil)
		}
		frame.Payload = elements[3]

	case MessageTypeCallResult:
		if len(elements) != 3 {
			return nil, formatError(fmt.Sprintf("CallResult has %d elements, need 3", len(elements)), nil)
		}
		frame.Payload = elements[2]

	case MessageTypeCallError:
		if len(elements) != 5 {
			return nil, formatError(fmt.Sprintf("CallError has %d elements, need 5", len(elements)), nil)
		}
		if err := json.Unmarshal(elements[2], &frame.ErrorCode); err != nil {
			return nil, formatError("CallError code is not a string", err)
		}
		if err := json.Unmarshal(elements[3], &frame.ErrorDescription); err != nil {
			return nil, formatError("CallError description is not a string", err)
		}
		frame.ErrorDetails = elements[4]

	default:
		return nil, formatError(fmt.Sprintf("unsupported message type: %d", messageType), nil)
	}

	return frame, nil
}

// DecodePayload 将帧payload反序列化到目标结构
func (s *Serializer) DecodePayload(payload json.RawMessage, target interface{}) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, target); err != nil {
		return formatError("failed to unmarshal payload", err)
	}
	return nil
}
