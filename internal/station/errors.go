package station

import (
	"errors"
	"fmt"

	"github.com/charging-platform/charge-point-simulator/internal/domain/serialization"
)

// 请求生命周期错误
var (
	// ErrTimeout 出站请求超时未获响应
	ErrTimeout = errors.New("request timeout")
	// ErrDisconnected 连接在等待响应期间断开
	ErrDisconnected = errors.New("connection closed")
	// ErrStationStopped 站点已停止
	ErrStationStopped = errors.New("station stopped")
)

// 连接器模型错误
var (
	// ErrConnectorNotFound 连接器不存在
	ErrConnectorNotFound = errors.New("connector not found")
	// ErrTransactionRunning 连接器上已有交易，重复启动属编程错误
	ErrTransactionRunning = errors.New("transaction already running on connector")
	// ErrNoTransaction 连接器上没有交易
	ErrNoTransaction = errors.New("no transaction running on connector")
)

// 配置键错误
var (
	// ErrKeyExists 配置键已存在且未允许覆盖
	ErrKeyExists = errors.New("configuration key already exists")
	// ErrKeyReadonly 配置键只读
	ErrKeyReadonly = errors.New("configuration key is readonly")
	// ErrKeyNotFound 配置键不存在
	ErrKeyNotFound = errors.New("configuration key not found")
)

// CallError CSMS返回的错误帧，作为请求错误向调用方传播
type CallError struct {
	Code        serialization.CallErrorCode
	Description string
}

// Error 实现error接口
func (e *CallError) Error() string {
	return fmt.Sprintf("call error %s: %s", e.Code, e.Description)
}

// callFault 入站处理器的错误结果，由运行时转为CallError帧
type callFault struct {
	code        serialization.CallErrorCode
	description string
	details     interface{}
}

func newFault(code serialization.CallErrorCode, format string, args ...interface{}) *callFault {
	return &callFault{code: code, description: fmt.Sprintf(format, args...)}
}
