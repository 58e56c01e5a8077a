package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType 模拟器向上游发布的事件类型
type EventType string

const (
	// 站点生命周期事件
	EventTypeStationStarted      EventType = "station.started"
	EventTypeStationStopped      EventType = "station.stopped"
	EventTypeStationAccepted     EventType = "station.accepted"
	EventTypeStationRejected     EventType = "station.rejected"
	EventTypeStationPending      EventType = "station.pending"
	EventTypeStationDisconnected EventType = "station.disconnected"
	EventTypeStationUpdated      EventType = "station.updated"

	// 连接器事件
	EventTypeConnectorStatusChanged EventType = "connector.status_changed"

	// 交易事件
	EventTypeTransactionStarted EventType = "transaction.started"
	EventTypeTransactionStopped EventType = "transaction.stopped"

	// 宿主事件
	EventTypeWorkerError EventType = "worker.error"
)

// Event 统一事件接口
type Event interface {
	GetID() string
	GetType() EventType
	GetStationID() string
	GetTimestamp() time.Time
}

// BaseEvent 事件公共字段
type BaseEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	StationID string    `json:"stationId"`
	HashID    string    `json:"hashId"`
	Timestamp time.Time `json:"timestamp"`
}

// GetID 获取事件ID
func (e *BaseEvent) GetID() string { return e.ID }

// GetType 获取事件类型
func (e *BaseEvent) GetType() EventType { return e.Type }

// GetStationID 获取站点ID
func (e *BaseEvent) GetStationID() string { return e.StationID }

// GetTimestamp 获取事件时间
func (e *BaseEvent) GetTimestamp() time.Time { return e.Timestamp }

// StationLifecycleEvent 站点生命周期事件
type StationLifecycleEvent struct {
	BaseEvent
	RegistrationState string `json:"registrationState,omitempty"`
	Detail            string `json:"detail,omitempty"`
}

// ConnectorStatusChangedEvent 连接器状态变更事件
type ConnectorStatusChangedEvent struct {
	BaseEvent
	ConnectorID    int    `json:"connectorId"`
	PreviousStatus string `json:"previousStatus"`
	Status         string `json:"status"`
}

// TransactionEvent 交易开始/结束事件
type TransactionEvent struct {
	BaseEvent
	ConnectorID   int    `json:"connectorId"`
	TransactionID int    `json:"transactionId"`
	IdTag         string `json:"idTag,omitempty"`
	MeterWh       int64  `json:"meterWh"`
	StopReason    string `json:"stopReason,omitempty"`
}

// WorkerErrorEvent 宿主侧错误事件
type WorkerErrorEvent struct {
	BaseEvent
	WorkerID int    `json:"workerId"`
	Message  string `json:"message"`
}

// Factory 事件工厂
type Factory struct{}

// NewFactory 创建事件工厂
func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) base(eventType EventType, stationID, hashID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		StationID: stationID,
		HashID:    hashID,
		Timestamp: time.Now().UTC(),
	}
}

// NewLifecycleEvent 创建站点生命周期事件
func (f *Factory) NewLifecycleEvent(eventType EventType, stationID, hashID, state, detail string) *StationLifecycleEvent {
	return &StationLifecycleEvent{
		BaseEvent:         f.base(eventType, stationID, hashID),
		RegistrationState: state,
		Detail:            detail,
	}
}

// NewConnectorStatusChangedEvent 创建连接器状态变更事件
func (f *Factory) NewConnectorStatusChangedEvent(stationID, hashID string, connectorID int, previous, current string) *ConnectorStatusChangedEvent {
	return &ConnectorStatusChangedEvent{
		BaseEvent:      f.base(EventTypeConnectorStatusChanged, stationID, hashID),
		ConnectorID:    connectorID,
		PreviousStatus: previous,
		Status:         current,
	}
}

// NewTransactionEvent 创建交易事件
func (f *Factory) NewTransactionEvent(eventType EventType, stationID, hashID string, connectorID, transactionID int, idTag string, meterWh int64, stopReason string) *TransactionEvent {
	return &TransactionEvent{
		BaseEvent:     f.base(eventType, stationID, hashID),
		ConnectorID:   connectorID,
		TransactionID: transactionID,
		IdTag:         idTag,
		MeterWh:       meterWh,
		StopReason:    stopReason,
	}
}

// NewWorkerErrorEvent 创建宿主错误事件
func (f *Factory) NewWorkerErrorEvent(workerID int, stationID, message string) *WorkerErrorEvent {
	return &WorkerErrorEvent{
		BaseEvent: f.base(EventTypeWorkerError, stationID, ""),
		WorkerID:  workerID,
		Message:   message,
	}
}
