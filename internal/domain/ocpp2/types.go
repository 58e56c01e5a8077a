package ocpp2

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action OCPP 2.0.1动作类型
type Action string

const (
	// 充电桩发起的动作
	ActionAuthorize          Action = "Authorize"
	ActionBootNotification   Action = "BootNotification"
	ActionDataTransfer       Action = "DataTransfer"
	ActionHeartbeat          Action = "Heartbeat"
	ActionNotifyReport       Action = "NotifyReport"
	ActionStatusNotification Action = "StatusNotification"
	ActionTransactionEvent   Action = "TransactionEvent"

	// 中央系统发起的动作
	ActionClearCache              Action = "ClearCache"
	ActionGetBaseReport           Action = "GetBaseReport"
	ActionGetVariables            Action = "GetVariables"
	ActionRequestStartTransaction Action = "RequestStartTransaction"
	ActionRequestStopTransaction  Action = "RequestStopTransaction"
	ActionReset                   Action = "Reset"
	ActionSetVariables            Action = "SetVariables"
	ActionUnlockConnector         Action = "UnlockConnector"
)

// RegistrationStatus 注册状态
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

// BootReason 启动原因
type BootReason string

const (
	BootReasonApplicationReset BootReason = "ApplicationReset"
	BootReasonPowerUp          BootReason = "PowerUp"
	BootReasonRemoteReset      BootReason = "RemoteReset"
	BootReasonScheduledReset   BootReason = "ScheduledReset"
	BootReasonUnknown          BootReason = "Unknown"
)

// ConnectorStatus 连接器状态
type ConnectorStatus string

const (
	ConnectorStatusAvailable   ConnectorStatus = "Available"
	ConnectorStatusOccupied    ConnectorStatus = "Occupied"
	ConnectorStatusReserved    ConnectorStatus = "Reserved"
	ConnectorStatusUnavailable ConnectorStatus = "Unavailable"
	ConnectorStatusFaulted     ConnectorStatus = "Faulted"
)

// TransactionEventType 交易事件类型
type TransactionEventType string

const (
	TransactionEventStarted TransactionEventType = "Started"
	TransactionEventUpdated TransactionEventType = "Updated"
	TransactionEventEnded   TransactionEventType = "Ended"
)

// TriggerReason 交易事件触发原因
type TriggerReason string

const (
	TriggerReasonAuthorized      TriggerReason = "Authorized"
	TriggerReasonCablePluggedIn  TriggerReason = "CablePluggedIn"
	TriggerReasonDeauthorized    TriggerReason = "Deauthorized"
	TriggerReasonEVDeparted      TriggerReason = "EVDeparted"
	TriggerReasonMeterValuePeriodic TriggerReason = "MeterValuePeriodic"
	TriggerReasonRemoteStart     TriggerReason = "RemoteStart"
	TriggerReasonRemoteStop      TriggerReason = "RemoteStop"
	TriggerReasonStopAuthorized  TriggerReason = "StopAuthorized"
)

// ChargingState 充电状态
type ChargingState string

const (
	ChargingStateCharging      ChargingState = "Charging"
	ChargingStateEVConnected   ChargingState = "EVConnected"
	ChargingStateSuspendedEV   ChargingState = "SuspendedEV"
	ChargingStateSuspendedEVSE ChargingState = "SuspendedEVSE"
	ChargingStateIdle          ChargingState = "Idle"
)

// StoppedReason 交易结束原因
type StoppedReason string

const (
	StoppedReasonDeAuthorized   StoppedReason = "DeAuthorized"
	StoppedReasonEVDisconnected StoppedReason = "EVDisconnected"
	StoppedReasonImmediateReset StoppedReason = "ImmediateReset"
	StoppedReasonLocal          StoppedReason = "Local"
	StoppedReasonOther          StoppedReason = "Other"
	StoppedReasonRemote         StoppedReason = "Remote"
)

// IdTokenType 令牌类型
type IdTokenType string

const (
	IdTokenTypeCentral   IdTokenType = "Central"
	IdTokenTypeISO14443  IdTokenType = "ISO14443"
	IdTokenTypeISO15693  IdTokenType = "ISO15693"
	IdTokenTypeKeyCode   IdTokenType = "KeyCode"
	IdTokenTypeLocal     IdTokenType = "Local"
	IdTokenTypeNoAuthorization IdTokenType = "NoAuthorization"
)

// AuthorizationStatus 授权状态
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted     AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked      AuthorizationStatus = "Blocked"
	AuthorizationStatusExpired      AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid      AuthorizationStatus = "Invalid"
	AuthorizationStatusConcurrentTx AuthorizationStatus = "ConcurrentTx"
	AuthorizationStatusUnknown      AuthorizationStatus = "Unknown"
)

// AttributeType 变量属性类型
type AttributeType string

const (
	AttributeTypeActual AttributeType = "Actual"
	AttributeTypeTarget AttributeType = "Target"
	AttributeTypeMinSet AttributeType = "MinSet"
	AttributeTypeMaxSet AttributeType = "MaxSet"
)

// GetVariableStatus 变量查询结果
type GetVariableStatus string

const (
	GetVariableStatusAccepted         GetVariableStatus = "Accepted"
	GetVariableStatusRejected         GetVariableStatus = "Rejected"
	GetVariableStatusUnknownComponent GetVariableStatus = "UnknownComponent"
	GetVariableStatusUnknownVariable  GetVariableStatus = "UnknownVariable"
	GetVariableStatusNotSupportedAttributeType GetVariableStatus = "NotSupportedAttributeType"
)

// SetVariableStatus 变量设置结果
type SetVariableStatus string

const (
	SetVariableStatusAccepted         SetVariableStatus = "Accepted"
	SetVariableStatusRejected         SetVariableStatus = "Rejected"
	SetVariableStatusUnknownComponent SetVariableStatus = "UnknownComponent"
	SetVariableStatusUnknownVariable  SetVariableStatus = "UnknownVariable"
	SetVariableStatusNotSupportedAttributeType SetVariableStatus = "NotSupportedAttributeType"
	SetVariableStatusRebootRequired   SetVariableStatus = "RebootRequired"
)

// ReportBase 基础报告类型
type ReportBase string

const (
	ReportBaseConfigurationInventory ReportBase = "ConfigurationInventory"
	ReportBaseFullInventory          ReportBase = "FullInventory"
	ReportBaseSummaryInventory       ReportBase = "SummaryInventory"
)

// GenericDeviceModelStatus 设备模型操作结果
type GenericDeviceModelStatus string

const (
	GenericDeviceModelStatusAccepted       GenericDeviceModelStatus = "Accepted"
	GenericDeviceModelStatusRejected       GenericDeviceModelStatus = "Rejected"
	GenericDeviceModelStatusNotSupported   GenericDeviceModelStatus = "NotSupported"
	GenericDeviceModelStatusEmptyResultSet GenericDeviceModelStatus = "EmptyResultSet"
)

// ResetType 重置类型
type ResetType string

const (
	ResetTypeImmediate ResetType = "Immediate"
	ResetTypeOnIdle    ResetType = "OnIdle"
)

// ResetStatus 重置结果
type ResetStatus string

const (
	ResetStatusAccepted  ResetStatus = "Accepted"
	ResetStatusRejected  ResetStatus = "Rejected"
	ResetStatusScheduled ResetStatus = "Scheduled"
)

// ClearCacheStatus 缓存清理结果
type ClearCacheStatus string

const (
	ClearCacheStatusAccepted ClearCacheStatus = "Accepted"
	ClearCacheStatusRejected ClearCacheStatus = "Rejected"
)

// RequestStartStopStatus 远程启停结果
type RequestStartStopStatus string

const (
	RequestStartStopStatusAccepted RequestStartStopStatus = "Accepted"
	RequestStartStopStatusRejected RequestStartStopStatus = "Rejected"
)

// UnlockStatus 解锁结果
type UnlockStatus string

const (
	UnlockStatusUnlocked            UnlockStatus = "Unlocked"
	UnlockStatusUnlockFailed        UnlockStatus = "UnlockFailed"
	UnlockStatusOngoingTransaction  UnlockStatus = "OngoingAuthorizedTransaction"
	UnlockStatusUnknownConnector    UnlockStatus = "UnknownConnector"
)

// DataTransferStatus 数据传输结果
type DataTransferStatus string

const (
	DataTransferStatusAccepted        DataTransferStatus = "Accepted"
	DataTransferStatusRejected        DataTransferStatus = "Rejected"
	DataTransferStatusUnknownVendorId DataTransferStatus = "UnknownVendorId"
)

// MeasurandType 测量值类型
type MeasurandType string

const (
	MeasurandCurrentImport              MeasurandType = "Current.Import"
	MeasurandEnergyActiveImportRegister MeasurandType = "Energy.Active.Import.Register"
	MeasurandPowerActiveImport          MeasurandType = "Power.Active.Import"
	MeasurandSoC                        MeasurandType = "SoC"
	MeasurandVoltage                    MeasurandType = "Voltage"
)

// DateTime OCPP时间类型，序列化为RFC3339毫秒格式
type DateTime struct {
	time.Time
}

// NewDateTime 以UTC构造DateTime
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

// MarshalJSON 实现json.Marshaler
func (d DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// UnmarshalJSON 实现json.Unmarshaler
func (d *DateTime) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid dateTime value: %s", raw)
}

// EVSEType EVSE定位，连接器可选
type EVSEType struct {
	Id          int  `json:"id" validate:"min=1"`
	ConnectorId *int `json:"connectorId,omitempty" validate:"omitempty,min=1"`
}

// ComponentType 组件定位
type ComponentType struct {
	Name     string    `json:"name" validate:"required,max=50"`
	Instance *string   `json:"instance,omitempty" validate:"omitempty,max=50"`
	EVSE     *EVSEType `json:"evse,omitempty"`
}

// VariableType 变量定位
type VariableType struct {
	Name     string  `json:"name" validate:"required,max=50"`
	Instance *string `json:"instance,omitempty" validate:"omitempty,max=50"`
}

// IdToken 2.0.1令牌
type IdToken struct {
	IdToken string      `json:"idToken" validate:"max=36"`
	Type    IdTokenType `json:"type" validate:"required"`
}

// IdTokenInfo 令牌授权信息
type IdTokenInfo struct {
	Status              AuthorizationStatus `json:"status" validate:"required"`
	CacheExpiryDateTime *DateTime           `json:"cacheExpiryDateTime,omitempty"`
}

// StatusInfo 附加状态说明
type StatusInfo struct {
	ReasonCode     string  `json:"reasonCode" validate:"required,max=20"`
	AdditionalInfo *string `json:"additionalInfo,omitempty" validate:"omitempty,max=512"`
}

// SampledValue 2.0.1采样读数，数值为浮点
type SampledValue struct {
	Value     float64        `json:"value"`
	Context   *string        `json:"context,omitempty"`
	Measurand *MeasurandType `json:"measurand,omitempty"`
	UnitOfMeasure *UnitOfMeasure `json:"unitOfMeasure,omitempty"`
}

// UnitOfMeasure 测量单位
type UnitOfMeasure struct {
	Unit       *string `json:"unit,omitempty" validate:"omitempty,max=20"`
	Multiplier *int    `json:"multiplier,omitempty"`
}

// MeterValue 一次采样的读数集合
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

// Transaction 交易标识与状态
type Transaction struct {
	TransactionId string         `json:"transactionId" validate:"required,max=36"`
	ChargingState *ChargingState `json:"chargingState,omitempty"`
	StoppedReason *StoppedReason `json:"stoppedReason,omitempty"`
}

// VariableAttribute 变量属性值
type VariableAttribute struct {
	Type       *AttributeType `json:"type,omitempty"`
	Value      *string        `json:"value,omitempty" validate:"omitempty,max=2500"`
	Mutability *string        `json:"mutability,omitempty"`
	Persistent *bool          `json:"persistent,omitempty"`
	Constant   *bool          `json:"constant,omitempty"`
}

// VariableCharacteristics 变量元特征
type VariableCharacteristics struct {
	DataType           string   `json:"dataType" validate:"required"`
	SupportsMonitoring bool     `json:"supportsMonitoring"`
	Unit               *string  `json:"unit,omitempty" validate:"omitempty,max=16"`
	MinLimit           *float64 `json:"minLimit,omitempty"`
	MaxLimit           *float64 `json:"maxLimit,omitempty"`
	ValuesList         *string  `json:"valuesList,omitempty" validate:"omitempty,max=1000"`
}

// ReportData 报告条目
type ReportData struct {
	Component               ComponentType            `json:"component" validate:"required"`
	Variable                VariableType             `json:"variable" validate:"required"`
	VariableAttribute       []VariableAttribute      `json:"variableAttribute" validate:"required,min=1,max=4,dive"`
	VariableCharacteristics *VariableCharacteristics `json:"variableCharacteristics,omitempty"`
}
