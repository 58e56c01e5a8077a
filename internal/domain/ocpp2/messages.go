package ocpp2

// ChargingStationType 启动通知中的站点描述
type ChargingStationType struct {
	Model           string  `json:"model" validate:"required,max=20"`
	VendorName      string  `json:"vendorName" validate:"required,max=50"`
	SerialNumber    *string `json:"serialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
}

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	Reason          BootReason          `json:"reason" validate:"required"`
	ChargingStation ChargingStationType `json:"chargingStation" validate:"required"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"min=0"`
	Status      RegistrationStatus `json:"status" validate:"required"`
	StatusInfo  *StatusInfo        `json:"statusInfo,omitempty"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

// StatusNotificationRequest 连接器状态通知请求
type StatusNotificationRequest struct {
	Timestamp       DateTime        `json:"timestamp" validate:"required"`
	ConnectorStatus ConnectorStatus `json:"connectorStatus" validate:"required"`
	EvseId          int             `json:"evseId" validate:"min=0"`
	ConnectorId     int             `json:"connectorId" validate:"min=0"`
}

// StatusNotificationResponse 连接器状态通知响应
type StatusNotificationResponse struct{}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdToken IdToken `json:"idToken" validate:"required"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTokenInfo IdTokenInfo `json:"idTokenInfo" validate:"required"`
}

// TransactionEventRequest 交易事件请求
type TransactionEventRequest struct {
	EventType       TransactionEventType `json:"eventType" validate:"required"`
	Timestamp       DateTime             `json:"timestamp" validate:"required"`
	TriggerReason   TriggerReason        `json:"triggerReason" validate:"required"`
	SeqNo           int                  `json:"seqNo" validate:"min=0"`
	TransactionInfo Transaction          `json:"transactionInfo" validate:"required"`
	IdToken         *IdToken             `json:"idToken,omitempty"`
	Evse            *EVSEType            `json:"evse,omitempty"`
	MeterValue      []MeterValue         `json:"meterValue,omitempty" validate:"omitempty,dive"`
}

// TransactionEventResponse 交易事件响应
type TransactionEventResponse struct {
	IdTokenInfo *IdTokenInfo `json:"idTokenInfo,omitempty"`
}

// GetVariableData 单个变量查询条目
type GetVariableData struct {
	Component     ComponentType  `json:"component" validate:"required"`
	Variable      VariableType   `json:"variable" validate:"required"`
	AttributeType *AttributeType `json:"attributeType,omitempty"`
}

// GetVariableResult 单个变量查询结果
type GetVariableResult struct {
	AttributeStatus GetVariableStatus `json:"attributeStatus" validate:"required"`
	Component       ComponentType     `json:"component" validate:"required"`
	Variable        VariableType      `json:"variable" validate:"required"`
	AttributeType   *AttributeType    `json:"attributeType,omitempty"`
	AttributeValue  *string           `json:"attributeValue,omitempty" validate:"omitempty,max=2500"`
	AttributeStatusInfo *StatusInfo   `json:"attributeStatusInfo,omitempty"`
}

// GetVariablesRequest 变量查询请求
type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1,dive"`
}

// GetVariablesResponse 变量查询响应
type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult" validate:"required,min=1,dive"`
}

// SetVariableData 单个变量设置条目
type SetVariableData struct {
	Component      ComponentType  `json:"component" validate:"required"`
	Variable       VariableType   `json:"variable" validate:"required"`
	AttributeValue string         `json:"attributeValue" validate:"max=2500"`
	AttributeType  *AttributeType `json:"attributeType,omitempty"`
}

// SetVariableResult 单个变量设置结果
type SetVariableResult struct {
	AttributeStatus SetVariableStatus `json:"attributeStatus" validate:"required"`
	Component       ComponentType     `json:"component" validate:"required"`
	Variable        VariableType      `json:"variable" validate:"required"`
	AttributeType   *AttributeType    `json:"attributeType,omitempty"`
	AttributeStatusInfo *StatusInfo   `json:"attributeStatusInfo,omitempty"`
}

// SetVariablesRequest 变量设置请求
type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1,dive"`
}

// SetVariablesResponse 变量设置响应
type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult" validate:"required,min=1,dive"`
}

// GetBaseReportRequest 基础报告请求
type GetBaseReportRequest struct {
	RequestId  int        `json:"requestId"`
	ReportBase ReportBase `json:"reportBase" validate:"required"`
}

// GetBaseReportResponse 基础报告响应
type GetBaseReportResponse struct {
	Status     GenericDeviceModelStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo              `json:"statusInfo,omitempty"`
}

// NotifyReportRequest 报告分片上报请求
type NotifyReportRequest struct {
	RequestId   int          `json:"requestId"`
	GeneratedAt DateTime     `json:"generatedAt" validate:"required"`
	SeqNo       int          `json:"seqNo" validate:"min=0"`
	Tbc         bool         `json:"tbc"`
	ReportData  []ReportData `json:"reportData,omitempty" validate:"omitempty,max=100,dive"`
}

// NotifyReportResponse 报告分片上报响应
type NotifyReportResponse struct{}

// ResetRequest 重置请求
type ResetRequest struct {
	Type   ResetType `json:"type" validate:"required"`
	EvseId *int      `json:"evseId,omitempty" validate:"omitempty,min=1"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status     ResetStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

// ClearCacheRequest 缓存清理请求
type ClearCacheRequest struct{}

// ClearCacheResponse 缓存清理响应
type ClearCacheResponse struct {
	Status ClearCacheStatus `json:"status" validate:"required"`
}

// RequestStartTransactionRequest 远程启动交易请求
type RequestStartTransactionRequest struct {
	EvseId          *int    `json:"evseId,omitempty" validate:"omitempty,min=1"`
	RemoteStartId   int     `json:"remoteStartId"`
	IdToken         IdToken `json:"idToken" validate:"required"`
}

// RequestStartTransactionResponse 远程启动交易响应
type RequestStartTransactionResponse struct {
	Status        RequestStartStopStatus `json:"status" validate:"required"`
	TransactionId *string                `json:"transactionId,omitempty" validate:"omitempty,max=36"`
}

// RequestStopTransactionRequest 远程停止交易请求
type RequestStopTransactionRequest struct {
	TransactionId string `json:"transactionId" validate:"required,max=36"`
}

// RequestStopTransactionResponse 远程停止交易响应
type RequestStopTransactionResponse struct {
	Status RequestStartStopStatus `json:"status" validate:"required"`
}

// UnlockConnectorRequest 解锁连接器请求
type UnlockConnectorRequest struct {
	EvseId      int `json:"evseId" validate:"min=1"`
	ConnectorId int `json:"connectorId" validate:"min=1"`
}

// UnlockConnectorResponse 解锁连接器响应
type UnlockConnectorResponse struct {
	Status UnlockStatus `json:"status" validate:"required"`
}

// DataTransferRequest 数据传输请求
type DataTransferRequest struct {
	VendorId  string  `json:"vendorId" validate:"required,max=255"`
	MessageId *string `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      *string `json:"data,omitempty"`
}

// DataTransferResponse 数据传输响应
type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" validate:"required"`
	Data   *string            `json:"data,omitempty"`
}
