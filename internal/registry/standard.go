package registry

import (
	"strconv"
)

// 标准组件名
const (
	ComponentOCPPCommCtrlr   = "OCPPCommCtrlr"
	ComponentSampledDataCtrlr = "SampledDataCtrlr"
	ComponentAlignedDataCtrlr = "AlignedDataCtrlr"
	ComponentTxCtrlr         = "TxCtrlr"
	ComponentDeviceDataCtrlr = "DeviceDataCtrlr"
	ComponentSecurityCtrlr   = "SecurityCtrlr"
	ComponentChargingStation = "ChargingStation"
)

// 常用变量名
const (
	VariableHeartbeatInterval     = "HeartbeatInterval"
	VariableWebSocketPingInterval = "WebSocketPingInterval"
	VariableMessageTimeout        = "MessageTimeout"
	VariableMessageAttempts       = "MessageAttempts"
	VariableMessageAttemptInterval = "MessageAttemptInterval"
	VariableNetworkConnectionURL  = "NetworkConnectionUrl"
	VariableTxUpdatedInterval     = "TxUpdatedInterval"
	VariableTxUpdatedMeasurands   = "TxUpdatedMeasurands"
	VariableReportingValueSize    = "ReportingValueSize"
	VariableItemsPerMessage       = "ItemsPerMessage"
	VariableIdentity              = "Identity"
	VariableBasicAuthPassword     = "BasicAuthPassword"
	VariableModel                 = "Model"
	VariableVendorName            = "VendorName"
	VariableSerialNumber          = "SerialNumber"
	VariableFirmwareVersion       = "FirmwareVersion"
	VariableAvailabilityState     = "AvailabilityState"
	VariableStopTxOnEVSideDisconnect = "StopTxOnEVSideDisconnect"
	VariableEVConnectionTimeOut   = "EVConnectionTimeOut"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

// Standard 构造OCPP 2.0.1标准设备模型注册表。
// 进程启动时调用一次，返回的注册表在所有站点间共享。
func Standard() *Registry {
	measurandSet := []string{
		"Energy.Active.Import.Register",
		"Power.Active.Import",
		"Current.Import",
		"Voltage",
		"SoC",
	}

	return New([]*Metadata{
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableHeartbeatInterval,
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "300", Unit: "s",
			Positive: true, Min: floatPtr(1), Max: floatPtr(86400),
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableWebSocketPingInterval,
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "60", Unit: "s",
			AllowZero: true, Positive: true, Max: floatPtr(86400),
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableMessageTimeout,
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "30", Unit: "s",
			Positive: true, Min: floatPtr(1), Max: floatPtr(3600),
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableMessageAttempts, Instance: "TransactionEvent",
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "3",
			Positive: true, Min: floatPtr(1), Max: floatPtr(10),
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableMessageAttemptInterval, Instance: "TransactionEvent",
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "10", Unit: "s",
			Positive: true, Min: floatPtr(1), Max: floatPtr(600),
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableNetworkConnectionURL,
			DataType: DataTypeString, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			IsURL: true, URLSchemes: []string{"ws", "wss"}, MaxLength: intPtr(512),
		},
		{
			Component: ComponentSampledDataCtrlr, Variable: VariableTxUpdatedInterval,
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "60", Unit: "s",
			AllowZero: true, Positive: true, Max: floatPtr(86400),
		},
		{
			Component: ComponentSampledDataCtrlr, Variable: VariableTxUpdatedMeasurands,
			DataType: DataTypeMemberList, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "Energy.Active.Import.Register",
			Enumeration:  measurandSet,
		},
		{
			Component: ComponentAlignedDataCtrlr, Variable: "Interval",
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "900", Unit: "s",
			AllowZero: true, Positive: true, Max: floatPtr(86400),
		},
		{
			Component: ComponentAlignedDataCtrlr, Variable: "Measurands",
			DataType: DataTypeMemberList, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "Energy.Active.Import.Register",
			Enumeration:  measurandSet,
		},
		{
			Component: ComponentTxCtrlr, Variable: VariableStopTxOnEVSideDisconnect,
			DataType: DataTypeBoolean, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "true",
		},
		{
			Component: ComponentTxCtrlr, Variable: VariableEVConnectionTimeOut,
			DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
			DefaultValue: "120", Unit: "s",
			Positive: true, Min: floatPtr(1), Max: floatPtr(3600),
		},
		{
			Component: ComponentDeviceDataCtrlr, Variable: VariableReportingValueSize,
			DataType: DataTypeInteger, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			DefaultValue: "2500",
			Positive: true, Min: floatPtr(1), Max: floatPtr(2500),
		},
		{
			Component: ComponentDeviceDataCtrlr, Variable: VariableItemsPerMessage, Instance: "GetReport",
			DataType: DataTypeInteger, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			DefaultValue: "100",
			Positive: true, Min: floatPtr(1), Max: floatPtr(100),
		},
		{
			Component: ComponentSecurityCtrlr, Variable: VariableIdentity,
			DataType: DataTypeString, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			MaxLength: intPtr(48),
			Resolve:   func(info StationInfo) string { return info.StationID },
		},
		{
			Component: ComponentSecurityCtrlr, Variable: VariableBasicAuthPassword,
			DataType: DataTypeString, Mutability: MutabilityWriteOnly, Persistence: PersistencePersistent,
			MaxLength: intPtr(40),
		},
		{
			Component: ComponentChargingStation, Variable: VariableModel,
			DataType: DataTypeString, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			MaxLength: intPtr(20),
			Resolve:   func(info StationInfo) string { return info.Model },
		},
		{
			Component: ComponentChargingStation, Variable: VariableVendorName,
			DataType: DataTypeString, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			MaxLength: intPtr(50),
			Resolve:   func(info StationInfo) string { return info.Vendor },
		},
		{
			Component: ComponentChargingStation, Variable: VariableSerialNumber,
			DataType: DataTypeString, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			MaxLength: intPtr(25),
			Resolve:   func(info StationInfo) string { return info.SerialNumber },
		},
		{
			Component: ComponentChargingStation, Variable: VariableFirmwareVersion,
			DataType: DataTypeString, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			MaxLength: intPtr(50),
			Resolve:   func(info StationInfo) string { return info.FirmwareVersion },
		},
		{
			Component: ComponentChargingStation, Variable: VariableAvailabilityState,
			DataType: DataTypeOptionList, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			DefaultValue: "Available",
			Enumeration:  []string{"Available", "Occupied", "Reserved", "Unavailable", "Faulted"},
		},
		{
			Component: ComponentChargingStation, Variable: "SupplyPhases",
			DataType: DataTypeInteger, Mutability: MutabilityReadOnly, Persistence: PersistenceVolatile,
			DefaultValue: "3",
			Positive: true, Min: floatPtr(1), Max: floatPtr(3),
			PostProcess: func(v string) string {
				// 上报时去掉可能的前导零
				if n, err := strconv.Atoi(v); err == nil {
					return strconv.Itoa(n)
				}
				return v
			},
		},
	})
}
