package station

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Version 站点使用的OCPP协议版本
type Version string

const (
	// Version16 OCPP 1.6 JSON
	Version16 Version = "1.6"
	// Version201 OCPP 2.0.1 JSON
	Version201 Version = "2.0.1"
)

// Subprotocol WebSocket子协议名
func (v Version) Subprotocol() string {
	switch v {
	case Version201:
		return "ocpp2.0.1"
	default:
		return "ocpp1.6"
	}
}

// ConnectorTemplate 模板中单个连接器的描述
type ConnectorTemplate struct {
	Type         string  `json:"type,omitempty"`
	MaxPowerKW   float64 `json:"maxPowerKW,omitempty"`
	Availability string  `json:"availability,omitempty"`
}

// EvseTemplate 模板中单个EVSE的描述，连接器归属其下
type EvseTemplate struct {
	Connectors map[string]ConnectorTemplate `json:"Connectors"`
}

// ATGConfig 自动交易发生器配置
type ATGConfig struct {
	Enable                           bool    `json:"enable"`
	MinDuration                      int     `json:"minDuration"`
	MaxDuration                      int     `json:"maxDuration"`
	MinDelayBetweenTwoTransactions   int     `json:"minDelayBetweenTwoTransactions"`
	MaxDelayBetweenTwoTransactions   int     `json:"maxDelayBetweenTwoTransactions"`
	ProbabilityOfStart               float64 `json:"probabilityOfStart"`
	StopAfterHours                   float64 `json:"stopAfterHours"`
	StopAbsoluteDuration             bool    `json:"stopAbsoluteDuration"`
	RequireAuthorize                 bool    `json:"requireAuthorize"`
	IdTagDistribution                string  `json:"idTagDistribution"` // random, round-robin, connector-affinity
}

// DefaultATGConfig 默认ATG配置
func DefaultATGConfig() ATGConfig {
	return ATGConfig{
		Enable:                         false,
		MinDuration:                    60,
		MaxDuration:                    120,
		MinDelayBetweenTwoTransactions: 15,
		MaxDelayBetweenTwoTransactions: 30,
		ProbabilityOfStart:             1.0,
		StopAfterHours:                 0.25,
		IdTagDistribution:              "round-robin",
	}
}

// ConfigurationEntry 模板预置的OCPP 1.6配置键
type ConfigurationEntry struct {
	Key      string `json:"key"`
	Value    string `json:"value"`
	Readonly bool   `json:"readonly"`
	Reboot   bool   `json:"reboot,omitempty"`
	Visible  *bool  `json:"visible,omitempty"`
}

// Template 站点模板，配置加载器产出的JSON文档
type Template struct {
	BaseName          string   `json:"baseName"`
	ChargePointModel  string   `json:"chargePointModel"`
	ChargePointVendor string   `json:"chargePointVendor"`
	FirmwareVersion   string   `json:"firmwareVersion,omitempty"`
	SerialNumber      string   `json:"serialNumber,omitempty"`
	OcppVersion       Version  `json:"ocppVersion"`
	SupervisionURLs   []string `json:"supervisionUrls"`

	NumberOfConnectors int                          `json:"numberOfConnectors,omitempty"`
	Connectors         map[string]ConnectorTemplate `json:"Connectors,omitempty"`
	Evses              map[string]EvseTemplate      `json:"Evses,omitempty"`

	Configuration                 []ConfigurationEntry `json:"Configuration,omitempty"`
	AutomaticTransactionGenerator ATGConfig            `json:"AutomaticTransactionGenerator"`

	AutoStart            *bool `json:"autoStart,omitempty"`
	AutoRegister         *bool `json:"autoRegister,omitempty"`
	OcppStrictCompliance *bool `json:"ocppStrictCompliance,omitempty"`
	RemoteAuthorization  *bool `json:"remoteAuthorization,omitempty"`
	StationInfoPersistence *bool `json:"stationInfoPersistence,omitempty"`
	StopTransactionsOnStopped *bool `json:"stopTransactionsOnStopped,omitempty"`

	// 连接与重试参数
	AutoReconnectDelaySeconds int     `json:"autoReconnectDelay,omitempty"` // 0时使用指数退避
	AutoReconnectMaxRetries   int     `json:"autoReconnectMaxRetries,omitempty"` // -1为不限
	BootRetryMaxAttempts      int     `json:"bootRetryMaxAttempts,omitempty"`
	WebSocketPingInterval     int     `json:"webSocketPingInterval,omitempty"`
	ChargePowerKW             float64 `json:"chargePowerKW,omitempty"`
}

// LoadTemplate 从文件加载站点模板并校验必填字段
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read station template %s: %w", path, err)
	}
	return ParseTemplate(data)
}

// ParseTemplate 解析模板文档
func ParseTemplate(data []byte) (*Template, error) {
	tpl := &Template{AutomaticTransactionGenerator: DefaultATGConfig()}
	if err := json.Unmarshal(data, tpl); err != nil {
		return nil, fmt.Errorf("failed to parse station template: %w", err)
	}
	if err := tpl.Validate(); err != nil {
		return nil, err
	}
	tpl.applyDefaults()
	return tpl, nil
}

// Validate 校验模板必填字段，缺失属于致命配置错误
func (t *Template) Validate() error {
	if t.BaseName == "" {
		return fmt.Errorf("station template: baseName is required")
	}
	if t.ChargePointModel == "" || t.ChargePointVendor == "" {
		return fmt.Errorf("station template %s: chargePointModel and chargePointVendor are required", t.BaseName)
	}
	if len(t.SupervisionURLs) == 0 {
		return fmt.Errorf("station template %s: at least one supervision URL is required", t.BaseName)
	}
	switch t.OcppVersion {
	case Version16, Version201:
	case "":
		return fmt.Errorf("station template %s: ocppVersion is required", t.BaseName)
	default:
		return fmt.Errorf("station template %s: unsupported ocppVersion %s", t.BaseName, t.OcppVersion)
	}
	if p := t.AutomaticTransactionGenerator.ProbabilityOfStart; p < 0 || p > 1 {
		return fmt.Errorf("station template %s: probabilityOfStart must be within [0,1]", t.BaseName)
	}
	return nil
}

func (t *Template) applyDefaults() {
	if t.NumberOfConnectors == 0 && len(t.Connectors) == 0 && len(t.Evses) == 0 {
		t.NumberOfConnectors = 1
	}
	if t.BootRetryMaxAttempts == 0 {
		t.BootRetryMaxAttempts = 10
	}
	if t.AutoReconnectMaxRetries == 0 {
		t.AutoReconnectMaxRetries = -1
	}
	if t.ChargePowerKW == 0 {
		t.ChargePowerKW = 22
	}
	if t.FirmwareVersion == "" {
		t.FirmwareVersion = "1.0.0"
	}
}

// HashID 站点ID与模板厂商、型号、协议版本的稳定哈希，作为站点的短标识出现在日志与快照中
func (t *Template) HashID(stationID string) string {
	payload, _ := json.Marshal(struct {
		StationID string
		Vendor    string
		Model     string
		Version   Version
	}{stationID, t.ChargePointVendor, t.ChargePointModel, t.OcppVersion})
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])[:16]
}

// boolOr 读取可选布尔字段
func boolOr(v *bool, fallback bool) bool {
	if v == nil {
		return fallback
	}
	return *v
}

// IsStrict OCPP严格合规模式
func (t *Template) IsStrict() bool {
	return boolOr(t.OcppStrictCompliance, true)
}

// PersistStationInfo 是否持久化站点信息
func (t *Template) PersistStationInfo() bool {
	return boolOr(t.StationInfoPersistence, true)
}

// StopTransactionsOnStop 停机时是否主动结束交易
func (t *Template) StopTransactionsOnStop() bool {
	return boolOr(t.StopTransactionsOnStopped, true)
}

// ReconnectDelay 固定重连延迟，0表示使用指数退避
func (t *Template) ReconnectDelay() time.Duration {
	return time.Duration(t.AutoReconnectDelaySeconds) * time.Second
}
