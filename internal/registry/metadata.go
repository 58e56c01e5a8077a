package registry

import (
	"strings"
)

// DataType 变量数据类型
type DataType string

const (
	DataTypeString       DataType = "string"
	DataTypeInteger      DataType = "integer"
	DataTypeDecimal      DataType = "decimal"
	DataTypeBoolean      DataType = "boolean"
	DataTypeDateTime     DataType = "dateTime"
	DataTypeOptionList   DataType = "OptionList"
	DataTypeSequenceList DataType = "SequenceList"
	DataTypeMemberList   DataType = "MemberList"
)

// Mutability 变量可变性
type Mutability string

const (
	MutabilityReadOnly  Mutability = "ReadOnly"
	MutabilityReadWrite Mutability = "ReadWrite"
	MutabilityWriteOnly Mutability = "WriteOnly"
)

// Persistence 变量持久性，Persistent写入才进入站点快照
type Persistence string

const (
	PersistencePersistent Persistence = "Persistent"
	PersistenceVolatile   Persistence = "Volatile"
)

// StationInfo 动态解析回调可见的站点信息
type StationInfo struct {
	StationID       string
	Vendor          string
	Model           string
	FirmwareVersion string
	SerialNumber    string
	EvseCount       int
	ConnectorCount  int
}

// Metadata 单个组件变量的静态元数据，注册表构造后不可变
type Metadata struct {
	Component string
	Instance  string
	Variable  string

	DataType    DataType
	Mutability  Mutability
	Persistence Persistence

	DefaultValue string
	Unit         string

	// 数值约束
	Min       *float64
	Max       *float64
	Positive  bool
	AllowZero bool

	// 字符串/列表约束
	Enumeration []string
	MaxLength   *int
	IsURL       bool
	URLSchemes  []string

	// SetVariables写入后需要重启才生效
	RebootRequired bool

	// 动态解析回调，优先于DefaultValue
	Resolve func(info StationInfo) string
	// 读取路径上的后处理回调
	PostProcess func(value string) string
}

// Key 注册表键
type Key struct {
	Component string
	Variable  string
	Instance  string
}

// String 标准化键表示，用于覆盖层与快照
func (k Key) String() string {
	if k.Instance == "" {
		return k.Component + "/" + k.Variable
	}
	return k.Component + "/" + k.Variable + "#" + k.Instance
}

// KeyOf 取元数据条目的键
func (m *Metadata) KeyOf() Key {
	return Key{Component: m.Component, Variable: m.Variable, Instance: m.Instance}
}

// IsReadOnly 判断只读
func (m *Metadata) IsReadOnly() bool {
	return m.Mutability == MutabilityReadOnly
}

// IsWriteOnly 判断只写
func (m *Metadata) IsWriteOnly() bool {
	return m.Mutability == MutabilityWriteOnly
}

// IsPersistent 判断持久
func (m *Metadata) IsPersistent() bool {
	return m.Persistence == PersistencePersistent
}

// ApplyPostProcess 应用后处理回调
func (m *Metadata) ApplyPostProcess(value string) string {
	if m.PostProcess == nil {
		return value
	}
	return m.PostProcess(value)
}

// Registry 变量注册表，进程启动时构造一次并在所有站点间共享
type Registry struct {
	entries map[Key]*Metadata
	folded  map[Key]*Metadata // 小写键索引，用于大小写不敏感回退
	ordered []*Metadata
}

// New 从元数据列表构造注册表
func New(entries []*Metadata) *Registry {
	r := &Registry{
		entries: make(map[Key]*Metadata, len(entries)),
		folded:  make(map[Key]*Metadata, len(entries)),
	}
	for _, e := range entries {
		key := e.KeyOf()
		if _, exists := r.entries[key]; exists {
			continue
		}
		r.entries[key] = e
		r.folded[foldKey(key)] = e
		r.ordered = append(r.ordered, e)
	}
	return r
}

func foldKey(k Key) Key {
	return Key{
		Component: strings.ToLower(k.Component),
		Variable:  strings.ToLower(k.Variable),
		Instance:  strings.ToLower(k.Instance),
	}
}

// Lookup 查找变量元数据，精确匹配失败后回退到大小写不敏感匹配
func (r *Registry) Lookup(component, variable, instance string) (*Metadata, bool) {
	key := Key{Component: component, Variable: variable, Instance: instance}
	if m, ok := r.entries[key]; ok {
		return m, true
	}
	if m, ok := r.folded[foldKey(key)]; ok {
		return m, true
	}
	return nil, false
}

// HasComponent 判断组件是否存在任意变量
func (r *Registry) HasComponent(component string) bool {
	folded := strings.ToLower(component)
	for key := range r.folded {
		if key.Component == folded {
			return true
		}
	}
	return false
}

// All 按注册顺序遍历全部条目
func (r *Registry) All() []*Metadata {
	out := make([]*Metadata, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len 条目数量
func (r *Registry) Len() int {
	return len(r.ordered)
}

// ResolveValue 解析变量当前值：覆盖层 > 动态解析回调 > 默认值
func (r *Registry) ResolveValue(info StationInfo, overlay *Overlay, m *Metadata) string {
	if overlay != nil {
		if v, ok := overlay.Get(m.KeyOf()); ok {
			return v
		}
	}
	if m.Resolve != nil {
		return m.Resolve(info)
	}
	return m.DefaultValue
}

// EnforceReportingValueSize 按ReportingValueSize截断上报值，limit<=0时不截断
func EnforceReportingValueSize(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit]
}
