package station

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// StatusRecord 一次连接器状态迁移
type StatusRecord struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Connector 单个连接器的运行状态。
// 站点与连接器之间按ID建立归属关系，连接器不持有站点指针。
type Connector struct {
	ID     int
	EvseID int // 0表示站点未启用EVSE层

	mu sync.Mutex

	availability ocpp16.AvailabilityType
	status       string
	history      []StatusRecord

	transactionStarted bool
	transactionID      int
	transactionRef     string // 2.0.1的字符串交易标识
	txSeqNo            int
	idTag              string

	energyWh int64
	powerKW  float64

	profiles []ocpp16.ChargingProfile
}

// newConnector 创建连接器
func newConnector(id, evseID int, powerKW float64, availability ocpp16.AvailabilityType) *Connector {
	if availability == "" {
		availability = ocpp16.AvailabilityTypeOperative
	}
	return &Connector{
		ID:           id,
		EvseID:       evseID,
		availability: availability,
		status:       string(ocpp16.ChargePointStatusAvailable),
		powerKW:      powerKW,
	}
}

// Status 当前状态
func (c *Connector) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// SetStatus 迁移状态并记录历史。
// 严格模式下拒绝未经过中间态的Available→Charging跳变。
func (c *Connector) SetStatus(status string, strict bool) (changed bool, previous string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	previous = c.status
	if previous == status {
		return false, previous, nil
	}
	if strict && previous == string(ocpp16.ChargePointStatusAvailable) &&
		status == string(ocpp16.ChargePointStatusCharging) {
		return false, previous, fmt.Errorf("illegal status transition %s -> %s", previous, status)
	}

	c.status = status
	c.history = append(c.history, StatusRecord{Status: status, Timestamp: time.Now().UTC()})
	return true, previous, nil
}

// StatusHistory 按迁移顺序返回历史
func (c *Connector) StatusHistory() []StatusRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]StatusRecord, len(c.history))
	copy(out, c.history)
	return out
}

// Availability 当前可用性
func (c *Connector) Availability() ocpp16.AvailabilityType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availability
}

// SetAvailability 设置可用性
func (c *Connector) SetAvailability(availability ocpp16.AvailabilityType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.availability = availability
}

// IsAvailable 可被交易使用：Operative且状态为Available
func (c *Connector) IsAvailable() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availability == ocpp16.AvailabilityTypeOperative &&
		c.status == string(ocpp16.ChargePointStatusAvailable) &&
		!c.transactionStarted
}

// BeginTransaction 在连接器上登记交易。
// 已有交易时返回ErrTransactionRunning，调用方不应吞掉该错误。
func (c *Connector) BeginTransaction(transactionID int, transactionRef, idTag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transactionStarted {
		return fmt.Errorf("connector %d: %w", c.ID, ErrTransactionRunning)
	}
	c.transactionStarted = true
	c.transactionID = transactionID
	c.transactionRef = transactionRef
	c.idTag = idTag
	c.txSeqNo = 0
	return nil
}

// EndTransaction 结束交易并返回交易信息
func (c *Connector) EndTransaction() (transactionID int, transactionRef string, meterWh int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.transactionStarted {
		return 0, "", 0, fmt.Errorf("connector %d: %w", c.ID, ErrNoTransaction)
	}
	transactionID = c.transactionID
	transactionRef = c.transactionRef
	meterWh = c.energyWh
	c.transactionStarted = false
	c.transactionID = 0
	c.transactionRef = ""
	c.idTag = ""
	return transactionID, transactionRef, meterWh, nil
}

// HasTransaction 是否有进行中的交易
func (c *Connector) HasTransaction() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transactionStarted
}

// Transaction 当前交易标识，transactionStarted与transactionID非零同真同假
func (c *Connector) Transaction() (transactionID int, transactionRef string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.transactionStarted {
		return 0, "", false
	}
	return c.transactionID, c.transactionRef, true
}

// IdTag 当前交易的idTag
func (c *Connector) IdTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idTag
}

// EnergyWh 累计有功电能
func (c *Connector) EnergyWh() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.energyWh
}

// AccumulateEnergy 按充电功率推进电能寄存器
func (c *Connector) AccumulateEnergy(elapsed time.Duration) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transactionStarted {
		c.energyWh += int64(c.powerKW * 1000 * elapsed.Hours())
	}
	return c.energyWh
}

// PowerKW 连接器额定功率
func (c *Connector) PowerKW() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.powerKW
}

// NextTxSeqNo 2.0.1交易事件的递增序号
func (c *Connector) NextTxSeqNo() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	seq := c.txSeqNo
	c.txSeqNo++
	return seq
}

// AddProfile 登记充电配置
func (c *Connector) AddProfile(profile ocpp16.ChargingProfile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, existing := range c.profiles {
		if existing.ChargingProfileId == profile.ChargingProfileId {
			c.profiles[i] = profile
			return
		}
	}
	c.profiles = append(c.profiles, profile)
}

// ClearProfiles 清除充电配置，id为nil时清除全部，返回清除数量
func (c *Connector) ClearProfiles(id *int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if id == nil {
		n := len(c.profiles)
		c.profiles = nil
		return n
	}
	kept := c.profiles[:0]
	removed := 0
	for _, profile := range c.profiles {
		if profile.ChargingProfileId == *id {
			removed++
			continue
		}
		kept = append(kept, profile)
	}
	c.profiles = kept
	return removed
}

// Profiles 当前登记的充电配置
func (c *Connector) Profiles() []ocpp16.ChargingProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ocpp16.ChargingProfile, len(c.profiles))
	copy(out, c.profiles)
	return out
}

// EVSE 一组连接器的归属单元
type EVSE struct {
	ID         int
	Connectors []*Connector
}

// HasTransaction EVSE下任一连接器有交易
func (e *EVSE) HasTransaction() bool {
	for _, connector := range e.Connectors {
		if connector.HasTransaction() {
			return true
		}
	}
	return false
}

// ConnectorModel 站点的连接器/EVSE模型。
// 模板声明了Evses时连接器归属EVSE，否则使用平铺映射。
type ConnectorModel struct {
	connectors map[int]*Connector
	evses      []*EVSE
	order      []int
}

// newConnectorModel 按模板构建连接器模型
func newConnectorModel(tpl *Template) (*ConnectorModel, error) {
	model := &ConnectorModel{connectors: make(map[int]*Connector)}

	addConnector := func(id, evseID int, ct ConnectorTemplate) (*Connector, error) {
		if id < 1 {
			return nil, fmt.Errorf("connector id %d is reserved, ids start at 1", id)
		}
		if _, dup := model.connectors[id]; dup {
			return nil, fmt.Errorf("duplicate connector id %d", id)
		}
		power := ct.MaxPowerKW
		if power == 0 {
			power = tpl.ChargePowerKW
		}
		connector := newConnector(id, evseID, power, ocpp16.AvailabilityType(ct.Availability))
		model.connectors[id] = connector
		model.order = append(model.order, id)
		return connector, nil
	}

	switch {
	case len(tpl.Evses) > 0:
		for _, evseID := range sortedIntKeys(tpl.Evses) {
			if evseID < 1 {
				// EVSE 0 描述站点整体，不携带连接器
				continue
			}
			et := tpl.Evses[strconv.Itoa(evseID)]
			evse := &EVSE{ID: evseID}
			for _, connectorID := range sortedIntKeys(et.Connectors) {
				connector, err := addConnector(connectorID, evseID, et.Connectors[strconv.Itoa(connectorID)])
				if err != nil {
					return nil, err
				}
				evse.Connectors = append(evse.Connectors, connector)
			}
			model.evses = append(model.evses, evse)
		}

	case len(tpl.Connectors) > 0:
		for _, connectorID := range sortedIntKeys(tpl.Connectors) {
			if connectorID == 0 {
				// id 0 预留给站点整体
				continue
			}
			if _, err := addConnector(connectorID, 0, tpl.Connectors[strconv.Itoa(connectorID)]); err != nil {
				return nil, err
			}
		}

	default:
		for id := 1; id <= tpl.NumberOfConnectors; id++ {
			if _, err := addConnector(id, 0, ConnectorTemplate{}); err != nil {
				return nil, err
			}
		}
	}

	if len(model.connectors) == 0 {
		return nil, fmt.Errorf("station template %s declares no connectors", tpl.BaseName)
	}
	return model, nil
}

// sortedIntKeys 收集map的整数键并排序；无法解析的键被忽略
func sortedIntKeys[T any](m map[string]T) []int {
	out := make([]int, 0, len(m))
	for key := range m {
		if id, err := strconv.Atoi(key); err == nil {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// Get 按ID查找连接器
func (m *ConnectorModel) Get(id int) (*Connector, bool) {
	connector, ok := m.connectors[id]
	return connector, ok
}

// All 按构建顺序返回全部连接器：平铺布局按ID升序；EVSE布局按EVSE编号升序，同一EVSE内按连接器ID升序
func (m *ConnectorModel) All() []*Connector {
	out := make([]*Connector, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.connectors[id])
	}
	return out
}

// Len 连接器数量
func (m *ConnectorModel) Len() int {
	return len(m.connectors)
}

// HasEvses 是否启用EVSE层
func (m *ConnectorModel) HasEvses() bool {
	return len(m.evses) > 0
}

// Evses 全部EVSE
func (m *ConnectorModel) Evses() []*EVSE {
	return m.evses
}

// Evse 按ID查找EVSE
func (m *ConnectorModel) Evse(id int) (*EVSE, bool) {
	for _, evse := range m.evses {
		if evse.ID == id {
			return evse, true
		}
	}
	return nil, false
}

// HasTransaction 任一连接器有进行中的交易
func (m *ConnectorModel) HasTransaction() bool {
	for _, connector := range m.connectors {
		if connector.HasTransaction() {
			return true
		}
	}
	return false
}

// FindByTransactionID 按1.6交易ID查找连接器
func (m *ConnectorModel) FindByTransactionID(transactionID int) (*Connector, bool) {
	for _, connector := range m.All() {
		if id, _, ok := connector.Transaction(); ok && id == transactionID {
			return connector, true
		}
	}
	return nil, false
}

// FindByTransactionRef 按2.0.1交易标识查找连接器
func (m *ConnectorModel) FindByTransactionRef(transactionRef string) (*Connector, bool) {
	for _, connector := range m.All() {
		if _, ref, ok := connector.Transaction(); ok && ref == transactionRef {
			return connector, true
		}
	}
	return nil, false
}
