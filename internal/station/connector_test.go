package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-point-simulator/internal/domain/ocpp16"
)

// 交易唯一性：连接器上已有交易时再次启动属编程错误
func TestConnectorTransactionUniqueness(t *testing.T) {
	connector := newConnector(1, 0, 22, "")

	require.NoError(t, connector.BeginTransaction(10, "", "AA000001"))
	assert.True(t, connector.HasTransaction())

	err := connector.BeginTransaction(11, "", "AA000002")
	assert.ErrorIs(t, err, ErrTransactionRunning)

	// transactionStarted与transactionId非零同真同假
	transactionID, _, ok := connector.Transaction()
	assert.True(t, ok)
	assert.Equal(t, 10, transactionID)

	_, _, _, err = connector.EndTransaction()
	require.NoError(t, err)
	assert.False(t, connector.HasTransaction())
	_, _, ok = connector.Transaction()
	assert.False(t, ok)

	_, _, _, err = connector.EndTransaction()
	assert.ErrorIs(t, err, ErrNoTransaction)
}

// 严格模式拒绝未经过中间态的Available到Charging跳变
func TestConnectorStatusTransitionStrict(t *testing.T) {
	connector := newConnector(1, 0, 22, "")

	_, _, err := connector.SetStatus(string(ocpp16.ChargePointStatusCharging), true)
	assert.Error(t, err)

	changed, previous, err := connector.SetStatus(string(ocpp16.ChargePointStatusPreparing), true)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, string(ocpp16.ChargePointStatusAvailable), previous)

	changed, _, err = connector.SetStatus(string(ocpp16.ChargePointStatusCharging), true)
	require.NoError(t, err)
	assert.True(t, changed)
}

func TestConnectorStatusTransitionRelaxed(t *testing.T) {
	connector := newConnector(1, 0, 22, "")

	// 非严格模式允许直接跳变
	changed, _, err := connector.SetStatus(string(ocpp16.ChargePointStatusCharging), false)
	require.NoError(t, err)
	assert.True(t, changed)

	// 状态历史按迁移顺序记录
	history := connector.StatusHistory()
	require.Len(t, history, 1)
	assert.Equal(t, string(ocpp16.ChargePointStatusCharging), history[0].Status)
}

func TestConnectorStatusNoChangeNoHistory(t *testing.T) {
	connector := newConnector(1, 0, 22, "")
	changed, _, err := connector.SetStatus(string(ocpp16.ChargePointStatusAvailable), true)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Empty(t, connector.StatusHistory())
}

func TestConnectorEnergyAccumulation(t *testing.T) {
	connector := newConnector(1, 0, 22, "")
	require.NoError(t, connector.BeginTransaction(1, "", "AA000001"))

	// 22kW充一小时约22000Wh
	energy := connector.AccumulateEnergy(time.Hour)
	assert.InDelta(t, 22000, float64(energy), 1)

	// 无交易时不累计
	connector.EndTransaction()
	after := connector.AccumulateEnergy(time.Hour)
	assert.Equal(t, energy, after)
}

func TestConnectorAvailability(t *testing.T) {
	connector := newConnector(1, 0, 22, "")
	assert.True(t, connector.IsAvailable())

	connector.SetAvailability(ocpp16.AvailabilityTypeInoperative)
	assert.False(t, connector.IsAvailable())

	connector.SetAvailability(ocpp16.AvailabilityTypeOperative)
	require.NoError(t, connector.BeginTransaction(1, "", "AA000001"))
	assert.False(t, connector.IsAvailable())
}

func TestConnectorProfiles(t *testing.T) {
	connector := newConnector(1, 0, 22, "")
	connector.AddProfile(ocpp16.ChargingProfile{ChargingProfileId: 1})
	connector.AddProfile(ocpp16.ChargingProfile{ChargingProfileId: 2})
	connector.AddProfile(ocpp16.ChargingProfile{ChargingProfileId: 1, StackLevel: 5})

	profiles := connector.Profiles()
	require.Len(t, profiles, 2)
	assert.Equal(t, 5, profiles[0].StackLevel)

	id := 1
	assert.Equal(t, 1, connector.ClearProfiles(&id))
	assert.Equal(t, 1, connector.ClearProfiles(nil))
	assert.Empty(t, connector.Profiles())
}

func TestConnectorModelFlat(t *testing.T) {
	tpl := testTemplate("ws://example", 3)
	model, err := newConnectorModel(tpl)
	require.NoError(t, err)

	assert.Equal(t, 3, model.Len())
	assert.False(t, model.HasEvses())

	ids := []int{}
	for _, connector := range model.All() {
		ids = append(ids, connector.ID)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)

	_, ok := model.Get(0)
	assert.False(t, ok)
}

func TestConnectorModelExplicitConnectors(t *testing.T) {
	tpl := testTemplate("ws://example", 0)
	tpl.Connectors = map[string]ConnectorTemplate{
		"0": {},
		"1": {MaxPowerKW: 7.4},
		"2": {Availability: "Inoperative"},
	}
	model, err := newConnectorModel(tpl)
	require.NoError(t, err)

	// id 0 预留给站点整体，不进入模型
	assert.Equal(t, 2, model.Len())

	first, _ := model.Get(1)
	assert.Equal(t, 7.4, first.PowerKW())

	second, _ := model.Get(2)
	assert.Equal(t, ocpp16.AvailabilityTypeInoperative, second.Availability())
}

func TestConnectorModelEvses(t *testing.T) {
	tpl := testTemplate("ws://example", 0)
	tpl.Evses = map[string]EvseTemplate{
		"0": {},
		"1": {Connectors: map[string]ConnectorTemplate{"1": {}}},
		"2": {Connectors: map[string]ConnectorTemplate{"2": {}, "3": {}}},
	}
	model, err := newConnectorModel(tpl)
	require.NoError(t, err)

	assert.True(t, model.HasEvses())
	assert.Equal(t, 3, model.Len())
	require.Len(t, model.Evses(), 2)

	evse, ok := model.Evse(2)
	require.True(t, ok)
	assert.Len(t, evse.Connectors, 2)

	connector, _ := model.Get(3)
	assert.Equal(t, 2, connector.EvseID)
}

func TestConnectorModelFindByTransaction(t *testing.T) {
	tpl := testTemplate("ws://example", 2)
	model, err := newConnectorModel(tpl)
	require.NoError(t, err)

	connector, _ := model.Get(2)
	require.NoError(t, connector.BeginTransaction(55, "ref-55", "AA000001"))

	found, ok := model.FindByTransactionID(55)
	require.True(t, ok)
	assert.Equal(t, 2, found.ID)

	found, ok = model.FindByTransactionRef("ref-55")
	require.True(t, ok)
	assert.Equal(t, 2, found.ID)

	_, ok = model.FindByTransactionID(99)
	assert.False(t, ok)
	assert.True(t, model.HasTransaction())
}
