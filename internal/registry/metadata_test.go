package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupCaseInsensitiveFallback(t *testing.T) {
	reg := Standard()

	exact, ok := reg.Lookup(ComponentOCPPCommCtrlr, VariableHeartbeatInterval, "")
	require.True(t, ok)

	folded, ok := reg.Lookup("ocppcommctrlr", "heartbeatinterval", "")
	require.True(t, ok)
	assert.Same(t, exact, folded)

	_, ok = reg.Lookup("NoSuchCtrlr", "NoSuchVariable", "")
	assert.False(t, ok)
}

func TestLookupWithInstance(t *testing.T) {
	reg := Standard()

	m, ok := reg.Lookup(ComponentOCPPCommCtrlr, VariableMessageAttempts, "TransactionEvent")
	require.True(t, ok)
	assert.Equal(t, "TransactionEvent", m.Instance)

	_, ok = reg.Lookup(ComponentOCPPCommCtrlr, VariableMessageAttempts, "NoSuchInstance")
	assert.False(t, ok)
}

func TestHasComponent(t *testing.T) {
	reg := Standard()
	assert.True(t, reg.HasComponent(ComponentChargingStation))
	assert.True(t, reg.HasComponent("chargingstation"))
	assert.False(t, reg.HasComponent("NoSuchCtrlr"))
}

func TestResolveValuePrecedence(t *testing.T) {
	m := &Metadata{
		Component: "TestCtrlr", Variable: "Setting",
		DataType: DataTypeString, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
		DefaultValue: "default",
		Resolve:      func(info StationInfo) string { return "resolved-" + info.StationID },
	}
	reg := New([]*Metadata{m})
	info := StationInfo{StationID: "CP-1"}

	// 动态解析回调优先于默认值
	assert.Equal(t, "resolved-CP-1", reg.ResolveValue(info, nil, m))

	// 覆盖层优先于动态解析
	overlay := NewOverlay()
	overlay.Set(m, "written")
	assert.Equal(t, "written", reg.ResolveValue(info, overlay, m))
}

func TestResolveValueDefaultOnly(t *testing.T) {
	m := &Metadata{Component: "C", Variable: "V", DefaultValue: "42"}
	reg := New([]*Metadata{m})
	assert.Equal(t, "42", reg.ResolveValue(StationInfo{}, NewOverlay(), m))
}

func TestEnforceReportingValueSize(t *testing.T) {
	assert.Equal(t, "abc", EnforceReportingValueSize("abc", 10))
	assert.Equal(t, "abc", EnforceReportingValueSize("abc", 0))
	assert.Equal(t, "abcde", EnforceReportingValueSize("abcdefgh", 5))
}

func TestOverlayPersistenceSplit(t *testing.T) {
	persistent := &Metadata{Component: "C", Variable: "P", Persistence: PersistencePersistent}
	volatile := &Metadata{Component: "C", Variable: "V", Persistence: PersistenceVolatile}

	overlay := NewOverlay()
	overlay.Set(persistent, "keep")
	overlay.Set(volatile, "drop")

	v, ok := overlay.Get(persistent.KeyOf())
	require.True(t, ok)
	assert.Equal(t, "keep", v)
	v, ok = overlay.Get(volatile.KeyOf())
	require.True(t, ok)
	assert.Equal(t, "drop", v)

	// 快照只包含持久写入
	snapshot := overlay.SnapshotPersistent()
	assert.Equal(t, map[string]string{persistent.KeyOf().String(): "keep"}, snapshot)

	restored := NewOverlay()
	restored.RestorePersistent(snapshot)
	v, ok = restored.Get(persistent.KeyOf())
	require.True(t, ok)
	assert.Equal(t, "keep", v)
	_, ok = restored.Get(volatile.KeyOf())
	assert.False(t, ok)
}

func TestMutabilityHelpers(t *testing.T) {
	assert.True(t, (&Metadata{Mutability: MutabilityReadOnly}).IsReadOnly())
	assert.True(t, (&Metadata{Mutability: MutabilityWriteOnly}).IsWriteOnly())
	assert.True(t, (&Metadata{Persistence: PersistencePersistent}).IsPersistent())
	assert.False(t, (&Metadata{Mutability: MutabilityReadWrite}).IsReadOnly())
}

func TestApplyPostProcess(t *testing.T) {
	m := &Metadata{PostProcess: strings.ToUpper}
	assert.Equal(t, "ABC", m.ApplyPostProcess("abc"))

	plain := &Metadata{}
	assert.Equal(t, "abc", plain.ApplyPostProcess("abc"))
}

func TestStandardRegistryResolvers(t *testing.T) {
	reg := Standard()
	info := StationInfo{
		StationID: "CP-7", Vendor: "V", Model: "M", FirmwareVersion: "9.9.9", SerialNumber: "SN",
	}

	identity, ok := reg.Lookup(ComponentSecurityCtrlr, VariableIdentity, "")
	require.True(t, ok)
	assert.Equal(t, "CP-7", reg.ResolveValue(info, nil, identity))

	model, ok := reg.Lookup(ComponentChargingStation, VariableModel, "")
	require.True(t, ok)
	assert.Equal(t, "M", reg.ResolveValue(info, nil, model))

	password, ok := reg.Lookup(ComponentSecurityCtrlr, VariableBasicAuthPassword, "")
	require.True(t, ok)
	assert.True(t, password.IsWriteOnly())
}

func TestRegistryDuplicateEntriesIgnored(t *testing.T) {
	first := &Metadata{Component: "C", Variable: "V", DefaultValue: "1"}
	dup := &Metadata{Component: "C", Variable: "V", DefaultValue: "2"}
	reg := New([]*Metadata{first, dup})

	assert.Equal(t, 1, reg.Len())
	m, _ := reg.Lookup("C", "V", "")
	assert.Equal(t, "1", m.DefaultValue)
}
