package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func heartbeatIntervalMetadata() *Metadata {
	return &Metadata{
		Component: ComponentOCPPCommCtrlr, Variable: VariableHeartbeatInterval,
		DataType: DataTypeInteger, Mutability: MutabilityReadWrite, Persistence: PersistencePersistent,
		Positive: true, Min: floatPtr(1), Max: floatPtr(86400),
	}
}

func TestValidateInteger(t *testing.T) {
	m := heartbeatIntervalMetadata()

	tests := []struct {
		value  string
		reason RejectReason // 空表示通过
	}{
		{"60", ""},
		{"1", ""},
		{"86400", ""},
		{"0", ReasonValuePositiveOnly},
		{"-5", ReasonValuePositiveOnly},
		{"86401", ReasonValueTooHigh},
		{"abc", ReasonInvalidValue},
		{"6.5", ReasonInvalidValue},
		{"", ReasonInvalidValue},
	}
	for _, tt := range tests {
		rejection := ValidateValue(m, tt.value)
		if tt.reason == "" {
			assert.Nil(t, rejection, "value %q should be accepted", tt.value)
		} else {
			require.NotNil(t, rejection, "value %q should be rejected", tt.value)
			assert.Equal(t, tt.reason, rejection.Reason, "value %q", tt.value)
		}
	}
}

func TestValidateIntegerDottedZero(t *testing.T) {
	m := &Metadata{DataType: DataTypeInteger, Positive: false, AllowZero: false}
	rejection := ValidateValue(m, "0.0")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonValueZeroNotAllowed, rejection.Reason)

	rejection = ValidateValue(m, "1.5")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidValue, rejection.Reason)
}

func TestValidateIntegerZeroWithoutPositive(t *testing.T) {
	m := &Metadata{DataType: DataTypeInteger}
	rejection := ValidateValue(m, "0")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonValueZeroNotAllowed, rejection.Reason)

	m.AllowZero = true
	assert.Nil(t, ValidateValue(m, "0"))
	assert.Nil(t, ValidateValue(m, "-3"))
}

func TestValidateDecimal(t *testing.T) {
	m := &Metadata{DataType: DataTypeDecimal, Positive: true, Min: floatPtr(0.5), Max: floatPtr(99.5)}

	assert.Nil(t, ValidateValue(m, "42.5"))
	assert.Nil(t, ValidateValue(m, "1"))

	rejection := ValidateValue(m, "0.1")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonValueTooLow, rejection.Reason)

	rejection = ValidateValue(m, "100.0")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonValueTooHigh, rejection.Reason)

	rejection = ValidateValue(m, "1,5")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidValue, rejection.Reason)
}

func TestValidateBoolean(t *testing.T) {
	m := &Metadata{DataType: DataTypeBoolean}
	assert.Nil(t, ValidateValue(m, "true"))
	assert.Nil(t, ValidateValue(m, "false"))

	for _, bad := range []string{"True", "FALSE", "1", "yes", ""} {
		rejection := ValidateValue(m, bad)
		require.NotNil(t, rejection, "value %q", bad)
		assert.Equal(t, ReasonInvalidValue, rejection.Reason)
	}
}

func TestValidateDateTime(t *testing.T) {
	m := &Metadata{DataType: DataTypeDateTime}
	assert.Nil(t, ValidateValue(m, "2024-01-01T00:00:00Z"))
	assert.Nil(t, ValidateValue(m, "2024-06-15T10:30:00.123+02:00"))

	rejection := ValidateValue(m, "yesterday")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidValue, rejection.Reason)
}

func TestValidateList(t *testing.T) {
	m := &Metadata{
		DataType:    DataTypeMemberList,
		Enumeration: []string{"A", "B", "C"},
	}

	assert.Nil(t, ValidateValue(m, "A"))
	assert.Nil(t, ValidateValue(m, "A,B,C"))
	assert.Nil(t, ValidateValue(m, "A, B"))

	for _, bad := range []string{"", ",A", "A,", "A,,B", "A,A", "A,D"} {
		rejection := ValidateValue(m, bad)
		require.NotNil(t, rejection, "value %q", bad)
		assert.Equal(t, ReasonInvalidValue, rejection.Reason, "value %q", bad)
	}
}

func TestValidateListWithoutEnumeration(t *testing.T) {
	m := &Metadata{DataType: DataTypeOptionList}
	assert.Nil(t, ValidateValue(m, "x,y,z"))

	rejection := ValidateValue(m, "x,x")
	require.NotNil(t, rejection)
}

func TestValidateURL(t *testing.T) {
	m := &Metadata{DataType: DataTypeString, IsURL: true}
	assert.Nil(t, ValidateValue(m, "https://csms.example.com/ocpp"))

	rejection := ValidateValue(m, "not a url")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidURL, rejection.Reason)
}

func TestValidateURLSchemes(t *testing.T) {
	m := &Metadata{DataType: DataTypeString, IsURL: true, URLSchemes: []string{"ws", "wss"}}
	assert.Nil(t, ValidateValue(m, "wss://csms.example.com/ocpp"))

	rejection := ValidateValue(m, "http://csms.example.com/ocpp")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidURL, rejection.Reason)
}

func TestValidateMaxLengthFirst(t *testing.T) {
	// 长度上限在全部路径上先行检查
	m := &Metadata{DataType: DataTypeInteger, MaxLength: intPtr(3), AllowZero: true}
	rejection := ValidateValue(m, "12345")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonValueTooLong, rejection.Reason)
}

func TestValidateScalarEnumerationAfterType(t *testing.T) {
	m := &Metadata{DataType: DataTypeString, Enumeration: []string{"on", "off"}}
	assert.Nil(t, ValidateValue(m, "on"))

	rejection := ValidateValue(m, "auto")
	require.NotNil(t, rejection)
	assert.Equal(t, ReasonInvalidValue, rejection.Reason)
}

// 校验对称性：通过校验的值经写入-解析回读后保持不变
func TestValidationSymmetry(t *testing.T) {
	m := heartbeatIntervalMetadata()
	overlay := NewOverlay()
	reg := New([]*Metadata{m})

	require.Nil(t, ValidateValue(m, "60"))
	overlay.Set(m, "60")

	resolved := reg.ResolveValue(StationInfo{}, overlay, m)
	assert.Equal(t, "60", resolved)
	assert.Nil(t, ValidateValue(m, resolved))
}
