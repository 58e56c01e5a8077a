package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type samplePayload struct {
	Vendor   string  `validate:"required,max=20"`
	Model    string  `validate:"required,max=20"`
	Firmware *string `validate:"omitempty,max=10"`
	Interval int     `validate:"min=0"`
}

func TestValidateStructOK(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateStruct(&samplePayload{Vendor: "V", Model: "M"}))
}

func TestValidateStructMissingRequired(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(&samplePayload{Model: "M"})
	require.Error(t, err)

	validationErrors, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, validationErrors, 1)
	assert.Equal(t, "Vendor", validationErrors[0].Field)
	assert.Equal(t, "required", validationErrors[0].Tag)
	assert.Contains(t, err.Error(), "required")
}

func TestValidateStructMaxLength(t *testing.T) {
	v := NewValidator()
	firmware := "12345678901"
	err := v.ValidateStruct(&samplePayload{Vendor: "V", Model: "M", Firmware: &firmware})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "maximum")
}

func TestValidateStructMultipleErrors(t *testing.T) {
	v := NewValidator()
	err := v.ValidateStruct(&samplePayload{Interval: -1})
	require.Error(t, err)

	validationErrors, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Len(t, validationErrors, 3)
}

func TestValidateMessageSize(t *testing.T) {
	v := NewValidator()
	assert.NoError(t, v.ValidateMessageSize(make([]byte, 100), 100))
	assert.NoError(t, v.ValidateMessageSize(make([]byte, 100), 0))
	assert.Error(t, v.ValidateMessageSize(make([]byte, 101), 100))
}
