package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validator OCPP载荷验证器，严格模式下对收发双向的载荷结构生效
type Validator struct {
	validate *validator.Validate
}

// ValidationError 验证错误
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

// Error 实现error接口
func (e ValidationError) Error() string {
	return e.Message
}

// ValidationErrors 验证错误集合
type ValidationErrors []ValidationError

// Error 实现error接口
func (e ValidationErrors) Error() string {
	var messages []string
	for _, err := range e {
		messages = append(messages, err.Message)
	}
	return strings.Join(messages, "; ")
}

// NewValidator 创建新的验证器
func NewValidator() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// ValidateStruct 验证结构体
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var validationErrors ValidationErrors
	if validatorErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validatorErrors {
			validationErrors = append(validationErrors, ValidationError{
				Field:   fieldError.Field(),
				Tag:     fieldError.Tag(),
				Value:   fmt.Sprintf("%v", fieldError.Value()),
				Message: getErrorMessage(fieldError),
			})
		}
		return validationErrors
	}
	return err
}

// ValidateMessageSize 验证消息大小
func (v *Validator) ValidateMessageSize(data []byte, maxSize int) error {
	if maxSize > 0 && len(data) > maxSize {
		return ValidationError{
			Field:   "message",
			Tag:     "max",
			Value:   fmt.Sprintf("%d", len(data)),
			Message: fmt.Sprintf("message size %d exceeds maximum %d", len(data), maxSize),
		}
	}
	return nil
}

// getErrorMessage 生成可读的错误信息
func getErrorMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("field %s is required", e.Field())
	case "max":
		return fmt.Sprintf("field %s exceeds maximum %s", e.Field(), e.Param())
	case "min":
		return fmt.Sprintf("field %s is below minimum %s", e.Field(), e.Param())
	case "oneof":
		return fmt.Sprintf("field %s must be one of [%s]", e.Field(), e.Param())
	default:
		return fmt.Sprintf("field %s failed validation %s", e.Field(), e.Tag())
	}
}
