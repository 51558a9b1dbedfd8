package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// 名称长度限制 (按字符计)
const (
	MaxRoomNameLength = 40
	MaxNicknameLength = 30
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误消息中使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateStruct 校验结构体并把第一个失败字段转换为 ValidationError
func validateStruct(s interface{}) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		return &ValidationError{Msg: describeFieldError(fieldErrs[0])}
	}
	return NewValidationError("invalid input: %v", err)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	// 去掉最外层的结构体名
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("'%s' is required", field)
	case "min":
		if unit := sizeUnit(fe.Kind()); unit != "" {
			return fmt.Sprintf("'%s' must contain at least %s %s", field, fe.Param(), unit)
		}
		return fmt.Sprintf("'%s' must be greater than or equal to %s", field, fe.Param())
	case "max":
		if unit := sizeUnit(fe.Kind()); unit != "" {
			return fmt.Sprintf("'%s' must contain at most %s %s", field, fe.Param(), unit)
		}
		return fmt.Sprintf("'%s' must be less than or equal to %s", field, fe.Param())
	default:
		return fmt.Sprintf("'%s' is invalid", field)
	}
}

func sizeUnit(k reflect.Kind) string {
	switch k {
	case reflect.String:
		return "characters"
	case reflect.Slice, reflect.Array, reflect.Map:
		return "elements"
	}
	return ""
}

// normalizeName 去掉首尾空白后校验长度 (1~max 个字符)
func normalizeName(field, name string, max int) (string, error) {
	trimmed := strings.TrimSpace(name)
	if err := validate.Var(trimmed, fmt.Sprintf("required,max=%d", max)); err != nil {
		if trimmed == "" {
			return "", NewValidationError("'%s' string is empty or undefined", field)
		}
		return "", NewValidationError("'%s' must be at most %d characters long", field, max)
	}
	return trimmed, nil
}

// NormalizeRoomName 校验房间名称
func NormalizeRoomName(name string) (string, error) {
	return normalizeName("name", name, MaxRoomNameLength)
}

// NormalizeNickname 校验会话的显示名称
func NormalizeNickname(name string) (string, error) {
	return normalizeName("userName", name, MaxNicknameLength)
}
