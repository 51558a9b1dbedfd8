package service

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrRoomNotFound     = errors.New("room not found")
	ErrTemplateNotFound = errors.New("template not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrInternalServer   = errors.New("internal server error")
)

// InternalErrorMessage 替代内部错误发送给客户端的通用消息
const InternalErrorMessage = "Internal server error"

// ValidationError 表示客户端输入不合法，消息可以直接返回给客户端。
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// NewValidationError 创建格式化的 ValidationError
func NewValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsClientError 报告 err 是否可以原样展示给客户端
func IsClientError(err error) bool {
	status, _ := Classify(err)
	return status < http.StatusInternalServerError
}

// Classify 把错误映射为状态码和面向客户端的消息。
// 未识别的错误视为内部错误，消息替换为通用字符串。
func Classify(err error) (int, string) {
	var ve *ValidationError
	switch {
	case err == nil:
		return http.StatusOK, ""
	case errors.As(err, &ve):
		return http.StatusBadRequest, ve.Msg
	case errors.Is(err, ErrRoomNotFound),
		errors.Is(err, ErrTemplateNotFound),
		errors.Is(err, ErrItemNotFound):
		return http.StatusNotFound, err.Error()
	default:
		return http.StatusInternalServerError, InternalErrorMessage
	}
}
