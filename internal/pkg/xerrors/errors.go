package xerrors

import (
	"errors"
	"fmt"
	"log/slog"
)

// AppError 领域错误
type AppError struct {
	Code     ErrorCode              `json:"code"`
	Message  string                 `json:"message"`
	Err      error                  `json:"-"`
	Category string                 `json:"category,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	Retryable bool `json:"retryable,omitempty"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *AppError) Unwrap() error {
	return e.Err
}

// LogValue 实现 slog.LogValuer
func (e *AppError) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("code", int(e.Code)),
		slog.String("message", e.Message),
		slog.String("category", e.Category),
		slog.Bool("retryable", e.Retryable),
	}
	for k, v := range e.Metadata {
		attrs = append(attrs, slog.Any(k, v))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("underlying_error", e.Err))
	}
	return slog.GroupValue(attrs...)
}

// WithMetadata 添加元数据
func (e *AppError) WithMetadata(key string, value interface{}) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// New 创建新的AppError
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Category:  getCategoryByCode(code),
		Retryable: code == CodeStorageConflict,
	}
}

// Newf 使用格式化消息创建AppError
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// FromCode 使用默认消息创建AppError
func FromCode(code ErrorCode) *AppError {
	return New(code, code.Message())
}

// Wrap 包装底层错误；已经是AppError的错误原样返回
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	e := New(code, message)
	e.Err = err
	return e
}

// NewNotFoundError 资源不存在
func NewNotFoundError(resource string, id any) *AppError {
	return Newf(CodeResourceNotFound, "%s not found", resource).WithMetadata("id", id)
}

// CodeOf 提取错误码，非AppError返回内部错误码
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeInternalError
}

// Is 判断错误是否为指定错误码
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
