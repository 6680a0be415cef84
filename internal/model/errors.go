package model

import (
	"errors"
	"fmt"
)

// ErrorKind 对业务错误进行分类，handler 根据分类映射 HTTP 状态码。
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
)

// AppError 是所有业务操作返回的错误类型，Message 可直接展示给用户。
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func NewError(kind ErrorKind, format string, args ...interface{}) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WrapInternal 将底层错误包装为对外隐藏细节的内部错误。
func WrapInternal(message string, err error) *AppError {
	return &AppError{Kind: KindInternal, Message: message, Err: err}
}

// ErrNotLoggedIn 在调用方没有会话时返回。
var ErrNotLoggedIn = &AppError{Kind: KindUnauthenticated, Message: "尚未登入"}

// ErrNoDepartment 在调用方无法解析所属部门时返回。
var ErrNoDepartment = &AppError{Kind: KindForbidden, Message: "無法取得所屬部門"}

// KindOf 返回错误的分类，非 AppError 一律视为内部错误。
func KindOf(err error) ErrorKind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// MessageOf 返回可展示给用户的错误信息。
func MessageOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "伺服器內部錯誤"
}
