package config

import (
	"errors"
	"fmt"
)

// FieldError 指出哪个配置键无效以及原因，CLI 直接把它展示给用户。
type FieldError struct {
	Field  string
	Reason string
	Err    error
}

func (e *FieldError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// FieldOf 返回 err 链上第一个 FieldError 的字段名，没有时返回空串。
func FieldOf(err error) string {
	var fe *FieldError
	if errors.As(err, &fe) {
		return fe.Field
	}
	return ""
}

func newFieldError(field, reason string) error {
	return &FieldError{Field: field, Reason: reason}
}

func wrapFieldError(field, reason string, err error) error {
	return &FieldError{Field: field, Reason: reason, Err: err}
}

// globalField 输出 Global.<Key> 形式的字段路径。
func globalField(field string) string {
	return "Global." + field
}
