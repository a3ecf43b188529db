package download

import (
	"errors"
	"fmt"
)

// Kind 区分失败类别，调用方按类别决定提示信息与退出码。
type Kind int

const (
	KindResolution Kind = iota + 1
	KindTransport
	KindCancelled
	KindIO
	KindSizeMismatch
)

func (k Kind) String() string {
	switch k {
	case KindResolution:
		return "resolution"
	case KindTransport:
		return "transport"
	case KindCancelled:
		return "cancelled"
	case KindIO:
		return "io"
	case KindSizeMismatch:
		return "size_mismatch"
	default:
		return "unknown"
	}
}

// Error 是流水线返回的带类别错误。
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf 返回 err 链中的 Kind；不是 *Error 时返回 0。
func KindOf(err error) Kind {
	var dlErr *Error
	if errors.As(err, &dlErr) {
		return dlErr.Kind
	}
	return 0
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}
