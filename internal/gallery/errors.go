package gallery

import (
	"errors"
	"fmt"
)

// Kind 对错误进行分类，API 层据此选择 HTTP 状态码。
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidReference
	KindInsufficientData
	KindAmbiguousInput
	KindInvalidInput
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidReference:
		return "invalid_reference"
	case KindInsufficientData:
		return "insufficient_data"
	case KindAmbiguousInput:
		return "ambiguous_input"
	case KindInvalidInput:
		return "invalid_input"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error 是服务层返回给调用方的结构化错误。
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is 只比较 Kind，因此 errors.Is(err, ErrNotFound) 对任意 NotFound 错误成立。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrInvalidReference = &Error{Kind: KindInvalidReference, Message: "invalid reference"}
	ErrInsufficientData = &Error{Kind: KindInsufficientData, Message: "insufficient data"}
	ErrAmbiguousInput   = &Error{Kind: KindAmbiguousInput, Message: "ambiguous input"}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrConflict         = &Error{Kind: KindConflict, Message: "conflict"}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func notFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func invalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, format, args...)
}

// KindOf 返回错误链中第一个 *Error 的 Kind，其他错误一律视为内部错误。
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// MessageOf 返回适合展示给用户的信息。
func MessageOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
