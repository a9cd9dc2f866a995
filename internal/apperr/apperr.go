// Package apperr is the error taxonomy shared by every component. Each error
// carries a kind (deciding the HTTP status at the boundary) and a stable
// machine-readable code.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindValidation Kind = iota
	KindAuthentication
	KindBusinessRule
	KindNotFound
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindBusinessRule:
		return "business_rule"
	case KindNotFound:
		return "not_found"
	default:
		return "system"
	}
}

// Stable machine-readable codes.
const (
	CodeInvalidInput         = "INVALID_INPUT"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNotFound             = "NOT_FOUND"
	CodeInsufficientStock    = "INSUFFICIENT_STOCK"
	CodeShiftAlreadyOpen     = "SHIFT_ALREADY_OPEN"
	CodeNoActiveShift        = "NO_ACTIVE_SHIFT"
	CodeInvalidPaymentAmount = "INVALID_PAYMENT_AMOUNT"
	CodeInvalidStatus        = "INVALID_STATUS"
	CodeAlreadyCompleted     = "ORDER_ALREADY_COMPLETED"
	CodeSystem               = "SYSTEM_ERROR"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches two taxonomy errors by code, so callers can use
// errors.Is(err, apperr.BusinessRule(apperr.CodeShiftAlreadyOpen, "")).
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

func Validation(code, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: fmt.Sprintf(format, args...)}
}

func Authentication(format string, args ...any) *Error {
	return &Error{Kind: KindAuthentication, Code: CodeUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func BusinessRule(code, format string, args ...any) *Error {
	return &Error{Kind: KindBusinessRule, Code: code, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

func System(err error, format string, args ...any) *Error {
	return &Error{Kind: KindSystem, Code: CodeSystem, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf classifies any error; non-taxonomy errors are system errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindSystem
}

// CodeOf returns the stable code, or CodeSystem for unclassified errors.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeSystem
}

// IsCode reports whether err carries the given taxonomy code.
func IsCode(err error, code string) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}
