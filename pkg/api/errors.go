package api

import (
	"fmt"
	"net/http"
)

// ErrorType is the closed set of error categories surfaced to callers.
type ErrorType string

const (
	TypeValidation          ErrorType = "validation_error"
	TypeUnauthorized        ErrorType = "unauthorized"
	TypeNotFound            ErrorType = "not_found"
	TypeAPIError            ErrorType = "api_error"
	TypeContentFilter       ErrorType = "content_filter"
	TypeInsufficientBalance ErrorType = "insufficient_balance"
	TypeServerError         ErrorType = "server_error"
)

// Error is the standard error envelope:
//
//	{"error": {"message": "...", "type": "...", "details": ...}}
//
// Upstream causes are attached for server-side logging and never serialized.
type Error struct {
	Status  int       `json:"-"`
	Message string    `json:"message"`
	Type    ErrorType `json:"type"`
	Code    string    `json:"code,omitempty"`
	Details string    `json:"details,omitempty"`

	Log error `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %s: %s", e.Status, e.Type, e.Message)
}

// Envelope is the JSON body an *Error renders to.
func (e *Error) Envelope() map[string]*Error {
	return map[string]*Error{"error": e}
}

type ErrorOption func(*Error)

// WithLog attaches an internal error for server-side logging.
func WithLog(err error) ErrorOption {
	return func(e *Error) { e.Log = err }
}

// WithDetails adds a caller-visible detail string.
func WithDetails(details string) ErrorOption {
	return func(e *Error) { e.Details = details }
}

// WithCode sets a machine-readable code alongside the type.
func WithCode(code string) ErrorOption {
	return func(e *Error) { e.Code = code }
}

func NewError(status int, typ ErrorType, message string, opts ...ErrorOption) *Error {
	e := &Error{Status: status, Type: typ, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func ValidationError(message string, opts ...ErrorOption) *Error {
	return NewError(http.StatusBadRequest, TypeValidation, message, opts...)
}

func UnauthorizedError(message string, opts ...ErrorOption) *Error {
	return NewError(http.StatusUnauthorized, TypeUnauthorized, message, opts...)
}

func NotFoundError(message string, opts ...ErrorOption) *Error {
	return NewError(http.StatusNotFound, TypeNotFound, message, opts...)
}

// APIError reports an upstream dependency failure without leaking its body.
func APIError(message string, err error, opts ...ErrorOption) *Error {
	opts = append([]ErrorOption{WithLog(err)}, opts...)
	return NewError(http.StatusInternalServerError, TypeAPIError, message, opts...)
}

func ContentFilterError(message string) *Error {
	return NewError(http.StatusBadRequest, TypeContentFilter, message, WithCode("content_filter"))
}

func InsufficientBalanceError(message string) *Error {
	return NewError(http.StatusPaymentRequired, TypeInsufficientBalance, message)
}

func InternalError(err error) *Error {
	return NewError(http.StatusInternalServerError, TypeServerError, "Internal server error", WithLog(err))
}
