// Package errors is the typed error every sales desk layer returns. Codes
// line up with how a caller should react: VALIDATION_ERROR and NOT_FOUND
// need corrected input, INSUFFICIENT_STOCK is a business outcome,
// CONFLICT and DEPENDENCY_ERROR may succeed when retried, and
// INTERNAL_ERROR is a fault nobody outside the service can fix.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation   Code = "VALIDATION_ERROR"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeForbidden    Code = "FORBIDDEN"
	CodeNotFound     Code = "NOT_FOUND"
	CodeConflict     Code = "CONFLICT"
	CodeInsufficient Code = "INSUFFICIENT_STOCK"
	CodeIdempotency  Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit    Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal     Code = "INTERNAL_ERROR"
	CodeDependency   Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code is rendered over HTTP. DetailsAllowed codes may
// carry structured details, such as the available count of an
// INSUFFICIENT_STOCK rejection.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
}

const (
	retryable = true
	details   = true
)

var metadataByCode = map[Code]Metadata{
	CodeValidation:   {http.StatusBadRequest, !retryable, "validation failed", details},
	CodeUnauthorized: {http.StatusUnauthorized, !retryable, "authentication required", !details},
	CodeForbidden:    {http.StatusForbidden, !retryable, "access denied", !details},
	CodeNotFound:     {http.StatusNotFound, !retryable, "resource not found", !details},
	CodeConflict:     {http.StatusConflict, retryable, "conflict detected", !details},
	CodeInsufficient: {http.StatusConflict, !retryable, "insufficient stock", details},
	CodeIdempotency:  {http.StatusConflict, !retryable, "idempotency key reused", details},
	CodeRateLimit:    {http.StatusTooManyRequests, retryable, "rate limit exceeded", !details},
	CodeInternal:     {http.StatusInternalServerError, !retryable, "internal server error", !details},
	CodeDependency:   {http.StatusServiceUnavailable, retryable, "dependency unavailable", details},
}

// MetadataFor falls back to INTERNAL_ERROR for unknown codes.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether any error in err's chain carries the given code.
func IsCode(err error, code Code) bool {
	for err != nil {
		typed := As(err)
		if typed == nil {
			return false
		}
		if typed.code == code {
			return true
		}
		err = typed.cause
	}
	return false
}

// Retryable reports whether repeating the operation that failed with err
// could succeed unchanged. Only the outermost code counts; untyped errors
// are not retryable.
func Retryable(err error) bool {
	typed := As(err)
	if typed == nil {
		return false
	}
	return MetadataFor(typed.code).Retryable
}
