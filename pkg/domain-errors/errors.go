// Package domainerrors defines the error taxonomy that crosses service boundaries.
//
// Services return *Error values (usually via New or Wrap) so transports can map
// a stable Code onto a response without inspecting messages. Infrastructure
// facts (not found, conflict) live in pkg/platform/sentinel and are translated
// into these codes by the owning service.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code is a stable, machine-readable error kind.
type Code string

const (
	// Lifecycle taxonomy.
	CodeInvalidTransition      Code = "invalid_transition"
	CodeUnauthorized           Code = "unauthorized"
	CodeConcurrentModification Code = "concurrent_modification"
	CodeProofTampered          Code = "proof_tampered"
	CodeLedgerInconsistency    Code = "ledger_inconsistency"
	CodeIssuanceUnavailable    Code = "issuance_unavailable"
	CodeTimeout                Code = "timeout"
	CodeInvalidSignature       Code = "invalid_signature"

	// General request and resource errors.
	CodeUnauthenticated    Code = "unauthenticated"
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error carries a Code, a client-safe message, and an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a domain error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil err yields nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Err: err}
}

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}

// Is is shorthand for HasCode.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf returns the outermost code in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf returns the outermost client-safe message.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return "internal error"
}

// Retryable reports whether the caller may safely retry the operation.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeConcurrentModification, CodeTimeout, CodeIssuanceUnavailable:
		return true
	default:
		return false
	}
}

// ToHTTPStatus maps a code onto an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest, CodeValidation, CodeInvalidInput:
		return http.StatusBadRequest
	case CodeUnauthenticated, CodeInvalidSignature:
		return http.StatusUnauthorized
	case CodeUnauthorized:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict, CodeConcurrentModification:
		return http.StatusConflict
	case CodeInvalidTransition, CodeProofTampered, CodeInvariantViolation:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeIssuanceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
