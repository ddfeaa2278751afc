// Package dErrors provides coded domain errors.
//
// Every failure surfaced to a caller carries one of the codes below so
// integrators can branch on cause instead of string-matching messages.
// Infrastructure layers return pkg/platform/sentinel errors; services
// translate them into coded errors at the boundary.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain failure.
type Code string

const (
	// Authorization: caller lacks the required role.
	CodeNotGovernance Code = "NOT_GOVERNANCE"
	CodeNotSentinel   Code = "NOT_SENTINEL"
	CodeNotReporter   Code = "NOT_REPORTER"

	// State: system or entity in the wrong state for the request.
	CodeHalted              Code = "HALTED"
	CodeInstitutionNotFound Code = "INSTITUTION_NOT_FOUND"
	CodeAlreadyReporter     Code = "ALREADY_REPORTER"

	// Validation: malformed input.
	CodeZeroAddress     Code = "ZERO_ADDRESS"
	CodeInvalidRegion   Code = "INVALID_REGION"
	CodeInvalidRiskTier Code = "INVALID_RISK_TIER"
	CodeInvalidLabel    Code = "INVALID_LABEL"
	CodeArrayTooLong    Code = "ARRAY_TOO_LONG"
	CodeIndexOutOfRange Code = "INDEX_OUT_OF_RANGE"

	// Capacity: hard bounds reached, permanent for the entity.
	CodeMaxInstitutions Code = "MAX_INSTITUTIONS"
	CodeMaxSnapshots    Code = "MAX_SNAPSHOTS"

	// Payment: value-transfer precondition violated.
	CodeFeeRequired Code = "FEE_REQUIRED"
	CodeFeeTooHigh  Code = "FEE_TOO_HIGH"

	// Transport-level codes.
	CodeBadRequest   Code = "BAD_REQUEST"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotFound     Code = "NOT_FOUND"
	CodeInternal     Code = "INTERNAL"
	CodeTimeout      Code = "TIMEOUT"
)

// DomainError is a coded error with an optional wrapped cause.
type DomainError struct {
	Code    Code
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &DomainError{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &DomainError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &DomainError{Code: code, Message: message, Err: err}
}

// HasCode reports whether err (or anything it wraps) carries the code.
func HasCode(err error, code Code) bool {
	var de *DomainError
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.Err
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode used at call sites that test a
// single expected code.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf returns the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code onto the HTTP status used by the transport
// layer's single error-writing choke point.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotGovernance, CodeNotSentinel, CodeNotReporter:
		return http.StatusForbidden
	case CodeHalted:
		return http.StatusServiceUnavailable
	case CodeInstitutionNotFound, CodeNotFound, CodeIndexOutOfRange:
		return http.StatusNotFound
	case CodeAlreadyReporter:
		return http.StatusConflict
	case CodeZeroAddress, CodeInvalidRegion, CodeInvalidRiskTier,
		CodeInvalidLabel, CodeArrayTooLong, CodeBadRequest:
		return http.StatusBadRequest
	case CodeMaxInstitutions, CodeMaxSnapshots:
		return http.StatusConflict
	case CodeFeeRequired:
		return http.StatusPaymentRequired
	case CodeFeeTooHigh:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
