package balancer

import (
	"errors"
	"fmt"
)

// Code identifies the failure kind surfaced to the client. Every public
// operation on the worker fails with exactly one of these.
type Code string

const (
	CodeNotEnabled            Code = "DISK_BALANCER_NOT_ENABLED"
	CodePlanAlreadyInProgress Code = "PLAN_ALREADY_IN_PROGRESS"
	CodeInvalidPlanVersion    Code = "INVALID_PLAN_VERSION"
	CodeInvalidPlan           Code = "INVALID_PLAN"
	CodeInvalidPlanHash       Code = "INVALID_PLAN_HASH"
	CodeMalformedPlan         Code = "MALFORMED_PLAN"
	CodeOldPlanSubmitted      Code = "OLD_PLAN_SUBMITTED"
	CodeDatanodeIDMismatch    Code = "DATANODE_ID_MISMATCH"
	CodeInvalidVolume         Code = "INVALID_VOLUME"
	CodeInvalidMove           Code = "INVALID_MOVE"
	CodeNoSuchPlan            Code = "NO_SUCH_PLAN"
	CodeInternalError         Code = "INTERNAL_ERROR"
)

// Error is a balancer failure carrying its client-visible code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// newError creates an Error with a formatted message
func newError(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// wrapError creates an Error around an underlying cause
func wrapError(code Code, err error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the balancer code from an error chain. Returns the empty
// string for errors that did not originate here.
func CodeOf(err error) Code {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return ""
}
