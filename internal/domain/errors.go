package domain

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the domain layer.
var (
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrRoleNotConfigured  = fmt.Errorf("agent role not configured")
	ErrSessionNotFound    = fmt.Errorf("session not found")
	ErrAuthInvalid        = fmt.Errorf("authentication failed")
	ErrRateLimit          = fmt.Errorf("rate limit exceeded")
	ErrCircuitOpen        = fmt.Errorf("agent circuit open")
	ErrConnection         = fmt.Errorf("agent connection failed")
	ErrRemoteAgent        = fmt.Errorf("remote agent reported error")
	ErrPollTimeout        = fmt.Errorf("agent did not finish in time")
	ErrUnrecognizedStatus = fmt.Errorf("unrecognized agent status")
	ErrEmptyAnswer        = fmt.Errorf("agent finished without an answer")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Router.Route")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// AgentDiagnostics is implemented by agent protocol errors that carry the
// HTTP status and payload of the failing exchange. HTTPStatus is 0 when no
// response was received.
type AgentDiagnostics interface {
	error
	HTTPStatus() int
	Payload() string
}

// ErrorCode is a machine-parseable error category for logs and metric labels.
type ErrorCode string

const (
	CodeNone              ErrorCode = ""
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeRoleNotConfigured ErrorCode = "ROLE_NOT_CONFIGURED"
	CodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeConnection        ErrorCode = "CONNECTION"
	CodeRemoteAgent       ErrorCode = "REMOTE_AGENT"
	CodePollTimeout       ErrorCode = "POLL_TIMEOUT"
	CodeUnrecognized      ErrorCode = "UNRECOGNIZED_STATUS"
	CodeEmptyAnswer       ErrorCode = "EMPTY_ANSWER"
	CodeCanceled          ErrorCode = "CANCELED"
)

// errorCodes is ordered so the most specific sentinel wins when an error
// wraps more than one (a circuit-open error also wraps the cause).
var errorCodes = []struct {
	err  error
	code ErrorCode
}{
	{ErrCircuitOpen, CodeCircuitOpen},
	{ErrRemoteAgent, CodeRemoteAgent},
	{ErrPollTimeout, CodePollTimeout},
	{ErrUnrecognizedStatus, CodeUnrecognized},
	{ErrEmptyAnswer, CodeEmptyAnswer},
	{ErrConnection, CodeConnection},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrRoleNotConfigured, CodeRoleNotConfigured},
	{ErrSessionNotFound, CodeSessionNotFound},
	{ErrAuthInvalid, CodeAuthInvalid},
	{ErrRateLimit, CodeRateLimit},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeNone for nil and CodeUnknown if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeNone
	}
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return CodeCanceled
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
