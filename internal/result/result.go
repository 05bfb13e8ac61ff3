// Package result defines the uniform return envelope produced by remote calls
// and the typed success/failure wrapper every higher-level operation returns.
package result

import (
	"errors"
	"fmt"
)

// Code is the status carried by a return envelope.
//
// Values below 1000 are declared by the remote service; values at or above
// 1000 are produced locally by the SDK and never travel over the wire.
type Code int

const (
	CodeSuccess         Code = 0
	CodeFailure         Code = 1
	CodeInvalidArgument Code = 2
	CodeNotFound        Code = 3
	CodeRoomFull        Code = 4
	CodeUnauthorized    Code = 5

	CodeException         Code = 1000
	CodeTimeout           Code = 1001
	CodeCanceled          Code = 1002
	CodeInvalidState      Code = 1003
	CodeProtocolViolation Code = 1004
)

// String returns a short lowercase name for the code.
func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeFailure:
		return "failure"
	case CodeInvalidArgument:
		return "invalid_argument"
	case CodeNotFound:
		return "not_found"
	case CodeRoomFull:
		return "room_full"
	case CodeUnauthorized:
		return "unauthorized"
	case CodeException:
		return "exception"
	case CodeTimeout:
		return "timeout"
	case CodeCanceled:
		return "canceled"
	case CodeInvalidState:
		return "invalid_state"
	case CodeProtocolViolation:
		return "protocol_violation"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// Local reports whether the code was produced by the SDK rather than the remote service.
func (c Code) Local() bool {
	return c >= CodeException
}

// Envelope is the decoded form of a completion callback payload.
// It correlates 1:1 with a pending call through CallID.
type Envelope struct {
	CallID     int64  `json:"callId"`
	ReturnCode Code   `json:"returnCode"`
	Message    string `json:"message"`
	Payload    string `json:"payload"`
}

// OK reports whether the envelope carries CodeSuccess.
func (e Envelope) OK() bool {
	return e.ReturnCode == CodeSuccess
}

// LocalEnvelope builds an envelope for an outcome decided on this side of the
// transport (exception, timeout, cancellation, invalid state).
func LocalEnvelope(callID int64, code Code, message string) Envelope {
	return Envelope{CallID: callID, ReturnCode: code, Message: message}
}

// Kind classifies a failure for callers that branch on the error taxonomy.
type Kind int

const (
	KindNone Kind = iota
	KindLocalException
	KindRemoteFailure
	KindTimeout
	KindInvalidState
	KindProtocolViolation
	KindCanceled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindLocalException:
		return "local_exception"
	case KindRemoteFailure:
		return "remote_failure"
	case KindTimeout:
		return "timeout"
	case KindInvalidState:
		return "invalid_state"
	case KindProtocolViolation:
		return "protocol_violation"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Sentinel errors matched with errors.Is against Result.Err.
var (
	ErrException         = errors.New("local exception")
	ErrRemote            = errors.New("remote failure")
	ErrTimeout           = errors.New("timed out")
	ErrInvalidState      = errors.New("invalid state")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrCanceled          = errors.New("canceled")
)

// KindOf maps a return code onto the failure taxonomy.
func KindOf(c Code) Kind {
	switch c {
	case CodeSuccess:
		return KindNone
	case CodeException:
		return KindLocalException
	case CodeTimeout:
		return KindTimeout
	case CodeCanceled:
		return KindCanceled
	case CodeInvalidState:
		return KindInvalidState
	case CodeProtocolViolation:
		return KindProtocolViolation
	default:
		return KindRemoteFailure
	}
}

func sentinel(k Kind) error {
	switch k {
	case KindLocalException:
		return ErrException
	case KindTimeout:
		return ErrTimeout
	case KindCanceled:
		return ErrCanceled
	case KindInvalidState:
		return ErrInvalidState
	case KindProtocolViolation:
		return ErrProtocolViolation
	default:
		return ErrRemote
	}
}

// Result is a discriminated success/failure wrapper around a return envelope.
// The zero value is not meaningful; build results with Success or Failure.
type Result[T any] struct {
	ok       bool
	data     T
	envelope Envelope
	errMsg   string
}

// Success wraps data parsed from a successful envelope.
//
// Precondition: env.ReturnCode must be CodeSuccess.
// Postcondition: IsSuccess() is true.
func Success[T any](data T, env Envelope) Result[T] {
	if !env.OK() {
		return Failure[T](env, fmt.Sprintf("success built from %s envelope", env.ReturnCode))
	}
	return Result[T]{ok: true, data: data, envelope: env}
}

// Failure wraps an envelope that did not yield data. When message is empty the
// envelope message is used.
//
// Postcondition: IsSuccess() is false.
func Failure[T any](env Envelope, message string) Result[T] {
	if message == "" {
		message = env.Message
	}
	if message == "" {
		message = env.ReturnCode.String()
	}
	return Result[T]{envelope: env, errMsg: message}
}

// Fail builds a failure from a locally decided code.
func Fail[T any](code Code, message string) Result[T] {
	return Failure[T](LocalEnvelope(0, code, message), message)
}

// IsSuccess reports whether the underlying envelope carried CodeSuccess and
// parsing succeeded.
func (r Result[T]) IsSuccess() bool { return r.ok }

// Data returns the parsed payload. Only meaningful when IsSuccess is true.
func (r Result[T]) Data() T { return r.data }

// Envelope returns the raw envelope this result was built from.
func (r Result[T]) Envelope() Envelope { return r.envelope }

// Code returns the envelope return code.
func (r Result[T]) Code() Code { return r.envelope.ReturnCode }

// ErrorMessage returns the human-readable failure message, or "" on success.
func (r Result[T]) ErrorMessage() string { return r.errMsg }

// Kind classifies the failure. Successful results report KindNone, including a
// success envelope whose payload failed to parse, which reports KindLocalException.
func (r Result[T]) Kind() Kind {
	if r.ok {
		return KindNone
	}
	k := KindOf(r.envelope.ReturnCode)
	if k == KindNone {
		return KindLocalException
	}
	return k
}

// Err returns nil on success, otherwise an error wrapping the sentinel for Kind.
func (r Result[T]) Err() error {
	if r.ok {
		return nil
	}
	return fmt.Errorf("%s: %w", r.errMsg, sentinel(r.Kind()))
}

// Map converts a successful result's data while keeping its envelope. Failures
// are carried over unchanged.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	if !r.ok {
		return Result[U]{envelope: r.envelope, errMsg: r.errMsg}
	}
	return Result[U]{ok: true, data: fn(r.data), envelope: r.envelope}
}
