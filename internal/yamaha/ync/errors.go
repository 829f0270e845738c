package ync

import (
	"errors"
	"fmt"
)

// TimeoutError indicates the exchange did not complete before its deadline.
type TimeoutError struct {
	Command Command
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ync %s timed out", e.Command)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// UnreachableError indicates the receiver could not be reached.
type UnreachableError struct {
	Command Command
	Err     error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("ync %s unreachable: %v", e.Command, e.Err)
}

func (e *UnreachableError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the receiver answers with something that
// is not a usable YAMAHA_AV document. Payload holds the raw response body.
type ProtocolError struct {
	Request string
	Payload []byte
	Reason  string
	Err     error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ync protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ync protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DeviceWarning records a non-zero result code. It is attached to the
// response, never returned as an error.
type DeviceWarning struct {
	Code ResultCode
}

func (w *DeviceWarning) Error() string {
	return fmt.Sprintf("receiver warning RC=%d: %s", int(w.Code), w.Code.Description())
}

// IsTransportError reports whether err is a timeout or connectivity failure.
func IsTransportError(err error) bool {
	var timeout *TimeoutError
	var unreachable *UnreachableError
	return errors.As(err, &timeout) || errors.As(err, &unreachable)
}

// IsProtocolError reports whether err wraps a ProtocolError.
func IsProtocolError(err error) bool {
	var protocol *ProtocolError
	return errors.As(err, &protocol)
}
