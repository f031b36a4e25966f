package stroker

import (
	"errors"
	"fmt"
)

// Connect failure kinds.
var (
	ErrUnavailable      = errors.New("device unavailable")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConnectTimeout   = errors.New("connect timed out")
	ErrProtocolMismatch = errors.New("protocol mismatch")
)

// Send failure kinds.
var (
	ErrDisconnected = errors.New("device disconnected")
	ErrSendTimeout  = errors.New("send timed out")
	ErrMalformed    = errors.New("malformed command")
)

// ConnectError is returned by Device.Connect.
// Kind is one of the Err* connect sentinels and matches with errors.Is.
type ConnectError struct {
	Kind   error
	Device string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect %s: %v", e.Device, e.Kind)
	}
	return fmt.Sprintf("connect %s: %v: %v", e.Device, e.Kind, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// SendError is returned by Device.Send.
// Kind is one of the Err* send sentinels and matches with errors.Is.
type SendError struct {
	Kind error
	Err  error
}

func (e *SendError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("send: %v", e.Kind)
	}
	return fmt.Sprintf("send: %v: %v", e.Kind, e.Err)
}

func (e *SendError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
