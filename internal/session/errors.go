package session

import (
	"errors"
	"fmt"
)

// Reason classifies why a connect attempt failed.
type Reason string

const (
	ReasonTokenFetchFailed     Reason = "token_fetch_failed"
	ReasonTransportUnreachable Reason = "transport_unreachable"
	ReasonAuthRejected         Reason = "auth_rejected"
)

// ConnectError is returned by Connect with a stable reason code; the wrapped
// error carries the transport or provider detail.
type ConnectError struct {
	Reason Reason
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("connect failed: %s", e.Reason)
	}
	return fmt.Sprintf("connect failed (%s): %v", e.Reason, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

var (
	// ErrNotDisconnected means Connect was called on a session that is
	// already connecting or connected.
	ErrNotDisconnected = errors.New("session is not disconnected")

	// ErrNotConnected gates microphone operations on an inactive session.
	ErrNotConnected = errors.New("session is not connected")

	// ErrConnectAborted means the session was torn down while a connect
	// attempt was still resolving; the attempt's result was discarded.
	ErrConnectAborted = errors.New("connect aborted by disconnect")
)
