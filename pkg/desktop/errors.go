package desktop

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a call is attempted against a
	// backend that is not connected. No I/O is attempted.
	ErrNotConnected = errors.New("desktop: not connected")

	// ErrTimeout is returned when a request's deadline elapses before its
	// response arrives. The request is removed from the outstanding set.
	ErrTimeout = errors.New("desktop: request timed out")

	// ErrDisconnected is returned to every outstanding request when the
	// subprocess exits or the client is disconnected.
	ErrDisconnected = errors.New("desktop: subprocess disconnected")
)

// ConnectionError reports a failure to establish the backend: the subprocess
// could not start, the platform is unsupported, or the handshake did not
// complete in time.
type ConnectionError struct {
	Stage string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("desktop: connect failed during %s: %v", e.Stage, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
