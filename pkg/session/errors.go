package session

import (
	"errors"
	"fmt"
)

// ErrNotInited is returned by Perform when no usable client exists.
var ErrNotInited = errors.New("session not initialized")

// TransportError is a connection, send or receive failure. The client has
// been torn down and the next EnsureSession rebuilds it.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError is a well-formed response this device will not consume:
// a non-2xx status or a body it cannot buffer. The session stays usable.
type ProtocolError struct {
	Status        int
	ContentLength int64
	Limit         int
	Reason        string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol: %s (status=%d, content-length=%d, limit=%d)",
		e.Reason, e.Status, e.ContentLength, e.Limit)
}
