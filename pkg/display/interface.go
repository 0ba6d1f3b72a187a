package display

import "errors"

// ErrNotConnected is returned by Write and Flush on a closed link.
var ErrNotConnected = errors.New("display link not connected")

// Link defines the outbound channel to a display controller (real or mocked).
type Link interface {
	Connect() error
	Close() error
	Write(p []byte) (int, error)
	Flush() error
	IsConnected() bool
}

// Ensure Serial implements Link.
var _ Link = (*Serial)(nil)

// Ensure MQTT implements Link.
var _ Link = (*MQTT)(nil)

// Ensure Mock implements Link.
var _ Link = (*Mock)(nil)
