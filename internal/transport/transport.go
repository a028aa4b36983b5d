// Package transport abstracts the byte stream between the driver and a
// Z-Wave controller, so the core never depends directly on a serial
// library or a particular OS device path.
package transport

import (
	"io"
	"time"
)

// Transport is a duplex byte stream with per-operation read deadlines,
// satisfied by the serial backend and by an in-memory pipe in tests.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
	SetReadDeadline(t time.Time) error
}
