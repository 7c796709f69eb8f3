package serialmux

import "io"

// SerialPorter is the minimal interface needed for a serial port, so the
// mux can run over a pipe in tests.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}
