package serialmux

import "go.bug.st/serial"

// Open creates a SerialMux backed by the serial device at path.
func Open(path string, opts PortOptions) (*SerialMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	opsf("opened serial port %s at %d baud", path, mode.BaudRate)
	return NewSerialMux[serial.Port](port), nil
}
