package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport is the real backend: a USB/UART-attached Z-Wave
// controller (UZB stick, GPIO-wired module, etc).
type SerialTransport struct {
	port     serial.Port
	portName string
}

// OpenSerial opens portName at baud (typically 115200 for Z-Wave
// controllers) and asserts DTR/RTS the way most USB controller sticks
// expect on enumeration.
func OpenSerial(portName string, baud int) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	if err := port.SetDTR(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("set DTR on %s: %w", portName, err)
	}
	if err := port.SetRTS(true); err != nil {
		port.Close()
		return nil, fmt.Errorf("set RTS on %s: %w", portName, err)
	}
	return &SerialTransport{port: port, portName: portName}, nil
}

func (s *SerialTransport) Read(p []byte) (int, error)  { return s.port.Read(p) }
func (s *SerialTransport) Write(p []byte) (int, error) { return s.port.Write(p) }
func (s *SerialTransport) Close() error                { return s.port.Close() }

// SetReadDeadline maps onto go.bug.st/serial's read timeout, which (unlike
// net.Conn) is a duration set once rather than an absolute deadline; we
// convert by measuring against time.Now.
func (s *SerialTransport) SetReadDeadline(t time.Time) error {
	d := time.Until(t)
	if d < 0 {
		d = 0
	}
	return s.port.SetReadTimeout(d)
}

func (s *SerialTransport) String() string { return s.portName }
