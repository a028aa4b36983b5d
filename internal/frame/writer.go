package frame

import (
	"fmt"

	"zwave-go-home/internal/transport"
)

// WriteControl sends a single bare control byte (ACK, NAK or CAN).
func WriteControl(tr transport.Transport, b byte) error {
	if _, err := tr.Write([]byte{b}); err != nil {
		return fmt.Errorf("frame: write control byte 0x%02X: %w", b, err)
	}
	return nil
}

// WriteFrame sends f as a complete SOF frame.
func WriteFrame(tr transport.Transport, f Frame) error {
	if _, err := tr.Write(f.Encode()); err != nil {
		return fmt.Errorf("frame: write frame funcID=0x%02X: %w", f.FuncID, err)
	}
	return nil
}
