package frame

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"zwave-go-home/internal/transport"
)

// Event is one unit the Reader hands to its caller: either a bare control
// byte (ACK/NAK/CAN) or a complete, checksum-verified data Frame.
type Event struct {
	Control byte  // ACK, NAK or CAN when Frame is the zero value; 0 otherwise
	Frame   Frame
	IsFrame bool
}

// LengthByteTimeout and BodyTimeout are the read deadlines the Z-Wave
// serial protocol assumes: the controller must follow SOF with a length
// byte quickly, and the rest of the frame quickly after that.
const (
	LengthByteTimeout = 100 * time.Millisecond
	BodyTimeout       = 500 * time.Millisecond
)

// Reader pulls framed events off a transport, one at a time.
type Reader struct {
	r   *bufio.Reader
	tr  transport.Transport
	bad int // consecutive bad-checksum frames
}

func NewReader(tr transport.Transport) *Reader {
	return &Reader{r: bufio.NewReader(tr), tr: tr}
}

// ErrReadTimeout signals that no byte arrived within a frame's deadline;
// callers treat this the way the driver thread treats a stalled read: log
// and keep polling, never backing off the whole loop.
var ErrReadTimeout = errors.New("frame: read timeout")

// Next blocks for the next control byte or complete frame. Frame.Payload
// is unique; the caller owns it after return.
func (r *Reader) Next() (Event, error) {
	b, err := r.r.ReadByte()
	if err != nil {
		return Event{}, fmt.Errorf("frame: read control byte: %w", err)
	}
	switch b {
	case ACK, NAK, CAN:
		return Event{Control: b}, nil
	case SOF:
		return r.readFrame()
	default:
		// Out-of-frame byte: it is discarded and reported as an error,
		// and the next call resyncs on the following byte. The driver's
		// read loop skips it without counting it.
		return Event{}, fmt.Errorf("frame: out-of-frame byte 0x%02X", b)
	}
}

func (r *Reader) readFrame() (Event, error) {
	if err := r.tr.SetReadDeadline(time.Now().Add(LengthByteTimeout)); err != nil {
		return Event{}, fmt.Errorf("frame: set length deadline: %w", err)
	}
	length, err := r.r.ReadByte()
	if err != nil {
		return Event{}, fmt.Errorf("frame: read length byte: %w", ErrReadTimeout)
	}

	if err := r.tr.SetReadDeadline(time.Now().Add(BodyTimeout)); err != nil {
		return Event{}, fmt.Errorf("frame: set body deadline: %w", err)
	}
	body := make([]byte, int(length)+1)
	if _, err := io.ReadFull(r.r, body); err != nil {
		return Event{}, fmt.Errorf("frame: read body: %w", ErrReadTimeout)
	}

	f, err := Decode(length, body)
	if err != nil {
		r.bad++
		return Event{}, err
	}
	r.bad = 0
	return Event{Frame: f, IsFrame: true}, nil
}

// BadChecksumStreak reports how many checksum failures have happened
// back to back since the last frame that decoded cleanly.
func (r *Reader) BadChecksumStreak() int { return r.bad }
