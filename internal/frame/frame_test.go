package frame

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestChecksumKnownValue(t *testing.T) {
	// REQUEST, func 0x02 (SERIAL_API_GET_INIT_DATA), empty payload.
	length := byte(2)
	chk := Checksum(length, TypeRequest, 0x02, nil)
	want := byte(0xFF) ^ length ^ byte(TypeRequest) ^ 0x02
	if chk != want {
		t.Errorf("Checksum() = 0x%02X, want 0x%02X", chk, want)
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	f := Frame{Type: TypeRequest, FuncID: 0x13, Payload: []byte{0x02, 0x05, 0x25, 0x01, 0xFF, 0x05}}
	encoded := f.Encode()

	if encoded[0] != SOF {
		t.Fatalf("first byte = 0x%02X, want SOF", encoded[0])
	}
	length := encoded[1]
	body := encoded[2:]
	decoded, err := Decode(length, body)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.Type != f.Type || decoded.FuncID != f.FuncID {
		t.Errorf("decoded = %+v, want type/funcID from %+v", decoded, f)
	}
	if !bytes.Equal(decoded.Payload, f.Payload) {
		t.Errorf("decoded payload = %X, want %X", decoded.Payload, f.Payload)
	}
}

func TestDecodeBadChecksum(t *testing.T) {
	f := Frame{Type: TypeResponse, FuncID: 0x02}
	encoded := f.Encode()
	encoded[len(encoded)-1] ^= 0xFF
	_, err := Decode(encoded[1], encoded[2:])
	if err == nil {
		t.Fatal("expected checksum error")
	}
}

func TestDecodeLengthMismatch(t *testing.T) {
	_, err := Decode(5, []byte{0x01, 0x02})
	if err == nil {
		t.Fatal("expected length mismatch error")
	}
}

// pipeTransport adapts a net.Conn half to the Transport interface for
// tests; no deadline translation quirks since net.Conn already supports
// absolute deadlines.
type pipeTransport struct{ net.Conn }

func (p pipeTransport) SetReadDeadline(t time.Time) error { return p.Conn.SetReadDeadline(t) }

func TestReaderNextControlAndFrame(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	r := NewReader(pipeTransport{client})
	done := make(chan struct{})
	var gotACK, gotFrame bool
	var frameErr error

	go func() {
		defer close(done)
		ev, err := r.Next()
		if err != nil {
			frameErr = err
			return
		}
		gotACK = ev.Control == ACK

		ev2, err := r.Next()
		if err != nil {
			frameErr = err
			return
		}
		gotFrame = ev2.IsFrame && ev2.Frame.FuncID == 0x02
	}()

	server.Write([]byte{ACK})
	f := Frame{Type: TypeResponse, FuncID: 0x02, Payload: []byte{0x01}}
	server.Write(f.Encode())

	<-done
	if frameErr != nil {
		t.Fatalf("unexpected error: %v", frameErr)
	}
	if !gotACK {
		t.Error("expected ACK control byte first")
	}
	if !gotFrame {
		t.Error("expected decoded frame second")
	}
}
