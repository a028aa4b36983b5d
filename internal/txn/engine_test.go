package txn

import (
	"bytes"
	"io"
	"log/slog"
	"testing"
	"time"

	"zwave-go-home/internal/frame"
)

// discardTransport collects writes and never produces reads; Engine
// doesn't read from it directly (the driver loop feeds events in), so a
// bytes.Buffer plus no-op deadline is enough.
type discardTransport struct{ bytes.Buffer }

func (discardTransport) Close() error                       { return nil }
func (discardTransport) SetReadDeadline(time.Time) error     { return nil }
func (d *discardTransport) Read(p []byte) (int, error)       { return 0, io.EOF }

func newTestEngine(onComplete func(Result)) (*Engine, *discardTransport) {
	tr := &discardTransport{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(tr, logger, onComplete), tr
}

func TestBeginRequiresIdle(t *testing.T) {
	e, _ := newTestEngine(nil)
	tx := &Transaction{Request: frame.Frame{FuncID: 0x02}}
	if err := e.Begin(tx); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if err := e.Begin(tx); err == nil {
		t.Fatal("expected error beginning a second transaction while not idle")
	}
}

func TestAckOnlyCompletesImmediately(t *testing.T) {
	var results []Result
	e, _ := newTestEngine(func(r Result) { results = append(results, r) })

	tx := &Transaction{Request: frame.Frame{FuncID: 0x02}}
	if err := e.Begin(tx); err != nil {
		t.Fatal(err)
	}
	e.OnAck()
	if e.State() != Idle {
		t.Errorf("state = %s, want Idle", e.State())
	}
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("results = %+v, want one successful result", results)
	}
}

func TestReplyAndCallbackBothRequired(t *testing.T) {
	var results []Result
	e, _ := newTestEngine(func(r Result) { results = append(results, r) })

	tx := &Transaction{Request: frame.Frame{FuncID: 0x13}, ExpectedReply: true, ExpectedCallback: true}
	e.Begin(tx)
	e.OnAck()
	if e.State() != AwaitingCompletion {
		t.Fatalf("state = %s, want AwaitingCompletion", e.State())
	}

	e.OnReply(frame.Frame{FuncID: 0x13})
	if len(results) != 0 {
		t.Fatal("should not complete on reply alone when callback is also expected")
	}

	e.OnCallback(frame.Frame{FuncID: 0x13})
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("results = %+v, want completion once both arrive", results)
	}
}

func TestNakRetriesUpToMaxTries(t *testing.T) {
	var results []Result
	e, _ := newTestEngine(func(r Result) { results = append(results, r) })

	tx := &Transaction{Request: frame.Frame{FuncID: 0x02}}
	e.Begin(tx)

	for i := 0; i < MaxTries-1; i++ {
		e.OnNakOrCan()
		if e.State() != AwaitingAck {
			t.Fatalf("attempt %d: state = %s, want AwaitingAck", i, e.State())
		}
	}
	e.OnNakOrCan() // this is the attempt that exhausts MaxTries
	if e.State() != Idle {
		t.Errorf("state = %s, want Idle after exhausting retries", e.State())
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Fatalf("results = %+v, want one failed result", results)
	}
}

func TestCheckTimeoutRetriesAwaitingAck(t *testing.T) {
	e, _ := newTestEngine(nil)
	tx := &Transaction{Request: frame.Frame{FuncID: 0x02}}
	e.Begin(tx)
	e.CheckTimeout(time.Now().Add(RetryTimeout + time.Millisecond))
	if tx.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 after one timeout-triggered retry", tx.Attempts)
	}
}

func TestCheckTimeoutFailsAwaitingCompletion(t *testing.T) {
	var results []Result
	e, _ := newTestEngine(func(r Result) { results = append(results, r) })
	tx := &Transaction{Request: frame.Frame{FuncID: 0x13}, ExpectedReply: true}
	e.Begin(tx)
	e.OnAck()
	e.CheckTimeout(time.Now().Add(RetryTimeout + time.Millisecond))
	if e.State() != Idle {
		t.Errorf("state = %s, want Idle", e.State())
	}
	if len(results) != 1 || results[0].Err == nil {
		t.Fatal("expected a failure result after completion timeout")
	}
}
