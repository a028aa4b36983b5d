// Package txn implements the Z-Wave serial API transaction engine: the
// state machine that takes a single outgoing frame through
// acknowledgement, retry, and (for requests that trigger a reply or an
// asynchronous callback) completion.
//
// Engine is not safe for concurrent use. It is driven entirely by the
// driver's single loop goroutine — the loop feeds it frame/control-byte
// events and periodic timer ticks, and nothing else touches its state,
// matching the "transaction state is touched only by the driver thread"
// rule the rest of the core relies on.
package txn

import (
	"fmt"
	"log/slog"
	"time"

	"zwave-go-home/internal/frame"
	"zwave-go-home/internal/transport"
)

// State is the transaction engine's current phase.
type State int

const (
	Idle State = iota
	AwaitingAck
	AwaitingCompletion
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case AwaitingAck:
		return "AwaitingAck"
	case AwaitingCompletion:
		return "AwaitingCompletion"
	default:
		return "Unknown"
	}
}

// MaxTries is the number of times a frame is (re)sent before the
// transaction is abandoned.
const MaxTries = 3

// RetryTimeout is how long the engine waits for an ACK before it resends
// (or gives up after MaxTries), and how long it waits after the ACK for a
// reply and/or callback frame before it fails the transaction.
const RetryTimeout = 2000 * time.Millisecond

// Transaction is one outstanding request and its expected completion.
type Transaction struct {
	Request          frame.Frame
	ExpectedReply    bool // a RESPONSE with the same FuncID completes this leg
	ExpectedCallback bool // an unsolicited REQUEST carrying a session/callback id completes this leg

	Attempts int

	Reply        frame.Frame
	gotReply     bool
	Callback     frame.Frame
	gotCallback  bool
}

// done reports whether every leg this transaction expects has arrived:
// ¬(expectedCallback ∨ expectedReply) once satisfied.
func (t *Transaction) done() bool {
	if t.ExpectedReply && !t.gotReply {
		return false
	}
	if t.ExpectedCallback && !t.gotCallback {
		return false
	}
	return true
}

// Result is handed to the driver when a transaction leaves AwaitingAck or
// AwaitingCompletion, whichever way it ends.
type Result struct {
	Transaction *Transaction
	Err         error // nil on success, non-nil if MaxTries was exhausted
}

// Engine runs one transaction at a time.
type Engine struct {
	tr     transport.Transport
	logger *slog.Logger

	state State
	cur   *Transaction

	retryDeadline time.Time

	onComplete func(Result)
	onBadChecksum func()
}

// New creates an idle Engine writing frames to tr. onComplete is called
// exactly once per transaction, from the driver loop goroutine, when the
// transaction ends and the engine returns to Idle.
func New(tr transport.Transport, logger *slog.Logger, onComplete func(Result)) *Engine {
	return &Engine{tr: tr, logger: logger, state: Idle, onComplete: onComplete}
}

func (e *Engine) State() State { return e.state }
func (e *Engine) Idle() bool   { return e.state == Idle }

// CurrentFuncID reports the function id of the in-flight transaction's
// request, used by the serial-API demultiplexer to match an inbound
// RESPONSE frame to the transaction awaiting it.
func (e *Engine) CurrentFuncID() (byte, bool) {
	if e.cur == nil {
		return 0, false
	}
	return e.cur.Request.FuncID, true
}

// AwaitingReply reports whether the in-flight transaction still needs a
// RESPONSE frame to complete.
func (e *Engine) AwaitingReply() bool {
	return e.cur != nil && e.cur.ExpectedReply && !e.cur.gotReply
}

// AwaitingCallback reports whether the in-flight transaction still needs
// an unsolicited REQUEST (callback) frame to complete.
func (e *Engine) AwaitingCallback() bool {
	return e.cur != nil && e.cur.ExpectedCallback && !e.cur.gotCallback
}

// Begin starts a new transaction. The caller (the queue scheduler) must
// only call this when Idle() is true.
func (e *Engine) Begin(t *Transaction) error {
	if e.state != Idle {
		return fmt.Errorf("txn: Begin called while state is %s", e.state)
	}
	e.cur = t
	e.cur.Attempts = 1
	e.state = AwaitingAck
	e.retryDeadline = time.Now().Add(RetryTimeout)
	if err := frame.WriteFrame(e.tr, t.Request); err != nil {
		return fmt.Errorf("txn: write request: %w", err)
	}
	return nil
}

// OnAck handles an ACK byte from the controller.
func (e *Engine) OnAck() {
	if e.state != AwaitingAck {
		e.logger.Debug("txn: unexpected ACK", "state", e.state)
		return
	}
	if e.cur.done() {
		e.finish(nil)
		return
	}
	e.state = AwaitingCompletion
	e.retryDeadline = time.Now().Add(RetryTimeout)
}

// OnNakOrCan handles a NAK or CAN byte: the controller rejected the
// frame (bad checksum on its end, or collision) and it must be retried.
func (e *Engine) OnNakOrCan() {
	if e.state != AwaitingAck {
		e.logger.Debug("txn: unexpected NAK/CAN", "state", e.state)
		return
	}
	e.retry()
}

// OnReply delivers a RESPONSE frame whose FuncID matches the current
// transaction's request. The caller (the serial-API demultiplexer) is
// responsible for that matching; Engine only tracks completion.
func (e *Engine) OnReply(f frame.Frame) {
	if e.state != AwaitingCompletion || e.cur == nil || !e.cur.ExpectedReply {
		return
	}
	e.cur.Reply = f
	e.cur.gotReply = true
	if e.cur.done() {
		e.finish(nil)
	}
}

// OnCallback delivers an unsolicited REQUEST frame that the serial-API
// demultiplexer has matched to the current transaction's callback/session
// id (e.g. a ZW_SEND_DATA transmit-status callback).
func (e *Engine) OnCallback(f frame.Frame) {
	if e.state != AwaitingCompletion || e.cur == nil || !e.cur.ExpectedCallback {
		return
	}
	e.cur.Callback = f
	e.cur.gotCallback = true
	if e.cur.done() {
		e.finish(nil)
	}
}

// CheckTimeout must be called periodically (from the driver loop's
// select/timer) so a stalled transaction can retry or fail without
// waiting for another inbound byte.
func (e *Engine) CheckTimeout(now time.Time) {
	if e.state == Idle {
		return
	}
	if now.Before(e.retryDeadline) {
		return
	}
	switch e.state {
	case AwaitingAck:
		e.retry()
	case AwaitingCompletion:
		// No retry-by-resend once acked; a stalled reply/callback after
		// ack just fails the transaction, matching the original driver's
		// behavior of not re-sending a frame the controller already ACKed.
		e.finish(fmt.Errorf("txn: timed out awaiting completion"))
	}
}

func (e *Engine) retry() {
	if e.cur.Attempts >= MaxTries {
		e.finish(fmt.Errorf("txn: exhausted %d attempts", MaxTries))
		return
	}
	e.cur.Attempts++
	e.retryDeadline = time.Now().Add(RetryTimeout)
	if err := frame.WriteFrame(e.tr, e.cur.Request); err != nil {
		e.finish(fmt.Errorf("txn: retry write: %w", err))
		return
	}
}

func (e *Engine) finish(err error) {
	t := e.cur
	e.cur = nil
	e.state = Idle
	if e.onComplete != nil {
		e.onComplete(Result{Transaction: t, Err: err})
	}
}
