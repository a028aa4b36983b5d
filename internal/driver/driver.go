// Package driver wires the frame codec, transaction engine, queue
// scheduler, node table, controller-command state machine, and poll loop
// into the running network driver: it owns the driver thread (spec §2),
// the single goroutine that reads frames, drives transactions, and pops
// queued work.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"zwave-go-home/internal/commandclass"
	"zwave-go-home/internal/config"
	"zwave-go-home/internal/controllercmd"
	"zwave-go-home/internal/frame"
	"zwave-go-home/internal/node"
	"zwave-go-home/internal/notify"
	"zwave-go-home/internal/persist"
	"zwave-go-home/internal/poll"
	"zwave-go-home/internal/queue"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/stats"
	"zwave-go-home/internal/transport"
	"zwave-go-home/internal/txn"
)

// tickInterval bounds how long the driver loop can block reading a
// control byte before it wakes up anyway to service queued work and
// retry timers — the Z-Wave wire protocol gives no deadline for a bare
// control byte, so the loop must impose its own.
const tickInterval = 50 * time.Millisecond

// PromiscuousHandler receives every application-command-class frame the
// driver decodes, regardless of whether any command class handler is
// registered for it. The core never interprets the bytes itself (spec
// Open Question (b)).
type PromiscuousHandler func(nodeID byte, payload []byte)

// workItem is what the scheduler's Item.Payload holds for every entry
// the driver itself pushes.
type workItem struct {
	tx       *txn.Transaction
	nodeID   byte
	onResult func(txn.Result)
}

// Driver is the running network driver.
type Driver struct {
	tr     transport.Transport
	reader *frame.Reader
	engine *txn.Engine

	sched   *queue.Scheduler
	nodes   *node.Table
	ctrl    *controllercmd.Machine
	cc      *commandclass.Registry
	pollist *poll.List

	fifo *notify.FIFO
	hub  *notify.Hub

	stats *stats.Store
	opts  config.Options

	homeID uint32
	nodeID byte

	logger *slog.Logger

	pending     *workItem
	promiscuous PromiscuousHandler
	callbackSeq byte

	// ctrlCallbackID is the callback id of the controller command
	// currently active, if any: subsequent unsolicited REQUEST frames
	// carrying this id as their first payload byte are routed to
	// handleControllerCallback instead of being treated as generic
	// unsolicited events, since inclusion/exclusion-style commands
	// stream several status updates under one callback id rather than
	// completing on the first one.
	ctrlCallbackID byte
	// pendingNewNode carries the node id an ADDING_SLAVE/REMOVING_SLAVE
	// status reported, between that status and the terminal DONE.
	pendingNewNode byte
	// awaitingNodeInfo is the node id a StageInstances REQUEST_NODE_INFO
	// call is outstanding for, so a NodeInfoReqFailed ApplicationUpdate
	// knows which node's query stage to retry.
	awaitingNodeInfo byte
}

// New constructs a Driver. The caller still must call Run to start the
// driver thread.
func New(tr transport.Transport, opts config.Options, st *stats.Store, logger *slog.Logger) *Driver {
	d := &Driver{
		tr:      tr,
		sched:   queue.New(),
		nodes:   node.NewTable(),
		ctrl:    controllercmd.New(),
		cc:      commandclass.NewRegistry(),
		pollist: poll.NewList(),
		fifo:    notify.NewFIFO(),
		hub:     notify.NewHub(),
		stats:   st,
		opts:    opts,
		logger:  logger.With("component", "driver"),
	}
	d.reader = frame.NewReader(tr)
	d.engine = txn.New(tr, d.logger, d.onTxnComplete)
	return d
}

// Nodes exposes the node table to read-only callers (e.g. a web/API layer).
func (d *Driver) Nodes() *node.Table { return d.nodes }

// CommandClasses exposes the command-class registry so an embedder can
// register handlers (Go-native or Lua-scripted) before or after Run.
func (d *Driver) CommandClasses() *commandclass.Registry { return d.cc }

// Notifications exposes the hub sinks attach to.
func (d *Driver) Notifications() *notify.Hub { return d.hub }

// Polling exposes the poll list for EnablePoll/DisablePoll callers.
func (d *Driver) Polling() *poll.List { return d.pollist }

// SetPromiscuousHandler installs a pass-through handler for every
// application frame, independent of command-class dispatch.
func (d *Driver) SetPromiscuousHandler(h PromiscuousHandler) { d.promiscuous = h }

// HomeID and OwnNodeID report the identity learned during Start.
func (d *Driver) HomeID() uint32  { return d.homeID }
func (d *Driver) OwnNodeID() byte { return d.nodeID }

func (d *Driver) nextCallbackID() byte {
	d.callbackSeq++
	if d.callbackSeq == 0 {
		d.callbackSeq = 1
	}
	return d.callbackSeq
}

// Identify performs the MEMORY_GET_ID handshake synchronously, learning
// this controller's home id and own node id. It must run before Start,
// and before any persisted configuration is loaded: the config file is
// keyed by home id, so the home id has to be known first, but loading it
// must in turn happen before Start creates any node from the init-data
// bitmap — otherwise a restored node's query stage and device class
// would be clobbered back to a freshly-discovered, unqueried node.
func (d *Driver) Identify(ctx context.Context) error {
	idFrame, err := d.syncRequest(ctx, serialapi.MemoryGetID())
	if err != nil {
		return fmt.Errorf("driver: MEMORY_GET_ID: %w", err)
	}
	if len(idFrame.Payload) < 5 {
		return fmt.Errorf("driver: MEMORY_GET_ID: short reply")
	}
	d.homeID = uint32(idFrame.Payload[0])<<24 | uint32(idFrame.Payload[1])<<16 | uint32(idFrame.Payload[2])<<8 | uint32(idFrame.Payload[3])
	d.nodeID = idFrame.Payload[4]
	return nil
}

// RestoreNodes pre-populates the node table from a loaded persisted
// config, before SERIAL_API_GET_INIT_DATA's bitmap walk runs. A restored
// node keeps the query stage it was persisted with (StageComplete if the
// stored value is out of range), so it isn't re-queried from scratch
// just because the bitmap also reports it present.
func (d *Driver) RestoreNodes(cfg persist.NetworkConfig) {
	for _, nc := range cfg.Nodes {
		stage := node.QueryStage(nc.Stage)
		if stage < node.StageNone || stage > node.StageComplete {
			stage = node.StageComplete
		}
		d.nodes.Add(nc.ID)
		d.nodes.WithLock(nc.ID, func(r *node.Record) {
			r.DeviceClass.Basic = nc.Basic
			r.DeviceClass.Generic = nc.Generic
			r.DeviceClass.Specific = nc.Specific
			r.Stage = stage
		})
	}
}

// RestoreButtonMap re-applies a persisted button-id -> virtual-node-id
// map onto the node table, for nodes already known (typically just
// restored via RestoreNodes or already present from the bitmap).
func (d *Driver) RestoreButtonMap(m persist.ButtonMap) {
	for _, nb := range m.Nodes {
		if d.nodes.Get(nb.ID) == nil {
			continue
		}
		for _, b := range nb.Buttons {
			d.nodes.WithLock(nb.ID, func(r *node.Record) { r.ButtonMap[b.ID] = b.VirtualNodeID })
		}
	}
}

// Start performs the SERIAL_API_GET_INIT_DATA handshake synchronously
// before Run's loop begins, matching the original driver's startup
// sequence. It calls Identify itself if the caller hasn't already, so
// callers that don't need to restore persisted config first can still
// call Start alone.
func (d *Driver) Start(ctx context.Context) error {
	if d.homeID == 0 {
		if err := d.Identify(ctx); err != nil {
			return err
		}
	}

	initFrame, err := d.syncRequest(ctx, serialapi.GetInitData())
	if err != nil {
		return fmt.Errorf("driver: SERIAL_API_GET_INIT_DATA: %w", err)
	}
	d.loadNodeBitmap(initFrame.Payload)

	d.fifo.Push(notify.Event{Kind: notify.DriverReady, Data: d.homeID})
	return nil
}

// loadNodeBitmap parses SERIAL_API_GET_INIT_DATA's node bitmap (a 29-byte
// bitmap starting at payload offset 3 in the classic Serial API layout)
// and creates a table entry, at StageNone, for every node the controller
// already knows about that isn't already present — a node RestoreNodes
// already populated from persisted config keeps its restored state.
func (d *Driver) loadNodeBitmap(payload []byte) {
	if len(payload) < 3+29 {
		return
	}
	bitmap := payload[3 : 3+29]
	for id := byte(1); int(id) <= node.MaxNodeID; id++ {
		idx := (id - 1) / 8
		bit := byte(1) << ((id - 1) % 8)
		if bitmap[idx]&bit != 0 && d.nodes.Get(id) == nil {
			d.nodes.Add(id)
		}
	}
}

// syncRequest is used only during Start, before the driver loop is
// running: it writes the frame and blocks directly on the reader for its
// ACK and RESPONSE, bypassing the scheduler entirely.
func (d *Driver) syncRequest(ctx context.Context, f frame.Frame) (frame.Frame, error) {
	tx := &txn.Transaction{Request: f, ExpectedReply: true}
	if err := d.engine.Begin(tx); err != nil {
		return frame.Frame{}, err
	}
	for {
		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		default:
		}
		if err := d.tr.SetReadDeadline(time.Now().Add(tickInterval)); err != nil {
			return frame.Frame{}, err
		}
		ev, err := d.reader.Next()
		now := time.Now()
		if err == nil {
			d.consumeSync(tx, ev)
		}
		d.engine.CheckTimeout(now)
		if d.engine.Idle() {
			if tx.Attempts == 0 {
				return frame.Frame{}, fmt.Errorf("driver: transaction aborted")
			}
			return tx.Reply, nil
		}
	}
}

func (d *Driver) consumeSync(tx *txn.Transaction, ev frame.Event) {
	switch {
	case ev.Control == frame.ACK:
		d.engine.OnAck()
	case ev.Control == frame.NAK || ev.Control == frame.CAN:
		d.engine.OnNakOrCan()
	case ev.IsFrame:
		frame.WriteControl(d.tr, frame.ACK)
		if ev.Frame.Type == frame.TypeResponse {
			d.engine.OnReply(ev.Frame)
		}
	}
}

// Run is the driver thread: it blocks until ctx is cancelled, waiting on
// whichever of {exit, transport data, a queue becoming ready} occurs
// first, then driving the transaction engine and popping queued work.
// The actual byte-level read happens on a helper goroutine so this
// select can also wake on the scheduler's readiness channel; every
// write and all transaction/queue state mutation still happens here, on
// this single goroutine.
func (d *Driver) Run(ctx context.Context) {
	events := make(chan frame.Event, 8)
	go d.readLoop(ctx, events)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if ok {
				d.handleEvent(ev)
			}
		case <-d.sched.Ready():
		case <-ticker.C:
		}
		d.engine.CheckTimeout(time.Now())
		d.pump()
		notify.DrainTo(d.fifo, d.hub)
	}
}

// readLoop owns the only blocking read on the transport: it repeatedly
// reads one control byte or frame and forwards it to events, so Run's
// select can wait on transport data alongside queue readiness instead of
// polling. It never writes to the transport — writes stay on Run's
// goroutine via the transaction engine.
func (d *Driver) readLoop(ctx context.Context, events chan<- frame.Event) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := d.tr.SetReadDeadline(time.Now().Add(tickInterval)); err != nil {
			d.logger.Error("set read deadline", "err", err)
			return
		}
		ev, err := d.reader.Next()
		if err != nil {
			if errors.Is(err, frame.ErrBadChecksum) {
				d.stats.Incr(stats.BadChecksumCount, 1)
			}
			continue
		}
		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// pump starts the next queued transaction if the engine is idle.
func (d *Driver) pump() {
	if !d.engine.Idle() {
		return
	}
	item, ok := d.sched.Pop()
	if !ok {
		return
	}
	wi, ok := item.Payload.(*workItem)
	if !ok || wi == nil {
		return
	}
	d.pending = wi
	if err := d.engine.Begin(wi.tx); err != nil {
		d.logger.Error("begin transaction", "err", err)
		d.pending = nil
	}
}

func (d *Driver) onTxnComplete(res txn.Result) {
	if res.Err != nil {
		d.stats.Incr(stats.RetryCount, uint64(res.Transaction.Attempts-1))
	} else if d.opts.NotifyTransactions {
		nodeID := byte(0)
		if d.pending != nil {
			nodeID = d.pending.nodeID
		}
		d.fifo.Push(notify.Event{Kind: notify.MsgComplete, NodeID: nodeID})
	}
	if d.pending != nil && d.pending.onResult != nil {
		d.pending.onResult(res)
	}
	d.pending = nil
}

// divertAsleep reports whether nodeID is currently asleep and
// non-listening, so Push should route its item to the wake-up queue.
func (d *Driver) divertAsleep(nodeID byte) bool {
	r := d.nodes.Get(nodeID)
	if r == nil {
		return false
	}
	if d.opts.AssumeAwake {
		return false
	}
	return !r.Flags.Listening && !r.Awake
}

// enqueue pushes a transaction onto the scheduler at the given priority.
func (d *Driver) enqueue(priority queue.Priority, nodeID byte, tx *txn.Transaction, onResult func(txn.Result)) {
	d.sched.Push(queue.Item{
		Priority: priority,
		NodeID:   nodeID,
		Payload:  &workItem{tx: tx, nodeID: nodeID, onResult: onResult},
	}, d.divertAsleep)
}

// WakeNode migrates nodeID's parked wake-up queue items back onto their
// normal queues; the wake-up command-class handler calls this when it
// observes the node's "awake" notification frame.
func (d *Driver) WakeNode(nodeID byte) {
	d.nodes.WithLock(nodeID, func(r *node.Record) { r.Awake = true })
	d.sched.MoveWakeUpQueueToSendQueue(nodeID)
}

// SleepNode marks nodeID as asleep again, so future Send/Query/Poll
// items divert to its wake-up queue until the next WakeNode.
func (d *Driver) SleepNode(nodeID byte) {
	d.nodes.WithLock(nodeID, func(r *node.Record) { r.Awake = false })
}

// Stats exposes the durable counters store.
func (d *Driver) Stats() *stats.Store { return d.stats }
