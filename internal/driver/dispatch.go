package driver

import (
	"zwave-go-home/internal/controllercmd"
	"zwave-go-home/internal/frame"
	"zwave-go-home/internal/node"
	"zwave-go-home/internal/notify"
	"zwave-go-home/internal/serialapi"
)

// handleEvent is called once per event the driver loop reads off the
// wire: a bare control byte feeds the transaction engine directly; a
// complete frame is ACKed (every SOF frame must be) and then
// demultiplexed by function id.
func (d *Driver) handleEvent(ev frame.Event) {
	switch {
	case ev.Control == frame.ACK:
		d.engine.OnAck()
	case ev.Control == frame.NAK || ev.Control == frame.CAN:
		d.engine.OnNakOrCan()
	case ev.IsFrame:
		if err := frame.WriteControl(d.tr, frame.ACK); err != nil {
			d.logger.Error("ack frame", "err", err)
		}
		d.dispatch(ev.Frame)
	}
}

func (d *Driver) dispatch(f frame.Frame) {
	switch serialapi.FuncID(f.FuncID) {
	case serialapi.FuncApplicationCommandHandler:
		d.handleApplicationCommand(f.Payload)
		return
	case serialapi.FuncApplicationUpdate:
		d.handleApplicationUpdate(f.Payload)
		return
	}

	if f.Type == frame.TypeResponse {
		if cur, ok := d.engine.CurrentFuncID(); ok && cur == f.FuncID && d.engine.AwaitingReply() {
			d.engine.OnReply(f)
			return
		}
	}
	if f.Type == frame.TypeRequest {
		// A callback carries, as its first payload byte, the callback id
		// the request sent as the last byte of its own payload.
		if cur, ok := d.engine.CurrentFuncID(); ok && cur == f.FuncID && d.engine.AwaitingCallback() &&
			d.pending != nil && len(f.Payload) >= 1 && len(d.pending.tx.Request.Payload) >= 1 &&
			f.Payload[0] == d.pending.tx.Request.Payload[len(d.pending.tx.Request.Payload)-1] {
			d.engine.OnCallback(f)
			return
		}
		if d.ctrl.Active() != controllercmd.None && d.ctrlCallbackID != 0 &&
			len(f.Payload) >= 1 && f.Payload[0] == d.ctrlCallbackID &&
			d.handleControllerCallback(f) {
			return
		}
	}

	// Unsolicited and not claimed by the in-flight transaction or the
	// active controller command: surface it as a generic notification
	// rather than silently dropping it.
	d.fifo.Push(notify.Event{Kind: notify.Notification, Data: f})
}

// handleApplicationCommand parses FUNC_ID_APPLICATION_COMMAND_HANDLER's
// payload (rxStatus, source node id, command-class length, command-class
// bytes, rssi) and routes it to the command-class registry, the
// promiscuous handler (if any), and the node query pipeline if this
// report was the one the current stage was waiting on.
func (d *Driver) handleApplicationCommand(payload []byte) {
	if len(payload) < 3 {
		return
	}
	nodeID := payload[1]
	ccLen := int(payload[2])
	if len(payload) < 3+ccLen {
		return
	}
	ccPayload := payload[3 : 3+ccLen]

	if d.promiscuous != nil {
		d.promiscuous(nodeID, ccPayload)
	}

	handled, err := d.cc.Dispatch(nodeID, 0, ccPayload)
	if err != nil {
		d.logger.Warn("command class handler error", "node", nodeID, "err", err)
	}
	if !handled {
		d.logger.Debug("unhandled command class frame", "node", nodeID)
	}

	d.nodes.WithLock(nodeID, func(r *node.Record) { r.Awake = true })
	d.advanceQueryOnReport(nodeID, ccPayload)
}

// handleApplicationUpdate parses ZW_APPLICATION_UPDATE, which carries
// node-information-frame updates, SUC id changes, and routing updates
// delivered asynchronously rather than as a transaction's own reply.
func (d *Driver) handleApplicationUpdate(payload []byte) {
	if len(payload) < 1 {
		return
	}
	status := payload[0]
	const (
		updateStateNodeInfoReceived   = 0x84
		updateStateNodeInfoReqFailed  = 0x81
		updateStateNewIDAssigned      = 0x40
		updateStateDeleteDone         = 0x20
		updateStateSUCIDChanged       = 0x10
	)
	switch status {
	case updateStateNodeInfoReceived:
		if len(payload) >= 2 {
			nodeID := payload[1]
			d.nodes.WithLock(nodeID, func(r *node.Record) { r.Awake = true })
			d.fifo.Push(notify.Event{Kind: notify.NodeNaming, NodeID: nodeID})
			if d.awaitingNodeInfo == nodeID {
				d.awaitingNodeInfo = 0
				d.completeStage(nodeID, node.StageInstances)
			}
		}
	case updateStateNodeInfoReqFailed:
		// The node info request may be sent up to MaxTries times in all
		// before the driver gives up on this round of interrogation.
		d.retryNodeInfoRequest()
	case updateStateNewIDAssigned:
		if len(payload) >= 2 {
			d.fifo.Push(notify.Event{Kind: notify.NodeNew, NodeID: payload[1]})
		}
	case updateStateDeleteDone:
		if len(payload) >= 2 {
			nodeID := payload[1]
			d.nodes.Remove(nodeID)
			d.sched.RemoveNode(nodeID)
			d.pollist.RemoveNode(nodeID)
			d.fifo.Push(notify.Event{Kind: notify.NodeRemoved, NodeID: nodeID})
		}
	case updateStateSUCIDChanged:
		d.fifo.Push(notify.Event{Kind: notify.Notification, Data: payload})
	}
}
