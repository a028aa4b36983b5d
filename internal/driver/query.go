package driver

import (
	"zwave-go-home/internal/commandclass"
	"zwave-go-home/internal/node"
	"zwave-go-home/internal/notify"
	"zwave-go-home/internal/queue"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/txn"
)

// StartQuery begins (or resumes) nodeID's interrogation pipeline at its
// currently recorded stage.
func (d *Driver) StartQuery(nodeID byte) {
	r := d.nodes.Get(nodeID)
	if r == nil {
		return
	}
	if r.Stage == node.StageNone {
		d.nodes.WithLock(nodeID, func(r *node.Record) { r.Stage = node.StageProtocolInfo })
	}
	d.enqueueQueryStage(nodeID)
}

// enqueueQueryStage pushes the request for nodeID's current stage onto
// the Query queue (diverted to the wake-up queue automatically if the
// node is asleep).
func (d *Driver) enqueueQueryStage(nodeID byte) {
	r := d.nodes.Get(nodeID)
	if r == nil || r.Stage == node.StageComplete {
		return
	}
	tx, ok := d.stageTransaction(nodeID, r.Stage)
	if !ok {
		// Nothing to send for this stage (SecurityReport, Session and
		// Dynamic) — advance past it.
		d.completeStage(nodeID, r.Stage)
		return
	}
	stage := r.Stage
	d.enqueue(queue.Query, nodeID, tx, func(res txn.Result) {
		if res.Err != nil {
			// Retried MaxTries times already inside the engine; give up
			// on this stage rather than looping forever. The node stays
			// at this stage until StartQuery is called for it again.
			d.logger.Warn("query stage failed", "node", nodeID, "stage", stage, "err", res.Err)
			return
		}
		switch stage {
		case node.StageProtocolInfo:
			// ProtocolInfo's answer is the reply itself, so it advances
			// immediately here.
			d.applyProtocolInfo(nodeID, res.Transaction.Reply.Payload)
			d.completeStage(nodeID, stage)
		case node.StageInstances:
			// ZW_REQUEST_NODE_INFO's reply only confirms the request was
			// queued; the actual node information frame (or a
			// NodeInfoReqFailed failure) arrives later via
			// ZW_APPLICATION_UPDATE, handled in dispatch.go.
			d.awaitingNodeInfo = nodeID
		}
		// Every other stage's content arrives via
		// FUNC_ID_APPLICATION_COMMAND_HANDLER (see advanceQueryOnReport).
	})
}

// completeStage advances nodeID past stage and schedules the next one,
// or fires the All/AwakeNodesQueried notifications once every node has
// reached StageComplete.
func (d *Driver) completeStage(nodeID byte, stage node.QueryStage) {
	next := stage.Next()
	d.nodes.WithLock(nodeID, func(r *node.Record) {
		if r.Stage == stage {
			r.Stage = next
			r.StageRetries = 0
		}
	})
	if next == node.StageComplete {
		if d.nodes.AllQueried() {
			d.fifo.Push(notify.Event{Kind: notify.NodeQueriesComplete})
		}
		if d.nodes.AwakeNodesQueried() {
			d.fifo.Push(notify.Event{Kind: notify.EssentialNodeQueriesComplete})
		}
		return
	}
	d.enqueueQueryStage(nodeID)
}

// advanceQueryOnReport is called for every application command-class
// frame; if nodeID's current stage is one that completes on receiving a
// particular command class's report, and this frame is that report,
// the stage advances.
func (d *Driver) advanceQueryOnReport(nodeID byte, ccPayload []byte) {
	r := d.nodes.Get(nodeID)
	if r == nil || len(ccPayload) == 0 {
		return
	}
	stage := r.Stage
	cc := ccPayload[0]
	match := map[node.QueryStage]byte{
		node.StageWakeUp:               commandclass.WakeUp,
		node.StageManufacturerSpecific: commandclass.ManufacturerSpecific,
		node.StageVersions:             commandclass.Version,
		node.StageSecurityReport:       commandclass.Security,
		node.StageAssociations:         commandclass.Association,
	}
	if want, ok := match[stage]; ok && cc == want {
		d.completeStage(nodeID, stage)
	}
}

// applyProtocolInfo parses ZW_GET_NODE_PROTOCOL_INFO's reply into the
// node's Flags and DeviceClass fields.
func (d *Driver) applyProtocolInfo(nodeID byte, payload []byte) {
	if len(payload) < 6 {
		return
	}
	capability := payload[0]
	security := payload[1]
	d.nodes.WithLock(nodeID, func(r *node.Record) {
		r.Flags.Listening = capability&0x80 != 0
		r.Flags.Routing = capability&0x40 != 0
		r.Flags.FrequentlyListens = security&0x60 != 0
		r.Flags.Beaming = security&0x10 != 0
		r.Flags.Security = security&0x01 != 0
		r.DeviceClass.Basic = payload[3]
		r.DeviceClass.Generic = payload[4]
		r.DeviceClass.Specific = payload[5]
	})
}

// stageTransaction builds the outgoing request for stage, if any.
// StageSecurityReport, StageSession and StageDynamic have no request
// here (command-class handlers own their own value refresh), so they
// complete immediately without sending anything.
func (d *Driver) stageTransaction(nodeID byte, stage node.QueryStage) (*txn.Transaction, bool) {
	switch stage {
	case node.StageProtocolInfo:
		return &txn.Transaction{Request: serialapi.GetNodeProtocolInfo(nodeID), ExpectedReply: true}, true
	case node.StageInstances:
		return &txn.Transaction{Request: serialapi.RequestNodeInfo(nodeID), ExpectedReply: true}, true
	case node.StageWakeUp:
		return d.sendCommandClassGet(nodeID, commandclass.WakeUp, 0x05), true // WAKE_UP_INTERVAL_GET
	case node.StageManufacturerSpecific:
		return d.sendCommandClassGet(nodeID, commandclass.ManufacturerSpecific, 0x04), true // MANUFACTURER_SPECIFIC_GET
	case node.StageVersions:
		return d.sendCommandClassGet(nodeID, commandclass.Version, 0x11), true // VERSION_GET
	case node.StageAssociations:
		return d.sendCommandClassGet(nodeID, commandclass.Association, 0x02), true // ASSOCIATION_GET
	default:
		return nil, false
	}
}

// retryNodeInfoRequest is called when ZW_APPLICATION_UPDATE reports
// NodeInfoReqFailed for the node currently awaiting its StageInstances
// reply: it re-sends ZW_REQUEST_NODE_INFO until the request has been sent
// txn.MaxTries times in all, then gives up and leaves the node parked at
// StageInstances.
func (d *Driver) retryNodeInfoRequest() {
	nodeID := d.awaitingNodeInfo
	d.awaitingNodeInfo = 0
	if nodeID == 0 {
		return
	}
	r := d.nodes.Get(nodeID)
	if r == nil || r.Stage != node.StageInstances {
		return
	}
	if r.StageRetries+1 >= txn.MaxTries {
		d.logger.Error("node info request failed, giving up", "node", nodeID, "tries", r.StageRetries+1)
		return
	}
	d.nodes.WithLock(nodeID, func(r *node.Record) { r.StageRetries++ })
	d.enqueueQueryStage(nodeID)
}

// sendCommandClassGet builds a ZW_SEND_DATA transaction carrying a
// single-byte "get" command for the given command class.
func (d *Driver) sendCommandClassGet(nodeID byte, cc byte, cmd byte) *txn.Transaction {
	payload := []byte{cc, cmd}
	f := serialapi.SendData(nodeID, payload, serialapi.TransmitOptionACK|serialapi.TransmitOptionAutoRoute, d.nextCallbackID())
	return &txn.Transaction{Request: f, ExpectedReply: true, ExpectedCallback: true}
}
