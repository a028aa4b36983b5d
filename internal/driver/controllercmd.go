package driver

import (
	"errors"
	"fmt"

	"zwave-go-home/internal/controllercmd"
	"zwave-go-home/internal/frame"
	"zwave-go-home/internal/node"
	"zwave-go-home/internal/notify"
	"zwave-go-home/internal/persist"
	"zwave-go-home/internal/queue"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/txn"
)

// Add/remove node mode bytes, as ZW_ADD_NODE_TO_NETWORK and
// ZW_REMOVE_NODE_FROM_NETWORK expect them.
const (
	NodeModeAny        byte = 0x01
	NodeModeController byte = 0x02
	NodeModeSlave      byte = 0x03
	NodeModeStop       byte = 0x05
	NodeModeStopFailed byte = 0x06
)

// Status bytes ZW_ADD_NODE_TO_NETWORK, ZW_REMOVE_NODE_FROM_NETWORK,
// ZW_CREATE_NEW_PRIMARY and ZW_CONTROLLER_CHANGE all report under the
// same callback id, one update at a time, as the operation progresses.
const (
	addNodeStatusLearnReady       byte = 0x01
	addNodeStatusNodeFound        byte = 0x02
	addNodeStatusAddingSlave      byte = 0x03
	addNodeStatusAddingController byte = 0x04
	addNodeStatusProtocolDone     byte = 0x05
	addNodeStatusDone             byte = 0x06
	addNodeStatusFailed           byte = 0x07
)

// ControllerCommands exposes the controller-command state machine so an
// embedder can inspect what's currently running.
func (d *Driver) ControllerCommands() *controllercmd.Machine { return d.ctrl }

// beginSyncControllerCommand funnels the one-shot controller commands
// that complete on a single reply or callback frame: the transaction
// engine itself drives Idle -> AwaitingAck -> (AwaitingCompletion) ->
// Idle, and onDone interprets the outcome.
func (d *Driver) beginSyncControllerCommand(kind controllercmd.Kind, nodeID byte, cb controllercmd.Callback, ctx interface{}, build func(callbackID byte) (*txn.Transaction, error), onDone func(res txn.Result)) error {
	if err := d.ctrl.Begin(kind, nodeID, cb, ctx); err != nil {
		return err
	}
	tx, err := build(d.nextCallbackID())
	if err != nil {
		d.ctrl.Finish(controllercmd.Failed, nodeID)
		return err
	}
	d.enqueue(queue.Command, nodeID, tx, onDone)
	return nil
}

// beginAsyncControllerCommand starts a command whose real progress
// arrives as a stream of unsolicited REQUEST frames sharing one callback
// id (inclusion, exclusion, replication, neighbor updates, ...): the
// transaction here only carries the frame to the ACK, and
// handleControllerCallback (see dispatch.go) picks up every status
// update that follows.
func (d *Driver) beginAsyncControllerCommand(kind controllercmd.Kind, nodeID byte, cb controllercmd.Callback, ctx interface{}, build func(callbackID byte) (*txn.Transaction, error)) error {
	if err := d.ctrl.Begin(kind, nodeID, cb, ctx); err != nil {
		return err
	}
	callbackID := d.nextCallbackID()
	tx, err := build(callbackID)
	if err != nil {
		d.ctrl.Finish(controllercmd.Failed, nodeID)
		return err
	}
	d.ctrlCallbackID = callbackID
	d.enqueue(queue.Command, nodeID, tx, func(res txn.Result) {
		if res.Err != nil {
			d.ctrlCallbackID = 0
			d.ctrl.Finish(controllercmd.Failed, nodeID)
		}
	})
	return nil
}

// AddNode starts network inclusion in the given mode (NodeModeAny unless
// the embedder wants to restrict to controllers/slaves only).
func (d *Driver) AddNode(mode byte, cb controllercmd.Callback, ctx interface{}) error {
	kind := controllercmd.AddDevice
	if mode == NodeModeController {
		kind = controllercmd.AddController
	}
	return d.beginAsyncControllerCommand(kind, 0, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.AddNodeToNetwork(mode, callbackID)}, nil
	})
}

// RemoveNode starts network exclusion.
func (d *Driver) RemoveNode(mode byte, cb controllercmd.Callback, ctx interface{}) error {
	kind := controllercmd.RemoveDevice
	if mode == NodeModeController {
		kind = controllercmd.RemoveController
	}
	return d.beginAsyncControllerCommand(kind, 0, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.RemoveNodeFromNetwork(mode, callbackID)}, nil
	})
}

// CreateNewPrimary starts replication of this controller's network
// information into a unit that will become the network's new primary.
func (d *Driver) CreateNewPrimary(cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.CreateNewPrimary, 0, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.CreateNewPrimary(NodeModeAny, callbackID)}, nil
	})
}

// TransferPrimaryRole hands this controller's primary role to another
// unit already on the network.
func (d *Driver) TransferPrimaryRole(cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.TransferPrimaryRole, 0, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.ControllerChange(NodeModeAny, callbackID)}, nil
	})
}

// ReceiveConfiguration puts this controller into classic learn mode so
// it can be replicated into an existing network as a secondary.
func (d *Driver) ReceiveConfiguration(cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.ReceiveConfiguration, 0, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.SetLearnMode(serialapi.LearnModeClassic, callbackID)}, nil
	})
}

// CancelControllerCommand sends the stop request matching the active
// command (NodeModeStop, or learn-mode disable) and clears the state
// machine. A command that cannot be cancelled mid-flight (see
// controllercmd.Cancellable) is left running and an error is returned.
func (d *Driver) CancelControllerCommand() error {
	kind := d.ctrl.Active()
	if kind == controllercmd.None {
		return fmt.Errorf("driver: no controller command active")
	}
	if !controllercmd.Cancellable(kind) {
		return fmt.Errorf("driver: %s cannot be cancelled", kind)
	}
	switch kind {
	case controllercmd.AddController, controllercmd.AddDevice:
		d.enqueue(queue.Command, 0, &txn.Transaction{Request: serialapi.AddNodeToNetwork(NodeModeStop, d.nextCallbackID())}, nil)
	case controllercmd.RemoveController, controllercmd.RemoveDevice:
		d.enqueue(queue.Command, 0, &txn.Transaction{Request: serialapi.RemoveNodeFromNetwork(NodeModeStop, d.nextCallbackID())}, nil)
	case controllercmd.CreateNewPrimary, controllercmd.TransferPrimaryRole:
		d.enqueue(queue.Command, 0, &txn.Transaction{Request: serialapi.ControllerChange(NodeModeStop, d.nextCallbackID())}, nil)
	case controllercmd.ReceiveConfiguration:
		d.enqueue(queue.Command, 0, &txn.Transaction{Request: serialapi.SetLearnMode(serialapi.LearnModeDisable, d.nextCallbackID())}, nil)
	case controllercmd.CreateButton, controllercmd.DeleteButton:
		// No wire-level "stop" exists for the slave-learn handshake; the
		// in-flight SetSlaveLearnMode/SendSlaveNodeInfo transaction is
		// simply allowed to finish and its result discarded below.
	}
	d.pendingNewNode = 0
	d.ctrlCallbackID = 0
	d.ctrl.Cancel()
	return nil
}

// HasNodeFailed asks the controller whether it considers nodeID failed.
func (d *Driver) HasNodeFailed(nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	return d.beginSyncControllerCommand(controllercmd.HasNodeFailed, nodeID, cb, ctx,
		func(byte) (*txn.Transaction, error) {
			return &txn.Transaction{Request: serialapi.IsFailedNode(nodeID), ExpectedReply: true}, nil
		},
		func(res txn.Result) {
			if res.Err != nil {
				d.ctrl.Finish(controllercmd.Failed, nodeID)
				return
			}
			if len(res.Transaction.Reply.Payload) >= 1 && res.Transaction.Reply.Payload[0] != 0 {
				d.ctrl.Finish(controllercmd.NodeFailed, nodeID)
			} else {
				d.ctrl.Finish(controllercmd.NodeOK, nodeID)
			}
		})
}

// RemoveFailedNode removes nodeID from the network without requiring it
// to respond, provided the controller agrees it has failed.
func (d *Driver) RemoveFailedNode(nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.RemoveFailedNode, nodeID, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.RemoveFailedNode(nodeID, callbackID)}, nil
	})
}

// ReplaceFailedNode replaces a failed node's slot with a newly included
// device, reusing its node id.
func (d *Driver) ReplaceFailedNode(nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.ReplaceFailedNode, nodeID, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.ReplaceFailedNode(nodeID, callbackID)}, nil
	})
}

// RequestNetworkUpdate asks the SUC/SIS to refresh this controller's
// routing tables.
func (d *Driver) RequestNetworkUpdate(cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.RequestNetworkUpdate, 0, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.RequestNetworkUpdate(callbackID)}, nil
	})
}

// RequestNodeNeighborUpdate asks nodeID to rediscover its neighbors;
// once the controller reports DONE, GET_ROUTING_INFO is issued as a
// follow-up to copy the fresh neighbor bitmap into the node record.
func (d *Driver) RequestNodeNeighborUpdate(nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	return d.beginAsyncControllerCommand(controllercmd.RequestNodeNeighborUpdate, nodeID, cb, ctx, func(callbackID byte) (*txn.Transaction, error) {
		return &txn.Transaction{Request: serialapi.RequestNodeNeighborUpdate(nodeID, callbackID)}, nil
	})
}

// AssignReturnRoute assigns srcNodeID a static route to dstNodeID.
func (d *Driver) AssignReturnRoute(srcNodeID, dstNodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	return d.beginSyncControllerCommand(controllercmd.AssignReturnRoute, srcNodeID, cb, ctx,
		func(callbackID byte) (*txn.Transaction, error) {
			f := serialapi.AssignReturnRoute(srcNodeID, dstNodeID, callbackID)
			return &txn.Transaction{Request: f, ExpectedReply: true, ExpectedCallback: true}, nil
		},
		func(res txn.Result) { d.finishOnTransmitStatus(srcNodeID, res) })
}

// DeleteAllReturnRoutes clears every return route nodeID holds.
func (d *Driver) DeleteAllReturnRoutes(nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	return d.beginSyncControllerCommand(controllercmd.DeleteAllReturnRoutes, nodeID, cb, ctx,
		func(callbackID byte) (*txn.Transaction, error) {
			f := serialapi.DeleteReturnRoute(nodeID, callbackID)
			return &txn.Transaction{Request: f, ExpectedReply: true, ExpectedCallback: true}, nil
		},
		func(res txn.Result) { d.finishOnTransmitStatus(nodeID, res) })
}

func (d *Driver) finishOnTransmitStatus(nodeID byte, res txn.Result) {
	if res.Err != nil {
		d.ctrl.Finish(controllercmd.Failed, nodeID)
		return
	}
	status := byte(0xff)
	if len(res.Transaction.Callback.Payload) >= 2 {
		status = res.Transaction.Callback.Payload[1]
	}
	if serialapi.TransmitStatus(status).OK() {
		d.ctrl.Finish(controllercmd.Complete, nodeID)
	} else {
		d.ctrl.Finish(controllercmd.Failed, nodeID)
	}
}

// virtual node device class CreateButton assigns its allocated virtual
// nodes: a non-listening simple binary-switch-like endpoint, since a
// scene button has no meaningful device class of its own.
const (
	virtualButtonGeneric   byte = 0x01
	virtualButtonSpecific  byte = 0x00
	virtualButtonCapability byte = 0x00
)

// CreateButton allocates a free virtual node (scanning ZW_GET_VIRTUAL_NODES'
// bitmap), registers it via SERIAL_API_SLAVE_NODE_INFO, stages it in via
// ZW_SET_SLAVE_LEARN_MODE(ADD), and finally broadcasts its node
// information frame with ZW_SEND_SLAVE_NODE_INFO so nodeID can learn
// about it. On success the buttonID -> virtual-node-id binding is
// recorded on nodeID and persisted to zwbutton.xml.
func (d *Driver) CreateButton(buttonID, nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	if d.nodes.Get(nodeID) == nil {
		return fmt.Errorf("driver: CreateButton: unknown node %d", nodeID)
	}
	return d.beginSyncControllerCommand(controllercmd.CreateButton, nodeID, cb, ctx,
		func(byte) (*txn.Transaction, error) {
			return &txn.Transaction{Request: serialapi.GetVirtualNodes(), ExpectedReply: true}, nil
		},
		func(res txn.Result) {
			if res.Err != nil {
				d.ctrl.Finish(controllercmd.Failed, nodeID)
				return
			}
			virtualNodeID := firstFreeNodeID(res.Transaction.Reply.Payload, d.nodes)
			if virtualNodeID == 0 {
				d.ctrl.Finish(controllercmd.Failed, nodeID)
				return
			}
			d.ctrl.Advance(controllercmd.Waiting, nodeID)
			d.enqueue(queue.Command, nodeID, &txn.Transaction{
				Request: serialapi.SlaveNodeInfo(virtualNodeID, virtualButtonCapability, virtualButtonGeneric, virtualButtonSpecific, nil),
			}, func(res txn.Result) {
				if res.Err != nil {
					d.ctrl.Finish(controllercmd.Failed, nodeID)
					return
				}
				d.ctrl.Advance(controllercmd.InProgress, nodeID)
				d.enqueue(queue.Command, nodeID, &txn.Transaction{
					Request:          serialapi.SetSlaveLearnMode(virtualNodeID, serialapi.SlaveLearnModeAdd, d.nextCallbackID()),
					ExpectedCallback: true,
				}, func(res txn.Result) {
					if res.Err != nil {
						d.ctrl.Finish(controllercmd.Failed, nodeID)
						return
					}
					d.enqueue(queue.Command, nodeID, &txn.Transaction{
						Request:          serialapi.SendSlaveNodeInfo(virtualNodeID, nodeID, serialapi.TransmitOptionACK|serialapi.TransmitOptionAutoRoute, d.nextCallbackID()),
						ExpectedCallback: true,
					}, func(res txn.Result) {
						if res.Err != nil {
							d.ctrl.Finish(controllercmd.Failed, nodeID)
							return
						}
						d.nodes.WithLock(nodeID, func(r *node.Record) { r.ButtonMap[buttonID] = virtualNodeID })
						d.saveButtonMap(func(m *persist.ButtonMap) { m.Set(nodeID, buttonID, virtualNodeID) })
						d.fifo.Push(notify.Event{Kind: notify.CreateButton, NodeID: nodeID, Data: buttonID})
						d.ctrl.Finish(controllercmd.Complete, nodeID)
					})
				})
			})
		})
}

// DeleteButton removes a previously created virtual button binding and
// persists the change.
func (d *Driver) DeleteButton(buttonID, nodeID byte, cb controllercmd.Callback, ctx interface{}) error {
	if err := d.ctrl.Begin(controllercmd.DeleteButton, nodeID, cb, ctx); err != nil {
		return err
	}
	d.nodes.WithLock(nodeID, func(r *node.Record) { delete(r.ButtonMap, buttonID) })
	d.saveButtonMap(func(m *persist.ButtonMap) { m.Delete(nodeID, buttonID) })
	d.fifo.Push(notify.Event{Kind: notify.DeleteButton, NodeID: nodeID, Data: buttonID})
	d.ctrl.Finish(controllercmd.Complete, nodeID)
	return nil
}

// saveButtonMap loads the current zwbutton.xml (if any), applies mutate,
// and writes it back, provided the driver was configured with a
// UserPath to persist under.
func (d *Driver) saveButtonMap(mutate func(m *persist.ButtonMap)) {
	if d.opts.UserPath == "" {
		return
	}
	m, err := persist.LoadButtonMap(d.opts.UserPath)
	if err != nil && !errors.Is(err, persist.ErrNotFound) {
		d.logger.Error("load button map", "err", err)
		return
	}
	mutate(&m)
	if err := persist.SaveButtonMap(d.opts.UserPath, m); err != nil {
		d.logger.Error("save button map", "err", err)
	}
}

// firstFreeNodeID returns the lowest node id neither reported present in
// bitmap (ZW_GET_VIRTUAL_NODES' reply) nor already occupied in table, or
// 0 if none is available.
func firstFreeNodeID(bitmap []byte, table *node.Table) byte {
	for id := byte(1); int(id) <= node.MaxNodeID; id++ {
		idx := (id - 1) / 8
		bit := byte(1) << ((id - 1) % 8)
		if int(idx) < len(bitmap) && bitmap[idx]&bit != 0 {
			continue
		}
		if table.Get(id) != nil {
			continue
		}
		return id
	}
	return 0
}

// handleControllerCallback routes an unsolicited REQUEST frame that
// carries the active controller command's callback id in its first
// payload byte to the handler for that command's wire function. It
// returns false if the frame's function id doesn't match anything the
// active command expects, so dispatch falls back to a generic
// notification.
func (d *Driver) handleControllerCallback(f frame.Frame) bool {
	kind := d.ctrl.Active()
	switch serialapi.FuncID(f.FuncID) {
	case serialapi.FuncAddNodeToNetwork:
		if kind == controllercmd.AddController || kind == controllercmd.AddDevice {
			d.onAddNodeStatus(f.Payload)
			return true
		}
	case serialapi.FuncRemoveNodeFromNetwork:
		if kind == controllercmd.RemoveController || kind == controllercmd.RemoveDevice {
			d.onRemoveNodeStatus(f.Payload)
			return true
		}
	case serialapi.FuncCreateNewPrimary, serialapi.FuncControllerChange:
		if kind == controllercmd.CreateNewPrimary || kind == controllercmd.TransferPrimaryRole {
			d.onControllerChangeStatus(f.Payload)
			return true
		}
	case serialapi.FuncSetLearnMode:
		if kind == controllercmd.ReceiveConfiguration {
			d.onReceiveConfigurationStatus(f.Payload)
			return true
		}
	case serialapi.FuncRequestNetworkUpdate:
		if kind == controllercmd.RequestNetworkUpdate {
			d.onRequestNetworkUpdateStatus(f.Payload)
			return true
		}
	case serialapi.FuncRequestNodeNeighborUpdate:
		if kind == controllercmd.RequestNodeNeighborUpdate {
			d.onNeighborUpdateStatus(f.Payload)
			return true
		}
	case serialapi.FuncRemoveFailedNode:
		if kind == controllercmd.RemoveFailedNode {
			d.onRemoveFailedNodeStatus(f.Payload)
			return true
		}
	case serialapi.FuncReplaceFailedNode:
		if kind == controllercmd.ReplaceFailedNode {
			d.onReplaceFailedNodeStatus(f.Payload)
			return true
		}
	}
	return false
}

func (d *Driver) onAddNodeStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	status := payload[1]
	var nodeID byte
	if len(payload) >= 3 {
		nodeID = payload[2]
	}
	switch status {
	case addNodeStatusLearnReady:
		d.ctrl.Advance(controllercmd.Waiting, 0)
	case addNodeStatusNodeFound:
		d.ctrl.Advance(controllercmd.InProgress, 0)
	case addNodeStatusAddingSlave, addNodeStatusAddingController:
		d.pendingNewNode = nodeID
		d.ctrl.Advance(controllercmd.InProgress, nodeID)
	case addNodeStatusProtocolDone:
		d.enqueue(queue.Command, 0, &txn.Transaction{Request: serialapi.AddNodeToNetwork(NodeModeStop, d.nextCallbackID())}, nil)
	case addNodeStatusDone:
		added := d.pendingNewNode
		d.pendingNewNode = 0
		d.ctrlCallbackID = 0
		if added != 0 {
			d.nodes.Add(added)
			d.nodes.WithLock(added, func(r *node.Record) { r.Stage = node.StageProtocolInfo })
			d.StartQuery(added)
			d.fifo.Push(notify.Event{Kind: notify.NodeAdded, NodeID: added})
		}
		d.ctrl.Finish(controllercmd.Complete, added)
	case addNodeStatusFailed:
		d.pendingNewNode = 0
		d.ctrlCallbackID = 0
		d.ctrl.Finish(controllercmd.Failed, 0)
	}
}

func (d *Driver) onRemoveNodeStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	status := payload[1]
	var nodeID byte
	if len(payload) >= 3 {
		nodeID = payload[2]
	}
	switch status {
	case addNodeStatusLearnReady:
		d.ctrl.Advance(controllercmd.Waiting, 0)
	case addNodeStatusNodeFound:
		d.ctrl.Advance(controllercmd.InProgress, 0)
	case addNodeStatusAddingSlave, addNodeStatusAddingController:
		d.pendingNewNode = nodeID
		d.ctrl.Advance(controllercmd.InProgress, nodeID)
	case addNodeStatusDone:
		removed := d.pendingNewNode
		d.pendingNewNode = 0
		d.ctrlCallbackID = 0
		if removed != 0 {
			d.nodes.Remove(removed)
			d.sched.RemoveNode(removed)
			d.pollist.RemoveNode(removed)
			d.fifo.Push(notify.Event{Kind: notify.NodeRemoved, NodeID: removed})
		}
		d.ctrl.Finish(controllercmd.Complete, removed)
	case addNodeStatusFailed:
		d.pendingNewNode = 0
		d.ctrlCallbackID = 0
		d.ctrl.Finish(controllercmd.Failed, 0)
	}
}

func (d *Driver) onControllerChangeStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	switch payload[1] {
	case addNodeStatusLearnReady:
		d.ctrl.Advance(controllercmd.Waiting, 0)
	case addNodeStatusNodeFound:
		d.ctrl.Advance(controllercmd.InProgress, 0)
	case addNodeStatusProtocolDone, addNodeStatusDone:
		d.ctrlCallbackID = 0
		d.ctrl.Finish(controllercmd.Complete, 0)
	case addNodeStatusFailed:
		d.ctrlCallbackID = 0
		d.ctrl.Finish(controllercmd.Failed, 0)
	}
}

func (d *Driver) onReceiveConfigurationStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	d.ctrlCallbackID = 0
	switch payload[1] {
	case addNodeStatusDone:
		d.reinitAllNodes()
		d.ctrl.Finish(controllercmd.Complete, 0)
	case addNodeStatusFailed:
		d.enqueue(queue.Command, 0, &txn.Transaction{Request: serialapi.SetLearnMode(serialapi.LearnModeDisable, d.nextCallbackID())}, nil)
		d.reinitAllNodes()
		d.ctrl.Finish(controllercmd.Failed, 0)
	}
}

// reinitAllNodes resets every known node back to StageProtocolInfo and
// resumes its query pipeline, used after replication changes the
// network's contents out from under the local node table.
func (d *Driver) reinitAllNodes() {
	for _, r := range d.nodes.All() {
		d.nodes.WithLock(r.ID, func(r *node.Record) { r.Stage = node.StageProtocolInfo })
		d.StartQuery(r.ID)
	}
}

// Network-update status bytes for ZW_REQUEST_NETWORK_UPDATE's callback.
const networkUpdateDone byte = 0x00

func (d *Driver) onRequestNetworkUpdateStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	d.ctrlCallbackID = 0
	if payload[1] == networkUpdateDone {
		d.ctrl.Finish(controllercmd.Complete, 0)
	} else {
		d.ctrl.Finish(controllercmd.Failed, 0)
	}
}

// Neighbor-update status bytes for ZW_REQUEST_NODE_NEIGHBOR_UPDATE's callback.
const (
	neighborUpdateStarted byte = 0x21
	neighborUpdateDone    byte = 0x22
	neighborUpdateFailed  byte = 0x23
)

func (d *Driver) onNeighborUpdateStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	nodeID := d.ctrl.NodeID()
	switch payload[1] {
	case neighborUpdateStarted:
		d.ctrl.Advance(controllercmd.InProgress, nodeID)
	case neighborUpdateDone:
		d.ctrlCallbackID = 0
		d.enqueue(queue.Command, nodeID, &txn.Transaction{Request: serialapi.GetRoutingInfo(nodeID, true, true), ExpectedReply: true}, func(res txn.Result) {
			if res.Err != nil {
				d.ctrl.Finish(controllercmd.Failed, nodeID)
				return
			}
			d.applyRoutingInfo(nodeID, res.Transaction.Reply.Payload)
			d.ctrl.Finish(controllercmd.Complete, nodeID)
		})
	case neighborUpdateFailed:
		d.ctrlCallbackID = 0
		d.ctrl.Finish(controllercmd.Failed, nodeID)
	}
}

// applyRoutingInfo copies ZW_GET_ROUTING_INFO's neighbor bitmap reply
// into nodeID's neighbor bitmap.
func (d *Driver) applyRoutingInfo(nodeID byte, payload []byte) {
	d.nodes.WithLock(nodeID, func(r *node.Record) {
		n := len(payload)
		if n > 29 {
			n = 29
		}
		for i := 0; i < n; i++ {
			for bit := 0; bit < 8; bit++ {
				neighborID := byte(i*8 + bit + 1)
				r.Neighbors.Set(neighborID, payload[i]&(1<<uint(bit)) != 0)
			}
		}
	})
}

// FAILED_NODE_REMOVED, the only status ZW_REMOVE_FAILED_NODE_ID's
// callback reports that this driver treats as success.
const failedNodeRemoved byte = 0x01

func (d *Driver) onRemoveFailedNodeStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	nodeID := d.ctrl.NodeID()
	d.ctrlCallbackID = 0
	if payload[1] == failedNodeRemoved {
		d.nodes.Remove(nodeID)
		d.sched.RemoveNode(nodeID)
		d.pollist.RemoveNode(nodeID)
		d.fifo.Push(notify.Event{Kind: notify.NodeRemoved, NodeID: nodeID})
		d.ctrl.Finish(controllercmd.Complete, nodeID)
		return
	}
	d.ctrl.Finish(controllercmd.Failed, nodeID)
}

// ZW_REPLACE_FAILED_NODE's callback status bytes.
const (
	replaceFailedNodeWaiting byte = 0x03
	replaceFailedNodeDone    byte = 0x04
	replaceFailedNodeFailed  byte = 0x05
)

func (d *Driver) onReplaceFailedNodeStatus(payload []byte) {
	if len(payload) < 2 {
		return
	}
	nodeID := d.ctrl.NodeID()
	switch payload[1] {
	case replaceFailedNodeWaiting:
		d.ctrl.Advance(controllercmd.Waiting, nodeID)
	case replaceFailedNodeDone:
		d.ctrlCallbackID = 0
		d.nodes.WithLock(nodeID, func(r *node.Record) { r.Stage = node.StageProtocolInfo })
		d.StartQuery(nodeID)
		d.ctrl.Finish(controllercmd.Complete, nodeID)
	case replaceFailedNodeFailed:
		d.ctrlCallbackID = 0
		d.ctrl.Finish(controllercmd.Failed, nodeID)
	}
}
