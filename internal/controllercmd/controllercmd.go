// Package controllercmd implements the controller-command state machine:
// the long-running, user-initiated operations (inclusion, exclusion,
// replication, neighbor updates, return-route assignment, button
// management) of which only one may be active at a time.
package controllercmd

import (
	"fmt"
	"sync"
)

// Kind enumerates every controller command the driver supports.
type Kind int

const (
	None Kind = iota
	AddController
	AddDevice
	CreateNewPrimary
	ReceiveConfiguration
	RemoveController
	RemoveDevice
	HasNodeFailed
	RemoveFailedNode
	ReplaceFailedNode
	TransferPrimaryRole
	RequestNetworkUpdate
	RequestNodeNeighborUpdate
	AssignReturnRoute
	DeleteAllReturnRoutes
	CreateButton
	DeleteButton
)

func (k Kind) String() string {
	names := [...]string{
		"None", "AddController", "AddDevice", "CreateNewPrimary",
		"ReceiveConfiguration", "RemoveController", "RemoveDevice",
		"HasNodeFailed", "RemoveFailedNode", "ReplaceFailedNode",
		"TransferPrimaryRole", "RequestNetworkUpdate",
		"RequestNodeNeighborUpdate", "AssignReturnRoute",
		"DeleteAllReturnRoutes", "CreateButton", "DeleteButton",
	}
	if int(k) < 0 || int(k) >= len(names) {
		return "Unknown"
	}
	return names[k]
}

// State is the callback state reported to the caller's Callback as the
// command progresses, matching the vocabulary a Z-Wave controller
// actually emits during inclusion/exclusion.
type State int

const (
	Starting State = iota
	Waiting
	InProgress
	Complete
	Failed
	NodeOK
	NodeFailed
	NodeDuplicate
	Cancelled
)

func (s State) String() string {
	names := [...]string{
		"Starting", "Waiting", "InProgress", "Complete", "Failed",
		"NodeOK", "NodeFailed", "NodeDuplicate", "Cancelled",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "Unknown"
	}
	return names[s]
}

// Callback receives state transitions for the running command, plus the
// node id involved where one is known (0 otherwise), and the opaque
// context the caller supplied to Begin.
type Callback func(state State, nodeID byte, context interface{})

// command is the active operation's private bookkeeping.
type command struct {
	kind     Kind
	callback Callback
	context  interface{}
	nodeID   byte   // the node this command targets, where applicable
	highPower bool
}

// Machine tracks the single currently-active controller command. It is
// driven by the driver loop: Begin() is called from a request handler,
// and Advance/Cancel/Finish are called as replies and callbacks for the
// underlying serial API calls arrive.
type Machine struct {
	mu  sync.Mutex
	cur *command
}

func New() *Machine { return &Machine{} }

// Active reports the kind of command currently running, or None.
func (m *Machine) Active() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return None
	}
	return m.cur.kind
}

// Begin starts kind, failing if another command is already active. Per
// the controller's own restriction, only one controller command may run
// at a time across the whole network.
func (m *Machine) Begin(kind Kind, nodeID byte, cb Callback, ctx interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur != nil {
		return fmt.Errorf("controllercmd: %s already in progress", m.cur.kind)
	}
	m.cur = &command{kind: kind, callback: cb, context: ctx, nodeID: nodeID}
	m.emit(Starting, nodeID)
	return nil
}

// Advance reports an intermediate state for the active command.
func (m *Machine) Advance(state State, nodeID byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return
	}
	m.emit(state, nodeID)
}

// Finish reports a terminal state and clears the active command.
func (m *Machine) Finish(state State, nodeID byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return
	}
	m.emit(state, nodeID)
	m.cur = nil
}

// Cancel aborts the active command, if any. Per the original driver's
// cancellation rules: AddController/AddDevice/CreateNewPrimary/
// ReceiveConfiguration can be cancelled with a stop request at any time
// before completion; RemoveController/RemoveDevice likewise; the
// single-shot query commands (HasNodeFailed, RequestNetworkUpdate,
// RequestNodeNeighborUpdate, AssignReturnRoute, DeleteAllReturnRoutes)
// cannot meaningfully be cancelled once the request frame has been sent
// to the controller — Cancel on those just clears local state so a new
// command can start, without claiming the controller-side action itself
// stopped.
func (m *Machine) Cancel() (Kind, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return None, false
	}
	kind := m.cur.kind
	nodeID := m.cur.nodeID
	m.emit(Cancelled, nodeID)
	m.cur = nil
	return kind, true
}

// Cancellable reports whether kind represents a command that can be
// cleanly stopped controller-side via its AddNodeMode/RemoveNodeMode
// "stop" sub-command, as opposed to a one-shot request/response call
// that simply has to be allowed to finish.
func Cancellable(kind Kind) bool {
	switch kind {
	case AddController, AddDevice, CreateNewPrimary, ReceiveConfiguration,
		RemoveController, RemoveDevice, TransferPrimaryRole,
		CreateButton, DeleteButton:
		return true
	default:
		return false
	}
}

// NodeID reports the target node id of the active command, or 0 if none
// is running or the command isn't node-scoped.
func (m *Machine) NodeID() byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cur == nil {
		return 0
	}
	return m.cur.nodeID
}

func (m *Machine) emit(state State, nodeID byte) {
	if m.cur == nil || m.cur.callback == nil {
		return
	}
	cb := m.cur.callback
	ctx := m.cur.context
	cb(state, nodeID, ctx)
}
