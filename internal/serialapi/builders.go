package serialapi

import "zwave-go-home/internal/frame"

// TxOption bits for ZW_SEND_DATA, matching the controller's own constants.
const (
	TransmitOptionACK      byte = 0x01
	TransmitOptionAutoRoute byte = 0x04
	TransmitOptionExplore  byte = 0x20
)

// request builds a bare REQUEST frame with no payload, used for the
// simple query calls (GetInitData, MemoryGetID, GetSUCNodeID, ...).
func request(id FuncID) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(id)}
}

// GetInitData builds SERIAL_API_GET_INIT_DATA.
func GetInitData() frame.Frame { return request(FuncGetInitData) }

// MemoryGetID builds MEMORY_GET_ID (home id + own node id).
func MemoryGetID() frame.Frame { return request(FuncMemoryGetID) }

// GetSUCNodeID builds ZW_GET_SUC_NODE_ID.
func GetSUCNodeID() frame.Frame { return request(FuncGetSUCNodeID) }

// GetControllerCapabilities builds GET_CONTROLLER_CAPABILITIES.
func GetControllerCapabilities() frame.Frame { return request(FuncGetControllerCapabilities) }

// GetNodeProtocolInfo builds ZW_GET_NODE_PROTOCOL_INFO for nodeID.
func GetNodeProtocolInfo(nodeID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncGetNodeProtocolInfo), Payload: []byte{nodeID}}
}

// RequestNodeInfo builds ZW_REQUEST_NODE_INFO for nodeID.
func RequestNodeInfo(nodeID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncRequestNodeInfo), Payload: []byte{nodeID}}
}

// GetRoutingInfo builds ZW_GET_ROUTING_INFO for nodeID, requesting the
// neighbor list, optionally with bad nodes and non-repeating nodes
// removed, and with no speed information.
func GetRoutingInfo(nodeID byte, removeBad, removeNonRepeaters bool) frame.Frame {
	bad := byte(0)
	if removeBad {
		bad = 1
	}
	nonRep := byte(0)
	if removeNonRepeaters {
		nonRep = 1
	}
	return frame.Frame{
		Type:   frame.TypeRequest,
		FuncID: byte(FuncGetRoutingInfo),
		Payload: []byte{nodeID, bad, nonRep, 0},
	}
}

// SendData builds ZW_SEND_DATA to nodeID with the given command-class
// payload, a transmit-options byte, and a session/callback id the
// caller must correlate the eventual transmit-status callback against.
func SendData(nodeID byte, payload []byte, txOptions byte, callbackID byte) frame.Frame {
	body := make([]byte, 0, 3+len(payload)+2)
	body = append(body, nodeID, byte(len(payload)))
	body = append(body, payload...)
	body = append(body, txOptions, callbackID)
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncSendData), Payload: body}
}

// AddNodeToNetwork builds ZW_ADD_NODE_TO_NETWORK. mode is one of the
// NodeMode* constants defined in internal/driver.
func AddNodeToNetwork(mode byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncAddNodeToNetwork), Payload: []byte{mode, callbackID}}
}

// RemoveNodeFromNetwork builds ZW_REMOVE_NODE_FROM_NETWORK.
func RemoveNodeFromNetwork(mode byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncRemoveNodeFromNetwork), Payload: []byte{mode, callbackID}}
}

// RequestNodeNeighborUpdate builds ZW_REQUEST_NODE_NEIGHBOR_UPDATE.
func RequestNodeNeighborUpdate(nodeID byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncRequestNodeNeighborUpdate), Payload: []byte{nodeID, callbackID}}
}

// AssignReturnRoute builds ZW_ASSIGN_RETURN_ROUTE, giving srcNodeID a
// return route to dstNodeID.
func AssignReturnRoute(srcNodeID, dstNodeID byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncAssignReturnRoute), Payload: []byte{srcNodeID, dstNodeID, callbackID}}
}

// DeleteReturnRoute builds ZW_DELETE_RETURN_ROUTE for nodeID.
func DeleteReturnRoute(nodeID byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncDeleteReturnRoute), Payload: []byte{nodeID, callbackID}}
}

// IsFailedNode builds ZW_IS_FAILED_NODE_ID.
func IsFailedNode(nodeID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncIsFailedNode), Payload: []byte{nodeID}}
}

// RemoveFailedNode builds ZW_REMOVE_FAILED_NODE_ID.
func RemoveFailedNode(nodeID byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncRemoveFailedNode), Payload: []byte{nodeID, callbackID}}
}

// ReplaceFailedNode builds ZW_REPLACE_FAILED_NODE.
func ReplaceFailedNode(nodeID byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncReplaceFailedNode), Payload: []byte{nodeID, callbackID}}
}

// RequestNetworkUpdate builds ZW_REQUEST_NETWORK_UPDATE.
func RequestNetworkUpdate(callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncRequestNetworkUpdate), Payload: []byte{callbackID}}
}

// SetSUCNodeID builds ZW_SET_SUC_NODE_ID.
func SetSUCNodeID(nodeID byte, enableSIS bool, callbackID byte) frame.Frame {
	sis := byte(0)
	if enableSIS {
		sis = 1
	}
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncSetSUCNodeID), Payload: []byte{nodeID, 0, sis, callbackID}}
}

// RFPowerLevelSet builds ZW_R_F_POWER_LEVEL_SET.
func RFPowerLevelSet(level byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncRFPowerLevelSet), Payload: []byte{level}}
}

// CreateNewPrimary builds ZW_CREATE_NEW_PRIMARY.
func CreateNewPrimary(mode byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncCreateNewPrimary), Payload: []byte{mode, callbackID}}
}

// ControllerChange builds ZW_CONTROLLER_CHANGE.
func ControllerChange(mode byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncControllerChange), Payload: []byte{mode, callbackID}}
}

// Learn mode bytes for ZW_SET_LEARN_MODE.
const (
	LearnModeDisable byte = 0x00
	LearnModeClassic byte = 0x01
	LearnModeNWI     byte = 0x02
)

// SetLearnMode builds ZW_SET_LEARN_MODE, putting the controller into
// (or out of) replication learn mode.
func SetLearnMode(mode byte, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncSetLearnMode), Payload: []byte{mode, callbackID}}
}

// SlaveNodeInfo builds SERIAL_API_SLAVE_NODE_INFO, registering nodeID
// (a virtual node this controller hosts in bridge mode) with the given
// capability byte and device class.
func SlaveNodeInfo(nodeID, capability, generic, specific byte, commandClasses []byte) frame.Frame {
	body := make([]byte, 0, 4+len(commandClasses))
	body = append(body, nodeID, capability, generic, specific)
	body = append(body, commandClasses...)
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncSlaveNodeInfo), Payload: body}
}

// Slave learn mode bytes for ZW_SET_SLAVE_LEARN_MODE.
const (
	SlaveLearnModeDisable byte = 0x00
	SlaveLearnModeAdd     byte = 0x01
	SlaveLearnModeRemove  byte = 0x02
)

// SetSlaveLearnMode builds ZW_SET_SLAVE_LEARN_MODE for the virtual node
// nodeID, staging it to be assigned (or removed) via the
// SLAVE_ASSIGN_COMPLETE / SLAVE_ASSIGN_NODEID_DONE callback sequence.
func SetSlaveLearnMode(nodeID, mode, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncSetSlaveLearnMode), Payload: []byte{nodeID, mode, callbackID}}
}

// SendSlaveNodeInfo builds ZW_SEND_SLAVE_NODE_INFO, transmitting
// sourceID's (a virtual node) node information frame to destID.
func SendSlaveNodeInfo(sourceID, destID, txOptions, callbackID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncSendSlaveNodeInfo), Payload: []byte{sourceID, destID, txOptions, callbackID}}
}

// GetVirtualNodes builds ZW_GET_VIRTUAL_NODES, returning the bitmap of
// node ids this controller owns as virtual/bridge nodes.
func GetVirtualNodes() frame.Frame { return request(FuncGetVirtualNodes) }

// IsVirtualNode builds ZW_IS_VIRTUAL_NODE for nodeID.
func IsVirtualNode(nodeID byte) frame.Frame {
	return frame.Frame{Type: frame.TypeRequest, FuncID: byte(FuncIsVirtualNode), Payload: []byte{nodeID}}
}
