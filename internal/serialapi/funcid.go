// Package serialapi names the Z-Wave serial API function ids the driver
// core dispatches on, and builds the request payloads for the ones the
// core itself issues (everything else is opaque to command-class
// handlers registered through internal/commandclass).
package serialapi

// FuncID identifies a serial API call, the first payload byte of every
// frame after SOF/len/type.
type FuncID byte

const (
	FuncGetInitData            FuncID = 0x02
	FuncApplicationCommandHandler FuncID = 0x04
	FuncGetControllerCapabilities FuncID = 0x05
	FuncSerialAPISetTimeouts   FuncID = 0x06
	FuncGetCapabilities        FuncID = 0x07
	FuncSoftReset              FuncID = 0x08
	FuncSetRFReceiveMode       FuncID = 0x10
	FuncSetSleepMode           FuncID = 0x11
	FuncSendNodeInformation    FuncID = 0x12
	FuncSendData               FuncID = 0x13
	FuncSendDataAbort          FuncID = 0x16
	FuncRFPowerLevelSet        FuncID = 0x17
	FuncGetRandom              FuncID = 0x1C
	FuncMemoryGetID            FuncID = 0x20
	FuncMemoryGetByte          FuncID = 0x21
	FuncReadMemory             FuncID = 0x23
	FuncGetNodeProtocolInfo    FuncID = 0x41
	FuncSetDefault             FuncID = 0x42
	FuncNewController          FuncID = 0x43
	FuncReplicationSendData    FuncID = 0x44
	FuncAssignReturnRoute      FuncID = 0x46
	FuncDeleteReturnRoute      FuncID = 0x47
	FuncRequestNodeNeighborUpdate FuncID = 0x48
	FuncApplicationUpdate      FuncID = 0x49
	FuncAddNodeToNetwork       FuncID = 0x4A
	FuncRemoveNodeFromNetwork  FuncID = 0x4B
	FuncCreateNewPrimary       FuncID = 0x4C
	FuncControllerChange       FuncID = 0x4D
	FuncSetLearnMode           FuncID = 0x50
	FuncAssignSUCReturnRoute   FuncID = 0x51
	FuncEnableSUC              FuncID = 0x52
	FuncRequestNetworkUpdate   FuncID = 0x53
	FuncSetSUCNodeID           FuncID = 0x54
	FuncDeleteSUCReturnRoute   FuncID = 0x55
	FuncGetSUCNodeID           FuncID = 0x56
	FuncRequestNodeInfo        FuncID = 0x60
	FuncRemoveFailedNode       FuncID = 0x61
	FuncIsFailedNode           FuncID = 0x62
	FuncReplaceFailedNode      FuncID = 0x63
	FuncGetRoutingInfo         FuncID = 0x80
	FuncGetVirtualNodes        FuncID = 0xA5
	FuncIsVirtualNode          FuncID = 0xA6
	FuncSlaveNodeInfo          FuncID = 0xA0
	FuncSendSlaveNodeInfo      FuncID = 0xA2
	FuncSetSlaveLearnMode      FuncID = 0xA4
)

var names = map[FuncID]string{
	FuncGetInitData:               "SERIAL_API_GET_INIT_DATA",
	FuncApplicationCommandHandler: "FUNC_ID_APPLICATION_COMMAND_HANDLER",
	FuncGetControllerCapabilities: "GET_CONTROLLER_CAPABILITIES",
	FuncSerialAPISetTimeouts:      "SERIAL_API_SET_TIMEOUTS",
	FuncGetCapabilities:           "SERIAL_API_GET_CAPABILITIES",
	FuncSoftReset:                 "SERIAL_API_SOFT_RESET",
	FuncSetRFReceiveMode:          "ZW_SET_RF_RECEIVE_MODE",
	FuncSetSleepMode:              "ZW_SET_SLEEP_MODE",
	FuncSendNodeInformation:       "ZW_SEND_NODE_INFORMATION",
	FuncSendData:                  "ZW_SEND_DATA",
	FuncSendDataAbort:             "ZW_SEND_DATA_ABORT",
	FuncRFPowerLevelSet:           "ZW_R_F_POWER_LEVEL_SET",
	FuncGetRandom:                 "ZW_GET_RANDOM",
	FuncMemoryGetID:               "MEMORY_GET_ID",
	FuncMemoryGetByte:             "ZW_MEMORY_GET_BYTE",
	FuncReadMemory:                "ZW_READ_MEMORY",
	FuncGetNodeProtocolInfo:       "ZW_GET_NODE_PROTOCOL_INFO",
	FuncSetDefault:                "ZW_SET_DEFAULT",
	FuncNewController:             "ZW_NEW_CONTROLLER",
	FuncReplicationSendData:       "ZW_REPLICATION_SEND_DATA",
	FuncAssignReturnRoute:         "ZW_ASSIGN_RETURN_ROUTE",
	FuncDeleteReturnRoute:         "ZW_DELETE_RETURN_ROUTE",
	FuncRequestNodeNeighborUpdate: "ZW_REQUEST_NODE_NEIGHBOR_UPDATE",
	FuncApplicationUpdate:         "ZW_APPLICATION_UPDATE",
	FuncAddNodeToNetwork:          "ZW_ADD_NODE_TO_NETWORK",
	FuncRemoveNodeFromNetwork:     "ZW_REMOVE_NODE_FROM_NETWORK",
	FuncCreateNewPrimary:          "ZW_CREATE_NEW_PRIMARY",
	FuncControllerChange:          "ZW_CONTROLLER_CHANGE",
	FuncSetLearnMode:              "ZW_SET_LEARN_MODE",
	FuncAssignSUCReturnRoute:      "ZW_ASSIGN_SUC_RETURN_ROUTE",
	FuncEnableSUC:                 "ZW_ENABLE_SUC",
	FuncRequestNetworkUpdate:      "ZW_REQUEST_NETWORK_UPDATE",
	FuncSetSUCNodeID:              "ZW_SET_SUC_NODE_ID",
	FuncDeleteSUCReturnRoute:      "ZW_DELETE_SUC_RETURN_ROUTE",
	FuncGetSUCNodeID:              "ZW_GET_SUC_NODE_ID",
	FuncRequestNodeInfo:           "ZW_REQUEST_NODE_INFO",
	FuncRemoveFailedNode:          "ZW_REMOVE_FAILED_NODE_ID",
	FuncIsFailedNode:              "ZW_IS_FAILED_NODE_ID",
	FuncReplaceFailedNode:         "ZW_REPLACE_FAILED_NODE",
	FuncGetRoutingInfo:            "ZW_GET_ROUTING_INFO",
	FuncGetVirtualNodes:           "ZW_GET_VIRTUAL_NODES",
	FuncIsVirtualNode:             "ZW_IS_VIRTUAL_NODE",
	FuncSlaveNodeInfo:             "SERIAL_API_SLAVE_NODE_INFO",
	FuncSetSlaveLearnMode:         "ZW_SET_SLAVE_LEARN_MODE",
	FuncSendSlaveNodeInfo:         "ZW_SEND_SLAVE_NODE_INFO",
}

// Name returns the serial API's conventional uppercase name for id, or
// "UNKNOWN" for anything not in the table (e.g. a vendor-specific
// function id).
func Name(id FuncID) string {
	if n, ok := names[id]; ok {
		return n
	}
	return "UNKNOWN"
}

// TransmitStatus is the status byte of a ZW_SEND_DATA callback, the byte
// after its callback id.
type TransmitStatus byte

const (
	TransmitOK        TransmitStatus = 0x00
	TransmitNoAck     TransmitStatus = 0x01
	TransmitFail      TransmitStatus = 0x02
	TransmitNoRoute   TransmitStatus = 0x04
	TransmitNotIdle   TransmitStatus = 0x05
	TransmitNoRouteIdle TransmitStatus = 0x06
)

func (s TransmitStatus) OK() bool { return s == TransmitOK }
