package driver

import (
	"zwave-go-home/internal/queue"
	"zwave-go-home/internal/serialapi"
	"zwave-go-home/internal/txn"
)

// SendResult reports the outcome of a SendData call: whether the
// controller acknowledged the frame and, once it arrives, the transmit
// status from ZW_SEND_DATA's callback.
type SendResult struct {
	Err            error
	TransmitStatus byte
}

// SendData queues a command-class payload for nodeID at Send priority
// (below controller commands and wake-up traffic, above query and poll
// traffic). The callback is invoked from the driver loop once the
// transaction completes or is abandoned after MaxTries.
func (d *Driver) SendData(nodeID byte, payload []byte, cb func(SendResult)) {
	f := serialapi.SendData(nodeID, payload, serialapi.TransmitOptionACK|serialapi.TransmitOptionAutoRoute, d.nextCallbackID())
	tx := &txn.Transaction{Request: f, ExpectedReply: true, ExpectedCallback: true}
	d.enqueue(queue.Send, nodeID, tx, func(res txn.Result) {
		if cb == nil {
			return
		}
		if res.Err != nil {
			cb(SendResult{Err: res.Err})
			return
		}
		status := byte(0xff)
		if len(res.Transaction.Callback.Payload) >= 2 {
			status = res.Transaction.Callback.Payload[1]
		}
		cb(SendResult{TransmitStatus: status})
	})
}

// Poll enqueues a one-shot GET (commandClass, getCmd) for nodeID at Poll priority, the lowest
// of the five real queues; the poll loop (internal/poll) calls this once
// per value on its rotation.
func (d *Driver) Poll(nodeID, commandClass, getCmd byte, cb func(SendResult)) {
	payload := []byte{commandClass, getCmd}
	f := serialapi.SendData(nodeID, payload, serialapi.TransmitOptionACK|serialapi.TransmitOptionAutoRoute, d.nextCallbackID())
	tx := &txn.Transaction{Request: f, ExpectedReply: true, ExpectedCallback: true}
	d.enqueue(queue.Poll, nodeID, tx, func(res txn.Result) {
		if cb == nil {
			return
		}
		if res.Err != nil {
			cb(SendResult{Err: res.Err})
			return
		}
		cb(SendResult{})
	})
}
