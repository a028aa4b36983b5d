package driver

import (
	"context"

	"zwave-go-home/internal/commandclass"
	"zwave-go-home/internal/poll"
)

// getCommand maps a command class to the single-byte "get" command the
// poll loop re-sends for it. Command classes not listed here are simply
// never auto-polled — an embedder wanting to poll a class the core
// doesn't know about should drive SendData directly on its own timer
// instead of going through EnablePoll.
var getCommand = map[byte]byte{
	commandclass.Basic:                0x02,
	commandclass.Association:          0x02,
	commandclass.Version:              0x11,
	commandclass.ManufacturerSpecific: 0x04,
	commandclass.WakeUp:               0x05,
}

// EnablePoll adds id to the rotating poll list.
func (d *Driver) EnablePoll(id poll.ValueID) bool { return d.pollist.Enable(id) }

// DisablePoll removes id from the rotating poll list.
func (d *Driver) DisablePoll(id poll.ValueID) bool { return d.pollist.Disable(id) }

// StartPolling runs the poll loop on its own goroutine until ctx is
// cancelled, feeding due value ids into the Poll queue via Driver.Poll.
func (d *Driver) StartPolling(ctx context.Context) {
	loop := poll.NewLoop(d.pollist, d.opts.PollInterval, d.onPollDue, d.logger)
	go loop.Run(ctx)
}

func (d *Driver) onPollDue(id poll.ValueID) {
	cmd, ok := getCommand[id.CommandClass]
	if !ok {
		return
	}
	d.Poll(id.NodeID, id.CommandClass, cmd, nil)
}
