// Package luascript lets an embedder register a command-class handler
// written in Lua instead of Go, behind the same commandclass.Handler
// interface any native implementation satisfies. The driver core never
// knows the difference — routing a frame to a Lua-backed handler is no
// different from routing it to a Go one (see SPEC_FULL.md §6).
package luascript

import (
	"fmt"
	"sync"

	lua "github.com/yuin/gopher-lua"
)

// Handler runs one Lua script's handle_msg(node_id, instance, payload)
// function for every frame routed to it. Lua states are not safe for
// concurrent use, so each Handler serializes calls with its own mutex —
// command-class handlers are invoked one at a time from the driver loop
// anyway, but a Handler may also be driven by tests directly.
type Handler struct {
	mu     sync.Mutex
	L      *lua.LState
	script string
}

// New compiles script (the Lua source, expected to define a top-level
// handle_msg function) into a fresh Lua state.
func New(script string) (*Handler, error) {
	L := lua.NewState()
	if err := L.DoString(script); err != nil {
		L.Close()
		return nil, fmt.Errorf("luascript: load script: %w", err)
	}
	if L.GetGlobal("handle_msg") == lua.LNil {
		L.Close()
		return nil, fmt.Errorf("luascript: script does not define handle_msg")
	}
	return &Handler{L: L, script: script}, nil
}

// HandleMsg implements commandclass.Handler by calling the script's
// handle_msg(node_id, instance, payload) with payload as a Lua table of
// integers, one per byte.
func (h *Handler) HandleMsg(nodeID byte, instance byte, payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	tbl := h.L.NewTable()
	for i, b := range payload {
		h.L.RawSetInt(tbl, i+1, lua.LNumber(b))
	}

	fn := h.L.GetGlobal("handle_msg")
	if err := h.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, lua.LNumber(nodeID), lua.LNumber(instance), tbl); err != nil {
		return fmt.Errorf("luascript: handle_msg: %w", err)
	}
	return nil
}

// Close releases the Lua state.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.L.Close()
}
