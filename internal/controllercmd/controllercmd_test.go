package controllercmd

import "testing"

func TestOnlyOneCommandActiveAtATime(t *testing.T) {
	m := New()
	if err := m.Begin(AddDevice, 0, nil, nil); err != nil {
		t.Fatalf("first Begin: %v", err)
	}
	if err := m.Begin(RemoveDevice, 0, nil, nil); err == nil {
		t.Fatal("expected error starting a second command while one is active")
	}
	if m.Active() != AddDevice {
		t.Fatalf("Active() = %s, want AddDevice", m.Active())
	}
}

func TestFinishClearsActiveCommand(t *testing.T) {
	m := New()
	var states []State
	m.Begin(AddDevice, 0, func(s State, nodeID byte, ctx interface{}) { states = append(states, s) }, nil)
	m.Advance(InProgress, 0)
	m.Finish(Complete, 9)

	if m.Active() != None {
		t.Fatalf("Active() = %s, want None after Finish", m.Active())
	}
	want := []State{Starting, InProgress, Complete}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestCancelReturnsKindAndClears(t *testing.T) {
	m := New()
	m.Begin(RequestNodeNeighborUpdate, 3, nil, nil)
	kind, ok := m.Cancel()
	if !ok || kind != RequestNodeNeighborUpdate {
		t.Fatalf("Cancel() = %s, %v, want RequestNodeNeighborUpdate, true", kind, ok)
	}
	if m.Active() != None {
		t.Fatal("expected no active command after Cancel")
	}
	if _, ok := m.Cancel(); ok {
		t.Fatal("Cancel on an idle machine should report false")
	}
}

func TestCancellableClassification(t *testing.T) {
	if !Cancellable(AddDevice) {
		t.Error("AddDevice should be cancellable")
	}
	if Cancellable(RequestNetworkUpdate) {
		t.Error("RequestNetworkUpdate should not be cancellable mid-flight")
	}
}

func TestCancellableIncludesButtonCommands(t *testing.T) {
	if !Cancellable(CreateButton) {
		t.Error("CreateButton should be cancellable")
	}
	if !Cancellable(DeleteButton) {
		t.Error("DeleteButton should be cancellable")
	}
}

func TestNodeIDReportsActiveCommandTarget(t *testing.T) {
	m := New()
	if m.NodeID() != 0 {
		t.Fatalf("NodeID() = %d on idle machine, want 0", m.NodeID())
	}
	m.Begin(RequestNodeNeighborUpdate, 7, nil, nil)
	if m.NodeID() != 7 {
		t.Fatalf("NodeID() = %d, want 7", m.NodeID())
	}
	m.Finish(Complete, 7)
	if m.NodeID() != 0 {
		t.Fatalf("NodeID() = %d after Finish, want 0", m.NodeID())
	}
}

func TestContextPassedThroughToCallback(t *testing.T) {
	m := New()
	type ctxType struct{ tag string }
	var seen interface{}
	m.Begin(CreateButton, 0, func(s State, nodeID byte, ctx interface{}) { seen = ctx }, ctxType{tag: "hello"})
	if seen.(ctxType).tag != "hello" {
		t.Fatalf("callback context = %+v, want tag=hello", seen)
	}
}
