package notify

import "testing"

func TestFIFODrainReturnsInOrderAndEmpties(t *testing.T) {
	f := NewFIFO()
	f.Push(Event{Kind: NodeAdded, NodeID: 3})
	f.Push(Event{Kind: ValueChanged, NodeID: 3})

	drained := f.Drain()
	if len(drained) != 2 || drained[0].Kind != NodeAdded || drained[1].Kind != ValueChanged {
		t.Fatalf("Drain() = %+v, want [NodeAdded ValueChanged]", drained)
	}
	if f.Len() != 0 {
		t.Fatal("expected empty FIFO after Drain")
	}
	if got := f.Drain(); got != nil {
		t.Fatalf("Drain() on empty FIFO = %+v, want nil", got)
	}
}

func TestHubFansOutToAllAttachedSinks(t *testing.T) {
	h := NewHub()
	var a, b []Event
	h.Attach(SinkFunc(func(e Event) { a = append(a, e) }))
	detachB := h.Attach(SinkFunc(func(e Event) { b = append(b, e) }))

	h.Publish(Event{Kind: DriverReady})
	if len(a) != 1 || len(b) != 1 {
		t.Fatalf("expected both sinks to receive the event, got a=%v b=%v", a, b)
	}

	detachB()
	h.Publish(Event{Kind: DriverFailed})
	if len(a) != 2 {
		t.Fatalf("expected sink a to receive both events, got %v", a)
	}
	if len(b) != 1 {
		t.Fatalf("expected detached sink b to stop receiving, got %v", b)
	}
}

func TestDrainToMovesFIFOEventsThroughHub(t *testing.T) {
	f := NewFIFO()
	h := NewHub()
	var got []Event
	h.Attach(SinkFunc(func(e Event) { got = append(got, e) }))

	f.Push(Event{Kind: NodeQueriesComplete})
	DrainTo(f, h)

	if len(got) != 1 || got[0].Kind != NodeQueriesComplete {
		t.Fatalf("got = %+v, want one NodeQueriesComplete event", got)
	}
	if f.Len() != 0 {
		t.Fatal("expected FIFO empty after DrainTo")
	}
}
