package poll

import "testing"

func TestEnableIsIdempotent(t *testing.T) {
	l := NewList()
	id := ValueID{NodeID: 1, CommandClass: 0x20}
	if !l.Enable(id) {
		t.Fatal("first Enable should report true")
	}
	if !l.Enable(id) {
		t.Fatal("second Enable of the same id should still report true")
	}
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
}

func TestDisableIsIdempotent(t *testing.T) {
	l := NewList()
	id := ValueID{NodeID: 1, CommandClass: 0x20}
	if l.Disable(id) {
		t.Fatal("Disable of an id never enabled should report false")
	}
	l.Enable(id)
	if !l.Disable(id) {
		t.Fatal("first Disable should report true")
	}
	if l.Disable(id) {
		t.Fatal("second Disable should report false")
	}
}

func TestNextRotatesToBack(t *testing.T) {
	l := NewList()
	a := ValueID{NodeID: 1}
	b := ValueID{NodeID: 2}
	l.Enable(a)
	l.Enable(b)

	first, ok := l.Next()
	if !ok || first != a {
		t.Fatalf("Next() = %+v, want a", first)
	}
	second, ok := l.Next()
	if !ok || second != b {
		t.Fatalf("Next() = %+v, want b", second)
	}
	third, ok := l.Next()
	if !ok || third != a {
		t.Fatalf("Next() = %+v, want a again after rotation", third)
	}
}

func TestRemoveNodeDropsOnlyThatNodesValues(t *testing.T) {
	l := NewList()
	l.Enable(ValueID{NodeID: 1, CommandClass: 0x20})
	l.Enable(ValueID{NodeID: 2, CommandClass: 0x20})
	l.RemoveNode(1)
	if l.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", l.Len())
	}
	if l.Enabled(ValueID{NodeID: 1, CommandClass: 0x20}) {
		t.Fatal("node 1's value should have been removed")
	}
}
