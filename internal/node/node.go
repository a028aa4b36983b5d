// Package node holds the network's node table: a fixed 232-slot
// addressable array of node records, the query-stage pipeline each node
// progresses through after it is discovered, and the neighbor bitmap
// used for routing decisions.
package node

import "sync"

// MaxNodeID is the highest addressable Z-Wave node id. Index 0 is
// unused; 1..232 are addressable; ids above that are not stored in the
// table.
const MaxNodeID = 232

// QueryStage is where a node's interrogation pipeline currently stands.
type QueryStage int

const (
	StageNone QueryStage = iota
	StageProtocolInfo
	StageInstances
	StageWakeUp
	StageManufacturerSpecific
	StageVersions
	StageSecurityReport
	StageAssociations
	StageSession
	StageDynamic
	StageComplete
)

func (s QueryStage) String() string {
	names := [...]string{
		"None", "ProtocolInfo", "Instances", "WakeUp", "ManufacturerSpecific",
		"Versions", "SecurityReport", "Associations", "Session", "Dynamic", "Complete",
	}
	if int(s) < 0 || int(s) >= len(names) {
		return "Unknown"
	}
	return names[s]
}

// Next returns the stage that follows s in the pipeline, or StageComplete
// if s is already the last stage.
func (s QueryStage) Next() QueryStage {
	if s >= StageComplete {
		return StageComplete
	}
	return s + 1
}

// ProductID identifies a device's manufacturer/product/product-type
// triplet, as reported by the Manufacturer Specific command class.
type ProductID struct {
	ManufacturerID uint16
	ProductType    uint16
	ProductID      uint16
}

// Flags mirrors the protocol-info bitfield a node reports: listening,
// routing, beaming, FLiRS, and the security/frequent-listening bits a
// controller needs to choose a queue for it.
type Flags struct {
	Listening      bool
	Routing        bool
	Beaming        bool
	FrequentlyListens bool // FLiRS: 250ms or 1000ms wake-up capable
	Security       bool
}

// neighborBits is a 232-bit bitmap, 29 bytes, one bit per possible
// neighbor node id (bit i-1 is node i, matching the wire format of
// ZW_GET_ROUTING_INFO's neighbor list).
type neighborBits [29]byte

func (n *neighborBits) Set(nodeID byte, on bool) {
	if nodeID < 1 || int(nodeID) > MaxNodeID {
		return
	}
	idx := (nodeID - 1) / 8
	bit := byte(1) << ((nodeID - 1) % 8)
	if on {
		n[idx] |= bit
	} else {
		n[idx] &^= bit
	}
}

func (n *neighborBits) Get(nodeID byte) bool {
	if nodeID < 1 || int(nodeID) > MaxNodeID {
		return false
	}
	idx := (nodeID - 1) / 8
	bit := byte(1) << ((nodeID - 1) % 8)
	return n[idx]&bit != 0
}

// Neighbors returns the sorted list of node ids this record's neighbor
// bitmap marks as reachable.
func (n *neighborBits) Neighbors() []byte {
	var out []byte
	for id := byte(1); int(id) <= MaxNodeID; id++ {
		if n.Get(id) {
			out = append(out, id)
		}
	}
	return out
}

// Record is one node's table entry.
type Record struct {
	ID        byte
	Flags     Flags
	DeviceClass struct {
		Basic    byte
		Generic  byte
		Specific byte
	}
	Product   ProductID
	Neighbors neighborBits
	Stage     QueryStage
	Awake     bool // wake-up handler's view of whether the node can currently be reached
	// StageRetries counts how many times the current Stage's request has
	// been retried after a NodeInfoReqFailed ApplicationUpdate. Reset to
	// 0 whenever Stage advances.
	StageRetries int
	// WriteCount is bumped on every Table.WithLock call against this
	// record.
	WriteCount uint32
	// ButtonMap maps an 8-bit button id this node owns (bridge mode) to
	// the virtual node id that represents it on the wire.
	ButtonMap map[byte]byte
}

func newRecord(id byte) *Record {
	return &Record{ID: id, ButtonMap: make(map[byte]byte)}
}

// Table is the fixed 232-slot node table, guarded by a single
// reader/writer mutex as the one structure every driver subsystem reads.
type Table struct {
	mu    sync.RWMutex
	slots [MaxNodeID + 1]*Record // index 0 unused
}

func NewTable() *Table { return &Table{} }

// Add creates (or replaces) the record for id and returns it.
func (t *Table) Add(id byte) *Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := newRecord(id)
	t.slots[id] = r
	return r
}

// Remove clears id's slot.
func (t *Table) Remove(id byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.slots[id] = nil
}

// Get returns id's record, or nil if the slot is empty. The returned
// pointer must only be mutated while holding WithLock, since callers may
// race with All under the RLock.
func (t *Table) Get(id byte) *Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 1 || int(id) > MaxNodeID {
		return nil
	}
	return t.slots[id]
}

// WithLock runs fn with the table's write lock held, for read-modify-write
// updates to a single record (e.g. advancing its query stage).
func (t *Table) WithLock(id byte, fn func(r *Record)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id < 1 || int(id) > MaxNodeID {
		return
	}
	r := t.slots[id]
	if r == nil {
		return
	}
	fn(r)
	r.WriteCount++
}

// All returns a snapshot slice of every non-empty record, ordered by id.
func (t *Table) All() []*Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Record, 0, MaxNodeID)
	for id := 1; id <= MaxNodeID; id++ {
		if r := t.slots[id]; r != nil {
			out = append(out, r)
		}
	}
	return out
}

// AllQueried reports whether every known node has reached StageComplete
// (drives the AllNodesQueried notification).
func (t *Table) AllQueried() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id := 1; id <= MaxNodeID; id++ {
		if r := t.slots[id]; r != nil && r.Stage != StageComplete {
			return false
		}
	}
	return true
}

// AwakeNodesQueried reports whether every listening, or currently awake
// sleeping, node has reached StageComplete — the weaker notification
// fired before every battery node has necessarily woken up once.
func (t *Table) AwakeNodesQueried() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for id := 1; id <= MaxNodeID; id++ {
		r := t.slots[id]
		if r == nil {
			continue
		}
		if (r.Flags.Listening || r.Awake) && r.Stage != StageComplete {
			return false
		}
	}
	return true
}
