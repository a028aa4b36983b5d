package commandclass

// Well-known command-class ids the node query pipeline (internal/node
// via internal/driver) depends on directly, since those stages need to
// send the right request even with no handler registered yet.
const (
	Basic                byte = 0x20
	Association          byte = 0x85
	Version              byte = 0x86
	ManufacturerSpecific byte = 0x72
	WakeUp               byte = 0x84
	Security             byte = 0x98
	MultiChannel         byte = 0x60
	MultiChannelV2       byte = 0x60
)
