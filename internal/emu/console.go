// Console is the boundary to the emulated machine the engine drives.
package emu

// Button identifiers understood by the consoles shipped with the engine.
// The engine itself treats buttons as opaque strings; scripts pass them
// straight through.
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonUp     = "up"
	ButtonDown   = "down"
	ButtonA      = "a"
	ButtonB      = "b"
	ButtonStart  = "start"
	ButtonSelect = "select"
)

// Console is the full surface the engine consumes from a simulation.
// Everything behind it is opaque: the engine never assumes direct access
// to the machine's internals beyond these calls.
type Console interface {
	// ApplyInput sets or clears a held button for a player.
	ApplyInput(player int, button string, pressed bool) error

	// AdvanceOneTick advances the machine by exactly one discrete tick.
	AdvanceOneTick() error

	// CurrentTick reports the machine's absolute tick count.
	CurrentTick() uint64

	// ReadRawBytes copies n bytes starting at addr out of the address space.
	ReadRawBytes(addr, n int) ([]byte, error)

	// AddressSpaceSize reports the size of the readable address space.
	AddressSpaceSize() int

	// WriteIndirect installs a revocable patch: after every subsequent
	// tick the byte at the given region-relative offset holds value.
	// This is the same mechanism ordinary gameplay patches use; it is
	// the only write access the engine ever relies on.
	WriteIndirect(offset int, value byte)

	// ClearIndirect removes a patch installed by WriteIndirect.
	ClearIndirect(offset int)

	// SerializeState captures the full machine state.
	SerializeState() ([]byte, error)

	// RestoreState restores a state captured by SerializeState.
	RestoreState(data []byte) error
}
