// Typed reads of named console variables out of a discovered region.
package state

import (
	"errors"
	"fmt"
	"sort"

	"scriptquest/internal/emu"
)

var (
	// ErrNotLoaded is returned when no variable table has been loaded.
	ErrNotLoaded = errors.New("no variable table loaded")
	// ErrNoBase is returned when the region base has not been discovered.
	ErrNoBase = errors.New("region base not discovered")
	// ErrVariableNotFound is returned for names absent from the table.
	ErrVariableNotFound = errors.New("variable not found")
)

// Endianness of a mapped variable.
const (
	Little = "little"
	Big    = "big"
)

// Mapping describes where and how one named variable lives in the region.
type Mapping struct {
	Offset int
	Width  int // bytes, one of 1, 2, 4
	Signed bool
	Endian string // Little or Big
}

// Table maps variable names to their region-relative mappings. Tables are
// loaded once per title and shared read-only across sessions.
type Table map[string]Mapping

// Snapshot is a point-in-time view of every mapped variable.
type Snapshot map[string]int64

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Names returns the snapshot's variable names in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for k := range s {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Reader resolves named variables against raw console memory. The base and
// table are established once and reused across sessions until the console's
// layout is invalidated (a full reload), which requires re-discovery.
type Reader struct {
	console emu.Console
	table   Table
	base    int
	hasBase bool
}

// NewReader returns a Reader with no table and no base.
func NewReader(console emu.Console) *Reader {
	return &Reader{console: console}
}

// LoadTable installs the named-variable table for the loaded title.
func (r *Reader) LoadTable(t Table) {
	r.table = t
}

// SetBase records the discovered region base.
func (r *Reader) SetBase(base int) {
	r.base = base
	r.hasBase = true
}

// Loaded reports whether a table has been installed.
func (r *Reader) Loaded() bool {
	return r.table != nil
}

// ReadVariable resolves one named variable to its current value.
func (r *Reader) ReadVariable(name string) (int64, error) {
	if r.table == nil {
		return 0, ErrNotLoaded
	}
	m, ok := r.table[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrVariableNotFound, name)
	}
	if !r.hasBase {
		return 0, ErrNoBase
	}
	raw, err := r.console.ReadRawBytes(r.base+m.Offset, m.Width)
	if err != nil {
		return 0, fmt.Errorf("reading %q: %w", name, err)
	}
	return decode(raw, m), nil
}

// ReadAll snapshots every mapped variable. Individual read failures degrade
// to zero for that variable only; a snapshot is always producible once a
// table is loaded.
func (r *Reader) ReadAll() (Snapshot, error) {
	if r.table == nil {
		return nil, ErrNotLoaded
	}
	snap := make(Snapshot, len(r.table))
	for name := range r.table {
		v, err := r.ReadVariable(name)
		if err != nil {
			v = 0
		}
		snap[name] = v
	}
	return snap, nil
}

// decode reassembles raw bytes per the declared endianness and applies
// two's-complement sign extension for signed mappings.
func decode(raw []byte, m Mapping) int64 {
	var u uint64
	if m.Endian == Big {
		for _, b := range raw {
			u = u<<8 | uint64(b)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			u = u<<8 | uint64(raw[i])
		}
	}
	if m.Signed {
		shift := uint(64 - 8*len(raw))
		return int64(u<<shift) >> shift
	}
	return int64(u)
}
