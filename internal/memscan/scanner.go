// Two-phase marker-scan discovery of a relocated work-RAM region.
package memscan

import (
	"context"
	"errors"
	"fmt"

	"scriptquest/internal/emu"
	"scriptquest/internal/logging"
)

// ErrDiscoveryFailed is returned when no candidate survives both scan phases
// (or none passes the plausibility check). Callers treat it as non-fatal:
// raw-address reads keep working, only named-variable reads degrade.
var ErrDiscoveryFailed = errors.New("memory base discovery failed")

// Marker values written during the two scan phases. They only need to be
// distinct; candidates must track both writes to survive.
const (
	markerPhase1 = 0xA7
	markerPhase2 = 0x58
)

// Plausibility is an optional secondary check used to disambiguate multiple
// surviving candidates: the byte at Offset (region-relative) must be <= Max.
// The threshold is a per-title heuristic, not a general rule.
type Plausibility struct {
	Offset int
	Max    byte
}

// Probe describes where and how to scan for one title.
type Probe struct {
	// Offset is the region-relative scratch byte the markers are written to.
	Offset int
	// RegionSize is the size of the region that must fit at a candidate base.
	RegionSize int
	// Check disambiguates multiple survivors; nil means first-survivor-wins.
	Check *Plausibility
}

// Scanner locates the base of a relocated region using only the console's
// indirect patch-write mechanism and raw reads. The technique is heuristic:
// a byte that coincidentally matches both markers in lock-step would produce
// a false positive. That risk is accepted and bounded by the plausibility
// check rather than eliminated.
type Scanner struct {
	console emu.Console
	probe   Probe
}

// New returns a Scanner for the given console and probe layout.
func New(console emu.Console, probe Probe) *Scanner {
	return &Scanner{console: console, probe: probe}
}

// Discover runs the two-phase scan and returns the region base offset.
func (s *Scanner) Discover(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)

	// Phase 1: write the first marker and collect every matching position
	// where a full region would fit.
	s.console.WriteIndirect(s.probe.Offset, markerPhase1)
	if err := s.console.AdvanceOneTick(); err != nil {
		s.console.ClearIndirect(s.probe.Offset)
		return 0, fmt.Errorf("advancing for phase 1 marker: %w", err)
	}
	space := s.console.AddressSpaceSize()
	raw, err := s.console.ReadRawBytes(0, space)
	if err != nil {
		s.console.ClearIndirect(s.probe.Offset)
		return 0, fmt.Errorf("reading address space: %w", err)
	}
	var candidates []int
	for pos, b := range raw {
		if b != markerPhase1 {
			continue
		}
		base := pos - s.probe.Offset
		if base < 0 || base+s.probe.RegionSize > space {
			continue
		}
		candidates = append(candidates, base)
	}
	log.Debug("marker scan phase 1", "candidates", len(candidates))

	if err := ctx.Err(); err != nil {
		s.console.ClearIndirect(s.probe.Offset)
		return 0, err
	}

	// Phase 2: flip the marker and keep only candidates that changed in
	// lock-step with the controlled write.
	s.console.WriteIndirect(s.probe.Offset, markerPhase2)
	if err := s.console.AdvanceOneTick(); err != nil {
		s.console.ClearIndirect(s.probe.Offset)
		return 0, fmt.Errorf("advancing for phase 2 marker: %w", err)
	}
	var survivors []int
	for _, base := range candidates {
		b, err := s.console.ReadRawBytes(base+s.probe.Offset, 1)
		if err != nil {
			continue
		}
		if b[0] == markerPhase2 {
			survivors = append(survivors, base)
		}
	}
	log.Debug("marker scan phase 2", "survivors", len(survivors))

	// The marker write clobbered live state; put the scratch byte back to a
	// sane default before handing the machine back.
	s.restoreScratch()

	if len(survivors) == 0 {
		return 0, fmt.Errorf("%w: no candidate survived both phases", ErrDiscoveryFailed)
	}
	if len(survivors) == 1 || s.probe.Check == nil {
		return survivors[0], nil
	}
	for _, base := range survivors {
		b, err := s.console.ReadRawBytes(base+s.probe.Check.Offset, 1)
		if err != nil {
			continue
		}
		if b[0] <= s.probe.Check.Max {
			return base, nil
		}
	}
	return 0, fmt.Errorf("%w: %d ambiguous candidates, none plausible", ErrDiscoveryFailed, len(survivors))
}

// restoreScratch clears the marker patch and writes a zero default so normal
// state resumes without a stale marker byte.
func (s *Scanner) restoreScratch() {
	s.console.ClearIndirect(s.probe.Offset)
	s.console.WriteIndirect(s.probe.Offset, 0)
	_ = s.console.AdvanceOneTick()
	s.console.ClearIndirect(s.probe.Offset)
}
