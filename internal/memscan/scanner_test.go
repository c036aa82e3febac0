package memscan

import (
	"context"
	"errors"
	"testing"

	"scriptquest/internal/emu"
)

const (
	testProbeOffset = 0x0F
	testZoneOffset  = 0x04
)

func sidescrollerProbe() Probe {
	return Probe{
		Offset:     testProbeOffset,
		RegionSize: emu.RegionSize,
		Check:      &Plausibility{Offset: testZoneOffset, Max: 0x20},
	}
}

func TestDiscover_FindsRelocatedBase(t *testing.T) {
	console := emu.NewSidescroller(7)
	s := New(console, sidescrollerProbe())
	base, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if base != console.Base() {
		t.Errorf("expected base %#x, got %#x", console.Base(), base)
	}
}

func TestDiscover_IdempotentForStableLayout(t *testing.T) {
	console := emu.NewSidescroller(11)
	s := New(console, sidescrollerProbe())
	first, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("first Discover: %v", err)
	}
	second, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("second Discover: %v", err)
	}
	if first != second {
		t.Errorf("discovery not idempotent: %#x then %#x", first, second)
	}
}

func TestDiscover_RestoresScratchByte(t *testing.T) {
	console := emu.NewSidescroller(13)
	s := New(console, sidescrollerProbe())
	if _, err := s.Discover(context.Background()); err != nil {
		t.Fatalf("Discover: %v", err)
	}
	raw, err := console.ReadRawBytes(console.Base()+testProbeOffset, 1)
	if err != nil {
		t.Fatalf("ReadRawBytes: %v", err)
	}
	if raw[0] != 0 {
		t.Errorf("scratch byte not restored, got %#x", raw[0])
	}
}

// deafConsole ignores indirect writes entirely, so no candidate can ever
// track the markers.
type deafConsole struct {
	*emu.Sidescroller
}

func (d *deafConsole) WriteIndirect(offset int, value byte) {}
func (d *deafConsole) ClearIndirect(offset int)            {}

func TestDiscover_FailsCleanlyWithNoSurvivors(t *testing.T) {
	console := &deafConsole{emu.NewSidescroller(17)}
	s := New(console, sidescrollerProbe())
	_, err := s.Discover(context.Background())
	if !errors.Is(err, ErrDiscoveryFailed) {
		t.Fatalf("expected ErrDiscoveryFailed, got %v", err)
	}
}

// mirrorConsole simulates a layout where patches are visible at two bases in
// lock-step (a shadow copy), forcing the plausibility check to decide.
type mirrorConsole struct {
	ram        []byte
	realBase   int
	shadowBase int
	patches    map[int]byte
	tick       uint64
}

func newMirrorConsole() *mirrorConsole {
	m := &mirrorConsole{
		ram:        make([]byte, 4096),
		realBase:   512,
		shadowBase: 2048,
		patches:    make(map[int]byte),
	}
	// Zone byte: plausible at the real base, garbage at the shadow.
	m.ram[m.realBase+testZoneOffset] = 0x03
	m.ram[m.shadowBase+testZoneOffset] = 0xEE
	return m
}

func (m *mirrorConsole) ApplyInput(player int, button string, pressed bool) error { return nil }

func (m *mirrorConsole) AdvanceOneTick() error {
	for off, v := range m.patches {
		m.ram[m.realBase+off] = v
		m.ram[m.shadowBase+off] = v
	}
	m.tick++
	return nil
}

func (m *mirrorConsole) CurrentTick() uint64 { return m.tick }

func (m *mirrorConsole) ReadRawBytes(addr, n int) ([]byte, error) {
	out := make([]byte, n)
	copy(out, m.ram[addr:addr+n])
	return out, nil
}

func (m *mirrorConsole) AddressSpaceSize() int { return len(m.ram) }

func (m *mirrorConsole) WriteIndirect(offset int, value byte) { m.patches[offset] = value }

func (m *mirrorConsole) ClearIndirect(offset int) { delete(m.patches, offset) }

func (m *mirrorConsole) SerializeState() ([]byte, error) { return nil, nil }

func (m *mirrorConsole) RestoreState([]byte) error { return nil }

func TestDiscover_PlausibilityBreaksAmbiguity(t *testing.T) {
	console := newMirrorConsole()
	probe := Probe{
		Offset:     testProbeOffset,
		RegionSize: 1024,
		Check:      &Plausibility{Offset: testZoneOffset, Max: 0x20},
	}
	s := New(console, probe)
	base, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if base != console.realBase {
		t.Errorf("expected plausibility check to pick %#x, got %#x", console.realBase, base)
	}
}

func TestDiscover_AmbiguousWithoutPlausibleSurvivorFails(t *testing.T) {
	console := newMirrorConsole()
	console.ram[console.realBase+testZoneOffset] = 0xEE // nothing plausible now
	probe := Probe{
		Offset:     testProbeOffset,
		RegionSize: 1024,
		Check:      &Plausibility{Offset: testZoneOffset, Max: 0x20},
	}
	_, err := New(console, probe).Discover(context.Background())
	if !errors.Is(err, ErrDiscoveryFailed) {
		t.Fatalf("expected ErrDiscoveryFailed for implausible survivors, got %v", err)
	}
}
