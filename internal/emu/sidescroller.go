// Sidescroller is the deterministic built-in console used by the CLI and tests.
package emu

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
)

const (
	// AddressSpace is the size of the sidescroller's readable address space.
	AddressSpace = 256 * 1024
	// RegionSize is the size of the relocatable work-RAM region.
	RegionSize = 64 * 1024

	// Region-relative offsets of the machine's named state.
	offX     = 0x00 // u16 little-endian
	offY     = 0x02 // u16 little-endian
	offZone  = 0x04 // u8
	offCoins = 0x05 // u8
	offVX    = 0x06 // s8
	offScore = 0x08 // u32 little-endian

	maxX = 60000
)

var validButtons = map[string]bool{
	ButtonLeft: true, ButtonRight: true, ButtonUp: true, ButtonDown: true,
	ButtonA: true, ButtonB: true, ButtonStart: true, ButtonSelect: true,
}

// Sidescroller emulates a tiny platformer: a player position driven by held
// directional buttons, with score, coins and zone derived from progress. The
// work-RAM region is placed at a seed-dependent base so that discovery has
// something real to find.
type Sidescroller struct {
	mu      sync.Mutex
	ram     []byte
	base    int
	tick    uint64
	held    [2]map[string]bool
	patches map[int]byte

	x, y  int
	vx    int
	coins int
	score int
}

// NewSidescroller builds a console whose region placement and background
// memory contents are fully determined by seed.
func NewSidescroller(seed int64) *Sidescroller {
	rng := rand.New(rand.NewSource(seed))
	s := &Sidescroller{
		ram:     make([]byte, AddressSpace),
		patches: make(map[int]byte),
	}
	for i := range s.ram {
		s.ram[i] = byte(rng.Intn(256))
	}
	// Page-aligned base with room for the full region.
	pages := (AddressSpace - RegionSize) / 0x100
	s.base = rng.Intn(pages) * 0x100
	s.held[0] = make(map[string]bool)
	s.held[1] = make(map[string]bool)
	s.writeRegion()
	return s
}

// Base reports the region base; tests use it to validate discovery.
func (s *Sidescroller) Base() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.base
}

// ApplyInput sets or clears a held button.
func (s *Sidescroller) ApplyInput(player int, button string, pressed bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if player < 0 || player >= len(s.held) {
		return fmt.Errorf("invalid player %d", player)
	}
	if !validButtons[button] {
		return fmt.Errorf("unknown button %q", button)
	}
	if pressed {
		s.held[player][button] = true
	} else {
		delete(s.held[player], button)
	}
	return nil
}

// AdvanceOneTick runs one tick of machine physics and refreshes work RAM.
func (s *Sidescroller) AdvanceOneTick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p1 := s.held[0]
	switch {
	case p1[ButtonRight] && !p1[ButtonLeft]:
		s.vx = 5
	case p1[ButtonLeft] && !p1[ButtonRight]:
		s.vx = -5
	default:
		s.vx = 0
	}
	s.x += s.vx
	if s.x < 0 {
		s.x = 0
	}
	if s.x > maxX {
		s.x = maxX
	}
	if p1[ButtonA] && s.y == 0 {
		s.y = 30
	} else if s.y > 0 {
		s.y -= 3
		if s.y < 0 {
			s.y = 0
		}
	}
	s.coins = s.x / 250
	s.score = s.x*2 + s.coins*50
	s.writeRegion()
	s.tick++
	return nil
}

// writeRegion mirrors authoritative state into work RAM, then applies any
// installed indirect patches on top. Callers hold s.mu.
func (s *Sidescroller) writeRegion() {
	r := s.ram[s.base : s.base+RegionSize]
	r[offX] = byte(s.x)
	r[offX+1] = byte(s.x >> 8)
	r[offY] = byte(s.y)
	r[offY+1] = byte(s.y >> 8)
	zone := s.x / 2048
	if zone > 15 {
		zone = 15
	}
	r[offZone] = byte(zone)
	r[offCoins] = byte(s.coins)
	r[offVX] = byte(int8(s.vx))
	r[offScore] = byte(s.score)
	r[offScore+1] = byte(s.score >> 8)
	r[offScore+2] = byte(s.score >> 16)
	r[offScore+3] = byte(s.score >> 24)
	for off, v := range s.patches {
		if off >= 0 && off < RegionSize {
			r[off] = v
		}
	}
}

// CurrentTick reports the absolute tick count.
func (s *Sidescroller) CurrentTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// ReadRawBytes copies n bytes starting at addr.
func (s *Sidescroller) ReadRawBytes(addr, n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if addr < 0 || n < 0 || addr+n > len(s.ram) {
		return nil, fmt.Errorf("read of %d bytes at %#x out of bounds", n, addr)
	}
	out := make([]byte, n)
	copy(out, s.ram[addr:addr+n])
	return out, nil
}

// AddressSpaceSize reports the readable address space size.
func (s *Sidescroller) AddressSpaceSize() int {
	return AddressSpace
}

// WriteIndirect installs a patch at a region-relative offset. The patch is
// reapplied after every tick until cleared, shadowing the machine's own
// writes, exactly like a gameplay cheat patch.
func (s *Sidescroller) WriteIndirect(offset int, value byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patches[offset] = value
}

// ClearIndirect removes an installed patch.
func (s *Sidescroller) ClearIndirect(offset int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.patches, offset)
}

// savedState is the serialized form of the machine.
type savedState struct {
	Tick    uint64       `json:"tick"`
	Base    int          `json:"base"`
	X       int          `json:"x"`
	Y       int          `json:"y"`
	VX      int          `json:"vx"`
	Coins   int          `json:"coins"`
	Score   int          `json:"score"`
	Held    [2][]string  `json:"held"`
	Patches map[int]byte `json:"patches"`
}

// SerializeState captures the full machine state.
func (s *Sidescroller) SerializeState() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := savedState{
		Tick:    s.tick,
		Base:    s.base,
		X:       s.x,
		Y:       s.y,
		VX:      s.vx,
		Coins:   s.coins,
		Score:   s.score,
		Patches: make(map[int]byte, len(s.patches)),
	}
	for p := range s.held {
		for b := range s.held[p] {
			st.Held[p] = append(st.Held[p], b)
		}
	}
	for off, v := range s.patches {
		st.Patches[off] = v
	}
	return json.Marshal(st)
}

// RestoreState restores a previously serialized state.
func (s *Sidescroller) RestoreState(data []byte) error {
	var st savedState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.Base < 0 || st.Base+RegionSize > len(s.ram) {
		return fmt.Errorf("restored base %#x out of bounds", st.Base)
	}
	s.tick = st.Tick
	s.base = st.Base
	s.x, s.y, s.vx = st.X, st.Y, st.VX
	s.coins, s.score = st.Coins, st.Score
	for p := range s.held {
		s.held[p] = make(map[string]bool)
		for _, b := range st.Held[p] {
			s.held[p][b] = true
		}
	}
	s.patches = make(map[int]byte, len(st.Patches))
	for off, v := range st.Patches {
		s.patches[off] = v
	}
	s.writeRegion()
	return nil
}
