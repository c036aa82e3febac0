// YAML challenge-catalog loader with CUE validation integration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"scriptquest/internal/memscan"
	"scriptquest/internal/state"
)

// VariableSpec describes one named variable of a title.
type VariableSpec struct {
	Offset int    `yaml:"offset"`
	Width  int    `yaml:"width"`
	Signed bool   `yaml:"signed"`
	Endian string `yaml:"endian"`
}

// PlausibilitySpec is the optional secondary discovery check.
type PlausibilitySpec struct {
	Offset int   `yaml:"offset"`
	Max    uint8 `yaml:"max"`
}

// ProbeSpec describes the discovery probe layout for a title.
type ProbeSpec struct {
	Offset       int               `yaml:"offset"`
	RegionSize   int               `yaml:"region_size"`
	Plausibility *PlausibilitySpec `yaml:"plausibility"`
}

// Goal is a single success condition over a state snapshot.
type Goal struct {
	Variable string `yaml:"variable"`
	Op       string `yaml:"op"`
	Value    int64  `yaml:"value"`
}

// Predicate compiles the goal into a snapshot predicate.
func (g Goal) Predicate() (func(state.Snapshot) bool, error) {
	var cmp func(a, b int64) bool
	switch g.Op {
	case "<":
		cmp = func(a, b int64) bool { return a < b }
	case "<=":
		cmp = func(a, b int64) bool { return a <= b }
	case ">":
		cmp = func(a, b int64) bool { return a > b }
	case ">=":
		cmp = func(a, b int64) bool { return a >= b }
	case "==":
		cmp = func(a, b int64) bool { return a == b }
	case "!=":
		cmp = func(a, b int64) bool { return a != b }
	default:
		return nil, fmt.Errorf("unknown goal operator %q", g.Op)
	}
	name, want := g.Variable, g.Value
	return func(snap state.Snapshot) bool {
		v, ok := snap[name]
		return ok && cmp(v, want)
	}, nil
}

// Challenge is one scripted task with its budget and goal.
type Challenge struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Hints       []string `yaml:"hints"`
	Budget      int      `yaml:"budget"`
	SampleEvery int      `yaml:"sample_every"`
	Goal        Goal     `yaml:"goal"`
}

// Catalog is the root configuration for one title: its variable table,
// discovery probe, and challenges.
type Catalog struct {
	Title      string                  `yaml:"title"`
	Probe      ProbeSpec               `yaml:"probe"`
	Variables  map[string]VariableSpec `yaml:"variables"`
	Challenges []Challenge             `yaml:"challenges"`
}

// Load loads a YAML catalog and validates it against a CUE schema first.
// An empty schema path skips schema validation.
func Load(catalogPath, cueSchemaPath string) (*Catalog, error) {
	if cueSchemaPath != "" {
		if err := ValidateWithCue(catalogPath, cueSchemaPath); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(catalogPath)
	if err != nil {
		return nil, err
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, err
	}
	if err := cat.validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

func (c *Catalog) validate() error {
	if c.Title == "" {
		return fmt.Errorf("catalog has no title")
	}
	if len(c.Variables) == 0 {
		return fmt.Errorf("catalog %q defines no variables", c.Title)
	}
	for name, v := range c.Variables {
		switch v.Width {
		case 1, 2, 4:
		default:
			return fmt.Errorf("variable %q: width must be 1, 2 or 4, got %d", name, v.Width)
		}
		if v.Endian != state.Little && v.Endian != state.Big {
			return fmt.Errorf("variable %q: endian must be %q or %q", name, state.Little, state.Big)
		}
	}
	for _, ch := range c.Challenges {
		if ch.ID == "" {
			return fmt.Errorf("challenge without id in catalog %q", c.Title)
		}
		if ch.Budget <= 0 {
			return fmt.Errorf("challenge %q: budget must be positive", ch.ID)
		}
		if _, err := ch.Goal.Predicate(); err != nil {
			return fmt.Errorf("challenge %q: %w", ch.ID, err)
		}
		if _, ok := c.Variables[ch.Goal.Variable]; !ok {
			return fmt.Errorf("challenge %q: goal references unknown variable %q", ch.ID, ch.Goal.Variable)
		}
	}
	return nil
}

// Challenge finds a challenge by id.
func (c *Catalog) Challenge(id string) (*Challenge, error) {
	for i := range c.Challenges {
		if c.Challenges[i].ID == id {
			return &c.Challenges[i], nil
		}
	}
	return nil, fmt.Errorf("challenge %q not found in catalog %q", id, c.Title)
}

// Table converts the catalog's variable specs into a reader table.
func (c *Catalog) Table() state.Table {
	t := make(state.Table, len(c.Variables))
	for name, v := range c.Variables {
		t[name] = state.Mapping{Offset: v.Offset, Width: v.Width, Signed: v.Signed, Endian: v.Endian}
	}
	return t
}

// ScanProbe converts the catalog's probe spec for the discovery engine.
func (c *Catalog) ScanProbe() memscan.Probe {
	p := memscan.Probe{Offset: c.Probe.Offset, RegionSize: c.Probe.RegionSize}
	if c.Probe.Plausibility != nil {
		p.Check = &memscan.Plausibility{
			Offset: c.Probe.Plausibility.Offset,
			Max:    c.Probe.Plausibility.Max,
		}
	}
	return p
}
