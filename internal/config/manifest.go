package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Manifest lists pre-generated units for the unitc front end.
type Manifest struct {
	Units []UnitSpec `toml:"unit"`
}

// UnitSpec is one [[unit]] table. Byte fields are hex, whitespace allowed.
type UnitSpec struct {
	Name          string `toml:"name"`
	ISA           string `toml:"isa"`
	Code          string `toml:"code"`
	FrameSize     uint32 `toml:"frame_size"`
	CoreSpillMask uint32 `toml:"core_spill_mask"`
	FPSpillMask   uint32 `toml:"fp_spill_mask"`

	// Lines holds [native, line] pairs.
	Lines   [][]int64 `toml:"lines"`
	Arrange bool      `toml:"arrange"`

	Mapping string `toml:"mapping"`
	Vmap    string `toml:"vmap"`
	GCMap   string `toml:"gc_map"`
	CFI     string `toml:"cfi"`

	Patches    []PatchSpec     `toml:"patch"`
	Safepoints []SafepointSpec `toml:"safepoint"`
}

// sideTables names the tables a unit sets besides its code. A unit with
// safepoints gets a single stack map table and may set none of them.
func (u *UnitSpec) sideTables() []string {
	var names []string
	if len(u.Lines) > 0 {
		names = append(names, "lines")
	}
	for _, t := range []struct{ key, hex string }{
		{"mapping", u.Mapping},
		{"vmap", u.Vmap},
		{"gc_map", u.GCMap},
		{"cfi", u.CFI},
	} {
		if strings.TrimSpace(t.hex) != "" {
			names = append(names, t.key)
		}
	}
	return names
}

// PatchSpec is one [[unit.patch]] table.
type PatchSpec struct {
	Offset uint32 `toml:"offset"`
	Kind   string `toml:"kind"`
	Unit   uint32 `toml:"unit"`
	Index  uint32 `toml:"index"`
}

// SafepointSpec is one [[unit.safepoint]] table; any safepoint turns the
// unit's side tables into a single stack map table.
type SafepointSpec struct {
	SourcePC     uint32         `toml:"source_pc"`
	NativePC     uint32         `toml:"native_pc"`
	RegisterMask uint32         `toml:"register_mask"`
	StackSlots   []int          `toml:"stack_slots"`
	Registers    []LocationSpec `toml:"register"`
	Inlined      []uint32       `toml:"inlined"`
}

// LocationSpec is one [[unit.safepoint.register]] table.
type LocationSpec struct {
	Kind  string `toml:"kind"`
	Value int32  `toml:"value"`
}

// LoadManifest reads and checks a unit manifest.
func LoadManifest(path string) (*Manifest, error) {
	var m Manifest
	meta, err := toml.DecodeFile(path, &m)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}
	if !meta.IsDefined("unit") || len(m.Units) == 0 {
		return nil, fmt.Errorf("%s: no [[unit]] tables", path)
	}
	seen := make(map[string]struct{}, len(m.Units))
	for i, u := range m.Units {
		name := strings.TrimSpace(u.Name)
		if name == "" {
			return nil, fmt.Errorf("%s: unit #%d: name is required", path, i+1)
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("%s: duplicate unit %q", path, name)
		}
		seen[name] = struct{}{}
		if strings.TrimSpace(u.Code) == "" {
			return nil, fmt.Errorf("%s: unit %q: code is required", path, name)
		}
		for j, pair := range u.Lines {
			if len(pair) != 2 {
				return nil, fmt.Errorf("%s: unit %q: lines[%d] must be [native, line]", path, name, j)
			}
		}
		if len(u.Safepoints) > 0 {
			if others := u.sideTables(); len(others) > 0 {
				return nil, fmt.Errorf("%s: unit %q: safepoints cannot be combined with %s", path, name, strings.Join(others, ", "))
			}
		}
	}
	return &m, nil
}
