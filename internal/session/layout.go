package session

import (
	"fmt"
	"strconv"

	"fortio.org/safecast"

	"nativeunit/internal/compiled"
	"nativeunit/internal/isa"
	"nativeunit/internal/patch"
	"nativeunit/internal/trace"
)

// Placement is where one unit landed in the merged text region.
type Placement struct {
	Unit *compiled.Method
	// Offset is relative to the start of the region.
	Offset uint32
	// Entry is the tagged entry point address base+Offset.
	Entry uint64
	// Reused is set when the unit shares the code of an earlier unit.
	Reused bool
	// Patches are the unit's sites sorted, with duplicates removed.
	Patches []patch.Patch
}

type codeKey struct {
	set  isa.InstructionSet
	code string
}

// Layout assigns every unit an offset in one text region starting at base,
// chosen so that base+offset meets the unit's code alignment. Units whose
// code equals an earlier unit's reuse its offset. Each unit records the
// chosen offset as a back-reference.
func (s *Session) Layout(units []*compiled.Method, base uint64) ([]Placement, uint32) {
	phase := s.timer.Begin("layout")
	span := trace.Begin(s.tracer, trace.ScopePhase, "layout", 0)

	placed := make([]Placement, 0, len(units))
	seen := make(map[codeKey]uint32, len(units))
	var cursor uint32
	reused := 0
	for _, m := range units {
		key := codeKey{set: m.InstructionSet(), code: string(m.Bytes())}
		p := Placement{Unit: m, Patches: patch.Dedupe(m.Patches())}
		if off, ok := seen[key]; ok {
			p.Offset = off
			p.Reused = true
			reused++
		} else {
			skew := uint32(base % uint64(isa.Default.Lookup(m.InstructionSet()).Alignment))
			p.Offset = m.AlignCode(cursor+skew) - skew
			size, err := safecast.Conv[uint32](m.Size())
			if err != nil {
				panic(fmt.Sprintf("session: unit code too large: %v", err))
			}
			end := p.Offset + size
			if end < p.Offset {
				panic(fmt.Sprintf("session: text region overflows at offset %d", p.Offset))
			}
			cursor = end
			seen[key] = p.Offset
		}
		m.AddBackReference(p.Offset)
		p.Entry = compiled.CodePointer(base+uint64(p.Offset), m.InstructionSet())
		placed = append(placed, p)
	}

	note := strconv.Itoa(len(units)) + " units, " + strconv.Itoa(reused) + " reused"
	span.Attr("size", strconv.FormatUint(uint64(cursor), 10)).End(note)
	s.timer.End(phase, note)
	return placed, cursor
}
