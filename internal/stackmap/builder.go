package stackmap

import (
	"fmt"

	"fortio.org/safecast"
)

// Location is the placement of one source register.
type Location struct {
	Kind  LocationKind
	Value int32
}

// Entry is the builder-side description of one safepoint.
type Entry struct {
	SourcePC     uint32
	NativePC     uint32
	RegisterMask uint32
	// StackSlots lists the stack mask bits to set.
	StackSlots []int
	// Registers, when non-nil, becomes the register map.
	Registers []Location
	// Inlined, when non-nil, becomes the inline info (outermost first).
	Inlined []uint32
}

// Builder accumulates stack maps and encodes them into a CodeInfo table.
type Builder struct {
	entries []Entry
}

// AddStackMap appends a safepoint.
func (b *Builder) AddStackMap(e Entry) {
	b.entries = append(b.entries, e)
}

// Len returns the number of stack maps added so far.
func (b *Builder) Len() int { return len(b.entries) }

// Bytes encodes every stack map added so far.
func (b *Builder) Bytes() ([]byte, error) {
	maskBits := 0
	for _, e := range b.entries {
		for _, s := range e.StackSlots {
			if s < 0 {
				return nil, fmt.Errorf("stackmap: negative stack slot %d at native pc %#x", s, e.NativePC)
			}
			maskBits = max(maskBits, s+1)
		}
		if len(e.Inlined) > 255 {
			return nil, fmt.Errorf("stackmap: inline depth %d at native pc %#x exceeds 255", len(e.Inlined), e.NativePC)
		}
	}
	maskSize := (maskBits + 7) / 8
	mapSize := alignedStackMapSize(maskSize)

	total := ciFixedSize + len(b.entries)*mapSize
	for _, e := range b.entries {
		if e.Registers != nil {
			total += len(e.Registers) * registerEntrySize
		}
		if e.Inlined != nil {
			total += 1 + len(e.Inlined)*4
		}
	}
	totalSize, err := safecast.Conv[uint32](total)
	if err != nil {
		return nil, fmt.Errorf("stackmap: table too large: %w", err)
	}
	count, err := safecast.Conv[uint32](len(b.entries))
	if err != nil {
		return nil, fmt.Errorf("stackmap: too many stack maps: %w", err)
	}

	out := make(Region, total)
	out.Store32(ciOverallSize, totalSize)
	out.Store32(ciNumStackMaps, count)
	out.Store32(ciStackMaskSize, uint32(maskSize))

	// Side records follow the fixed-size stack maps.
	cursor := ciFixedSize + len(b.entries)*mapSize
	for i, e := range b.entries {
		sm := out.Subregion(ciFixedSize+i*mapSize, mapSize)
		sm.Store32(smSourcePC, e.SourcePC)
		sm.Store32(smNativePC, e.NativePC)
		sm.Store32(smRegisterMask, e.RegisterMask)
		for _, s := range e.StackSlots {
			sm.StoreBit(smStackMaskBase*8+s, true)
		}

		sm.Store32(smRegisterMap, NoRegisterMap)
		if e.Registers != nil {
			sm.Store32(smRegisterMap, uint32(cursor))
			for r, loc := range e.Registers {
				off := cursor + r*registerEntrySize
				out.Store8(off, uint8(loc.Kind))
				out.Store32(off+1, uint32(loc.Value))
			}
			cursor += len(e.Registers) * registerEntrySize
		}

		sm.Store32(smInlineInfo, NoInlineInfo)
		if e.Inlined != nil {
			depth, err := safecast.Conv[uint8](len(e.Inlined))
			if err != nil {
				return nil, err
			}
			sm.Store32(smInlineInfo, uint32(cursor))
			out.Store8(cursor, depth)
			for d, idx := range e.Inlined {
				out.Store32(cursor+1+d*4, idx)
			}
			cursor += 1 + len(e.Inlined)*4
		}
	}
	return out, nil
}
