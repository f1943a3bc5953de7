package isa

import (
	"fmt"
	"math"
	"math/bits"
)

// Policy holds the numeric code-placement rules of one architecture.
type Policy struct {
	// Alignment is the boundary code start offsets are rounded up to.
	Alignment uint32
	// PointerTag is OR'd into a code address to obtain a callable pointer.
	PointerTag uint32
	// CodeDelta is the difference between a code address and a usable PC.
	CodeDelta uint32
}

// Table maps instruction sets to their policies. Lookups of a tag missing
// from the table are configuration errors and panic.
type Table struct {
	policies map[InstructionSet]Policy
}

// Default is the built-in policy table.
var Default = mustTable(map[InstructionSet]Policy{
	Arm:    {Alignment: 8},
	Thumb2: {Alignment: 8, PointerTag: 1, CodeDelta: 1},
	Arm64:  {Alignment: 16},
	X86:    {Alignment: 16},
	X86_64: {Alignment: 16},
	Mips:   {Alignment: 8},
	Mips64: {Alignment: 8},
})

// NewTable validates and copies the provided policies.
func NewTable(policies map[InstructionSet]Policy) (*Table, error) {
	t := &Table{policies: make(map[InstructionSet]Policy, len(policies))}
	for set, p := range policies {
		if set == None {
			return nil, fmt.Errorf("isa: policy for %s is not allowed", set)
		}
		if p.Alignment == 0 || bits.OnesCount32(p.Alignment) != 1 {
			return nil, fmt.Errorf("isa: %s alignment %d is not a power of two", set, p.Alignment)
		}
		if p.PointerTag > 1 {
			return nil, fmt.Errorf("isa: %s pointer tag %d must be 0 or 1", set, p.PointerTag)
		}
		t.policies[set] = p
	}
	return t, nil
}

func mustTable(policies map[InstructionSet]Policy) *Table {
	t, err := NewTable(policies)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the policy for set and panics on an unsupported tag.
func (t *Table) Lookup(set InstructionSet) Policy {
	p, ok := t.policies[set]
	if !ok {
		panic(fmt.Sprintf("isa: unsupported instruction set %s", set))
	}
	return p
}

// Supports reports whether the table carries a policy for set.
func (t *Table) Supports(set InstructionSet) bool {
	_, ok := t.policies[set]
	return ok
}

// AlignCode rounds offset up to the code alignment of set.
func (t *Table) AlignCode(offset uint32, set InstructionSet) uint32 {
	a := t.Lookup(set).Alignment
	if offset > math.MaxUint32-(a-1) {
		panic(fmt.Sprintf("isa: aligning offset %#x for %s overflows", offset, set))
	}
	return (offset + a - 1) &^ (a - 1)
}

// CodeDelta returns the code-address to PC adjustment of set.
func (t *Table) CodeDelta(set InstructionSet) uint32 {
	return t.Lookup(set).CodeDelta
}

// CodePointer tags a raw code address so it can be invoked on set.
func (t *Table) CodePointer(addr uint64, set InstructionSet) uint64 {
	return addr | uint64(t.Lookup(set).PointerTag)
}

// AlignCode rounds offset up using the default table.
func AlignCode(offset uint32, set InstructionSet) uint32 { return Default.AlignCode(offset, set) }

// CodeDelta returns the default table's code delta for set.
func CodeDelta(set InstructionSet) uint32 { return Default.CodeDelta(set) }

// CodePointer tags addr using the default table.
func CodePointer(addr uint64, set InstructionSet) uint64 { return Default.CodePointer(addr, set) }

// Supports reports whether the default table has a policy for set.
func Supports(set InstructionSet) bool { return Default.Supports(set) }
