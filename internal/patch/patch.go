package patch

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

// Kind tells the linker what a patch site refers to and how to compute the
// bytes written there.
type Kind uint8

const (
	KindMethod       Kind = iota // absolute address of a method
	KindCall                     // absolute call target
	KindCallRelative             // pc-relative call; encoding depends on the instruction set
	KindType                     // type reference
)

// String returns the short name of the kind.
func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindCall:
		return "call"
	case KindCallRelative:
		return "call-relative"
	case KindType:
		return "type"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind converts a name produced by String back to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "method":
		return KindMethod, nil
	case "call":
		return KindCall, nil
	case "call-relative", "call_relative", "relative":
		return KindCallRelative, nil
	case "type":
		return KindType, nil
	default:
		return 0, fmt.Errorf("invalid patch kind: %q (expected: method|call|call-relative|type)", s)
	}
}

// UnitRef is an opaque handle into the external symbol table. It is only
// stored and compared, never dereferenced.
type UnitRef uint32

// NoUnitRef is the zero reference.
const NoUnitRef UnitRef = 0

// IsValid reports whether the reference is set.
func (r UnitRef) IsValid() bool { return r != NoUnitRef }

// MethodRef names a method inside a unit.
type MethodRef struct {
	Unit  UnitRef
	Index uint32
}

// Patch is one deferred relocation site. Patches are comparable with ==
// and are built only through the kind-specific constructors.
type Patch struct {
	offset uint32
	kind   Kind
	index  uint32 // method index, or type index for KindType
	unit   UnitRef
}

// MethodPatch records the absolute address of a method at offset.
func MethodPatch(offset uint32, unit UnitRef, methodIdx uint32) Patch {
	return Patch{offset: offset, kind: KindMethod, index: methodIdx, unit: unit}
}

// CodePatch records an absolute call to a method at offset.
func CodePatch(offset uint32, unit UnitRef, methodIdx uint32) Patch {
	return Patch{offset: offset, kind: KindCall, index: methodIdx, unit: unit}
}

// RelativeCodePatch records a pc-relative call to a method at offset.
func RelativeCodePatch(offset uint32, unit UnitRef, methodIdx uint32) Patch {
	return Patch{offset: offset, kind: KindCallRelative, index: methodIdx, unit: unit}
}

// TypePatch records a type reference at offset.
func TypePatch(offset uint32, unit UnitRef, typeIdx uint32) Patch {
	return Patch{offset: offset, kind: KindType, index: typeIdx, unit: unit}
}

// New builds a patch of the given kind through the matching constructor.
func New(kind Kind, offset uint32, unit UnitRef, idx uint32) (Patch, error) {
	switch kind {
	case KindMethod:
		return MethodPatch(offset, unit, idx), nil
	case KindCall:
		return CodePatch(offset, unit, idx), nil
	case KindCallRelative:
		return RelativeCodePatch(offset, unit, idx), nil
	case KindType:
		return TypePatch(offset, unit, idx), nil
	default:
		return Patch{}, fmt.Errorf("invalid patch kind %d", kind)
	}
}

// LiteralOffset is the byte offset of the site inside the code buffer.
func (p Patch) LiteralOffset() uint32 { return p.offset }

// Kind returns the patch kind.
func (p Patch) Kind() Kind { return p.kind }

// IsMethodKind reports whether the target is a method.
func (p Patch) IsMethodKind() bool { return p.kind != KindType }

// TargetMethod returns the referenced method. Panics for type patches.
func (p Patch) TargetMethod() MethodRef {
	if !p.IsMethodKind() {
		panic(fmt.Sprintf("patch: TargetMethod on %s patch", p.kind))
	}
	return MethodRef{Unit: p.unit, Index: p.index}
}

// TargetTypeUnit returns the unit of the referenced type. Panics for method patches.
func (p Patch) TargetTypeUnit() UnitRef {
	p.mustBeType("TargetTypeUnit")
	return p.unit
}

// TargetTypeIndex returns the referenced type index. Panics for method patches.
func (p Patch) TargetTypeIndex() uint32 {
	p.mustBeType("TargetTypeIndex")
	return p.index
}

func (p Patch) mustBeType(op string) {
	if p.kind != KindType {
		panic(fmt.Sprintf("patch: %s on %s patch", op, p.kind))
	}
}

func (p Patch) String() string {
	return fmt.Sprintf("%s@%#x -> unit#%d[%d]", p.kind, p.offset, p.unit, p.index)
}

// Compare orders patches by offset, kind, index and unit.
func Compare(a, b Patch) int {
	if c := cmp.Compare(a.offset, b.offset); c != 0 {
		return c
	}
	if c := cmp.Compare(a.kind, b.kind); c != 0 {
		return c
	}
	if c := cmp.Compare(a.index, b.index); c != 0 {
		return c
	}
	return cmp.Compare(a.unit, b.unit)
}

// Less reports whether a orders before b.
func Less(a, b Patch) bool { return Compare(a, b) < 0 }

// Sort orders ps in place.
func Sort(ps []Patch) { slices.SortFunc(ps, Compare) }

// Dedupe sorts ps and removes identical patches, returning the shortened slice.
func Dedupe(ps []Patch) []Patch {
	Sort(ps)
	return slices.Compact(ps)
}
