package stackmap

import (
	"fmt"
	"math"
)

// NoRegisterMap and NoInlineInfo mark a stack map without the corresponding
// side record.
const (
	NoRegisterMap uint32 = math.MaxUint32
	NoInlineInfo  uint32 = math.MaxUint32
)

// StackMap layout:
//
//	[source pc, native pc offset, register map offset, inline info offset,
//	 register mask, stack mask bits...]
//
// Every stack map in a CodeInfo has the same size, rounded up to 4 bytes.
const (
	smSourcePC      = 0
	smNativePC      = smSourcePC + 4
	smRegisterMap   = smNativePC + 4
	smInlineInfo    = smRegisterMap + 4
	smRegisterMask  = smInlineInfo + 4
	smFixedSize     = smRegisterMask + 4
	smStackMaskBase = smFixedSize
)

// StackMap describes the frame state at one safepoint.
type StackMap struct {
	region Region
}

func (m StackMap) SourcePC() uint32          { return m.region.Load32(smSourcePC) }
func (m StackMap) NativePCOffset() uint32    { return m.region.Load32(smNativePC) }
func (m StackMap) RegisterMapOffset() uint32 { return m.region.Load32(smRegisterMap) }
func (m StackMap) InlineInfoOffset() uint32  { return m.region.Load32(smInlineInfo) }
func (m StackMap) RegisterMask() uint32      { return m.region.Load32(smRegisterMask) }

// HasRegisterMap reports whether a register map is attached.
func (m StackMap) HasRegisterMap() bool { return m.RegisterMapOffset() != NoRegisterMap }

// HasInlineInfo reports whether inline info is attached.
func (m StackMap) HasInlineInfo() bool { return m.InlineInfoOffset() != NoInlineInfo }

// StackMask returns the raw stack mask region, including alignment padding.
func (m StackMap) StackMask() Region {
	return m.region.Subregion(smStackMaskBase, len(m.region)-smStackMaskBase)
}

// StackSlotLive reports whether stack slot i holds a reference.
func (m StackMap) StackSlotLive(i int) bool { return m.StackMask().LoadBit(i) }

// Equals reports whether both maps view the same bytes.
func (m StackMap) Equals(o StackMap) bool {
	return len(m.region) == len(o.region) && (len(m.region) == 0 || &m.region[0] == &o.region[0])
}

func alignedStackMapSize(stackMaskSize int) int {
	return (smFixedSize + stackMaskSize + 3) &^ 3
}

// LocationKind tells where a source register lives at a safepoint.
type LocationKind uint8

const (
	LocationNone LocationKind = iota
	LocationInStack
	LocationInRegister
	LocationInFpuRegister
	LocationConstant
)

func (k LocationKind) String() string {
	switch k {
	case LocationNone:
		return "none"
	case LocationInStack:
		return "in stack"
	case LocationInRegister:
		return "in register"
	case LocationInFpuRegister:
		return "in fpu register"
	case LocationConstant:
		return "as constant"
	default:
		return fmt.Sprintf("location(%d)", uint8(k))
	}
}

// ParseLocationKind accepts the short names none, stack, register, fpu
// and constant.
func ParseLocationKind(s string) (LocationKind, error) {
	switch s {
	case "none":
		return LocationNone, nil
	case "stack":
		return LocationInStack, nil
	case "register":
		return LocationInRegister, nil
	case "fpu":
		return LocationInFpuRegister, nil
	case "constant":
		return LocationConstant, nil
	}
	return LocationNone, fmt.Errorf("stackmap: unknown location kind %q", s)
}

// registerEntrySize is one [kind u8, value i32] pair.
const registerEntrySize = 5

// RegisterMap locates each source register of a stack map.
type RegisterMap struct {
	region Region
}

// Len returns the number of registers described.
func (r RegisterMap) Len() int { return len(r.region) / registerEntrySize }

func (r RegisterMap) Kind(reg int) LocationKind {
	return LocationKind(r.region.Load8(reg * registerEntrySize))
}

// Value returns the raw value regardless of kind.
func (r RegisterMap) Value(reg int) int32 {
	return int32(r.region.Load32(reg*registerEntrySize + 1))
}

func (r RegisterMap) mustBe(reg int, kinds ...LocationKind) {
	k := r.Kind(reg)
	for _, want := range kinds {
		if k == want {
			return
		}
	}
	panic(fmt.Sprintf("stackmap: register %d is %s, want %v", reg, k, kinds))
}

// StackOffsetInBytes returns the frame offset of a stack-resident register.
func (r RegisterMap) StackOffsetInBytes(reg int) int32 {
	r.mustBe(reg, LocationInStack)
	return r.Value(reg)
}

// Constant returns the value of a constant register.
func (r RegisterMap) Constant(reg int) int32 {
	r.mustBe(reg, LocationConstant)
	return r.Value(reg)
}

// MachineRegister returns the physical register holding reg.
func (r RegisterMap) MachineRegister(reg int) int32 {
	r.mustBe(reg, LocationInRegister, LocationInFpuRegister)
	return r.Value(reg)
}

// InlineInfo lists the methods inlined at a safepoint: [depth u8, index u32...].
type InlineInfo struct {
	region Region
}

func (i InlineInfo) Depth() uint8 { return i.region.Load8(0) }

// MethodIndexAtDepth returns the method index at depth d.
func (i InlineInfo) MethodIndexAtDepth(d uint8) uint32 {
	return i.region.Load32(1 + int(d)*4)
}
