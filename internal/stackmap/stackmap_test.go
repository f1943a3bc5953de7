package stackmap

import (
	"errors"
	"testing"
)

func mustPanic(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Fatalf("%s: expected panic", name)
		}
	}()
	fn()
}

func buildSample(t *testing.T) CodeInfo {
	t.Helper()
	var b Builder
	b.AddStackMap(Entry{
		SourcePC:     3,
		NativePC:     0x40,
		RegisterMask: 0x5,
		StackSlots:   []int{0, 9},
		Registers: []Location{
			{Kind: LocationInStack, Value: 16},
			{Kind: LocationConstant, Value: -7},
			{Kind: LocationInRegister, Value: 2},
			{Kind: LocationNone},
		},
		Inlined: []uint32{11, 42},
	})
	b.AddStackMap(Entry{SourcePC: 8, NativePC: 0x58})
	data, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	ci, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return ci
}

func TestBuilderRoundTrip(t *testing.T) {
	ci := buildSample(t)
	if ci.NumberOfStackMaps() != 2 {
		t.Fatalf("NumberOfStackMaps = %d", ci.NumberOfStackMaps())
	}
	if ci.StackMaskSize() != 2 {
		t.Errorf("StackMaskSize = %d, want 2", ci.StackMaskSize())
	}
	if ci.StackMapSize()%4 != 0 {
		t.Errorf("StackMapSize %d not 4-byte aligned", ci.StackMapSize())
	}

	sm, ok := ci.StackMapForNativeOffset(0x40)
	if !ok {
		t.Fatal("stack map at 0x40 not found")
	}
	if sm.SourcePC() != 3 || sm.RegisterMask() != 0x5 {
		t.Errorf("stack map = pc %d mask %#x", sm.SourcePC(), sm.RegisterMask())
	}
	for slot, want := range map[int]bool{0: true, 1: false, 8: false, 9: true} {
		if got := sm.StackSlotLive(slot); got != want {
			t.Errorf("slot %d live = %v, want %v", slot, got, want)
		}
	}

	regs := ci.RegisterMapOf(sm, 4)
	if regs.Len() != 4 {
		t.Fatalf("register map len = %d", regs.Len())
	}
	if got := regs.StackOffsetInBytes(0); got != 16 {
		t.Errorf("stack offset = %d", got)
	}
	if got := regs.Constant(1); got != -7 {
		t.Errorf("constant = %d", got)
	}
	if got := regs.MachineRegister(2); got != 2 {
		t.Errorf("machine register = %d", got)
	}
	if regs.Kind(3) != LocationNone {
		t.Errorf("kind(3) = %s", regs.Kind(3))
	}
	mustPanic(t, "Constant on stack slot", func() { regs.Constant(0) })
	mustPanic(t, "MachineRegister on constant", func() { regs.MachineRegister(1) })

	inl := ci.InlineInfoOf(sm)
	if inl.Depth() != 2 || inl.MethodIndexAtDepth(0) != 11 || inl.MethodIndexAtDepth(1) != 42 {
		t.Errorf("inline info = depth %d [%d %d]", inl.Depth(), inl.MethodIndexAtDepth(0), inl.MethodIndexAtDepth(1))
	}

	bare, ok := ci.StackMapForSourcePC(8)
	if !ok {
		t.Fatal("stack map for pc 8 not found")
	}
	if bare.HasRegisterMap() || bare.HasInlineInfo() {
		t.Error("second stack map should carry no side records")
	}
	mustPanic(t, "RegisterMapOf without map", func() { ci.RegisterMapOf(bare, 1) })
	mustPanic(t, "InlineInfoOf without info", func() { ci.InlineInfoOf(bare) })

	if !bare.Equals(ci.StackMapAt(1)) || bare.Equals(sm) {
		t.Error("Equals must compare the viewed bytes")
	}
	if _, ok := ci.StackMapForSourcePC(99); ok {
		t.Error("unexpected stack map for pc 99")
	}
}

func TestEmptyBuilder(t *testing.T) {
	var b Builder
	data, err := b.Bytes()
	if err != nil {
		t.Fatal(err)
	}
	ci, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if ci.NumberOfStackMaps() != 0 || int(ci.OverallSize()) != len(data) {
		t.Errorf("empty code info: %d maps, size %d", ci.NumberOfStackMaps(), ci.OverallSize())
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	if _, err := Decode([]byte{1, 2}); !errors.Is(err, errTruncated) {
		t.Errorf("short header err = %v", err)
	}
	ci := buildSample(t)
	data := []byte(ci.region)
	if _, err := Decode(data[:len(data)-1]); err == nil {
		t.Error("expected error when overall size exceeds data")
	}
	bad := make([]byte, ciFixedSize)
	Region(bad).Store32(ciOverallSize, ciFixedSize)
	Region(bad).Store32(ciNumStackMaps, 3)
	if _, err := Decode(bad); !errors.Is(err, errTruncated) {
		t.Errorf("missing stack maps err = %v", err)
	}
}

func TestBuilderRejectsBadInput(t *testing.T) {
	var b Builder
	b.AddStackMap(Entry{StackSlots: []int{-1}})
	if _, err := b.Bytes(); err == nil {
		t.Error("expected error for negative stack slot")
	}
	var deep Builder
	deep.AddStackMap(Entry{Inlined: make([]uint32, 256)})
	if _, err := deep.Bytes(); err == nil {
		t.Error("expected error for inline depth 256")
	}
}

func TestRegionBits(t *testing.T) {
	r := make(Region, 2)
	r.StoreBit(3, true)
	r.StoreBit(12, true)
	if r[0] != 0x08 || r[1] != 0x10 {
		t.Fatalf("bits = %#x %#x", r[0], r[1])
	}
	r.StoreBit(3, false)
	if r.LoadBit(3) || !r.LoadBit(12) {
		t.Error("StoreBit(false) must clear only the addressed bit")
	}
	if r.SizeInBits() != 16 {
		t.Errorf("SizeInBits = %d", r.SizeInBits())
	}
}

func TestParseLocationKind(t *testing.T) {
	for name, want := range map[string]LocationKind{
		"none": LocationNone, "stack": LocationInStack, "register": LocationInRegister,
		"fpu": LocationInFpuRegister, "constant": LocationConstant,
	} {
		if got, err := ParseLocationKind(name); err != nil || got != want {
			t.Errorf("ParseLocationKind(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseLocationKind("heap"); err == nil {
		t.Error("expected error")
	}
}
