package stackmap

import (
	"errors"
	"fmt"
)

// CodeInfo layout:
//
//	[overall size, number of stack maps, stack mask size,
//	 StackMap+, RegisterMap*, InlineInfo*]
const (
	ciOverallSize   = 0
	ciNumStackMaps  = ciOverallSize + 4
	ciStackMaskSize = ciNumStackMaps + 4
	ciFixedSize     = ciStackMaskSize + 4
)

var errTruncated = errors.New("stackmap: truncated code info")

// CodeInfo is a read view over an encoded stack map table.
type CodeInfo struct {
	region Region
}

// Decode validates the header of data and returns a view over it.
func Decode(data []byte) (CodeInfo, error) {
	if len(data) < ciFixedSize {
		return CodeInfo{}, errTruncated
	}
	r := Region(data)
	size := int(r.Load32(ciOverallSize))
	if size < ciFixedSize || size > len(data) {
		return CodeInfo{}, fmt.Errorf("stackmap: overall size %d outside [%d, %d]", size, ciFixedSize, len(data))
	}
	ci := CodeInfo{region: r.Subregion(0, size)}
	need := ciFixedSize + ci.NumberOfStackMaps()*ci.StackMapSize()
	if need > size {
		return CodeInfo{}, fmt.Errorf("%w: %d stack maps need %d bytes, have %d",
			errTruncated, ci.NumberOfStackMaps(), need, size)
	}
	return ci, nil
}

func (c CodeInfo) OverallSize() uint32    { return c.region.Load32(ciOverallSize) }
func (c CodeInfo) NumberOfStackMaps() int { return int(c.region.Load32(ciNumStackMaps)) }
func (c CodeInfo) StackMaskSize() int     { return int(c.region.Load32(ciStackMaskSize)) }

// StackMapSize is the aligned size of each stack map.
func (c CodeInfo) StackMapSize() int { return alignedStackMapSize(c.StackMaskSize()) }

// StackMapAt returns stack map i.
func (c CodeInfo) StackMapAt(i int) StackMap {
	size := c.StackMapSize()
	return StackMap{region: c.region.Subregion(ciFixedSize+i*size, size)}
}

// StackMapForSourcePC finds the stack map recorded for a source pc.
func (c CodeInfo) StackMapForSourcePC(pc uint32) (StackMap, bool) {
	for i := range c.NumberOfStackMaps() {
		if sm := c.StackMapAt(i); sm.SourcePC() == pc {
			return sm, true
		}
	}
	return StackMap{}, false
}

// StackMapForNativeOffset finds the stack map recorded at a native pc offset.
// TODO: binary search once Builder guarantees native pc order.
func (c CodeInfo) StackMapForNativeOffset(off uint32) (StackMap, bool) {
	for i := range c.NumberOfStackMaps() {
		if sm := c.StackMapAt(i); sm.NativePCOffset() == off {
			return sm, true
		}
	}
	return StackMap{}, false
}

// RegisterMapOf returns the register map of sm for numRegs source registers.
func (c CodeInfo) RegisterMapOf(sm StackMap, numRegs int) RegisterMap {
	if !sm.HasRegisterMap() {
		panic("stackmap: stack map has no register map")
	}
	off := int(sm.RegisterMapOffset())
	return RegisterMap{region: c.region.Subregion(off, numRegs*registerEntrySize)}
}

// InlineInfoOf returns the inline info of sm.
func (c CodeInfo) InlineInfoOf(sm StackMap) InlineInfo {
	if !sm.HasInlineInfo() {
		panic("stackmap: stack map has no inline info")
	}
	off := int(sm.InlineInfoOffset())
	depth := int(c.region.Load8(off))
	return InlineInfo{region: c.region.Subregion(off, 1+depth*4)}
}
