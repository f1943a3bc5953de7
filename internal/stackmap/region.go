package stackmap

import "encoding/binary"

// Region is a little-endian view over a byte slice. Out-of-range accesses
// panic like ordinary slice indexing.
type Region []byte

func (r Region) Load8(off int) uint8 { return r[off] }

func (r Region) Store8(off int, v uint8) { r[off] = v }

func (r Region) Load32(off int) uint32 { return binary.LittleEndian.Uint32(r[off : off+4]) }

func (r Region) Store32(off int, v uint32) { binary.LittleEndian.PutUint32(r[off:off+4], v) }

// LoadBit reads bit i, counting from the least significant bit of byte 0.
func (r Region) LoadBit(i int) bool {
	return r[i/8]&(1<<(i%8)) != 0
}

// StoreBit sets or clears bit i.
func (r Region) StoreBit(i int, v bool) {
	if v {
		r[i/8] |= 1 << (i % 8)
	} else {
		r[i/8] &^= 1 << (i % 8)
	}
}

// Subregion returns the n bytes starting at off.
func (r Region) Subregion(off, n int) Region { return r[off : off+n : off+n] }

// SizeInBits returns the number of addressable bits.
func (r Region) SizeInBits() int { return len(r) * 8 }
