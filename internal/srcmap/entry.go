package srcmap

import "cmp"

// Entry maps a native code offset to a source line.
type Entry struct {
	Native uint32
	Line   int32
}

// Key packs the entry into its ordering key: the line is the high word and
// the native offset the low word, so entries order by line first and by
// offset second. Arrange and DeltaFormat rely on this field order.
func (e Entry) Key() int64 {
	return int64(e.Line)<<32 | int64(e.Native)
}

// Compare orders entries by Key.
func Compare(a, b Entry) int {
	if c := cmp.Compare(a.Line, b.Line); c != 0 {
		return c
	}
	return cmp.Compare(a.Native, b.Native)
}

// Less reports whether e orders before o.
func (e Entry) Less(o Entry) bool { return Compare(e, o) < 0 }

// Checksum is a one-byte fingerprint of the entry. It is not an ordering.
func (e Entry) Checksum() uint8 {
	return uint8(e.Native + uint32(e.Line))
}
