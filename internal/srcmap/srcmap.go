package srcmap

import (
	"cmp"
	"fmt"
	"slices"
)

// Order records which arrangement a Map currently holds.
type Order uint8

const (
	Unsorted Order = iota
	ByNative
	ByKey
	Delta // entries hold differences, not absolute positions
)

func (o Order) String() string {
	switch o {
	case Unsorted:
		return "unsorted"
	case ByNative:
		return "by-native"
	case ByKey:
		return "by-key"
	case Delta:
		return "delta"
	default:
		return "unknown"
	}
}

// ParseOrder is the inverse of Order.String.
func ParseOrder(s string) (Order, error) {
	for o := Unsorted; o <= Delta; o++ {
		if o.String() == s {
			return o, nil
		}
	}
	return Unsorted, fmt.Errorf("srcmap: unknown order %q", s)
}

// Map is the native-offset to source-line table of one compiled unit.
type Map struct {
	entries []Entry
	order   Order
}

// New creates a map holding a copy of entries.
func New(entries ...Entry) *Map {
	return &Map{entries: slices.Clone(entries)}
}

// Add appends an entry. The map becomes unsorted.
func (m *Map) Add(native uint32, line int32) {
	m.mustBeAbsolute("Add")
	m.entries = append(m.entries, Entry{Native: native, Line: line})
	m.order = Unsorted
}

// Rebuild restores a map that was saved together with its order. Claimed
// sort orders are verified; a delta-encoded map is taken as is.
func Rebuild(order Order, entries []Entry) (*Map, error) {
	m := &Map{entries: slices.Clone(entries), order: order}
	switch order {
	case Unsorted, Delta:
	case ByNative:
		if !slices.IsSortedFunc(m.entries, cmpNative) {
			return nil, fmt.Errorf("srcmap: entries not sorted by native offset")
		}
	case ByKey:
		for i := 1; i < len(m.entries); i++ {
			if Compare(m.entries[i-1], m.entries[i]) >= 0 {
				return nil, fmt.Errorf("srcmap: entries not strictly sorted by key at %d", i)
			}
		}
	default:
		return nil, fmt.Errorf("srcmap: unknown order %d", order)
	}
	return m, nil
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.entries) }

// At returns entry i.
func (m *Map) At(i int) Entry { return m.entries[i] }

// Entries returns a copy of the entries in their current order.
func (m *Map) Entries() []Entry { return slices.Clone(m.entries) }

// Order reports the current arrangement.
func (m *Map) Order() Order { return m.order }

// Clone returns an independent copy.
func (m *Map) Clone() *Map {
	return &Map{entries: slices.Clone(m.entries), order: m.order}
}

func (m *Map) mustBeAbsolute(op string) {
	if m.order == Delta {
		panic(fmt.Sprintf("srcmap: %s on a delta-encoded map", op))
	}
}

// SortByNative stably sorts entries by native offset.
func (m *Map) SortByNative() {
	m.mustBeAbsolute("SortByNative")
	slices.SortStableFunc(m.entries, cmpNative)
	m.order = ByNative
}

func cmpNative(a, b Entry) int { return cmp.Compare(a.Native, b.Native) }

// Arrange sorts entries by key and drops duplicates. It is idempotent.
func (m *Map) Arrange() *Map {
	m.mustBeAbsolute("Arrange")
	if len(m.entries) > 0 {
		slices.SortFunc(m.entries, Compare)
		m.entries = slices.Clip(slices.Compact(m.entries))
	}
	m.order = ByKey
	return m
}

// FindBySourceLine returns the index of the first entry whose key is not
// below (line, 0) and whether that entry is on line. The map must be in
// key order (see Arrange); any other order panics.
func (m *Map) FindBySourceLine(line int32) (int, bool) {
	if m.order != ByKey {
		panic(fmt.Sprintf("srcmap: FindBySourceLine needs key order, map is %s", m.order))
	}
	i, _ := slices.BinarySearchFunc(m.entries, Entry{Line: line}, Compare)
	return i, i < len(m.entries) && m.entries[i].Line == line
}

// DeltaFormat converts the map into delta form in place.
//
// Entries are sorted by native offset, trailing entries at or past
// highWaterMark are dropped (entry 0 is always kept), each remaining entry
// becomes the difference from its predecessor, and entry 0 becomes the
// difference from start. Entry 0 must not lie below start in either field.
func (m *Map) DeltaFormat(start Entry, highWaterMark uint32) {
	if len(m.entries) == 0 {
		return
	}
	m.SortByNative()

	first := m.entries[0]
	if first.Native < start.Native || first.Line < start.Line {
		panic(fmt.Sprintf("srcmap: delta baseline (%d,%d) exceeds first entry (%d,%d)",
			start.Native, start.Line, first.Native, first.Line))
	}

	i := len(m.entries) - 1
	for ; i > 0; i-- {
		if m.entries[i].Native < highWaterMark {
			break
		}
	}
	m.entries = m.entries[:i+1]

	for i := len(m.entries) - 1; i >= 1; i-- {
		m.entries[i].Native -= m.entries[i-1].Native
		m.entries[i].Line -= m.entries[i-1].Line
	}
	m.entries[0].Native -= start.Native
	m.entries[0].Line -= start.Line
	m.order = Delta
}

// Accumulate undoes DeltaFormat given the same start, leaving the surviving
// entries in native order.
func (m *Map) Accumulate(start Entry) {
	if m.order != Delta {
		panic(fmt.Sprintf("srcmap: Accumulate on a %s map", m.order))
	}
	for i := range m.entries {
		prev := start
		if i > 0 {
			prev = m.entries[i-1]
		}
		m.entries[i].Native += prev.Native
		m.entries[i].Line += prev.Line
	}
	m.order = ByNative
}

// Checksum folds every entry's fingerprint into one byte.
func (m *Map) Checksum() uint8 {
	var sum uint8
	for _, e := range m.entries {
		sum += e.Checksum()
	}
	return sum
}
