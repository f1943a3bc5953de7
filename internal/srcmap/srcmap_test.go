package srcmap

import (
	"math/rand/v2"
	"slices"
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

func randomEntries(r *rand.Rand, n int) []Entry {
	out := make([]Entry, n)
	for i := range out {
		out[i] = Entry{Native: r.Uint32N(64), Line: r.Int32N(16) - 8}
	}
	return out
}

func TestKeyOrderMatchesLexicographicOrder(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	edge := []Entry{
		{0, 0}, {0xFFFFFFFF, 0}, {0, -1}, {0xFFFFFFFF, -1},
		{0, 1 << 30}, {1, -(1 << 31)}, {0x80000000, 7}, {0x7FFFFFFF, 7},
	}
	pairs := slices.Clone(edge)
	for range 2000 {
		pairs = append(pairs, Entry{Native: r.Uint32(), Line: int32(r.Uint32())})
	}
	for _, a := range pairs {
		for _, b := range edge {
			lex := a.Line < b.Line || (a.Line == b.Line && a.Native < b.Native)
			if got := a.Key() < b.Key(); got != lex {
				t.Fatalf("key order of %+v vs %+v = %v, lexicographic = %v", a, b, got, lex)
			}
			if got := a.Less(b); got != lex {
				t.Fatalf("Less(%+v, %+v) = %v, want %v", a, b, got, lex)
			}
			if (a.Key() == b.Key()) != (a == b) {
				t.Fatalf("key equality disagrees with field equality for %+v, %+v", a, b)
			}
		}
	}
}

func TestChecksum(t *testing.T) {
	e := Entry{Native: 250, Line: 10}
	if got := e.Checksum(); got != 4 {
		t.Errorf("Checksum = %d, want 4", got)
	}
	m := New(Entry{1, 1}, Entry{2, 2})
	if got := m.Checksum(); got != 6 {
		t.Errorf("map checksum = %d, want 6", got)
	}
}

func TestArrangeExample(t *testing.T) {
	m := New(Entry{10, 1}, Entry{20, 1}, Entry{15, 2})
	m.Arrange()
	want := []Entry{{10, 1}, {20, 1}, {15, 2}}
	if got := m.Entries(); !slices.Equal(got, want) {
		t.Fatalf("Arrange = %v, want %v", got, want)
	}
}

func TestArrangeIdempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for range 200 {
		m := New(randomEntries(r, r.IntN(40))...)
		once := m.Arrange().Entries()
		twice := m.Arrange().Entries()
		if !slices.Equal(once, twice) {
			t.Fatalf("Arrange not idempotent: %v vs %v", once, twice)
		}
		for i := 1; i < len(once); i++ {
			if once[i-1].Key() >= once[i].Key() {
				t.Fatalf("keys not strictly increasing at %d: %v", i, once)
			}
		}
	}
}

func TestFindBySourceLine(t *testing.T) {
	m := New(Entry{40, 3}, Entry{8, 1}, Entry{16, 3}, Entry{4, 5})
	m.Arrange()

	i, ok := m.FindBySourceLine(3)
	if !ok || m.At(i) != (Entry{16, 3}) {
		t.Errorf("FindBySourceLine(3) = %d,%v", i, ok)
	}
	i, ok = m.FindBySourceLine(2)
	if ok || m.At(i) != (Entry{16, 3}) {
		t.Errorf("FindBySourceLine(2) = %d,%v; want lower bound at (16,3) and not found", i, ok)
	}
	if i, ok = m.FindBySourceLine(9); ok || i != m.Len() {
		t.Errorf("FindBySourceLine(9) = %d,%v", i, ok)
	}
}

// The lookup is only defined on key order; a native-sorted map is rejected
// rather than silently searched.
func TestFindBySourceLineRequiresKeyOrder(t *testing.T) {
	m := New(Entry{8, 1}, Entry{16, 3})
	mustPanic(t, "unsorted", func() { m.FindBySourceLine(1) })
	m.SortByNative()
	mustPanic(t, "by-native", func() { m.FindBySourceLine(1) })
	m.Arrange()
	m.Add(2, 2)
	mustPanic(t, "after Add", func() { m.FindBySourceLine(1) })
}

func TestSortByNativeIsStable(t *testing.T) {
	m := New(Entry{8, 3}, Entry{4, 1}, Entry{8, 1}, Entry{8, 2})
	m.SortByNative()
	want := []Entry{{4, 1}, {8, 3}, {8, 1}, {8, 2}}
	if got := m.Entries(); !slices.Equal(got, want) {
		t.Fatalf("SortByNative = %v, want %v", got, want)
	}
	if m.Order() != ByNative {
		t.Errorf("order = %s", m.Order())
	}
}

func TestDeltaFormat(t *testing.T) {
	m := New(Entry{30, 7}, Entry{10, 5}, Entry{20, 4}, Entry{50, 9}, Entry{40, 8})
	m.DeltaFormat(Entry{Native: 4, Line: 2}, 45)
	want := []Entry{{6, 3}, {10, -1}, {10, 3}, {10, 1}}
	if got := m.Entries(); !slices.Equal(got, want) {
		t.Fatalf("DeltaFormat = %v, want %v", got, want)
	}
	if m.Order() != Delta {
		t.Errorf("order = %s", m.Order())
	}
	mustPanic(t, "Arrange on delta", func() { m.Arrange() })
	mustPanic(t, "Add on delta", func() { m.Add(1, 1) })
}

func TestDeltaFormatPrefixSumReconstructs(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	for range 200 {
		n := 1 + r.IntN(30)
		orig := make([]Entry, n)
		for i := range orig {
			orig[i] = Entry{Native: 16 + r.Uint32N(200), Line: 10 + r.Int32N(50)}
		}
		start := Entry{Native: r.Uint32N(16), Line: r.Int32N(10)}
		mark := r.Uint32N(240)

		sorted := New(orig...)
		sorted.SortByNative()
		abs := sorted.Entries()

		m := New(orig...)
		m.DeltaFormat(start, mark)
		d := m.Entries()
		if len(d) == 0 || len(d) > len(abs) {
			t.Fatalf("unexpected length %d of %d", len(d), len(abs))
		}
		native := start.Native
		line := start.Line
		for k := range d {
			native += d[k].Native
			line += d[k].Line
			if native != abs[k].Native || line != abs[k].Line {
				t.Fatalf("prefix sum %d = (%d,%d), want %+v", k, native, line, abs[k])
			}
			if k > 0 && abs[k].Native >= mark && k == len(d)-1 {
				t.Fatalf("kept trailing entry %+v at/after mark %d", abs[k], mark)
			}
		}

		m.Accumulate(start)
		if got := m.Entries(); !slices.Equal(got, abs[:len(d)]) {
			t.Fatalf("Accumulate = %v, want %v", got, abs[:len(d)])
		}
	}
}

// Entry 0 survives the trim even when every entry lies at or past the mark.
func TestDeltaFormatKeepsFirstEntry(t *testing.T) {
	m := New(Entry{100, 3}, Entry{200, 4})
	m.DeltaFormat(Entry{}, 50)
	if got := m.Entries(); !slices.Equal(got, []Entry{{100, 3}}) {
		t.Fatalf("DeltaFormat = %v, want [{100 3}]", got)
	}
}

func TestDeltaFormatBaselinePrecondition(t *testing.T) {
	mustPanic(t, "native", func() {
		New(Entry{4, 9}).DeltaFormat(Entry{Native: 5}, 100)
	})
	mustPanic(t, "line", func() {
		New(Entry{4, 1}).DeltaFormat(Entry{Line: 2}, 100)
	})
}

func TestDeltaFormatEmpty(t *testing.T) {
	m := New()
	m.DeltaFormat(Entry{Native: 10, Line: 10}, 0)
	if m.Len() != 0 || m.Order() != Unsorted {
		t.Errorf("empty map changed: len=%d order=%s", m.Len(), m.Order())
	}
}

func TestClone(t *testing.T) {
	m := New(Entry{1, 1})
	c := m.Clone()
	c.Add(2, 2)
	if m.Len() != 1 {
		t.Error("clone shares storage with original")
	}
}

func TestRebuild(t *testing.T) {
	m := New(Entry{Native: 8, Line: 2}, Entry{Native: 0, Line: 1}).Arrange()
	got, err := Rebuild(m.Order(), m.Entries())
	if err != nil {
		t.Fatal(err)
	}
	if got.Order() != ByKey {
		t.Errorf("order = %s", got.Order())
	}
	if _, ok := got.FindBySourceLine(2); !ok {
		t.Error("rebuilt map must be searchable")
	}

	if _, err := Rebuild(ByKey, []Entry{{Native: 0, Line: 5}, {Native: 0, Line: 1}}); err == nil {
		t.Error("expected error for unsorted by-key entries")
	}
	if _, err := Rebuild(ByNative, []Entry{{Native: 9, Line: 1}, {Native: 2, Line: 1}}); err == nil {
		t.Error("expected error for unsorted by-native entries")
	}

	d := New(Entry{Native: 4, Line: 1}, Entry{Native: 10, Line: 3})
	d.DeltaFormat(Entry{}, 100)
	back, err := Rebuild(Delta, d.Entries())
	if err != nil {
		t.Fatal(err)
	}
	back.Accumulate(Entry{})
	if back.At(1) != (Entry{Native: 10, Line: 3}) {
		t.Errorf("accumulated = %v", back.Entries())
	}
}

func TestParseOrder(t *testing.T) {
	for _, o := range []Order{Unsorted, ByNative, ByKey, Delta} {
		if got, err := ParseOrder(o.String()); err != nil || got != o {
			t.Errorf("ParseOrder(%q) = %v, %v", o, got, err)
		}
	}
	if _, err := ParseOrder("random"); err == nil {
		t.Error("expected error")
	}
}
