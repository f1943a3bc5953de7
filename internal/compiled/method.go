package compiled

import (
	"fmt"
	"slices"

	"nativeunit/internal/arena"
	"nativeunit/internal/isa"
	"nativeunit/internal/patch"
	"nativeunit/internal/srcmap"
	"nativeunit/internal/stackmap"
)

// FrameInfo describes the activation record of a unit.
type FrameInfo struct {
	SizeInBytes   uint32
	CoreSpillMask uint32 // callee-saved core registers
	FPSpillMask   uint32 // callee-saved floating-point registers
}

// Tables carries the optional side tables of a unit. An empty slice or a
// nil SourceMap means the table is absent.
type Tables struct {
	SourceMap *srcmap.Map
	// Mapping is the native pc <-> source position table.
	Mapping []byte
	// Vmap maps machine registers to source registers.
	Vmap []byte
	// GCMap holds the per-safepoint liveness bitmaps.
	GCMap []byte
	// CFI is the unwind info.
	CFI []byte
}

// Method is the compiled artifact of one unit: code, frame layout, side
// tables and pending patches. It is immutable once built apart from the
// back-references recorded on its Code.
type Method struct {
	Code

	frame    FrameInfo
	srcMap   *srcmap.Map
	mapping  arena.Buffer
	vmap     arena.Buffer
	gcMap    arena.Buffer
	cfi      arena.Buffer
	patches  []patch.Patch
	stackMap bool // vmap holds a unified stack map table
	released bool
}

// New builds a unit with the full set of metadata.
func New(pool *arena.Pool, set isa.InstructionSet, code []byte, frame FrameInfo, tables Tables, patches ...patch.Patch) (*Method, error) {
	mustSupport(set)
	if err := pool.AcquireUnit(); err != nil {
		return nil, fmt.Errorf("compiled: %w", err)
	}
	m := &Method{frame: frame}
	if err := m.init(pool, set, code, true); err != nil {
		pool.ReleaseUnit()
		return nil, err
	}

	allocs := []struct {
		name string
		dst  *arena.Buffer
		data []byte
	}{
		{"mapping table", &m.mapping, tables.Mapping},
		{"vmap table", &m.vmap, tables.Vmap},
		{"gc map", &m.gcMap, tables.GCMap},
		{"cfi info", &m.cfi, tables.CFI},
	}
	for _, a := range allocs {
		if len(a.data) == 0 {
			continue
		}
		buf, err := pool.Intern(a.data)
		if err != nil {
			m.Release()
			return nil, fmt.Errorf("compiled: allocating %s: %w", a.name, err)
		}
		*a.dst = buf
	}

	if tables.SourceMap != nil {
		m.srcMap = tables.SourceMap.Clone()
	}
	if len(patches) > 0 {
		m.patches = slices.Clone(patches)
	}
	return m, nil
}

// NewWithStackMap builds a unit whose side tables are one encoded stack map
// table (see package stackmap). The table is validated before allocation.
func NewWithStackMap(pool *arena.Pool, set isa.InstructionSet, code []byte, frame FrameInfo, stackMap []byte, patches ...patch.Patch) (*Method, error) {
	if len(stackMap) > 0 {
		if _, err := stackmap.Decode(stackMap); err != nil {
			return nil, fmt.Errorf("compiled: %w", err)
		}
	}
	m, err := New(pool, set, code, frame, Tables{Vmap: stackMap}, patches...)
	if err != nil {
		return nil, err
	}
	m.stackMap = len(stackMap) > 0
	return m, nil
}

// NewWithCFI builds a unit carrying only unwind info.
func NewWithCFI(pool *arena.Pool, set isa.InstructionSet, code []byte, frame FrameInfo, cfi []byte) (*Method, error) {
	return New(pool, set, code, frame, Tables{CFI: cfi})
}

// Release hands code, tables, patches and the unit itself back to the pool.
// The method must not be used afterwards.
func (m *Method) Release() {
	m.mustBeLive()
	m.released = true
	pool := m.pool
	for _, b := range []*arena.Buffer{&m.mapping, &m.vmap, &m.gcMap, &m.cfi} {
		pool.Free(*b)
		*b = arena.Buffer{}
	}
	m.srcMap = nil
	m.patches = nil
	m.release()
	pool.ReleaseUnit()
}

// Released reports whether Release has been called.
func (m *Method) Released() bool { return m.released }

func (m *Method) mustBeLive() {
	if m.released {
		panic("compiled: use of released method")
	}
}

// Frame returns the frame layout.
func (m *Method) Frame() FrameInfo {
	m.mustBeLive()
	return m.frame
}

func (m *Method) FrameSizeInBytes() uint32 { return m.Frame().SizeInBytes }
func (m *Method) CoreSpillMask() uint32    { return m.Frame().CoreSpillMask }
func (m *Method) FPSpillMask() uint32      { return m.Frame().FPSpillMask }

// HasSourceMap reports whether a source map was supplied.
func (m *Method) HasSourceMap() bool {
	m.mustBeLive()
	return m.srcMap != nil
}

// SourceMap returns the source map. Calling it on a unit built without one
// panics; check HasSourceMap first.
func (m *Method) SourceMap() *srcmap.Map {
	if !m.HasSourceMap() {
		panic("compiled: method has no source map")
	}
	return m.srcMap
}

func (m *Method) table(b arena.Buffer) ([]byte, bool) {
	m.mustBeLive()
	if !b.Present() {
		return nil, false
	}
	return m.pool.Bytes(b), true
}

// MappingTable returns the native pc <-> source position table.
func (m *Method) MappingTable() ([]byte, bool) { return m.table(m.mapping) }

// VmapTable returns the register map table, or the unified stack map table
// for units built with NewWithStackMap.
func (m *Method) VmapTable() ([]byte, bool) { return m.table(m.vmap) }

// GCMap returns the liveness table.
func (m *Method) GCMap() ([]byte, bool) { return m.table(m.gcMap) }

// CFIInfo returns the unwind info.
func (m *Method) CFIInfo() ([]byte, bool) { return m.table(m.cfi) }

// HasStackMap reports whether the unit carries a unified stack map table.
func (m *Method) HasStackMap() bool {
	m.mustBeLive()
	return m.stackMap
}

// CodeInfo decodes the unified stack map table.
func (m *Method) CodeInfo() (stackmap.CodeInfo, bool) {
	if !m.HasStackMap() {
		return stackmap.CodeInfo{}, false
	}
	data, _ := m.VmapTable()
	ci, err := stackmap.Decode(data)
	if err != nil {
		panic(fmt.Sprintf("compiled: stack map table corrupted: %v", err))
	}
	return ci, true
}

// Patches returns the deferred relocation sites in construction order.
func (m *Method) Patches() []patch.Patch {
	m.mustBeLive()
	return slices.Clone(m.patches)
}

// SharedBuffers reports whether buffers come from the pool's dedupe index
// rather than being owned by this unit alone.
func (m *Method) SharedBuffers() bool {
	m.mustBeLive()
	return m.pool.Dedupe()
}
