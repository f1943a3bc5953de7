package unitcache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"nativeunit/internal/arena"
	"nativeunit/internal/compiled"
	"nativeunit/internal/isa"
	"nativeunit/internal/patch"
	"nativeunit/internal/srcmap"
)

// Current schema version - increment when Snapshot format changes
const SchemaVersion uint16 = 1

// Digest identifies a snapshot by the SHA-256 of its encoding.
type Digest [sha256.Size]byte

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

// Short is the first 12 hex digits, enough for display.
func (d Digest) Short() string { return d.String()[:12] }

// IsZero reports whether d is unset.
func (d Digest) IsZero() bool { return d == Digest{} }

// ParseDigest decodes a full hex digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("unitcache: bad digest %q: %w", s, err)
	}
	if len(raw) != len(d) {
		return d, fmt.Errorf("unitcache: digest %q has %d bytes, want %d", s, len(raw), len(d))
	}
	copy(d[:], raw)
	return d, nil
}

// Line is one source map entry.
type Line struct {
	Native uint32
	Line   int32
}

// Site is one patch in portable form.
type Site struct {
	Offset uint32
	Kind   string
	Unit   uint32
	Index  uint32
}

// Snapshot is the cached, pool-independent form of a compiled unit.
type Snapshot struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Name string
	ISA  string
	Code []byte

	FrameSize     uint32
	CoreSpillMask uint32
	FPSpillMask   uint32

	// SourceMap is nil when the unit has none.
	SourceMap      []Line
	SourceMapOrder string
	Mapping        []byte
	Vmap           []byte
	GCMap          []byte
	CFI            []byte
	StackMap       bool // Vmap holds a stack map table
	Patches        []Site

	// Layout result, zero when the unit was never placed
	Offset uint32
	Entry  uint64
}

// FromMethod copies everything a unit carries out of its pool.
func FromMethod(name string, m *compiled.Method) *Snapshot {
	frame := m.Frame()
	s := &Snapshot{
		Schema:        SchemaVersion,
		Name:          name,
		ISA:           m.InstructionSet().String(),
		Code:          append([]byte(nil), m.Bytes()...),
		FrameSize:     frame.SizeInBytes,
		CoreSpillMask: frame.CoreSpillMask,
		FPSpillMask:   frame.FPSpillMask,
		StackMap:      m.HasStackMap(),
	}
	if m.HasSourceMap() {
		sm := m.SourceMap()
		entries := sm.Entries()
		s.SourceMapOrder = sm.Order().String()
		s.SourceMap = make([]Line, len(entries))
		for i, e := range entries {
			s.SourceMap[i] = Line{Native: e.Native, Line: e.Line}
		}
	}
	for _, t := range []struct {
		dst *[]byte
		get func() ([]byte, bool)
	}{
		{&s.Mapping, m.MappingTable},
		{&s.Vmap, m.VmapTable},
		{&s.GCMap, m.GCMap},
		{&s.CFI, m.CFIInfo},
	} {
		if b, ok := t.get(); ok {
			*t.dst = append([]byte(nil), b...)
		}
	}
	for _, p := range m.Patches() {
		site := Site{Offset: p.LiteralOffset(), Kind: p.Kind().String()}
		if p.IsMethodKind() {
			ref := p.TargetMethod()
			site.Unit, site.Index = uint32(ref.Unit), ref.Index
		} else {
			site.Unit, site.Index = uint32(p.TargetTypeUnit()), p.TargetTypeIndex()
		}
		s.Patches = append(s.Patches, site)
	}
	return s
}

// Digest hashes the msgpack encoding of s.
func (s *Snapshot) Digest() (Digest, error) {
	raw, err := msgpack.Marshal(s)
	if err != nil {
		return Digest{}, fmt.Errorf("unitcache: encode %s: %w", s.Name, err)
	}
	return sha256.Sum256(raw), nil
}

// Restore rebuilds a live unit in pool.
func (s *Snapshot) Restore(pool *arena.Pool) (*compiled.Method, error) {
	set, err := isa.Parse(s.ISA)
	if err != nil {
		return nil, fmt.Errorf("unitcache: %s: %w", s.Name, err)
	}
	patches := make([]patch.Patch, 0, len(s.Patches))
	for _, site := range s.Patches {
		kind, err := patch.ParseKind(site.Kind)
		if err != nil {
			return nil, fmt.Errorf("unitcache: %s: %w", s.Name, err)
		}
		p, err := patch.New(kind, site.Offset, patch.UnitRef(site.Unit), site.Index)
		if err != nil {
			return nil, fmt.Errorf("unitcache: %s: %w", s.Name, err)
		}
		patches = append(patches, p)
	}
	frame := compiled.FrameInfo{SizeInBytes: s.FrameSize, CoreSpillMask: s.CoreSpillMask, FPSpillMask: s.FPSpillMask}
	if s.StackMap {
		return compiled.NewWithStackMap(pool, set, s.Code, frame, s.Vmap, patches...)
	}
	tables := compiled.Tables{Mapping: s.Mapping, Vmap: s.Vmap, GCMap: s.GCMap, CFI: s.CFI}
	if s.SourceMap != nil {
		order, err := srcmap.ParseOrder(s.SourceMapOrder)
		if err != nil {
			return nil, fmt.Errorf("unitcache: %s: %w", s.Name, err)
		}
		entries := make([]srcmap.Entry, len(s.SourceMap))
		for i, l := range s.SourceMap {
			entries[i] = srcmap.Entry{Native: l.Native, Line: l.Line}
		}
		if tables.SourceMap, err = srcmap.Rebuild(order, entries); err != nil {
			return nil, fmt.Errorf("unitcache: %s: %w", s.Name, err)
		}
	}
	return compiled.New(pool, set, s.Code, frame, tables, patches...)
}
