package compiled

import (
	"bytes"
	"fmt"
	"slices"

	"nativeunit/internal/arena"
	"nativeunit/internal/isa"
)

// Code is the machine code of one unit together with its instruction set.
type Code struct {
	pool *arena.Pool
	set  isa.InstructionSet
	code arena.Buffer
	owns bool

	// Offsets in the merged output where this unit's final address is
	// written. Appended by the writer, read by the linker.
	backRefs []uint32
}

// NewCode creates a code buffer. With owns set the bytes are copied into
// the pool (shared with identical code when the pool deduplicates);
// otherwise they are borrowed and the caller must keep them alive and
// unmodified while the buffer is in use.
func NewCode(pool *arena.Pool, set isa.InstructionSet, code []byte, owns bool) (*Code, error) {
	c := &Code{}
	if err := c.init(pool, set, code, owns); err != nil {
		return nil, err
	}
	return c, nil
}

func mustSupport(set isa.InstructionSet) {
	if !isa.Default.Supports(set) {
		panic(fmt.Sprintf("compiled: unsupported instruction set %s", set))
	}
}

func (c *Code) init(pool *arena.Pool, set isa.InstructionSet, code []byte, owns bool) error {
	mustSupport(set)
	c.pool = pool
	c.set = set
	c.owns = owns
	buf, err := c.store(code)
	if err != nil {
		return fmt.Errorf("compiled: allocating code: %w", err)
	}
	c.code = buf
	return nil
}

func (c *Code) store(code []byte) (arena.Buffer, error) {
	if !c.owns {
		return c.pool.Borrow(code), nil
	}
	return c.pool.Intern(code)
}

func (c *Code) mustBeLive() {
	if !c.code.Present() {
		panic("compiled: use of released code")
	}
}

// InstructionSet returns the target architecture.
func (c *Code) InstructionSet() isa.InstructionSet { return c.set }

// Bytes returns the machine code. The slice must not be modified.
func (c *Code) Bytes() []byte {
	c.mustBeLive()
	return c.pool.Bytes(c.code)
}

// Size returns the code length in bytes.
func (c *Code) Size() int { return len(c.Bytes()) }

// Ownership reports how the code bytes are held.
func (c *Code) Ownership() arena.Ownership { return c.code.Ownership() }

// SetCode replaces the machine code, e.g. after an architecture-specific
// rewrite. Offsets computed from the old code are no longer valid.
func (c *Code) SetCode(code []byte) error {
	c.mustBeLive()
	buf, err := c.store(code)
	if err != nil {
		return fmt.Errorf("compiled: replacing code: %w", err)
	}
	c.pool.Free(c.code)
	c.code = buf
	return nil
}

// Equal reports whether both buffers target the same instruction set and
// hold identical bytes.
func (c *Code) Equal(o *Code) bool {
	if c.set != o.set {
		return false
	}
	if arena.SameStorage(c.code, o.code) {
		return true
	}
	return bytes.Equal(c.Bytes(), o.Bytes())
}

// AlignCode rounds offset up to this buffer's code alignment.
func (c *Code) AlignCode(offset uint32) uint32 { return isa.AlignCode(offset, c.set) }

// CodeDelta returns the code-address to PC adjustment for this buffer.
func (c *Code) CodeDelta() uint32 { return isa.CodeDelta(c.set) }

// AddBackReference records a merged-output offset that must receive this
// unit's final address.
func (c *Code) AddBackReference(offset uint32) {
	c.backRefs = append(c.backRefs, offset)
}

// BackReferences returns the recorded offsets in insertion order.
func (c *Code) BackReferences() []uint32 { return slices.Clone(c.backRefs) }

func (c *Code) release() {
	c.mustBeLive()
	c.pool.Free(c.code)
	c.code = arena.Buffer{}
	c.backRefs = nil
}

// AlignCode rounds offset up to the code alignment of set.
func AlignCode(offset uint32, set isa.InstructionSet) uint32 { return isa.AlignCode(offset, set) }

// CodeDelta returns the code-address to PC adjustment of set.
func CodeDelta(set isa.InstructionSet) uint32 { return isa.CodeDelta(set) }

// CodePointer turns a raw code address into a pointer callable on set.
func CodePointer(addr uint64, set isa.InstructionSet) uint64 { return isa.CodePointer(addr, set) }
