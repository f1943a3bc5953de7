package arena

import (
	"errors"
	"fmt"
	"sync"

	"fortio.org/safecast"
)

var (
	// ErrExhausted is returned when an allocation would exceed the pool limit.
	ErrExhausted = errors.New("arena: pool limit exhausted")
	// ErrReleased is returned by allocations on a closed pool.
	ErrReleased = errors.New("arena: pool is closed")
)

// Handle addresses a buffer stored in a Pool. Handles minted before a
// ReleaseAll belong to an older generation and are rejected afterwards; a
// handle to a freed slot is rejected even once the slot holds new data.
type Handle struct {
	index uint32
	gen   uint32
	reuse uint32
}

// IsValid reports whether the handle refers to a slot at all.
func (h Handle) IsValid() bool { return h.index != 0 }

// Options configures a Pool.
type Options struct {
	// Dedupe makes Intern share buffers with identical contents.
	Dedupe bool
	// Limit caps live bytes; zero means unlimited.
	Limit int64
	// CapHint preallocates slot storage.
	CapHint uint32
}

// Stats is a point-in-time view of pool usage.
type Stats struct {
	Allocs      uint64
	DedupeHits  uint64
	LiveBuffers int
	LiveBytes   int64
	Units       int
	Generation  uint32
}

type slot struct {
	data   []byte
	live   bool
	shared bool
	reuse  uint32 // bumped by every Free of the slot
}

// Pool is the shared allocation pool of a compilation session. It is safe
// for concurrent use by multiple workers.
type Pool struct {
	mu     sync.Mutex
	opts   Options
	slots  []slot // index 0 reserved for the invalid handle
	free   []uint32
	dedupe map[string]uint32
	gen    uint32
	used   int64
	live   int
	units  int
	closed bool
	allocs uint64
	hits   uint64
}

// NewPool creates an empty pool.
func NewPool(opts Options) *Pool {
	p := &Pool{
		opts:   opts,
		slots:  make([]slot, 1, opts.CapHint+1),
		dedupe: make(map[string]uint32),
		gen:    1,
	}
	return p
}

// Dedupe reports whether Intern shares identical contents.
func (p *Pool) Dedupe() bool { return p.opts.Dedupe }

// Alloc copies data into storage uniquely owned by the returned buffer.
func (p *Pool) Alloc(data []byte) (Buffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	h, err := p.store(data, false)
	if err != nil {
		return Buffer{}, err
	}
	return Buffer{own: Owned, handle: h}, nil
}

// Intern returns a shared buffer for data, reusing an existing one with the
// same contents when deduplication is on. Without deduplication it behaves
// like Alloc.
func (p *Pool) Intern(data []byte) (Buffer, error) {
	if !p.opts.Dedupe {
		return p.Alloc(data)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return Buffer{}, ErrReleased
	}
	if idx, ok := p.dedupe[string(data)]; ok {
		p.hits++
		return Buffer{own: Shared, handle: Handle{index: idx, gen: p.gen, reuse: p.slots[idx].reuse}}, nil
	}
	h, err := p.store(data, true)
	if err != nil {
		return Buffer{}, err
	}
	p.dedupe[string(data)] = h.index
	return Buffer{own: Shared, handle: h}, nil
}

// Borrow wraps bytes owned elsewhere. The caller keeps data alive and
// unmodified for as long as the buffer is in use.
func (p *Pool) Borrow(data []byte) Buffer {
	return Buffer{own: Borrowed, ext: data}
}

// store must be called with p.mu held.
func (p *Pool) store(data []byte, shared bool) (Handle, error) {
	if p.closed {
		return Handle{}, ErrReleased
	}
	size := int64(len(data))
	if p.opts.Limit > 0 && p.used+size > p.opts.Limit {
		return Handle{}, fmt.Errorf("%w: need %d bytes, %d of %d in use", ErrExhausted, size, p.used, p.opts.Limit)
	}
	var idx uint32
	if n := len(p.free); n > 0 {
		idx = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		v, err := safecast.Conv[uint32](len(p.slots))
		if err != nil {
			return Handle{}, fmt.Errorf("arena: slot index overflow: %w", err)
		}
		idx = v
		p.slots = append(p.slots, slot{})
	}
	reuse := p.slots[idx].reuse
	p.slots[idx] = slot{data: append([]byte(nil), data...), live: true, shared: shared, reuse: reuse}
	p.used += size
	p.live++
	p.allocs++
	return Handle{index: idx, gen: p.gen, reuse: reuse}, nil
}

// Bytes returns the contents of b. The returned slice is read-only.
// Absent buffers yield nil; stale handles panic.
func (p *Pool) Bytes(b Buffer) []byte {
	switch b.own {
	case Absent:
		return nil
	case Borrowed:
		return b.ext
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lookup(b.handle).data
}

func (p *Pool) lookup(h Handle) *slot {
	if !h.IsValid() || h.gen != p.gen || int(h.index) >= len(p.slots) ||
		!p.slots[h.index].live || p.slots[h.index].reuse != h.reuse {
		panic(fmt.Sprintf("arena: stale handle %d/%d.%d (generation %d)", h.index, h.gen, h.reuse, p.gen))
	}
	return &p.slots[h.index]
}

// Free returns uniquely owned storage to the pool. Shared and borrowed
// buffers live until ReleaseAll and are ignored here.
func (p *Pool) Free(b Buffer) {
	if b.own != Owned {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.lookup(b.handle)
	p.used -= int64(len(s.data))
	p.live--
	*s = slot{reuse: s.reuse + 1}
	p.free = append(p.free, b.handle.index)
}

// AcquireUnit records one more live compiled unit carved from the pool.
func (p *Pool) AcquireUnit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrReleased
	}
	p.units++
	return nil
}

// ReleaseUnit undoes AcquireUnit.
func (p *Pool) ReleaseUnit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.units == 0 {
		panic("arena: unit released twice")
	}
	p.units--
}

// ReleaseAll drops every buffer at once and starts a new generation. It may
// only be called once all units allocated from the pool have been consumed.
func (p *Pool) ReleaseAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
}

func (p *Pool) releaseLocked() {
	clear(p.slots)
	p.slots = p.slots[:1]
	p.free = p.free[:0]
	clear(p.dedupe)
	p.used = 0
	p.live = 0
	p.units = 0
	p.gen++
}

// Close releases everything; later allocations fail with ErrReleased.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.closed = true
}

// Stats reports current usage.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Allocs:      p.allocs,
		DedupeHits:  p.hits,
		LiveBuffers: p.live,
		LiveBytes:   p.used,
		Units:       p.units,
		Generation:  p.gen,
	}
}
