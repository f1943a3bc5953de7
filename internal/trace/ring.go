package trace

import (
	"io"
	"sync"
)

const defaultRingSize = 4096

// RingTracer keeps the most recent events for a dump after the session.
type RingTracer struct {
	gate

	mu    sync.Mutex
	slots []Event
	total uint64 // events ever stored
}

// NewRingTracer keeps up to capacity events (4096 when capacity <= 0).
func NewRingTracer(capacity int, level Level) *RingTracer {
	if capacity <= 0 {
		capacity = defaultRingSize
	}
	return &RingTracer{gate: gate{level: level}, slots: make([]Event, capacity)}
}

func (t *RingTracer) Emit(ev *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stamp(ev) {
		return
	}
	t.slots[t.total%uint64(len(t.slots))] = *ev
	t.total++
}

// Snapshot returns the retained events, oldest first.
func (t *RingTracer) Snapshot() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	size := uint64(len(t.slots))
	n := min(t.total, size)
	out := make([]Event, 0, n)
	for i := t.total - n; i < t.total; i++ {
		out = append(out, t.slots[i%size])
	}
	return out
}

// Dump writes the retained events to w.
func (t *RingTracer) Dump(w io.Writer, format Format) error {
	var b []byte
	for _, ev := range t.Snapshot() {
		b = AppendEvent(b, &ev, format)
	}
	_, err := w.Write(b)
	return err
}

func (t *RingTracer) Close() error { return nil }
