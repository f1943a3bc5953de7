package trace

import (
	"bufio"
	"io"
	"sync"
)

// StreamTracer formats events as they arrive into a buffered writer.
type StreamTracer struct {
	gate
	format Format

	mu  sync.Mutex
	buf *bufio.Writer
	dst io.Writer
}

// NewStreamTracer writes events admitted by level to w.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{gate: gate{level: level}, format: format, buf: bufio.NewWriter(w), dst: w}
}

func (t *StreamTracer) Emit(ev *Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.stamp(ev) {
		return
	}
	// a broken sink never fails compilation
	_, _ = t.buf.Write(AppendEvent(nil, ev, t.format))
	if ev.Kind == KindError {
		_ = t.buf.Flush()
	}
}

// Flush pushes buffered events to the writer.
func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Flush()
}

// Close flushes and closes the writer when it is an io.Closer.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if c, ok := t.dst.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
