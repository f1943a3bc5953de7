package trace

import (
	"sync/atomic"
	"time"
)

var spanIDs atomic.Uint64

// Span is an open begin/end pair. Spans the tracer would drop are inert:
// every method is a no-op and ID is 0.
type Span struct {
	tracer  Tracer
	id      uint64
	parent  uint64
	scope   Scope
	name    string
	started time.Time
	attrs   []Attr
}

// Begin opens a span under parent (0 for a root) and emits its begin event.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if !admits(t, KindSpanBegin, scope) {
		return &Span{}
	}
	s := &Span{
		tracer:  t,
		id:      spanIDs.Add(1),
		parent:  parent,
		scope:   scope,
		name:    name,
		started: time.Now(),
	}
	t.Emit(&Event{Time: s.started, Kind: KindSpanBegin, Scope: scope, SpanID: s.id, ParentID: parent, Name: name})
	return s
}

func (s *Span) live() bool { return s != nil && s.tracer != nil }

// ID is the span ID to pass as parent of nested events.
func (s *Span) ID() uint64 {
	if !s.live() {
		return 0
	}
	return s.id
}

// Attr annotates the end event.
func (s *Span) Attr(key, value string) *Span {
	if s.live() {
		s.attrs = append(s.attrs, Attr{Key: key, Value: value})
	}
	return s
}

// End emits the end event and reports how long the span was open.
func (s *Span) End(detail string) time.Duration {
	if !s.live() {
		return 0
	}
	now := time.Now()
	s.tracer.Emit(&Event{
		Time:     now,
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parent,
		Name:     s.name,
		Detail:   detail,
		Attrs:    s.attrs,
	})
	s.tracer = nil
	return now.Sub(s.started)
}

// Fail reports err against the span's name and closes it as "failed". The
// error event is emitted even when the span itself was filtered out, so
// LevelError still sees failures.
func Fail(t Tracer, s *Span, scope Scope, name string, err error, parent uint64) {
	Error(t, scope, name, err, parent)
	s.End("failed")
}

// Point emits an instant event.
func Point(t Tracer, scope Scope, name, detail string, parent uint64) {
	instant(t, KindPoint, scope, name, detail, parent)
}

// Error emits a failure event.
func Error(t Tracer, scope Scope, name string, err error, parent uint64) {
	instant(t, KindError, scope, name, err.Error(), parent)
}

func instant(t Tracer, kind Kind, scope Scope, name, detail string, parent uint64) {
	if !admits(t, kind, scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     kind,
		Scope:    scope,
		SpanID:   spanIDs.Add(1),
		ParentID: parent,
		Name:     name,
		Detail:   detail,
	})
}
