package trace

import "time"

// Kind is what an event marks.
type Kind uint8

const (
	KindSpanBegin Kind = iota + 1
	KindSpanEnd
	KindPoint
	KindError // passes every level except off
)

var kindNames = [...]string{
	KindSpanBegin: "begin",
	KindSpanEnd:   "end",
	KindPoint:     "point",
	KindError:     "error",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) && kindNames[k] != "" {
		return kindNames[k]
	}
	return "unknown"
}

// Scope is the granularity of an event; lower values are coarser.
type Scope uint8

const (
	ScopeSession Scope = iota + 1 // a whole compilation session
	ScopePhase                    // compile, layout, release
	ScopeUnit                     // one compiled unit
	ScopeTable                    // one side table of a unit
)

var scopeNames = [...]string{
	ScopeSession: "session",
	ScopePhase:   "phase",
	ScopeUnit:    "unit",
	ScopeTable:   "table",
}

func (s Scope) String() string {
	if int(s) < len(scopeNames) && scopeNames[s] != "" {
		return scopeNames[s]
	}
	return "unknown"
}

// Attr is one key/value annotation of an event, kept in insertion order.
type Attr struct {
	Key   string
	Value string
}

// Event is one trace record. Seq is assigned by the tracer that stores it.
type Event struct {
	Time     time.Time
	Seq      uint64
	Kind     Kind
	Scope    Scope
	SpanID   uint64
	ParentID uint64 // 0 for roots
	Name     string // "compile", "unit:main", "cfi"
	Detail   string
	Attrs    []Attr
}
