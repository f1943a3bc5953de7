package trace

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is the encoding of written events.
type Format uint8

const (
	FormatText   Format = iota // one aligned line per event
	FormatNDJSON               // one JSON object per line
)

// ParseFormat accepts text, ndjson or json; empty means text.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "text", "":
		return FormatText, nil
	case "ndjson", "json":
		return FormatNDJSON, nil
	}
	return FormatText, fmt.Errorf("invalid trace format: %q (expected: text|ndjson)", s)
}

// AppendEvent appends the encoding of ev, newline included, to b.
func AppendEvent(b []byte, ev *Event, format Format) []byte {
	if format == FormatNDJSON {
		return appendJSON(b, ev)
	}
	return appendText(b, ev)
}

var kindMarks = [...]string{
	KindSpanBegin: "→",
	KindSpanEnd:   "←",
	KindPoint:     "•",
	KindError:     "!",
}

// appendText renders "#seq scope  mark name (detail) k=v ...". Child events
// are indented by one step.
func appendText(b []byte, ev *Event) []byte {
	b = fmt.Appendf(b, "#%06d %-7s ", ev.Seq, ev.Scope)
	if ev.ParentID != 0 {
		b = append(b, "  "...)
	}
	mark := "?"
	if int(ev.Kind) < len(kindMarks) && kindMarks[ev.Kind] != "" {
		mark = kindMarks[ev.Kind]
	}
	b = append(b, mark...)
	b = append(b, ' ')
	b = append(b, ev.Name...)
	if ev.Detail != "" {
		b = append(b, " ("...)
		b = append(b, ev.Detail...)
		b = append(b, ')')
	}
	for _, a := range ev.Attrs {
		b = append(b, ' ')
		b = append(b, a.Key...)
		b = append(b, '=')
		b = appendValue(b, a.Value)
	}
	return append(b, '\n')
}

// appendValue quotes values that would break the key=value layout.
func appendValue(b []byte, v string) []byte {
	if v == "" || strings.ContainsAny(v, " =\"\n") {
		return strconv.AppendQuote(b, v)
	}
	return append(b, v...)
}

type jsonEvent struct {
	Time     string            `json:"time"`
	Seq      uint64            `json:"seq"`
	Kind     string            `json:"kind"`
	Scope    string            `json:"scope"`
	SpanID   uint64            `json:"span_id"`
	ParentID uint64            `json:"parent_id,omitempty"`
	Name     string            `json:"name"`
	Detail   string            `json:"detail,omitempty"`
	Attrs    map[string]string `json:"attrs,omitempty"`
}

func appendJSON(b []byte, ev *Event) []byte {
	je := jsonEvent{
		Time:     ev.Time.UTC().Format(time.RFC3339Nano),
		Seq:      ev.Seq,
		Kind:     ev.Kind.String(),
		Scope:    ev.Scope.String(),
		SpanID:   ev.SpanID,
		ParentID: ev.ParentID,
		Name:     ev.Name,
		Detail:   ev.Detail,
	}
	if len(ev.Attrs) > 0 {
		je.Attrs = make(map[string]string, len(ev.Attrs))
		for _, a := range ev.Attrs {
			je.Attrs[a.Key] = a.Value
		}
	}
	data, err := json.Marshal(je)
	if err != nil {
		// only strings and integers inside
		panic(err)
	}
	b = append(b, data...)
	return append(b, '\n')
}
