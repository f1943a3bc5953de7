package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for _, l := range []Level{LevelOff, LevelError, LevelPhase, LevelDetail, LevelDebug} {
		got, err := ParseLevel(l.String())
		if err != nil || got != l {
			t.Errorf("ParseLevel(%q) = %v, %v", l.String(), got, err)
		}
	}
	if _, err := ParseLevel("verbose"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestShouldEmit(t *testing.T) {
	tests := []struct {
		level Level
		kind  Kind
		scope Scope
		want  bool
	}{
		{LevelOff, KindError, ScopeSession, false},
		{LevelError, KindSpanBegin, ScopeSession, false},
		{LevelError, KindError, ScopeUnit, true},
		{LevelPhase, KindSpanBegin, ScopePhase, true},
		{LevelPhase, KindSpanBegin, ScopeUnit, false},
		{LevelDetail, KindPoint, ScopeUnit, true},
		{LevelDetail, KindPoint, ScopeTable, false},
		{LevelDebug, KindPoint, ScopeTable, true},
	}
	for _, tt := range tests {
		if got := tt.level.ShouldEmit(tt.kind, tt.scope); got != tt.want {
			t.Errorf("%s.ShouldEmit(%s, %s) = %v, want %v", tt.level, tt.kind, tt.scope, got, tt.want)
		}
	}
}

func TestStreamTracerText(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)

	root := Begin(tr, ScopePhase, "compile", 0)
	unit := Begin(tr, ScopeUnit, "unit:main", root.ID())
	unit.Attr("bytes", "12").Attr("patches", "2").End("ok")
	Point(tr, ScopeTable, "cfi", "", unit.ID()) // filtered at detail
	Error(tr, ScopeUnit, "unit:broken", errors.New("pool exhausted"), root.ID())
	root.End("")
	if err := tr.Flush(); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[2], "← unit:main (ok) bytes=12 patches=2") {
		t.Errorf("unit end line = %q", lines[2])
	}
	if !strings.Contains(lines[3], "! unit:broken (pool exhausted)") {
		t.Errorf("error line = %q", lines[3])
	}
	if strings.Contains(out, "cfi") {
		t.Error("table-scope point must be filtered at detail level")
	}
}

func TestStreamTracerNDJSON(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelPhase, FormatNDJSON)
	Begin(tr, ScopeSession, "session", 0).Attr("units", "3").End("done")
	if err := tr.Close(); err != nil {
		t.Fatal(err)
	}

	dec := json.NewDecoder(&buf)
	var kinds []string
	for dec.More() {
		var ev map[string]any
		if err := dec.Decode(&ev); err != nil {
			t.Fatalf("decode: %v", err)
		}
		kinds = append(kinds, ev["kind"].(string))
		if ev["scope"] != "session" || ev["name"] != "session" || ev["seq"] == nil {
			t.Errorf("event = %v", ev)
		}
	}
	if strings.Join(kinds, ",") != "begin,end" {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestRingTracerWraps(t *testing.T) {
	tr := NewRingTracer(3, LevelDebug)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		Point(tr, ScopeUnit, name, "", 0)
	}
	snap := tr.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("snapshot len = %d", len(snap))
	}
	var names []string
	for _, ev := range snap {
		names = append(names, ev.Name)
	}
	if strings.Join(names, "") != "cde" {
		t.Errorf("snapshot order = %v", names)
	}
	var buf bytes.Buffer
	if err := tr.Dump(&buf, FormatText); err != nil {
		t.Fatal(err)
	}
	if strings.Count(buf.String(), "\n") != 3 {
		t.Errorf("dump = %q", buf.String())
	}
}

func TestNopAndContext(t *testing.T) {
	if FromContext(context.Background()) != Nop {
		t.Error("empty context must yield Nop")
	}
	span := Begin(Nop, ScopeSession, "x", 0)
	if span.ID() != 0 || span.End("") != 0 {
		t.Error("nop span must be inert")
	}

	tr := NewRingTracer(8, LevelDebug)
	ctx := WithSpan(WithTracer(context.Background(), tr), 42)
	if FromContext(ctx) != Tracer(tr) {
		t.Error("FromContext must return the attached tracer")
	}
	if CurrentSpan(ctx) != 42 || CurrentSpan(context.Background()) != 0 {
		t.Error("span propagation broken")
	}
}

func TestNew(t *testing.T) {
	tr, err := New(Config{Level: LevelOff})
	if err != nil || tr != Nop {
		t.Errorf("off level = %v, %v", tr, err)
	}
	var buf bytes.Buffer
	tr, err = New(Config{Level: LevelPhase, Mode: ModeStream, Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*StreamTracer); !ok {
		t.Errorf("stream mode built %T", tr)
	}
	tr, err = New(Config{Level: LevelPhase, Mode: ModeRing, RingSize: 4})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := tr.(*RingTracer); !ok {
		t.Errorf("ring mode built %T", tr)
	}
	if _, err := ParseMode("both"); err == nil {
		t.Error("expected error for unsupported mode")
	}
}

func TestFailReachesErrorLevel(t *testing.T) {
	ring := NewRingTracer(8, LevelError)
	span := Begin(ring, ScopeUnit, "unit:x", 0)
	if span.ID() != 0 {
		t.Error("unit span must be filtered at error level")
	}
	Fail(ring, span, ScopeUnit, "unit:x", errors.New("boom"), 0)
	snap := ring.Snapshot()
	if len(snap) != 1 || snap[0].Kind != KindError || snap[0].Detail != "boom" || snap[0].Seq != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSpanEndIsIdempotent(t *testing.T) {
	ring := NewRingTracer(8, LevelDebug)
	s := Begin(ring, ScopePhase, "layout", 0)
	s.End("")
	s.End("again")
	if n := len(ring.Snapshot()); n != 2 {
		t.Errorf("events = %d, want begin and one end", n)
	}
}

func TestTextQuotesAttrValues(t *testing.T) {
	ev := &Event{Seq: 7, Kind: KindPoint, Scope: ScopeTable, Name: "cfi", Attrs: []Attr{{"unit", "a b"}, {"n", ""}}}
	got := string(AppendEvent(nil, ev, FormatText))
	if !strings.Contains(got, `unit="a b" n=""`) || !strings.HasPrefix(got, "#000007 table") {
		t.Errorf("text = %q", got)
	}
}
