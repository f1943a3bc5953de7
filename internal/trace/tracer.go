package trace

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
)

// Tracer receives events. Emit must be safe for concurrent use and may
// drop events its level does not admit.
type Tracer interface {
	Level() Level
	Emit(ev *Event)
	Close() error
}

// admits reports whether t would keep an event of kind at scope.
func admits(t Tracer, kind Kind, scope Scope) bool {
	return t != nil && t.Level().ShouldEmit(kind, scope)
}

// gate holds what every concrete tracer shares: its level and the sequence
// counter stamped on stored events.
type gate struct {
	level Level
	seq   atomic.Uint64
}

func (g *gate) Level() Level { return g.level }

func (g *gate) stamp(ev *Event) bool {
	if !g.level.ShouldEmit(ev.Kind, ev.Scope) {
		return false
	}
	ev.Seq = g.seq.Add(1)
	return true
}

// StorageMode selects where events go.
type StorageMode uint8

const (
	ModeStream StorageMode = iota + 1 // written as they happen
	ModeRing                          // kept in memory, dumped on exit
)

func (m StorageMode) String() string {
	switch m {
	case ModeStream:
		return "stream"
	case ModeRing:
		return "ring"
	}
	return "unknown"
}

// ParseMode accepts stream or ring; empty means stream.
func ParseMode(s string) (StorageMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stream", "":
		return ModeStream, nil
	case "ring":
		return ModeRing, nil
	}
	return ModeStream, fmt.Errorf("invalid storage mode: %q (expected: stream|ring)", s)
}

// Config describes the tracer built by New.
type Config struct {
	Level      Level
	Mode       StorageMode
	Format     Format
	Output     io.Writer // stream mode; wins over OutputPath
	OutputPath string    // "" or "-" is stderr; a .ndjson suffix forces NDJSON
	RingSize   int
}

// New builds the tracer cfg describes; LevelOff always yields Nop.
func New(cfg Config) (Tracer, error) {
	if cfg.Level == LevelOff {
		return Nop, nil
	}
	switch cfg.Mode {
	case ModeRing:
		return NewRingTracer(cfg.RingSize, cfg.Level), nil
	case ModeStream, 0:
	default:
		return nil, fmt.Errorf("unknown storage mode: %v", cfg.Mode)
	}

	w := cfg.Output
	if w == nil {
		switch cfg.OutputPath {
		case "", "-":
			w = keepOpen{os.Stderr}
		default:
			f, err := os.Create(cfg.OutputPath)
			if err != nil {
				return nil, fmt.Errorf("failed to open trace output: %w", err)
			}
			w = f
		}
	}
	format := cfg.Format
	if strings.HasSuffix(cfg.OutputPath, ".ndjson") {
		format = FormatNDJSON
	}
	return NewStreamTracer(w, cfg.Level, format), nil
}

// keepOpen hides Close so stderr survives the tracer.
type keepOpen struct{ io.Writer }
