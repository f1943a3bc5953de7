package trace

import (
	"fmt"
	"strings"
)

// Level controls tracing verbosity.
type Level uint8

const (
	LevelOff    Level = iota
	LevelError        // failed units only
	LevelPhase        // session and phase boundaries
	LevelDetail       // one span per unit
	LevelDebug        // side tables too
)

var levelNames = [...]string{"off", "error", "phase", "detail", "debug"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "unknown"
}

// ParseLevel accepts the names printed by String; empty means off.
func ParseLevel(s string) (Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return LevelOff, nil
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i), nil
		}
	}
	return LevelOff, fmt.Errorf("invalid trace level: %q (expected: %s)", s, strings.Join(levelNames[:], "|"))
}

// maxScope is the finest scope a level lets through.
func (l Level) maxScope() Scope {
	switch l {
	case LevelPhase:
		return ScopePhase
	case LevelDetail:
		return ScopeUnit
	case LevelDebug:
		return ScopeTable
	}
	return 0
}

// ShouldEmit reports whether an event of kind at scope passes l.
func (l Level) ShouldEmit(kind Kind, scope Scope) bool {
	if l == LevelOff {
		return false
	}
	return kind == KindError || scope <= l.maxScope()
}
