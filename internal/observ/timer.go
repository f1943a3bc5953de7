package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Mark identifies one open phase.
type Mark int

type run struct {
	name  string
	start time.Time
	dur   time.Duration
	done  bool
	note  string
}

// Timer measures session phases. A phase name may run many times (one
// compile per CompileAll call); Report folds runs of the same name.
type Timer struct {
	mu   sync.Mutex
	now  func() time.Time
	runs []run
}

// NewTimer returns a Timer on the wall clock.
func NewTimer() *Timer { return &Timer{now: time.Now} }

// Begin opens a run of phase name.
func (t *Timer) Begin(name string) Mark {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = append(t.runs, run{name: name, start: t.now()})
	return Mark(len(t.runs) - 1)
}

// End closes m. Unknown or already closed marks are ignored.
func (t *Timer) End(m Mark, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if m < 0 || int(m) >= len(t.runs) || t.runs[m].done {
		return
	}
	r := &t.runs[m]
	r.dur, r.done, r.note = t.now().Sub(r.start), true, note
}

// PhaseStat is the folded view of every finished run of one phase.
type PhaseStat struct {
	Name    string  `json:"name"`
	Runs    int     `json:"runs"`
	TotalMS float64 `json:"total_ms"`
	Note    string  `json:"note,omitempty"` // of the latest run
}

// Report lists phases in the order they first ran.
type Report struct {
	TotalMS float64     `json:"total_ms"`
	Phases  []PhaseStat `json:"phases"`
}

func millis(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }

// Report folds finished runs by name; open runs are left out.
func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var rep Report
	index := make(map[string]int)
	for _, r := range t.runs {
		if !r.done {
			continue
		}
		i, ok := index[r.name]
		if !ok {
			i = len(rep.Phases)
			index[r.name] = i
			rep.Phases = append(rep.Phases, PhaseStat{Name: r.name})
		}
		ps := &rep.Phases[i]
		ps.Runs++
		ps.TotalMS += millis(r.dur)
		if r.note != "" {
			ps.Note = r.note
		}
		rep.TotalMS += millis(r.dur)
	}
	return rep
}

// Summary renders the report for a terminal.
func (t *Timer) Summary() string {
	rep := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, ps := range rep.Phases {
		name := ps.Name
		if ps.Runs > 1 {
			name = fmt.Sprintf("%s x%d", ps.Name, ps.Runs)
		}
		fmt.Fprintf(&sb, "  %-14s %9.3f ms", name, ps.TotalMS)
		if ps.Note != "" {
			fmt.Fprintf(&sb, "  // %s", ps.Note)
		}
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "  %-14s %9.3f ms\n", "total", rep.TotalMS)
	return sb.String()
}
