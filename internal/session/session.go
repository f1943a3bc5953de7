package session

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"nativeunit/internal/arena"
	"nativeunit/internal/compiled"
	"nativeunit/internal/config"
	"nativeunit/internal/isa"
	"nativeunit/internal/observ"
	"nativeunit/internal/patch"
	"nativeunit/internal/trace"
)

// ErrTableConflict is returned when a backend emits a unified stack map
// together with any separate side table.
var ErrTableConflict = errors.New("session: stack map excludes other side tables")

// Job names one unit for the backend to generate.
type Job struct {
	Name string
	// ISA overrides the session default when not isa.None.
	ISA isa.InstructionSet
}

// Output is what a backend produces for one Job.
type Output struct {
	Code     []byte
	Frame    compiled.FrameInfo
	Tables   compiled.Tables
	StackMap []byte
	Patches  []patch.Patch
}

// Backend is the code generator. Generate may be called concurrently.
type Backend interface {
	Generate(ctx context.Context, job Job) (*Output, error)
}

// BackendFunc adapts a function to Backend.
type BackendFunc func(ctx context.Context, job Job) (*Output, error)

// Generate calls f.
func (f BackendFunc) Generate(ctx context.Context, job Job) (*Output, error) { return f(ctx, job) }

// Result pairs a job with its unit or the error that prevented it.
type Result struct {
	Job    Job
	Method *compiled.Method
	Err    error
}

// Stats summarizes a session.
type Stats struct {
	Pool   arena.Stats
	Units  int
	Failed int
}

// Session owns the pool every unit of one compilation is carved from.
type Session struct {
	cfg    config.Session
	set    isa.InstructionSet
	pool   *arena.Pool
	tracer trace.Tracer
	timer  *observ.Timer

	mu     sync.Mutex
	units  []*compiled.Method
	failed int
}

// New creates a session. A nil tracer disables tracing.
func New(cfg config.Session, tracer trace.Tracer) (*Session, error) {
	set, err := cfg.ISA()
	if err != nil {
		return nil, fmt.Errorf("session: %w", err)
	}
	if !isa.Supports(set) {
		return nil, fmt.Errorf("session: default instruction set %s has no policy", set)
	}
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Session{
		cfg:    cfg,
		set:    set,
		pool:   arena.NewPool(arena.Options{Dedupe: cfg.Dedupe, Limit: cfg.PoolLimit}),
		tracer: tracer,
		timer:  observ.NewTimer(),
	}, nil
}

// Pool exposes the session arena.
func (s *Session) Pool() *arena.Pool { return s.pool }

// Timer exposes the phase timer.
func (s *Session) Timer() *observ.Timer { return s.timer }

// DefaultISA is the instruction set used for jobs that name none.
func (s *Session) DefaultISA() isa.InstructionSet { return s.set }

// CompileAll generates and builds every job. A failing job does not stop the
// others; cancelling ctx stops jobs that have not started yet. Results are in
// job order.
func (s *Session) CompileAll(ctx context.Context, backend Backend, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}
	phase := s.timer.Begin("compile")
	span := trace.Begin(s.tracer, trace.ScopePhase, "compile", trace.CurrentSpan(ctx))
	ctx = trace.WithSpan(trace.WithTracer(ctx, s.tracer), span.ID())

	limit := s.cfg.Jobs
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(limit, len(jobs)))

	for i, job := range jobs {
		results[i].Job = job
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Method, results[i].Err = s.compileOne(gctx, backend, job)
			return nil
		})
	}
	_ = g.Wait()

	ok := 0
	s.mu.Lock()
	for _, r := range results {
		if r.Err != nil {
			s.failed++
			continue
		}
		ok++
		s.units = append(s.units, r.Method)
	}
	s.mu.Unlock()

	note := strconv.Itoa(ok) + "/" + strconv.Itoa(len(jobs)) + " units"
	span.Attr("units", strconv.Itoa(ok)).End(note)
	s.timer.End(phase, note)
	return results
}

func (s *Session) compileOne(ctx context.Context, backend Backend, job Job) (*compiled.Method, error) {
	parent := trace.CurrentSpan(ctx)
	name := "unit:" + job.Name
	span := trace.Begin(s.tracer, trace.ScopeUnit, name, parent)
	fail := func(err error) (*compiled.Method, error) {
		trace.Fail(s.tracer, span, trace.ScopeUnit, name, err, parent)
		return nil, err
	}

	set := job.ISA
	if set == isa.None {
		set = s.set
	}
	if !isa.Supports(set) {
		return fail(fmt.Errorf("unit %s: no policy for instruction set %s", job.Name, set))
	}

	out, err := backend.Generate(ctx, job)
	if err == nil && out == nil {
		err = errors.New("backend returned no output")
	}
	if err != nil {
		return fail(fmt.Errorf("unit %s: generate: %w", job.Name, err))
	}

	var m *compiled.Method
	switch others := presentTables(out.Tables); {
	case len(out.StackMap) > 0 && len(others) > 0:
		err = fmt.Errorf("%w: %s", ErrTableConflict, strings.Join(others, ", "))
	case len(out.StackMap) > 0:
		m, err = compiled.NewWithStackMap(s.pool, set, out.Code, out.Frame, out.StackMap, out.Patches...)
	default:
		m, err = compiled.New(s.pool, set, out.Code, out.Frame, out.Tables, out.Patches...)
	}
	if err != nil {
		return fail(fmt.Errorf("unit %s: %w", job.Name, err))
	}

	for _, t := range []struct {
		name string
		ok   bool
	}{
		{"source map", m.HasSourceMap()},
		{"stack map", m.HasStackMap()},
		{"cfi", hasTable(m.CFIInfo)},
		{"gc map", hasTable(m.GCMap)},
	} {
		if t.ok {
			trace.Point(s.tracer, trace.ScopeTable, t.name, job.Name, span.ID())
		}
	}
	span.Attr("isa", set.String()).
		Attr("bytes", strconv.Itoa(m.Size())).
		Attr("patches", strconv.Itoa(len(out.Patches))).
		End("ok")
	return m, nil
}

func presentTables(t compiled.Tables) []string {
	var names []string
	if t.SourceMap != nil {
		names = append(names, "source map")
	}
	for _, tb := range []struct {
		name string
		data []byte
	}{
		{"mapping", t.Mapping},
		{"vmap", t.Vmap},
		{"gc map", t.GCMap},
		{"cfi", t.CFI},
	} {
		if len(tb.data) > 0 {
			names = append(names, tb.name)
		}
	}
	return names
}

func hasTable(get func() ([]byte, bool)) bool {
	_, ok := get()
	return ok
}

// Units returns the live units built so far, in completion order of the
// CompileAll calls that produced them.
func (s *Session) Units() []*compiled.Method {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*compiled.Method(nil), s.units...)
}

// Release drops every unit and all pool storage in one step. Handles and
// units obtained earlier become invalid; the session may be reused.
func (s *Session) Release() {
	phase := s.timer.Begin("release")
	s.mu.Lock()
	n := len(s.units)
	for _, m := range s.units {
		if !m.Released() {
			m.Release()
		}
	}
	s.units = nil
	s.mu.Unlock()
	s.pool.ReleaseAll()
	trace.Point(s.tracer, trace.ScopePhase, "release", strconv.Itoa(n)+" units", 0)
	s.timer.End(phase, strconv.Itoa(n)+" units")
}

// Close releases everything and refuses further allocation.
func (s *Session) Close() {
	s.Release()
	s.pool.Close()
}

// Stats reports pool and unit counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Pool: s.pool.Stats(), Units: len(s.units), Failed: s.failed}
}
