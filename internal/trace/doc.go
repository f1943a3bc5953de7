// Package trace records what a compilation session does with its units.
//
// A span brackets a session, a phase (compile, layout, release) or a single
// unit; points mark side tables; errors mark failed units. Each tracer keeps
// only what its Level admits:
//
//	off < error < phase < detail < debug
//
// StreamTracer writes text or NDJSON as events arrive. RingTracer keeps the
// newest events in memory and dumps them on exit. Nop drops everything.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePhase, "layout", trace.CurrentSpan(ctx))
//	defer span.End("")
package trace
