package trace

import "context"

type bindingKey struct{}

// binding is what a context carries: the tracer and the innermost span.
type binding struct {
	tracer Tracer
	span   uint64
}

func bound(ctx context.Context) binding {
	if ctx != nil {
		if b, ok := ctx.Value(bindingKey{}).(binding); ok {
			return b
		}
	}
	return binding{tracer: Nop}
}

// FromContext returns the tracer attached to ctx, or Nop.
func FromContext(ctx context.Context) Tracer { return bound(ctx).tracer }

// CurrentSpan returns the innermost span recorded in ctx, or 0.
func CurrentSpan(ctx context.Context) uint64 { return bound(ctx).span }

// WithTracer attaches t to ctx; nil means Nop.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	if t == nil {
		t = Nop
	}
	b := bound(ctx)
	b.tracer = t
	return context.WithValue(ctx, bindingKey{}, b)
}

// WithSpan records id as the parent of spans opened further down.
func WithSpan(ctx context.Context, id uint64) context.Context {
	b := bound(ctx)
	b.span = id
	return context.WithValue(ctx, bindingKey{}, b)
}
