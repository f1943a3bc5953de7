package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nativeunit/internal/config"
	"nativeunit/internal/trace"
)

// setupTracing merges the trace flags over the [trace] section, attaches the
// tracer to the command context and returns its cleanup.
func setupTracing(cmd *cobra.Command, section config.Trace) (func(), error) {
	flags := cmd.Root().PersistentFlags()
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"trace", &section.Output},
		{"trace-level", &section.Level},
		{"trace-mode", &section.Mode},
	} {
		v, err := flags.GetString(f.name)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s flag: %w", f.name, err)
		}
		if v != "" {
			*f.dst = v
		}
	}
	// an explicit output without a level means "show phases"
	if flags.Changed("trace") && !flags.Changed("trace-level") && section.Level == "off" {
		section.Level = trace.LevelPhase.String()
	}

	tc, err := section.Config()
	if err != nil {
		return nil, err
	}
	tracer, err := trace.New(tc)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracer: %w", err)
	}

	ctx := trace.WithTracer(cmd.Context(), tracer)
	cmd.SetContext(ctx)

	return func() {
		if ring, ok := tracer.(*trace.RingTracer); ok {
			if err := ring.Dump(cmd.ErrOrStderr(), tc.Format); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "trace: dump error: %v\n", err)
			}
		}
		if err := tracer.Close(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "trace: close error: %v\n", err)
		}
	}, nil
}
