package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"nativeunit/internal/compiled"
	"nativeunit/internal/config"
	"nativeunit/internal/session"
	"nativeunit/internal/trace"
	"nativeunit/internal/unitcache"
)

var (
	buildBase    uint64
	buildNoCache bool
	buildTimings bool
)

func init() {
	buildCmd.Flags().Uint64Var(&buildBase, "base", 0x1000, "load address of the text region")
	buildCmd.Flags().BoolVar(&buildNoCache, "no-cache", false, "do not store snapshots")
	buildCmd.Flags().BoolVar(&buildTimings, "timings", false, "print phase timings")
}

var buildCmd = &cobra.Command{
	Use:   "build <manifest.toml>",
	Short: "Compile the units of a manifest and lay them out",
	Args:  cobra.ExactArgs(1),
	RunE:  runBuild,
}

type builtUnit struct {
	name   string
	place  session.Placement
	digest unitcache.Digest
}

func runBuild(cmd *cobra.Command, args []string) error {
	manifest, err := config.LoadManifest(args[0])
	if err != nil {
		return err
	}
	backend, jobs, err := newManifestBackend(manifest)
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}

	ctx := cmd.Context()
	sess, err := session.New(cfg.Session, trace.FromContext(ctx))
	if err != nil {
		return err
	}
	defer sess.Close()

	results := sess.CompileAll(ctx, backend, jobs)
	out := cmd.OutOrStdout()
	var (
		units []*compiled.Method
		names []string
	)
	for _, r := range results {
		if r.Err != nil {
			failColor.Fprint(out, "error")
			fmt.Fprintf(out, ": %v\n", r.Err)
			continue
		}
		units = append(units, r.Method)
		names = append(names, r.Job.Name)
	}

	placed, size := sess.Layout(units, buildBase)

	var cache *unitcache.Cache
	if !buildNoCache {
		if cache, err = unitcache.Open(cfg.Cache.Dir, "nativeunit"); err != nil {
			return fmt.Errorf("failed to open unit cache: %w", err)
		}
	}
	built := make([]builtUnit, len(placed))
	for i, p := range placed {
		built[i] = builtUnit{name: names[i], place: p}
		if cache == nil {
			continue
		}
		snap := unitcache.FromMethod(names[i], p.Unit)
		snap.Offset, snap.Entry = p.Offset, p.Entry
		if built[i].digest, err = cache.Put(snap); err != nil {
			return fmt.Errorf("failed to cache %s: %w", names[i], err)
		}
	}

	if err := layoutTable(built).write(out); err != nil {
		return err
	}
	st := sess.Stats()
	status := okColor
	if st.Failed > 0 {
		status = failColor
	}
	status.Fprintf(out, "\n%d units, %d failed", st.Units, st.Failed)
	fmt.Fprintf(out, ", text %d bytes, pool %d bytes in %d buffers (%d dedupe hits)\n",
		size, st.Pool.LiveBytes, st.Pool.LiveBuffers, st.Pool.DedupeHits)
	if buildTimings {
		io.WriteString(out, sess.Timer().Summary())
	}
	if st.Failed > 0 {
		return fmt.Errorf("%d of %d units failed", st.Failed, len(jobs))
	}
	return nil
}

func layoutTable(built []builtUnit) *table {
	tb := newTable("unit", "isa", "offset", "entry", "size", "patches", "tables", "digest")
	tb.paint[7] = dimColor
	for _, b := range built {
		m := b.place.Unit
		offset := fmt.Sprintf("0x%04x", b.place.Offset)
		if b.place.Reused {
			offset += "*"
		}
		digest := "-"
		if !b.digest.IsZero() {
			digest = b.digest.Short()
		}
		tb.add(b.name,
			m.InstructionSet().String(),
			offset,
			fmt.Sprintf("%#x", b.place.Entry),
			strconv.Itoa(m.Size()),
			strconv.Itoa(len(b.place.Patches)),
			tableSummary(m),
			digest)
	}
	return tb
}

// tableSummary lists the side tables a unit carries.
func tableSummary(m *compiled.Method) string {
	var s []byte
	flag := func(ok bool, c byte) {
		if ok {
			s = append(s, c)
		} else {
			s = append(s, '.')
		}
	}
	has := func(get func() ([]byte, bool)) bool {
		_, ok := get()
		return ok
	}
	flag(m.HasSourceMap(), 's')
	flag(has(m.MappingTable), 'm')
	flag(m.HasStackMap(), 'k')
	flag(!m.HasStackMap() && has(m.VmapTable), 'v')
	flag(has(m.GCMap), 'g')
	flag(has(m.CFIInfo), 'c')
	return string(s)
}
