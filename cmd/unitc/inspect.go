package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"nativeunit/internal/stackmap"
	"nativeunit/internal/unitcache"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [digest]",
	Short: "List cached unit snapshots or show one of them",
	Long:  "Without arguments lists every cached snapshot. A digest may be abbreviated to any unique prefix.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cache, err := unitcache.Open(cfg.Cache.Dir, "nativeunit")
	if err != nil {
		return fmt.Errorf("failed to open unit cache: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(args) == 0 {
		return listSnapshots(out, cache)
	}

	key, err := cache.Resolve(args[0])
	if err != nil {
		return err
	}
	var snap unitcache.Snapshot
	ok, err := cache.Get(key, &snap)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("snapshot %s vanished", key.Short())
	}
	return describe(out, key, &snap)
}

func listSnapshots(out io.Writer, cache *unitcache.Cache) error {
	keys, err := cache.List()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Fprintf(out, "no snapshots in %s\n", cache.Dir())
		return nil
	}
	tb := newTable("digest", "unit", "isa", "size", "entry")
	tb.paint[0] = dimColor
	for _, k := range keys {
		var snap unitcache.Snapshot
		if ok, err := cache.Get(k, &snap); err != nil || !ok {
			tb.add(k.Short(), "?", "", "", "")
			continue
		}
		tb.add(k.Short(), snap.Name, snap.ISA, strconv.Itoa(len(snap.Code)), fmt.Sprintf("%#x", snap.Entry))
	}
	return tb.write(out)
}

func describe(out io.Writer, key unitcache.Digest, s *unitcache.Snapshot) error {
	headerColor.Fprintf(out, "%s", s.Name)
	fmt.Fprintf(out, "  %s\n", dimColor.Sprint(key.String()))

	fields := newTable("field", "value")
	fields.add("isa", s.ISA)
	fields.add("code", fmt.Sprintf("%d bytes  %s", len(s.Code), hexPreview(s.Code, 16)))
	fields.add("frame", fmt.Sprintf("%d bytes, core %#x, fp %#x", s.FrameSize, s.CoreSpillMask, s.FPSpillMask))
	fields.add("placed", fmt.Sprintf("offset %#x, entry %#x", s.Offset, s.Entry))
	for _, t := range []struct {
		name string
		data []byte
	}{
		{"mapping", s.Mapping},
		{"vmap", s.Vmap},
		{"gc map", s.GCMap},
		{"cfi", s.CFI},
	} {
		v := dimColor.Sprint("absent")
		if t.data != nil {
			v = fmt.Sprintf("%d bytes  %s", len(t.data), hexPreview(t.data, 8))
		}
		if t.name == "vmap" && s.StackMap {
			v = fmt.Sprintf("%d bytes  stack map table", len(t.data))
		}
		fields.add(t.name, v)
	}
	if err := fields.write(out); err != nil {
		return err
	}

	if s.SourceMap != nil {
		fmt.Fprintf(out, "\nsource map (%s)\n", s.SourceMapOrder)
		tb := newTable("native", "line")
		for _, l := range s.SourceMap {
			tb.add(fmt.Sprintf("%#x", l.Native), strconv.Itoa(int(l.Line)))
		}
		if err := tb.write(out); err != nil {
			return err
		}
	}
	if len(s.Patches) > 0 {
		fmt.Fprintln(out, "\npatches")
		tb := newTable("offset", "kind", "unit", "index")
		for _, p := range s.Patches {
			tb.add(fmt.Sprintf("%#x", p.Offset), p.Kind, strconv.FormatUint(uint64(p.Unit), 10), strconv.FormatUint(uint64(p.Index), 10))
		}
		if err := tb.write(out); err != nil {
			return err
		}
	}
	if s.StackMap {
		return describeStackMaps(out, s.Vmap)
	}
	return nil
}

func describeStackMaps(out io.Writer, table []byte) error {
	ci, err := stackmap.Decode(table)
	if err != nil {
		failColor.Fprintf(out, "stack map table corrupted: %v\n", err)
		return nil
	}
	fmt.Fprintf(out, "\nsafepoints (%d, mask %d bytes)\n", ci.NumberOfStackMaps(), ci.StackMaskSize())
	tb := newTable("source pc", "native pc", "registers", "live slots", "inlined")
	for i := range ci.NumberOfStackMaps() {
		sm := ci.StackMapAt(i)
		var slots []string
		for bit := range ci.StackMaskSize() * 8 {
			if sm.StackSlotLive(bit) {
				slots = append(slots, strconv.Itoa(bit))
			}
		}
		inlined := "-"
		if sm.HasInlineInfo() {
			info := ci.InlineInfoOf(sm)
			var idx []string
			for d := range info.Depth() {
				idx = append(idx, strconv.FormatUint(uint64(info.MethodIndexAtDepth(d)), 10))
			}
			inlined = strings.Join(idx, " > ")
		}
		tb.add(strconv.FormatUint(uint64(sm.SourcePC()), 10),
			fmt.Sprintf("%#x", sm.NativePCOffset()),
			fmt.Sprintf("%#x", sm.RegisterMask()),
			strings.Join(slots, ","),
			inlined)
	}
	return tb.write(out)
}

func hexPreview(b []byte, n int) string {
	if len(b) <= n {
		return fmt.Sprintf("% x", b)
	}
	return fmt.Sprintf("% x ...", b[:n])
}
