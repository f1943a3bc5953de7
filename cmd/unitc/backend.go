package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"

	"fortio.org/safecast"

	"nativeunit/internal/compiled"
	"nativeunit/internal/config"
	"nativeunit/internal/isa"
	"nativeunit/internal/patch"
	"nativeunit/internal/session"
	"nativeunit/internal/srcmap"
	"nativeunit/internal/stackmap"
)

// manifestBackend serves code that was generated ahead of time and written
// into a unit manifest.
type manifestBackend struct {
	units map[string]config.UnitSpec
}

func newManifestBackend(m *config.Manifest) (*manifestBackend, []session.Job, error) {
	b := &manifestBackend{units: make(map[string]config.UnitSpec, len(m.Units))}
	jobs := make([]session.Job, 0, len(m.Units))
	for _, u := range m.Units {
		job := session.Job{Name: u.Name}
		if strings.TrimSpace(u.ISA) != "" {
			set, err := isa.Parse(u.ISA)
			if err != nil {
				return nil, nil, fmt.Errorf("unit %q: %w", u.Name, err)
			}
			job.ISA = set
		}
		b.units[u.Name] = u
		jobs = append(jobs, job)
	}
	return b, jobs, nil
}

func (b *manifestBackend) Generate(ctx context.Context, job session.Job) (*session.Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	u, ok := b.units[job.Name]
	if !ok {
		return nil, fmt.Errorf("unit %q not in manifest", job.Name)
	}
	return buildOutput(u)
}

func buildOutput(u config.UnitSpec) (*session.Output, error) {
	out := &session.Output{
		Frame: compiled.FrameInfo{
			SizeInBytes:   u.FrameSize,
			CoreSpillMask: u.CoreSpillMask,
			FPSpillMask:   u.FPSpillMask,
		},
	}
	var err error
	for _, f := range []struct {
		name string
		src  string
		dst  *[]byte
	}{
		{"code", u.Code, &out.Code},
		{"mapping", u.Mapping, &out.Tables.Mapping},
		{"vmap", u.Vmap, &out.Tables.Vmap},
		{"gc_map", u.GCMap, &out.Tables.GCMap},
		{"cfi", u.CFI, &out.Tables.CFI},
	} {
		if *f.dst, err = decodeHex(f.src); err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
	}

	if len(u.Lines) > 0 {
		sm := srcmap.New()
		for i, pair := range u.Lines {
			native, err := safecast.Conv[uint32](pair[0])
			if err != nil {
				return nil, fmt.Errorf("lines[%d]: native offset: %w", i, err)
			}
			line, err := safecast.Conv[int32](pair[1])
			if err != nil {
				return nil, fmt.Errorf("lines[%d]: line: %w", i, err)
			}
			sm.Add(native, line)
		}
		if u.Arrange {
			sm.Arrange()
		}
		out.Tables.SourceMap = sm
	}

	for i, p := range u.Patches {
		kind, err := patch.ParseKind(p.Kind)
		if err != nil {
			return nil, fmt.Errorf("patch[%d]: %w", i, err)
		}
		pp, err := patch.New(kind, p.Offset, patch.UnitRef(p.Unit), p.Index)
		if err != nil {
			return nil, fmt.Errorf("patch[%d]: %w", i, err)
		}
		out.Patches = append(out.Patches, pp)
	}

	if len(u.Safepoints) > 0 {
		if out.StackMap, err = encodeSafepoints(u.Safepoints); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeSafepoints(sps []config.SafepointSpec) ([]byte, error) {
	var b stackmap.Builder
	for i, sp := range sps {
		e := stackmap.Entry{
			SourcePC:     sp.SourcePC,
			NativePC:     sp.NativePC,
			RegisterMask: sp.RegisterMask,
			StackSlots:   sp.StackSlots,
			Inlined:      sp.Inlined,
		}
		for j, r := range sp.Registers {
			kind, err := stackmap.ParseLocationKind(r.Kind)
			if err != nil {
				return nil, fmt.Errorf("safepoint[%d].register[%d]: %w", i, j, err)
			}
			e.Registers = append(e.Registers, stackmap.Location{Kind: kind, Value: r.Value})
		}
		b.AddStackMap(e)
	}
	table, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("safepoints: %w", err)
	}
	return table, nil
}

func decodeHex(s string) ([]byte, error) {
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '_' {
			return -1
		}
		return r
	}, s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if s == "" {
		return nil, nil
	}
	return hex.DecodeString(s)
}
