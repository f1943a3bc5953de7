package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"nativeunit/internal/config"
	"nativeunit/internal/isa"
	"nativeunit/internal/patch"
	"nativeunit/internal/srcmap"
	"nativeunit/internal/stackmap"
)

func TestDecodeHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
	}{
		{"", nil},
		{"  ", nil},
		{"7047 00bf", []byte{0x70, 0x47, 0x00, 0xbf}},
		{"0xDEAD_BEEF", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"c0\n03\t5f d6", []byte{0xc0, 0x03, 0x5f, 0xd6}},
	}
	for _, tt := range tests {
		got, err := decodeHex(tt.in)
		if err != nil || !bytes.Equal(got, tt.want) {
			t.Errorf("decodeHex(%q) = %x, %v; want %x", tt.in, got, err, tt.want)
		}
	}
	if _, err := decodeHex("abc"); err == nil {
		t.Error("odd-length hex must fail")
	}
}

func TestBuildOutput(t *testing.T) {
	out, err := buildOutput(config.UnitSpec{
		Name:      "main",
		Code:      "7047 00bf",
		FrameSize: 32,
		Lines:     [][]int64{{12, 4}, {0, 3}, {12, 4}},
		Arrange:   true,
		CFI:       "0c",
		Patches: []config.PatchSpec{
			{Offset: 2, Kind: "call-relative", Unit: 1, Index: 9},
			{Offset: 0, Kind: "type", Unit: 3, Index: 4},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Code) != 4 || out.Frame.SizeInBytes != 32 || len(out.Tables.CFI) != 1 {
		t.Errorf("output = %+v", out)
	}
	if out.Tables.Mapping != nil {
		t.Error("unset table must stay absent")
	}
	sm := out.Tables.SourceMap
	if sm.Order() != srcmap.ByKey || sm.Len() != 2 {
		t.Errorf("source map = %v (%s)", sm.Entries(), sm.Order())
	}
	want := []patch.Patch{patch.RelativeCodePatch(2, 1, 9), patch.TypePatch(0, 3, 4)}
	for i, p := range out.Patches {
		if p != want[i] {
			t.Errorf("patch %d = %s, want %s", i, p, want[i])
		}
	}
}

func TestBuildOutputErrors(t *testing.T) {
	tests := []struct {
		name string
		spec config.UnitSpec
		want string
	}{
		{"bad code", config.UnitSpec{Code: "zz"}, "code"},
		{"negative native", config.UnitSpec{Code: "00", Lines: [][]int64{{-1, 1}}}, "native offset"},
		{"line overflow", config.UnitSpec{Code: "00", Lines: [][]int64{{0, 1 << 40}}}, "line"},
		{"bad kind", config.UnitSpec{Code: "00", Patches: []config.PatchSpec{{Kind: "jump"}}}, "patch[0]"},
		{"bad location", config.UnitSpec{Code: "00", Safepoints: []config.SafepointSpec{{
			Registers: []config.LocationSpec{{Kind: "heap"}},
		}}}, "safepoint[0].register[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildOutput(tt.spec)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSafepointsEncodeStackMap(t *testing.T) {
	out, err := buildOutput(config.UnitSpec{
		Code: "c0035fd6",
		Safepoints: []config.SafepointSpec{{
			SourcePC:   3,
			NativePC:   8,
			StackSlots: []int{1, 4},
			Registers:  []config.LocationSpec{{Kind: "stack", Value: 16}, {Kind: "constant", Value: -1}},
			Inlined:    []uint32{7},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ci, err := stackmap.Decode(out.StackMap)
	if err != nil {
		t.Fatal(err)
	}
	sm, ok := ci.StackMapForSourcePC(3)
	if !ok || !sm.StackSlotLive(4) || sm.StackSlotLive(2) {
		t.Fatal("safepoint not encoded")
	}
	regs := ci.RegisterMapOf(sm, 2)
	if regs.StackOffsetInBytes(0) != 16 || regs.Constant(1) != -1 {
		t.Errorf("registers = %d, %d", regs.StackOffsetInBytes(0), regs.Constant(1))
	}
	if info := ci.InlineInfoOf(sm); info.Depth() != 1 || info.MethodIndexAtDepth(0) != 7 {
		t.Error("inline info not encoded")
	}
}

func TestManifestBackend(t *testing.T) {
	m := &config.Manifest{Units: []config.UnitSpec{
		{Name: "a", ISA: "thumb", Code: "00"},
		{Name: "b", Code: "01"},
	}}
	b, jobs, err := newManifestBackend(m)
	if err != nil {
		t.Fatal(err)
	}
	if len(jobs) != 2 || jobs[0].ISA != isa.Thumb2 || jobs[1].ISA != isa.None {
		t.Errorf("jobs = %+v", jobs)
	}
	if _, err := b.Generate(context.Background(), jobs[1]); err != nil {
		t.Error(err)
	}
	jobs[1].Name = "missing"
	if _, err := b.Generate(context.Background(), jobs[1]); err == nil {
		t.Error("expected error for unknown unit")
	}
	if _, _, err := newManifestBackend(&config.Manifest{Units: []config.UnitSpec{{Name: "x", ISA: "z80"}}}); err == nil {
		t.Error("expected error for unknown isa")
	}
}

const e2eManifest = `
[[unit]]
name = "main"
isa = "thumb2"
code = "7047 00bf"
lines = [[0, 3], [2, 4]]
arrange = true

  [[unit.patch]]
  offset = 2
  kind = "call"
  unit = 1
  index = 2

[[unit]]
name = "leaf"
isa = "arm64"
code = "c0035fd6"

  [[unit.safepoint]]
  source_pc = 1
  native_pc = 0
  stack_slots = [0]

[[unit]]
name = "twin"
isa = "thumb2"
code = "7047 00bf"
`

func TestBuildAndInspect(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, config.FileName)
	cacheDir := filepath.Join(dir, "cache")
	if err := os.WriteFile(cfgPath, []byte("[cache]\ndir = \""+filepath.ToSlash(cacheDir)+"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	manifest := filepath.Join(dir, "units.toml")
	if err := os.WriteFile(manifest, []byte(e2eManifest), 0o644); err != nil {
		t.Fatal(err)
	}

	run := func(args ...string) string {
		t.Helper()
		var buf bytes.Buffer
		rootCmd.SetOut(&buf)
		rootCmd.SetErr(&buf)
		rootCmd.SetArgs(append([]string{"--config", cfgPath, "--color", "off"}, args...))
		if err := execute(); err != nil {
			t.Fatalf("unitc %v: %v\n%s", args, err, buf.String())
		}
		return buf.String()
	}

	out := run("build", manifest)
	for _, want := range []string{"main", "leaf", "0x1001", "0x0010", "0x1010", "0x0000*", "3 units, 0 failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("build output missing %q:\n%s", want, out)
		}
	}

	list := run("inspect")
	if strings.Count(list, "\n") != 4 {
		t.Errorf("inspect list:\n%s", list)
	}

	fields := strings.Fields(list[strings.Index(list, "\n")+1:])
	detail := run("inspect", fields[0])
	if !strings.Contains(detail, "isa") {
		t.Errorf("inspect detail:\n%s", detail)
	}

	run("clean")
	if list := run("inspect"); !strings.Contains(list, "no snapshots") {
		t.Errorf("after clean:\n%s", list)
	}
}
