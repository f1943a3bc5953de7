package prof

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSessionWritesFiles(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		CPU:     filepath.Join(dir, "cpu.pprof"),
		Mem:     filepath.Join(dir, "mem.pprof"),
		Runtime: filepath.Join(dir, "rt.trace"),
	}
	s, err := Start(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	for _, p := range []string{opts.CPU, opts.Mem, opts.Runtime} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Errorf("%s: %v", filepath.Base(p), err)
		}
	}
	if err := s.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestStartFailsCleanly(t *testing.T) {
	dir := t.TempDir()
	_, err := Start(Options{CPU: filepath.Join(dir, "cpu.pprof"), Runtime: filepath.Join(dir, "missing", "rt.trace")})
	if err == nil {
		t.Fatal("expected error for unwritable trace path")
	}
	// the CPU profile must have been stopped, so a new one can start
	s, err := Start(Options{CPU: filepath.Join(dir, "again.pprof")})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	var nilSession *Session
	if err := nilSession.Stop(); err != nil {
		t.Error(err)
	}
}
