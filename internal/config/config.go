package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nativeunit/internal/isa"
	"nativeunit/internal/trace"
)

// FileName is the configuration file looked up by Find.
const FileName = "nativeunit.toml"

// Config is the decoded nativeunit.toml.
type Config struct {
	Session Session `toml:"session"`
	Trace   Trace   `toml:"trace"`
	Cache   Cache   `toml:"cache"`
}

// Session configures the compilation session and its pool.
type Session struct {
	Jobs       int    `toml:"jobs"`        // worker limit, 0 = GOMAXPROCS
	Dedupe     bool   `toml:"dedupe"`      // share identical buffers
	PoolLimit  int64  `toml:"pool_limit"`  // byte budget, 0 = unlimited
	DefaultISA string `toml:"default_isa"` // used when a unit names none
}

// Trace configures the session tracer.
type Trace struct {
	Level    string `toml:"level"`
	Mode     string `toml:"mode"`
	Format   string `toml:"format"`
	Output   string `toml:"output"`
	RingSize int    `toml:"ring_size"`
}

// Cache configures the unit snapshot cache.
type Cache struct {
	Dir string `toml:"dir"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Session: Session{Dedupe: true, DefaultISA: isa.Arm64.String()},
		Trace:   Trace{Level: "off", Mode: "stream", Format: "text", Output: "-"},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if meta.IsDefined("session", "default_isa") && strings.TrimSpace(cfg.Session.DefaultISA) == "" {
		return Config{}, fmt.Errorf("%s: [session].default_isa must not be empty", path)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges and enumerations.
func (c Config) Validate() error {
	if c.Session.Jobs < 0 {
		return fmt.Errorf("[session].jobs must be >= 0, got %d", c.Session.Jobs)
	}
	if c.Session.PoolLimit < 0 {
		return fmt.Errorf("[session].pool_limit must be >= 0, got %d", c.Session.PoolLimit)
	}
	if _, err := c.Session.ISA(); err != nil {
		return fmt.Errorf("[session].default_isa: %w", err)
	}
	if _, err := c.Trace.Config(); err != nil {
		return fmt.Errorf("[trace]: %w", err)
	}
	return nil
}

// ISA parses DefaultISA.
func (s Session) ISA() (isa.InstructionSet, error) {
	return isa.Parse(s.DefaultISA)
}

// Config converts the section into a trace.Config.
func (t Trace) Config() (trace.Config, error) {
	level, err := trace.ParseLevel(t.Level)
	if err != nil {
		return trace.Config{}, err
	}
	mode, err := trace.ParseMode(t.Mode)
	if err != nil {
		return trace.Config{}, err
	}
	format, err := trace.ParseFormat(t.Format)
	if err != nil {
		return trace.Config{}, err
	}
	return trace.Config{
		Level:      level,
		Mode:       mode,
		Format:     format,
		OutputPath: t.Output,
		RingSize:   t.RingSize,
	}, nil
}

// Find walks up from startDir looking for FileName.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Discover loads the configuration found from startDir, or the defaults.
func Discover(startDir string) (Config, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Default(), nil
	}
	return Load(path)
}
