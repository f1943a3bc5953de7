package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"nativeunit/internal/config"
	"nativeunit/internal/prof"
	"nativeunit/internal/version"
)

var rootCmd = &cobra.Command{
	Use:               "unitc",
	Short:             "Build, lay out and inspect compiled native units",
	Long:              `unitc wraps pre-generated machine code into compiled units, lays them out in a text region and keeps snapshots in a local cache`,
	SilenceUsage:      true,
	PersistentPreRunE: prepare,
}

var (
	// loaded by prepare before any subcommand runs
	cfg            config.Config
	cleanupTracing func()
	profiling      *prof.Session
)

func init() {
	rootCmd.AddCommand(isaCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(cleanCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("config", "", "path to nativeunit.toml (default: search upwards from the working directory)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")
	rootCmd.PersistentFlags().String("trace", "", "trace output file (- for stderr, *.ndjson for NDJSON)")
	rootCmd.PersistentFlags().String("trace-level", "", "trace level (off|error|phase|detail|debug)")
	rootCmd.PersistentFlags().String("trace-mode", "", "trace storage mode (stream|ring)")
	rootCmd.PersistentFlags().String("cpuprofile", "", "write a CPU profile to file")
	rootCmd.PersistentFlags().String("memprofile", "", "write a heap profile to file on exit")
	rootCmd.PersistentFlags().String("runtime-trace", "", "write a Go runtime execution trace to file")
}

func main() {
	rootCmd.Version = version.Version
	if err := execute(); err != nil {
		os.Exit(1)
	}
}

// execute runs the command line and then tears down tracing and profiling.
// Cobra skips post-run hooks when a command fails, so teardown lives here.
func execute() error {
	err := rootCmd.Execute()
	return errors.Join(err, finish())
}

func finish() error {
	if cleanupTracing != nil {
		cleanupTracing()
		cleanupTracing = nil
	}
	err := profiling.Stop()
	profiling = nil
	return err
}

func prepare(cmd *cobra.Command, _ []string) error {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return err
	}
	if err := applyColorMode(mode, isTerminal(os.Stdout)); err != nil {
		return err
	}

	path, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return err
	}
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.Discover(".")
	}
	if err != nil {
		return err
	}

	if cleanupTracing, err = setupTracing(cmd, cfg.Trace); err != nil {
		return err
	}

	var opts prof.Options
	for _, f := range []struct {
		name string
		dst  *string
	}{
		{"cpuprofile", &opts.CPU},
		{"memprofile", &opts.Mem},
		{"runtime-trace", &opts.Runtime},
	} {
		if *f.dst, err = cmd.Root().PersistentFlags().GetString(f.name); err != nil {
			return err
		}
	}
	profiling, err = prof.Start(opts)
	return err
}

func applyColorMode(mode string, tty bool) error {
	switch strings.ToLower(mode) {
	case "auto":
		color.NoColor = !tty
	case "on":
		color.NoColor = false
	case "off":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color value %q (expected: auto|on|off)", mode)
	}
	return nil
}

// isTerminal проверяет, является ли файл терминалом
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
