package main

import (
	"encoding/json"
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"nativeunit/internal/isa"
	"nativeunit/internal/unitcache"
	"nativeunit/internal/version"
)

type buildInfo struct {
	Version   string   `json:"version"`
	Schema    uint16   `json:"cache_schema"`
	Targets   []string `json:"targets"`
	GitCommit string   `json:"git_commit,omitempty"`
	BuildDate string   `json:"build_date,omitempty"`
	Go        string   `json:"go,omitempty"`
}

var (
	versionFormat string
	versionFull   bool
)

func init() {
	versionCmd.Flags().StringVar(&versionFormat, "format", "pretty", "output format (pretty|json)")
	versionCmd.Flags().BoolVar(&versionFull, "full", false, "include commit, build date and toolchain")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show unitc build information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		info := collectBuildInfo(versionFull)
		out := cmd.OutOrStdout()
		switch strings.ToLower(versionFormat) {
		case "pretty":
			printBuildInfo(out, info)
			return nil
		case "json":
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}
		return fmt.Errorf("--format: want pretty or json, got %q", versionFormat)
	},
}

func collectBuildInfo(full bool) buildInfo {
	info := buildInfo{
		Version: strings.TrimSpace(version.Version),
		Schema:  unitcache.SchemaVersion,
	}
	for _, set := range isa.All() {
		if isa.Supports(set) {
			info.Targets = append(info.Targets, set.String())
		}
	}
	if full {
		info.GitCommit = orUnknown(version.GitCommit)
		info.BuildDate = orUnknown(version.BuildDate)
		info.Go = runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH
	}
	return info
}

func printBuildInfo(out io.Writer, info buildInfo) {
	fmt.Fprintf(out, "unitc %s\n", version.Pretty())
	fmt.Fprintf(out, "%s %s\n", dimColor.Sprint("targets:"), strings.Join(info.Targets, " "))
	fmt.Fprintf(out, "%s v%d\n", dimColor.Sprint("cache:  "), info.Schema)
	if info.Go != "" {
		fmt.Fprintf(out, "%s %s\n", dimColor.Sprint("commit: "), info.GitCommit)
		fmt.Fprintf(out, "%s %s\n", dimColor.Sprint("built:  "), info.BuildDate)
		fmt.Fprintf(out, "%s %s\n", dimColor.Sprint("go:     "), info.Go)
	}
}

func orUnknown(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "unknown"
	}
	return s
}
