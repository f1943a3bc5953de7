package version

import (
	"strings"

	"github.com/fatih/color"
)

// Build metadata of unitc, overridable via -ldflags "-X nativeunit/internal/version.GitCommit=...".

var (
	majorColor = color.New(color.FgYellow, color.Bold)
	minorColor = color.New(color.FgGreen, color.Bold)
	patchColor = color.New(color.FgBlue, color.Bold)

	// Version is the semantic version of the tool.
	Version = "0.1.0-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// Pretty renders Version with each numeric component colored. Components
// beyond major.minor.patch and any pre-release suffix are left plain.
func Pretty() string {
	core, suffix, _ := strings.Cut(strings.TrimSpace(Version), "-")
	parts := strings.SplitN(core, ".", 3)
	paint := []*color.Color{majorColor, minorColor, patchColor}
	for i := range parts {
		parts[i] = paint[i].Sprint(parts[i])
	}
	out := strings.Join(parts, ".")
	if suffix != "" {
		out += "-" + suffix
	}
	return out
}
