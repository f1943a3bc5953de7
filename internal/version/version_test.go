package version

import (
	"testing"

	"github.com/fatih/color"
)

func TestPretty(t *testing.T) {
	orig, origNoColor := Version, color.NoColor
	t.Cleanup(func() { Version, color.NoColor = orig, origNoColor })
	color.NoColor = true

	tests := map[string]string{
		"0.1.0-dev":  "0.1.0-dev",
		"1.2.3":      "1.2.3",
		" 2.0.0-rc ": "2.0.0-rc",
		"dev":        "dev",
	}
	for in, want := range tests {
		Version = in
		if got := Pretty(); got != want {
			t.Errorf("Pretty() with %q = %q, want %q", in, got, want)
		}
	}
}
