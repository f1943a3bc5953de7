package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
)

func TestTableAlignsWideRunes(t *testing.T) {
	orig := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = orig })

	tb := newTable("name", "size")
	tb.add("main", "4")
	tb.add("日本", "128")
	var buf bytes.Buffer
	if err := tb.write(&buf); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	want := []string{
		"name  size",
		"main  4",
		"日本  128",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("table =\n%s\nwant\n%s", buf.String(), strings.Join(want, "\n"))
	}
}

func TestApplyColorMode(t *testing.T) {
	orig := color.NoColor
	t.Cleanup(func() { color.NoColor = orig })

	if err := applyColorMode("auto", false); err != nil || !color.NoColor {
		t.Error("auto without a terminal must disable color")
	}
	if err := applyColorMode("on", false); err != nil || color.NoColor {
		t.Error("on must force color")
	}
	if err := applyColorMode("rainbow", true); err == nil {
		t.Error("expected error for unknown mode")
	}
}
