package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

var (
	headerColor = color.New(color.Bold)
	dimColor    = color.New(color.Faint)
	okColor     = color.New(color.FgGreen)
	failColor   = color.New(color.FgRed, color.Bold)
)

// table renders left-aligned columns. Widths are measured on the plain text,
// colors are applied after padding.
type table struct {
	header []string
	rows   [][]string
	paint  map[int]*color.Color // per-column color for body cells
}

func newTable(header ...string) *table {
	return &table{header: header, paint: make(map[int]*color.Color)}
}

func (t *table) add(cells ...string) { t.rows = append(t.rows, cells) }

func (t *table) widths() []int {
	w := make([]int, len(t.header))
	for i, h := range t.header {
		w[i] = runewidth.StringWidth(h)
	}
	for _, r := range t.rows {
		for i := 0; i < len(r) && i < len(w); i++ {
			w[i] = max(w[i], runewidth.StringWidth(r[i]))
		}
	}
	return w
}

func (t *table) write(out io.Writer) error {
	w := t.widths()
	line := func(cells []string, paint func(col int) *color.Color) error {
		var sb strings.Builder
		for i := range w {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			if i < len(w)-1 {
				cell = runewidth.FillRight(cell, w[i])
			}
			if c := paint(i); c != nil {
				cell = c.Sprint(cell)
			}
			if i > 0 {
				sb.WriteString("  ")
			}
			sb.WriteString(cell)
		}
		_, err := fmt.Fprintln(out, strings.TrimRight(sb.String(), " "))
		return err
	}
	if err := line(t.header, func(int) *color.Color { return headerColor }); err != nil {
		return err
	}
	for _, r := range t.rows {
		if err := line(r, func(col int) *color.Color { return t.paint[col] }); err != nil {
			return err
		}
	}
	return nil
}
