package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"nativeunit/internal/isa"
)

var isaCmd = &cobra.Command{
	Use:   "isa",
	Short: "Print the per-instruction-set code policy",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		def, err := cfg.Session.ISA()
		if err != nil {
			return err
		}
		return isaTable(def).write(cmd.OutOrStdout())
	},
}

func isaTable(def isa.InstructionSet) *table {
	tb := newTable("isa", "alignment", "pointer tag", "code delta", "")
	tb.paint[4] = dimColor
	for _, set := range isa.All() {
		p := isa.Default.Lookup(set)
		mark := ""
		if set == def {
			mark = "default"
		}
		tb.add(set.String(),
			strconv.FormatUint(uint64(p.Alignment), 10),
			fmt.Sprintf("%#x", p.PointerTag),
			strconv.FormatUint(uint64(p.CodeDelta), 10),
			mark)
	}
	return tb
}
