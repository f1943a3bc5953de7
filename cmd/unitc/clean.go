package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"nativeunit/internal/unitcache"
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Drop every cached unit snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cache, err := unitcache.Open(cfg.Cache.Dir, "nativeunit")
		if err != nil {
			return fmt.Errorf("failed to open unit cache: %w", err)
		}
		if err := cache.DropAll(); err != nil {
			return fmt.Errorf("failed to drop %q: %w", cache.Dir(), err)
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", cache.Dir())
		return nil
	},
}
