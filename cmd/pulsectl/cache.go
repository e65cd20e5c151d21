package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show response cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCache()
		defer c.Close()
		stats := c.Stats(context.Background())
		fmt.Printf("entries: %d\ntotal size: %d bytes\nmemory fallback: %v\n", stats.Entries, stats.TotalSize, c.IsMemoryFallback())
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear [prefix]",
	Short: "Clear cached responses, optionally by hash prefix",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := openCache()
		defer c.Close()
		prefix := ""
		if len(args) == 1 {
			prefix = args[0]
		}
		c.Clear(context.Background(), prefix)
		fmt.Println("cache cleared")
		return nil
	},
}
