package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func registerInspect(root *cobra.Command) {
	inspectCmd := &cobra.Command{Use: "inspect", Short: "Inspect loader state"}

	inspectCache := &cobra.Command{
		Use:   "cache",
		Short: "Print module/struct/function/script cache sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats := app.l.CacheStats()
			fmt.Printf("modules:   %d\n", stats.Modules)
			fmt.Printf("structs:   %d\n", stats.Structs)
			fmt.Printf("functions: %d\n", stats.Functions)
			fmt.Printf("scripts:   %d\n", stats.Scripts)
			return nil
		},
	}

	inspectCmd.AddCommand(inspectCache)
	root.AddCommand(inspectCmd)
}
