package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"prismvm/loader"
)

func registerLoad(root *cobra.Command) {
	loadCmd := &cobra.Command{Use: "load", Short: "Load a module or script through the loader"}

	loadModule := &cobra.Command{
		Use:   "module <address> <name>",
		Short: "Load a module (and its dependency/friend closure) from --data-dir",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseModuleId(args[0], args[1])
			if err != nil {
				return err
			}
			ds := newFileDataStore(app.dataDir)
			mod, verr := app.l.LoadModule(id, ds)
			if verr != nil {
				return verr
			}
			stats := app.l.CacheStats()
			fmt.Printf("loaded %s\n", mod.Id())
			fmt.Printf("cache: modules=%d structs=%d functions=%d scripts=%d\n",
				stats.Modules, stats.Structs, stats.Functions, stats.Scripts)
			return nil
		},
	}

	loadScript := &cobra.Command{
		Use:   "script <path>",
		Short: "Load and hash-cache a script from a JSON fixture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bytes, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading script file %s: %w", args[0], err)
			}
			ds := newFileDataStore(app.dataDir)
			result, verr := app.l.LoadScript(bytes, nil, ds)
			if verr != nil {
				return verr
			}
			fmt.Printf("loaded script %s: %d parameter(s), %d return value(s)\n",
				loader.HashScript(bytes), len(result.Parameters), len(result.Return))
			return nil
		},
	}

	loadCmd.AddCommand(loadModule)
	loadCmd.AddCommand(loadScript)
	root.AddCommand(loadCmd)
}

func parseModuleId(addrHex, name string) (loader.ModuleId, error) {
	addr, err := loader.ParseAddress(addrHex)
	if err != nil {
		return loader.ModuleId{}, fmt.Errorf("parsing address %q: %w", addrHex, err)
	}
	return loader.ModuleId{Address: addr, Name: loader.Identifier(name)}, nil
}
