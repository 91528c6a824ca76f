package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"prismvm/loader"
)

// env holds the Loader and its oracle wiring, built once in
// PersistentPreRunE and shared by every subcommand -- mirrors the
// teacher's ensureMaster/masterCmd pattern (cmd/cli/master_node.go).
type env struct {
	l       *loader.Loader
	dataDir string
}

var (
	dataDir    string
	configPath string
	app        *env
)

func ensureEnv(cmd *cobra.Command, args []string) error {
	if app != nil {
		return nil
	}
	cfg := loader.DefaultConfig()
	if configPath != "" {
		loaded, err := loader.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading config %s: %w", configPath, err)
		}
		cfg = loaded
	}
	l := loader.New(cfg, acceptAllVerifier{}, jsonCodec{}, noNativesRegistry{}, nil, nil)
	app = &env{l: l, dataDir: dataDir}
	return nil
}

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:               "prismvmctl",
		Short:             "Inspect and exercise the prismvm module/script loader",
		PersistentPreRunE: ensureEnv,
	}
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "./data", "directory of module/script JSON fixtures")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a loader config YAML file")

	registerLoad(root)
	registerInspect(root)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
