package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karttahq/kartta/config"
)

var (
	version = "0.1.0"
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "kartta",
		Short: "Cloud Infrastructure Map",
		Long: `Kartta - Cloud Infrastructure Map

Kartta discovers what actually runs in your cloud accounts. It lists
resources across accounts and regions in parallel, normalizes them into
one shape, links related resources into a graph, and enriches the
interesting ones with deep-describe data.

Query once for a JSON inventory, or watch continuously with revisioned
history and Prometheus metrics.`,
		Version: version,
	}
)

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// init sets up the root command
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (YAML)")
	rootCmd.SetVersionTemplate(`Kartta {{.Version}} - Cloud Infrastructure Map
`)
}

// loadConfig reads the configured file, or returns a minimal default when
// no file was given. Scope then has to come from flags.
func loadConfig() (*config.Config, error) {
	if cfgFile != "" {
		return config.LoadConfig(cfgFile)
	}
	return &config.Config{Version: "1", Provider: "aws"}, nil
}
