package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/karttahq/kartta/storage"
)

var cacheRevisionsKey string

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect recorded result sets",
	Long: `Cache lists the query result sets recorded in the snapshot
store: one record per cache key with its revision span and entry count.

Requires storage.dir in the config. Use --revisions to list the stored
revisions of one cache key.`,
	Example: `  kartta cache --config kartta.yaml
  kartta cache -c kartta.yaml --revisions 123456789012:eu-west-1:ec2-instance`,
	RunE: runCache,
}

func init() {
	rootCmd.AddCommand(cacheCmd)

	cacheCmd.Flags().StringVar(&cacheRevisionsKey, "revisions", "", "List stored revisions of one cache key")
}

func runCache(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Storage.Dir == "" {
		return fmt.Errorf("cache inspection needs storage.dir in the config")
	}

	store, err := storage.NewStore(cfg.Storage.Dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if cacheRevisionsKey != "" {
		revisions, err := store.Revisions(cacheRevisionsKey)
		if err != nil {
			return err
		}
		return enc.Encode(map[string]any{
			"cache_key": cacheRevisionsKey,
			"revisions": revisions,
		})
	}

	return enc.Encode(map[string]any{
		"current_revision": store.CurrentRevision(),
		"records":          store.Records(),
	})
}
