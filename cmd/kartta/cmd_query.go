package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/karttahq/kartta/telemetry"
)

var (
	queryAccounts   []string
	queryRegions    []string
	queryTypes      []string
	queryDetailWait time.Duration
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Run one discovery query and print the inventory as JSON",
	Long: `Query lists every resource in scope, normalizes the results,
links related resources, enriches the types that support deep describe
and prints the merged inventory as JSON.

Scope comes from the config file and can be overridden per flag. A
detail wait bounds how long the query blocks on enrichment; when it
expires the listing data is returned as a partial result.`,
	Example: `  kartta query --config kartta.yaml
  kartta query -c kartta.yaml --regions eu-west-1,eu-north-1
  kartta query -c kartta.yaml --types ec2-instance,rds-instance
  kartta query -c kartta.yaml --detail-wait 60s`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().StringSliceVar(&queryAccounts, "accounts", nil, "Account IDs to query (overrides config)")
	queryCmd.Flags().StringSliceVar(&queryRegions, "regions", nil, "Regions to query (overrides config)")
	queryCmd.Flags().StringSliceVar(&queryTypes, "types", nil, "Resource types to query (overrides config)")
	queryCmd.Flags().DurationVar(&queryDetailWait, "detail-wait", 0, "Max time to wait for enrichment, 0 waits for completion")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(ctx, cfg)()

	logger := telemetry.NewLogger("kartta")
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	scope := resolveScope(cfg, queryAccounts, queryRegions, queryTypes)
	result, err := p.engine.Collect(ctx, scope, queryDetailWait)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
