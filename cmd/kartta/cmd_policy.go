package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karttahq/kartta/telemetry"
)

var (
	policyAccounts []string
	policyRegions  []string
	policyTypes    []string
)

// policyCmd represents the policy command
var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Evaluate advisory policies over a fresh inventory",
	Long: `Policy runs one discovery query, evaluates the builtin rego
policies plus any configured policy directory over the inventory and
prints the findings as JSON.

Findings are advisory. Kartta never acts on them.`,
	Example: `  kartta policy --config kartta.yaml
  kartta policy -c kartta.yaml --types s3-bucket,ebs-volume`,
	RunE: runPolicy,
}

func init() {
	rootCmd.AddCommand(policyCmd)

	policyCmd.Flags().StringSliceVar(&policyAccounts, "accounts", nil, "Account IDs to query (overrides config)")
	policyCmd.Flags().StringSliceVar(&policyRegions, "regions", nil, "Regions to query (overrides config)")
	policyCmd.Flags().StringSliceVar(&policyTypes, "types", nil, "Resource types to query (overrides config)")
}

func runPolicy(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(ctx, cfg)()

	logger := telemetry.NewLogger("kartta-policy")
	policies, err := loadPolicies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	scope := resolveScope(cfg, policyAccounts, policyRegions, policyTypes)
	result, err := p.engine.Collect(ctx, scope, 0)
	if err != nil {
		return err
	}

	findings, err := policies.Evaluate(ctx, result.Entries)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]any{
		"resources": result.Count,
		"policies":  policies.Policies(),
		"findings":  findings,
	})
}
