package main

import (
	"context"
	"errors"
	"net/http"
	"syscall"
	"time"

	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/karttahq/kartta/config"
	"github.com/karttahq/kartta/policy"
	"github.com/karttahq/kartta/telemetry"
)

var (
	watchInterval    time.Duration
	watchMetricsAddr string
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously discover resources and export metrics",
	Long: `Watch runs the discovery query on an interval, records every
result set into the revisioned snapshot store, evaluates advisory
policies over the inventory and serves Prometheus metrics.

Configure storage.dir to keep history across restarts; keep_revisions
bounds how much of it survives compaction.`,
	Example: `  kartta watch --config kartta.yaml
  kartta watch -c kartta.yaml --interval 5m
  kartta watch -c kartta.yaml --metrics :2112`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchInterval, "interval", 15*time.Minute, "Discovery interval")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics", ":2112", "Metrics server address")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer initTelemetry(ctx, cfg)()

	logger := telemetry.NewLogger("kartta-watch")
	p, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	policies, err := loadPolicies(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.Telemetry.MetricsAddr != "" {
		watchMetricsAddr = cfg.Telemetry.MetricsAddr
	}

	var g run.Group

	g.Add(run.SignalHandler(ctx, syscall.SIGINT, syscall.SIGTERM))

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(telemetry.PrometheusRegistry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: watchMetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	g.Add(func() error {
		logger.Info().Str("addr", watchMetricsAddr).Msg("starting metrics server")
		return srv.ListenAndServe()
	}, func(error) {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		_ = srv.Shutdown(shutCtx)
	})

	g.Add(func() error {
		return watchLoop(ctx, cfg, p, policies, logger)
	}, func(error) {
		cancel()
	})

	err = g.Run()
	var sigErr run.SignalError
	if errors.As(err, &sigErr) {
		logger.Info().Str("signal", sigErr.Signal.String()).Msg("shutting down")
		return nil
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// watchLoop runs one discovery pass immediately and then on every tick.
func watchLoop(ctx context.Context, cfg *config.Config, p *pipeline, policies *policy.Engine, logger *telemetry.Logger) error {
	discover(ctx, cfg, p, policies, logger)

	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			discover(ctx, cfg, p, policies, logger)
		}
	}
}

func discover(ctx context.Context, cfg *config.Config, p *pipeline, policies *policy.Engine, logger *telemetry.Logger) {
	scope := resolveScope(cfg, nil, nil, nil)

	result, err := p.engine.Collect(ctx, scope, 0)
	if err != nil {
		logger.Error().Err(err).Msg("discovery pass failed")
		return
	}

	logger.Info().
		Int("resources", result.Count).
		Int("warnings", len(result.Warnings)).
		Int("errors", len(result.Errors)).
		Msg("discovery pass complete")

	if policies != nil {
		findings, err := policies.Evaluate(ctx, result.Entries)
		if err != nil {
			logger.Error().Err(err).Msg("policy evaluation failed")
		} else if len(findings) > 0 {
			logger.Info().Int("findings", len(findings)).Msg("policy findings")
		}
	}

	stats := p.cache.MemoryStats()
	telemetry.CacheEntries.Record(ctx, int64(stats.Entries))
	if evicted := p.cache.RunPendingMaintenance(); evicted > 0 {
		logger.Debug().Int("evicted", evicted).Msg("cache maintenance")
	}

	if p.snapshots != nil && cfg.Storage.KeepRevisions > 0 {
		if err := p.snapshots.Compact(cfg.Storage.KeepRevisions); err != nil {
			logger.Error().Err(err).Msg("snapshot compaction failed")
		}
	}
}

// loadPolicies returns nil when no policies are configured.
func loadPolicies(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*policy.Engine, error) {
	eng := policy.NewEngine(logger)
	if err := eng.LoadBuiltins(ctx); err != nil {
		return nil, err
	}
	if cfg.Policy.Dir != "" {
		if err := eng.LoadDir(ctx, cfg.Policy.Dir); err != nil {
			return nil, err
		}
	}
	return eng, nil
}
