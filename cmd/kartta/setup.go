package main

import (
	"context"
	"fmt"

	"github.com/karttahq/kartta/cache"
	"github.com/karttahq/kartta/config"
	"github.com/karttahq/kartta/engine"
	"github.com/karttahq/kartta/normalize"
	"github.com/karttahq/kartta/providers"
	_ "github.com/karttahq/kartta/providers/aws" // register the aws fetcher
	"github.com/karttahq/kartta/storage"
	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

// pipeline bundles everything one command invocation needs.
type pipeline struct {
	engine    *engine.Engine
	cache     *cache.Store
	snapshots *storage.Store
}

func (p *pipeline) Close() {
	if p.snapshots != nil {
		_ = p.snapshots.Close()
	}
}

// buildPipeline wires fetcher, cache, registry and optional snapshot store
// into an engine per the loaded config.
func buildPipeline(ctx context.Context, cfg *config.Config, logger *telemetry.Logger) (*pipeline, error) {
	fetcher, err := providers.New(ctx, cfg.Provider, providers.Config{Profiles: cfg.Profiles})
	if err != nil {
		return nil, fmt.Errorf("creating %s fetcher: %w", cfg.Provider, err)
	}

	resourceCache := cache.New(cfg.Cache.TTL)
	opts := engine.Options{
		Phase2Concurrency: cfg.Engine.Phase2Concurrency,
		EventBuffer:       cfg.Engine.EventBuffer,
		MaxStale:          cfg.Engine.MaxStale,
	}
	if cfg.Engine.MemoryBudgetMB > 0 {
		opts.MemoryBudgetBytes = uint64(cfg.Engine.MemoryBudgetMB) * 1024 * 1024
	}

	eng := engine.New(fetcher, resourceCache, normalize.Default(), logger, opts)

	p := &pipeline{engine: eng, cache: resourceCache}
	if cfg.Storage.Dir != "" {
		snap, err := storage.NewStore(cfg.Storage.Dir)
		if err != nil {
			return nil, fmt.Errorf("opening snapshot store: %w", err)
		}
		p.snapshots = snap
		p.engine = eng.WithSnapshots(snap)
	}
	return p, nil
}

// resolveScope prefers explicit flags over the config file's defaults.
func resolveScope(cfg *config.Config, accounts, regions, resourceTypes []string) types.QueryScope {
	scope := types.QueryScope{
		Accounts:      cfg.Scope.Accounts,
		Regions:       cfg.Scope.Regions,
		ResourceTypes: cfg.Scope.ResourceTypes,
	}
	if len(accounts) > 0 {
		scope.Accounts = accounts
	}
	if len(regions) > 0 {
		scope.Regions = regions
	}
	if len(resourceTypes) > 0 {
		scope.ResourceTypes = resourceTypes
	}
	return scope
}
