// Package providers defines the raw fetch contract the query engine runs
// against. A Fetcher knows how to list, describe and fetch tags for
// resources of one cloud; everything downstream works on neutral payloads.
package providers

import (
	"context"
	"fmt"

	"github.com/karttahq/kartta/types"
)

// Payload is one raw item as returned by a provider list or describe call,
// decoded to a neutral form. Normalizers own the interpretation.
type Payload = map[string]any

// Fetcher is the raw fetch shim. Each call may fail independently without
// affecting sibling calls; the engine decides what a failure means.
type Fetcher interface {
	// List returns the raw payloads for every resource of the given type
	// in one account/region, in provider return order.
	List(ctx context.Context, account, region, resourceType string) ([]Payload, error)

	// Describe returns the deep-describe payload for one listed entry.
	Describe(ctx context.Context, entry *types.ResourceEntry) (Payload, error)

	// FetchTags returns the ordered tag set of one resource.
	FetchTags(ctx context.Context, resourceType, resourceID, account, region string) ([]types.Tag, error)
}

// Factory creates a Fetcher instance.
type Factory func(ctx context.Context, cfg Config) (Fetcher, error)

// Config holds provider construction settings. Accounts are referenced by
// identifier only; credential resolution is the provider's business.
type Config struct {
	Profiles map[string]string // account ID -> shared config profile
}

var factories = make(map[string]Factory)

// Register registers a fetcher factory under a provider name.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// New creates a fetcher by provider name.
func New(ctx context.Context, name string, cfg Config) (Fetcher, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("provider %s not registered", name)
	}
	return factory(ctx, cfg)
}

// Names returns the registered provider names.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}
