package engine

import (
	"github.com/karttahq/kartta/globalsvc"
	"github.com/karttahq/kartta/types"
)

// QueryKey is one (account, region, type) listing unit. For global types
// Region is the fixed API region while the cache key carries the Global
// label, so N scoped regions collapse into one key per account.
type QueryKey struct {
	Account      string
	Region       string
	ResourceType string
	Global       bool
}

// RegionLabel returns the region stamped on entries and cache keys.
func (k QueryKey) RegionLabel() string {
	if k.Global {
		return types.GlobalRegion
	}
	return k.Region
}

// CacheKey returns the shared-cache key for this query unit.
func (k QueryKey) CacheKey() string {
	return types.CacheKey(k.Account, k.RegionLabel(), k.ResourceType)
}

// BuildQueryKeys expands a scope into deduplicated query keys, collapsing
// global types to a single key per account regardless of region count.
func BuildQueryKeys(scope types.QueryScope) []QueryKey {
	seen := make(map[string]bool)
	var keys []QueryKey

	add := func(k QueryKey) {
		ck := k.CacheKey()
		if seen[ck] {
			return
		}
		seen[ck] = true
		keys = append(keys, k)
	}

	for _, account := range scope.Accounts {
		for _, resourceType := range scope.ResourceTypes {
			if globalsvc.IsGlobal(resourceType) {
				add(QueryKey{
					Account:      account,
					Region:       globalsvc.QueryRegion(),
					ResourceType: resourceType,
					Global:       true,
				})
				continue
			}
			for _, region := range scope.Regions {
				add(QueryKey{
					Account:      account,
					Region:       region,
					ResourceType: resourceType,
				})
			}
		}
	}

	return keys
}
