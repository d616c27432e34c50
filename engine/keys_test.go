package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karttahq/kartta/types"
)

func TestBuildQueryKeys_GlobalCollapse(t *testing.T) {
	scope := types.QueryScope{
		Accounts:      []string{"123456789012"},
		Regions:       []string{"us-east-1", "eu-west-1"},
		ResourceTypes: []string{"iam-role"},
	}

	keys := BuildQueryKeys(scope)
	require.Len(t, keys, 1)
	assert.Equal(t, "123456789012:Global:iam-role", keys[0].CacheKey())
	assert.Equal(t, "us-east-1", keys[0].Region)
	assert.True(t, keys[0].Global)
}

func TestBuildQueryKeys_RegionalCrossProduct(t *testing.T) {
	scope := types.QueryScope{
		Accounts:      []string{"111111111111", "222222222222"},
		Regions:       []string{"us-east-1", "eu-west-1"},
		ResourceTypes: []string{"ec2-instance"},
	}

	keys := BuildQueryKeys(scope)
	require.Len(t, keys, 4)

	seen := make(map[string]bool)
	for _, k := range keys {
		seen[k.CacheKey()] = true
	}
	assert.True(t, seen["111111111111:us-east-1:ec2-instance"])
	assert.True(t, seen["111111111111:eu-west-1:ec2-instance"])
	assert.True(t, seen["222222222222:us-east-1:ec2-instance"])
	assert.True(t, seen["222222222222:eu-west-1:ec2-instance"])
}

func TestBuildQueryKeys_DuplicateScopeEntries(t *testing.T) {
	scope := types.QueryScope{
		Accounts:      []string{"123456789012", "123456789012"},
		Regions:       []string{"us-east-1", "us-east-1"},
		ResourceTypes: []string{"vpc", "vpc"},
	}

	keys := BuildQueryKeys(scope)
	assert.Len(t, keys, 1)
}

func TestBuildQueryKeys_MixedGlobalAndRegional(t *testing.T) {
	scope := types.QueryScope{
		Accounts:      []string{"123456789012"},
		Regions:       []string{"us-east-1", "eu-west-1", "ap-southeast-2"},
		ResourceTypes: []string{"s3-bucket", "ec2-instance"},
	}

	keys := BuildQueryKeys(scope)
	// One collapsed global key plus one regional key per region.
	require.Len(t, keys, 4)

	globals := 0
	for _, k := range keys {
		if k.Global {
			globals++
			assert.Equal(t, "Global", k.RegionLabel())
		}
	}
	assert.Equal(t, 1, globals)
}
