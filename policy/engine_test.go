package policy

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karttahq/kartta/telemetry"
	"github.com/karttahq/kartta/types"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	return NewEngine(&telemetry.Logger{Logger: zerolog.New(io.Discard)})
}

func entry(resourceType, id string, tags ...types.Tag) types.ResourceEntry {
	return types.ResourceEntry{
		ResourceType: resourceType,
		AccountID:    "123456789012",
		Region:       "us-east-1",
		ResourceID:   id,
		Tags:         tags,
	}
}

func TestLoadPolicy_InvalidRego(t *testing.T) {
	e := testEngine(t)
	err := e.LoadPolicy(context.Background(), "broken.rego", "package kartta\n\nfindings contains {")
	assert.Error(t, err)
}

func TestEvaluate_NoPoliciesLoaded(t *testing.T) {
	e := testEngine(t)
	findings, err := e.Evaluate(context.Background(), []types.ResourceEntry{entry("vpc", "vpc-1")})
	require.NoError(t, err)
	assert.Empty(t, findings)
}

func TestEvaluate_OwnershipPolicy(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.LoadBuiltins(context.Background()))

	entries := []types.ResourceEntry{
		entry("ec2-instance", "i-owned", types.Tag{Key: "team", Value: "platform"}),
		entry("ec2-instance", "i-orphan", types.Tag{Key: "Name", Value: "mystery"}),
		entry("ec2-instance", "i-bare"),
	}

	findings, err := e.Evaluate(context.Background(), entries)
	require.NoError(t, err)

	byResource := make(map[string][]Finding)
	for _, f := range findings {
		byResource[f.ResourceID] = append(byResource[f.ResourceID], f)
	}

	assert.Empty(t, byResource["i-owned"])

	require.Len(t, byResource["i-orphan"], 1)
	assert.Equal(t, "warning", byResource["i-orphan"][0].Severity)
	assert.Contains(t, byResource["i-orphan"][0].Message, "owner or team")

	require.Len(t, byResource["i-bare"], 1)
	assert.Equal(t, "info", byResource["i-bare"][0].Severity)
	assert.Equal(t, "untagged.rego", byResource["i-bare"][0].Policy)
}

func TestEvaluate_UnattachedVolume(t *testing.T) {
	e := testEngine(t)
	require.NoError(t, e.LoadBuiltins(context.Background()))

	attached := entry("ebs-volume", "vol-used", types.Tag{Key: "team", Value: "data"})
	attached.Status = "in-use"
	orphan := entry("ebs-volume", "vol-idle", types.Tag{Key: "team", Value: "data"})
	orphan.Status = "available"

	findings, err := e.Evaluate(context.Background(), []types.ResourceEntry{attached, orphan})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "vol-idle", findings[0].ResourceID)
	assert.Equal(t, "unattached_volume.rego", findings[0].Policy)
	assert.Equal(t, "123456789012:us-east-1:ebs-volume", findings[0].CacheKey)
}

func TestEvaluate_CustomPolicyWithMetadata(t *testing.T) {
	e := testEngine(t)
	code := `package kartta

findings contains f if {
	input.entry.resource_type == "s3-bucket"
	f := {
		"severity": "critical",
		"message": "bucket flagged",
		"rule": "custom-123",
	}
}
`
	require.NoError(t, e.LoadPolicy(context.Background(), "custom.rego", code))

	findings, err := e.Evaluate(context.Background(), []types.ResourceEntry{entry("s3-bucket", "logs")})
	require.NoError(t, err)

	require.Len(t, findings, 1)
	assert.Equal(t, "critical", findings[0].Severity)
	assert.Equal(t, "custom-123", findings[0].Metadata["rule"])
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	code := `package kartta

findings contains f if {
	input.entry.resource_type == "vpc"
	f := {"severity": "info", "message": "vpc seen"}
}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vpc.rego"), []byte(code), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0600))

	e := testEngine(t)
	require.NoError(t, e.LoadDir(context.Background(), dir))
	assert.Equal(t, []string{"vpc.rego"}, e.Policies())

	findings, err := e.Evaluate(context.Background(), []types.ResourceEntry{entry("vpc", "vpc-1")})
	require.NoError(t, err)
	assert.Len(t, findings, 1)
}
