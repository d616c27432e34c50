package aws

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karttahq/kartta/types"
)

func TestToPayloadKeepsSDKFieldNames(t *testing.T) {
	instance := ec2types.Instance{
		InstanceId:   aws.String("i-0abc123"),
		InstanceType: ec2types.InstanceTypeT3Micro,
		State:        &ec2types.InstanceState{Name: ec2types.InstanceStateNameRunning},
		Tags: []ec2types.Tag{
			{Key: aws.String("Name"), Value: aws.String("web-1")},
		},
	}

	payload, err := toPayload(instance)
	require.NoError(t, err)

	assert.Equal(t, "i-0abc123", payload["InstanceId"])
	assert.Equal(t, "t3.micro", payload["InstanceType"])

	state, ok := payload["State"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "running", state["Name"])

	tags, ok := payload["Tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 1)
}

func TestToPayloadsDropsNothing(t *testing.T) {
	volumes := []ec2types.Volume{
		{VolumeId: aws.String("vol-1"), Size: aws.Int32(100)},
		{VolumeId: aws.String("vol-2"), Size: aws.Int32(200)},
	}

	payloads, err := toPayloads(volumes)
	require.NoError(t, err)
	require.Len(t, payloads, 2)

	assert.Equal(t, "vol-1", payloads[0]["VolumeId"])
	// JSON decoding turns all numbers into float64.
	assert.Equal(t, float64(200), payloads[1]["Size"])
}

func TestListRejectsUnknownType(t *testing.T) {
	f := NewFetcher(nil)

	_, err := f.List(context.Background(), "123456789012", "eu-west-1", "quantum-computer")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no lister")
}

func TestDescribeRejectsUnknownType(t *testing.T) {
	f := NewFetcher(nil)

	entry := &types.ResourceEntry{ResourceType: "vpc", ResourceID: "vpc-1"}
	_, err := f.Describe(context.Background(), entry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no describer")
}

func TestFetchTagsUnknownTypeIsEmpty(t *testing.T) {
	f := NewFetcher(nil)

	tags, err := f.FetchTags(context.Background(), "ec2-instance", "i-0abc123", "123456789012", "eu-west-1")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestEveryDescriberHasALister(t *testing.T) {
	for resourceType := range describers {
		_, ok := listers[resourceType]
		assert.True(t, ok, "describer %s has no lister", resourceType)
	}
}

func TestEveryTaggerHasALister(t *testing.T) {
	for resourceType := range taggers {
		_, ok := listers[resourceType]
		assert.True(t, ok, "tagger %s has no lister", resourceType)
	}
}

func TestChunk(t *testing.T) {
	items := []string{"a", "b", "c", "d", "e"}

	batches := chunk(items, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []string{"a", "b"}, batches[0])
	assert.Equal(t, []string{"e"}, batches[2])

	assert.Nil(t, chunk(nil, 10))
	assert.Len(t, chunk(items, 10), 1)
}

func TestAttributeMap(t *testing.T) {
	out := attributeMap(map[string]string{"QueueArn": "arn:aws:sqs:eu-west-1:1:q"})
	assert.Equal(t, "arn:aws:sqs:eu-west-1:1:q", out["QueueArn"])
}
