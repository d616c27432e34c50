package normalize

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

func testInput() Input {
	return Input{
		Account:   "111122223333",
		Region:    "eu-west-1",
		QueriedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func ec2Payload(instanceID string) providers.Payload {
	return providers.Payload{
		"InstanceId":   instanceID,
		"InstanceType": "t3.medium",
		"VpcId":        "vpc-1",
		"SubnetId":     "subnet-1",
		"State":        map[string]any{"Name": "running"},
		"Placement":    map[string]any{"AvailabilityZone": "eu-west-1a"},
		"SecurityGroups": []any{
			map[string]any{"GroupId": "sg-1", "GroupName": "web"},
		},
		"Tags": []any{
			map[string]any{"Key": "Name", "Value": "web-1"},
			map[string]any{"Key": "env", "Value": "prod"},
		},
	}
}

func TestEC2InstanceNormalize(t *testing.T) {
	entry, err := ec2InstanceNormalizer{}.Normalize(context.Background(), ec2Payload("i-abc"), testInput())
	require.NoError(t, err)

	assert.Equal(t, "ec2-instance", entry.ResourceType)
	assert.Equal(t, "i-abc", entry.ResourceID)
	assert.Equal(t, "web-1", entry.DisplayName)
	assert.Equal(t, "running", entry.Status)
	assert.Equal(t, "111122223333", entry.AccountID)
	assert.Equal(t, "eu-west-1", entry.Region)
	assert.Equal(t, "t3.medium", entry.Properties["instance_type"])
	assert.Equal(t, "vpc-1", entry.Properties["vpc_id"])
	assert.Equal(t, []string{"sg-1"}, entry.Properties["security_group_ids"])
	assert.Equal(t, []types.Tag{{Key: "Name", Value: "web-1"}, {Key: "env", Value: "prod"}}, entry.Tags)
	assert.NotNil(t, entry.RawProperties)
	assert.NotEmpty(t, entry.Color)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	in := testInput()
	first, err := ec2InstanceNormalizer{}.Normalize(context.Background(), ec2Payload("i-abc"), in)
	require.NoError(t, err)
	second, err := ec2InstanceNormalizer{}.Normalize(context.Background(), ec2Payload("i-abc"), in)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, first.Color, second.Color)
}

func TestNormalizeMissingIdentifier(t *testing.T) {
	_, err := ec2InstanceNormalizer{}.Normalize(context.Background(), providers.Payload{"InstanceType": "t3.micro"}, testInput())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoIdentifier))
}

func TestGenericNormalizerFallbackChain(t *testing.T) {
	in := testInput()
	in.ResourceType = "mystery-widget"

	entry, err := genericNormalizer{}.Normalize(context.Background(), providers.Payload{"Arn": "arn:aws:x:y"}, in)
	require.NoError(t, err)
	assert.Equal(t, "mystery-widget", entry.ResourceType)
	assert.Equal(t, "arn:aws:x:y", entry.ResourceID)

	_, err = genericNormalizer{}.Normalize(context.Background(), providers.Payload{"Color": "blue"}, in)
	assert.ErrorIs(t, err, ErrNoIdentifier)
}

func TestECSServiceChildIdentity(t *testing.T) {
	raw := providers.Payload{
		"ServiceName":  "api",
		"ClusterArn":   "arn:aws:ecs:eu-west-1:111122223333:cluster/prod",
		"Status":       "ACTIVE",
		"DesiredCount": float64(3),
		"RunningCount": float64(3),
	}

	entry, err := ecsServiceNormalizer{}.Normalize(context.Background(), raw, testInput())
	require.NoError(t, err)

	assert.Equal(t, "prod#api", entry.ResourceID)
	assert.Equal(t, "api", entry.DisplayName)
	assert.True(t, entry.IsChild)
	assert.Equal(t, "prod", entry.ParentResourceID)
	assert.Equal(t, "ecs-cluster", entry.ParentResourceType)
}

func TestSQSQueueRedriveParsing(t *testing.T) {
	raw := providers.Payload{
		"QueueUrl": "https://sqs.eu-west-1.amazonaws.com/111122223333/orders",
		"Attributes": map[string]any{
			"QueueArn":      "arn:aws:sqs:eu-west-1:111122223333:orders",
			"RedrivePolicy": `{"deadLetterTargetArn":"arn:aws:sqs:eu-west-1:111122223333:orders-dlq","maxReceiveCount":5}`,
		},
	}

	entry, err := sqsQueueNormalizer{}.Normalize(context.Background(), raw, testInput())
	require.NoError(t, err)

	assert.Equal(t, "orders", entry.ResourceID)
	assert.Equal(t, "arn:aws:sqs:eu-west-1:111122223333:orders", entry.ARN())
	assert.Equal(t, "arn:aws:sqs:eu-west-1:111122223333:orders-dlq", entry.Properties["redrive_target_arn"])
}

func TestRoute53ZoneStripsPrefix(t *testing.T) {
	raw := providers.Payload{
		"Id":   "/hostedzone/Z123456",
		"Name": "example.com.",
		"Config": map[string]any{
			"PrivateZone": false,
		},
	}

	entry, err := route53ZoneNormalizer{}.Normalize(context.Background(), raw, testInput())
	require.NoError(t, err)
	assert.Equal(t, "Z123456", entry.ResourceID)
	assert.Equal(t, "example.com", entry.DisplayName)
}

func TestNormalizeDetailMergesUnderListing(t *testing.T) {
	detail := providers.Payload{
		"Table": map[string]any{
			"TableArn":    "arn:aws:dynamodb:eu-west-1:111122223333:table/users",
			"TableStatus": "ACTIVE",
			"ItemCount":   float64(42),
		},
	}

	props := dynamodbTableNormalizer{}.NormalizeDetail(detail)
	assert.Equal(t, "ACTIVE", props["table_status"])
	assert.Equal(t, float64(42), props["item_count"])
}

func TestRegistryFallback(t *testing.T) {
	reg := Default()

	assert.Equal(t, "ec2-instance", reg.Lookup("ec2-instance").Type())
	// Unknown types resolve to the generic normalizer, never nil.
	assert.NotNil(t, reg.Lookup("no-such-type"))
	assert.False(t, reg.Enrichable("ec2-instance"))
	assert.True(t, reg.Enrichable("lambda-function"))
	assert.True(t, reg.Enrichable("sqs-queue"))
}

type fakeTagSource struct {
	calls int
	tags  []types.Tag
	err   error
}

func (f *fakeTagSource) FetchTags(_ context.Context, _, _ string) ([]types.Tag, error) {
	f.calls++
	return f.tags, f.err
}

func TestTagSideChannel(t *testing.T) {
	source := &fakeTagSource{tags: []types.Tag{{Key: "team", Value: "data"}}}
	in := testInput()
	in.Tags = source

	entry, err := s3BucketNormalizer{}.Normalize(context.Background(), providers.Payload{"Name": "logs"}, in)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, []types.Tag{{Key: "team", Value: "data"}}, entry.Tags)
}

func TestTagFetchFailureIsNonFatal(t *testing.T) {
	source := &fakeTagSource{err: errors.New("throttled")}
	in := testInput()
	in.Tags = source

	entry, err := s3BucketNormalizer{}.Normalize(context.Background(), providers.Payload{"Name": "logs"}, in)
	require.NoError(t, err)
	assert.Empty(t, entry.Tags)
}
