package aws

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/karttahq/kartta/globalsvc"
	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

type describeFunc func(context.Context, *clientSet, *types.ResourceEntry) (providers.Payload, error)

var describers = map[string]describeFunc{
	"cloudtrail-trail": describeCloudTrail,
	"dynamodb-table":   describeDynamoDBTable,
	"ecs-service":      describeECSService,
	"eks-cluster":      describeEKSCluster,
	"kms-key":          describeKMSKey,
	"lambda-function":  describeLambdaFunction,
	"s3-bucket":        describeS3Bucket,
	"sqs-queue":        describeSQSQueue,
}

// Describe returns the deep-describe payload for one listed entry.
func (f *Fetcher) Describe(ctx context.Context, entry *types.ResourceEntry) (providers.Payload, error) {
	describer, ok := describers[entry.ResourceType]
	if !ok {
		return nil, fmt.Errorf("no describer for resource type %q", entry.ResourceType)
	}

	region := entry.Region
	if region == types.GlobalRegion {
		region = globalsvc.QueryRegion()
	}
	cs, err := f.clientsFor(ctx, entry.AccountID, region)
	if err != nil {
		return nil, err
	}
	return describer(ctx, cs, entry)
}

func describeCloudTrail(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	resp, err := cs.cloudtrail.GetTrailStatus(ctx, &cloudtrail.GetTrailStatusInput{Name: aws.String(entry.ResourceID)})
	if err != nil {
		return nil, err
	}
	return toPayload(resp)
}

func describeDynamoDBTable(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	resp, err := cs.dynamodb.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(entry.ResourceID)})
	if err != nil {
		return nil, err
	}
	return toPayload(resp)
}

func describeECSService(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	cluster := entry.ParentResourceID
	service := entry.ResourceID
	if idx := strings.LastIndex(service, "#"); idx >= 0 {
		service = service[idx+1:]
	}

	input := &ecs.DescribeServicesInput{Services: []string{service}}
	if cluster != "" {
		input.Cluster = aws.String(cluster)
	}
	resp, err := cs.ecs.DescribeServices(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(resp.Services) == 0 {
		return nil, fmt.Errorf("service %s not found in cluster %s", service, cluster)
	}
	return toPayload(resp.Services[0])
}

func describeEKSCluster(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	resp, err := cs.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(entry.ResourceID)})
	if err != nil {
		return nil, err
	}
	return toPayload(resp)
}

func describeKMSKey(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	resp, err := cs.kms.DescribeKey(ctx, &kms.DescribeKeyInput{KeyId: aws.String(entry.ResourceID)})
	if err != nil {
		return nil, err
	}
	return toPayload(resp)
}

func describeLambdaFunction(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	resp, err := cs.lambda.GetFunction(ctx, &lambda.GetFunctionInput{FunctionName: aws.String(entry.ResourceID)})
	if err != nil {
		return nil, err
	}
	return toPayload(resp)
}

// describeS3Bucket composes location, versioning, encryption and public
// access block into one payload. Encryption and public access block return
// errors when never configured, which reads as "not set" here.
func describeS3Bucket(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	bucket := aws.String(entry.ResourceID)
	payload := providers.Payload{}

	location, err := cs.s3.GetBucketLocation(ctx, &s3.GetBucketLocationInput{Bucket: bucket})
	if err != nil {
		return nil, err
	}
	// An empty LocationConstraint means us-east-1.
	if loc := string(location.LocationConstraint); loc != "" {
		payload["Location"] = loc
	} else {
		payload["Location"] = "us-east-1"
	}

	if versioning, err := cs.s3.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: bucket}); err == nil {
		payload["Versioning"] = string(versioning.Status)
	}

	if enc, err := cs.s3.GetBucketEncryption(ctx, &s3.GetBucketEncryptionInput{Bucket: bucket}); err == nil {
		if cfg := enc.ServerSideEncryptionConfiguration; cfg != nil && len(cfg.Rules) > 0 {
			if def := cfg.Rules[0].ApplyServerSideEncryptionByDefault; def != nil {
				payload["Encryption"] = string(def.SSEAlgorithm)
			}
		}
	}

	if pab, err := cs.s3.GetPublicAccessBlock(ctx, &s3.GetPublicAccessBlockInput{Bucket: bucket}); err == nil {
		if cfg := pab.PublicAccessBlockConfiguration; cfg != nil {
			payload["PublicAccessBlocked"] = aws.ToBool(cfg.BlockPublicAcls) &&
				aws.ToBool(cfg.BlockPublicPolicy) &&
				aws.ToBool(cfg.IgnorePublicAcls) &&
				aws.ToBool(cfg.RestrictPublicBuckets)
		}
	}

	return payload, nil
}

func describeSQSQueue(ctx context.Context, cs *clientSet, entry *types.ResourceEntry) (providers.Payload, error) {
	queueURL := entry.PropertyString("queue_url")
	if queueURL == "" {
		return nil, fmt.Errorf("queue %s has no queue_url property", entry.ResourceID)
	}
	resp, err := cs.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(queueURL),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameAll},
	})
	if err != nil {
		return nil, err
	}
	return providers.Payload{"Attributes": attributeMap(resp.Attributes)}, nil
}
