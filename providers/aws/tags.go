package aws

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	route53types "github.com/aws/aws-sdk-go-v2/service/route53/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/smithy-go"

	"github.com/karttahq/kartta/types"
)

type tagFunc func(context.Context, *clientSet, string) ([]types.Tag, error)

// taggers covers the types whose listing payload carries no tags. The id
// each one receives is whatever the matching normalizer passes through the
// side channel: names for IAM roles, S3 buckets and DynamoDB tables, the
// bare zone ID for Route53, queue URLs for SQS, ARNs for the rest.
var taggers = map[string]tagFunc{
	"dynamodb-table":      fetchDynamoDBTags,
	"iam-role":            fetchIAMRoleTags,
	"lambda-function":     fetchLambdaTags,
	"load-balancer":       fetchELBTags,
	"route53-hosted-zone": fetchRoute53Tags,
	"s3-bucket":           fetchS3Tags,
	"sqs-queue":           fetchSQSTags,
}

// FetchTags returns the ordered tag set of one resource. Types without a
// registered tagger return empty without error.
func (f *Fetcher) FetchTags(ctx context.Context, resourceType, resourceID, account, region string) ([]types.Tag, error) {
	tagger, ok := taggers[resourceType]
	if !ok {
		return nil, nil
	}
	cs, err := f.clientsFor(ctx, account, region)
	if err != nil {
		return nil, err
	}
	return tagger(ctx, cs, resourceID)
}

func fetchDynamoDBTags(ctx context.Context, cs *clientSet, tableName string) ([]types.Tag, error) {
	arn := fmt.Sprintf("arn:aws:dynamodb:%s:%s:table/%s", cs.region, cs.account, tableName)
	resp, err := cs.dynamodb.ListTagsOfResource(ctx, &dynamodb.ListTagsOfResourceInput{ResourceArn: aws.String(arn)})
	if err != nil {
		return nil, err
	}
	tags := make([]types.Tag, 0, len(resp.Tags))
	for _, t := range resp.Tags {
		tags = append(tags, types.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return tags, nil
}

func fetchIAMRoleTags(ctx context.Context, cs *clientSet, roleName string) ([]types.Tag, error) {
	resp, err := cs.iam.ListRoleTags(ctx, &iam.ListRoleTagsInput{RoleName: aws.String(roleName)})
	if err != nil {
		return nil, err
	}
	tags := make([]types.Tag, 0, len(resp.Tags))
	for _, t := range resp.Tags {
		tags = append(tags, types.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return tags, nil
}

func fetchLambdaTags(ctx context.Context, cs *clientSet, functionARN string) ([]types.Tag, error) {
	resp, err := cs.lambda.ListTags(ctx, &lambda.ListTagsInput{Resource: aws.String(functionARN)})
	if err != nil {
		return nil, err
	}
	tags := make([]types.Tag, 0, len(resp.Tags))
	for k, v := range resp.Tags {
		tags = append(tags, types.Tag{Key: k, Value: v})
	}
	return tags, nil
}

func fetchELBTags(ctx context.Context, cs *clientSet, arn string) ([]types.Tag, error) {
	resp, err := cs.elbv2.DescribeTags(ctx, &elasticloadbalancingv2.DescribeTagsInput{ResourceArns: []string{arn}})
	if err != nil {
		return nil, err
	}
	var tags []types.Tag
	for _, desc := range resp.TagDescriptions {
		for _, t := range desc.Tags {
			tags = append(tags, types.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
		}
	}
	return tags, nil
}

func fetchRoute53Tags(ctx context.Context, cs *clientSet, zoneID string) ([]types.Tag, error) {
	resp, err := cs.route53.ListTagsForResource(ctx, &route53.ListTagsForResourceInput{
		ResourceType: route53types.TagResourceTypeHostedzone,
		ResourceId:   aws.String(zoneID),
	})
	if err != nil {
		return nil, err
	}
	if resp.ResourceTagSet == nil {
		return nil, nil
	}
	tags := make([]types.Tag, 0, len(resp.ResourceTagSet.Tags))
	for _, t := range resp.ResourceTagSet.Tags {
		tags = append(tags, types.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return tags, nil
}

func fetchS3Tags(ctx context.Context, cs *clientSet, bucket string) ([]types.Tag, error) {
	resp, err := cs.s3.GetBucketTagging(ctx, &s3.GetBucketTaggingInput{Bucket: aws.String(bucket)})
	if err != nil {
		// A bucket with no tags answers with NoSuchTagSet rather than
		// an empty set.
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchTagSet" {
			return nil, nil
		}
		return nil, err
	}
	tags := make([]types.Tag, 0, len(resp.TagSet))
	for _, t := range resp.TagSet {
		tags = append(tags, types.Tag{Key: aws.ToString(t.Key), Value: aws.ToString(t.Value)})
	}
	return tags, nil
}

func fetchSQSTags(ctx context.Context, cs *clientSet, queueURL string) ([]types.Tag, error) {
	resp, err := cs.sqs.ListQueueTags(ctx, &sqs.ListQueueTagsInput{QueueUrl: aws.String(queueURL)})
	if err != nil {
		return nil, err
	}
	tags := make([]types.Tag, 0, len(resp.Tags))
	for k, v := range resp.Tags {
		tags = append(tags, types.Tag{Key: k, Value: v})
	}
	return tags, nil
}
