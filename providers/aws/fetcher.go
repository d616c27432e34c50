// Package aws implements the fetch shim on the AWS SDK v2. One client
// set is built per (account, region) pair; accounts resolve credentials
// through shared-config profiles.
package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/autoscaling"
	"github.com/aws/aws-sdk-go-v2/service/cloudtrail"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	"github.com/aws/aws-sdk-go-v2/service/eks"
	"github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/memorydb"
	"github.com/aws/aws-sdk-go-v2/service/rds"
	"github.com/aws/aws-sdk-go-v2/service/redshift"
	"github.com/aws/aws-sdk-go-v2/service/route53"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/karttahq/kartta/providers"
)

func init() {
	providers.Register("aws", NewFetcherFactory)
}

// NewFetcherFactory builds the AWS fetcher for the provider registry.
func NewFetcherFactory(_ context.Context, cfg providers.Config) (providers.Fetcher, error) {
	return NewFetcher(cfg.Profiles), nil
}

// Fetcher implements providers.Fetcher on the AWS SDK.
type Fetcher struct {
	mu       sync.Mutex
	profiles map[string]string
	clients  map[string]*clientSet
}

// NewFetcher creates a fetcher. profiles maps account IDs to
// shared-config profile names; a missing entry uses the default chain.
func NewFetcher(profiles map[string]string) *Fetcher {
	return &Fetcher{
		profiles: profiles,
		clients:  make(map[string]*clientSet),
	}
}

// clientSet bundles the service clients for one (account, region).
type clientSet struct {
	account string
	region  string

	ec2         *ec2.Client
	autoscaling *autoscaling.Client
	cloudtrail  *cloudtrail.Client
	logs        *cloudwatchlogs.Client
	dynamodb    *dynamodb.Client
	ecr         *ecr.Client
	ecs         *ecs.Client
	eks         *eks.Client
	elbv2       *elasticloadbalancingv2.Client
	iam         *iam.Client
	kms         *kms.Client
	lambda      *lambda.Client
	memorydb    *memorydb.Client
	rds         *rds.Client
	redshift    *redshift.Client
	route53     *route53.Client
	s3          *s3.Client
	sqs         *sqs.Client
}

func (f *Fetcher) clientsFor(ctx context.Context, account, region string) (*clientSet, error) {
	key := account + "|" + region

	f.mu.Lock()
	defer f.mu.Unlock()
	if cs, ok := f.clients[key]; ok {
		return cs, nil
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if profile, ok := f.profiles[account]; ok && profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config for %s/%s: %w", account, region, err)
	}

	cs := &clientSet{
		account:     account,
		region:      region,
		ec2:         ec2.NewFromConfig(cfg),
		autoscaling: autoscaling.NewFromConfig(cfg),
		cloudtrail:  cloudtrail.NewFromConfig(cfg),
		logs:        cloudwatchlogs.NewFromConfig(cfg),
		dynamodb:    dynamodb.NewFromConfig(cfg),
		ecr:         ecr.NewFromConfig(cfg),
		ecs:         ecs.NewFromConfig(cfg),
		eks:         eks.NewFromConfig(cfg),
		elbv2:       elasticloadbalancingv2.NewFromConfig(cfg),
		iam:         iam.NewFromConfig(cfg),
		kms:         kms.NewFromConfig(cfg),
		lambda:      lambda.NewFromConfig(cfg),
		memorydb:    memorydb.NewFromConfig(cfg),
		rds:         rds.NewFromConfig(cfg),
		redshift:    redshift.NewFromConfig(cfg),
		route53:     route53.NewFromConfig(cfg),
		s3:          s3.NewFromConfig(cfg),
		sqs:         sqs.NewFromConfig(cfg),
	}
	f.clients[key] = cs
	return cs, nil
}

// toPayload converts an SDK struct to the uniform payload shape through
// a JSON round trip, so normalizers see CamelCase keys and plain values.
func toPayload(v any) (providers.Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	var p providers.Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	return p, nil
}

func toPayloads[T any](items []T) ([]providers.Payload, error) {
	out := make([]providers.Payload, 0, len(items))
	for i := range items {
		p, err := toPayload(items[i])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
