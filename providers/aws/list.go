package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
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
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/karttahq/kartta/providers"
)

type listFunc func(context.Context, *clientSet) ([]providers.Payload, error)

var listers = map[string]listFunc{
	"ec2-instance":        listEC2Instances,
	"ebs-volume":          listEBSVolumes,
	"vpc":                 listVPCs,
	"subnet":              listSubnets,
	"security-group":      listSecurityGroups,
	"autoscaling-group":   listAutoScalingGroups,
	"cloudtrail-trail":    listCloudTrails,
	"log-group":           listLogGroups,
	"dynamodb-table":      listDynamoDBTables,
	"ecr-repository":      listECRRepositories,
	"ecs-cluster":         listECSClusters,
	"ecs-service":         listECSServices,
	"eks-cluster":         listEKSClusters,
	"load-balancer":       listLoadBalancers,
	"target-group":        listTargetGroups,
	"iam-role":            listIAMRoles,
	"kms-key":             listKMSKeys,
	"lambda-function":     listLambdaFunctions,
	"memorydb-cluster":    listMemoryDBClusters,
	"rds-instance":        listRDSInstances,
	"redshift-cluster":    listRedshiftClusters,
	"route53-hosted-zone": listRoute53Zones,
	"s3-bucket":           listS3Buckets,
	"sqs-queue":           listSQSQueues,
}

// List returns the raw payloads for every resource of one type in one
// account and region, in provider return order.
func (f *Fetcher) List(ctx context.Context, account, region, resourceType string) ([]providers.Payload, error) {
	lister, ok := listers[resourceType]
	if !ok {
		return nil, fmt.Errorf("no lister for resource type %q", resourceType)
	}
	cs, err := f.clientsFor(ctx, account, region)
	if err != nil {
		return nil, err
	}
	return lister(ctx, cs)
}

func listEC2Instances(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := ec2.NewDescribeInstancesPaginator(cs.ec2, &ec2.DescribeInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, reservation := range page.Reservations {
			payloads, err := toPayloads(reservation.Instances)
			if err != nil {
				return nil, err
			}
			out = append(out, payloads...)
		}
	}
	return out, nil
}

func listEBSVolumes(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := ec2.NewDescribeVolumesPaginator(cs.ec2, &ec2.DescribeVolumesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Volumes)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listVPCs(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := ec2.NewDescribeVpcsPaginator(cs.ec2, &ec2.DescribeVpcsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Vpcs)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listSubnets(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := ec2.NewDescribeSubnetsPaginator(cs.ec2, &ec2.DescribeSubnetsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Subnets)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listSecurityGroups(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := ec2.NewDescribeSecurityGroupsPaginator(cs.ec2, &ec2.DescribeSecurityGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.SecurityGroups)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listAutoScalingGroups(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := autoscaling.NewDescribeAutoScalingGroupsPaginator(cs.autoscaling, &autoscaling.DescribeAutoScalingGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.AutoScalingGroups)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listCloudTrails(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	resp, err := cs.cloudtrail.DescribeTrails(ctx, &cloudtrail.DescribeTrailsInput{})
	if err != nil {
		return nil, err
	}
	return toPayloads(resp.TrailList)
}

func listLogGroups(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := cloudwatchlogs.NewDescribeLogGroupsPaginator(cs.logs, &cloudwatchlogs.DescribeLogGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.LogGroups)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

// listDynamoDBTables wraps bare table names; everything else arrives at
// enrichment time.
func listDynamoDBTables(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := dynamodb.NewListTablesPaginator(cs.dynamodb, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range page.TableNames {
			out = append(out, providers.Payload{"TableName": name})
		}
	}
	return out, nil
}

func listECRRepositories(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := ecr.NewDescribeRepositoriesPaginator(cs.ecr, &ecr.DescribeRepositoriesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Repositories)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listECSClusters(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	arns, err := ecsClusterARNs(ctx, cs)
	if err != nil {
		return nil, err
	}

	var out []providers.Payload
	for _, batch := range chunk(arns, 100) {
		resp, err := cs.ecs.DescribeClusters(ctx, &ecs.DescribeClustersInput{Clusters: batch})
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(resp.Clusters)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listECSServices(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	clusters, err := ecsClusterARNs(ctx, cs)
	if err != nil {
		return nil, err
	}

	var out []providers.Payload
	for _, cluster := range clusters {
		paginator := ecs.NewListServicesPaginator(cs.ecs, &ecs.ListServicesInput{Cluster: aws.String(cluster)})
		var serviceARNs []string
		for paginator.HasMorePages() {
			page, err := paginator.NextPage(ctx)
			if err != nil {
				return nil, err
			}
			serviceARNs = append(serviceARNs, page.ServiceArns...)
		}

		// DescribeServices accepts at most 10 services per call.
		for _, batch := range chunk(serviceARNs, 10) {
			resp, err := cs.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
				Cluster:  aws.String(cluster),
				Services: batch,
			})
			if err != nil {
				return nil, err
			}
			payloads, err := toPayloads(resp.Services)
			if err != nil {
				return nil, err
			}
			out = append(out, payloads...)
		}
	}
	return out, nil
}

func ecsClusterARNs(ctx context.Context, cs *clientSet) ([]string, error) {
	var arns []string
	paginator := ecs.NewListClustersPaginator(cs.ecs, &ecs.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		arns = append(arns, page.ClusterArns...)
	}
	return arns, nil
}

func listEKSClusters(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := eks.NewListClustersPaginator(cs.eks, &eks.ListClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, name := range page.Clusters {
			resp, err := cs.eks.DescribeCluster(ctx, &eks.DescribeClusterInput{Name: aws.String(name)})
			if err != nil {
				return nil, err
			}
			payload, err := toPayload(resp.Cluster)
			if err != nil {
				return nil, err
			}
			out = append(out, payload)
		}
	}
	return out, nil
}

func listLoadBalancers(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := elasticloadbalancingv2.NewDescribeLoadBalancersPaginator(cs.elbv2, &elasticloadbalancingv2.DescribeLoadBalancersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.LoadBalancers)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listTargetGroups(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := elasticloadbalancingv2.NewDescribeTargetGroupsPaginator(cs.elbv2, &elasticloadbalancingv2.DescribeTargetGroupsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.TargetGroups)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listIAMRoles(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := iam.NewListRolesPaginator(cs.iam, &iam.ListRolesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Roles)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listKMSKeys(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := kms.NewListKeysPaginator(cs.kms, &kms.ListKeysInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Keys)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listLambdaFunctions(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := lambda.NewListFunctionsPaginator(cs.lambda, &lambda.ListFunctionsInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Functions)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listMemoryDBClusters(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := memorydb.NewDescribeClustersPaginator(cs.memorydb, &memorydb.DescribeClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Clusters)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listRDSInstances(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := rds.NewDescribeDBInstancesPaginator(cs.rds, &rds.DescribeDBInstancesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.DBInstances)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listRedshiftClusters(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := redshift.NewDescribeClustersPaginator(cs.redshift, &redshift.DescribeClustersInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.Clusters)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listRoute53Zones(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := route53.NewListHostedZonesPaginator(cs.route53, &route53.ListHostedZonesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		payloads, err := toPayloads(page.HostedZones)
		if err != nil {
			return nil, err
		}
		out = append(out, payloads...)
	}
	return out, nil
}

func listS3Buckets(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	resp, err := cs.s3.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, err
	}
	return toPayloads(resp.Buckets)
}

// listSQSQueues includes the basic attribute set in each listing payload
// so redrive policies resolve into DLQ edges before enrichment runs.
func listSQSQueues(ctx context.Context, cs *clientSet) ([]providers.Payload, error) {
	var out []providers.Payload
	paginator := sqs.NewListQueuesPaginator(cs.sqs, &sqs.ListQueuesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, url := range page.QueueUrls {
			payload := providers.Payload{"QueueUrl": url}
			attrs, err := cs.sqs.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
				QueueUrl: aws.String(url),
				AttributeNames: []sqstypes.QueueAttributeName{
					sqstypes.QueueAttributeNameQueueArn,
					sqstypes.QueueAttributeNameRedrivePolicy,
					sqstypes.QueueAttributeNameVisibilityTimeout,
					sqstypes.QueueAttributeNameMessageRetentionPeriod,
				},
			})
			if err == nil {
				payload["Attributes"] = attributeMap(attrs.Attributes)
			}
			out = append(out, payload)
		}
	}
	return out, nil
}

func attributeMap(attrs map[string]string) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// chunk splits a slice into batches of at most size.
func chunk(items []string, size int) [][]string {
	var batches [][]string
	for len(items) > size {
		batches = append(batches, items[:size])
		items = items[size:]
	}
	if len(items) > 0 {
		batches = append(batches, items)
	}
	return batches
}
