package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

type ecsClusterNormalizer struct{ base }

func (ecsClusterNormalizer) Type() string { return "ecs-cluster" }

func (n ecsClusterNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "ClusterName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "ClusterArn"))
	if v, ok := num(raw, "ActiveServicesCount"); ok {
		props["active_services"] = v
	}
	if v, ok := num(raw, "RunningTasksCount"); ok {
		props["running_tasks"] = v
	}
	if v, ok := num(raw, "RegisteredContainerInstancesCount"); ok {
		props["container_instances"] = v
	}

	entry := newEntry(in, n.Type(), id, id, str(raw, "Status"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

// ecsServiceNormalizer handles ECS services, which nest under a cluster.
// The synthesized "{cluster}#{service}" identifier keeps services of the
// same name in different clusters distinct.
type ecsServiceNormalizer struct{ base }

func (ecsServiceNormalizer) Type() string { return "ecs-service" }

func (ecsServiceNormalizer) Enrichable() bool { return true }

func (n ecsServiceNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	serviceName := str(raw, "ServiceName")
	cluster := clusterNameFromPayload(raw)
	if serviceName == "" {
		return nil, requireID(n.Type(), "")
	}

	id := serviceName
	if cluster != "" {
		id = types.ChildResourceID(cluster, serviceName)
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "ServiceArn"))
	setIf(props, "launch_type", str(raw, "LaunchType"))
	setIf(props, "cluster", cluster)
	if v, ok := num(raw, "DesiredCount"); ok {
		props["desired_count"] = v
	}
	if v, ok := num(raw, "RunningCount"); ok {
		props["running_count"] = v
	}
	if v, ok := num(raw, "PendingCount"); ok {
		props["pending_count"] = v
	}

	entry := newEntry(in, n.Type(), id, serviceName, str(raw, "Status"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	if cluster != "" {
		entry.ParentResourceID = cluster
		entry.ParentResourceType = "ecs-cluster"
		entry.IsChild = true
	}
	return entry, nil
}

func (ecsServiceNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	props := map[string]any{}
	props["deployment_count"] = len(items(detail, "Deployments"))
	props["event_count"] = len(items(detail, "Events"))
	setIf(props, "task_definition", str(detail, "TaskDefinition"))
	setIf(props, "platform_version", str(detail, "PlatformVersion"))
	if v, ok := num(detail, "RunningCount"); ok {
		props["running_count"] = v
	}
	return props
}

// clusterNameFromPayload reads the cluster name, accepting either a plain
// name or a cluster ARN.
func clusterNameFromPayload(raw providers.Payload) string {
	if name := str(raw, "ClusterName"); name != "" {
		return name
	}
	arn := str(raw, "ClusterArn")
	if arn == "" {
		return ""
	}
	for i := len(arn) - 1; i >= 0; i-- {
		if arn[i] == '/' {
			return arn[i+1:]
		}
	}
	return arn
}

type ecrRepositoryNormalizer struct{ base }

func (ecrRepositoryNormalizer) Type() string { return "ecr-repository" }

func (n ecrRepositoryNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "RepositoryName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "RepositoryArn"))
	setIf(props, "repository_uri", str(raw, "RepositoryUri"))
	setIf(props, "created_at", str(raw, "CreatedAt"))

	entry := newEntry(in, n.Type(), id, id, "", raw, props)
	return entry, nil
}

// eksClusterNormalizer handles EKS clusters. The lister describes each
// cluster individually, so the listing payload already carries identity
// and networking; enrichment adds endpoint and role detail.
type eksClusterNormalizer struct{ base }

func (eksClusterNormalizer) Type() string { return "eks-cluster" }

func (eksClusterNormalizer) Enrichable() bool { return true }

func (n eksClusterNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "Name")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "Arn"))
	setIf(props, "version", str(raw, "Version"))
	if vpcCfg := sub(raw, "ResourcesVpcConfig"); vpcCfg != nil {
		setIf(props, "vpc_id", str(vpcCfg, "VpcId"))
	}

	entry := newEntry(in, n.Type(), id, id, str(raw, "Status"), raw, props)
	return entry, nil
}

func (eksClusterNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		return []types.Relationship{edgeTo(types.RelationDeployedIn, vpc)}
	}
	return nil
}

func (eksClusterNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	cluster := sub(detail, "Cluster")
	if cluster == nil {
		cluster = detail
	}

	props := map[string]any{}
	setIf(props, "arn", str(cluster, "Arn"))
	setIf(props, "version", str(cluster, "Version"))
	setIf(props, "endpoint", str(cluster, "Endpoint"))
	setIf(props, "cluster_status", str(cluster, "Status"))
	setIf(props, "role_arn", str(cluster, "RoleArn"))
	if vpcCfg := sub(cluster, "ResourcesVpcConfig"); vpcCfg != nil {
		setIf(props, "vpc_id", str(vpcCfg, "VpcId"))
	}
	return props
}
