package normalize

import (
	"context"

	"github.com/karttahq/kartta/providers"
	"github.com/karttahq/kartta/types"
)

type rdsInstanceNormalizer struct{ base }

func (rdsInstanceNormalizer) Type() string { return "rds-instance" }

func (n rdsInstanceNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "DBInstanceIdentifier")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "DBInstanceArn"))
	setIf(props, "engine", str(raw, "Engine"))
	setIf(props, "engine_version", str(raw, "EngineVersion"))
	setIf(props, "instance_class", str(raw, "DBInstanceClass"))
	setIf(props, "kms_key_id", str(raw, "KmsKeyId"))
	props["multi_az"] = boolean(raw, "MultiAZ")
	if storage, ok := num(raw, "AllocatedStorage"); ok {
		props["allocated_storage_gb"] = storage
	}
	if endpoint := sub(raw, "Endpoint"); endpoint != nil {
		setIf(props, "endpoint", str(endpoint, "Address"))
		if port, ok := num(endpoint, "Port"); ok {
			props["port"] = port
		}
	}
	if subnetGroup := sub(raw, "DBSubnetGroup"); subnetGroup != nil {
		setIf(props, "vpc_id", str(subnetGroup, "VpcId"))
	}

	var sgIDs []string
	for _, group := range items(raw, "VpcSecurityGroups") {
		if gid := str(group, "VpcSecurityGroupId"); gid != "" {
			sgIDs = append(sgIDs, gid)
		}
	}
	if len(sgIDs) > 0 {
		props["security_group_ids"] = sgIDs
	}

	entry := newEntry(in, n.Type(), id, id, str(raw, "DBInstanceStatus"), raw, props)
	entry.Tags = awsTags(raw, "TagList")
	return entry, nil
}

func (rdsInstanceNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	var edges []types.Relationship
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		edges = append(edges, edgeTo(types.RelationDeployedIn, vpc))
	}
	if sgIDs, ok := entry.Properties["security_group_ids"].([]string); ok {
		for _, sgID := range sgIDs {
			if sg, ok := siblings.FindByID("security-group", sgID); ok {
				edges = append(edges, edgeTo(types.RelationProtectedBy, sg))
			}
		}
	}
	if key, ok := siblings.FindByARN(entry.PropertyString("kms_key_id")); ok {
		edges = append(edges, edgeTo(types.RelationProtectedBy, key))
	}
	return edges
}

// dynamodbTableNormalizer handles DynamoDB. Listing returns only table
// names, so nearly everything interesting comes from enrichment.
type dynamodbTableNormalizer struct{ base }

func (dynamodbTableNormalizer) Type() string { return "dynamodb-table" }

func (dynamodbTableNormalizer) Enrichable() bool { return true }

func (n dynamodbTableNormalizer) Normalize(ctx context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "TableName")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	entry := newEntry(in, n.Type(), id, id, "", raw, map[string]any{})
	entry.Tags = fetchTags(ctx, in, n.Type(), id)
	return entry, nil
}

func (dynamodbTableNormalizer) NormalizeDetail(detail providers.Payload) map[string]any {
	table := sub(detail, "Table")
	if table == nil {
		table = detail
	}

	props := map[string]any{}
	setIf(props, "arn", str(table, "TableArn"))
	setIf(props, "table_status", str(table, "TableStatus"))
	if count, ok := num(table, "ItemCount"); ok {
		props["item_count"] = count
	}
	if size, ok := num(table, "TableSizeBytes"); ok {
		props["size_bytes"] = size
	}
	if billing := sub(table, "BillingModeSummary"); billing != nil {
		setIf(props, "billing_mode", str(billing, "BillingMode"))
	}
	props["global_secondary_indexes"] = len(items(table, "GlobalSecondaryIndexes"))
	return props
}

type redshiftClusterNormalizer struct{ base }

func (redshiftClusterNormalizer) Type() string { return "redshift-cluster" }

func (n redshiftClusterNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "ClusterIdentifier")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "node_type", str(raw, "NodeType"))
	setIf(props, "vpc_id", str(raw, "VpcId"))
	setIf(props, "db_name", str(raw, "DBName"))
	if nodes, ok := num(raw, "NumberOfNodes"); ok {
		props["node_count"] = nodes
	}

	entry := newEntry(in, n.Type(), id, id, str(raw, "ClusterStatus"), raw, props)
	entry.Tags = awsTags(raw, "Tags")
	return entry, nil
}

func (redshiftClusterNormalizer) Relationships(entry *types.ResourceEntry, siblings *EntrySet) []types.Relationship {
	if vpc, ok := siblings.FindByID("vpc", entry.PropertyString("vpc_id")); ok {
		return []types.Relationship{edgeTo(types.RelationDeployedIn, vpc)}
	}
	return nil
}

type memorydbClusterNormalizer struct{ base }

func (memorydbClusterNormalizer) Type() string { return "memorydb-cluster" }

func (n memorydbClusterNormalizer) Normalize(_ context.Context, raw providers.Payload, in Input) (*types.ResourceEntry, error) {
	id := str(raw, "Name")
	if err := requireID(n.Type(), id); err != nil {
		return nil, err
	}

	props := map[string]any{}
	setIf(props, "arn", str(raw, "ARN"))
	setIf(props, "node_type", str(raw, "NodeType"))
	setIf(props, "engine_version", str(raw, "EngineVersion"))
	if shards, ok := num(raw, "NumberOfShards"); ok {
		props["shard_count"] = shards
	}

	entry := newEntry(in, n.Type(), id, id, str(raw, "Status"), raw, props)
	return entry, nil
}
