package types

// RelationshipType classifies a directed edge between two resources.
type RelationshipType string

const (
	RelationUses            RelationshipType = "Uses"
	RelationContains        RelationshipType = "Contains"
	RelationChildOf         RelationshipType = "ChildOf"
	RelationParentOf        RelationshipType = "ParentOf"
	RelationAttachedTo      RelationshipType = "AttachedTo"
	RelationMemberOf        RelationshipType = "MemberOf"
	RelationDeployedIn      RelationshipType = "DeployedIn"
	RelationProtectedBy     RelationshipType = "ProtectedBy"
	RelationDeadLetterQueue RelationshipType = "DeadLetterQueue"
	RelationServesAsDlq     RelationshipType = "ServesAsDlq"
)

// Relationship is a directed typed edge to another resource. Edges are
// derived, not authoritative: relationship linking recomputes them from
// the current entry set every time it runs.
type Relationship struct {
	Type               RelationshipType `json:"relationship_type"`
	TargetResourceID   string           `json:"target_resource_id"`
	TargetResourceType string           `json:"target_resource_type"`
}
