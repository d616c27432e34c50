package normalize

// Registry maps resource types to their normalizers. Unknown types fall
// back to a generic normalizer so new provider surface degrades gracefully
// instead of failing.
type Registry struct {
	byType  map[string]Normalizer
	generic Normalizer
}

// NewRegistry creates an empty registry with the generic fallback.
func NewRegistry() *Registry {
	return &Registry{
		byType:  make(map[string]Normalizer),
		generic: genericNormalizer{},
	}
}

// Register adds or replaces the normalizer for its declared type.
func (r *Registry) Register(n Normalizer) {
	r.byType[n.Type()] = n
}

// Lookup returns the normalizer for a resource type, or the generic
// fallback when none is registered.
func (r *Registry) Lookup(resourceType string) Normalizer {
	if n, ok := r.byType[resourceType]; ok {
		return n
	}
	return r.generic
}

// Enrichable reports whether entries of a type benefit from deep describe.
func (r *Registry) Enrichable(resourceType string) bool {
	return r.Lookup(resourceType).Enrichable()
}

// Types returns the registered resource types.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.byType))
	for t := range r.byType {
		out = append(out, t)
	}
	return out
}

// Default builds a registry with every built-in normalizer.
func Default() *Registry {
	r := NewRegistry()
	for _, n := range []Normalizer{
		ec2InstanceNormalizer{},
		ebsVolumeNormalizer{},
		autoscalingGroupNormalizer{},
		vpcNormalizer{},
		subnetNormalizer{},
		securityGroupNormalizer{},
		loadBalancerNormalizer{},
		targetGroupNormalizer{},
		s3BucketNormalizer{},
		rdsInstanceNormalizer{},
		dynamodbTableNormalizer{},
		redshiftClusterNormalizer{},
		memorydbClusterNormalizer{},
		sqsQueueNormalizer{},
		lambdaFunctionNormalizer{},
		ecsClusterNormalizer{},
		ecsServiceNormalizer{},
		ecrRepositoryNormalizer{},
		eksClusterNormalizer{},
		iamRoleNormalizer{},
		kmsKeyNormalizer{},
		cloudtrailTrailNormalizer{},
		logGroupNormalizer{},
		route53ZoneNormalizer{},
	} {
		r.Register(n)
	}
	return r
}
