// Package globalsvc classifies resource types whose data is identical
// regardless of the queried region. Queries for these types collapse to a
// single "Global" query per account.
package globalsvc

// queryRegion is the fixed region global-service API calls are routed to.
const queryRegion = "us-east-1"

// globalTypes is the static set of known region-independent resource types.
// A lookup miss means "treat as regional".
var globalTypes = map[string]bool{
	"iam-role":            true,
	"route53-hosted-zone": true,
	"s3-bucket":           true,
}

// IsGlobal reports whether a resource type is region-independent.
func IsGlobal(resourceType string) bool {
	return globalTypes[resourceType]
}

// QueryRegion returns the region used for the single global-type query.
func QueryRegion() string {
	return queryRegion
}

// Types returns the known global resource types, for display.
func Types() []string {
	out := make([]string, 0, len(globalTypes))
	for t := range globalTypes {
		out = append(out, t)
	}
	return out
}
