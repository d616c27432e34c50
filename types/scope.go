package types

// QueryScope is the accounts x regions x resource-types cross-product
// defining one query's extent. Treated as immutable once handed to the
// engine.
type QueryScope struct {
	Accounts      []string `json:"accounts" yaml:"accounts"`
	Regions       []string `json:"regions" yaml:"regions"`
	ResourceTypes []string `json:"resource_types" yaml:"resource_types"`
}

// IsEmpty reports whether the scope expands to zero work.
func (s QueryScope) IsEmpty() bool {
	return len(s.Accounts) == 0 || len(s.Regions) == 0 || len(s.ResourceTypes) == 0
}
