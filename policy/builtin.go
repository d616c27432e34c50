package policy

import "context"

// Builtin policy modules shipped with the binary. Operators extend or
// replace them with a policy directory.
var builtins = map[string]string{
	"untagged.rego": `package kartta

# A tagless entry omits the tags field entirely, so default it.
findings contains f if {
	tags := object.get(input.entry, "tags", [])
	count(tags) == 0
	not input.entry.is_child
	f := {
		"severity": "info",
		"message": "resource carries no tags",
	}
}
`,

	"ownership.rego": `package kartta

findings contains f if {
	count(input.entry.tags) > 0
	not has_owner
	f := {
		"severity": "warning",
		"message": "resource has no owner or team tag",
	}
}

has_owner if {
	some t in input.entry.tags
	t.key == "owner"
}

has_owner if {
	some t in input.entry.tags
	t.key == "team"
}
`,

	"unattached_volume.rego": `package kartta

findings contains f if {
	input.entry.resource_type == "ebs-volume"
	input.entry.status == "available"
	f := {
		"severity": "warning",
		"message": "volume is not attached to any instance",
	}
}
`,
}

// LoadBuiltins compiles the built-in policy set.
func (e *Engine) LoadBuiltins(ctx context.Context) error {
	for name, code := range builtins {
		if err := e.LoadPolicy(ctx, name, code); err != nil {
			return err
		}
	}
	return nil
}
