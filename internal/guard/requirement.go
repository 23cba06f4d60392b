package guard

import "slices"

// Requirement is the access metadata attached to one route record.
//
// Roles == nil means any authenticated role. A non-nil, empty Roles admits
// nobody.
type Requirement struct {
	RequiresAuth bool
	Roles        []string
}

// Public is the requirement for routes anyone may open.
var Public = Requirement{}

// Authenticated is the requirement for routes that need any signed-in user.
var Authenticated = Requirement{RequiresAuth: true}

// Merge folds the requirements of a matched route chain, outermost first.
// Authentication is required if any record requires it. Roles come from the
// deepest record that declares them.
func Merge(chain ...Requirement) Requirement {
	var out Requirement
	for _, r := range chain {
		if r.RequiresAuth {
			out.RequiresAuth = true
		}
		if r.Roles != nil {
			out.Roles = r.Roles
		}
	}
	return out
}

// Permits reports whether role satisfies the role restriction.
func (r Requirement) Permits(role string) bool {
	if r.Roles == nil {
		return true
	}
	return slices.Contains(r.Roles, role)
}
