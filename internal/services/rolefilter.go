package services

import "sort"

// RoleFilter narrows which subdomains a role-segmented report highlights.
// The role→subdomain mapping is externally configured data; the filter never
// changes how an individual session is scored.
type RoleFilter struct {
	mapping map[string][]string
}

func NewRoleFilter(mapping map[string][]string) *RoleFilter {
	m := make(map[string][]string, len(mapping))
	for role, subdomains := range mapping {
		m[role] = append([]string(nil), subdomains...)
	}
	return &RoleFilter{mapping: m}
}

// Known reports whether the role appears in the configured mapping.
func (f *RoleFilter) Known(role string) bool {
	if f == nil {
		return false
	}
	_, ok := f.mapping[role]
	return ok
}

// RelevantSubdomains returns the sorted subdomain ids in scope for the role.
func (f *RoleFilter) RelevantSubdomains(role string) ([]string, error) {
	if f == nil || role == "" {
		return nil, NewInvalidError("role required")
	}
	subdomains, ok := f.mapping[role]
	if !ok {
		return nil, NewInvalidError("unknown role " + role)
	}
	out := append([]string(nil), subdomains...)
	sort.Strings(out)
	return out, nil
}

// Roles lists the configured role names, sorted.
func (f *RoleFilter) Roles() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.mapping))
	for role := range f.mapping {
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
