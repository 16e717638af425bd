// Copyright 2021 Dalarub & Ettrich GmbH - All Rights Reserved
// Unauthorized copying of this file, via any medium is strictly prohibited
// Proprietary and confidential
// info@dalarub.com
//

/*
Package access defines the access-control attachment points for resources.

The framework does not implement any authorization policy itself; it only
carries ACLs from registration to the per-request resource context, where a
host-provided policy can evaluate them.
*/
package access

// Permit grants a role access to a set of HTTP methods on a resource.
type Permit struct {
	Role    string   `json:"role"`
	Methods []string `json:"methods"`
}

// ACL is an ordered list of permits.
type ACL []Permit

// HasACL is implemented by resource types that bring their own ACL. When a
// resource implements this interface, the registration engine leaves it
// alone and does not attach the configured default ACL.
type HasACL interface {
	ACL() ACL
}

// Permits reports whether the ACL grants the given role access with the
// given HTTP method. An empty ACL permits nothing; policy evaluation beyond
// this containment check is up to the host.
func (a ACL) Permits(role, method string) bool {
	for _, p := range a {
		if p.Role != role {
			continue
		}
		for _, m := range p.Methods {
			if m == method {
				return true
			}
		}
	}
	return false
}
