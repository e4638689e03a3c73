// Package rbac owns role assignment state for the funding ledger. Each
// address holds at most one role; a later grant overwrites rather than
// unions. SuperAdmin is a singleton and changes hands only through the
// dedicated transfer operation.
package rbac

import "fmt"

// Role is the authority level held by an address.
type Role string

const (
	// RoleSuperAdmin is the singleton root authority.
	RoleSuperAdmin Role = "super_admin"
	// RoleAdmin manages roles and oracle designation.
	RoleAdmin Role = "admin"
	// RoleProjectManager may register projects.
	RoleProjectManager Role = "project_manager"
	// RoleOracle may verify proofs and release funds.
	RoleOracle Role = "oracle"
)

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSuperAdmin, RoleAdmin, RoleProjectManager, RoleOracle:
		return true
	}
	return false
}

// ParseRole converts a stored role string back into a Role.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", fmt.Errorf("rbac: unknown role %q", s)
	}
	return role, nil
}
