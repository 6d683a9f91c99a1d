package domain

import (
	"slices"
	"strings"

	dErrors "credence/pkg/domain-errors"
)

// Role is the coarse authorization role carried by the identity claim.
// Invariant: the value must be one of the supported roles.
//
// Usage: construct via ParseRole at trust boundaries; direct casting bypasses validation.
type Role string

const (
	RoleStudent     Role = "student"
	RoleVerifier    Role = "verifier"
	RoleAdmin       Role = "admin"
	RoleIntegration Role = "integration"
)

var validRoles = map[Role]bool{
	RoleStudent:     true,
	RoleVerifier:    true,
	RoleAdmin:       true,
	RoleIntegration: true,
}

// ParseRole constructs a Role from external input.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid role")
	}
	return r, nil
}

func (r Role) IsValid() bool  { return validRoles[r] }
func (r Role) String() string { return string(r) }

// Actor is the caller identity supplied by the identity collaborator:
// (tenant_id, user_id, role) plus the departments a verifier is assigned to.
// The core trusts but does not issue it.
type Actor struct {
	TenantID    TenantID
	UserID      UserID
	Role        Role
	Departments []string
}

// IsZero reports whether no identity was established.
func (a Actor) IsZero() bool {
	return a.TenantID.IsNil() && a.UserID.IsNil() && a.Role == ""
}

// Validate checks the actor carries a tenant, a user, and a known role.
func (a Actor) Validate() error {
	if a.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor tenant is required")
	}
	if a.UserID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor user is required")
	}
	if !a.Role.IsValid() {
		return dErrors.New(dErrors.CodeUnauthorized, "actor role is invalid")
	}
	return nil
}

// InDepartment reports whether the actor is assigned to the given department.
// Comparison is case-insensitive.
func (a Actor) InDepartment(dept string) bool {
	dept = strings.ToLower(strings.TrimSpace(dept))
	if dept == "" {
		return false
	}
	return slices.ContainsFunc(a.Departments, func(d string) bool {
		return strings.ToLower(strings.TrimSpace(d)) == dept
	})
}
