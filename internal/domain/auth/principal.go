// Package auth defines the calling principal, its roles and the role gate
// that services call before privileged operations.
package auth

import (
	"context"
	"slices"

	"github.com/xenking/storefront/internal/domain/apperr"
)

// Role is one of the closed set of role tags issued by the identity provider.
type Role string

const (
	RoleCustomer      Role = "customer"
	RoleOperations    Role = "operations"
	RoleAdministrator Role = "administrator"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleOperations, RoleAdministrator:
		return true
	}
	return false
}

// Principal is the authenticated caller. Name and Email are the contact
// details used for order confirmations.
type Principal struct {
	ID    string
	Role  Role
	Name  string
	Email string
}

// IsAdmin reports whether the principal holds the administrator role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdministrator
}

// Require fails with an Unauthenticated error for an empty principal and with
// a Forbidden error when the principal's role is not among allowed. An empty
// allowed list accepts any authenticated principal.
func Require(p Principal, allowed ...Role) error {
	if p.ID == "" {
		return apperr.Unauthenticated("authentication required")
	}
	if len(allowed) == 0 || slices.Contains(allowed, p.Role) {
		return nil
	}
	return apperr.Forbidden("role " + string(p.Role) + " is not allowed to perform this action")
}

// Verifier turns a bearer credential into a Principal.
type Verifier interface {
	Verify(ctx context.Context, token string) (Principal, error)
}
