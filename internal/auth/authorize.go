package auth

import (
	"fmt"

	"lightingmap.app/internal/lighting"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID string
	Email  string
	Role   lighting.Role
}

// PrincipalFromClaims maps verified token claims to a principal.
func PrincipalFromClaims(c *Claims) Principal {
	return Principal{UserID: c.Subject, Email: c.Email, Role: c.Role}
}

// Require reports lighting.ErrPermissionDenied when p ranks below min.
func (p Principal) Require(min lighting.Role) error {
	if !p.Role.AtLeast(min) {
		return fmt.Errorf("%w: requires %s", lighting.ErrPermissionDenied, min)
	}
	return nil
}
