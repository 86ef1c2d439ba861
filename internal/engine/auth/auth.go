// Package auth holds case access rules for API callers.
package auth

import (
	"fmt"

	"disputehub/internal/domain"
)

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Permissions.
const (
	PermCaseAccess = "case.access"
	PermAdmin      = "admin"
)

// Actor is an authenticated caller. Admins are operators and system tooling.
type Actor struct {
	ID    string
	Admin bool
}

func RequireAdmin(a Actor) error {
	if !a.Admin {
		return ForbiddenError{Permission: PermAdmin}
	}
	return nil
}

// CanAccessCase allows the case owner and admins.
func CanAccessCase(a Actor, c domain.Case) error {
	if a.Admin || (a.ID != "" && a.ID == c.UserID) {
		return nil
	}
	return ForbiddenError{Permission: PermCaseAccess}
}
