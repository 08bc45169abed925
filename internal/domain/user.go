package domain

import (
	"context"
	"errors"
)

// User is the authenticated caller of a request.
type User struct {
	ID    string
	Email string
	Role  Role
}

// Identity returns the owner identity the user acts as.
func (u *User) Identity() string {
	if u.Email != "" {
		return NormalizeOwner(u.Email)
	}
	return NormalizeOwner(u.ID)
}

// IsAdmin reports whether the user may act on behalf of anyone.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanActAs reports whether the user may act as owner.
func (u *User) CanActAs(owner string) bool {
	return u.IsAdmin() || u.Identity() == NormalizeOwner(owner)
}

// Role represents a user's access level
type Role string

const (
	// RoleAdmin may act on any offer and trigger operator endpoints
	RoleAdmin Role = "admin"
	// RolePlayer may only act as themselves
	RolePlayer Role = "player"
)

var validRoles = map[Role]bool{
	RoleAdmin:  true,
	RolePlayer: true,
}

// IsValid checks if the role is a valid role
func (r Role) IsValid() bool {
	return validRoles[r]
}

// Authentication errors
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type userContextKey struct{}

// ContextWithUser attaches the authenticated user to ctx.
func ContextWithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*User)
	return user, ok && user != nil
}
