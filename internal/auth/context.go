// Package auth carries the authenticated user through request contexts.
// Session handling and login live in the surrounding web stack; this core
// only needs the user's identity and role.
package auth

import (
	"context"
	"fmt"
)

// Role is the access level of an authenticated user.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// User is the authenticated principal attached to a request.
type User struct {
	ID   string
	Name string
	Role Role
}

// CanImport reports whether the user may stage and commit bulk imports.
func (u User) CanImport() bool {
	return u.Role == RoleEditor || u.Role == RoleAdmin
}

// CanAdministerFields reports whether the user may edit field definitions.
func (u User) CanAdministerFields() bool {
	return u.Role == RoleAdmin
}

type contextKey string

const userKey contextKey = "user"

// ContextWithUser returns a new context that carries the authenticated user.
func ContextWithUser(ctx context.Context, user User) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the authenticated user from the context, if any.
func UserFromContext(ctx context.Context) (User, bool) {
	if ctx == nil {
		return User{}, false
	}
	value := ctx.Value(userKey)
	if value == nil {
		return User{}, false
	}
	user, ok := value.(User)
	if !ok || user.ID == "" {
		return User{}, false
	}
	return user, true
}

// RequireImporter ensures the context carries a user allowed to run imports.
func RequireImporter(ctx context.Context) (User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return User{}, fmt.Errorf("authentication required")
	}
	if !user.CanImport() {
		return User{}, fmt.Errorf("user %s may not import data", user.ID)
	}
	return user, nil
}

// RequireAdmin ensures the context carries an administrator.
func RequireAdmin(ctx context.Context) (User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return User{}, fmt.Errorf("authentication required")
	}
	if !user.CanAdministerFields() {
		return User{}, fmt.Errorf("user %s is not an administrator", user.ID)
	}
	return user, nil
}
