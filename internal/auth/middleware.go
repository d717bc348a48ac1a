package auth

import (
	"net/http"
	"strings"
)

// Header names set by the fronting SSO proxy, which owns login and session
// handling.
const (
	userHeader = "X-Auth-User"
	nameHeader = "X-Auth-Name"
	roleHeader = "X-Auth-Role"
)

// Middleware attaches the proxy-authenticated user to the request context.
// Requests without an identity pass through unauthenticated; the handlers
// decide what each endpoint requires.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(userHeader))
		if id == "" {
			next.ServeHTTP(w, r)
			return
		}

		user := User{
			ID:   id,
			Name: strings.TrimSpace(r.Header.Get(nameHeader)),
			Role: parseRole(r.Header.Get(roleHeader)),
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), user)))
	})
}

func parseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleEditor:
		return RoleEditor
	default:
		return RoleViewer
	}
}
