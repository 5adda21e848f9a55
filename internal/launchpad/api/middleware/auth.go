package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/identity"
)

type principalKey struct{}

// Authenticate resolves the bearer session token on each request to a
// domain.Principal via sessions, and stashes it in the request
// context. A missing or invalid token is not rejected here: it simply
// leaves the context principal empty, so unauthenticated requests fall
// through to each handler's own rbac.RequireAtLeast check (which
// treats an unknown principal as RoleUser) rather than being bounced
// at the edge.
func Authenticate(sessions *identity.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token != "" {
				if principal, ok := sessions.Resolve(token, identity.ScopeEtch); ok {
					r = r.WithContext(context.WithValue(r.Context(), principalKey{}, principal))
				} else if principal, ok := sessions.Resolve(token, identity.ScopeAdmin); ok {
					r = r.WithContext(context.WithValue(r.Context(), principalKey{}, principal))
				} else if principal, ok := sessions.Resolve(token, identity.ScopeRegistry); ok {
					r = r.WithContext(context.WithValue(r.Context(), principalKey{}, principal))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(h, "Bearer ")
}

// PrincipalFrom returns the caller principal stashed by Authenticate,
// defaulting to the empty principal (treated as RoleUser everywhere
// role checks happen).
func PrincipalFrom(r *http.Request) domain.Principal {
	p, _ := r.Context().Value(principalKey{}).(domain.Principal)
	return p
}
