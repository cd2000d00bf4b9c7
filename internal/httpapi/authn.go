package httpapi

import (
	"net/http"
	"strings"

	"kycdesk.org/internal/auth"
	"kycdesk.org/internal/cases"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/login",
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := strings.TrimSpace(r.Header.Get(authHeader))
		if !strings.HasPrefix(strings.ToLower(token), strings.ToLower(bearer)) {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		token = strings.TrimSpace(token[len(bearer):])
		if token == "" {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), auth.Identity{
			UserID:   claims.Subject,
			FullName: claims.FullName,
			Role:     auth.Role(claims.Role),
		})
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actor resolves the authenticated identity as a workflow actor.
func actor(r *http.Request) (cases.Actor, bool) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return cases.Actor{}, false
	}
	return cases.Actor{ID: id.UserID, Name: id.FullName, Role: id.Role}, true
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
