package gate

import (
	"context"
	"net/http"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// ContextKeyPrincipal stores the verified principal for the request
const ContextKeyPrincipal ContextKey = "principal"

// PrincipalFromContext returns the principal injected by Middleware.
// Downstream handlers must use this rather than re-deriving identity from
// the raw token.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	principal, ok := ctx.Value(ContextKeyPrincipal).(Principal)
	return principal, ok
}

// Middleware rejects requests whose bearer token does not verify, before
// the downstream handler runs. Rejections are always 401; a 403 is an
// application-level decision made after identity is established.
func (g *Gate) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, err := g.Authorize(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Unauthorized"}`))
			return
		}

		ctx := context.WithValue(r.Context(), ContextKeyPrincipal, principal)
		next(w, r.WithContext(ctx))
	}
}
