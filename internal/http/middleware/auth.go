package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/wolfman30/clinicdesk/internal/auth"
	"github.com/wolfman30/clinicdesk/internal/http/httpx"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenParser verifies bearer tokens.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// Authenticate requires a valid bearer token and scopes the request to the
// token's organization and user.
func Authenticate(parser TokenParser) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if parser == nil {
				httpx.WriteMessage(w, http.StatusUnauthorized, "authentication disabled")
				return
			}
			header := r.Header.Get("Authorization")
			if header == "" || !strings.HasPrefix(header, "Bearer ") {
				httpx.WriteMessage(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			claims, err := parser.Parse(strings.TrimSpace(strings.TrimPrefix(header, "Bearer ")))
			if err != nil {
				httpx.WriteMessage(w, http.StatusUnauthorized, "invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			ctx = tenancy.WithOrgID(ctx, claims.OrgID)
			ctx = tenancy.WithUserID(ctx, claims.Subject)
			noteRequestOrg(ctx, claims.OrgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission rejects callers whose token lacks code.
func RequirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				httpx.WriteMessage(w, http.StatusUnauthorized, "missing credentials")
				return
			}
			if !claims.HasPermission(code) {
				httpx.WriteMessage(w, http.StatusForbidden, "missing permission "+code)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the verified token claims if present.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// WithClaims stores claims in ctx. Used by tests and background jobs.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	ctx = tenancy.WithOrgID(ctx, claims.OrgID)
	return tenancy.WithUserID(ctx, claims.Subject)
}
