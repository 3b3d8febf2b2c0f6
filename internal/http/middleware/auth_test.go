package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/wolfman30/clinicdesk/internal/auth"
	"github.com/wolfman30/clinicdesk/internal/tenancy"
)

func signedToken(t *testing.T, issuer *auth.TokenIssuer, roles, perms []string) string {
	t.Helper()
	token, _, err := issuer.Issue(&auth.User{ID: "user-1", OrgID: "org-1", Email: "a@clinic.test"}, roles, perms)
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return token
}

func TestAuthenticateMissingParser(t *testing.T) {
	rec := httptest.NewRecorder()
	Authenticate(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthenticateMissingHeader(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "clinicdesk", time.Hour)
	rec := httptest.NewRecorder()
	Authenticate(issuer)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "clinicdesk", time.Hour)
	other := auth.NewTokenIssuer("wrong", "clinicdesk", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, other, nil, nil))
	rec := httptest.NewRecorder()

	Authenticate(issuer)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rec.Code)
	}
}

func TestAuthenticateValidTokenScopesRequest(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", "clinicdesk", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, issuer, []string{"doctor"}, []string{"patients.read"}))
	rec := httptest.NewRecorder()

	called := false
	Authenticate(issuer)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if orgID, ok := tenancy.OrgIDFromContext(r.Context()); !ok || orgID != "org-1" {
			t.Fatalf("expected org scope, got %q", orgID)
		}
		if userID, ok := tenancy.UserIDFromContext(r.Context()); !ok || userID != "user-1" {
			t.Fatalf("expected user id, got %q", userID)
		}
		if _, ok := ClaimsFromContext(r.Context()); !ok {
			t.Fatalf("expected claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if !called || rec.Code != http.StatusOK {
		t.Fatalf("expected handler to run, got %d", rec.Code)
	}
}

func TestRequirePermission(t *testing.T) {
	tests := []struct {
		name   string
		claims *auth.Claims
		want   int
	}{
		{"no claims", nil, http.StatusUnauthorized},
		{"missing code", &auth.Claims{OrgID: "org-1", Permissions: []string{"patients.read"}}, http.StatusForbidden},
		{"granted", &auth.Claims{OrgID: "org-1", Permissions: []string{"invoices.write"}}, http.StatusOK},
		{"admin", &auth.Claims{OrgID: "org-1", Roles: []string{auth.RoleAdmin}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/invoices", nil)
			if tt.claims != nil {
				req = req.WithContext(WithClaims(req.Context(), tt.claims))
			}
			rec := httptest.NewRecorder()
			RequirePermission("invoices.write")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})).ServeHTTP(rec, req)

			if rec.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rec.Code)
			}
		})
	}
}
