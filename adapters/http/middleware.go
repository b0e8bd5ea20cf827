package authhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	oidckit "github.com/PaulFidika/oidcverify/oidc"
)

// TokenVerifier is satisfied by core.Service.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*oidckit.Claims, error)
}

type claimsKey struct{}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithClaims returns a copy of ctx carrying verified claims.
func WithClaims(ctx context.Context, c *oidckit.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the claims stored by RequireToken.
func ClaimsFromContext(ctx context.Context) (*oidckit.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*oidckit.Claims)
	return c, ok && c != nil
}

// ErrorStatus maps a verification error to an HTTP status and error code.
// Retryable failures mean the issuer could not be reached, not that the
// caller is unauthenticated.
func ErrorStatus(err error) (int, string) {
	if oidckit.Retryable(err) {
		return http.StatusServiceUnavailable, "auth_unavailable"
	}
	return http.StatusUnauthorized, "invalid_token"
}

// RequireToken rejects requests without a valid bearer token and passes the
// verified claims to next through the request context.
func RequireToken(v TokenVerifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer`)
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		claims, err := v.Verify(r.Context(), token)
		if err != nil {
			status, code := ErrorStatus(err)
			if status == http.StatusUnauthorized {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
			}
			writeError(w, status, code)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

func writeError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code})
}
