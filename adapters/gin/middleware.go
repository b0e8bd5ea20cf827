package authgin

import (
	"net/http"

	authhttp "github.com/PaulFidika/oidcverify/adapters/http"
	oidckit "github.com/PaulFidika/oidcverify/oidc"
	"github.com/gin-gonic/gin"
)

const (
	claimsKey  = "auth.claims"
	userIDKey  = "auth.user_id"
	issuerKey  = "auth.issuer"
	authHeader = "Authorization"
)

// TokenVerifier is satisfied by core.Service.
type TokenVerifier = authhttp.TokenVerifier

// RequireToken aborts with 401 unless the request carries a valid bearer
// token, and 503 when the issuer's keys cannot be fetched.
func RequireToken(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := authhttp.BearerToken(c.GetHeader(authHeader))
		if !ok {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			abortVerify(c, err)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalToken verifies a bearer token when present. Requests without one
// pass through unauthenticated; a present but invalid token is still rejected.
func OptionalToken(v TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := authhttp.BearerToken(c.GetHeader(authHeader))
		if !ok {
			c.Next()
			return
		}
		claims, err := v.Verify(c.Request.Context(), token)
		if err != nil {
			abortVerify(c, err)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

func abortVerify(c *gin.Context, err error) {
	status, code := authhttp.ErrorStatus(err)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", `Bearer error="invalid_token"`)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"error": code})
}

func setClaims(c *gin.Context, claims *oidckit.Claims) {
	c.Set(claimsKey, claims)
	c.Set(userIDKey, claims.Subject)
	c.Set(issuerKey, claims.Issuer)
	c.Request = c.Request.WithContext(authhttp.WithClaims(c.Request.Context(), claims))
}

// ClaimsFromGin returns the claims set by RequireToken or OptionalToken.
func ClaimsFromGin(c *gin.Context) (*oidckit.Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return nil, false
	}
	cl, ok := v.(*oidckit.Claims)
	return cl, ok && cl != nil
}
