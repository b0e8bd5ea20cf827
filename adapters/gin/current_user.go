package authgin

import (
	"github.com/gin-gonic/gin"
)

// UserView is a flat view of the caller built from verified token claims.
//
// Fields with * are nil when the issuer does not send the claim.
type UserView struct {
	// Identity
	UserID        string  `json:"user_id"`
	Issuer        string  `json:"issuer"`
	Email         string  `json:"email,omitempty"`
	EmailVerified *bool   `json:"email_verified,omitempty"`
	Name          *string `json:"name,omitempty"`

	// Meta
	Source string `json:"source"` // "claims" | "none"
}

// CurrentUser returns a user snapshot for handlers.
// Order of precedence:
//  1. Verified claims (from RequireToken/OptionalToken) → Source: "claims"
//  2. None (unauthenticated) → Source: "none"
func CurrentUser(c *gin.Context) (UserView, bool) {
	cl, ok := ClaimsFromGin(c)
	if !ok || cl.Subject == "" {
		return UserView{Source: "none"}, false
	}

	uv := UserView{
		UserID: cl.Subject,
		Issuer: cl.Issuer,
		Source: "claims",
	}
	if email, ok := cl.String("email"); ok {
		uv.Email = email
	}
	if verified, ok := cl.EmailVerified(); ok {
		uv.EmailVerified = &verified
	}
	if name, ok := cl.String("name"); ok && name != "" {
		uv.Name = &name
	}
	return uv, true
}
