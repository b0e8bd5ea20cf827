package oidckit

import (
	"encoding/json"
	"strings"
	"time"
)

// Claims is the decoded claim set of a verified token.
type Claims struct {
	Issuer    string
	Subject   string
	Audience  []string
	Expiry    time.Time
	NotBefore time.Time
	IssuedAt  time.Time
	ID        string
	// Private holds every non-registered claim.
	Private map[string]any
	// Raw is the compact token the claims were read from.
	Raw string
}

// Has reports whether the named claim is present.
func (c *Claims) Has(name string) bool {
	switch name {
	case "iss":
		return c.Issuer != ""
	case "sub":
		return c.Subject != ""
	case "aud":
		return len(c.Audience) > 0
	case "exp":
		return !c.Expiry.IsZero()
	case "nbf":
		return !c.NotBefore.IsZero()
	case "iat":
		return !c.IssuedAt.IsZero()
	case "jti":
		return c.ID != ""
	}
	_, ok := c.Private[name]
	return ok
}

// String returns a private string claim.
func (c *Claims) String(name string) (string, bool) {
	s, ok := c.Private[name].(string)
	return s, ok
}

// EmailVerified reads email_verified, accepting both booleans and the
// "true"/"false" strings some issuers emit.
func (c *Claims) EmailVerified() (bool, bool) {
	switch v := c.Private["email_verified"].(type) {
	case bool:
		return v, true
	case string:
		if strings.EqualFold(v, "true") {
			return true, true
		}
		if strings.EqualFold(v, "false") {
			return false, true
		}
	}
	return false, false
}

// Map returns all claims in JSON form, times as Unix seconds.
func (c *Claims) Map() map[string]any {
	m := make(map[string]any, len(c.Private)+7)
	for k, v := range c.Private {
		m[k] = v
	}
	if c.Issuer != "" {
		m["iss"] = c.Issuer
	}
	if c.Subject != "" {
		m["sub"] = c.Subject
	}
	if len(c.Audience) > 0 {
		m["aud"] = c.Audience
	}
	if c.ID != "" {
		m["jti"] = c.ID
	}
	for name, t := range map[string]time.Time{"exp": c.Expiry, "nbf": c.NotBefore, "iat": c.IssuedAt} {
		if !t.IsZero() {
			m[name] = t.Unix()
		}
	}
	return m
}

// Decode unmarshals the claim set into v, typically an application struct
// with json tags for its custom claims.
func (c *Claims) Decode(v any) error {
	b, err := json.Marshal(c.Map())
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
