package oidckit

import "strings"

// KnownIssuer returns the issuer URL for a well-known provider name. Only
// providers that publish a single issuer are listed; multi-tenant providers
// such as Microsoft must be configured with the tenant issuer URL.
func KnownIssuer(name string) (string, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "google":
		return "https://accounts.google.com", true
	case "apple":
		return "https://appleid.apple.com", true
	case "gitlab":
		return "https://gitlab.com", true
	default:
		return "", false
	}
}

// ResolveIssuer maps provider names to issuer URLs and leaves URLs untouched.
func ResolveIssuer(nameOrURL string) string {
	if iss, ok := KnownIssuer(nameOrURL); ok {
		return iss
	}
	return strings.TrimSpace(nameOrURL)
}
