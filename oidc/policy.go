package oidckit

import "time"

// VerificationPolicy lists the registered-claim checks applied after the
// signature is verified. The zero value only rejects tokens that carry an
// exp or nbf which the current time violates.
type VerificationPolicy struct {
	// Issuer, if set, must equal the iss claim.
	Issuer string
	// Audiences, if set, must share at least one value with aud.
	Audiences []string
	// RequireSubject rejects tokens without sub.
	RequireSubject bool
	// Skew is the clock tolerance applied to exp and nbf.
	Skew time.Duration
	// SkipExpiry and SkipNotBefore disable the time checks.
	SkipExpiry    bool
	SkipNotBefore bool
	// RequiredClaims must be present, registered or private.
	RequiredClaims []string
}

// Check applies the policy to c at time now. The returned error names the
// first claim that failed.
func (p VerificationPolicy) Check(c *Claims, now time.Time) error {
	if c == nil {
		return invalidToken("")
	}
	if p.Issuer != "" && c.Issuer != p.Issuer {
		return invalidToken("iss")
	}
	if len(p.Audiences) > 0 && !anyAudience(c.Audience, p.Audiences) {
		return invalidToken("aud")
	}
	if p.RequireSubject && c.Subject == "" {
		return invalidToken("sub")
	}
	if !p.SkipExpiry && !c.Expiry.IsZero() && !now.Before(c.Expiry.Add(p.Skew)) {
		return invalidToken("exp")
	}
	if !p.SkipNotBefore && !c.NotBefore.IsZero() && now.Add(p.Skew).Before(c.NotBefore) {
		return invalidToken("nbf")
	}
	for _, name := range p.RequiredClaims {
		if !c.Has(name) {
			return invalidToken(name)
		}
	}
	return nil
}

func anyAudience(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
