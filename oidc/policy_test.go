package oidckit

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func claimOf(err error) string {
	var oe *Error
	if !errors.As(err, &oe) {
		return ""
	}
	return oe.Claim
}

func TestPolicy_ZeroValue(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	assert.NoError(t, VerificationPolicy{}.Check(&Claims{}, now))
	assert.NoError(t, VerificationPolicy{}.Check(&Claims{
		Audience: []string{"anything"},
		Expiry:   now.Add(time.Minute),
	}, now))
	assert.ErrorIs(t, VerificationPolicy{}.Check(nil, now), ErrInvalidToken)
}

func TestPolicy_AudienceAnyOf(t *testing.T) {
	now := time.Now()
	p := VerificationPolicy{Audiences: []string{"web", "mobile"}}

	assert.NoError(t, p.Check(&Claims{Audience: []string{"mobile"}}, now))
	assert.NoError(t, p.Check(&Claims{Audience: []string{"cli", "web"}}, now))

	err := p.Check(&Claims{Audience: []string{"cli"}}, now)
	require.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, "aud", claimOf(err))
	assert.Equal(t, "aud", claimOf(p.Check(&Claims{}, now)))
}

func TestPolicy_ExpiryAndSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := &Claims{Expiry: now}

	assert.Equal(t, "exp", claimOf(VerificationPolicy{}.Check(c, now)))
	assert.NoError(t, VerificationPolicy{Skew: time.Second}.Check(c, now))
	assert.NoError(t, VerificationPolicy{SkipExpiry: true}.Check(c, now.Add(time.Hour)))
	assert.Equal(t, "exp", claimOf(VerificationPolicy{Skew: time.Minute}.Check(c, now.Add(time.Minute))))

	// rejected exactly at exp + skew, accepted just before it
	assert.NoError(t, VerificationPolicy{}.Check(c, now.Add(-time.Nanosecond)))
	assert.NoError(t, VerificationPolicy{Skew: time.Minute}.Check(c, now.Add(time.Minute-time.Nanosecond)))
}

func TestPolicy_NotBeforeAndSkew(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := &Claims{NotBefore: now.Add(30 * time.Second)}

	assert.Equal(t, "nbf", claimOf(VerificationPolicy{}.Check(c, now)))
	assert.NoError(t, VerificationPolicy{Skew: time.Minute}.Check(c, now))
	assert.NoError(t, VerificationPolicy{SkipNotBefore: true}.Check(c, now))
	assert.NoError(t, VerificationPolicy{}.Check(c, now.Add(30*time.Second)))
}

func TestPolicy_CheckOrder(t *testing.T) {
	now := time.Now()
	p := VerificationPolicy{Issuer: "https://idp.example", Audiences: []string{"app"}, RequireSubject: true}

	// every check fails; the issuer is reported first
	err := p.Check(&Claims{Issuer: "https://other.example", Expiry: now.Add(-time.Hour)}, now)
	assert.Equal(t, "iss", claimOf(err))

	err = p.Check(&Claims{Issuer: "https://idp.example", Audience: []string{"app"}, Expiry: now.Add(-time.Hour)}, now)
	assert.Equal(t, "sub", claimOf(err))
}

func TestPolicy_RequiredClaims(t *testing.T) {
	now := time.Now()
	p := VerificationPolicy{RequiredClaims: []string{"jti", "tenant"}}

	c := &Claims{ID: "abc", Private: map[string]any{"tenant": "acme"}}
	assert.NoError(t, p.Check(c, now))

	assert.Equal(t, "tenant", claimOf(p.Check(&Claims{ID: "abc"}, now)))
	assert.Equal(t, "jti", claimOf(p.Check(&Claims{Private: map[string]any{"tenant": "acme"}}, now)))
}

func TestClaims_EmailVerified(t *testing.T) {
	cases := []struct {
		value    any
		want, ok bool
	}{
		{true, true, true},
		{false, false, true},
		{"TRUE", true, true},
		{"false", false, true},
		{"yes", false, false},
		{nil, false, false},
	}
	for _, tc := range cases {
		c := &Claims{Private: map[string]any{}}
		if tc.value != nil {
			c.Private["email_verified"] = tc.value
		}
		got, ok := c.EmailVerified()
		assert.Equal(t, tc.want, got, "value %v", tc.value)
		assert.Equal(t, tc.ok, ok, "value %v", tc.value)
	}
}

func TestClaims_Map(t *testing.T) {
	exp := time.Unix(1_700_000_000, 0)
	c := &Claims{
		Issuer:   "https://idp.example",
		Subject:  "u1",
		Audience: []string{"app"},
		Expiry:   exp,
		Private:  map[string]any{"email": "a@example.com"},
	}
	m := c.Map()
	assert.Equal(t, "https://idp.example", m["iss"])
	assert.Equal(t, int64(1_700_000_000), m["exp"])
	assert.Equal(t, "a@example.com", m["email"])
	assert.NotContains(t, m, "nbf")
	assert.NotContains(t, m, "jti")
}
