package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
)

const wellKnownPath = ".well-known/openid-configuration"

// IssuerConfig is the validated discovery document of an issuer.
type IssuerConfig struct {
	Issuer      string
	AuthURL     *url.URL
	TokenURL    *url.URL
	UserInfoURL *url.URL
	KeySetURL   *url.URL
	// Raw is the full discovery document, for fields not modeled above.
	Raw map[string]any
}

// Field returns a raw discovery document member.
func (c IssuerConfig) Field(name string) (any, bool) {
	v, ok := c.Raw[name]
	return v, ok
}

type discoveryDoc struct {
	Issuer                *string `json:"issuer"`
	AuthorizationEndpoint *string `json:"authorization_endpoint"`
	TokenEndpoint         *string `json:"token_endpoint"`
	JWKSURI               *string `json:"jwks_uri"`
	UserInfoEndpoint      *string `json:"userinfo_endpoint"`
}

// Discover fetches and validates the issuer's OpenID configuration and returns
// a Provider whose key cache is bound to the published jwks_uri. No keys are
// fetched until the first verification.
func Discover(ctx context.Context, issuer string, opts ...Option) (*Provider, error) {
	o := newOptions(opts)
	cfg, err := discover(ctx, &o, issuer)
	if err != nil {
		return nil, err
	}
	return newProvider(cfg, o), nil
}

// WellKnownURL returns the discovery document location for issuer.
func WellKnownURL(issuer string) (string, error) {
	base, err := parseAbsURL(issuer)
	if err != nil {
		return "", &Error{Kind: KindMalformedURL, Op: "discover", Field: "issuer", Err: err}
	}
	return base.ResolveReference(&url.URL{Path: wellKnownPath}).String(), nil
}

func discover(ctx context.Context, o *options, issuer string) (IssuerConfig, error) {
	wellKnown, err := WellKnownURL(issuer)
	if err != nil {
		return IssuerConfig{}, err
	}
	body, err := o.get(ctx, "discover", wellKnown)
	if err != nil {
		return IssuerConfig{}, err
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return IssuerConfig{}, newErr(KindDecode, "discover", err)
	}
	var doc discoveryDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return IssuerConfig{}, newErr(KindDecode, "discover", err)
	}
	if doc.Issuer == nil || doc.AuthorizationEndpoint == nil || doc.TokenEndpoint == nil ||
		doc.JWKSURI == nil || doc.UserInfoEndpoint == nil {
		return IssuerConfig{}, newErr(KindDecode, "discover", errors.New("discovery document missing required fields"))
	}

	if !SameIssuer(*doc.Issuer, issuer) {
		o.log.WithField("requested", issuer).WithField("discovered", *doc.Issuer).Warn("discovery issuer mismatch")
		return IssuerConfig{}, &Error{Kind: KindIssuerMismatch, Op: "discover"}
	}

	cfg := IssuerConfig{Issuer: *doc.Issuer, Raw: raw}
	for _, f := range []struct {
		name string
		raw  string
		dst  **url.URL
	}{
		{"authorization_endpoint", *doc.AuthorizationEndpoint, &cfg.AuthURL},
		{"token_endpoint", *doc.TokenEndpoint, &cfg.TokenURL},
		{"userinfo_endpoint", *doc.UserInfoEndpoint, &cfg.UserInfoURL},
		{"jwks_uri", *doc.JWKSURI, &cfg.KeySetURL},
	} {
		u, err := parseAbsURL(f.raw)
		if err != nil {
			return IssuerConfig{}, &Error{Kind: KindMalformedURL, Op: "discover", Field: f.name, Err: err}
		}
		*f.dst = u
	}
	o.log.WithField("issuer", cfg.Issuer).WithField("jwks_uri", cfg.KeySetURL.String()).Debug("discovered issuer")
	return cfg, nil
}

// SameIssuer compares issuer identifiers ignoring one trailing slash.
func SameIssuer(a, b string) bool {
	return strings.TrimSuffix(a, "/") == strings.TrimSuffix(b, "/")
}
