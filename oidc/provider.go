package oidckit

import (
	"context"
	"crypto/rsa"
	"errors"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// Provider verifies tokens of one issuer against its cached key set.
type Provider struct {
	config IssuerConfig
	keys   *KeyCache
	opts   options
}

// NewProvider builds a Provider from a known configuration without discovery.
func NewProvider(cfg IssuerConfig, opts ...Option) (*Provider, error) {
	if cfg.KeySetURL == nil {
		return nil, &Error{Kind: KindMalformedURL, Op: "provider", Field: "jwks_uri", Err: errors.New("missing")}
	}
	return newProvider(cfg, newOptions(opts)), nil
}

func newProvider(cfg IssuerConfig, o options) *Provider {
	return &Provider{
		config: cfg,
		keys:   newKeyCache(cfg.KeySetURL.String(), o),
		opts:   o,
	}
}

// Issuer returns the issuer identifier as published by the issuer.
func (p *Provider) Issuer() string { return p.config.Issuer }

// Config returns the discovered configuration.
func (p *Provider) Config() IssuerConfig { return p.config }

// KeyCache returns the provider's key cache.
func (p *Provider) KeyCache() *KeyCache { return p.keys }

// Endpoint returns the OAuth2 endpoints for callers running their own flows.
func (p *Provider) Endpoint() oauth2.Endpoint {
	var ep oauth2.Endpoint
	if p.config.AuthURL != nil {
		ep.AuthURL = p.config.AuthURL.String()
	}
	if p.config.TokenURL != nil {
		ep.TokenURL = p.config.TokenURL.String()
	}
	return ep
}

// Verify checks the token signature against the current key set and applies
// policy to its claims. Signature failures are reported as an opaque
// ErrInvalidToken; the detail is logged at debug level.
func (p *Provider) Verify(ctx context.Context, rawToken string, policy VerificationPolicy) (*Claims, error) {
	log := p.opts.log.WithField("issuer", p.config.Issuer)

	ks, err := p.keys.Get(ctx)
	if err != nil {
		return nil, err
	}

	key, err := p.selectKey(ks, rawToken)
	if err != nil {
		return nil, err
	}
	var raw any
	if err := key.Raw(&raw); err != nil {
		log.WithError(err).Debug("remote key has no usable RSA material")
		return nil, newErr(KindInvalidRemoteKeys, "verify", err)
	}
	pub, ok := raw.(*rsa.PublicKey)
	if !ok {
		return nil, newErr(KindInvalidRemoteKeys, "verify", nil)
	}

	tok, err := jwt.Parse([]byte(rawToken), jwt.WithKey(jwa.RS256, pub), jwt.WithValidate(false))
	if err != nil {
		log.WithFields(logrus.Fields{"stage": "signature", "error": err}).Debug("token rejected")
		return nil, invalidToken("")
	}

	claims := claimsFromToken(tok, rawToken)
	if err := policy.Check(claims, p.opts.clock.Now()); err != nil {
		log.WithFields(logrus.Fields{"stage": "claims", "error": err}).Debug("token rejected")
		return nil, err
	}
	return claims, nil
}

// selectKey takes the first published key, or with kid matching enabled the
// key named by the token header. Only RSA keys are accepted.
func (p *Provider) selectKey(ks *KeySet, rawToken string) (jwk.Key, error) {
	if ks == nil || len(ks.Keys) == 0 {
		return nil, newErr(KindNoRemoteKeys, "verify", nil)
	}
	key := ks.Keys[0]
	if p.opts.kidMatch {
		if kid := headerKeyID(rawToken); kid != "" {
			for _, k := range ks.Keys {
				if k.KeyID() == kid {
					key = k
					break
				}
			}
		}
	}
	if key.KeyType() != jwa.RSA {
		return nil, newErr(KindInvalidRemoteKeys, "verify", nil)
	}
	return key, nil
}

func headerKeyID(rawToken string) string {
	msg, err := jws.Parse([]byte(rawToken))
	if err != nil || len(msg.Signatures()) == 0 {
		return ""
	}
	return msg.Signatures()[0].ProtectedHeaders().KeyID()
}

// PeekIssuer returns the unverified iss claim of a token, for routing only.
func PeekIssuer(rawToken string) (string, error) {
	tok, err := jwt.ParseInsecure([]byte(rawToken))
	if err != nil {
		return "", invalidToken("")
	}
	return tok.Issuer(), nil
}

func claimsFromToken(tok jwt.Token, raw string) *Claims {
	return &Claims{
		Issuer:    tok.Issuer(),
		Subject:   tok.Subject(),
		Audience:  tok.Audience(),
		Expiry:    tok.Expiration(),
		NotBefore: tok.NotBefore(),
		IssuedAt:  tok.IssuedAt(),
		ID:        tok.JwtID(),
		Private:   tok.PrivateClaims(),
		Raw:       raw,
	}
}
