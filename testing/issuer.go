// Package testing provides a mock OpenID issuer for tests of code that
// verifies tokens with this module. It serves a discovery document and a
// JWKS from an httptest server and signs tokens that validate against it.
//
// Example usage:
//
//	issuer := testing.NewTestIssuer()
//	defer issuer.Close()
//
//	provider, err := oidckit.Discover(ctx, issuer.Issuer())
//	token := issuer.CreateToken("user-123", "test@example.com")
//	claims, err := provider.Verify(ctx, token, oidckit.VerificationPolicy{})
package testing

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"time"

	jwtkit "github.com/PaulFidika/oidcverify/jwt"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestIssuer is an httptest-backed issuer. Discovery is served at
// /.well-known/openid-configuration and keys at /keys.
type TestIssuer struct {
	server   *httptest.Server
	signer   *jwtkit.RSASigner
	audience string
	trailing bool

	mu         sync.Mutex
	keys       []jwtkit.JWK
	overrides  map[string]any
	jwksStatus int
	gate       chan struct{}

	jwksHits      atomic.Int64
	discoveryHits atomic.Int64
}

// IssuerOption configures a TestIssuer.
type IssuerOption func(*TestIssuer)

// WithAudience sets the aud claim of minted tokens (default "test-app").
func WithAudience(aud string) IssuerOption {
	return func(ti *TestIssuer) { ti.audience = aud }
}

// WithTrailingSlash publishes the issuer identifier with a trailing slash.
func WithTrailingSlash() IssuerOption {
	return func(ti *TestIssuer) { ti.trailing = true }
}

// NewTestIssuer starts an issuer with a fresh RSA key. Call Close when done.
func NewTestIssuer(opts ...IssuerOption) *TestIssuer {
	signer, err := jwtkit.NewRSASigner(2048, "test-"+uuid.NewString()[:8])
	if err != nil {
		panic("failed to create RSA signer: " + err.Error())
	}
	ti := &TestIssuer{signer: signer, audience: "test-app"}
	for _, opt := range opts {
		opt(ti)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", ti.handleDiscovery)
	mux.HandleFunc("/keys", ti.handleJWKS)
	ti.server = httptest.NewServer(mux)
	return ti
}

// URL returns the base URL of the server.
func (ti *TestIssuer) URL() string { return ti.server.URL }

// Issuer returns the issuer identifier published in discovery and tokens.
func (ti *TestIssuer) Issuer() string {
	if ti.trailing {
		return ti.server.URL + "/"
	}
	return ti.server.URL
}

// KeysURL returns the JWKS location.
func (ti *TestIssuer) KeysURL() string { return ti.server.URL + "/keys" }

// Audience returns the audience of minted tokens.
func (ti *TestIssuer) Audience() string { return ti.audience }

// Signer exposes the signing key.
func (ti *TestIssuer) Signer() *jwtkit.RSASigner { return ti.signer }

// Client returns an HTTP client for the server.
func (ti *TestIssuer) Client() *http.Client { return ti.server.Client() }

// Close shuts down the test server.
func (ti *TestIssuer) Close() {
	ti.mu.Lock()
	if ti.gate != nil {
		close(ti.gate)
		ti.gate = nil
	}
	ti.mu.Unlock()
	if ti.server != nil {
		ti.server.Close()
	}
}

// JWKSHits counts key-set requests served so far.
func (ti *TestIssuer) JWKSHits() int64 { return ti.jwksHits.Load() }

// DiscoveryHits counts discovery requests served so far.
func (ti *TestIssuer) DiscoveryHits() int64 { return ti.discoveryHits.Load() }

// SetKeys replaces the published keys. Passing none publishes an empty set.
func (ti *TestIssuer) SetKeys(keys ...jwtkit.JWK) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if keys == nil {
		keys = []jwtkit.JWK{}
	}
	ti.keys = keys
}

// SetDiscoveryField overrides a member of the discovery document; nil removes it.
func (ti *TestIssuer) SetDiscoveryField(name string, value any) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	if ti.overrides == nil {
		ti.overrides = map[string]any{}
	}
	ti.overrides[name] = value
}

// SetJWKSStatus makes the key endpoint answer with status and no body.
// Zero restores normal responses.
func (ti *TestIssuer) SetJWKSStatus(status int) {
	ti.mu.Lock()
	defer ti.mu.Unlock()
	ti.jwksStatus = status
}

// BlockJWKS holds key-set requests until the returned release func is called.
func (ti *TestIssuer) BlockJWKS() (release func()) {
	gate := make(chan struct{})
	ti.mu.Lock()
	ti.gate = gate
	ti.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			ti.mu.Lock()
			if ti.gate == gate {
				close(gate)
				ti.gate = nil
			}
			ti.mu.Unlock()
		})
	}
}

func (ti *TestIssuer) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	ti.discoveryHits.Add(1)
	doc := map[string]any{
		"issuer":                 ti.Issuer(),
		"authorization_endpoint": ti.server.URL + "/auth",
		"token_endpoint":         ti.server.URL + "/token",
		"userinfo_endpoint":      ti.server.URL + "/userinfo",
		"jwks_uri":               ti.KeysURL(),
	}
	doc["id_token_signing_alg_values_supported"] = []string{"RS256"}
	ti.mu.Lock()
	for k, v := range ti.overrides {
		if v == nil {
			delete(doc, k)
			continue
		}
		doc[k] = v
	}
	ti.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(doc)
}

func (ti *TestIssuer) handleJWKS(w http.ResponseWriter, r *http.Request) {
	ti.jwksHits.Add(1)
	ti.mu.Lock()
	gate, status, keys := ti.gate, ti.jwksStatus, ti.keys
	ti.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	if keys == nil {
		keys = []jwtkit.JWK{ti.signer.JWK()}
	}
	jwtkit.ServeJWKS(w, r, jwtkit.JWKS{Keys: keys})
}

// Claims returns the standard claims minted for userID.
func (ti *TestIssuer) Claims(userID, email string) jwt.MapClaims {
	claims := jwtkit.StandardClaims(ti.Issuer(), userID, []string{ti.audience}, time.Now(), time.Hour)
	claims["jti"] = uuid.NewString()
	if email != "" {
		claims["email"] = email
	}
	return claims
}

// CreateToken creates a token that validates against this issuer's JWKS.
func (ti *TestIssuer) CreateToken(userID, email string) string {
	return ti.CreateTokenWithClaims(userID, email, nil)
}

// CreateTokenWithClaims merges extraClaims over the standard claims; a nil
// value removes the claim.
func (ti *TestIssuer) CreateTokenWithClaims(userID, email string, extraClaims map[string]any) string {
	claims := ti.Claims(userID, email)
	for k, v := range extraClaims {
		if v == nil {
			delete(claims, k)
			continue
		}
		claims[k] = v
	}
	return ti.Sign(claims)
}

// CreateExpiredToken creates a token that expired an hour ago.
func (ti *TestIssuer) CreateExpiredToken(userID, email string) string {
	return ti.CreateTokenWithClaims(userID, email, map[string]any{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
}

// Sign signs arbitrary claims with the issuer key.
func (ti *TestIssuer) Sign(claims jwt.MapClaims) string {
	token, err := ti.signer.Sign(context.Background(), claims)
	if err != nil {
		panic("failed to sign token: " + err.Error())
	}
	return token
}

// ECKey returns a freshly generated P-256 public JWK.
func ECKey(kid string) jwtkit.JWK {
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("failed to create EC key: " + err.Error())
	}
	return jwtkit.ECPublicToJWK(&k.PublicKey, kid, "ES256")
}
