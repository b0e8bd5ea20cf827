package oidckit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	authtest "github.com/PaulFidika/oidcverify/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func staticServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// documentServer serves doc at the well-known path, with {{base}} replaced by
// the server URL.
func documentServer(t *testing.T, doc string) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/.well-known/openid-configuration" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(strings.ReplaceAll(doc, "{{base}}", srv.URL)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func discoverTest(t *testing.T, ti *authtest.TestIssuer, issuer string) (*Provider, error) {
	t.Helper()
	return Discover(context.Background(), issuer, WithHTTPClient(ti.Client()), WithLogger(quietLogger()))
}

func TestDiscover_KnownGoodDocument(t *testing.T) {
	srv := documentServer(t, `{
		"issuer": "{{base}}/",
		"authorization_endpoint": "{{base}}/auth",
		"token_endpoint": "{{base}}/token",
		"userinfo_endpoint": "{{base}}/userinfo",
		"jwks_uri": "{{base}}/keys",
		"scopes_supported": ["openid", "email"]
	}`)

	p, err := Discover(context.Background(), srv.URL+"/", WithHTTPClient(srv.Client()), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/", p.Issuer())

	cfg := p.Config()
	assert.Equal(t, srv.URL+"/auth", cfg.AuthURL.String())
	assert.Equal(t, srv.URL+"/token", cfg.TokenURL.String())
	assert.Equal(t, srv.URL+"/userinfo", cfg.UserInfoURL.String())
	assert.Equal(t, srv.URL+"/keys", cfg.KeySetURL.String())
	assert.Equal(t, srv.URL+"/keys", p.KeyCache().URL())

	scopes, ok := cfg.Field("scopes_supported")
	require.True(t, ok)
	assert.Equal(t, []any{"openid", "email"}, scopes)

	assert.Equal(t, oauth2.Endpoint{AuthURL: srv.URL + "/auth", TokenURL: srv.URL + "/token"}, p.Endpoint())
}

func TestDiscover_TrailingSlashInsensitive(t *testing.T) {
	for _, published := range []bool{false, true} {
		var opts []authtest.IssuerOption
		if published {
			opts = append(opts, authtest.WithTrailingSlash())
		}
		ti := authtest.NewTestIssuer(opts...)

		for _, requested := range []string{ti.URL(), ti.URL() + "/"} {
			p, err := discoverTest(t, ti, requested)
			require.NoError(t, err, "requested %s", requested)
			assert.Equal(t, ti.Issuer(), p.Issuer())
		}
		ti.Close()
	}
}

func TestDiscover_IssuerMismatch(t *testing.T) {
	ti := authtest.NewTestIssuer()
	defer ti.Close()
	ti.SetDiscoveryField("issuer", "https://evil.example")

	p, err := discoverTest(t, ti, ti.URL())
	assert.Nil(t, p)
	require.ErrorIs(t, err, ErrIssuerMismatch)
	assert.Equal(t, KindIssuerMismatch, KindOf(err))
	assert.False(t, Retryable(err))
}

func TestDiscover_DoesNotFetchKeys(t *testing.T) {
	ti := authtest.NewTestIssuer()
	defer ti.Close()

	p, err := discoverTest(t, ti, ti.URL())
	require.NoError(t, err)
	assert.Equal(t, int64(1), ti.DiscoveryHits())
	assert.Equal(t, int64(0), ti.JWKSHits())
	assert.Nil(t, p.KeyCache().Snapshot())
}

func TestDiscover_MalformedEndpoint(t *testing.T) {
	ti := authtest.NewTestIssuer()
	defer ti.Close()
	ti.SetDiscoveryField("token_endpoint", "not a url")

	_, err := discoverTest(t, ti, ti.URL())
	require.ErrorIs(t, err, ErrMalformedURL)
	var oe *Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "token_endpoint", oe.Field)
}

func TestDiscover_MismatchCheckedBeforeURLs(t *testing.T) {
	ti := authtest.NewTestIssuer()
	defer ti.Close()
	ti.SetDiscoveryField("issuer", "https://other.example")
	ti.SetDiscoveryField("jwks_uri", "::")

	_, err := discoverTest(t, ti, ti.URL())
	assert.ErrorIs(t, err, ErrIssuerMismatch)
}

func TestDiscover_MalformedIssuer(t *testing.T) {
	for _, issuer := range []string{"", "idp.example", "/relative", "http://[::1"} {
		_, err := Discover(context.Background(), issuer, WithLogger(quietLogger()))
		assert.ErrorIs(t, err, ErrMalformedURL, "issuer %q", issuer)
	}
}

func TestDiscover_TransportFailure(t *testing.T) {
	srv := staticServer(t, http.StatusNotFound, `{}`)
	_, err := Discover(context.Background(), srv.URL, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))
	require.ErrorIs(t, err, ErrTransport)
	assert.True(t, Retryable(err))

	srv.Close()
	_, err = Discover(context.Background(), srv.URL, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))
	assert.ErrorIs(t, err, ErrTransport)
}

func TestDiscover_DecodeFailure(t *testing.T) {
	for name, doc := range map[string]string{
		"not json":       `issuer: nope`,
		"missing jwks":   `{"issuer": "{{base}}", "authorization_endpoint": "{{base}}/a", "token_endpoint": "{{base}}/t", "userinfo_endpoint": "{{base}}/u"}`,
		"non string iss": `{"issuer": 7, "authorization_endpoint": "{{base}}/a", "token_endpoint": "{{base}}/t", "userinfo_endpoint": "{{base}}/u", "jwks_uri": "{{base}}/k"}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := documentServer(t, doc)
			_, err := Discover(context.Background(), srv.URL, WithHTTPClient(srv.Client()), WithLogger(quietLogger()))
			assert.ErrorIs(t, err, ErrDecode)
		})
	}
}

func TestDiscover_ClientFromContext(t *testing.T) {
	ti := authtest.NewTestIssuer()
	defer ti.Close()

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, ti.Client())
	p, err := Discover(ctx, ti.URL(), WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, ti.Issuer(), p.Issuer())
}

func TestWellKnownURL(t *testing.T) {
	for issuer, want := range map[string]string{
		"https://idp.example":  "https://idp.example/.well-known/openid-configuration",
		"https://idp.example/": "https://idp.example/.well-known/openid-configuration",
	} {
		got, err := WellKnownURL(issuer)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestSameIssuer(t *testing.T) {
	assert.True(t, SameIssuer("https://example.com", "https://example.com/"))
	assert.True(t, SameIssuer("https://example.com/", "https://example.com/"))
	assert.False(t, SameIssuer("https://example.com", "https://example.org"))
	assert.False(t, SameIssuer("https://example.com//", "https://example.com"))
}

func TestKnownIssuer(t *testing.T) {
	iss, ok := KnownIssuer("Google")
	require.True(t, ok)
	assert.Equal(t, "https://accounts.google.com", iss)
	_, ok = KnownIssuer("myspace")
	assert.False(t, ok)
	_, ok = KnownIssuer("microsoft")
	assert.False(t, ok)
	for _, name := range []string{"google", "apple", "gitlab"} {
		iss, ok := KnownIssuer(name)
		require.True(t, ok)
		wk, err := WellKnownURL(iss)
		require.NoError(t, err)
		assert.Equal(t, iss+"/.well-known/openid-configuration", wk)
	}
	assert.Equal(t, "https://idp.example", ResolveIssuer(" https://idp.example "))
}
