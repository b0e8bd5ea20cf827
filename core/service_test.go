package core

import (
	"context"
	"sync"
	"testing"
	"time"

	oidckit "github.com/PaulFidika/oidcverify/oidc"
	authtest "github.com/PaulFidika/oidcverify/testing"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	issuer, subject string
	err             error
}

type recordingLogger struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *recordingLogger) LogVerification(_ context.Context, issuer, subject string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{issuer, subject, err})
}

func (r *recordingLogger) last() recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

func newTestService(t *testing.T, cfg AcceptConfig, ti *authtest.TestIssuer, opts ...ServiceOption) *Service {
	t.Helper()
	log, _ := test.NewNullLogger()
	opts = append([]ServiceOption{
		WithServiceLogger(log),
		WithProviderOptions(oidckit.WithHTTPClient(ti.Client())),
	}, opts...)
	s, err := NewService(context.Background(), cfg, opts...)
	require.NoError(t, err)
	return s
}

func TestService_RoutesByIssuer(t *testing.T) {
	a := authtest.NewTestIssuer()
	defer a.Close()
	b := authtest.NewTestIssuer(authtest.WithAudience("mobile"), authtest.WithTrailingSlash())
	defer b.Close()

	events := &recordingLogger{}
	s := newTestService(t, AcceptConfig{Issuers: []IssuerAccept{
		{Issuer: a.Issuer(), Audiences: []string{a.Audience()}},
		{Issuer: b.URL(), Audiences: []string{"mobile"}, RequireSubject: true},
	}}, a, WithVerifyEventLogger(events))

	claims, err := s.Verify(context.Background(), a.CreateToken("alice", ""))
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, recordedEvent{a.Issuer(), "alice", nil}, events.last())

	claims, err = s.Verify(context.Background(), b.CreateToken("bob", ""))
	require.NoError(t, err)
	assert.Equal(t, b.Issuer(), claims.Issuer)

	// a token signed by b but claiming a's issuer fails signature checks
	forged := b.Sign(a.Claims("mallory", ""))
	_, err = s.Verify(context.Background(), forged)
	assert.ErrorIs(t, err, oidckit.ErrInvalidToken)
	assert.ErrorIs(t, events.last().err, oidckit.ErrInvalidToken)

	p, ok := s.Provider(b.URL() + "/")
	require.True(t, ok)
	assert.Equal(t, b.Issuer(), p.Issuer())
}

func TestService_UnknownIssuer(t *testing.T) {
	a := authtest.NewTestIssuer()
	defer a.Close()
	stranger := authtest.NewTestIssuer()
	defer stranger.Close()

	s := newTestService(t, AcceptConfig{Issuers: []IssuerAccept{{Issuer: a.Issuer()}}}, a)

	_, err := s.Verify(context.Background(), stranger.CreateToken("u", ""))
	require.ErrorIs(t, err, oidckit.ErrInvalidToken)
	assert.Equal(t, "oidc: invalid token: iss", err.Error())
	assert.Equal(t, int64(0), stranger.DiscoveryHits())

	_, err = s.Verify(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, oidckit.ErrInvalidToken)
}

func TestService_AppliesIssuerPolicy(t *testing.T) {
	a := authtest.NewTestIssuer()
	defer a.Close()

	s := newTestService(t, AcceptConfig{
		Skew:    time.Minute,
		Issuers: []IssuerAccept{{Issuer: a.Issuer(), Audiences: []string{"someone-else"}}},
	}, a)

	_, err := s.Verify(context.Background(), a.CreateToken("u", ""))
	var oe *oidckit.Error
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, "aud", oe.Claim)
}

func TestNewService_DiscoveryFailure(t *testing.T) {
	a := authtest.NewTestIssuer()
	defer a.Close()
	a.SetDiscoveryField("issuer", "https://evil.example")

	log, _ := test.NewNullLogger()
	_, err := NewService(context.Background(), AcceptConfig{Issuers: []IssuerAccept{{Issuer: a.Issuer()}}},
		WithServiceLogger(log), WithProviderOptions(oidckit.WithHTTPClient(a.Client())))
	assert.ErrorIs(t, err, oidckit.ErrIssuerMismatch)
}

func TestService_ScheduledRefresh(t *testing.T) {
	a := authtest.NewTestIssuer()
	defer a.Close()

	s := newTestService(t, AcceptConfig{
		RefreshInterval: time.Second,
		Issuers:         []IssuerAccept{{Issuer: a.Issuer()}},
	}, a)
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return a.JWKSHits() >= 1 }, 5*time.Second, 50*time.Millisecond)
	s.Stop()

	stats := s.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, a.KeysURL(), stats[0].URL)
	assert.True(t, stats[0].Valid)
	assert.Equal(t, 1, stats[0].KeyCount)
}

func TestService_StartWithoutInterval(t *testing.T) {
	a := authtest.NewTestIssuer()
	defer a.Close()

	s := newTestService(t, AcceptConfig{Issuers: []IssuerAccept{{Issuer: a.Issuer()}}}, a)
	require.NoError(t, s.Start())
	s.Stop()
	assert.Equal(t, int64(0), a.JWKSHits())
}
