package core

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	oidckit "github.com/PaulFidika/oidcverify/oidc"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Service verifies tokens from any of the configured issuers.
type Service struct {
	cfg    AcceptConfig
	log    logrus.FieldLogger
	events VerifyEventLogger

	issuers map[string]*issuerEntry // keyed by issuer without trailing slash

	mu    sync.Mutex
	sched *cron.Cron
}

type issuerEntry struct {
	provider *oidckit.Provider
	policy   oidckit.VerificationPolicy
}

// ServiceOption configures a Service.
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	log      logrus.FieldLogger
	events   VerifyEventLogger
	provider []oidckit.Option
}

// WithServiceLogger sets the logger for the service and its providers.
func WithServiceLogger(l logrus.FieldLogger) ServiceOption {
	return func(o *serviceOptions) { o.log = l }
}

// WithVerifyEventLogger reports every verification outcome to l.
func WithVerifyEventLogger(l VerifyEventLogger) ServiceOption {
	return func(o *serviceOptions) { o.events = l }
}

// WithProviderOptions passes extra options to every provider, after the ones
// derived from the config.
func WithProviderOptions(opts ...oidckit.Option) ServiceOption {
	return func(o *serviceOptions) { o.provider = append(o.provider, opts...) }
}

// NewService discovers every configured issuer concurrently. The first
// discovery failure aborts construction.
func NewService(ctx context.Context, cfg AcceptConfig, opts ...ServiceOption) (*Service, error) {
	so := serviceOptions{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&so)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}

	entries := make([]*issuerEntry, len(cfg.Issuers))
	g, gctx := errgroup.WithContext(ctx)
	for i, ia := range cfg.Issuers {
		g.Go(func() error {
			p, err := oidckit.Discover(gctx, ia.Issuer, providerOptions(cfg, ia, so)...)
			if err != nil {
				return fmt.Errorf("discover %s: %w", ia.Issuer, err)
			}
			policy := ia.Policy(cfg.Skew)
			policy.Issuer = p.Issuer()
			entries[i] = &issuerEntry{provider: p, policy: policy}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s := &Service{cfg: cfg, log: so.log, events: so.events, issuers: make(map[string]*issuerEntry, len(entries))}
	for _, e := range entries {
		s.issuers[issuerKey(e.provider.Issuer())] = e
	}
	so.log.WithField("issuers", len(entries)).Info("token verification service ready")
	return s, nil
}

func providerOptions(cfg AcceptConfig, ia IssuerAccept, so serviceOptions) []oidckit.Option {
	opts := []oidckit.Option{
		oidckit.WithLogger(so.log),
		oidckit.WithKeySetTTL(ia.CacheTTL),
		oidckit.WithMaxStale(ia.MaxStale),
	}
	if cfg.HTTPTimeout > 0 {
		opts = append(opts, oidckit.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}))
	}
	if ia.KeyIDMatching {
		opts = append(opts, oidckit.WithKeyIDMatching())
	}
	return append(opts, so.provider...)
}

func issuerKey(iss string) string { return strings.TrimSuffix(iss, "/") }

// Verify routes the token to its issuer by the unverified iss claim and
// verifies it with that issuer's keys and policy. Tokens from issuers that are
// not configured are invalid.
func (s *Service) Verify(ctx context.Context, rawToken string) (*oidckit.Claims, error) {
	iss, err := oidckit.PeekIssuer(rawToken)
	if err != nil {
		s.report(ctx, "", nil, err)
		return nil, err
	}
	e, ok := s.issuers[issuerKey(iss)]
	if !ok {
		s.log.WithField("issuer", iss).Debug("token from unconfigured issuer")
		err := &oidckit.Error{Kind: oidckit.KindInvalidToken, Op: "verify", Claim: "iss"}
		s.report(ctx, iss, nil, err)
		return nil, err
	}
	claims, err := e.provider.Verify(ctx, rawToken, e.policy)
	s.report(ctx, e.provider.Issuer(), claims, err)
	return claims, err
}

func (s *Service) report(ctx context.Context, issuer string, claims *oidckit.Claims, err error) {
	if s.events == nil {
		return
	}
	var sub string
	if claims != nil {
		sub = claims.Subject
	}
	s.events.LogVerification(ctx, issuer, sub, err)
}

// Provider returns the provider for issuer, ignoring a trailing slash.
func (s *Service) Provider(issuer string) (*oidckit.Provider, bool) {
	e, ok := s.issuers[issuerKey(oidckit.ResolveIssuer(issuer))]
	if !ok {
		return nil, false
	}
	return e.provider, true
}

// Stats lists key-cache state for every issuer, ordered by key-set URL.
func (s *Service) Stats() []oidckit.KeySetStats {
	out := make([]oidckit.KeySetStats, 0, len(s.issuers))
	for _, e := range s.issuers {
		out = append(out, e.provider.KeyCache().Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Start schedules background key-set refreshes every RefreshInterval. It is a
// no-op when the interval is zero or the scheduler already runs.
func (s *Service) Start() error {
	if s.cfg.RefreshInterval <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sched != nil {
		return nil
	}
	c := cron.New()
	schedule := "@every " + s.cfg.RefreshInterval.String()
	for _, e := range s.issuers {
		kc := e.provider.KeyCache()
		log := s.log.WithField("jwks_uri", kc.URL())
		if _, err := c.AddFunc(schedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout(s.cfg))
			defer cancel()
			if _, err := kc.Refresh(ctx); err != nil {
				log.WithError(err).Warn("scheduled key set refresh failed")
			}
		}); err != nil {
			return fmt.Errorf("schedule key refresh: %w", err)
		}
	}
	c.Start()
	s.sched = c
	return nil
}

// Stop halts the scheduler and waits for running refreshes to finish.
func (s *Service) Stop() {
	s.mu.Lock()
	c := s.sched
	s.sched = nil
	s.mu.Unlock()
	if c != nil {
		<-c.Stop().Done()
	}
}

func refreshTimeout(cfg AcceptConfig) time.Duration {
	if cfg.HTTPTimeout > 0 {
		return cfg.HTTPTimeout
	}
	return 10 * time.Second
}
