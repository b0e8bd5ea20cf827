package oidckit

import (
	"context"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DefaultKeySetTTL is how long a fetched key set is served before a refresh.
const DefaultKeySetTTL = 24 * time.Hour

// Option configures discovery, providers and key caches.
type Option func(*options)

type options struct {
	client   *http.Client
	log      logrus.FieldLogger
	clock    clockwork.Clock
	ttl      time.Duration
	maxStale time.Duration
	store    KeySetStore
	kidMatch bool
}

func newOptions(opts []Option) options {
	o := options{
		log:   logrus.StandardLogger(),
		clock: clockwork.NewRealClock(),
		ttl:   DefaultKeySetTTL,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithHTTPClient sets the client used for discovery and key-set fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.client = c }
}

// WithLogger routes component logs to l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithClock substitutes the time source (tests use clockwork.NewFakeClock).
func WithClock(c clockwork.Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithKeySetTTL sets the validity window of a fetched key set.
// Values <= 0 keep DefaultKeySetTTL.
func WithKeySetTTL(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.ttl = d
		}
	}
}

// WithMaxStale lets a failed refresh fall back to the previous key set if it
// expired less than d ago. Zero (the default) fails strictly.
func WithMaxStale(d time.Duration) Option {
	return func(o *options) { o.maxStale = d }
}

// WithKeySetStore shares raw key-set documents through s.
func WithKeySetStore(s KeySetStore) Option {
	return func(o *options) { o.store = s }
}

// WithKeyIDMatching selects the key whose kid matches the token header,
// falling back to the first published key.
func WithKeyIDMatching() Option {
	return func(o *options) { o.kidMatch = true }
}

var defaultClient = &http.Client{Timeout: 10 * time.Second}

// httpClient picks the configured client, then one carried in ctx under
// oauth2.HTTPClient, then a default with a 10s timeout.
func (o *options) httpClient(ctx context.Context) *http.Client {
	if o.client != nil {
		return o.client
	}
	if c, ok := ctx.Value(oauth2.HTTPClient).(*http.Client); ok && c != nil {
		return c
	}
	return defaultClient
}
