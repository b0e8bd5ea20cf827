package oidckit

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// KeySetStore shares raw key-set documents between caches, possibly across
// processes. Implementations live in storage/memory and storage/redis.
type KeySetStore interface {
	Get(ctx context.Context, jwksURL string) (doc []byte, expiry time.Time, ok bool, err error)
	Put(ctx context.Context, jwksURL string, doc []byte, expiry time.Time) error
}

// KeySet is an immutable snapshot of an issuer's published keys.
type KeySet struct {
	Keys      []jwk.Key
	FetchedAt time.Time
	Expiry    time.Time
}

// Valid reports whether the snapshot is still fresh at now.
func (s *KeySet) Valid(now time.Time) bool {
	return s != nil && now.Before(s.Expiry)
}

// KeySetStats summarizes a cache for diagnostics.
type KeySetStats struct {
	URL       string    `json:"url"`
	KeyCount  int       `json:"key_count"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	Expiry    time.Time `json:"expiry,omitempty"`
	Valid     bool      `json:"valid"`
	Fetches   int64     `json:"fetches"`
}

// KeyCache serves the current key set of one issuer. Concurrent callers that
// find it stale share a single refresh.
type KeyCache struct {
	url  string
	opts options

	current atomic.Pointer[KeySet]
	group   singleflight.Group
	fetches atomic.Int64
}

// NewKeyCache returns an empty cache for jwksURL; nothing is fetched until Get.
func NewKeyCache(jwksURL string, opts ...Option) (*KeyCache, error) {
	if _, err := parseAbsURL(jwksURL); err != nil {
		return nil, &Error{Kind: KindMalformedURL, Op: "jwks", Field: "jwks_uri", Err: err}
	}
	return newKeyCache(jwksURL, newOptions(opts)), nil
}

func newKeyCache(jwksURL string, o options) *KeyCache {
	return &KeyCache{url: jwksURL, opts: o}
}

// URL returns the key-set location.
func (c *KeyCache) URL() string { return c.url }

// Snapshot returns the installed key set without fetching; it may be stale or nil.
func (c *KeyCache) Snapshot() *KeySet { return c.current.Load() }

// Get returns the current key set, refreshing it first when stale or absent.
// A caller whose ctx ends while waiting gets a KindTransport error wrapping
// ctx.Err(); the refresh itself keeps running and installs its result.
func (c *KeyCache) Get(ctx context.Context) (*KeySet, error) {
	if ks := c.current.Load(); ks.Valid(c.opts.clock.Now()) {
		return ks, nil
	}
	c.opts.log.WithField("jwks_uri", c.url).Debug("key set stale or absent")
	return c.await(ctx, false)
}

// Refresh fetches a new key set from the network even if the current one, or
// the one in the KeySetStore, is fresh. It shares the in-flight slot with Get.
func (c *KeyCache) Refresh(ctx context.Context) (*KeySet, error) {
	return c.await(ctx, true)
}

// Stats reports the state of the cache.
func (c *KeyCache) Stats() KeySetStats {
	st := KeySetStats{URL: c.url, Fetches: c.fetches.Load()}
	if ks := c.current.Load(); ks != nil {
		st.KeyCount = len(ks.Keys)
		st.FetchedAt = ks.FetchedAt
		st.Expiry = ks.Expiry
		st.Valid = ks.Valid(c.opts.clock.Now())
	}
	return st
}

func (c *KeyCache) await(ctx context.Context, force bool) (*KeySet, error) {
	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.url, func() (any, error) {
		return c.refresh(detached, force)
	})
	select {
	case <-ctx.Done():
		return nil, newErr(KindTransport, "jwks", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*KeySet), nil
	}
}

func (c *KeyCache) refresh(ctx context.Context, force bool) (*KeySet, error) {
	prev := c.current.Load()
	// A caller may have queued behind a refresh that already installed.
	if !force && prev.Valid(c.opts.clock.Now()) {
		return prev, nil
	}
	ks, err := c.load(ctx, force)
	if err != nil {
		now := c.opts.clock.Now()
		if c.opts.maxStale > 0 && prev != nil && now.Before(prev.Expiry.Add(c.opts.maxStale)) {
			c.opts.log.WithFields(logrus.Fields{
				"jwks_uri":   c.url,
				"expired_at": prev.Expiry,
				"error":      err,
			}).Warn("key set refresh failed; serving previous keys")
			return prev, nil
		}
		return nil, err
	}
	c.current.Store(ks)
	return ks, nil
}

// load reads the shared store unless force is set, then the network. Network
// results are always written back to the store.
func (c *KeyCache) load(ctx context.Context, force bool) (*KeySet, error) {
	log := c.opts.log.WithField("jwks_uri", c.url)
	if st := c.opts.store; st != nil && !force {
		doc, exp, ok, err := st.Get(ctx, c.url)
		switch {
		case err != nil:
			log.WithError(err).Warn("key set store lookup failed")
		case ok && c.opts.clock.Now().Before(exp):
			keys, err := parseKeySet(doc)
			if err == nil {
				return &KeySet{Keys: keys, FetchedAt: c.opts.clock.Now(), Expiry: exp}, nil
			}
			log.WithError(err).Warn("ignoring unusable stored key set")
		}
	}

	log.Info("updating key set")
	c.fetches.Add(1)
	doc, err := c.opts.get(ctx, "jwks", c.url)
	if err != nil {
		return nil, err
	}
	keys, err := parseKeySet(doc)
	if err != nil {
		return nil, err
	}
	now := c.opts.clock.Now()
	ks := &KeySet{Keys: keys, FetchedAt: now, Expiry: now.Add(c.opts.ttl)}
	if st := c.opts.store; st != nil {
		if err := st.Put(ctx, c.url, doc, ks.Expiry); err != nil {
			log.WithError(err).Warn("key set store write failed")
		}
	}
	return ks, nil
}

// parseKeySet decodes a JWKS document, keeping the published key order.
func parseKeySet(doc []byte) ([]jwk.Key, error) {
	var probe struct {
		Keys *[]json.RawMessage `json:"keys"`
	}
	if err := json.Unmarshal(doc, &probe); err != nil {
		return nil, newErr(KindDecode, "jwks", err)
	}
	if probe.Keys == nil {
		return nil, newErr(KindDecode, "jwks", errors.New("document has no keys member"))
	}
	if len(*probe.Keys) == 0 {
		return nil, newErr(KindNoRemoteKeys, "jwks", nil)
	}
	set, err := jwk.Parse(doc)
	if err != nil {
		return nil, newErr(KindDecode, "jwks", err)
	}
	keys := make([]jwk.Key, 0, set.Len())
	for i := 0; i < set.Len(); i++ {
		if k, ok := set.Key(i); ok {
			keys = append(keys, k)
		}
	}
	return keys, nil
}
