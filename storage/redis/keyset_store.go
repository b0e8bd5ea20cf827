package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"
	oidckit "github.com/PaulFidika/oidcverify/oidc"
	"github.com/redis/go-redis/v9"
)

var _ oidckit.KeySetStore = (*KeySetStore)(nil)

// KeySetStore keeps raw JWKS documents in Redis so replicas share one fetch
// per issuer and TTL window.
type KeySetStore struct {
	rdb   redis.UniversalClient
	keyNS string
	clock clockwork.Clock
}

// Option configures a KeySetStore.
type Option func(*KeySetStore)

// WithClock sets the time source the Redis TTL is derived from. It must be
// the clock of the caches sharing the store (default: real clock).
func WithClock(c clockwork.Clock) Option {
	return func(s *KeySetStore) {
		if c != nil {
			s.clock = c
		}
	}
}

type storedKeySet struct {
	Doc    json.RawMessage `json:"doc"`
	Expiry time.Time       `json:"expiry"`
}

func NewKeySetStore(rdb redis.UniversalClient, keyPrefix string, opts ...Option) *KeySetStore {
	if keyPrefix == "" {
		keyPrefix = "auth:oidc:jwks:"
	}
	s := &KeySetStore{rdb: rdb, keyNS: keyPrefix, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KeySetStore) key(jwksURL string) string { return s.keyNS + jwksURL }

// Put stores doc until expiry. Already expired documents are not written.
func (s *KeySetStore) Put(ctx context.Context, jwksURL string, doc []byte, expiry time.Time) error {
	ttl := expiry.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(storedKeySet{Doc: doc, Expiry: expiry})
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.key(jwksURL), b, ttl).Err()
}

func (s *KeySetStore) Get(ctx context.Context, jwksURL string) ([]byte, time.Time, bool, error) {
	val, err := s.rdb.Get(ctx, s.key(jwksURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, err
	}
	var d storedKeySet
	if err := json.Unmarshal(val, &d); err != nil {
		return nil, time.Time{}, false, err
	}
	return d.Doc, d.Expiry, true, nil
}

// Del drops the stored document so the next refresh goes to the network.
func (s *KeySetStore) Del(ctx context.Context, jwksURL string) error {
	return s.rdb.Del(ctx, s.key(jwksURL)).Err()
}
