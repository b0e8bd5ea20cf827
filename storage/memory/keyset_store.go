package memorystore

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	oidckit "github.com/PaulFidika/oidcverify/oidc"
)

var _ oidckit.KeySetStore = (*KeySetStore)(nil)

// KeySetStore is an in-memory implementation of oidckit.KeySetStore. Entries
// expire at the time given to Put, read against the store's clock, which must
// be the clock of the caches sharing it.
type KeySetStore struct {
	clock  clockwork.Clock
	mu     sync.Mutex
	data   map[string]item
	closed chan struct{}
	once   sync.Once
}

type item struct {
	doc []byte
	exp time.Time
}

// Option configures a KeySetStore.
type Option func(*KeySetStore)

// WithClock sets the time source used for expiry (default: real clock).
func WithClock(c clockwork.Clock) Option {
	return func(s *KeySetStore) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewKeySetStore creates a new in-memory key-set store.
// Starts a background goroutine to clean up expired entries every minute.
func NewKeySetStore(opts ...Option) *KeySetStore {
	s := &KeySetStore{clock: clockwork.NewRealClock(), data: make(map[string]item), closed: make(chan struct{})}
	for _, opt := range opts {
		opt(s)
	}
	go s.cleanupLoop()
	return s
}

func (s *KeySetStore) Put(ctx context.Context, jwksURL string, doc []byte, expiry time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[jwksURL] = item{doc: append([]byte(nil), doc...), exp: expiry}
	return nil
}

func (s *KeySetStore) Get(ctx context.Context, jwksURL string) ([]byte, time.Time, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.data[jwksURL]
	if !ok {
		return nil, time.Time{}, false, nil
	}
	if !s.clock.Now().Before(it.exp) {
		delete(s.data, jwksURL)
		return nil, time.Time{}, false, nil
	}
	return it.doc, it.exp, true, nil
}

// Len returns the number of stored documents, expired ones included.
func (s *KeySetStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// cleanupLoop runs in the background and removes expired entries every minute.
func (s *KeySetStore) cleanupLoop() {
	ticker := s.clock.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			s.cleanup(s.clock.Now())
		case <-s.closed:
			return
		}
	}
}

// cleanup removes all entries expired at now.
func (s *KeySetStore) cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range s.data {
		if !now.Before(v.exp) {
			delete(s.data, k)
		}
	}
}

// Close stops the background cleanup goroutine.
// Should be called when the store is no longer needed.
func (s *KeySetStore) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}
