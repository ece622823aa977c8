package bank

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Repository caches a bank with TTL so every quiz start does not re-hit the
// backing store.
type Repository struct {
	loader Loader
	bankID string
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand
	rndMu  sync.Mutex

	mu      sync.RWMutex
	cached  Bank
	expires time.Time
	loaded  bool
}

func NewRepository(loader Loader, bankID string, ttl time.Duration) *Repository {
	return &Repository{
		loader: loader,
		bankID: bankID,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Bank returns the cached bank, reloading through singleflight on expiry.
func (r *Repository) Bank(ctx context.Context) (Bank, error) {
	now := r.clock()

	r.mu.RLock()
	if r.loaded && r.expires.After(now) {
		b := r.cached
		r.mu.RUnlock()
		return b, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(r.bankID, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.loaded && r.expires.After(now) {
			b := r.cached
			r.mu.RUnlock()
			return b, nil
		}
		r.mu.RUnlock()

		b, err := r.loader.LoadBank(ctx, r.bankID)
		if err != nil {
			return Bank{}, err
		}

		r.mu.Lock()
		r.cached = b
		r.expires = now.Add(r.ttlWithJitter())
		r.loaded = true
		r.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return Bank{}, err
	}
	return result.(Bank), nil
}

func (r *Repository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
