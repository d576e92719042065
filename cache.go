package mimir

import (
	"context"
	"time"

	"github.com/yiplee/go-cache"
	"golang.org/x/sync/singleflight"
)

type cached[T any] struct {
	value T
	at    time.Time
}

// CachedSource memoizes an AccountSource for ttl and collapses concurrent
// lookups of the same key. Errors are never cached.
type CachedSource struct {
	src AccountSource
	ttl time.Duration
	sf  singleflight.Group

	multisigs *cache.Cache[string, cached[*MultisigInfo]]
	proxies   *cache.Cache[string, cached[[]ProxyEdge]]
	pures     *cache.Cache[string, cached[*PureInfo]]
}

func NewCachedSource(src AccountSource, ttl time.Duration) *CachedSource {
	return &CachedSource{
		src:       src,
		ttl:       ttl,
		multisigs: cache.New[string, cached[*MultisigInfo]](),
		proxies:   cache.New[string, cached[[]ProxyEdge]](),
		pures:     cache.New[string, cached[*PureInfo]](),
	}
}

func cacheKey(kind, network string, addr Address) string {
	return kind + ":" + network + ":" + addr.Hex()
}

// lookup serves key from store or runs fn once for all concurrent callers.
// The shared call is detached from the caller's cancellation, a caller
// that gives up only stops waiting for it.
func lookup[T any](ctx context.Context, s *CachedSource, store *cache.Cache[string, cached[T]], key string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if v, ok := store.Get(key); ok {
		if time.Since(v.at) < s.ttl {
			return v.value, nil
		}

		store.Delete(key)
	}

	shared := context.WithoutCancel(ctx)
	ch := s.sf.DoChan(key, func() (any, error) {
		value, err := fn(shared)
		if err != nil {
			return nil, err
		}

		store.Set(key, cached[T]{value: value, at: time.Now()})
		return value, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case r := <-ch:
		if r.Err != nil {
			return zero, r.Err
		}

		return r.Val.(T), nil
	}
}

func purge[T any](store *cache.Cache[string, cached[T]], ttl time.Duration) int {
	var stale []string
	store.Each(func(key string, v cached[T]) bool {
		if time.Since(v.at) >= ttl {
			stale = append(stale, key)
		}

		return true
	})

	for _, key := range stale {
		store.Delete(key)
	}

	return len(stale)
}

// Purge drops every entry older than the ttl and reports how many went.
func (s *CachedSource) Purge() int {
	return purge(s.multisigs, s.ttl) + purge(s.proxies, s.ttl) + purge(s.pures, s.ttl)
}

func (s *CachedSource) Multisig(ctx context.Context, network string, addr Address) (*MultisigInfo, error) {
	return lookup(ctx, s, s.multisigs, cacheKey("m", network, addr), func(ctx context.Context) (*MultisigInfo, error) {
		return s.src.Multisig(ctx, network, addr)
	})
}

func (s *CachedSource) Proxies(ctx context.Context, network string, addr Address) ([]ProxyEdge, error) {
	return lookup(ctx, s, s.proxies, cacheKey("p", network, addr), func(ctx context.Context) ([]ProxyEdge, error) {
		return s.src.Proxies(ctx, network, addr)
	})
}

func (s *CachedSource) Pure(ctx context.Context, network string, addr Address) (*PureInfo, error) {
	return lookup(ctx, s, s.pures, cacheKey("u", network, addr), func(ctx context.Context) (*PureInfo, error) {
		return s.src.Pure(ctx, network, addr)
	})
}
