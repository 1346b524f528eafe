package rbac

import (
	"context"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// BindingSource loads role bindings from persistent storage.
type BindingSource interface {
	LoadBindings(ctx context.Context) (Bindings, error)
}

// CacheOption configures a BindingCache.
type CacheOption func(*BindingCache)

// WithSharedGeneration makes the cache reload whenever shared moves, so
// provisioning in another process reaches this one.
func WithSharedGeneration(shared Generation) CacheOption {
	return func(c *BindingCache) {
		c.shared = shared
	}
}

type snapshot struct {
	bindings Bindings
	shared   uint64
}

// BindingCache holds the process-wide role → permission snapshot. It is
// populated lazily on first use and dropped by Invalidate or by a change of
// the shared generation; readers never lock.
type BindingCache struct {
	source     BindingSource
	shared     Generation
	group      singleflight.Group
	snapshot   atomic.Pointer[snapshot]
	generation atomic.Uint64
	loads      atomic.Uint64
}

// NewBindingCache constructs an empty cache over source.
func NewBindingCache(source BindingSource, opts ...CacheOption) *BindingCache {
	c := &BindingCache{source: source}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached bindings, loading them if needed. Concurrent callers
// share a single load.
func (c *BindingCache) Get(ctx context.Context) (Bindings, error) {
	shared, err := c.sharedGeneration(ctx)
	if err != nil {
		return nil, err
	}
	if s := c.snapshot.Load(); s != nil && s.shared == shared {
		return s.bindings, nil
	}
	gen := c.generation.Load()
	key := strconv.FormatUint(gen, 10) + "/" + strconv.FormatUint(shared, 10)
	ch := c.group.DoChan(key, func() (any, error) {
		c.loads.Add(1)
		// Detached so one caller's cancellation does not fail the others.
		b, err := c.source.LoadBindings(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		// A load that raced with Invalidate is returned but not kept.
		if c.generation.Load() == gen {
			c.snapshot.Store(&snapshot{bindings: b, shared: shared})
		}
		return b, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Bindings), nil
	}
}

// Invalidate drops the local snapshot so the next Get reloads.
func (c *BindingCache) Invalidate() {
	c.generation.Add(1)
	c.snapshot.Store(nil)
}

// Publish invalidates this cache and bumps the shared generation so caches
// in other processes reload too. Call it after the bindings committed.
func (c *BindingCache) Publish(ctx context.Context) error {
	c.Invalidate()
	if c.shared == nil {
		return nil
	}
	_, err := c.shared.Bump(ctx)
	return err
}

// Loads reports how many times the source was queried.
func (c *BindingCache) Loads() uint64 {
	return c.loads.Load()
}

func (c *BindingCache) sharedGeneration(ctx context.Context) (uint64, error) {
	if c.shared == nil {
		return 0, nil
	}
	return c.shared.Current(ctx)
}
