package query

import (
	"context"
	"sync"
	"time"
)

// Observer is a mounted query. It refetches its key after invalidation and,
// with a RefetchInterval, on a ticker until closed.
type Observer[T any] struct {
	cache   *Cache
	key     Key
	fetch   Fetcher[T]
	opts    Options
	updates chan struct{}

	mu     sync.Mutex
	latest Result[T]
	cancel context.CancelFunc
	done   chan struct{}
}

// Observe mounts key. The initial fetch and any polling run in the
// background; read Updates for change notifications.
func Observe[T any](c *Cache, key Key, fetch Fetcher[T], opts Options) *Observer[T] {
	o := &Observer[T]{
		cache:   c,
		key:     append(Key(nil), key...),
		fetch:   fetch,
		opts:    opts,
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	c.mu.Lock()
	id := o.key.id()
	if c.observers[id] == nil {
		c.observers[id] = make(map[refetcher]struct{})
	}
	c.observers[id][o] = struct{}{}
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(c.ctx)
	o.cancel = cancel
	started := c.spawn(func(context.Context) {
		defer close(o.done)
		o.loop(ctx)
	})
	if !started {
		cancel()
		close(o.done)
	}
	return o
}

func (o *Observer[T]) loop(ctx context.Context) {
	o.refresh(ctx, false)
	if o.opts.RefetchInterval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(o.opts.RefetchInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.refresh(ctx, true)
		}
	}
}

func (o *Observer[T]) refresh(ctx context.Context, force bool) {
	if ctx.Err() != nil {
		return
	}
	res, _ := run(ctx, o.cache, o.key, o.fetch, o.opts, force)
	o.mu.Lock()
	o.latest = res
	o.mu.Unlock()
	o.notify()
}

func (o *Observer[T]) invalidated() {
	if o.opts.Disabled {
		return
	}
	o.cache.spawn(func(ctx context.Context) {
		select {
		case <-o.done:
			return
		default:
		}
		o.refresh(ctx, false)
	})
}

func (o *Observer[T]) notify() {
	if cached, ok := Peek[T](o.cache, o.key); ok {
		o.mu.Lock()
		if cached.HasData || cached.Err != nil {
			o.latest.Data = cached.Data
			o.latest.HasData = cached.HasData
			o.latest.Stale = cached.Stale
			o.latest.UpdatedAt = cached.UpdatedAt
			o.latest.Err = cached.Err
		}
		o.mu.Unlock()
	}
	select {
	case o.updates <- struct{}{}:
	default:
	}
}

// Updates signals after each settled fetch for the key.
func (o *Observer[T]) Updates() <-chan struct{} {
	return o.updates
}

// Result returns the latest known state of the key.
func (o *Observer[T]) Result() Result[T] {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.latest
}

// Refetch fetches now, regardless of freshness.
func (o *Observer[T]) Refetch(ctx context.Context) (Result[T], error) {
	res, err := Refetch(ctx, o.cache, o.key, o.fetch, o.opts)
	o.mu.Lock()
	o.latest = res
	o.mu.Unlock()
	return res, err
}

// Close unmounts the observer and stops its polling.
func (o *Observer[T]) Close() {
	o.cache.mu.Lock()
	if set := o.cache.observers[o.key.id()]; set != nil {
		delete(set, o)
		if len(set) == 0 {
			delete(o.cache.observers, o.key.id())
		}
	}
	o.cache.mu.Unlock()
	o.cancel()
	<-o.done
}
