package query

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"
)

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = errors.New("query cache closed")

// Fetcher loads the value for one key.
type Fetcher[T any] func(ctx context.Context) (T, error)

// Options tune a single query.
type Options struct {
	// Disabled defers the fetch. Cached data is still returned.
	Disabled bool
	// StaleTime bounds freshness by age. Zero means fresh until invalidated.
	StaleTime time.Duration
	// RefetchInterval polls while an observer is mounted. Zero disables polling.
	RefetchInterval time.Duration
}

// Result is the view of one key handed to callers.
type Result[T any] struct {
	Data      T
	HasData   bool
	Err       error
	Stale     bool
	Disabled  bool
	UpdatedAt time.Time
}

type entry struct {
	key       Key
	value     any
	hasValue  bool
	err       error
	stale     bool
	gen       uint64
	valueGen  uint64
	fetchedAt time.Time
}

// refetcher is implemented by observers so invalidation can wake them.
type refetcher interface {
	invalidated()
}

// Config wires a Cache.
type Config struct {
	Logger *log.Logger
	Now    func() time.Time
}

// Cache is a process-wide store of query results keyed by Key. All state
// transitions happen under one mutex, so readers observe either the state
// before a mutation or the state after its invalidations, never a mix.
type Cache struct {
	mu        sync.Mutex
	entries   map[string]*entry
	observers map[string]map[refetcher]struct{}
	group     singleflight.Group
	logger    *log.Logger
	now       func() time.Time
	closed    bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// New creates an empty cache. Call Close at shutdown.
func New(cfg Config) *Cache {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Cache{
		entries:   make(map[string]*entry),
		observers: make(map[string]map[refetcher]struct{}),
		logger:    logger,
		now:       now,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Close stops every observer and poller and waits for background refetches.
func (c *Cache) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.cancel()
	c.wg.Wait()
	return nil
}

// Invalidate marks every cached key that starts with one of keys as stale,
// atomically, and wakes observers of the affected keys.
func (c *Cache) Invalidate(keys ...Key) {
	c.mu.Lock()
	var woken []refetcher
	for id, e := range c.entries {
		if !matchesAny(e.key, keys) {
			continue
		}
		e.stale = true
		e.gen++
		for o := range c.observers[id] {
			woken = append(woken, o)
		}
	}
	c.mu.Unlock()
	c.logger.Debug("invalidate", "keys", fmt.Sprint(keys), "observers", len(woken))
	for _, o := range woken {
		o.invalidated()
	}
}

// IsStale reports whether key has been invalidated since its last fetch.
// Unknown keys are stale.
func (c *Cache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return true
	}
	return c.staleLocked(e, Options{})
}

// Keys returns the keys currently held, for diagnostics.
func (c *Cache) Keys() []Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Key, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.key)
	}
	return out
}

func matchesAny(k Key, prefixes []Key) bool {
	for _, p := range prefixes {
		if k.HasPrefix(p) {
			return true
		}
	}
	return false
}

func (c *Cache) staleLocked(e *entry, opts Options) bool {
	if e.stale || !e.hasValue {
		return true
	}
	return opts.StaleTime > 0 && c.now().Sub(e.fetchedAt) >= opts.StaleTime
}

func (c *Cache) entryLocked(key Key) *entry {
	id := key.id()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[id] = e
	}
	return e
}

// spawn runs fn in the background unless the cache is closed.
func (c *Cache) spawn(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

func snapshot[T any](e *entry, stale bool) Result[T] {
	res := Result[T]{Err: e.err, Stale: stale, UpdatedAt: e.fetchedAt}
	if e.hasValue {
		if v, ok := e.value.(T); ok {
			res.Data = v
			res.HasData = true
		}
	}
	return res
}

// Peek returns the cached result for key without fetching.
func Peek[T any](c *Cache, key Key) (Result[T], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key.id()]
	if !ok {
		return Result[T]{}, false
	}
	return snapshot[T](e, c.staleLocked(e, Options{})), true
}

// SetData seeds or replaces the cached value for key and marks it fresh.
func SetData[T any](c *Cache, key Key, v T) {
	c.mu.Lock()
	e := c.entryLocked(key)
	e.value = v
	e.hasValue = true
	e.valueGen = e.gen
	e.err = nil
	e.stale = false
	e.fetchedAt = c.now()
	c.mu.Unlock()
}

// Query returns the cached value for key when it is fresh and otherwise
// fetches it. Concurrent callers for the same key share one fetch. A failed
// fetch keeps the last good value and returns the error.
func Query[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options) (Result[T], error) {
	return run(ctx, c, key, fetch, opts, false)
}

// Refetch fetches key even when the cached value is fresh.
func Refetch[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options) (Result[T], error) {
	return run(ctx, c, key, fetch, opts, true)
}

func run[T any](ctx context.Context, c *Cache, key Key, fetch Fetcher[T], opts Options, force bool) (Result[T], error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result[T]{}, ErrClosed
	}
	e := c.entryLocked(key)
	stale := c.staleLocked(e, opts)
	if opts.Disabled {
		res := snapshot[T](e, stale)
		res.Disabled = true
		c.mu.Unlock()
		return res, nil
	}
	if !stale && !force {
		res := snapshot[T](e, false)
		c.mu.Unlock()
		return res, nil
	}
	gen := e.gen
	c.mu.Unlock()

	// One flight per key and generation. A forced caller only skips the
	// freshness check; it joins whatever fetch is already running.
	flight := fmt.Sprintf("%s#%d", key.id(), gen)
	// Late results still populate the cache, so the fetch outlives the caller.
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := c.group.Do(flight, func() (any, error) {
		if !force {
			// a flight that settled between our check and Do may have filled the key
			c.mu.Lock()
			e := c.entryLocked(key)
			if !c.staleLocked(e, opts) {
				v := e.value
				c.mu.Unlock()
				return v, nil
			}
			c.mu.Unlock()
		}
		c.logger.Debug("fetch", "key", key.String(), "gen", gen)
		data, err := fetch(fetchCtx)
		c.store(key, gen, data, err)
		return data, err
	})

	c.mu.Lock()
	e = c.entryLocked(key)
	res := snapshot[T](e, c.staleLocked(e, opts))
	c.mu.Unlock()
	if err != nil {
		res.Err = err
		return res, err
	}
	if data, ok := v.(T); ok {
		res.Data = data
		res.HasData = true
	}
	return res, nil
}

// store records a fetch that started at generation gen. A fetch that began
// before an invalidation stores its data but leaves the key stale.
func (c *Cache) store(key Key, gen uint64, data any, err error) {
	c.mu.Lock()
	e := c.entryLocked(key)
	if err != nil {
		e.err = err
		c.mu.Unlock()
		c.logger.Warn("fetch failed", "key", key.String(), "err", err)
		return
	}
	if e.hasValue && gen < e.valueGen {
		// a newer generation already landed
		c.mu.Unlock()
		return
	}
	e.value = data
	e.hasValue = true
	e.valueGen = gen
	e.err = nil
	e.fetchedAt = c.now()
	if e.gen == gen {
		e.stale = false
	}
	observers := make([]refetcher, 0, len(c.observers[key.id()]))
	for o := range c.observers[key.id()] {
		observers = append(observers, o)
	}
	c.mu.Unlock()
	for _, o := range observers {
		if n, ok := o.(notifier); ok {
			n.notify()
		}
	}
}

type notifier interface {
	notify()
}

// Mutate runs fn and, only when it succeeds, invalidates every key in
// invalidates as one atomic step. Mutations are neither coalesced nor
// serialized.
func Mutate[T any](ctx context.Context, c *Cache, fn func(ctx context.Context) (T, error), invalidates ...Key) (T, error) {
	out, err := fn(ctx)
	if err != nil {
		return out, err
	}
	c.Invalidate(invalidates...)
	return out, nil
}
