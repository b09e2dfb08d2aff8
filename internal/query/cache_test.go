package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingFetcher struct {
	calls atomic.Int32
	value atomic.Value
	err   atomic.Value
}

func newCountingFetcher(v string) *countingFetcher {
	f := &countingFetcher{}
	f.value.Store(v)
	return f
}

func (f *countingFetcher) fetch(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if e, ok := f.err.Load().(error); ok && e != nil {
		return "", e
	}
	return f.value.Load().(string), nil
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestKeyPrefix(t *testing.T) {
	tasks := K("projects", "p1", "tasks")
	if !tasks.HasPrefix(K("projects")) || !tasks.HasPrefix(K("projects", "p1")) {
		t.Fatalf("expected prefix match")
	}
	if tasks.HasPrefix(K("projects", "p2")) {
		t.Fatalf("different project must not match")
	}
	if K("tasks", "t1").HasPrefix(K("projects", "p1", "tasks")) {
		t.Fatalf("task key must not match project task list")
	}
	if !tasks.Equal(K("projects", "p1", "tasks")) || tasks.Equal(K("projects", "p1")) {
		t.Fatalf("equality mismatch")
	}
}

func TestQueryCachesUntilInvalidated(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	ctx := context.Background()
	f := newCountingFetcher("v1")
	key := K("projects", "p1")

	for i := 0; i < 3; i++ {
		res, err := Query(ctx, c, key, f.fetch, Options{})
		if err != nil || res.Data != "v1" {
			t.Fatalf("query: %v %+v", err, res)
		}
	}
	if n := f.calls.Load(); n != 1 {
		t.Fatalf("expected 1 fetch, got %d", n)
	}

	f.value.Store("v2")
	c.Invalidate(K("projects"))
	if !c.IsStale(key) {
		t.Fatalf("expected stale after prefix invalidation")
	}
	res, err := Query(ctx, c, key, f.fetch, Options{})
	if err != nil || res.Data != "v2" || res.Stale {
		t.Fatalf("refetch: %v %+v", err, res)
	}
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestInvalidateOnlyTouchesPrefixedKeys(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	for _, k := range []Key{
		K("projects", "p1", "tasks"),
		K("projects", "p2", "tasks"),
		K("tasks", "t1"),
	} {
		SetData(c, k, "x")
	}
	c.Invalidate(K("projects", "p1", "tasks"))
	if !c.IsStale(K("projects", "p1", "tasks")) {
		t.Fatalf("p1 tasks should be stale")
	}
	if c.IsStale(K("projects", "p2", "tasks")) {
		t.Fatalf("p2 tasks should stay fresh")
	}
	if c.IsStale(K("tasks", "t1")) {
		t.Fatalf("task key should stay fresh")
	}
}

func TestFetchStartedBeforeInvalidationStaysStale(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	key := K("projects", "p1", "tasks")
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (string, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
			return "old", nil
		}
		return "new", nil
	}

	done := make(chan Result[string], 1)
	go func() {
		res, _ := Query(context.Background(), c, key, fetch, Options{})
		done <- res
	}()
	<-started
	c.Invalidate(K("projects", "p1"))
	close(release)
	res := <-done
	if res.Data != "old" {
		t.Fatalf("in-flight caller should receive its data, got %q", res.Data)
	}
	if !res.Stale || !c.IsStale(key) {
		t.Fatalf("key must stay stale after a pre-invalidation fetch")
	}
	res, err := Query(context.Background(), c, key, fetch, Options{})
	if err != nil || res.Data != "new" || res.Stale {
		t.Fatalf("expected fresh refetch, got %v %+v", err, res)
	}
}

func TestConcurrentQueriesShareOneFetch(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	key := K("tasks", "t1")
	release := make(chan struct{})
	var calls atomic.Int32
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		<-release
		return "task", nil
	}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := Query(context.Background(), c, key, fetch, Options{})
			if err != nil || res.Data != "task" {
				t.Errorf("query: %v %+v", err, res)
			}
		}()
	}
	waitFor(t, "first fetch", func() bool { return calls.Load() == 1 })
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected a single fetch, got %d", n)
	}
}

func TestFailedFetchKeepsLastGoodData(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	ctx := context.Background()
	key := K("projects")
	f := newCountingFetcher("good")
	if _, err := Query(ctx, c, key, f.fetch, Options{}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	boom := errors.New("boom")
	f.err.Store(boom)
	c.Invalidate(key)
	res, err := Query(ctx, c, key, f.fetch, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if !res.HasData || res.Data != "good" || !errors.Is(res.Err, boom) {
		t.Fatalf("expected last good data with error, got %+v", res)
	}
}

func TestDisabledQueryDoesNotFetch(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	f := newCountingFetcher("tree")
	res, err := Query(context.Background(), c, K("tasks", "t1", "tree"), f.fetch, Options{Disabled: true})
	if err != nil || !res.Disabled || res.HasData {
		t.Fatalf("disabled query: %v %+v", err, res)
	}
	if f.calls.Load() != 0 {
		t.Fatalf("disabled query must not fetch")
	}
}

func TestStaleTimeBoundsFreshness(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := New(Config{Now: clock})
	defer c.Close()
	f := newCountingFetcher("v")
	opts := Options{StaleTime: time.Minute}
	ctx := context.Background()
	_, _ = Query(ctx, c, K("projects"), f.fetch, opts)
	_, _ = Query(ctx, c, K("projects"), f.fetch, opts)
	if f.calls.Load() != 1 {
		t.Fatalf("expected cached value within stale time")
	}
	mu.Lock()
	now = now.Add(2 * time.Minute)
	mu.Unlock()
	_, _ = Query(ctx, c, K("projects"), f.fetch, opts)
	if f.calls.Load() != 2 {
		t.Fatalf("expected refetch after stale time, got %d", f.calls.Load())
	}
}

func TestMutateInvalidatesOnSuccessOnly(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	ctx := context.Background()
	keys := []Key{K("tasks", "t1"), K("projects", "p1", "tasks"), K("projects", "p1")}
	for _, k := range keys {
		SetData(c, k, "x")
	}

	_, err := Mutate(ctx, c, func(ctx context.Context) (string, error) {
		return "", errors.New("rejected")
	}, keys...)
	if err == nil {
		t.Fatalf("expected mutation error")
	}
	for _, k := range keys {
		if c.IsStale(k) {
			t.Fatalf("failed mutation invalidated %s", k)
		}
	}

	out, err := Mutate(ctx, c, func(ctx context.Context) (string, error) {
		return "ok", nil
	}, K("tasks", "t1"), K("projects", "p1", "tasks"))
	if err != nil || out != "ok" {
		t.Fatalf("mutate: %v %q", err, out)
	}
	if !c.IsStale(K("tasks", "t1")) || !c.IsStale(K("projects", "p1", "tasks")) {
		t.Fatalf("declared keys should be stale")
	}
	if c.IsStale(K("projects", "p1")) {
		t.Fatalf("project key was not declared and must stay fresh")
	}
}

func TestObserverRefetchesAfterInvalidation(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	f := newCountingFetcher("v1")
	obs := Observe(c, K("projects"), f.fetch, Options{})
	defer obs.Close()
	waitFor(t, "initial fetch", func() bool { return obs.Result().Data == "v1" })

	f.value.Store("v2")
	c.Invalidate(K("projects"))
	waitFor(t, "refetch", func() bool { return obs.Result().Data == "v2" })
	if n := f.calls.Load(); n != 2 {
		t.Fatalf("expected 2 fetches, got %d", n)
	}
}

func TestObserverPollsUntilClosed(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	f := newCountingFetcher("locks")
	obs := Observe(c, K("projects", "p1", "in-progress"), f.fetch, Options{RefetchInterval: 10 * time.Millisecond})
	waitFor(t, "polling", func() bool { return f.calls.Load() >= 3 })
	obs.Close()
	after := f.calls.Load()
	time.Sleep(50 * time.Millisecond)
	if f.calls.Load() > after+1 {
		t.Fatalf("polling continued after close")
	}
}

func TestCloseStopsEverything(t *testing.T) {
	c := New(Config{})
	f := newCountingFetcher("v")
	_ = Observe(c, K("projects"), f.fetch, Options{RefetchInterval: 5 * time.Millisecond})
	waitFor(t, "first poll", func() bool { return f.calls.Load() >= 1 })
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := Query(context.Background(), c, K("projects"), f.fetch, Options{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestRefetchJoinsQueryInFlight(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	key := K("projects", "p1", "in-progress")
	release := make(chan struct{})
	var calls, inFlight, maxInFlight atomic.Int32
	fetch := func(ctx context.Context) (string, error) {
		calls.Add(1)
		n := inFlight.Add(1)
		for {
			m := maxInFlight.Load()
			if n <= m || maxInFlight.CompareAndSwap(m, n) {
				break
			}
		}
		<-release
		inFlight.Add(-1)
		return "locks", nil
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := Query(context.Background(), c, key, fetch, Options{}); err != nil {
			t.Errorf("query: %v", err)
		}
	}()
	waitFor(t, "query fetch", func() bool { return calls.Load() == 1 })
	go func() {
		defer wg.Done()
		res, err := Refetch(context.Background(), c, key, fetch, Options{})
		if err != nil || res.Data != "locks" {
			t.Errorf("refetch: %v %+v", err, res)
		}
	}()
	time.Sleep(30 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := calls.Load(); n != 1 {
		t.Fatalf("expected one fetch for the key, got %d", n)
	}
	if m := maxInFlight.Load(); m != 1 {
		t.Fatalf("expected at most one fetch in flight, saw %d", m)
	}
}

func TestObserverClearsErrorAfterAnotherCallerSucceeds(t *testing.T) {
	c := New(Config{})
	defer c.Close()
	key := K("projects", "p1", "in-progress")
	boom := errors.New("boom")
	var mu sync.Mutex
	failing := false
	fetch := func(ctx context.Context) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return "", boom
		}
		return "locks", nil
	}
	obs := Observe(c, key, fetch, Options{})
	defer obs.Close()
	waitFor(t, "initial fetch", func() bool { return obs.Result().Data == "locks" })

	mu.Lock()
	failing = true
	mu.Unlock()
	c.Invalidate(key)
	waitFor(t, "failed refresh", func() bool { return errors.Is(obs.Result().Err, boom) })

	mu.Lock()
	failing = false
	mu.Unlock()
	if _, err := Refetch(context.Background(), c, key, fetch, Options{}); err != nil {
		t.Fatalf("refetch: %v", err)
	}
	waitFor(t, "error cleared", func() bool { return obs.Result().Err == nil })
	if res := obs.Result(); res.Data != "locks" || !res.HasData {
		t.Fatalf("observer result: %+v", res)
	}
}
