// tiles/cache_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tiles

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCapacityForBudget(t *testing.T) {
	if c := CapacityForBudget(160<<20, 256*256*4); c != 640 {
		t.Errorf("got %d, expected 640", c)
	}
	if c := CapacityForBudget(10, 100); c != 1 {
		t.Errorf("got %d, expected 1", c)
	}
	if c := CapacityForBudget(10, 0); c != 1 {
		t.Errorf("got %d, expected 1", c)
	}
}

func TestCacheEviction(t *testing.T) {
	c, err := NewCache[int](2)
	if err != nil {
		t.Fatal(err)
	}

	c.Set("a", ValueEntry(1))
	c.Set("b", ValueEntry(2))
	c.Get("a") // a is now most recently used
	c.Set("c", AbsentEntry[int]())

	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if e, ok := c.Get("a"); !ok || e.Value != 1 || e.Absent {
		t.Errorf("a: got %+v, %v", e, ok)
	}
	if e, ok := c.Get("c"); !ok || !e.Absent {
		t.Errorf("c: expected absent entry, got %+v, %v", e, ok)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 entries, got %d", c.Len())
	}
}

func TestCacheLoadDeduplicates(t *testing.T) {
	c, err := NewCache[string](16)
	if err != nil {
		t.Fatal(err)
	}

	var calls atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (Entry[string], error) {
		calls.Add(1)
		<-release
		return ValueEntry("tile"), nil
	}

	var wg sync.WaitGroup
	results := make([]Entry[string], 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := c.Load(context.Background(), "u", load)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results[i] = e
		}()
	}

	// Give the goroutines a chance to pile up behind the first load.
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	// Goroutines that arrived after the load finished hit the cache
	// instead, so in every case there is a single load.
	if n := calls.Load(); n != 1 {
		t.Errorf("expected 1 load, got %d", n)
	}
	for i, e := range results {
		if e.Value != "tile" {
			t.Errorf("result %d: got %+v", i, e)
		}
	}
}

func TestCacheLoadCancelIsPerCaller(t *testing.T) {
	c, err := NewCache[string](16)
	if err != nil {
		t.Fatal(err)
	}

	started, release := make(chan struct{}), make(chan struct{})
	var loadCtxErr error
	load := func(ctx context.Context) (Entry[string], error) {
		close(started)
		<-release
		loadCtxErr = ctx.Err()
		return ValueEntry("tile"), nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Load(ctxA, "u", load)
		errA <- err
	}()
	<-started

	type result struct {
		e   Entry[string]
		err error
	}
	resB := make(chan result, 1)
	go func() {
		e, err := c.Load(context.Background(), "u", func(context.Context) (Entry[string], error) {
			t.Error("unexpected second load")
			return Entry[string]{}, nil
		})
		resB <- result{e, err}
	}()
	// Let the second caller join the in-flight load.
	time.Sleep(20 * time.Millisecond)

	cancelA()
	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller: expected context.Canceled, got %v", err)
	}

	close(release)
	r := <-resB
	if r.err != nil || r.e.Value != "tile" {
		t.Errorf("other caller: got %+v, %v", r.e, r.err)
	}
	if loadCtxErr != nil {
		t.Errorf("shared load saw %v", loadCtxErr)
	}
	if e, ok := c.Get("u"); !ok || e.Value != "tile" {
		t.Errorf("expected the tile to be cached, got %+v, %v", e, ok)
	}
}

func TestCacheLoadErrorNotCached(t *testing.T) {
	c, err := NewCache[int](16)
	if err != nil {
		t.Fatal(err)
	}

	errTransport := errors.New("connection reset")
	n := 0
	load := func(ctx context.Context) (Entry[int], error) {
		n++
		if n == 1 {
			return Entry[int]{}, errTransport
		}
		return ValueEntry(n), nil
	}

	if _, err := c.Load(context.Background(), "u", load); !errors.Is(err, errTransport) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if _, ok := c.Get("u"); ok {
		t.Fatal("failed load should not be cached")
	}

	e, err := c.Load(context.Background(), "u", load)
	if err != nil || e.Value != 2 {
		t.Errorf("got %+v, %v; expected value 2", e, err)
	}
	e, err = c.Load(context.Background(), "u", load)
	if err != nil || e.Value != 2 || n != 2 {
		t.Errorf("expected cached value without another load; got %+v, %v after %d loads", e, err, n)
	}
}

func TestCacheStats(t *testing.T) {
	c, err := NewCache[int](4)
	if err != nil {
		t.Fatal(err)
	}
	for i := range 3 {
		c.Load(context.Background(), strconv.Itoa(i%2), func(context.Context) (Entry[int], error) {
			return ValueEntry(i), nil
		})
	}

	s := c.Stats()
	if s.Entries != 2 || s.Capacity != 4 || s.Loads != 2 || s.Hits != 1 || s.Misses != 2 {
		t.Errorf("unexpected stats %+v", s)
	}
}

func TestNewCacheInvalidCapacity(t *testing.T) {
	if _, err := NewCache[int](0); err == nil {
		t.Error("expected error for zero capacity")
	}
}
