// tiles/cache.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tiles

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Entry is a cached tile: either a decoded value or a marker recording
// that the tile was fetched and there is no data for it.
type Entry[T any] struct {
	Value  T
	Absent bool
}

func AbsentEntry[T any]() Entry[T] {
	return Entry[T]{Absent: true}
}

func ValueEntry[T any](v T) Entry[T] {
	return Entry[T]{Value: v}
}

// Cache is a size-bounded LRU cache from tile URL to decoded tile. It is
// safe for concurrent use and is meant to be created once and shared by
// all enrichment calls in the process.
type Cache[T any] struct {
	lru      *lru.Cache[string, Entry[T]]
	capacity int
	inflight singleflight.Group

	hits, misses, loads atomic.Int64
}

type CacheStats struct {
	Entries  int
	Capacity int
	Hits     int64
	Misses   int64
	Loads    int64
}

// CapacityForBudget returns the number of entries of entryBytes each that
// fit in budgetBytes, and at least one.
func CapacityForBudget(budgetBytes, entryBytes int64) int {
	if entryBytes <= 0 {
		return 1
	}
	return int(max(1, budgetBytes/entryBytes))
}

func NewCache[T any](capacity int) (*Cache[T], error) {
	l, err := lru.New[string, Entry[T]](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache[T]{lru: l, capacity: capacity}, nil
}

func (c *Cache[T]) Get(url string) (Entry[T], bool) {
	e, ok := c.lru.Get(url)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return e, ok
}

func (c *Cache[T]) Set(url string, e Entry[T]) {
	c.lru.Add(url, e)
}

// Load returns the cached entry for url, calling load to produce it if it
// isn't cached. Concurrent Loads of the same url share a single call to
// load, which runs without the callers' cancellation; a caller whose ctx
// is done stops waiting and gets ctx.Err(), while the others still get the
// result. Entries are only cached when load succeeds; an error (e.g., a
// transport failure) is returned to every waiting caller and the next Load
// tries again.
func (c *Cache[T]) Load(ctx context.Context, url string, load func(context.Context) (Entry[T], error)) (Entry[T], error) {
	if e, ok := c.Get(url); ok {
		return e, nil
	}

	lctx := context.WithoutCancel(ctx)
	ch := c.inflight.DoChan(url, func() (any, error) {
		// Another caller may have finished loading it after our Get.
		if e, ok := c.lru.Peek(url); ok {
			return e, nil
		}

		c.loads.Add(1)
		e, err := load(lctx)
		if err != nil {
			return e, err
		}
		c.lru.Add(url, e)
		return e, nil
	})

	select {
	case r := <-ch:
		return r.Val.(Entry[T]), r.Err
	case <-ctx.Done():
		return Entry[T]{}, ctx.Err()
	}
}

func (c *Cache[T]) Len() int {
	return c.lru.Len()
}

func (c *Cache[T]) Stats() CacheStats {
	return CacheStats{
		Entries:  c.lru.Len(),
		Capacity: c.capacity,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Loads:    c.loads.Load(),
	}
}
