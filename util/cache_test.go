// util/cache_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

type cachedTile struct {
	Absent bool
	Data   []byte
}

func TestObjectCacheStoreRetrieve(t *testing.T) {
	c := ObjectCache{Dir: t.TempDir()}

	in := cachedTile{Data: []byte{1, 2, 3, 4}}
	if err := c.Store("10/1/2.tile", in); err != nil {
		t.Fatalf("Store: %v", err)
	}

	var out cachedTile
	if _, err := c.Retrieve("10/1/2.tile", &out); err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if out.Absent != in.Absent || !slices.Equal(out.Data, in.Data) {
		t.Errorf("got %+v, want %+v", out, in)
	}

	if _, err := c.Retrieve("missing", &out); !os.IsNotExist(err) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}

func TestObjectCacheCull(t *testing.T) {
	dir := t.TempDir()
	c := ObjectCache{Dir: dir}

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = byte(i * 31)
	}
	names := []string{"a", "b", "c"}
	for i, n := range names {
		if err := c.Store(n, cachedTile{Data: payload}); err != nil {
			t.Fatal(err)
		}
		mt := time.Now().Add(time.Duration(i-10) * time.Minute)
		if err := os.Chtimes(filepath.Join(dir, n), mt, mt); err != nil {
			t.Fatal(err)
		}
	}

	fi, err := os.Stat(filepath.Join(dir, "c"))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Cull(fi.Size()); err != nil {
		t.Fatalf("Cull: %v", err)
	}

	for _, n := range []string{"a", "b"} {
		if _, err := os.Stat(filepath.Join(dir, n)); !os.IsNotExist(err) {
			t.Errorf("%s: expected oldest file to be culled", n)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "c")); err != nil {
		t.Errorf("newest file was culled: %v", err)
	}
}

func TestObjectCacheCullMissingDir(t *testing.T) {
	c := ObjectCache{Dir: filepath.Join(t.TempDir(), "nope")}
	if err := c.Cull(0); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
