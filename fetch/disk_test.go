// fetch/disk_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"context"
	"errors"
	"testing"
)

func TestDiskCache(t *testing.T) {
	errDown := errors.New("down")
	g := &countingGetter{fn: func(context.Context, int64) ([]byte, error) { return []byte("tile"), nil }}
	d := NewDiskCache(g, t.TempDir(), nil)
	ctx := context.Background()

	for range 3 {
		b, err := d.Get(ctx, "https://example.com/1/2/3.png")
		if err != nil || string(b) != "tile" {
			t.Fatalf("got %q, %v", b, err)
		}
	}
	if n := g.calls.Load(); n != 1 {
		t.Errorf("expected 1 underlying call, got %d", n)
	}

	nf := &countingGetter{fn: func(context.Context, int64) ([]byte, error) { return nil, ErrNotFound }}
	d.Getter = nf
	for range 2 {
		if _, err := d.Get(ctx, "https://example.com/4/5/6.png"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	}
	if n := nf.calls.Load(); n != 1 {
		t.Errorf("expected not-found to be stored; got %d calls", n)
	}

	fail := &countingGetter{fn: func(context.Context, int64) ([]byte, error) { return nil, errDown }}
	d.Getter = fail
	for range 2 {
		if _, err := d.Get(ctx, "https://example.com/7/8/9.png"); !errors.Is(err, errDown) {
			t.Fatalf("expected errDown, got %v", err)
		}
	}
	if n := fail.calls.Load(); n != 2 {
		t.Errorf("expected failures not to be stored; got %d calls", n)
	}

	if err := d.Cull(0); err != nil {
		t.Fatal(err)
	}
	d.Getter = g
	if _, err := d.Get(ctx, "https://example.com/1/2/3.png"); err != nil {
		t.Fatal(err)
	}
	if n := g.calls.Load(); n != 2 {
		t.Errorf("expected culled tile to be fetched again; got %d calls", n)
	}
}
