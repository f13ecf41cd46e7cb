// fetch/http_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"google.golang.org/api/option"
)

func TestHTTPGetter(t *testing.T) {
	var flaky atomic.Int64
	var userAgent atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Write([]byte("tile bytes"))
	})
	mux.HandleFunc("/flaky", func(w http.ResponseWriter, r *http.Request) {
		if flaky.Add(1) <= 2 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("eventually"))
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	opts := testOptions()
	opts.UserAgent = "trackenrich-test"
	f := New(opts, nil)
	ctx := context.Background()

	t.Run("OK", func(t *testing.T) {
		b, err := f.Fetch(ctx, srv.URL+"/ok")
		if err != nil || string(b) != "tile bytes" {
			t.Fatalf("got %q, %v", b, err)
		}
		if ua, _ := userAgent.Load().(string); ua != "trackenrich-test" {
			t.Errorf("User-Agent %q", ua)
		}
	})

	t.Run("NotFound", func(t *testing.T) {
		if _, err := f.Fetch(ctx, srv.URL+"/missing"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Retried", func(t *testing.T) {
		b, err := f.Fetch(ctx, srv.URL+"/flaky")
		if err != nil || string(b) != "eventually" {
			t.Fatalf("got %q, %v", b, err)
		}
		if n := flaky.Load(); n != 3 {
			t.Errorf("expected 3 requests, got %d", n)
		}
	})

	t.Run("ServerError", func(t *testing.T) {
		_, err := f.Fetch(ctx, srv.URL+"/broken")
		var se *StatusError
		if !errors.Is(err, ErrTransport) || !errors.As(err, &se) {
			t.Fatalf("expected transport error wrapping *StatusError, got %v", err)
		}
		if se.StatusCode != http.StatusInternalServerError {
			t.Errorf("status %d", se.StatusCode)
		}
	})
}

func TestS3Getter(t *testing.T) {
	var brokenHits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tiles/broken.png":
			brokenHits.Add(1)
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
				`<Error><Code>InternalError</Code><Message>We encountered an internal error.</Message></Error>`))
		case "/tiles/terrarium/10/1/2.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte("png"))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
				`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	g, err := NewS3Getter(ctx, S3Config{Region: "us-east-1", Endpoint: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	b, err := g.Get(ctx, "s3://tiles/terrarium/10/1/2.png")
	if err != nil || string(b) != "png" {
		t.Fatalf("got %q, %v", b, err)
	}

	if _, err := g.Get(ctx, "s3://tiles/terrarium/10/9/9.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Each Fetcher attempt is a single request; the SDK doesn't retry on
	// its own.
	for _, retries := range []int{0, 2} {
		brokenHits.Store(0)
		opts := testOptions()
		opts.Retries = retries
		f := New(opts, nil)
		f.Register("s3", g)

		_, err := f.Fetch(ctx, "s3://tiles/broken.png")
		if !errors.Is(err, ErrTransport) {
			t.Errorf("retries %d: expected transport error, got %v", retries, err)
		}
		if n := brokenHits.Load(); n != int64(retries+1) {
			t.Errorf("retries %d: server saw %d requests, expected %d", retries, n, retries+1)
		}
	}
}

func TestGCSGetterSingleRequest(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "backend error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g, err := newGCSGetter(ctx, option.WithoutAuthentication(), option.WithEndpoint(srv.URL+"/storage/v1/"))
	if err != nil {
		t.Fatal(err)
	}
	defer g.Close()

	if _, err := g.Get(ctx, "gs://tiles/terrarium/10/1/2.png"); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected a server error, got %v", err)
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("server saw %d requests, expected 1", n)
	}
}
