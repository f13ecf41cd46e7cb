// fetch/fetch.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package fetch retrieves tiles over HTTP(S), S3 and GCS with a bounded
// retry budget and a timeout for each attempt.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mmp/trackenrich/log"

	"golang.org/x/time/rate"
)

var (
	// ErrNotFound is returned when the server reports that there is no
	// tile at the URL. It is not retried and is not a failure.
	ErrNotFound = errors.New("tile not found")
	// ErrTransport is matched (via errors.Is) by every *TransportError.
	ErrTransport         = errors.New("tile transport failure")
	ErrTimeout           = errors.New("tile fetch timed out")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

// TransportError is returned by Fetch when a tile could not be retrieved
// after exhausting the retry budget.
type TransportError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *TransportError) Unwrap() []error {
	return []error{ErrTransport, e.Err}
}

// Getter performs a single attempt at retrieving the object at url. It
// returns ErrNotFound if the object doesn't exist.
type Getter interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

type GetterFunc func(ctx context.Context, url string) ([]byte, error)

func (f GetterFunc) Get(ctx context.Context, url string) ([]byte, error) {
	return f(ctx, url)
}

type Options struct {
	// Retries is the number of additional attempts after the first one
	// fails.
	Retries int
	// Timeout bounds each individual attempt; zero means no timeout.
	Timeout time.Duration
	// RetryOnTimeout controls whether an attempt that times out is
	// retried or immediately reported as a transport error.
	RetryOnTimeout bool
	// RetryDelay is the delay before the first retry; the nth retry
	// waits n*RetryDelay.
	RetryDelay time.Duration
	// RequestsPerSecond limits the rate of attempts across all fetches
	// made by a Fetcher; zero means no limit.
	RequestsPerSecond float64
	UserAgent         string
}

func DefaultOptions() Options {
	return Options{
		Retries:        3,
		Timeout:        5 * time.Second,
		RetryOnTimeout: true,
		RetryDelay:     100 * time.Millisecond,
		UserAgent:      "trackenrich/1.0",
	}
}

// Fetcher fetches tiles using the Getter registered for each URL's scheme.
// It is safe for concurrent use.
type Fetcher struct {
	getters map[string]Getter
	opts    Options
	limiter *rate.Limiter
	lg      *log.Logger

	attempts, notFound, failures atomic.Int64
}

type Stats struct {
	Attempts int64
	NotFound int64
	Failures int64
}

// New returns a Fetcher with an HTTP Getter registered for the http and
// https schemes; others can be added with Register.
func New(opts Options, lg *log.Logger) *Fetcher {
	f := &Fetcher{
		getters: make(map[string]Getter),
		opts:    opts,
		lg:      lg,
	}
	if opts.RequestsPerSecond > 0 {
		f.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), max(1, int(opts.RequestsPerSecond)))
	}

	h := NewHTTPGetter(opts.UserAgent)
	f.Register("http", h)
	f.Register("https", h)
	return f
}

// Register sets the Getter used for URLs with the given scheme. It must
// not be called concurrently with Fetch.
func (f *Fetcher) Register(scheme string, g Getter) {
	f.getters[scheme] = g
}

func (f *Fetcher) Getter(scheme string) (Getter, bool) {
	g, ok := f.getters[scheme]
	return g, ok
}

func (f *Fetcher) Schemes() []string {
	var s []string
	for scheme := range f.getters {
		s = append(s, scheme)
	}
	return s
}

// Fetch returns the contents of url. It returns ErrNotFound if there is no
// tile at url and a *TransportError if it could not be retrieved.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	scheme, _, ok := strings.Cut(url, "://")
	g, gok := f.getters[scheme]
	if !ok || !gok {
		f.failures.Add(1)
		return nil, &TransportError{URL: url, Err: fmt.Errorf("%q: %w", scheme, ErrUnsupportedScheme)}
	}

	var lastErr error
	attempts := 0
retry:
	for attempt := 0; attempt <= f.opts.Retries; attempt++ {
		if attempt > 0 && f.opts.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				lastErr = errors.Join(lastErr, ctx.Err())
				break retry
			case <-time.After(time.Duration(attempt) * f.opts.RetryDelay):
			}
		}
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				lastErr = errors.Join(lastErr, err)
				break retry
			}
		}

		attempts++
		f.attempts.Add(1)
		b, err := f.attempt(ctx, g, url)
		if err == nil {
			return b, nil
		} else if errors.Is(err, ErrNotFound) {
			f.notFound.Add(1)
			return nil, err
		}

		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if errors.Is(err, ErrTimeout) && !f.opts.RetryOnTimeout {
			break
		}
		f.lg.Debugf("%s: attempt %d failed: %v", url, attempts, err)
	}

	f.failures.Add(1)
	return nil, &TransportError{URL: url, Attempts: attempts, Err: lastErr}
}

func (f *Fetcher) attempt(ctx context.Context, g Getter, url string) ([]byte, error) {
	actx := ctx
	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	b, err := g.Get(actx, url)
	if err != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s: %w", ErrTimeout, f.opts.Timeout, err)
	}
	return b, err
}

func (f *Fetcher) Stats() Stats {
	return Stats{
		Attempts: f.attempts.Load(),
		NotFound: f.notFound.Load(),
		Failures: f.failures.Load(),
	}
}

// splitObjectURL splits a scheme://bucket/key URL into its bucket and key.
func splitObjectURL(url, scheme string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, scheme+"://")
	if !ok {
		return "", "", fmt.Errorf("%s: not a %s:// URL", url, scheme)
	}
	bucket, key, ok = strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("%s: expected %s://bucket/key", url, scheme)
	}
	return bucket, key, nil
}
