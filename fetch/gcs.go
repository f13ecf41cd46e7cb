// fetch/gcs.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSGetter retrieves gs://bucket/object URLs.
type GCSGetter struct {
	client *storage.Client
}

// NewGCSGetter returns a GCSGetter authenticated with the service account
// credentials in credentialsFile, or an unauthenticated one for public
// buckets if credentialsFile is empty.
func NewGCSGetter(ctx context.Context, credentialsFile string) (*GCSGetter, error) {
	if credentialsFile == "" {
		return newGCSGetter(ctx, option.WithoutAuthentication())
	}

	credsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("gcs: %w", err)
	}
	return newGCSGetter(ctx, option.WithCredentialsJSON(credsJSON))
}

func newGCSGetter(ctx context.Context, opts ...option.ClientOption) (*GCSGetter, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs: %w", err)
	}
	// Fetcher does the retrying.
	client.SetRetry(storage.WithPolicy(storage.RetryNever))
	return &GCSGetter{client: client}, nil
}

func (g *GCSGetter) Get(ctx context.Context, url string) ([]byte, error) {
	bucket, object, err := splitObjectURL(url, "gs")
	if err != nil {
		return nil, err
	}

	r, err := g.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	} else if err != nil {
		return nil, err
	}
	defer r.Close()

	if r.Attrs.Size > maxTileBytes {
		return nil, fmt.Errorf("%s: object exceeds %d bytes", url, maxTileBytes)
	}
	return io.ReadAll(r)
}

func (g *GCSGetter) Close() error {
	return g.client.Close()
}
