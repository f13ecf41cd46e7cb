// fetch/disk.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"path/filepath"
	"time"

	"github.com/mmp/trackenrich/log"
	"github.com/mmp/trackenrich/util"
)

// DiskCache is a Getter that keeps the raw bytes of tiles (and the fact
// that a tile was not found) in an on-disk object cache in front of
// another Getter. Transport failures are never stored.
type DiskCache struct {
	Getter Getter
	Cache  util.ObjectCache
	// MaxAge bounds how long a stored tile is used; zero means forever.
	MaxAge time.Duration

	lg *log.Logger
}

type diskRecord struct {
	URL      string `msgpack:"u"`
	NotFound bool   `msgpack:"nf,omitempty"`
	Data     []byte `msgpack:"d,omitempty"`
}

func NewDiskCache(g Getter, dir string, lg *log.Logger) *DiskCache {
	return &DiskCache{
		Getter: g,
		Cache:  util.ObjectCache{Dir: dir},
		lg:     lg,
	}
}

func (d *DiskCache) Get(ctx context.Context, url string) ([]byte, error) {
	path := diskPath(url)

	var rec diskRecord
	if stored, err := d.Cache.Retrieve(path, &rec); err == nil && rec.URL == url &&
		(d.MaxAge == 0 || time.Since(stored) < d.MaxAge) {
		if rec.NotFound {
			return nil, ErrNotFound
		}
		return rec.Data, nil
	}

	b, err := d.Getter.Get(ctx, url)
	if errors.Is(err, ErrNotFound) {
		rec = diskRecord{URL: url, NotFound: true}
	} else if err != nil {
		return nil, err
	} else {
		rec = diskRecord{URL: url, Data: b}
	}

	if serr := d.Cache.Store(path, rec); serr != nil {
		d.lg.Warnf("%s: unable to store in disk cache: %v", url, serr)
	}
	return b, err
}

// Cull removes the oldest stored tiles until the cache uses at most
// maxBytes.
func (d *DiskCache) Cull(maxBytes int64) error {
	return d.Cache.Cull(maxBytes)
}

func diskPath(url string) string {
	h := sha256.Sum256([]byte(url))
	s := hex.EncodeToString(h[:])
	return filepath.Join(s[:2], s[2:]+".zst")
}
