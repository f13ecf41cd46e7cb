// tiles/url.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tiles

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb/maptile"
)

var ErrInvalidTemplate = errors.New("invalid tile URL template")

// URLBuilder returns the URL of the given tile.
type URLBuilder func(t maptile.Tile) string

// URLTemplate returns a URLBuilder that substitutes the tile's zoom and
// coordinates for the {z}, {x} and {y} placeholders in tmpl.
func URLTemplate(tmpl string) URLBuilder {
	return func(t maptile.Tile) string {
		r := strings.NewReplacer(
			"{z}", strconv.Itoa(int(t.Z)),
			"{x}", strconv.FormatUint(uint64(t.X), 10),
			"{y}", strconv.FormatUint(uint64(t.Y), 10))
		return r.Replace(tmpl)
	}
}

// ValidateTemplate checks that tmpl has a scheme we can fetch and all three
// tile placeholders.
func ValidateTemplate(tmpl string) error {
	scheme, _, ok := strings.Cut(tmpl, "://")
	if !ok {
		return fmt.Errorf("%s: %w: missing scheme", tmpl, ErrInvalidTemplate)
	}
	switch scheme {
	case "http", "https", "s3", "gs":
	default:
		return fmt.Errorf("%s: %w: unsupported scheme %q", tmpl, ErrInvalidTemplate, scheme)
	}

	for _, p := range []string{"{z}", "{x}", "{y}"} {
		if !strings.Contains(tmpl, p) {
			return fmt.Errorf("%s: %w: missing %s", tmpl, ErrInvalidTemplate, p)
		}
	}
	return nil
}
