// tiles/url_test.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package tiles

import (
	"errors"
	"testing"

	"github.com/paulmach/orb/maptile"
)

func TestURLTemplate(t *testing.T) {
	b := URLTemplate("https://elevation-tiles-prod.s3.amazonaws.com/terrarium/{z}/{x}/{y}.png")
	if got := b(maptile.New(534, 362, 10)); got != "https://elevation-tiles-prod.s3.amazonaws.com/terrarium/10/534/362.png" {
		t.Errorf("got %q", got)
	}

	b = URLTemplate("s3://bucket/{z}-{y}-{x}")
	if got := b(maptile.New(1, 2, 3)); got != "s3://bucket/3-2-1" {
		t.Errorf("got %q", got)
	}
}

func TestValidateTemplate(t *testing.T) {
	for _, ok := range []string{
		"https://a.example/{z}/{x}/{y}.pbf",
		"http://localhost:8080/t/{z}/{x}/{y}",
		"s3://elevation-tiles-prod/terrarium/{z}/{x}/{y}.png",
		"gs://bucket/asp/{z}/{x}/{y}.pbf",
	} {
		if err := ValidateTemplate(ok); err != nil {
			t.Errorf("%s: unexpected error %v", ok, err)
		}
	}

	for _, bad := range []string{
		"",
		"a.example/{z}/{x}/{y}",
		"ftp://a.example/{z}/{x}/{y}",
		"https://a.example/{z}/{x}",
	} {
		if err := ValidateTemplate(bad); !errors.Is(err, ErrInvalidTemplate) {
			t.Errorf("%q: expected ErrInvalidTemplate, got %v", bad, err)
		}
	}
}
