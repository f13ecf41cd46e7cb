// cmd/trackenrich/main.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// trackenrich adds the ground elevation under each fix and the airspaces
// crossed to flight tracks.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mmp/trackenrich/config"
	"github.com/mmp/trackenrich/enrich"
	"github.com/mmp/trackenrich/log"
	"github.com/mmp/trackenrich/track"
	"github.com/mmp/trackenrich/util"

	"github.com/goforj/godump"
	"golang.org/x/sync/errgroup"
)

var (
	configFile  = flag.String("config", "", "JSON configuration file")
	terrainURL  = flag.String("terrain", "", "Terrain tile URL template with {z}, {x}, and {y} (overrides config)")
	airspaceURL = flag.String("airspace", "", "Airspace tile URL template with {z}, {x}, and {y} (overrides config)")
	maxURLs     = flag.Int("maxurls", 0, "Maximum number of terrain tiles per track (overrides config)")
	maxTiles    = flag.Int("maxtiles", 0, "Maximum number of airspace tiles per track (overrides config)")
	diskCache   = flag.String("diskcache", "", "Directory for the on-disk tile cache (overrides config)")
	logLevel    = flag.String("loglevel", "", "Logging level: debug, info, warn, error (overrides config)")
	logDir      = flag.String("logdir", "", "Directory for log files; logs go to stderr if unset (overrides config)")
	outDir      = flag.String("outdir", "", "Directory for enriched records (default: next to each track)")
	writeGeo    = flag.Bool("geojson", false, "Also write the track and its airspace crossings as GeoJSON")
	dump        = flag.Bool("dump", false, "Dump each result to stdout")
	decode      = flag.Bool("decode", false, "Print the enriched record files given as arguments as JSON")
	httpAddr    = flag.String("http", "", "Address for the debugging/status HTTP server (e.g., localhost:6060)")
	nWorkers    = flag.Int("nworkers", 4, "Number of tracks to enrich concurrently")
)

const recordSuffix = ".enriched.msgpack.zst"

type outputOptions struct {
	dir     string
	geojson bool
	dump    bool
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: trackenrich [flags] track.json...\n"+
			"       trackenrich -decode record%s...\nwhere [flags] may be:\n", recordSuffix)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(1)
	}

	if *decode {
		for _, path := range flag.Args() {
			if err := decodeRecord(path, os.Stdout, *dump); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				os.Exit(1)
			}
		}
		return
	}

	c, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	lg := log.New(c.Log.Level, c.Log.Dir)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	e, err := enrich.New(ctx, c, lg)
	if err != nil {
		lg.Errorf("%v", err)
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *httpAddr != "" {
		launchHTTPServer(*httpAddr, e, lg)
	}

	opts := outputOptions{dir: *outDir, geojson: *writeGeo, dump: *dump}
	var failed atomic.Bool
	var eg errgroup.Group
	eg.SetLimit(max(1, *nWorkers))
	for _, path := range flag.Args() {
		eg.Go(func() error {
			if err := processTrack(ctx, e, path, opts, os.Stdout); err != nil {
				lg.Errorf("%s: %v", path, err)
				fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
				failed.Store(true)
			}
			return nil
		})
	}
	eg.Wait()

	if err := e.Close(); err != nil {
		lg.Warnf("%v", err)
	}
	if failed.Load() {
		os.Exit(1)
	}
}

// loadConfig returns the configuration from the -config file, if given,
// with any command-line overrides applied.
func loadConfig() (config.Config, error) {
	c := config.Default()
	if *configFile != "" {
		var err error
		if c, err = config.Load(*configFile); err != nil {
			return config.Config{}, fmt.Errorf("%s: %w", *configFile, err)
		}
	}

	if *terrainURL != "" {
		c.Terrain.URL = *terrainURL
	}
	if *airspaceURL != "" {
		c.Airspace.URL = *airspaceURL
	}
	if *maxURLs > 0 {
		c.Terrain.MaxURLs = *maxURLs
	}
	if *maxTiles > 0 {
		c.Airspace.MaxTiles = *maxTiles
	}
	if *diskCache != "" {
		c.Fetch.DiskCacheDir = *diskCache
	}
	if *logLevel != "" {
		c.Log.Level = *logLevel
	}
	if *logDir != "" {
		c.Log.Dir = *logDir
	}

	return c, c.Validate()
}

func readTrack(path string) (track.Track, error) {
	f, err := os.Open(path)
	if err != nil {
		return track.Track{}, err
	}
	defer f.Close()

	var tr track.Track
	if err := util.UnmarshalJSON(f, &tr); err != nil {
		return track.Track{}, err
	}
	return tr, tr.Validate()
}

// outputPath returns the path for an output file derived from the input
// track's path.
func outputPath(input, dir, suffix string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, base+suffix)
}

var dumpMu sync.Mutex

func processTrack(ctx context.Context, e *enrich.Enricher, path string, opts outputOptions, w io.Writer) error {
	tr, err := readTrack(path)
	if err != nil {
		return err
	}

	r, err := e.Enrich(ctx, tr)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := enrich.WriteRecord(&buf, enrich.NewRecord(tr, r)); err != nil {
		return err
	}
	recPath := outputPath(path, opts.dir, recordSuffix)
	if err := os.WriteFile(recPath, buf.Bytes(), 0o644); err != nil {
		return err
	}

	if opts.geojson {
		b, err := crossingsGeoJSON(tr, r).MarshalJSON()
		if err != nil {
			return err
		}
		if err := os.WriteFile(outputPath(path, opts.dir, ".geojson"), b, 0o644); err != nil {
			return err
		}
	}

	dumpMu.Lock()
	defer dumpMu.Unlock()
	if opts.dump {
		godump.Dump(r)
	}
	fmt.Fprintf(w, "%s: %d fixes, %d airspace crossings%s -> %s (%d bytes)\n", path, tr.Len(),
		len(r.Airspaces.Crossings), warnings(r), recPath, buf.Len())
	return nil
}

func warnings(r enrich.Result) string {
	var w []string
	if r.Ground.HasErrors {
		w = append(w, "terrain tiles missing")
	}
	if r.Ground.Truncated {
		w = append(w, "terrain truncated")
	}
	if r.Airspaces.HasErrors {
		w = append(w, "airspace tiles missing")
	}
	if r.Airspaces.Truncated {
		w = append(w, "airspace truncated")
	}
	if len(w) == 0 {
		return ""
	}
	return " [" + strings.Join(w, ", ") + "]"
}

type decodedRecord struct {
	TimeSec []int64       `json:"time"`
	Result  enrich.Result `json:"result"`
}

func decodeRecord(path string, w io.Writer, dump bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	rec, err := enrich.ReadRecord(f)
	if err != nil {
		return err
	}
	times, r, err := rec.Decode()
	if err != nil {
		return err
	}

	d := decodedRecord{TimeSec: times, Result: r}
	if dump {
		godump.Dump(d)
		return nil
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
