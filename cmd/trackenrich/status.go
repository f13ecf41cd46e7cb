// cmd/trackenrich/status.go
// Copyright(c) 2025 trackenrich contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"encoding/json"
	"html/template"
	"math"
	"net"
	"net/http"
	"net/http/pprof"
	"runtime"
	"time"

	"github.com/mmp/trackenrich/enrich"
	"github.com/mmp/trackenrich/log"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

type status struct {
	Uptime           time.Duration `json:"uptime"`
	CPUUsage         int           `json:"cpu_usage"`
	HostMemoryUsage  int           `json:"host_memory_usage"`
	AllocMemory      uint64        `json:"alloc_mb"`
	TotalAllocMemory uint64        `json:"total_alloc_mb"`
	SysMemory        uint64        `json:"sys_mb"`
	NumGC            uint32        `json:"num_gc"`
	NumGoRoutines    int           `json:"num_goroutines"`

	Enrich enrich.Stats `json:"enrich"`
}

var startTime = time.Now()

func getStatus(e *enrich.Enricher) status {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	s := status{
		Uptime:           time.Since(startTime).Round(time.Second),
		AllocMemory:      m.Alloc / (1024 * 1024),
		TotalAllocMemory: m.TotalAlloc / (1024 * 1024),
		SysMemory:        m.Sys / (1024 * 1024),
		NumGC:            m.NumGC,
		NumGoRoutines:    runtime.NumGoroutine(),
		Enrich:           e.Stats(),
	}
	if usage, err := cpu.Percent(250*time.Millisecond, false); err == nil && len(usage) > 0 {
		s.CPUUsage = int(math.Round(usage[0]))
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.HostMemoryUsage = int(math.Round(vm.UsedPercent))
	}
	return s
}

var statusTemplate = template.Must(template.New("").Parse(`
<html>
<head>
<title>trackenrich status</title>
</head>
<style>
table {
  border-collapse: collapse;
}
td, th {
  border: 1px solid #dddddd;
  padding: 6px;
}
</style>
<body>
<h1>Process</h1>
<ul>
  <li>Uptime: {{.Uptime}}</li>
  <li>CPU usage: {{.CPUUsage}}%</li>
  <li>Host memory usage: {{.HostMemoryUsage}}%</li>
  <li>Allocated memory: {{.AllocMemory}} MB</li>
  <li>Total allocated memory: {{.TotalAllocMemory}} MB</li>
  <li>System memory: {{.SysMemory}} MB</li>
  <li>Garbage collection passes: {{.NumGC}}</li>
  <li>Running goroutines: {{.NumGoRoutines}}</li>
</ul>

<h1>Enrichment</h1>
<p>{{.Enrich.Tracks}} tracks; {{.Enrich.Fetch.Attempts}} fetch attempts, {{.Enrich.Fetch.NotFound}} not found, {{.Enrich.Fetch.Failures}} failures</p>
<table>
  <tr><th>Cache</th><th>Entries</th><th>Capacity</th><th>Hits</th><th>Misses</th><th>Loads</th></tr>
  {{with .Enrich.Terrain}}<tr><td>Terrain</td><td>{{.Entries}}</td><td>{{.Capacity}}</td><td>{{.Hits}}</td><td>{{.Misses}}</td><td>{{.Loads}}</td></tr>{{end}}
  {{with .Enrich.Airspace}}<tr><td>Airspace</td><td>{{.Entries}}</td><td>{{.Capacity}}</td><td>{{.Hits}}</td><td>{{.Misses}}</td><td>{{.Loads}}</td></tr>{{end}}
</table>
</body>
</html>
`))

func newStatusMux(e *enrich.Enricher, lg *log.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/stats", func(w http.ResponseWriter, r *http.Request) {
		if err := statusTemplate.Execute(w, getStatus(e)); err != nil {
			lg.Errorf("status template: %v", err)
		}
	})
	mux.HandleFunc("/stats.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(getStatus(e)); err != nil {
			lg.Errorf("status JSON: %v", err)
		}
	})

	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return mux
}

func launchHTTPServer(addr string, e *enrich.Enricher, lg *log.Logger) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		lg.Warnf("Unable to start HTTP server: %v", err)
		return
	}

	lg.Infof("Launching HTTP server on %s", listener.Addr())
	go func() {
		if err := http.Serve(listener, newStatusMux(e, lg)); err != nil {
			lg.Errorf("HTTP server error: %v", err)
		}
	}()
}
