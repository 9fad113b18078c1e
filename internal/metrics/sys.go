package metrics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// SysHealth represents real-time process metrics.
type SysHealth struct {
	AllocMB      uint64 `json:"allocMB"`
	TotalAllocMB uint64 `json:"totalAllocMB"`
	SysMB        uint64 `json:"sysMB"`
	NumGC        uint32 `json:"numGC"`
	Goroutines   int    `json:"goroutines"`
	DataDiskSize string `json:"dataDiskSize,omitempty"`
}

// Report is the health summary served by the API and the bot.
type Report struct {
	Status       string    `json:"status"`
	Backend      string    `json:"backend"`
	Store        string    `json:"store"`
	StoreLatency string    `json:"storeLatency"`
	Uptime       string    `json:"uptime"`
	System       SysHealth `json:"system"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// Healthy reports whether the backing store answered the probe.
func (r Report) Healthy() bool {
	return r.Status == "ok"
}

// Probe performs one cheap round-trip to the backing store.
type Probe func(ctx context.Context) error

var startedAt = time.Now()

// Collect runs probe and gathers process metrics. dataPath may be empty when
// the backend keeps nothing on local disk.
func Collect(ctx context.Context, backend string, probe Probe, dataPath string) Report {
	start := time.Now()
	err := probe(ctx)
	latency := time.Since(start)

	r := Report{
		Status:       "ok",
		Backend:      backend,
		Store:        "reachable",
		StoreLatency: latency.Round(time.Millisecond).String(),
		Uptime:       time.Since(startedAt).Round(time.Second).String(),
		System:       GetSysHealth(dataPath),
		CheckedAt:    time.Now().UTC(),
	}
	if err != nil {
		r.Status = "degraded"
		r.Store = err.Error()
	}
	return r
}

// GetSysHealth collects real-time health data.
func GetSysHealth(dataPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	h := SysHealth{
		AllocMB:      m.Alloc / 1024 / 1024,
		TotalAllocMB: m.TotalAlloc / 1024 / 1024,
		SysMB:        m.Sys / 1024 / 1024,
		NumGC:        m.NumGC,
		Goroutines:   runtime.NumGoroutine(),
	}
	if dataPath != "" {
		h.DataDiskSize = formatBytes(dirSize(dataPath))
	}
	return h
}

func dirSize(path string) int64 {
	var size int64
	_ = filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size
}

func formatBytes(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
