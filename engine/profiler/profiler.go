// Package profiler summarizes renderer statistics and Go memory use once per interval.
package profiler

import (
	"runtime"
	"time"

	"github.com/SedenionProj/vulkan-renderer/common"
	"github.com/SedenionProj/vulkan-renderer/engine/renderer"
)

// Report is one interval's summary.
type Report struct {
	Elapsed time.Duration
	FPS     float64
	// Frames, SkippedFrames and Rebuilds count what happened during the interval.
	Frames        uint64
	SkippedFrames uint64
	Rebuilds      uint64
	// MaxAcquireWait is the longest BeginFrame block seen during the interval.
	MaxAcquireWait time.Duration
	Draws          int
	Passes         int

	HeapMB      float64
	AllocRateMB float64
	GCCount     uint32
	MaxPauseUs  uint64
}

// Profiler accumulates renderer.Stats frame by frame and logs a Report every interval.
type Profiler struct {
	interval time.Duration
	now      func() time.Time

	start    time.Time
	first    renderer.Stats
	haveBase bool
	maxWait  time.Duration

	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// ProfilerOption configures a Profiler.
type ProfilerOption func(*Profiler)

// WithInterval sets how often a Report is produced. Non-positive values are ignored.
func WithInterval(d time.Duration) ProfilerOption {
	return func(p *Profiler) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProfilerOption {
	return func(p *Profiler) {
		p.now = now
	}
}

// NewProfiler creates a Profiler reporting once per second.
//
// Parameters:
//   - opts: functional options
//
// Returns:
//   - *Profiler: the profiler
func NewProfiler(opts ...ProfilerOption) *Profiler {
	p := &Profiler{
		interval: time.Second,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.start = p.now()
	runtime.ReadMemStats(&p.memStats)
	p.lastGCCount = p.memStats.NumGC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return p
}

// Tick records the statistics of the frame just rendered. When the interval has elapsed it
// builds a Report, logs it and starts a new interval.
//
// Parameters:
//   - stats: the renderer statistics after the frame
//
// Returns:
//   - Report: the interval summary, zero when none was produced
//   - bool: true if a Report was produced this tick
func (p *Profiler) Tick(stats renderer.Stats) (Report, bool) {
	if !p.haveBase {
		p.first = stats
		p.haveBase = true
	}
	p.maxWait = max(p.maxWait, stats.AcquireWait)

	now := p.now()
	elapsed := now.Sub(p.start)
	if elapsed < p.interval {
		return Report{}, false
	}

	r := Report{
		Elapsed:        elapsed,
		Frames:         stats.Frames - p.first.Frames,
		SkippedFrames:  stats.SkippedFrames - p.first.SkippedFrames,
		Rebuilds:       stats.Rebuilds - p.first.Rebuilds,
		MaxAcquireWait: p.maxWait,
		Draws:          stats.Draws,
		Passes:         len(stats.Executed),
	}
	r.FPS = float64(r.Frames) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	r.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	r.AllocRateMB = float64(p.memStats.TotalAlloc-p.lastTotalAlloc) / 1024 / 1024 / elapsed.Seconds()
	r.GCCount = p.memStats.NumGC
	// PauseNs is a ring of the last 256 pauses.
	from := p.lastGCCount
	if r.GCCount-from > 256 {
		from = r.GCCount - 256
	}
	for i := from; i < r.GCCount; i++ {
		r.MaxPauseUs = max(r.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
	}

	common.Logger().Info("profiler",
		"fps", r.FPS,
		"frames", r.Frames,
		"skipped", r.SkippedFrames,
		"rebuilds", r.Rebuilds,
		"max_acquire_wait", r.MaxAcquireWait,
		"draws", r.Draws,
		"passes", r.Passes,
		"heap_mb", r.HeapMB,
		"alloc_rate_mb", r.AllocRateMB,
		"gc", r.GCCount,
		"max_pause_us", r.MaxPauseUs,
	)

	p.start = now
	p.first = stats
	p.maxWait = 0
	p.lastGCCount = r.GCCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return r, true
}
