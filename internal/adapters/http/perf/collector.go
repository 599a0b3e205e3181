package perf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes what was timed.
type EntryKind uint8

// Entry kinds.
const (
	KindRequest EntryKind = iota // HTTP request, Path is "METHOD /path"
	KindQuery                    // SQL statement, Path is the query label
	KindJob                      // background job: reminders, outbox, otp purge
)

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string
	StatusCode int // HTTP status; for queries and jobs 1 means failed
	DurationMs float64
	Timestamp  time.Time
}

func (e Entry) failed() bool {
	switch e.Kind {
	case KindRequest:
		return e.StatusCode >= 500
	case KindQuery, KindJob:
		return e.StatusCode != 0
	}
	return false
}

// Collector is a fixed-size ring buffer of timing entries.
// Writes never block on readers; when full the oldest entry is overwritten.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int64
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: none
// POST: a non-positive size falls back to DefaultRingSize
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry to the ring buffer.
// PRE: e.Timestamp is set
// POST: entry stored; the oldest entry is overwritten when full
func (c *Collector) Record(e Entry) {
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// RecordJob times a background job run.
func (c *Collector) RecordJob(name string, start time.Time, err error) {
	if c == nil {
		return
	}
	status := 0
	if err != nil {
		status = 1
	}
	c.Record(Entry{
		Kind:       KindJob,
		Path:       name,
		StatusCode: status,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:  start,
	})
}

// TotalRecorded returns the number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return atomic.LoadInt64(&c.count)
}

// Snapshot holds aggregated performance data computed on read.
type Snapshot struct {
	TotalRecorded  int64      `json:"totalRecorded"`
	Requests       int        `json:"requests"`
	ServerErrors   int        `json:"serverErrors"`
	RequestP50Ms   float64    `json:"requestP50Ms"`
	RequestP95Ms   float64    `json:"requestP95Ms"`
	RequestP99Ms   float64    `json:"requestP99Ms"`
	SlowestPaths   []PathStat `json:"slowestPaths"`
	SlowestQueries []PathStat `json:"slowestQueries"`
	Jobs           []PathStat `json:"jobs"`
}

// PathStat aggregates timing for one path, query label or job name.
type PathStat struct {
	Path     string  `json:"path"`
	Count    int     `json:"count"`
	Failures int     `json:"failures"`
	AvgMs    float64 `json:"avgMs"`
	MaxMs    float64 `json:"maxMs"`
	TotalMs  float64 `json:"totalMs"`
}

func (s *PathStat) add(e Entry) {
	s.Count++
	s.TotalMs += e.DurationMs
	if e.DurationMs > s.MaxMs {
		s.MaxMs = e.DurationMs
	}
	if e.failed() {
		s.Failures++
	}
}

// Snapshot aggregates the entries recorded at or after since.
// Sorting makes this the expensive side; call it from the admin endpoint only.
// PRE: topN > 0
// POST: path and query lists hold at most topN entries, slowest average first; jobs are listed by name
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Entry, c.size)
	copy(buf, c.entries)
	c.mu.Unlock()

	var durations []float64
	stats := map[EntryKind]map[string]*PathStat{
		KindRequest: {},
		KindQuery:   {},
		KindJob:     {},
	}
	snap := Snapshot{TotalRecorded: c.TotalRecorded()}

	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		byPath, ok := stats[e.Kind]
		if !ok {
			continue
		}
		s, ok := byPath[e.Path]
		if !ok {
			s = &PathStat{Path: e.Path}
			byPath[e.Path] = s
		}
		s.add(e)
		if e.Kind == KindRequest {
			durations = append(durations, e.DurationMs)
			snap.Requests++
			if e.failed() {
				snap.ServerErrors++
			}
		}
	}

	snap.SlowestPaths = topByAvg(stats[KindRequest], topN)
	snap.SlowestQueries = topByAvg(stats[KindQuery], topN)
	snap.Jobs = byName(stats[KindJob])

	if len(durations) > 0 {
		sort.Float64s(durations)
		snap.RequestP50Ms = percentile(durations, 50)
		snap.RequestP95Ms = percentile(durations, 95)
		snap.RequestP99Ms = percentile(durations, 99)
	}
	return snap
}

// percentile interpolates the p-th percentile of a sorted slice.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

func finish(stats map[string]*PathStat) []PathStat {
	list := make([]PathStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	return list
}

// topByAvg returns the n slowest entries by average duration, ties by path.
func topByAvg(stats map[string]*PathStat, n int) []PathStat {
	list := finish(stats)
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs != list[j].AvgMs {
			return list[i].AvgMs > list[j].AvgMs
		}
		return list[i].Path < list[j].Path
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}

func byName(stats map[string]*PathStat) []PathStat {
	list := finish(stats)
	sort.Slice(list, func(i, j int) bool { return list[i].Path < list[j].Path })
	return list
}
