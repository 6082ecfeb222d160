// Package telemetry collects query timings from the search and explorer paths.
package telemetry

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Recorder receives one timing per completed query.
type Recorder interface {
	RecordQuery(name string, d time.Duration)
}

// Nop discards timings.
type Nop struct{}

func (Nop) RecordQuery(string, time.Duration) {}

// QueryStats aggregates timings for one query name.
type QueryStats struct {
	Name  string        `json:"name"`
	Count int64         `json:"count"`
	Total time.Duration `json:"total"`
	Max   time.Duration `json:"max"`
}

// Mean returns the average duration, zero when empty.
func (s QueryStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Tracker is an in-memory Recorder safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	stats  map[string]*QueryStats
	logger *slog.Logger
	slow   time.Duration
}

// NewTracker returns a tracker that logs queries slower than slow at warn
// level. A zero slow threshold disables slow logging.
func NewTracker(logger *slog.Logger, slow time.Duration) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{stats: make(map[string]*QueryStats), logger: logger, slow: slow}
}

func (t *Tracker) RecordQuery(name string, d time.Duration) {
	t.mu.Lock()
	s, ok := t.stats[name]
	if !ok {
		s = &QueryStats{Name: name}
		t.stats[name] = s
	}
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
	t.mu.Unlock()

	if t.slow > 0 && d >= t.slow {
		t.logger.Warn("slow query", "name", name, "duration", d)
	}
}

// Snapshot returns a copy of the aggregates sorted by name.
func (t *Tracker) Snapshot() []QueryStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]QueryStats, 0, len(t.stats))
	for _, s := range t.stats {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Timer measures one query. Call Stop once the query completes.
type Timer struct {
	rec   Recorder
	name  string
	start time.Time
}

// Start begins timing name against rec. A nil rec yields a no-op timer.
func Start(rec Recorder, name string) Timer {
	return Timer{rec: rec, name: name, start: time.Now()}
}

func (t Timer) Stop() time.Duration {
	d := time.Since(t.start)
	if t.rec != nil {
		t.rec.RecordQuery(t.name, d)
	}
	return d
}
