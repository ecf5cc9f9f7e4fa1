// Package metrics keeps per-loop counters for the dashboard and the final
// shutdown summary.
package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// LoopStats accumulates counters for one loop. Safe for concurrent use.
type LoopStats struct {
	mu         sync.Mutex
	name       string
	iterations uint64
	failures   uint64
	lastRun    time.Time
	lastError  string
	running    bool
}

// LoopSnapshot is a point-in-time copy of LoopStats.
type LoopSnapshot struct {
	Name       string
	Iterations uint64
	Failures   uint64
	LastRun    time.Time
	LastError  string
	Running    bool
}

// FailureRate returns failures per iteration in [0,1].
func (s LoopSnapshot) FailureRate() float64 {
	if s.Iterations == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Iterations)
}

// FormatLastRun renders LastRun relative to now (e.g. "3s ago").
func (s LoopSnapshot) FormatLastRun(now time.Time) string {
	if s.LastRun.IsZero() {
		return "-"
	}
	return fmt.Sprintf("%s ago", now.Sub(s.LastRun).Truncate(time.Second))
}

// Started marks the loop running.
func (l *LoopStats) Started() {
	l.mu.Lock()
	l.running = true
	l.mu.Unlock()
}

// Stopped marks the loop finished.
func (l *LoopStats) Stopped() {
	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
}

// Iteration records one body run; err is nil on success.
func (l *LoopStats) Iteration(at time.Time, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.iterations++
	l.lastRun = at
	if err != nil {
		l.failures++
		l.lastError = err.Error()
	}
}

// Snapshot copies the current counters.
func (l *LoopStats) Snapshot() LoopSnapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoopSnapshot{
		Name:       l.name,
		Iterations: l.iterations,
		Failures:   l.failures,
		LastRun:    l.lastRun,
		LastError:  l.lastError,
		Running:    l.running,
	}
}

// Registry hands out one LoopStats per loop name.
type Registry struct {
	mu    sync.Mutex
	loops map[string]*LoopStats
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{loops: make(map[string]*LoopStats)}
}

// Loop returns the stats for name, creating them on first use.
// A nil registry returns a detached LoopStats.
func (r *Registry) Loop(name string) *LoopStats {
	if r == nil {
		return &LoopStats{name: name}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.loops[name]; ok {
		return s
	}
	s := &LoopStats{name: name}
	r.loops[name] = s
	return s
}

// Snapshot returns every loop's snapshot sorted by name.
func (r *Registry) Snapshot() []LoopSnapshot {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	loops := make([]*LoopStats, 0, len(r.loops))
	for _, s := range r.loops {
		loops = append(loops, s)
	}
	r.mu.Unlock()

	out := make([]LoopSnapshot, 0, len(loops))
	for _, s := range loops {
		out = append(out, s.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
