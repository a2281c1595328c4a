package scheduler

import (
	"sync"
	"time"
)

// ExecutionGuard deduplicates job executions. A rule that stays due for
// several consecutive poll ticks (a cron minute spans sixty 1-second
// ticks) must still run at most once per its minimum interval; the guard
// is the single place that decision is made.
type ExecutionGuard struct {
	mu      sync.Mutex
	lastRun map[string]time.Time
	now     func() time.Time
}

func NewExecutionGuard() *ExecutionGuard {
	return &ExecutionGuard{
		lastRun: make(map[string]time.Time),
		now:     time.Now,
	}
}

// ShouldExecute atomically checks whether the named job may run and, if
// so, records the current instant as its last run. The first call for an
// unseen name always succeeds.
func (g *ExecutionGuard) ShouldExecute(name string, minInterval time.Duration) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if last, seen := g.lastRun[name]; seen && now.Sub(last) < minInterval {
		return false
	}

	g.lastRun[name] = now
	return true
}

// Record marks the named job as having run at the given instant without
// consulting the interval. The scheduler uses it on start so that every
// job waits out one full interval before its first run.
func (g *ExecutionGuard) Record(name string, t time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRun[name] = t
}

// LastRun returns the recorded last execution of the named job.
func (g *ExecutionGuard) LastRun(name string) (time.Time, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, seen := g.lastRun[name]
	return last, seen
}

// Clear forgets all recorded executions.
func (g *ExecutionGuard) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRun = make(map[string]time.Time)
}
