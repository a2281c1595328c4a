package types

import (
	"time"
)

// TaskFunc is an opaque zero-argument operation bound to a cron rule.
// A returned error (or a panic) is logged at the scheduler loop boundary
// and never stops the loop.
type TaskFunc func() error

// JobBinding associates a unique job name with a cron expression and a
// task. MinInterval is the dedup window enforced by the execution guard;
// when zero, the scheduler derives it from the rule's own cadence.
type JobBinding struct {
	Name        string
	Cron        string
	Task        TaskFunc
	MinInterval time.Duration
}

type JobInfo struct {
	Name        string        `json:"name"`
	Spec        string        `json:"spec"`
	MinInterval time.Duration `json:"min_interval"`
	LastRun     time.Time     `json:"last_run"`
	NextRun     time.Time     `json:"next_run"`
	RunCount    int64         `json:"run_count"`
	LastError   string        `json:"last_error,omitempty"`
}

type SchedulerManager interface {
	LifecycleManager
	Setup(bindings []JobBinding) error
	Jobs() []JobInfo
}
