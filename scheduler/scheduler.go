package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/satwatch/satwatch-service/types"
)

type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

const (
	DefaultTick        = time.Second
	DefaultStopTimeout = 5 * time.Second
)

type Config struct {
	Tick        time.Duration
	StopTimeout time.Duration
	Location    *time.Location
}

type binding struct {
	name        string
	rule        *CronRule
	task        types.TaskFunc
	minInterval time.Duration

	mu       sync.Mutex
	lastRun  time.Time
	runCount int64
	lastErr  error
}

// Scheduler polls its job bindings once per tick and runs every job whose
// cron rule is due, serially, on a single dedicated goroutine. Dedup
// across consecutive due ticks is delegated to the ExecutionGuard.
type Scheduler struct {
	logger  types.Logger
	metrics types.MetricsManager
	config  Config

	mu       sync.RWMutex
	bindings []*binding

	guard    *ExecutionGuard
	state    atomic.Value
	stopLoop chan struct{}
	loopDone chan struct{}
	now      func() time.Time
}

var jobDurationBuckets = []float64{0.01, 0.1, 0.5, 1, 5, 30, 120}

func NewScheduler(logger types.Logger, metrics types.MetricsManager, config Config) *Scheduler {
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = DefaultStopTimeout
	}
	if config.Location == nil {
		config.Location = time.Local
	}

	scheduler := &Scheduler{
		logger:  logger,
		metrics: metrics,
		config:  config,
		guard:   NewExecutionGuard(),
		now:     time.Now,
	}

	scheduler.state.Store(StateStopped)

	return scheduler
}

// Setup replaces the binding set atomically. Every binding is validated
// before any of them is installed, so a single bad cron expression leaves
// the previous set untouched.
func (s *Scheduler) Setup(jobs []types.JobBinding) error {
	staged := make([]*binding, 0, len(jobs))
	seen := make(map[string]struct{}, len(jobs))

	for _, job := range jobs {
		if job.Name == "" {
			return types.ErrJobNameEmpty
		}
		if job.Task == nil {
			return types.Errorf(types.ErrJobIsNil, "job %q", job.Name)
		}
		if _, exists := seen[job.Name]; exists {
			return types.Errorf(types.ErrJobExists, "job %q", job.Name)
		}
		seen[job.Name] = struct{}{}

		rule, err := ParseCron(job.Cron)
		if err != nil {
			return types.WrapError(err, "job "+job.Name)
		}

		minInterval := job.MinInterval
		if minInterval <= 0 {
			minInterval = rule.MinInterval()
		}

		staged = append(staged, &binding{
			name:        job.Name,
			rule:        rule,
			task:        job.Task,
			minInterval: minInterval,
		})
	}

	s.mu.Lock()
	s.bindings = staged
	s.mu.Unlock()

	for _, b := range staged {
		s.logger.Info("Job registered",
			zap.String("job", b.name),
			zap.String("cron", b.rule.String()),
			zap.Duration("min_interval", b.minInterval))
	}

	return nil
}

func (s *Scheduler) Start() error {
	if !s.transitionState(StateStopped, StateStarting) {
		s.logger.Warn("Scheduler is already running")
		return types.ErrSchedulerAlreadyRunning
	}

	s.stopLoop = make(chan struct{})
	s.loopDone = make(chan struct{})

	// Jobs wait out one full interval before their first run; a restart
	// must not fire every due rule at once.
	startedAt := s.now()
	s.mu.RLock()
	for _, b := range s.bindings {
		s.guard.Record(b.name, startedAt)
	}
	jobCount := len(s.bindings)
	s.mu.RUnlock()

	go s.run()

	s.setState(StateRunning)
	s.logger.Info("Scheduler started",
		zap.Int("jobs", jobCount),
		zap.Duration("tick", s.config.Tick))

	return nil
}

func (s *Scheduler) Stop() error {
	if !s.transitionState(StateRunning, StateStopping) {
		s.logger.Warn("Scheduler is not running")
		return types.ErrSchedulerNotRunning
	}

	defer func() {
		s.setState(StateStopped)
	}()

	close(s.stopLoop)

	select {
	case <-s.loopDone:
	case <-time.After(s.config.StopTimeout):
		s.logger.Warn("Scheduler stop timeout, a job may still be running",
			zap.Duration("timeout", s.config.StopTimeout))
		return types.ErrSchedulerStopTimeout
	}

	s.guard.Clear()
	s.logger.Info("Scheduler stopped gracefully")

	return nil
}

func (s *Scheduler) IsRunning() bool {
	return s.getState() == StateRunning
}

// Jobs returns a snapshot of the current bindings with their run stats.
func (s *Scheduler) Jobs() []types.JobInfo {
	now := s.now().In(s.config.Location)

	s.mu.RLock()
	defer s.mu.RUnlock()

	infos := make([]types.JobInfo, 0, len(s.bindings))
	for _, b := range s.bindings {
		b.mu.Lock()
		info := types.JobInfo{
			Name:        b.name,
			Spec:        b.rule.String(),
			MinInterval: b.minInterval,
			LastRun:     b.lastRun,
			NextRun:     b.rule.Next(now),
			RunCount:    b.runCount,
		}
		if b.lastErr != nil {
			info.LastError = b.lastErr.Error()
		}
		b.mu.Unlock()

		infos = append(infos, info)
	}

	return infos
}

func (s *Scheduler) run() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.config.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopLoop:
			return
		case <-ticker.C:
			s.runPending(s.now())
		}
	}
}

// runPending executes every binding that is due at the given instant.
// Tasks run serially; a long task delays the siblings behind it rather
// than overlapping them.
func (s *Scheduler) runPending(now time.Time) {
	now = now.In(s.config.Location)

	s.mu.RLock()
	pending := make([]*binding, len(s.bindings))
	copy(pending, s.bindings)
	s.mu.RUnlock()

	for _, b := range pending {
		if !b.rule.Matches(now) {
			continue
		}
		if !s.guard.ShouldExecute(b.name, b.minInterval) {
			continue
		}

		s.runTask(b, now)
	}
}

func (s *Scheduler) runTask(b *binding, now time.Time) {
	started := time.Now()

	err := s.invoke(b)

	b.mu.Lock()
	b.lastRun = now
	b.runCount++
	b.lastErr = err
	b.mu.Unlock()

	result := "success"
	if err != nil {
		result = "error"
		s.logger.ErrorWithErrStack("Job failed", err, zap.String("job", b.name))
	} else {
		s.logger.Debug("Job completed",
			zap.String("job", b.name),
			zap.Duration("duration", time.Since(started)))
	}

	if s.metrics != nil {
		s.metrics.Counter("scheduler_job_executions_total",
			map[string]string{"job": b.name, "result": result}).Inc()
		s.metrics.Histogram("scheduler_job_duration_seconds", jobDurationBuckets,
			map[string]string{"job": b.name}).ObserveDuration(started)
	}
}

// invoke runs a single task with panic containment. A panicking job is
// reported as a failed run; the loop and the remaining jobs keep going.
func (s *Scheduler) invoke(b *binding) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = types.NewErrorf("job %q panicked: %v", b.name, r)
		}
	}()

	return b.task()
}

func (s *Scheduler) getState() State {
	return s.state.Load().(State)
}

func (s *Scheduler) setState(newState State) bool {
	currentState := s.getState()
	return s.state.CompareAndSwap(currentState, newState)
}

func (s *Scheduler) transitionState(from, to State) bool {
	return s.state.CompareAndSwap(from, to)
}
