package condense

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dray-io/fimcondense/internal/logging"
)

// TaskState is the lifecycle state of a supervised task.
type TaskState int

const (
	TaskNotStarted TaskState = iota
	TaskRunning
	TaskFinished
	TaskFailed
)

func (s TaskState) String() string {
	switch s {
	case TaskNotStarted:
		return "not_started"
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	case TaskFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TaskFunc is a long-lived task. It should return when ctx is cancelled.
type TaskFunc func(ctx context.Context) error

// TaskStatus is a point-in-time view of a supervised task.
type TaskStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Restarts  int       `json:"restarts"`
	LastError string    `json:"lastError,omitempty"`
	Since     time.Time `json:"since"`
}

// SupervisorConfig configures a Supervisor.
type SupervisorConfig struct {
	// RestartDelay is how long a terminated task waits before it is started
	// again, measured from termination.
	// Default: 5s
	RestartDelay time.Duration

	// Interval is the supervision tick.
	// Default: 1s
	Interval time.Duration
}

// DefaultSupervisorConfig returns a default configuration.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{RestartDelay: 5 * time.Second, Interval: time.Second}
}

type slot struct {
	name     string
	fn       TaskFunc
	state    TaskState
	since    time.Time
	lastErr  error
	restarts int
	started  bool
	next     time.Time
	backoff  backoff.BackOff
}

// Supervisor keeps named long-lived tasks running, restarting each one a
// fixed delay after it exits for any reason.
type Supervisor struct {
	config  SupervisorConfig
	logger  *logging.Logger
	metrics MetricsRecorder

	mu    sync.Mutex
	slots map[string]*slot
	order []string
	wg    sync.WaitGroup
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(config SupervisorConfig) *Supervisor {
	d := DefaultSupervisorConfig()
	if config.RestartDelay < 0 {
		config.RestartDelay = d.RestartDelay
	}
	if config.Interval <= 0 {
		config.Interval = d.Interval
	}
	return &Supervisor{
		config:  config,
		logger:  logging.Global().Named("supervisor"),
		metrics: nopRecorder{},
		slots:   make(map[string]*slot),
	}
}

// SetLogger replaces the logger.
func (s *Supervisor) SetLogger(l *logging.Logger) { s.logger = l.Named("supervisor") }

// SetMetrics sets the metrics recorder.
func (s *Supervisor) SetMetrics(m MetricsRecorder) { s.metrics = recorderOrNop(m) }

// Register adds a task. Registering after Run has started is allowed; the
// task starts on the next tick.
func (s *Supervisor) Register(name string, fn TaskFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.slots[name]; exists {
		return fmt.Errorf("condense: task %q already registered", name)
	}
	s.slots[name] = &slot{
		name:    name,
		fn:      fn,
		state:   TaskNotStarted,
		since:   time.Now(),
		backoff: backoff.NewConstantBackOff(s.config.RestartDelay),
	}
	s.order = append(s.order, name)
	s.metrics.SetTaskState(name, TaskNotStarted.String())
	return nil
}

// Run starts every registered task and re-arms terminated ones until ctx is
// cancelled. It then waits for running tasks to return.
func (s *Supervisor) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			return nil
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick starts tasks that have never run and restarts terminated tasks whose
// delay has elapsed.
func (s *Supervisor) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range s.order {
		sl := s.slots[name]
		switch sl.state {
		case TaskFinished, TaskFailed:
			if now.Before(sl.next) {
				continue
			}
			sl.state = TaskNotStarted
			sl.since = now
			s.metrics.SetTaskState(name, TaskNotStarted.String())
		case TaskRunning:
			continue
		}

		if sl.started {
			sl.restarts++
			s.metrics.RecordRestart(name)
			s.logger.Infof("restarting task", logging.Fields{"task": name, "restarts": sl.restarts})
		}
		s.start(ctx, sl)
	}
}

// start launches a slot. Caller holds mu.
func (s *Supervisor) start(ctx context.Context, sl *slot) {
	sl.state = TaskRunning
	sl.since = time.Now()
	sl.started = true
	s.metrics.SetTaskState(sl.name, TaskRunning.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		err := runRecovered(ctx, sl.fn)
		s.finish(ctx, sl, err)
	}()
}

func (s *Supervisor) finish(ctx context.Context, sl *slot, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sl.since = now
	sl.lastErr = err
	sl.next = now.Add(sl.backoff.NextBackOff())

	if err != nil && !(ctx.Err() != nil && errors.Is(err, context.Canceled)) {
		sl.state = TaskFailed
		s.logger.Errorf("task failed", logging.Fields{"task": sl.name, "error": err, "restartIn": s.config.RestartDelay.String()})
	} else {
		sl.state = TaskFinished
		sl.lastErr = nil
		if ctx.Err() == nil {
			s.logger.Warnf("task exited", logging.Fields{"task": sl.name, "restartIn": s.config.RestartDelay.String()})
		}
	}
	s.metrics.SetTaskState(sl.name, sl.state.String())
}

// ErrTaskPanic wraps a panic recovered from a supervised task.
var ErrTaskPanic = errors.New("task panicked")

func runRecovered(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return fn(ctx)
}

// Snapshot returns the status of every task in registration order.
func (s *Supervisor) Snapshot() []TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskStatus, 0, len(s.order))
	for _, name := range s.order {
		sl := s.slots[name]
		st := TaskStatus{Name: name, State: sl.state.String(), Restarts: sl.restarts, Since: sl.since}
		if sl.lastErr != nil {
			st.LastError = sl.lastErr.Error()
		}
		out = append(out, st)
	}
	return out
}

// Unhealthy returns the names of tasks that are not running, sorted.
func (s *Supervisor) Unhealthy() []string {
	var names []string
	for _, st := range s.Snapshot() {
		if st.State != TaskRunning.String() {
			names = append(names, st.Name)
		}
	}
	sort.Strings(names)
	return names
}
