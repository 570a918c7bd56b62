package condense

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/logging"
)

func newTestSupervisor(delay time.Duration) *Supervisor {
	s := NewSupervisor(SupervisorConfig{RestartDelay: delay, Interval: 5 * time.Millisecond})
	s.SetLogger(logging.Discard())
	return s
}

func runSupervisor(t *testing.T, s *Supervisor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func stateOf(s *Supervisor, name string) TaskStatus {
	for _, st := range s.Snapshot() {
		if st.Name == name {
			return st
		}
	}
	return TaskStatus{}
}

func TestSupervisorRestartsAfterDelay(t *testing.T) {
	delay := 80 * time.Millisecond
	s := newTestSupervisor(delay)

	var mu sync.Mutex
	var starts []time.Time
	require.NoError(t, s.Register("flaky", func(ctx context.Context) error {
		mu.Lock()
		starts = append(starts, time.Now())
		n := len(starts)
		mu.Unlock()
		if n == 1 {
			return errors.New("boom")
		}
		<-ctx.Done()
		return nil
	}))
	runSupervisor(t, s)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(starts) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	gap := starts[1].Sub(starts[0])
	mu.Unlock()
	assert.GreaterOrEqual(t, gap, delay)

	require.Eventually(t, func() bool { return stateOf(s, "flaky").State == "running" }, time.Second, 5*time.Millisecond)
	st := stateOf(s, "flaky")
	assert.Equal(t, 1, st.Restarts)
	assert.Equal(t, "boom", st.LastError)
}

func TestSupervisorRecordsFailureState(t *testing.T) {
	s := newTestSupervisor(time.Hour)
	require.NoError(t, s.Register("broken", func(context.Context) error { return errors.New("nope") }))
	require.NoError(t, s.Register("ok", func(ctx context.Context) error { <-ctx.Done(); return nil }))
	runSupervisor(t, s)

	require.Eventually(t, func() bool { return stateOf(s, "broken").State == "failed" }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"broken"}, s.Unhealthy())
}

func TestSupervisorRecoversPanics(t *testing.T) {
	s := newTestSupervisor(time.Hour)
	require.NoError(t, s.Register("panicky", func(context.Context) error { panic("kaboom") }))
	runSupervisor(t, s)

	require.Eventually(t, func() bool { return stateOf(s, "panicky").State == "failed" }, time.Second, 5*time.Millisecond)
	assert.Contains(t, stateOf(s, "panicky").LastError, "kaboom")
}

func TestSupervisorRestartsCleanExit(t *testing.T) {
	s := newTestSupervisor(20 * time.Millisecond)
	var runs atomic.Int32
	require.NoError(t, s.Register("short", func(context.Context) error {
		runs.Add(1)
		return nil
	}))
	runSupervisor(t, s)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
}

func TestSupervisorDuplicateRegister(t *testing.T) {
	s := newTestSupervisor(time.Second)
	require.NoError(t, s.Register("x", func(context.Context) error { return nil }))
	assert.Error(t, s.Register("x", func(context.Context) error { return nil }))
}

func TestSupervisorStopsRestartingOnShutdown(t *testing.T) {
	s := newTestSupervisor(0)
	var runs atomic.Int32
	require.NoError(t, s.Register("loop", func(ctx context.Context) error {
		runs.Add(1)
		<-ctx.Done()
		return ctx.Err()
	}))
	cancel := runSupervisor(t, s)

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	time.Sleep(30 * time.Millisecond)

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, "finished", stateOf(s, "loop").State, "cancellation is not a failure")
}

// TestAggregatorRestartAfterMidSweepFailure checks that a failed page ends the
// aggregator, and that its restart waits the delay and begins from an empty
// cursor.
func TestAggregatorRestartAfterMidSweepFailure(t *testing.T) {
	stub := &pagedStub{
		pages: []docstore.AggregatePage{
			{Buckets: []docstore.Bucket{{Key: "/a", DocCount: 2}}, AfterKey: after("/a")},
		},
		errs: map[int]error{1: &docstore.StoreError{Op: docstore.OpAggregate, Err: docstore.ErrTransport}},
	}
	agg := newTestAggregator(stub, make(chan Candidate, 10))

	delay := 100 * time.Millisecond
	s := newTestSupervisor(delay)
	require.NoError(t, s.Register(TaskAggregator, agg.Run))
	runSupervisor(t, s)

	require.Eventually(t, func() bool {
		reqs, _ := stub.snapshot()
		return len(reqs) >= 3
	}, 2*time.Second, 5*time.Millisecond)

	reqs, times := stub.snapshot()
	assert.NotNil(t, reqs[1].After, "failure happened mid-sweep")
	assert.Nil(t, reqs[2].After, "restart begins with an empty cursor")
	assert.GreaterOrEqual(t, times[2].Sub(times[1]), delay)
	assert.Equal(t, 1, stateOf(s, TaskAggregator).Restarts)
}
