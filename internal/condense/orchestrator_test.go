package condense

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dray-io/fimcondense/internal/audit"
	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/logging"
)

func testPipelineConfig() Config {
	cfg := DefaultConfig()
	cfg.Index = "idx*"
	cfg.ActionBufferSize = 4
	cfg.MaxInFlight = 3
	cfg.PageSize = 2
	cfg.SweepInterval = 30 * time.Millisecond
	cfg.DeleteBufferSize = 100
	cfg.FlushInterval = 20 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	cfg.RestartDelay = 20 * time.Millisecond
	cfg.SuperviseInterval = 5 * time.Millisecond
	return cfg
}

func TestOrchestratorCondenses(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Add(
		// modified: newest kept
		fimDoc("a1", "idx1", "/etc/a", "2024-01-01T00:00:00Z", "created"),
		fimDoc("a2", "idx1", "/etc/a", "2024-01-02T00:00:00Z", "modified"),
		fimDoc("a3", "idx2", "/etc/a", "2024-01-03T00:00:00Z", "modified"),
		// deleted: nothing kept
		fimDoc("b1", "idx1", "/etc/b", "2024-01-01T00:00:00Z", "created"),
		fimDoc("b2", "idx1", "/etc/b", "2024-01-02T00:00:00Z", "deleted"),
		// single record: untouched
		fimDoc("c1", "idx1", "/etc/c", "2024-01-01T00:00:00Z", "created"),
		// other index: untouched
		fimDoc("d1", "other", "/etc/a", "2023-01-01T00:00:00Z", "created"),
	)
	for i := 0; i < 5; i++ {
		file := fmt.Sprintf("/var/f%d", i)
		mem.Add(
			fimDoc(file+"-old", "idx1", file, "2024-01-01T00:00:00Z", "created"),
			fimDoc(file+"-new", "idx1", file, "2024-02-01T00:00:00Z", "modified"),
		)
	}

	o := NewOrchestrator(mem, testPipelineConfig())
	o.SetLogger(logging.Discard())
	sink := audit.NewMemorySink(64)
	o.SetSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	want := []string{"a3", "c1", "d1", "/var/f0-new", "/var/f1-new", "/var/f2-new", "/var/f3-new", "/var/f4-new"}
	require.Eventually(t, func() bool { return len(docIDs(mem)) == len(want) }, 3*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, want, docIDs(mem))

	require.Eventually(t, func() bool { return len(o.Unhealthy()) == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("orchestrator did not stop")
	}

	var flushed int64
	for len(sink.Records()) > 0 {
		flushed += (<-sink.Records()).Deleted
	}
	assert.Equal(t, int64(9), flushed)
}

func TestOrchestratorSurvivesStoreFailures(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Add(
		fimDoc("a1", "idx1", "/a", "2024-01-01T00:00:00Z", "created"),
		fimDoc("a2", "idx1", "/a", "2024-01-02T00:00:00Z", "modified"),
	)
	mem.FailNext(docstore.OpAggregate, docstore.ErrTransport)
	mem.FailNext(docstore.OpSearch, docstore.ErrTransport)

	o := NewOrchestrator(mem, testPipelineConfig())
	o.SetLogger(logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		ids := docIDs(mem)
		return len(ids) == 1 && ids[0] == "a2"
	}, 3*time.Second, 10*time.Millisecond)

	var aggRestarts int
	for _, st := range o.Status() {
		if st.Name == TaskAggregator {
			aggRestarts = st.Restarts
		}
	}
	assert.GreaterOrEqual(t, aggRestarts, 1)

	cancel()
	require.NoError(t, <-done)
}

func TestOrchestratorFinalFlushOnShutdown(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Add(
		fimDoc("a1", "idx1", "/a", "2024-01-01T00:00:00Z", "created"),
		fimDoc("a2", "idx1", "/a", "2024-01-02T00:00:00Z", "modified"),
	)
	cfg := testPipelineConfig()
	cfg.FlushInterval = time.Hour
	o := NewOrchestrator(mem, cfg)
	o.SetLogger(logging.Discard())
	sink := audit.NewMemorySink(4)
	o.SetSink(sink)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return mem.Calls(docstore.OpSearch) >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	rec := <-sink.Records()
	assert.Equal(t, audit.TriggerShutdown, rec.Trigger)
	assert.Equal(t, []string{"a2"}, docIDs(mem))
}

// emptySearchStore finds no record for any file, as when every event of a
// candidate disappeared between the sweep and the search.
type emptySearchStore struct{ *docstore.MemoryStore }

func (emptySearchStore) SearchLatest(context.Context, docstore.SearchRequest) ([]docstore.Hit, error) {
	return nil, nil
}

type dropMetrics struct {
	nopRecorder
	mu    sync.Mutex
	drops map[string]int
}

func (m *dropMetrics) RecordCriterionDropped(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[reason]++
}

func (m *dropMetrics) count(reason string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.drops[reason]
}

func TestOrchestratorDropsFileWithoutRecords(t *testing.T) {
	mem := docstore.NewMemoryStore()
	mem.Add(
		fimDoc("a1", "idx1", "/a", "2024-01-01T00:00:00Z", "created"),
		fimDoc("a2", "idx1", "/a", "2024-01-02T00:00:00Z", "modified"),
	)
	o := NewOrchestrator(emptySearchStore{mem}, testPipelineConfig())
	o.SetLogger(logging.Discard())
	m := &dropMetrics{drops: map[string]int{}}
	o.SetMetrics(m)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool { return m.count(DropUnknownFile) >= 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	assert.Empty(t, mem.DeleteQueries())
	assert.ElementsMatch(t, []string{"a1", "a2"}, docIDs(mem))
}
