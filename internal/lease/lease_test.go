package lease

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dray-io/fimcondense/internal/logging"
	"github.com/dray-io/fimcondense/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testIndex = ".ds-logs-fim.event-default*"

type heldRecorder struct {
	mu   sync.Mutex
	last bool
	sets int
}

func (r *heldRecorder) SetLeaseHeld(held bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = held
	r.sets++
}

func (r *heldRecorder) held() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func newTestManager(t *testing.T, meta metadata.MetadataStore, holder string) *Manager {
	t.Helper()
	m, err := NewManager(meta, testIndex, holder, "host-"+holder)
	require.NoError(t, err)
	m.SetLogger(logging.Discard())
	return m
}

func TestKey(t *testing.T) {
	assert.Equal(t, "/fimcondense/v1/lease/"+testIndex, Key(testIndex))
}

func TestNewManagerRequiresIndex(t *testing.T) {
	_, err := NewManager(metadata.NewMockStore(), "", "a", "")
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestAcquireFresh(t *testing.T) {
	meta := metadata.NewMockStore()
	m := newTestManager(t, meta, "a")
	rec := &heldRecorder{}
	m.SetMetrics(rec)

	res, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.Equal(t, int64(1), res.Lease.Epoch)
	assert.True(t, m.Held())
	assert.True(t, rec.held())

	stored, err := meta.Get(context.Background(), Key(testIndex))
	require.NoError(t, err)
	var l Lease
	require.NoError(t, json.Unmarshal(stored.Value, &l))
	assert.Equal(t, "a", l.HolderID)
	assert.Equal(t, "host-a", l.Hostname)
	assert.Equal(t, testIndex, l.Index)
}

func TestAcquireHeldByOther(t *testing.T) {
	meta := metadata.NewMockStore()
	a := newTestManager(t, meta, "a")
	b := newTestManager(t, meta, "b")

	_, err := a.Acquire(context.Background())
	require.NoError(t, err)

	res, err := b.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Acquired)
	require.NotNil(t, res.Lease)
	assert.Equal(t, "a", res.Lease.HolderID)
	assert.False(t, b.Held())
}

func TestAcquireRenewBumpsEpoch(t *testing.T) {
	m := newTestManager(t, metadata.NewMockStore(), "a")

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	res, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Acquired)
	assert.Equal(t, int64(2), res.Lease.Epoch)
}

func TestAcquireStoreError(t *testing.T) {
	meta := metadata.NewMockStore()
	boom := errors.New("unavailable")
	meta.SetGetError(boom)

	_, err := newTestManager(t, meta, "a").Acquire(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestWaitAcquireAfterSessionExpiry(t *testing.T) {
	meta := metadata.NewMockStore()
	a := newTestManager(t, meta, "a")
	b := newTestManager(t, meta, "b")

	_, err := a.Acquire(context.Background())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- b.WaitAcquire(context.Background(), 10*time.Millisecond) }()

	select {
	case err := <-done:
		t.Fatalf("WaitAcquire returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	meta.ExpireSession()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("WaitAcquire did not take over after session expiry")
	}
	assert.True(t, b.Held())
}

func TestWaitAcquireCanceled(t *testing.T) {
	meta := metadata.NewMockStore()
	_, err := newTestManager(t, meta, "a").Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = newTestManager(t, meta, "b").WaitAcquire(ctx, 5*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWatchSignalsLoss(t *testing.T) {
	meta := metadata.NewMockStore()
	m := newTestManager(t, meta, "a")
	_, err := m.Acquire(context.Background())
	require.NoError(t, err)

	lost := m.Watch(context.Background(), 5*time.Millisecond)

	select {
	case <-lost:
		t.Fatal("lease reported lost while held")
	case <-time.After(30 * time.Millisecond):
	}

	meta.ExpireSession()

	select {
	case <-lost:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not report the lost lease")
	}
	assert.False(t, m.Held())
}

func TestReleaseDeletesOwnLease(t *testing.T) {
	meta := metadata.NewMockStore()
	m := newTestManager(t, meta, "a")
	rec := &heldRecorder{}
	m.SetMetrics(rec)

	require.NoError(t, m.Release(context.Background()), "release without holding is a no-op")

	_, err := m.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, m.Release(context.Background()))

	r, err := meta.Get(context.Background(), Key(testIndex))
	require.NoError(t, err)
	assert.False(t, r.Exists)
	assert.False(t, m.Held())
	assert.False(t, rec.held())
}

func TestReleaseAfterTakeoverKeepsNewHolder(t *testing.T) {
	meta := metadata.NewMockStore()
	a := newTestManager(t, meta, "a")
	b := newTestManager(t, meta, "b")

	_, err := a.Acquire(context.Background())
	require.NoError(t, err)
	meta.ExpireSession()
	res, err := b.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, res.Acquired)

	require.NoError(t, a.Release(context.Background()))

	r, err := meta.Get(context.Background(), Key(testIndex))
	require.NoError(t, err)
	require.True(t, r.Exists)
	var l Lease
	require.NoError(t, json.Unmarshal(r.Value, &l))
	assert.Equal(t, "b", l.HolderID)
}
