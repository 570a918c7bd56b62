// Package lease keeps a single condenser active per index pattern.
//
// The lease is an ephemeral key in the metadata store. It disappears when
// the holder's session ends (crash, disconnect), letting a standby replica
// take over without manual intervention.
package lease

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dray-io/fimcondense/internal/logging"
	"github.com/dray-io/fimcondense/internal/metadata"
)

// KeyPrefix is the metadata key prefix for condenser leases.
const KeyPrefix = "/fimcondense/v1/lease/"

// ErrInvalidIndex is returned for an empty index pattern.
var ErrInvalidIndex = errors.New("lease: index is required")

// Key returns the metadata key guarding index.
func Key(index string) string {
	return KeyPrefix + index
}

// Lease is the value stored under the lease key.
type Lease struct {
	Index        string `json:"index"`
	HolderID     string `json:"holderId"`
	Hostname     string `json:"hostname,omitempty"`
	Epoch        int64  `json:"epoch"`
	AcquiredAtMs int64  `json:"acquiredAtMs"`
}

// AcquireResult represents the result of attempting to acquire the lease.
type AcquireResult struct {
	// Acquired is true if this holder now owns the lease.
	Acquired bool

	// Lease is ours when Acquired, otherwise the current holder's.
	Lease *Lease
}

// MetricsRecorder receives lease state changes.
type MetricsRecorder interface {
	SetLeaseHeld(held bool)
}

// Manager acquires and releases the lease for one index pattern.
type Manager struct {
	meta     metadata.MetadataStore
	index    string
	holderID string
	hostname string

	mu      sync.Mutex
	held    *Lease
	version metadata.Version

	log     *logging.Logger
	metrics MetricsRecorder
}

// NewManager creates a lease manager. holderID identifies this process and
// must be unique across replicas.
func NewManager(meta metadata.MetadataStore, index, holderID, hostname string) (*Manager, error) {
	if index == "" {
		return nil, ErrInvalidIndex
	}
	return &Manager{
		meta:     meta,
		index:    index,
		holderID: holderID,
		hostname: hostname,
		log:      logging.Global().Named("lease"),
	}, nil
}

// SetLogger replaces the logger.
func (m *Manager) SetLogger(l *logging.Logger) { m.log = l.Named("lease") }

// SetMetrics sets the recorder notified when the lease is gained or lost.
func (m *Manager) SetMetrics(r MetricsRecorder) { m.metrics = r }

// Key returns the metadata key this manager contends for.
func (m *Manager) Key() string { return Key(m.index) }

// Held reports whether this manager believes it holds the lease.
func (m *Manager) Held() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.held != nil
}

// Acquire makes one attempt at the lease. If this holder already owns it the
// lease is rewritten with a version check. If another holder owns it the
// result has Acquired=false and that holder's lease.
func (m *Manager) Acquire(ctx context.Context) (*AcquireResult, error) {
	key := m.Key()

	result, err := m.meta.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lease: get: %w", err)
	}

	if result.Exists {
		var existing Lease
		if err := json.Unmarshal(result.Value, &existing); err != nil {
			return nil, fmt.Errorf("lease: unmarshal: %w", err)
		}
		if existing.HolderID != m.holderID {
			m.setHeld(nil, 0)
			return &AcquireResult{Acquired: false, Lease: &existing}, nil
		}

		existing.Epoch++
		existing.AcquiredAtMs = time.Now().UnixMilli()
		return m.put(ctx, key, existing, metadata.WithEphemeralExpectedVersion(result.Version))
	}

	lease := Lease{
		Index:        m.index,
		HolderID:     m.holderID,
		Hostname:     m.hostname,
		Epoch:        1,
		AcquiredAtMs: time.Now().UnixMilli(),
	}
	return m.put(ctx, key, lease, metadata.WithEphemeralExpectNotExists())
}

func (m *Manager) put(ctx context.Context, key string, lease Lease, opt metadata.EphemeralOption) (*AcquireResult, error) {
	data, err := json.Marshal(lease)
	if err != nil {
		return nil, fmt.Errorf("lease: marshal: %w", err)
	}

	version, err := m.meta.PutEphemeral(ctx, key, data, opt)
	if err != nil {
		if errors.Is(err, metadata.ErrVersionMismatch) {
			return m.handleConflict(ctx, key)
		}
		return nil, fmt.Errorf("lease: put: %w", err)
	}

	m.setHeld(&lease, version)
	return &AcquireResult{Acquired: true, Lease: &lease}, nil
}

// handleConflict re-reads the lease after a lost race and returns the holder.
func (m *Manager) handleConflict(ctx context.Context, key string) (*AcquireResult, error) {
	m.setHeld(nil, 0)

	result, err := m.meta.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("lease: get after conflict: %w", err)
	}
	if !result.Exists {
		return &AcquireResult{Acquired: false}, nil
	}
	var existing Lease
	if err := json.Unmarshal(result.Value, &existing); err != nil {
		return nil, fmt.Errorf("lease: unmarshal after conflict: %w", err)
	}
	return &AcquireResult{Acquired: false, Lease: &existing}, nil
}

// WaitAcquire retries Acquire every interval until the lease is held or ctx
// is done. Store errors are logged and retried.
func (m *Manager) WaitAcquire(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastHolder := ""
	for {
		res, err := m.Acquire(ctx)
		switch {
		case err != nil:
			m.log.Warnf("lease acquire failed", logging.Fields{"key": m.Key(), "error": err})
		case res.Acquired:
			m.log.Infof("lease acquired", logging.Fields{"key": m.Key(), "epoch": res.Lease.Epoch})
			return nil
		case res.Lease != nil && res.Lease.HolderID != lastHolder:
			lastHolder = res.Lease.HolderID
			m.log.Infof("lease held by another condenser, waiting", logging.Fields{
				"key":      m.Key(),
				"holder":   res.Lease.HolderID,
				"hostname": res.Lease.Hostname,
			})
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Watch polls the lease every interval and closes the returned channel once
// this holder no longer owns it. The channel is also closed when ctx ends.
func (m *Manager) Watch(ctx context.Context, interval time.Duration) <-chan struct{} {
	lost := make(chan struct{})
	go func() {
		defer close(lost)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			ok, err := m.stillHeld(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				// The session outlives transient store errors; only a missing
				// or foreign key means the lease is gone.
				m.log.Warnf("lease check failed", logging.Fields{"key": m.Key(), "error": err})
				continue
			}
			if !ok {
				m.setHeld(nil, 0)
				m.log.Errorf("lease lost", logging.Fields{"key": m.Key()})
				return
			}
		}
	}()
	return lost
}

func (m *Manager) stillHeld(ctx context.Context) (bool, error) {
	result, err := m.meta.Get(ctx, m.Key())
	if err != nil {
		return false, err
	}
	if !result.Exists {
		return false, nil
	}
	var current Lease
	if err := json.Unmarshal(result.Value, &current); err != nil {
		return false, fmt.Errorf("lease: unmarshal: %w", err)
	}
	return current.HolderID == m.holderID, nil
}

// Release deletes the lease if this holder owns it. Releasing a lease that is
// not held, or that was taken over meanwhile, is not an error.
func (m *Manager) Release(ctx context.Context) error {
	m.mu.Lock()
	held, version := m.held, m.version
	m.mu.Unlock()
	if held == nil {
		return nil
	}

	err := m.meta.Delete(ctx, m.Key(), metadata.WithDeleteExpectedVersion(version))
	if err != nil && !errors.Is(err, metadata.ErrVersionMismatch) {
		return fmt.Errorf("lease: delete: %w", err)
	}
	m.setHeld(nil, 0)
	m.log.Infof("lease released", logging.Fields{"key": m.Key()})
	return nil
}

func (m *Manager) setHeld(l *Lease, v metadata.Version) {
	m.mu.Lock()
	m.held = l
	m.version = v
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.SetLeaseHeld(l != nil)
	}
}
