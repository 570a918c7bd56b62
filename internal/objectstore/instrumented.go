package objectstore

import (
	"context"
	"io"
	"time"
)

// MetricsRecorder is the interface for recording object store operation metrics.
// This allows the objectstore package to be decoupled from the metrics package.
type MetricsRecorder interface {
	RecordPut(durationSeconds float64, success bool, bytes int64)
	RecordGet(durationSeconds float64, success bool)
}

// InstrumentedStore wraps a Store and records metrics for each operation.
type InstrumentedStore struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumentedStore creates an instrumented wrapper around a Store.
// If metrics is nil, no metrics are recorded and operations pass through directly.
func NewInstrumentedStore(store Store, metrics MetricsRecorder) *InstrumentedStore {
	return &InstrumentedStore{store: store, metrics: metrics}
}

// Put stores an object at the given key.
func (s *InstrumentedStore) Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error {
	return s.PutWithOptions(ctx, key, reader, size, contentType, PutOptions{})
}

// PutWithOptions stores an object with additional options.
func (s *InstrumentedStore) PutWithOptions(ctx context.Context, key string, reader io.Reader, size int64, contentType string, opts PutOptions) error {
	start := time.Now()
	err := s.store.PutWithOptions(ctx, key, reader, size, contentType, opts)
	if s.metrics != nil {
		s.metrics.RecordPut(time.Since(start).Seconds(), err == nil, size)
	}
	return err
}

// Get retrieves an entire object.
func (s *InstrumentedStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := s.store.Get(ctx, key)
	if s.metrics != nil {
		s.metrics.RecordGet(time.Since(start).Seconds(), err == nil)
	}
	return rc, err
}

// Close releases resources associated with the store.
func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

// Ensure InstrumentedStore implements Store.
var _ Store = (*InstrumentedStore)(nil)
