package docstore

import (
	"context"
	"time"
)

// MetricsRecorder is the interface for recording document store metrics.
// This allows the docstore package to be decoupled from the metrics package.
type MetricsRecorder interface {
	RecordRequest(op string, durationSeconds float64, success bool)
	RecordBuckets(n int)
	RecordDeleted(deleted int64, conflicts int64)
}

// InstrumentedStore wraps a Store and records metrics for each operation.
type InstrumentedStore struct {
	store   Store
	metrics MetricsRecorder
}

// NewInstrumentedStore creates an instrumented wrapper around a Store.
// If metrics is nil, operations pass through directly.
func NewInstrumentedStore(store Store, metrics MetricsRecorder) *InstrumentedStore {
	return &InstrumentedStore{store: store, metrics: metrics}
}

func (s *InstrumentedStore) Aggregate(ctx context.Context, req AggregateRequest) (AggregatePage, error) {
	start := time.Now()
	page, err := s.store.Aggregate(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordRequest(OpAggregate, time.Since(start).Seconds(), err == nil)
		if err == nil {
			s.metrics.RecordBuckets(len(page.Buckets))
		}
	}
	return page, err
}

func (s *InstrumentedStore) SearchLatest(ctx context.Context, req SearchRequest) ([]Hit, error) {
	start := time.Now()
	hits, err := s.store.SearchLatest(ctx, req)
	if s.metrics != nil {
		s.metrics.RecordRequest(OpSearch, time.Since(start).Seconds(), err == nil)
	}
	return hits, err
}

func (s *InstrumentedStore) DeleteByQuery(ctx context.Context, index string, q DeleteQuery) (DeleteResult, error) {
	start := time.Now()
	res, err := s.store.DeleteByQuery(ctx, index, q)
	if s.metrics != nil {
		s.metrics.RecordRequest(OpDeleteByQuery, time.Since(start).Seconds(), err == nil)
		if err == nil {
			s.metrics.RecordDeleted(res.Deleted, res.VersionConflicts)
		}
	}
	return res, err
}

func (s *InstrumentedStore) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.store.Ping(ctx)
	if s.metrics != nil {
		s.metrics.RecordRequest(OpPing, time.Since(start).Seconds(), err == nil)
	}
	return err
}

func (s *InstrumentedStore) Close() error {
	return s.store.Close()
}

// Ensure InstrumentedStore implements Store.
var _ Store = (*InstrumentedStore)(nil)
