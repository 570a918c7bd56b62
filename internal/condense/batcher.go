package condense

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dray-io/fimcondense/internal/audit"
	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/logging"
)

// BatcherConfig configures a Batcher.
type BatcherConfig struct {
	Index string
	Field string

	// BufferSize is the number of distinct file ids held before a flush.
	// A flush happens as soon as the count exceeds BufferSize.
	// Default: 100
	BufferSize int

	// FlushInterval bounds how long a criterion waits before being flushed.
	// Default: 5s
	FlushInterval time.Duration

	// ShutdownTimeout bounds the final flush.
	// Default: 10s
	ShutdownTimeout time.Duration

	// SinkTimeout bounds each audit write. A sink that does not answer in
	// time loses the record; the batcher moves on.
	// Default: 10s
	SinkTimeout time.Duration
}

// DefaultBatcherConfig returns a default configuration.
func DefaultBatcherConfig() BatcherConfig {
	return BatcherConfig{
		Field:           DefaultFields().File,
		BufferSize:      100,
		FlushInterval:   5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SinkTimeout:     10 * time.Second,
	}
}

// Batcher merges delete criteria and flushes them as delete-by-query calls
// when the buffer overflows or the flush interval ticks.
type Batcher struct {
	store   docstore.Store
	in      <-chan DeleteCriterion
	config  BatcherConfig
	logger  *logging.Logger
	metrics MetricsRecorder
	sink    audit.Sink
}

// NewBatcher creates a Batcher reading from in.
func NewBatcher(store docstore.Store, in <-chan DeleteCriterion, config BatcherConfig) *Batcher {
	d := DefaultBatcherConfig()
	if config.Field == "" {
		config.Field = d.Field
	}
	if config.BufferSize <= 0 {
		config.BufferSize = d.BufferSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = d.FlushInterval
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = d.ShutdownTimeout
	}
	if config.SinkTimeout <= 0 {
		config.SinkTimeout = d.SinkTimeout
	}
	return &Batcher{
		store:   store,
		in:      in,
		config:  config,
		logger:  logging.Global().Named("batcher"),
		metrics: nopRecorder{},
	}
}

// SetLogger replaces the logger.
func (b *Batcher) SetLogger(l *logging.Logger) { b.logger = l.Named("batcher") }

// SetMetrics sets the metrics recorder.
func (b *Batcher) SetMetrics(m MetricsRecorder) { b.metrics = recorderOrNop(m) }

// SetSink sets where flush records are written. Nil disables auditing.
func (b *Batcher) SetSink(s audit.Sink) { b.sink = s }

// Run consumes criteria until the input channel is closed or ctx is
// cancelled. Either way whatever is still pending gets a final flush bounded
// by ShutdownTimeout, and Run returns nil.
func (b *Batcher) Run(ctx context.Context) error {
	pending := newPendingSet()
	ticker := time.NewTicker(b.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case c, ok := <-b.in:
			if !ok {
				b.finalFlush(ctx, pending)
				return nil
			}
			pending.merge(c)
			b.metrics.SetPending(pending.fileCount(), pending.pairCount())
			if pending.fileCount() > b.config.BufferSize {
				b.flush(ctx, pending, audit.TriggerSize)
				ticker.Reset(b.config.FlushInterval)
			}

		case <-ticker.C:
			if !pending.empty() {
				b.flush(ctx, pending, audit.TriggerInterval)
			}

		case <-ctx.Done():
			b.finalFlush(ctx, pending)
			return nil
		}
	}
}

func (b *Batcher) finalFlush(ctx context.Context, pending *pendingSet) {
	if pending.empty() {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.config.ShutdownTimeout)
	defer cancel()
	b.flush(fctx, pending, audit.TriggerShutdown)
}

// flush sends the pending set as one delete-by-query and clears it whatever
// the outcome.
func (b *Batcher) flush(ctx context.Context, pending *pendingSet, trigger audit.Trigger) {
	q := pending.query(b.config.Field)
	pending.reset()
	b.metrics.SetPending(0, 0)

	rec := audit.FlushRecord{
		FlushID:   uuid.NewString(),
		Index:     b.config.Index,
		Trigger:   trigger,
		FileIDs:   q.FileIDs,
		KeepPairs: make([]audit.KeepPair, 0, len(q.Exclude)),
		StartedAt: time.Now().UTC(),
	}
	for _, ref := range q.Exclude {
		rec.KeepPairs = append(rec.KeepPairs, audit.KeepPair{ID: ref.ID, Index: ref.Index})
	}

	res, err := b.store.DeleteByQuery(ctx, b.config.Index, q)
	elapsed := time.Since(rec.StartedAt)
	rec.DurationMs = elapsed.Milliseconds()
	rec.Deleted = res.Deleted
	rec.VersionConflicts = res.VersionConflicts
	rec.Failures = res.Failures

	b.metrics.RecordFlush(string(trigger), elapsed.Seconds(), err == nil, len(q.FileIDs), len(q.Exclude), res.Deleted)

	log := b.logger.With(logging.Fields{
		"flushId":   rec.FlushID,
		"trigger":   string(trigger),
		"fileIds":   len(q.FileIDs),
		"keepPairs": len(q.Exclude),
	})
	if err != nil {
		rec.Error = err.Error()
		log.Errorf("delete flush failed, pending criteria dropped", logging.Fields{"error": err})
	} else {
		log.Infof("delete flush complete", logging.Fields{
			"deleted":          res.Deleted,
			"versionConflicts": res.VersionConflicts,
			"failures":         res.Failures,
			"durationMs":       rec.DurationMs,
		})
	}

	b.writeAudit(ctx, rec, log)
}

func (b *Batcher) writeAudit(ctx context.Context, rec audit.FlushRecord, log *logging.Logger) {
	if b.sink == nil {
		return
	}
	wctx, cancel := context.WithTimeout(ctx, b.config.SinkTimeout)
	defer cancel()
	if err := b.sink.Write(wctx, rec); err != nil {
		log.Warnf("audit write failed", logging.Fields{"error": err})
	}
}
