package condense

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/logging"
)

// AggregatorConfig configures an Aggregator.
type AggregatorConfig struct {
	Index string
	Field string

	// PageSize is the number of buckets requested per page.
	// Default: 10
	PageSize int

	// SweepInterval is the pause after a completed sweep.
	// Default: 20s
	SweepInterval time.Duration
}

// DefaultAggregatorConfig returns a default configuration.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{
		Field:         DefaultFields().File,
		PageSize:      10,
		SweepInterval: 20 * time.Second,
	}
}

// Aggregator sweeps the store for files with more than one event and emits
// them as candidates.
type Aggregator struct {
	store   docstore.Store
	out     chan<- Candidate
	config  AggregatorConfig
	logger  *logging.Logger
	metrics MetricsRecorder
}

// NewAggregator creates an Aggregator sending on out.
func NewAggregator(store docstore.Store, out chan<- Candidate, config AggregatorConfig) *Aggregator {
	d := DefaultAggregatorConfig()
	if config.Field == "" {
		config.Field = d.Field
	}
	if config.PageSize <= 0 {
		config.PageSize = d.PageSize
	}
	if config.SweepInterval < 0 {
		config.SweepInterval = 0
	}
	return &Aggregator{
		store:   store,
		out:     out,
		config:  config,
		logger:  logging.Global().Named("aggregator"),
		metrics: nopRecorder{},
	}
}

// SetLogger replaces the logger.
func (a *Aggregator) SetLogger(l *logging.Logger) { a.logger = l.Named("aggregator") }

// SetMetrics sets the metrics recorder.
func (a *Aggregator) SetMetrics(m MetricsRecorder) { a.metrics = recorderOrNop(m) }

// Run sweeps until ctx is cancelled, returning nil. A transport failure or
// rejected query ends Run with the error; the caller restarts it and the new
// run begins with an empty cursor.
func (a *Aggregator) Run(ctx context.Context) error {
	for {
		if err := a.Sweep(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if !sleepCtx(ctx, a.config.SweepInterval) {
			return nil
		}
	}
}

// Sweep pages through the whole aggregation once.
func (a *Aggregator) Sweep(ctx context.Context) error {
	start := time.Now()
	var (
		after      json.RawMessage
		pages      int
		candidates int
	)

	for {
		page, err := a.store.Aggregate(ctx, docstore.AggregateRequest{
			Index:    a.config.Index,
			Field:    a.config.Field,
			PageSize: a.config.PageSize,
			After:    after,
		})
		if err != nil {
			if !errors.Is(err, docstore.ErrResponseParse) {
				return fmt.Errorf("condense: aggregate page %d: %w", pages+1, err)
			}
			a.logger.Warnf("unparseable aggregation page, ending sweep", logging.Fields{"page": pages + 1, "error": err})
			page = docstore.AggregatePage{}
		}
		pages++

		if len(page.Buckets) == 0 {
			break
		}

		for _, b := range page.Buckets {
			if b.MissingDocCount {
				a.logger.Warnf("bucket without doc_count", logging.Fields{"fileId": b.Key})
				continue
			}
			if b.DocCount <= 1 {
				continue
			}
			select {
			case a.out <- Candidate{FileID: b.Key, DocCount: b.DocCount}:
				candidates++
				a.metrics.RecordCandidate()
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		if len(page.AfterKey) == 0 {
			break
		}
		after = page.AfterKey
	}

	elapsed := time.Since(start)
	a.metrics.RecordSweep(elapsed.Seconds(), pages, candidates)
	a.logger.Infof("sweep complete", logging.Fields{
		"pages":      pages,
		"candidates": candidates,
		"durationMs": elapsed.Milliseconds(),
	})
	return nil
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
