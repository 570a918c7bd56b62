package condense

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dray-io/fimcondense/internal/audit"
	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/logging"
)

// Task names registered with the Supervisor.
const (
	TaskAggregator = "aggregator"
	TaskBatcher    = "batcher"
)

// Config configures the whole pipeline.
type Config struct {
	Index  string
	Fields Fields

	// ActionBufferSize bounds both inter-stage channels.
	ActionBufferSize int

	// MaxInFlight bounds concurrent per-candidate tasks.
	MaxInFlight int

	PageSize          int
	SweepInterval     time.Duration
	DeleteBufferSize  int
	FlushInterval     time.Duration
	ShutdownTimeout   time.Duration
	SinkTimeout       time.Duration
	RestartDelay      time.Duration
	SuperviseInterval time.Duration
	SearchesPerSecond float64
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Index:             ".ds-logs-fim.event-default*",
		Fields:            DefaultFields(),
		ActionBufferSize:  1024,
		MaxInFlight:       64,
		PageSize:          10,
		SweepInterval:     20 * time.Second,
		DeleteBufferSize:  100,
		FlushInterval:     5 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		SinkTimeout:       10 * time.Second,
		RestartDelay:      5 * time.Second,
		SuperviseInterval: time.Second,
	}
}

// Orchestrator wires the stages together and runs them.
type Orchestrator struct {
	store   docstore.Store
	config  Config
	logger  *logging.Logger
	metrics MetricsRecorder
	sink    audit.Sink

	supervisor *Supervisor
	inFlight   atomic.Int64
}

// NewOrchestrator creates an Orchestrator over store.
func NewOrchestrator(store docstore.Store, config Config) *Orchestrator {
	d := DefaultConfig()
	config.Fields = config.Fields.withDefaults()
	if config.ActionBufferSize <= 0 {
		config.ActionBufferSize = d.ActionBufferSize
	}
	if config.MaxInFlight <= 0 {
		config.MaxInFlight = d.MaxInFlight
	}
	if config.SuperviseInterval <= 0 {
		config.SuperviseInterval = d.SuperviseInterval
	}
	o := &Orchestrator{
		store:   store,
		config:  config,
		logger:  logging.Global(),
		metrics: nopRecorder{},
	}
	o.supervisor = NewSupervisor(SupervisorConfig{
		RestartDelay: config.RestartDelay,
		Interval:     config.SuperviseInterval,
	})
	return o
}

// SetLogger replaces the logger used by every stage.
func (o *Orchestrator) SetLogger(l *logging.Logger) {
	o.logger = l
	o.supervisor.SetLogger(l)
}

// SetMetrics sets the metrics recorder used by every stage.
func (o *Orchestrator) SetMetrics(m MetricsRecorder) {
	o.metrics = recorderOrNop(m)
	o.supervisor.SetMetrics(m)
}

// SetSink sets the audit sink for flush records.
func (o *Orchestrator) SetSink(s audit.Sink) { o.sink = s }

// Status returns the supervised task states.
func (o *Orchestrator) Status() []TaskStatus { return o.supervisor.Snapshot() }

// Unhealthy returns the supervised tasks that are not running.
func (o *Orchestrator) Unhealthy() []string { return o.supervisor.Unhealthy() }

// Run runs the pipeline until ctx is cancelled. Shutdown order: the
// aggregator and dispatcher stop, in-flight tasks drain, then the batcher
// flushes what it holds and exits.
func (o *Orchestrator) Run(ctx context.Context) error {
	candidates := make(chan Candidate, o.config.ActionBufferSize)
	criteria := make(chan DeleteCriterion, o.config.ActionBufferSize)

	aggregator := NewAggregator(o.store, candidates, AggregatorConfig{
		Index:         o.config.Index,
		Field:         o.config.Fields.File,
		PageSize:      o.config.PageSize,
		SweepInterval: o.config.SweepInterval,
	})
	aggregator.SetLogger(o.logger)
	aggregator.SetMetrics(o.metrics)

	batcher := NewBatcher(o.store, criteria, BatcherConfig{
		Index:           o.config.Index,
		Field:           o.config.Fields.File,
		BufferSize:      o.config.DeleteBufferSize,
		FlushInterval:   o.config.FlushInterval,
		ShutdownTimeout: o.config.ShutdownTimeout,
		SinkTimeout:     o.config.SinkTimeout,
	})
	batcher.SetLogger(o.logger)
	batcher.SetMetrics(o.metrics)
	batcher.SetSink(o.sink)

	resolver := NewResolver(o.store, ResolverConfig{
		Index:             o.config.Index,
		Fields:            o.config.Fields,
		SearchesPerSecond: o.config.SearchesPerSecond,
	})

	// The batcher outlives ctx: it stops when criteria is closed, after the
	// workers feeding it are gone.
	batchCtx, cancelBatch := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelBatch()

	if err := o.supervisor.Register(TaskAggregator, aggregator.Run); err != nil {
		return err
	}
	if err := o.supervisor.Register(TaskBatcher, func(context.Context) error {
		return batcher.Run(batchCtx)
	}); err != nil {
		return err
	}

	supDone := make(chan struct{})
	go func() {
		defer close(supDone)
		_ = o.supervisor.Run(ctx)
	}()

	o.logger.Infof("pipeline started", logging.Fields{
		"index":       o.config.Index,
		"fileField":   o.config.Fields.File,
		"maxInFlight": o.config.MaxInFlight,
	})

	o.dispatch(ctx, candidates, criteria, resolver)

	close(criteria)
	<-supDone
	o.logger.Info("pipeline stopped")
	return nil
}

// dispatch runs one task per candidate until ctx is cancelled, then waits
// for in-flight tasks.
func (o *Orchestrator) dispatch(ctx context.Context, candidates <-chan Candidate, criteria chan<- DeleteCriterion, resolver *Resolver) {
	var g errgroup.Group
	g.SetLimit(o.config.MaxInFlight)

	defer func() {
		_ = g.Wait()
		o.metrics.SetInFlight(0)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-candidates:
			g.Go(func() error {
				o.metrics.SetInFlight(int(o.inFlight.Add(1)))
				defer func() { o.metrics.SetInFlight(int(o.inFlight.Add(-1))) }()
				o.process(ctx, c, criteria, resolver)
				return nil
			})
		}
	}
}

// process resolves and classifies one candidate and hands the criterion to
// the batcher. Failures are logged and the candidate is dropped. A file with
// no records resolves to the all-sentinel event; it is counted as
// DropUnknownFile and never classified, so no sentinel criterion reaches the
// batcher.
func (o *Orchestrator) process(ctx context.Context, c Candidate, criteria chan<- DeleteCriterion, resolver *Resolver) {
	ev, err := resolver.Resolve(ctx, c.FileID)
	if err != nil {
		o.metrics.RecordResolve(ResolveError)
		o.metrics.RecordCriterionDropped(DropResolve)
		if ctx.Err() == nil {
			o.logger.Warnf("resolve failed", logging.Fields{"fileId": c.FileID, "error": err})
		}
		return
	}

	if ev.FileID == UnknownFileID {
		o.metrics.RecordResolve(ResolveNotFound)
		o.metrics.RecordCriterionDropped(DropUnknownFile)
		o.logger.Debugf("no record for candidate", logging.Fields{"fileId": c.FileID})
		return
	}
	o.metrics.RecordResolve(ResolveFound)

	crit := Classify(ev)
	select {
	case criteria <- crit:
	case <-ctx.Done():
		o.metrics.RecordCriterionDropped(DropShutdown)
	}
}
