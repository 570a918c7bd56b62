package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dray-io/fimcondense/internal/audit"
	"github.com/dray-io/fimcondense/internal/codec"
	"github.com/dray-io/fimcondense/internal/condense"
	"github.com/dray-io/fimcondense/internal/config"
	"github.com/dray-io/fimcondense/internal/docstore"
	"github.com/dray-io/fimcondense/internal/docstore/elastic"
	"github.com/dray-io/fimcondense/internal/lease"
	"github.com/dray-io/fimcondense/internal/logging"
	"github.com/dray-io/fimcondense/internal/metadata"
	metaoxia "github.com/dray-io/fimcondense/internal/metadata/oxia"
	"github.com/dray-io/fimcondense/internal/metrics"
	"github.com/dray-io/fimcondense/internal/objectstore"
	"github.com/dray-io/fimcondense/internal/objectstore/s3"
	"github.com/dray-io/fimcondense/internal/server"
)

// ErrLeaseLost is returned by Start when another condenser took over the
// index while this one was running.
var ErrLeaseLost = errors.New("condenser: lease lost")

// CondenserOptions contains the configuration for creating a condenser.
type CondenserOptions struct {
	Config     *config.Config
	Logger     *logging.Logger
	InstanceID string
	Hostname   string
	Version    string
	GitCommit  string
	BuildTime  string

	// DocStore and MetaStore replace the stores built from Config.
	DocStore  docstore.Store
	MetaStore metadata.MetadataStore

	// Registry receives every collector and backs /metrics. Nil uses the
	// process-wide default registry.
	Registry *prometheus.Registry
}

// Condenser is a running condensing daemon: pipeline, audit sinks, optional
// lease and the health server.
type Condenser struct {
	opts   CondenserOptions
	logger *logging.Logger

	docStore     docstore.Store
	metaStore    metadata.MetadataStore
	archiveStore objectstore.Store
	sink         audit.Sink
	leaseManager *lease.Manager
	orchestrator *condense.Orchestrator
	healthServer *server.HealthServer

	mu        sync.Mutex
	started   bool
	cancel    context.CancelFunc
	stoppedCh chan struct{}
}

// NewCondenser creates a condenser. Nothing is contacted until Start.
func NewCondenser(opts CondenserOptions) (*Condenser, error) {
	if opts.Config == nil {
		return nil, errors.New("condenser: config is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.Global()
	}
	if opts.InstanceID == "" {
		return nil, errors.New("condenser: instance id is required")
	}
	return &Condenser{
		opts:      opts,
		logger:    opts.Logger,
		stoppedCh: make(chan struct{}),
	}, nil
}

// HealthAddr returns the bound health server address, or "" before it is
// listening.
func (c *Condenser) HealthAddr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.healthServer == nil {
		return ""
	}
	return c.healthServer.Addr()
}

// Start opens the stores, starts the health server, waits for the lease when
// enabled and runs the pipeline. It blocks until the pipeline stops.
func (c *Condenser) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return errors.New("condenser already started")
	}
	c.started = true
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.mu.Unlock()
	defer close(c.stoppedCh)
	defer cancel()

	cfg := c.opts.Config
	reg := c.registerer()

	c.logger.Infof("starting condenser", logging.Fields{
		"instanceId": c.opts.InstanceID,
		"index":      cfg.Index,
		"version":    c.opts.Version,
	})

	store := c.opts.DocStore
	if store == nil {
		es, err := newDocStore(cfg.Store)
		if err != nil {
			return err
		}
		store = es
	}
	c.docStore = docstore.NewInstrumentedStore(store, metrics.NewDocStoreMetricsWithRegistry(reg))

	sink, err := c.openSinks(runCtx, reg)
	if err != nil {
		return err
	}
	c.sink = sink

	if cfg.Lease.Enabled {
		if err := c.openLease(runCtx, reg); err != nil {
			return err
		}
	}

	orch := condense.NewOrchestrator(c.docStore, pipelineConfig(cfg))
	orch.SetLogger(c.logger.Named("pipeline"))
	orch.SetMetrics(metrics.NewPipelineMetricsWithRegistry(reg))
	if c.sink != nil {
		orch.SetSink(c.sink)
	}
	c.orchestrator = orch

	if err := c.startHealthServer(); err != nil {
		return err
	}

	if c.leaseManager != nil {
		if err := c.leaseManager.WaitAcquire(runCtx, cfg.Lease.RetryInterval()); err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			return err
		}
		lost := c.leaseManager.Watch(runCtx, cfg.Lease.RetryInterval())
		go func() {
			<-lost
			cancel()
		}()
	}

	if err := orch.Run(runCtx); err != nil {
		return err
	}

	if c.leaseManager != nil && ctx.Err() == nil && !c.leaseManager.Held() {
		return ErrLeaseLost
	}
	c.logger.Info("condenser stopped")
	return nil
}

// Shutdown stops the pipeline, waits for the batcher's final flush, releases
// the lease and closes sinks and stores.
func (c *Condenser) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return nil
	}
	cancel := c.cancel
	c.mu.Unlock()

	c.logger.Info("shutting down condenser")

	if hs := c.health(); hs != nil {
		hs.SetShuttingDown()
	}
	cancel()

	select {
	case <-c.stoppedCh:
	case <-ctx.Done():
		c.logger.Warn("shutdown context cancelled, forcing stop")
	}

	var errs []error
	if c.leaseManager != nil {
		if err := c.leaseManager.Release(ctx); err != nil {
			c.logger.Warnf("failed to release lease", logging.Fields{"error": err})
			errs = append(errs, err)
		}
	}
	if c.sink != nil {
		if err := c.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close audit sinks: %w", err))
		}
	}
	if hs := c.health(); hs != nil {
		if err := hs.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close health server: %w", err))
		}
	}
	if c.metaStore != nil {
		if err := c.metaStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close metadata store: %w", err))
		}
	}
	if c.docStore != nil {
		if err := c.docStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close document store: %w", err))
		}
	}

	c.logger.Info("condenser shutdown complete")
	return errors.Join(errs...)
}

func (c *Condenser) health() *server.HealthServer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.healthServer
}

func (c *Condenser) registerer() prometheus.Registerer {
	if c.opts.Registry == nil {
		return prometheus.DefaultRegisterer
	}
	return c.opts.Registry
}

func (c *Condenser) metricsHandler() http.Handler {
	if c.opts.Registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(c.opts.Registry, promhttp.HandlerOpts{})
}

// openSinks builds the configured audit sinks. The result is nil when none
// is enabled.
func (c *Condenser) openSinks(ctx context.Context, reg prometheus.Registerer) (audit.Sink, error) {
	cfg := c.opts.Config.Audit
	var sinks audit.MultiSink

	if cfg.Kafka.Enabled {
		compression, err := codec.Parse(cfg.Kafka.Compression)
		if err != nil {
			return nil, err
		}
		ks, err := audit.NewKafkaSink(ctx, audit.KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			Topic:       cfg.Kafka.Topic,
			Compression: compression,
			CreateTopic: cfg.Kafka.CreateTopic,
			Partitions:  cfg.Kafka.Partitions,

			DeliveryTimeout: cfg.WriteTimeout(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create kafka audit sink: %w", err)
		}
		sinks = append(sinks, ks)
		c.logger.Infof("kafka audit sink enabled", logging.Fields{"topic": cfg.Kafka.Topic})
	}

	if cfg.Archive.Enabled {
		archiveCodec, err := codec.Parse(cfg.Archive.Codec)
		if err != nil {
			return nil, errors.Join(err, sinks.Close())
		}
		bucket, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKey,
			SecretAccessKey: cfg.Archive.SecretKey,
			UsePathStyle:    cfg.Archive.UsePathStyle,
		})
		if err != nil {
			return nil, errors.Join(fmt.Errorf("failed to initialize archive store: %w", err), sinks.Close())
		}
		c.archiveStore = objectstore.NewInstrumentedStore(bucket, metrics.NewObjectStoreMetricsWithRegistry(reg))
		as, err := audit.NewArchiveSink(c.archiveStore, audit.ArchiveConfig{
			Prefix: cfg.Archive.Prefix,
			Format: cfg.Archive.Format,
			Codec:  archiveCodec,
		})
		if err != nil {
			return nil, errors.Join(err, c.archiveStore.Close(), sinks.Close())
		}
		sinks = append(sinks, as)
		c.logger.Infof("archive audit sink enabled", logging.Fields{
			"bucket": cfg.Archive.Bucket,
			"format": cfg.Archive.Format,
		})
	}

	if len(sinks) == 0 {
		return nil, nil
	}
	return sinks, nil
}

func (c *Condenser) openLease(ctx context.Context, reg prometheus.Registerer) error {
	cfg := c.opts.Config.Lease

	meta := c.opts.MetaStore
	if meta == nil {
		store, err := metaoxia.New(ctx, metaoxia.Config{
			ServiceAddress: cfg.OxiaEndpoint,
			Namespace:      cfg.Namespace,
			RequestTimeout: 30 * time.Second,
			SessionTimeout: cfg.SessionTimeout(),
		})
		if err != nil {
			return fmt.Errorf("failed to create Oxia metadata store: %w", err)
		}
		meta = store
	}
	c.metaStore = meta

	mgr, err := lease.NewManager(meta, c.opts.Config.Index, c.opts.InstanceID, c.opts.Hostname)
	if err != nil {
		return err
	}
	mgr.SetLogger(c.logger)
	mgr.SetMetrics(metrics.NewLeaseMetricsWithRegistry(reg))
	c.leaseManager = mgr
	return nil
}

func (c *Condenser) startHealthServer() error {
	cfg := c.opts.Config

	hs := server.NewHealthServer(cfg.Observability.MetricsAddr, c.logger)
	hs.RegisterHandler("/metrics", c.metricsHandler())
	hs.SetTasks(c.orchestrator)
	hs.RegisterReadinessCheck(server.NewDocStoreChecker(c.docStore))
	if c.archiveStore != nil {
		hs.RegisterReadinessCheck(server.NewObjectStoreChecker(c.archiveStore,
			path.Join(cfg.Audit.Archive.Prefix, "_readyz")))
	}
	if c.leaseManager != nil {
		mgr := c.leaseManager
		hs.RegisterReadinessCheck(server.NewMetadataStoreChecker(c.metaStore, mgr.Key()))
		hs.RegisterReadinessCheck(server.NewFuncChecker("lease", func(context.Context) error {
			if !mgr.Held() {
				return errors.New("lease not held")
			}
			return nil
		}))
	}

	if err := hs.Start(); err != nil {
		return fmt.Errorf("failed to start health server: %w", err)
	}
	c.mu.Lock()
	c.healthServer = hs
	c.mu.Unlock()
	c.logger.Infof("health server started", logging.Fields{"addr": hs.Addr()})
	return nil
}

func newDocStore(cfg config.StoreConfig) (*elastic.Store, error) {
	store, err := elastic.New(elastic.Config{
		Endpoint:           elastic.Endpoint(cfg.Scheme, cfg.Host, cfg.Port),
		Username:           cfg.User,
		Password:           cfg.Password,
		CertPath:           cfg.CertPath,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		RequestTimeout:     cfg.RequestTimeout(),
		GzipRequests:       cfg.GzipRequests,
		Conflicts:          cfg.Conflicts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	return store, nil
}

func pipelineConfig(cfg *config.Config) condense.Config {
	pc := condense.DefaultConfig()
	pc.Index = cfg.Index
	pc.Fields = condense.Fields{
		File:        cfg.Fields.File,
		Timestamp:   cfg.Fields.Timestamp,
		EventType:   cfg.Fields.EventType,
		EventAction: cfg.Fields.EventAction,
		FileType:    cfg.Fields.FileType,
	}
	pc.ActionBufferSize = cfg.Pipeline.ActionBufferSize
	pc.MaxInFlight = cfg.Pipeline.MaxInFlight
	pc.PageSize = cfg.Pipeline.PageSize
	pc.SweepInterval = cfg.Pipeline.SweepInterval()
	pc.DeleteBufferSize = cfg.Pipeline.DeleteBufferSize
	pc.FlushInterval = cfg.Pipeline.DeleteFlushInterval()
	pc.RestartDelay = cfg.Pipeline.RestartDelay()
	pc.SuperviseInterval = cfg.Pipeline.SuperviseInterval()
	pc.SearchesPerSecond = cfg.Pipeline.SearchesPerSecond
	pc.SinkTimeout = cfg.Audit.WriteTimeout()
	return pc
}
