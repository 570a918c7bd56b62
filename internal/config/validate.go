package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("config: invalid")

var (
	validSchemes    = []string{"http", "https"}
	validConflicts  = []string{"proceed", "abort"}
	validFormats    = []string{"jsonl", "parquet"}
	validCodecs     = []string{"none", "gzip", "zstd", "snappy", "lz4"}
	validLogFormats = []string{"json", "text"}
	validLogLevels  = []string{"debug", "info", "warn", "warning", "error"}
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if strings.TrimSpace(c.Index) == "" {
		add("index must not be empty")
	}

	p := c.Pipeline
	if p.ActionBufferSize < 1 {
		add("pipeline.actionBufferSize must be >= 1, got %d", p.ActionBufferSize)
	}
	if p.PageSize < 1 {
		add("pipeline.pageSize must be >= 1, got %d", p.PageSize)
	}
	if p.DeleteBufferSize < 1 {
		add("pipeline.deleteBufferSize must be >= 1, got %d", p.DeleteBufferSize)
	}
	if p.DeleteFlushIntervalSec < 1 {
		add("pipeline.deleteFlushIntervalSec must be >= 1, got %d", p.DeleteFlushIntervalSec)
	}
	if p.SweepIntervalSec < 0 {
		add("pipeline.sweepIntervalSec must be >= 0, got %d", p.SweepIntervalSec)
	}
	if p.MaxInFlight < 1 {
		add("pipeline.maxInFlight must be >= 1, got %d", p.MaxInFlight)
	}
	if p.RestartDelayMs < 0 {
		add("pipeline.restartDelayMs must be >= 0, got %d", p.RestartDelayMs)
	}
	if p.SuperviseIntervalMs < 1 {
		add("pipeline.superviseIntervalMs must be >= 1, got %d", p.SuperviseIntervalMs)
	}
	if p.SearchesPerSecond < 0 {
		add("pipeline.searchesPerSecond must be >= 0, got %v", p.SearchesPerSecond)
	}

	f := c.Fields
	if f.File == "" || f.Timestamp == "" || f.EventType == "" || f.EventAction == "" {
		add("fields.file, fields.timestamp, fields.eventType and fields.eventAction are required")
	}

	s := c.Store
	if s.Host == "" {
		add("store.host must not be empty")
	}
	if s.Port < 1 || s.Port > 65535 {
		add("store.port out of range: %d", s.Port)
	}
	if !oneOf(s.Scheme, validSchemes) {
		add("store.scheme must be one of %v, got %q", validSchemes, s.Scheme)
	}
	if s.RequestTimeoutMs < 1 {
		add("store.requestTimeoutMs must be >= 1, got %d", s.RequestTimeoutMs)
	}
	if !oneOf(s.Conflicts, validConflicts) {
		add("store.conflicts must be one of %v, got %q", validConflicts, s.Conflicts)
	}

	if c.Lease.Enabled && c.Lease.OxiaEndpoint == "" {
		add("lease.oxiaEndpoint is required when the lease is enabled")
	}

	if c.Audit.WriteTimeoutMs <= 0 {
		add("audit.writeTimeoutMs must be positive, got %d", c.Audit.WriteTimeoutMs)
	}

	k := c.Audit.Kafka
	if k.Enabled {
		if len(k.Brokers) == 0 {
			add("audit.kafka.brokers is required when kafka audit is enabled")
		}
		if k.Topic == "" {
			add("audit.kafka.topic is required when kafka audit is enabled")
		}
		if !oneOf(k.Compression, validCodecs) {
			add("audit.kafka.compression must be one of %v, got %q", validCodecs, k.Compression)
		}
	}

	a := c.Audit.Archive
	if a.Enabled {
		if a.Bucket == "" {
			add("audit.archive.bucket is required when archiving is enabled")
		}
		if !oneOf(a.Format, validFormats) {
			add("audit.archive.format must be one of %v, got %q", validFormats, a.Format)
		}
		if !oneOf(a.Codec, validCodecs) {
			add("audit.archive.codec must be one of %v, got %q", validCodecs, a.Codec)
		}
		if a.Format == "parquet" && a.Codec == "lz4" {
			add("audit.archive.codec lz4 is not supported for parquet archives")
		}
	}

	o := c.Observability
	if !oneOf(strings.ToLower(o.LogFormat), validLogFormats) {
		add("observability.logFormat must be one of %v, got %q", validLogFormats, o.LogFormat)
	}
	if !oneOf(strings.ToLower(o.LogLevel), validLogLevels) {
		add("observability.logLevel must be one of %v, got %q", validLogLevels, o.LogLevel)
	}

	return errors.Join(errs...)
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
