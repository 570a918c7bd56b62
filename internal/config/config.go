// Package config provides configuration loading and validation for the
// condensing daemon. Supports YAML files with environment variable overrides.
package config

import "time"

// Config holds all configuration for a condenser instance.
type Config struct {
	Index         string              `yaml:"index" env:"CONDENSE_INDEX"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Fields        FieldsConfig        `yaml:"fields"`
	Store         StoreConfig         `yaml:"store"`
	Lease         LeaseConfig         `yaml:"lease"`
	Audit         AuditConfig         `yaml:"audit"`
	Observability ObservabilityConfig `yaml:"observability"`
}

type PipelineConfig struct {
	ActionBufferSize       int     `yaml:"actionBufferSize" env:"CONDENSE_ACTION_BUFFER_SIZE"`
	PageSize               int     `yaml:"pageSize" env:"CONDENSE_PAGE_SIZE"`
	DeleteBufferSize       int     `yaml:"deleteBufferSize" env:"CONDENSE_DELETE_BUFFER_SIZE"`
	DeleteFlushIntervalSec int     `yaml:"deleteFlushIntervalSec" env:"CONDENSE_DELETE_TIMEOUT"`
	SweepIntervalSec       int     `yaml:"sweepIntervalSec" env:"CONDENSE_AGG_SLEEP"`
	MaxInFlight            int     `yaml:"maxInFlight" env:"CONDENSE_MAX_IN_FLIGHT"`
	RestartDelayMs         int64   `yaml:"restartDelayMs" env:"CONDENSE_RESTART_DELAY_MS"`
	SuperviseIntervalMs    int64   `yaml:"superviseIntervalMs" env:"CONDENSE_SUPERVISE_INTERVAL_MS"`
	SearchesPerSecond      float64 `yaml:"searchesPerSecond" env:"CONDENSE_SEARCHES_PER_SECOND"`
}

// FieldsConfig names the document fields the pipeline reads.
type FieldsConfig struct {
	File        string `yaml:"file" env:"CONDENSE_FILE_FIELD"`
	Timestamp   string `yaml:"timestamp" env:"CONDENSE_TIMESTAMP_FIELD"`
	EventType   string `yaml:"eventType" env:"CONDENSE_EVENT_TYPE_FIELD"`
	EventAction string `yaml:"eventAction" env:"CONDENSE_EVENT_ACTION_FIELD"`
	FileType    string `yaml:"fileType" env:"CONDENSE_FILE_TYPE_FIELD"`
}

type StoreConfig struct {
	Host               string `yaml:"host" env:"ES_IP"`
	Port               int    `yaml:"port" env:"ES_PORT"`
	Scheme             string `yaml:"scheme" env:"ES_SCHEME"`
	User               string `yaml:"user" env:"ES_USER"`
	Password           string `yaml:"password" env:"ES_PASSWORD"`
	CertPath           string `yaml:"certPath" env:"CERT_PATH"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify" env:"ES_INSECURE_SKIP_VERIFY"`
	RequestTimeoutMs   int64  `yaml:"requestTimeoutMs" env:"ES_REQUEST_TIMEOUT_MS"`
	GzipRequests       bool   `yaml:"gzipRequests" env:"ES_GZIP_REQUESTS"`
	Conflicts          string `yaml:"conflicts" env:"ES_DELETE_CONFLICTS"`
}

type LeaseConfig struct {
	Enabled          bool   `yaml:"enabled" env:"CONDENSE_LEASE_ENABLED"`
	OxiaEndpoint     string `yaml:"oxiaEndpoint" env:"CONDENSE_LEASE_OXIA_ENDPOINT"`
	Namespace        string `yaml:"namespace" env:"CONDENSE_LEASE_NAMESPACE"`
	SessionTimeoutMs int64  `yaml:"sessionTimeoutMs" env:"CONDENSE_LEASE_SESSION_TIMEOUT_MS"`
	RetryIntervalMs  int64  `yaml:"retryIntervalMs" env:"CONDENSE_LEASE_RETRY_INTERVAL_MS"`
}

type AuditConfig struct {
	// WriteTimeoutMs bounds each audit write, and Kafka record delivery.
	WriteTimeoutMs int64              `yaml:"writeTimeoutMs" env:"CONDENSE_AUDIT_WRITE_TIMEOUT_MS"`
	Kafka          KafkaAuditConfig   `yaml:"kafka"`
	Archive        ArchiveAuditConfig `yaml:"archive"`
}

type KafkaAuditConfig struct {
	Enabled     bool     `yaml:"enabled" env:"CONDENSE_AUDIT_KAFKA_ENABLED"`
	Brokers     []string `yaml:"brokers" env:"CONDENSE_AUDIT_KAFKA_BROKERS"`
	Topic       string   `yaml:"topic" env:"CONDENSE_AUDIT_KAFKA_TOPIC"`
	Compression string   `yaml:"compression" env:"CONDENSE_AUDIT_KAFKA_COMPRESSION"`
	CreateTopic bool     `yaml:"createTopic" env:"CONDENSE_AUDIT_KAFKA_CREATE_TOPIC"`
	Partitions  int32    `yaml:"partitions" env:"CONDENSE_AUDIT_KAFKA_PARTITIONS"`
}

type ArchiveAuditConfig struct {
	Enabled      bool   `yaml:"enabled" env:"CONDENSE_AUDIT_ARCHIVE_ENABLED"`
	Bucket       string `yaml:"bucket" env:"CONDENSE_AUDIT_ARCHIVE_BUCKET"`
	Region       string `yaml:"region" env:"CONDENSE_AUDIT_ARCHIVE_REGION"`
	Endpoint     string `yaml:"endpoint" env:"CONDENSE_AUDIT_ARCHIVE_ENDPOINT"`
	AccessKey    string `yaml:"accessKey" env:"CONDENSE_AUDIT_ARCHIVE_ACCESS_KEY"`
	SecretKey    string `yaml:"secretKey" env:"CONDENSE_AUDIT_ARCHIVE_SECRET_KEY"`
	UsePathStyle bool   `yaml:"usePathStyle" env:"CONDENSE_AUDIT_ARCHIVE_USE_PATH_STYLE"`
	Prefix       string `yaml:"prefix" env:"CONDENSE_AUDIT_ARCHIVE_PREFIX"`
	Format       string `yaml:"format" env:"CONDENSE_AUDIT_ARCHIVE_FORMAT"`
	Codec        string `yaml:"codec" env:"CONDENSE_AUDIT_ARCHIVE_CODEC"`
}

type ObservabilityConfig struct {
	MetricsAddr string `yaml:"metricsAddr" env:"CONDENSE_METRICS_ADDR"`
	LogLevel    string `yaml:"logLevel" env:"CONDENSE_LOG_LEVEL"`
	LogFormat   string `yaml:"logFormat" env:"CONDENSE_LOG_FORMAT"`
	LogFile     string `yaml:"logFile" env:"CONDENSE_LOG_FILE"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Index: ".ds-logs-fim.event-default*",
		Pipeline: PipelineConfig{
			ActionBufferSize:       1024,
			PageSize:               10,
			DeleteBufferSize:       100,
			DeleteFlushIntervalSec: 5,
			SweepIntervalSec:       20,
			MaxInFlight:            64,
			RestartDelayMs:         5000,
			SuperviseIntervalMs:    1000,
		},
		Fields: FieldsConfig{
			File:        "file.uri",
			Timestamp:   "@timestamp",
			EventType:   "event.type",
			EventAction: "event.action",
			FileType:    "file.type",
		},
		Store: StoreConfig{
			Host:             "localhost",
			Port:             9200,
			Scheme:           "http",
			User:             "default_user",
			Password:         "default_password",
			RequestTimeoutMs: 30000,
			Conflicts:        "proceed",
		},
		Lease: LeaseConfig{
			OxiaEndpoint:     "localhost:6648",
			Namespace:        "default",
			SessionTimeoutMs: 15000,
			RetryIntervalMs:  2000,
		},
		Audit: AuditConfig{
			WriteTimeoutMs: 10000,
			Kafka: KafkaAuditConfig{
				Topic:       "fimcondense-audit",
				Compression: "snappy",
				Partitions:  1,
			},
			Archive: ArchiveAuditConfig{
				Region: "us-east-1",
				Prefix: "fimcondense",
				Format: "jsonl",
				Codec:  "gzip",
			},
		},
		Observability: ObservabilityConfig{
			MetricsAddr: ":9090",
			LogLevel:    "info",
			LogFormat:   "json",
		},
	}
}

// DeleteFlushInterval returns the batcher's time trigger.
func (p PipelineConfig) DeleteFlushInterval() time.Duration {
	return time.Duration(p.DeleteFlushIntervalSec) * time.Second
}

// SweepInterval returns the pause between aggregation sweeps.
func (p PipelineConfig) SweepInterval() time.Duration {
	return time.Duration(p.SweepIntervalSec) * time.Second
}

// RestartDelay returns how long a terminated task waits before restarting.
func (p PipelineConfig) RestartDelay() time.Duration {
	return time.Duration(p.RestartDelayMs) * time.Millisecond
}

// SuperviseInterval returns the supervisor tick period.
func (p PipelineConfig) SuperviseInterval() time.Duration {
	return time.Duration(p.SuperviseIntervalMs) * time.Millisecond
}

// RequestTimeout returns the per-request HTTP timeout.
func (s StoreConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutMs) * time.Millisecond
}

// WriteTimeout returns the per-record audit write bound.
func (a AuditConfig) WriteTimeout() time.Duration {
	return time.Duration(a.WriteTimeoutMs) * time.Millisecond
}

// SessionTimeout returns the Oxia session timeout backing the lease key.
func (l LeaseConfig) SessionTimeout() time.Duration {
	return time.Duration(l.SessionTimeoutMs) * time.Millisecond
}

// RetryInterval returns how often a standby instance retries the lease.
func (l LeaseConfig) RetryInterval() time.Duration {
	return time.Duration(l.RetryIntervalMs) * time.Millisecond
}

// Redacted returns a copy with secrets masked, suitable for printing.
func (c *Config) Redacted() *Config {
	cp := *c
	if cp.Store.Password != "" {
		cp.Store.Password = "***"
	}
	if cp.Audit.Archive.SecretKey != "" {
		cp.Audit.Archive.SecretKey = "***"
	}
	cp.Audit.Kafka.Brokers = append([]string(nil), c.Audit.Kafka.Brokers...)
	return &cp
}
