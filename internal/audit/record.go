// Package audit records what every delete flush did and ships those records
// to external sinks (a Kafka topic, an object store archive).
package audit

import (
	"context"
	"errors"
	"time"
)

// Trigger names why a flush happened.
type Trigger string

const (
	TriggerSize     Trigger = "size"
	TriggerInterval Trigger = "interval"
	TriggerShutdown Trigger = "shutdown"
)

// KeepPair is a record excluded from a flush.
type KeepPair struct {
	ID    string `json:"id"`
	Index string `json:"index"`
}

// FlushRecord describes one delete-by-query flush.
type FlushRecord struct {
	FlushID          string     `json:"flushId"`
	Index            string     `json:"index"`
	Trigger          Trigger    `json:"trigger"`
	FileIDs          []string   `json:"fileIds"`
	KeepPairs        []KeepPair `json:"keepPairs"`
	Deleted          int64      `json:"deleted"`
	VersionConflicts int64      `json:"versionConflicts"`
	Failures         int        `json:"failures"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"startedAt"`
	DurationMs       int64      `json:"durationMs"`
}

// Succeeded reports whether the flush reached the store without error.
func (r FlushRecord) Succeeded() bool {
	return r.Error == ""
}

// Sink receives flush records.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, rec FlushRecord) error
	Close() error
}

// MultiSink fans a record out to several sinks. Every sink is attempted;
// errors are joined.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec FlushRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemorySink keeps records in memory. Used in tests and dry runs.
type MemorySink struct {
	ch chan FlushRecord
}

// NewMemorySink creates a MemorySink holding up to capacity records; further
// writes are dropped.
func NewMemorySink(capacity int) *MemorySink {
	return &MemorySink{ch: make(chan FlushRecord, capacity)}
}

func (m *MemorySink) Write(_ context.Context, rec FlushRecord) error {
	select {
	case m.ch <- rec:
	default:
	}
	return nil
}

func (m *MemorySink) Close() error { return nil }

// Records returns the channel records are delivered on.
func (m *MemorySink) Records() <-chan FlushRecord { return m.ch }
