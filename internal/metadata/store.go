// Package metadata defines the small key-value contract used to coordinate
// condenser replicas. The production implementation is backed by Oxia.
package metadata

import (
	"context"
	"errors"
)

// Common errors returned by MetadataStore operations.
var (
	// ErrVersionMismatch is returned when the expected version does not match
	// the current version during a conditional write or delete.
	ErrVersionMismatch = errors.New("metadata: version mismatch")

	// ErrStoreClosed is returned when operations are attempted on a closed store.
	ErrStoreClosed = errors.New("metadata: store closed")
)

// Version represents a key's version in the metadata store.
//
// A zero version indicates the key has never been written.
type Version int64

// GetResult is the result of a Get operation.
type GetResult struct {
	Value   []byte
	Version Version
	Exists  bool
}

// DeleteOption configures a Delete operation.
type DeleteOption func(*deleteOptions)

type deleteOptions struct {
	expectedVersion *Version
}

// WithDeleteExpectedVersion makes Delete fail with ErrVersionMismatch unless
// the key is at version v.
func WithDeleteExpectedVersion(v Version) DeleteOption {
	return func(o *deleteOptions) {
		o.expectedVersion = &v
	}
}

// ExtractDeleteExpectedVersion extracts the expected version from options.
func ExtractDeleteExpectedVersion(opts []DeleteOption) *Version {
	var o deleteOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.expectedVersion
}

// EphemeralOption configures a PutEphemeral operation.
type EphemeralOption func(*ephemeralOptions)

type ephemeralOptions struct {
	expectNotExists bool
	expectedVersion *Version
}

// WithEphemeralExpectNotExists configures PutEphemeral to fail with
// ErrVersionMismatch if the key already exists.
func WithEphemeralExpectNotExists() EphemeralOption {
	return func(o *ephemeralOptions) {
		o.expectNotExists = true
	}
}

// WithEphemeralExpectedVersion configures PutEphemeral to fail with
// ErrVersionMismatch if the key's current version doesn't match.
func WithEphemeralExpectedVersion(v Version) EphemeralOption {
	return func(o *ephemeralOptions) {
		o.expectedVersion = &v
	}
}

// ExtractEphemeralOptions extracts options from EphemeralOption slice.
func ExtractEphemeralOptions(opts []EphemeralOption) (expectNotExists bool, expectedVersion *Version) {
	var o ephemeralOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o.expectNotExists, o.expectedVersion
}

// MetadataStore is the key-value contract for coordination state.
type MetadataStore interface {
	// Get retrieves a value by key.
	// Returns GetResult with Exists=false if the key does not exist (not an error).
	Get(ctx context.Context, key string) (GetResult, error)

	// PutEphemeral stores a value that is automatically deleted when the
	// client session ends (crash, disconnect or session timeout).
	PutEphemeral(ctx context.Context, key string, value []byte, opts ...EphemeralOption) (Version, error)

	// Delete removes a key, optionally with version checking.
	// Returns nil if the key does not exist (idempotent).
	Delete(ctx context.Context, key string, opts ...DeleteOption) error

	// Close releases resources held by the store.
	// After Close is called, all operations will return ErrStoreClosed.
	Close() error
}
