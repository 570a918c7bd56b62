// Package objectstore defines the Store interface for S3-compatible storage.
//
// The condenser uses it to archive flush audit records:
//
//	store, err := s3.New(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	err = store.PutWithOptions(ctx, key, bytes.NewReader(data), int64(len(data)),
//	    "application/x-ndjson", objectstore.PutOptions{ContentEncoding: "gzip"})
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// Common errors returned by Store implementations.
var (
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrPreconditionFailed is returned when a conditional write fails.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrAccessDenied is returned when the credentials lack permission for the operation.
	ErrAccessDenied = errors.New("access denied")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("store closed")
)

// ObjectError wraps an error with the object key for context.
type ObjectError struct {
	Op  string // Operation that failed (e.g., "Put", "Get")
	Key string // Object key
	Err error  // Underlying error
}

func (e *ObjectError) Error() string {
	return fmt.Sprintf("objectstore: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *ObjectError) Unwrap() error {
	return e.Err
}

// ObjectMeta contains metadata about an object.
type ObjectMeta struct {
	Key             string
	Size            int64
	ContentType     string
	ContentEncoding string
	Metadata        map[string]string
}

// PutOptions configures a Put operation.
type PutOptions struct {
	// Metadata is optional user-defined key-value pairs stored with the object.
	Metadata map[string]string

	// ContentEncoding is stored as the object's Content-Encoding.
	ContentEncoding string

	// IfNoneMatch when set to "*" makes the Put fail with
	// ErrPreconditionFailed if the key already exists.
	IfNoneMatch string
}

// Store is the interface for object storage operations.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Put stores an object at the given key. size must match the bytes the
	// reader yields.
	Put(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// PutWithOptions stores an object with additional options.
	PutWithOptions(ctx context.Context, key string, reader io.Reader, size int64, contentType string, opts PutOptions) error

	// Get retrieves an entire object. The caller must close the reader.
	//   - ErrNotFound: object doesn't exist
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Close releases resources associated with the store.
	Close() error
}
