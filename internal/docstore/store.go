// Package docstore defines the document store contract used by the
// condensing pipeline.
//
// The store is an Elasticsearch-compatible search engine holding FIM events.
// The pipeline needs exactly three queries from it:
//
//	page, err := store.Aggregate(ctx, docstore.AggregateRequest{
//	    Index:    ".ds-logs-fim.event-default*",
//	    Field:    "file.uri",
//	    PageSize: 10,
//	    After:    page.AfterKey,
//	})
//
//	hits, err := store.SearchLatest(ctx, docstore.SearchRequest{...})
//
//	res, err := store.DeleteByQuery(ctx, index, docstore.DeleteQuery{...})
//
// Failures are reported as [*StoreError] wrapping one of the sentinel errors
// below, so callers branch with errors.Is.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Common errors returned by Store implementations.
var (
	// ErrTransport is returned when the request could not be delivered or the
	// server answered with a 5xx status.
	ErrTransport = errors.New("transport failure")

	// ErrResponseParse is returned when the response body is not valid JSON
	// or lacks the expected shape.
	ErrResponseParse = errors.New("unparseable response")

	// ErrQueryRejected is returned when the server refused the query (4xx).
	ErrQueryRejected = errors.New("query rejected")

	// ErrStoreClosed is returned by every method after Close.
	ErrStoreClosed = errors.New("store closed")
)

// StoreError wraps an error with the operation and index for context.
type StoreError struct {
	Op     string // Operation that failed (e.g., "aggregate", "search", "delete_by_query")
	Index  string // Target index or pattern
	Status int    // HTTP status, 0 when no response was received
	Err    error  // Underlying error
}

func (e *StoreError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("docstore: %s %q: status %d: %v", e.Op, e.Index, e.Status, e.Err)
	}
	return fmt.Sprintf("docstore: %s %q: %v", e.Op, e.Index, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Operation names used in StoreError.Op and metrics labels.
const (
	OpAggregate     = "aggregate"
	OpSearch        = "search"
	OpDeleteByQuery = "delete_by_query"
	OpPing          = "ping"
)

// AggregateRequest asks for one page of a composite terms aggregation.
type AggregateRequest struct {
	Index    string
	Field    string
	PageSize int

	// After is the opaque cursor from the previous page. Nil starts a sweep.
	After json.RawMessage
}

// Bucket is one distinct field value with its document count.
type Bucket struct {
	Key      string
	DocCount int64

	// MissingDocCount is set when the server omitted doc_count; DocCount is
	// then 0.
	MissingDocCount bool
}

// AggregatePage is one page of buckets. AfterKey is passed back verbatim in
// the next request; it is nil when the server returned none.
type AggregatePage struct {
	Buckets  []Bucket
	AfterKey json.RawMessage
}

// SearchRequest asks for the single newest document whose Field equals Value.
type SearchRequest struct {
	Index     string
	Field     string
	Value     string
	SortField string

	// Fields limits the returned _source. Empty returns the whole document.
	Fields []string
}

// Hit is a matched document.
type Hit struct {
	ID     string
	Index  string
	Source map[string]any
}

// DocRef identifies a concrete document. IDs are only unique per index.
type DocRef struct {
	ID    string
	Index string
}

// DeleteResult summarizes a delete-by-query response.
type DeleteResult struct {
	Deleted          int64
	Total            int64
	VersionConflicts int64
	Failures         int
	Took             time.Duration
}

// Store is the interface for document store operations.
//
// Thread Safety: Implementations must be safe for concurrent use.
type Store interface {
	// Aggregate returns one page of distinct values of req.Field.
	Aggregate(ctx context.Context, req AggregateRequest) (AggregatePage, error)

	// SearchLatest returns at most one hit, the document with the greatest
	// SortField among those matching Field == Value. Zero hits is not an error.
	SearchLatest(ctx context.Context, req SearchRequest) ([]Hit, error)

	// DeleteByQuery deletes every document in index matching q.
	DeleteByQuery(ctx context.Context, index string, q DeleteQuery) (DeleteResult, error)

	// Ping checks that the store is reachable and accepts our credentials.
	Ping(ctx context.Context) error

	// Close releases resources. After Close, all methods return ErrStoreClosed.
	Close() error
}
