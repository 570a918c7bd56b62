package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"sync"
	"time"
)

// Document is a stored record in a MemoryStore.
type Document struct {
	ID     string
	Index  string
	Source map[string]any
}

// MemoryStore is an in-memory implementation of Store for tests and local
// runs. It honours composite-aggregation paging, newest-first search and the
// exact/descendant/exclusion semantics of DeleteQuery.
type MemoryStore struct {
	mu     sync.Mutex
	docs   []Document
	closed bool

	failures      map[string][]error
	calls         map[string]int
	aggRequests   []AggregateRequest
	deleteQueries []DeleteQuery
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		failures: make(map[string][]error),
		calls:    make(map[string]int),
	}
}

// Add stores documents.
func (s *MemoryStore) Add(docs ...Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, docs...)
}

// Documents returns a snapshot of all stored documents.
func (s *MemoryStore) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Document(nil), s.docs...)
}

// FailNext makes the next call of op return err. Calls queue in order.
func (s *MemoryStore) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = append(s.failures[op], err)
}

// Calls returns how many times op was invoked.
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// AggregateRequests returns every aggregate request received.
func (s *MemoryStore) AggregateRequests() []AggregateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AggregateRequest(nil), s.aggRequests...)
}

// DeleteQueries returns every delete query received.
func (s *MemoryStore) DeleteQueries() []DeleteQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeleteQuery(nil), s.deleteQueries...)
}

// enter records a call and returns a queued failure, if any. Caller holds mu.
func (s *MemoryStore) enter(op, index string) error {
	s.calls[op]++
	if s.closed {
		return &StoreError{Op: op, Index: index, Err: ErrStoreClosed}
	}
	if q := s.failures[op]; len(q) > 0 {
		s.failures[op] = q[1:]
		return &StoreError{Op: op, Index: index, Err: q[0]}
	}
	return nil
}

type compositeAfter struct {
	File string `json:"file"`
}

func (s *MemoryStore) Aggregate(ctx context.Context, req AggregateRequest) (AggregatePage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aggRequests = append(s.aggRequests, req)
	if err := s.enter(OpAggregate, req.Index); err != nil {
		return AggregatePage{}, err
	}

	var after *compositeAfter
	if len(req.After) > 0 {
		after = &compositeAfter{}
		if err := json.Unmarshal(req.After, after); err != nil {
			return AggregatePage{}, &StoreError{Op: OpAggregate, Index: req.Index, Status: 400,
				Err: fmt.Errorf("%w: bad after key: %v", ErrQueryRejected, err)}
		}
	}

	counts := make(map[string]int64)
	for _, d := range s.docs {
		if !indexMatches(req.Index, d.Index) {
			continue
		}
		v, ok := FirstString(d.Source, req.Field)
		if !ok {
			continue
		}
		counts[v]++
	}

	keys := make([]string, 0, len(counts))
	for k := range counts {
		if after == nil || k > after.File {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if req.PageSize > 0 && len(keys) > req.PageSize {
		keys = keys[:req.PageSize]
	}

	page := AggregatePage{Buckets: make([]Bucket, 0, len(keys))}
	for _, k := range keys {
		page.Buckets = append(page.Buckets, Bucket{Key: k, DocCount: counts[k]})
	}
	if len(keys) > 0 {
		page.AfterKey, _ = json.Marshal(compositeAfter{File: keys[len(keys)-1]})
	}
	return page, nil
}

func (s *MemoryStore) SearchLatest(ctx context.Context, req SearchRequest) ([]Hit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.enter(OpSearch, req.Index); err != nil {
		return nil, err
	}

	var best *Document
	for i := range s.docs {
		d := &s.docs[i]
		if !indexMatches(req.Index, d.Index) {
			continue
		}
		if v, ok := FirstString(d.Source, req.Field); !ok || v != req.Value {
			continue
		}
		if best == nil || newer(d.Source, best.Source, req.SortField) {
			best = d
		}
	}
	if best == nil {
		return nil, nil
	}

	return []Hit{{ID: best.ID, Index: best.Index, Source: project(best.Source, req.Fields)}}, nil
}

func (s *MemoryStore) DeleteByQuery(ctx context.Context, index string, q DeleteQuery) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deleteQueries = append(s.deleteQueries, q)
	if err := s.enter(OpDeleteByQuery, index); err != nil {
		return DeleteResult{}, err
	}

	start := time.Now()
	kept := s.docs[:0]
	var deleted int64
	for _, d := range s.docs {
		if indexMatches(index, d.Index) {
			if v, ok := FirstString(d.Source, q.Field); ok && q.Matches(v, DocRef{ID: d.ID, Index: d.Index}) {
				deleted++
				continue
			}
		}
		kept = append(kept, d)
	}
	s.docs = kept

	return DeleteResult{Deleted: deleted, Total: deleted, Took: time.Since(start)}, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enter(OpPing, "")
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// indexMatches reports whether a concrete index name is selected by a
// comma-separated list of index patterns.
func indexMatches(pattern, index string) bool {
	for _, p := range splitIndexPattern(pattern) {
		if ok, _ := path.Match(p, index); ok {
			return true
		}
	}
	return false
}

func newer(a, b map[string]any, field string) bool {
	av, _ := LookupField(a, field)
	bv, _ := LookupField(b, field)
	return compareSortValues(av, bv) > 0
}

func compareSortValues(a, b any) int {
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Compare(bt)
		}
		return 1
	}
	if af, ok := a.(float64); ok {
		if bf, ok := b.(float64); ok {
			switch {
			case af > bf:
				return 1
			case af < bf:
				return -1
			}
			return 0
		}
		return 1
	}
	if b != nil {
		return -1
	}
	return 0
}

func asTime(v any) (time.Time, bool) {
	switch val := v.(type) {
	case time.Time:
		return val, true
	case string:
		t, err := time.Parse(time.RFC3339Nano, val)
		return t, err == nil
	}
	return time.Time{}, false
}

func project(source map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return source
	}
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		if v, ok := LookupField(source, f); ok {
			out[f] = v
		}
	}
	return out
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
