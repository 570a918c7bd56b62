package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dray-io/fimcondense/internal/docstore"
)

// compositeName is the name of the composite aggregation in requests.
const compositeName = "unique_event_types"

// compositeSource is the name of the single composite source; it is also the
// key inside after_key.
const compositeSource = "file"

type aggregateResponse struct {
	Aggregations map[string]struct {
		AfterKey json.RawMessage `json:"after_key"`
		Buckets  []struct {
			Key      map[string]any `json:"key"`
			DocCount *int64         `json:"doc_count"`
		} `json:"buckets"`
	} `json:"aggregations"`
}

// Aggregate requests one page of the composite terms aggregation on req.Field.
func (s *Store) Aggregate(ctx context.Context, req docstore.AggregateRequest) (docstore.AggregatePage, error) {
	composite := map[string]any{
		"size": req.PageSize,
		"sources": []any{
			map[string]any{compositeSource: map[string]any{"terms": map[string]any{"field": req.Field}}},
		},
	}
	if len(req.After) > 0 {
		composite["after"] = req.After
	}
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{compositeName: map[string]any{"composite": composite}},
	}

	var resp aggregateResponse
	if err := s.do(ctx, docstore.OpAggregate, req.Index, http.MethodPost, indexPath(req.Index, "_search"), nil, body, &resp); err != nil {
		return docstore.AggregatePage{}, err
	}

	agg, ok := resp.Aggregations[compositeName]
	if !ok || agg.Buckets == nil {
		return docstore.AggregatePage{}, &docstore.StoreError{
			Op: docstore.OpAggregate, Index: req.Index, Status: http.StatusOK,
			Err: fmt.Errorf("%w: response has no %s buckets", docstore.ErrResponseParse, compositeName),
		}
	}

	page := docstore.AggregatePage{Buckets: make([]docstore.Bucket, 0, len(agg.Buckets))}
	for _, b := range agg.Buckets {
		bucket := docstore.Bucket{Key: keyString(b.Key[compositeSource])}
		if b.DocCount == nil {
			bucket.MissingDocCount = true
		} else {
			bucket.DocCount = *b.DocCount
		}
		page.Buckets = append(page.Buckets, bucket)
	}
	if len(agg.AfterKey) > 0 && string(agg.AfterKey) != "null" {
		page.AfterKey = agg.AfterKey
	}
	return page, nil
}

type searchResponse struct {
	Hits *struct {
		Hits []struct {
			ID     string         `json:"_id"`
			Index  string         `json:"_index"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchLatest runs a size-1 search sorted descending on req.SortField.
func (s *Store) SearchLatest(ctx context.Context, req docstore.SearchRequest) ([]docstore.Hit, error) {
	body := map[string]any{
		"size": 1,
		"sort": []any{map[string]any{req.SortField: map[string]any{"order": "desc"}}},
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{map[string]any{"term": map[string]any{req.Field: req.Value}}},
			},
		},
	}
	if len(req.Fields) > 0 {
		body["_source"] = req.Fields
	}

	var resp searchResponse
	if err := s.do(ctx, docstore.OpSearch, req.Index, http.MethodPost, indexPath(req.Index, "_search"), nil, body, &resp); err != nil {
		return nil, err
	}
	if resp.Hits == nil {
		return nil, &docstore.StoreError{
			Op: docstore.OpSearch, Index: req.Index, Status: http.StatusOK,
			Err: fmt.Errorf("%w: response has no hits", docstore.ErrResponseParse),
		}
	}

	hits := make([]docstore.Hit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, docstore.Hit{ID: h.ID, Index: h.Index, Source: h.Source})
	}
	return hits, nil
}

type deleteResponse struct {
	Took             int64             `json:"took"`
	Total            int64             `json:"total"`
	Deleted          int64             `json:"deleted"`
	VersionConflicts int64             `json:"version_conflicts"`
	Failures         []json.RawMessage `json:"failures"`
}

// DeleteByQuery issues a delete-by-query built from q.
func (s *Store) DeleteByQuery(ctx context.Context, index string, q docstore.DeleteQuery) (docstore.DeleteResult, error) {
	params := url.Values{}
	params.Set("conflicts", s.cfg.Conflicts)

	var resp deleteResponse
	if err := s.do(ctx, docstore.OpDeleteByQuery, index, http.MethodPost, indexPath(index, "_delete_by_query"), params, BuildDeleteBody(q), &resp); err != nil {
		return docstore.DeleteResult{}, err
	}

	return docstore.DeleteResult{
		Deleted:          resp.Deleted,
		Total:            resp.Total,
		VersionConflicts: resp.VersionConflicts,
		Failures:         len(resp.Failures),
		Took:             time.Duration(resp.Took) * time.Millisecond,
	}, nil
}

// BuildDeleteBody renders q as a delete-by-query request body. File ids and
// exclusions are sorted so that equal sets produce equal bodies.
func BuildDeleteBody(q docstore.DeleteQuery) map[string]any {
	q = q.Normalized()

	should := make([]any, 0, len(q.FileIDs)+1)
	if len(q.FileIDs) > 0 {
		should = append(should, map[string]any{"terms": map[string]any{q.Field: q.FileIDs}})
	}
	for _, id := range q.FileIDs {
		should = append(should, map[string]any{
			"wildcard": map[string]any{q.Field: map[string]any{"value": docstore.DescendantPattern(id)}},
		})
	}

	mustNot := make([]any, 0, len(q.Exclude))
	for _, ref := range q.Exclude {
		mustNot = append(mustNot, map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"term": map[string]any{"_id": ref.ID}},
					map[string]any{"term": map[string]any{"_index": ref.Index}},
				},
			},
		})
	}

	boolQuery := map[string]any{
		"should":               should,
		"minimum_should_match": 1,
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	return map[string]any{"query": map[string]any{"bool": boolQuery}}
}

// ClusterInfo is the subset of the root endpoint response we report.
type ClusterInfo struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number string `json:"number"`
	} `json:"version"`
}

// Info fetches the cluster root document.
func (s *Store) Info(ctx context.Context) (ClusterInfo, error) {
	var info ClusterInfo
	err := s.do(ctx, docstore.OpPing, "", http.MethodGet, "/", nil, nil, &info)
	return info, err
}

// Ping checks reachability and credentials.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Info(ctx)
	return err
}

func indexPath(index, endpoint string) string {
	return "/" + url.PathEscape(index) + "/" + endpoint
}

func keyString(v any) string {
	switch k := v.(type) {
	case nil:
		return ""
	case string:
		return k
	case float64:
		return strconv.FormatFloat(k, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(k)
	default:
		b, _ := json.Marshal(k)
		return string(b)
	}
}

// Ensure Store implements docstore.Store.
var _ docstore.Store = (*Store)(nil)
