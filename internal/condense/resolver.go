package condense

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/dray-io/fimcondense/internal/docstore"
)

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Index  string
	Fields Fields

	// SearchesPerSecond caps the search rate across all callers. Zero means
	// unlimited.
	SearchesPerSecond float64
}

// Resolver finds the newest stored event for a file.
type Resolver struct {
	store   docstore.Store
	config  ResolverConfig
	limiter *rate.Limiter
}

// NewResolver creates a Resolver. It is safe for concurrent use.
func NewResolver(store docstore.Store, config ResolverConfig) *Resolver {
	config.Fields = config.Fields.withDefaults()
	r := &Resolver{store: store, config: config}
	if config.SearchesPerSecond > 0 {
		burst := int(config.SearchesPerSecond)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(config.SearchesPerSecond), burst)
	}
	return r
}

// Resolve returns the newest event of fileID. A file with no records yields
// UnknownEvent and no error.
func (r *Resolver) Resolve(ctx context.Context, fileID string) (ResolvedEvent, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return ResolvedEvent{}, fmt.Errorf("condense: resolve %q: %w", fileID, err)
		}
	}

	f := r.config.Fields
	hits, err := r.store.SearchLatest(ctx, docstore.SearchRequest{
		Index:     r.config.Index,
		Field:     f.File,
		Value:     fileID,
		SortField: f.Timestamp,
		Fields:    f.source(),
	})
	if err != nil {
		return ResolvedEvent{}, fmt.Errorf("condense: resolve %q: %w", fileID, err)
	}
	if len(hits) == 0 {
		return UnknownEvent(), nil
	}
	return r.extract(hits[0]), nil
}

func (r *Resolver) extract(hit docstore.Hit) ResolvedEvent {
	f := r.config.Fields
	ev := ResolvedEvent{
		FileID:      stringOr(hit.Source, f.File, UnknownFileID),
		EventType:   stringOr(hit.Source, f.EventType, UnknownEventType),
		EventAction: stringOr(hit.Source, f.EventAction, UnknownEventAction),
		RecordID:    hit.ID,
		RecordIndex: hit.Index,
	}
	if ev.RecordID == "" {
		ev.RecordID = UnknownRecordID
	}
	if ev.RecordIndex == "" {
		ev.RecordIndex = UnknownRecordIndex
	}
	return ev
}

func stringOr(source map[string]any, field, fallback string) string {
	if v, ok := docstore.FirstString(source, field); ok && v != "" {
		return v
	}
	return fallback
}
