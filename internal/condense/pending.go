package condense

import (
	"sort"

	"github.com/dray-io/fimcondense/internal/docstore"
)

// pendingSet accumulates criteria between flushes. It is owned by the
// batcher goroutine and is not safe for concurrent use.
type pendingSet struct {
	fileIDs   map[string]struct{}
	keepPairs map[docstore.DocRef]struct{}
}

func newPendingSet() *pendingSet {
	return &pendingSet{
		fileIDs:   make(map[string]struct{}),
		keepPairs: make(map[docstore.DocRef]struct{}),
	}
}

// merge adds a criterion. Merging the same criterion twice is a no-op.
func (p *pendingSet) merge(c DeleteCriterion) {
	p.fileIDs[c.FileID] = struct{}{}
	p.keepPairs[c.Keep()] = struct{}{}
}

func (p *pendingSet) fileCount() int { return len(p.fileIDs) }

func (p *pendingSet) pairCount() int { return len(p.keepPairs) }

func (p *pendingSet) empty() bool { return len(p.fileIDs) == 0 }

// query renders the pending set as a delete query on field. File ids and
// keep-pairs are sorted.
func (p *pendingSet) query(field string) docstore.DeleteQuery {
	ids := make([]string, 0, len(p.fileIDs))
	for id := range p.fileIDs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	refs := make([]docstore.DocRef, 0, len(p.keepPairs))
	for r := range p.keepPairs {
		refs = append(refs, r)
	}
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Index != refs[j].Index {
			return refs[i].Index < refs[j].Index
		}
		return refs[i].ID < refs[j].ID
	})

	return docstore.DeleteQuery{Field: field, FileIDs: ids, Exclude: refs}
}

func (p *pendingSet) reset() {
	clear(p.fileIDs)
	clear(p.keepPairs)
}
