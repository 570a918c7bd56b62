package condense

import (
	"github.com/dray-io/fimcondense/internal/docstore"
)

func fimDoc(id, index, uri, ts, action string) docstore.Document {
	return docstore.Document{
		ID:    id,
		Index: index,
		Source: map[string]any{
			"@timestamp": ts,
			"file":       map[string]any{"uri": uri, "type": "file"},
			"event":      map[string]any{"action": []any{action}, "type": []any{"change"}},
		},
	}
}

func docIDs(mem *docstore.MemoryStore) []string {
	var ids []string
	for _, d := range mem.Documents() {
		ids = append(ids, d.ID)
	}
	return ids
}
