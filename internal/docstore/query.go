package docstore

import (
	"sort"
	"strings"
)

// DeleteQuery selects, on Field, every document equal to one of FileIDs or
// lying under one of them ("<id>/..."), except the documents in Exclude.
type DeleteQuery struct {
	Field   string
	FileIDs []string
	Exclude []DocRef
}

// Empty reports whether the query would match nothing.
func (q DeleteQuery) Empty() bool {
	return len(q.FileIDs) == 0
}

// Normalized returns a copy with FileIDs and Exclude sorted and deduplicated.
func (q DeleteQuery) Normalized() DeleteQuery {
	ids := append([]string(nil), q.FileIDs...)
	sort.Strings(ids)
	ids = dedupStrings(ids)

	refs := append([]DocRef(nil), q.Exclude...)
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Index != refs[j].Index {
			return refs[i].Index < refs[j].Index
		}
		return refs[i].ID < refs[j].ID
	})
	out := refs[:0]
	for i, r := range refs {
		if i == 0 || r != refs[i-1] {
			out = append(out, r)
		}
	}

	return DeleteQuery{Field: q.Field, FileIDs: ids, Exclude: out}
}

// Matches reports whether a document with the given file value and ref
// would be deleted by q.
func (q DeleteQuery) Matches(fileValue string, ref DocRef) bool {
	for _, ex := range q.Exclude {
		if ex == ref {
			return false
		}
	}
	for _, id := range q.FileIDs {
		if fileValue == id || strings.HasPrefix(fileValue, id+"/") {
			return true
		}
	}
	return false
}

// DescendantPattern returns the wildcard pattern matching everything under
// id, with wildcard metacharacters in id escaped.
func DescendantPattern(id string) string {
	return EscapeWildcard(id) + "/*"
}

// EscapeWildcard escapes the characters a wildcard query treats specially.
func EscapeWildcard(s string) string {
	if !strings.ContainsAny(s, `*?\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 4)
	for _, r := range s {
		switch r {
		case '*', '?', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func dedupStrings(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i == 0 || s != sorted[i-1] {
			out = append(out, s)
		}
	}
	return out
}
