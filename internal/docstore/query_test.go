package docstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeleteQueryMatches(t *testing.T) {
	q := DeleteQuery{
		Field:   "file.uri",
		FileIDs: []string{"/a/b.txt"},
		Exclude: []DocRef{{ID: "r1", Index: "idx1"}},
	}

	tests := []struct {
		name  string
		value string
		ref   DocRef
		want  bool
	}{
		{"exact match", "/a/b.txt", DocRef{"r2", "idx1"}, true},
		{"descendant", "/a/b.txt/inner", DocRef{"r3", "idx1"}, true},
		{"deep descendant", "/a/b.txt/x/y", DocRef{"r4", "idx2"}, true},
		{"kept record", "/a/b.txt", DocRef{"r1", "idx1"}, false},
		{"same id other index", "/a/b.txt", DocRef{"r1", "idx2"}, true},
		{"sibling with shared prefix", "/a/b.txt.bak", DocRef{"r5", "idx1"}, false},
		{"parent", "/a", DocRef{"r6", "idx1"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, q.Matches(tc.value, tc.ref))
		})
	}
}

func TestDeleteQueryNormalized(t *testing.T) {
	q := DeleteQuery{
		Field:   "file.uri",
		FileIDs: []string{"/z", "/a", "/z"},
		Exclude: []DocRef{{"r2", "i2"}, {"r1", "i1"}, {"r2", "i2"}, {"r0", "i2"}},
	}

	n := q.Normalized()
	assert.Equal(t, []string{"/a", "/z"}, n.FileIDs)
	assert.Equal(t, []DocRef{{"r1", "i1"}, {"r0", "i2"}, {"r2", "i2"}}, n.Exclude)
	assert.Equal(t, []string{"/z", "/a", "/z"}, q.FileIDs, "input untouched")
}

func TestDescendantPattern(t *testing.T) {
	assert.Equal(t, "/a/b.txt/*", DescendantPattern("/a/b.txt"))
	assert.Equal(t, `/tmp/\*weird\?/*`, DescendantPattern("/tmp/*weird?"))
	assert.Equal(t, `C:\\dir/*`, DescendantPattern(`C:\dir`))
}

func TestEmpty(t *testing.T) {
	assert.True(t, DeleteQuery{}.Empty())
	assert.False(t, DeleteQuery{FileIDs: []string{"/x"}}.Empty())
}
