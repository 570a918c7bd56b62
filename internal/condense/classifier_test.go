package condense

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		action    string
		wantID    string
		wantIndex string
	}{
		{"moved keeps nothing", "moved", NoRecordID, NoRecordIndex},
		{"deleted keeps nothing", "deleted", NoRecordID, NoRecordIndex},
		{"modified keeps newest", "modified", "r1", "idx1"},
		{"created keeps newest", "created", "r1", "idx1"},
		{"unknown action keeps newest", UnknownEventAction, "r1", "idx1"},
		{"case sensitive", "Deleted", "r1", "idx1"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Classify(ResolvedEvent{
				FileID:      "/a/b.txt",
				EventType:   "change",
				EventAction: tc.action,
				RecordID:    "r1",
				RecordIndex: "idx1",
			})
			assert.Equal(t, "/a/b.txt", c.FileID)
			assert.Equal(t, tc.wantID, c.KeepRecordID)
			assert.Equal(t, tc.wantIndex, c.KeepRecordIndex)
		})
	}
}

func TestKeepsNothing(t *testing.T) {
	assert.True(t, Classify(ResolvedEvent{EventAction: ActionMoved}).KeepsNothing())
	assert.False(t, Classify(ResolvedEvent{EventAction: "modified", RecordID: "x", RecordIndex: "y"}).KeepsNothing())
}
