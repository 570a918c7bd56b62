package condense

import "github.com/dray-io/fimcondense/internal/docstore"

// Sentinels substituted for fields missing from a resolved record.
const (
	UnknownFileID      = "empty_file_path"
	UnknownEventType   = "empty_event_type"
	UnknownEventAction = "empty_event_action"
	UnknownRecordID    = "empty_record_id"
	UnknownRecordIndex = "empty_record_index"
)

// Keep-pair used when nothing should survive; it matches no real record.
const (
	NoRecordID    = "no_id"
	NoRecordIndex = "no_index"
)

// Event actions whose newest record means the file is gone.
const (
	ActionMoved   = "moved"
	ActionDeleted = "deleted"
)

// Candidate is a file with more than one stored event.
type Candidate struct {
	FileID   string
	DocCount int64
}

// ResolvedEvent is the newest stored event for a file. Absent fields hold the
// Unknown* sentinels.
type ResolvedEvent struct {
	FileID      string
	EventType   string
	EventAction string
	RecordID    string
	RecordIndex string
}

// UnknownEvent is the event reported when a file has no records at all.
func UnknownEvent() ResolvedEvent {
	return ResolvedEvent{
		FileID:      UnknownFileID,
		EventType:   UnknownEventType,
		EventAction: UnknownEventAction,
		RecordID:    UnknownRecordID,
		RecordIndex: UnknownRecordIndex,
	}
}

// DeleteCriterion asks for every record of FileID, and of anything under
// FileID, to be deleted except the record (KeepRecordID, KeepRecordIndex).
type DeleteCriterion struct {
	FileID          string
	KeepRecordID    string
	KeepRecordIndex string
}

// Keep returns the record to preserve.
func (c DeleteCriterion) Keep() docstore.DocRef {
	return docstore.DocRef{ID: c.KeepRecordID, Index: c.KeepRecordIndex}
}

// KeepsNothing reports whether the criterion deletes every record of the file.
func (c DeleteCriterion) KeepsNothing() bool {
	return c.KeepRecordID == NoRecordID && c.KeepRecordIndex == NoRecordIndex
}

// Fields names the document fields the pipeline reads.
type Fields struct {
	File        string
	Timestamp   string
	EventType   string
	EventAction string
	FileType    string
}

// DefaultFields returns the ECS field names.
func DefaultFields() Fields {
	return Fields{
		File:        "file.uri",
		Timestamp:   "@timestamp",
		EventType:   "event.type",
		EventAction: "event.action",
		FileType:    "file.type",
	}
}

func (f Fields) withDefaults() Fields {
	d := DefaultFields()
	if f.File == "" {
		f.File = d.File
	}
	if f.Timestamp == "" {
		f.Timestamp = d.Timestamp
	}
	if f.EventType == "" {
		f.EventType = d.EventType
	}
	if f.EventAction == "" {
		f.EventAction = d.EventAction
	}
	if f.FileType == "" {
		f.FileType = d.FileType
	}
	return f
}

// source lists the fields fetched for a resolve, in request order.
func (f Fields) source() []string {
	return []string{f.FileType, f.File, f.Timestamp, f.EventType, f.EventAction}
}
