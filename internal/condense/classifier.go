package condense

// Classify turns the newest event of a file into a deletion criterion.
// When the file was moved or deleted nothing is kept; otherwise the newest
// record itself is kept. The orchestrator never classifies the all-sentinel
// event of a file without records.
func Classify(ev ResolvedEvent) DeleteCriterion {
	switch ev.EventAction {
	case ActionMoved, ActionDeleted:
		return DeleteCriterion{
			FileID:          ev.FileID,
			KeepRecordID:    NoRecordID,
			KeepRecordIndex: NoRecordIndex,
		}
	default:
		return DeleteCriterion{
			FileID:          ev.FileID,
			KeepRecordID:    ev.RecordID,
			KeepRecordIndex: ev.RecordIndex,
		}
	}
}
