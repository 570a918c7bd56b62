package condense

// MetricsRecorder receives pipeline events. The metrics package provides the
// Prometheus implementation; a nil recorder disables recording.
type MetricsRecorder interface {
	RecordSweep(durationSeconds float64, pages, candidates int)
	RecordCandidate()
	RecordResolve(outcome string)
	RecordCriterionDropped(reason string)
	SetInFlight(n int)
	SetPending(fileIDs, keepPairs int)
	RecordFlush(trigger string, durationSeconds float64, success bool, fileIDs, keepPairs int, deleted int64)
	RecordRestart(task string)
	SetTaskState(task string, state string)
}

// Resolve outcomes.
const (
	ResolveFound    = "found"
	ResolveNotFound = "not_found"
	ResolveError    = "error"
)

// Reasons a criterion is dropped before the batcher.
const (
	DropUnknownFile = "unknown_file"
	DropResolve     = "resolve_error"
	DropShutdown    = "shutdown"
)

type nopRecorder struct{}

func (nopRecorder) RecordSweep(float64, int, int)                      {}
func (nopRecorder) RecordCandidate()                                   {}
func (nopRecorder) RecordResolve(string)                               {}
func (nopRecorder) RecordCriterionDropped(string)                      {}
func (nopRecorder) SetInFlight(int)                                    {}
func (nopRecorder) SetPending(int, int)                                {}
func (nopRecorder) RecordFlush(string, float64, bool, int, int, int64) {}
func (nopRecorder) RecordRestart(string)                               {}
func (nopRecorder) SetTaskState(string, string)                        {}

func recorderOrNop(m MetricsRecorder) MetricsRecorder {
	if m == nil {
		return nopRecorder{}
	}
	return m
}
