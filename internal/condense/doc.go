// Package condense implements the condensing pipeline: it finds files with
// more than one recorded FIM event, resolves the newest event of each, turns
// it into a deletion criterion and batches those criteria into bulk
// delete-by-query calls.
//
// Stages and the channels between them:
//
//	Aggregator --candidates--> dispatcher (bounded fan-out)
//	    each task: Resolver -> Classify --criteria--> Batcher --> docstore
//
// The Aggregator and the Batcher are long-lived and owned by a Supervisor,
// which restarts them after a fixed delay when they exit. Per-candidate tasks
// are short-lived and their failures are logged and dropped.
//
// Deletion is at-most-once: a flush clears the pending set whether or not
// the store call succeeded. Anything lost is rediscovered by a later sweep.
package condense
