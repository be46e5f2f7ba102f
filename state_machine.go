package raft

// StateMachine is the application state machine that committed command
// entries are applied to. Entries are applied in strictly increasing index
// order and never concurrently with other engine operations.
type StateMachine interface {
	// Apply applies a committed command entry to the state machine. The
	// engine advances its last applied index only once Apply returns. A
	// non-nil error indicates that the state machine cannot make progress
	// and shuts the engine down.
	Apply(entry *LogEntry) error
}
