package raft

// InitialState is the durable state recovered by the I/O collaborator at
// startup.
type InitialState struct {
	// The last persisted term.
	Term uint64

	// The ID of the server the vote was granted to in the last persisted
	// term, or zero if none.
	VotedFor uint64

	// The index of the first persisted entry. One for a log that has never
	// been compacted.
	StartIndex uint64

	// The persisted log entries, starting at StartIndex.
	Entries []*LogEntry
}

// IO is the interface between the engine and its I/O collaborator. The
// engine performs no I/O of its own: it hands intents to the collaborator
// and receives completion events through the callbacks registered with
// Start. All callbacks must be delivered from a single logical thread.
//
// Append and Send are asynchronous: they return once the intent has been
// recorded and invoke their done callback when the operation completes. A
// nil error reported to the callback indicates success. SetTerm and
// SetVote are synchronous: the value must be durable when they return.
type IO interface {
	// Start readies the collaborator: it begins listening for messages
	// addressed to this server and arranges for tick to be invoked roughly
	// every tickMillis milliseconds with the number of elapsed
	// milliseconds since the previous invocation.
	Start(id uint64, address string, tickMillis uint, tick func(msec uint), recv func(message *Message)) error

	// Load recovers the durable state persisted by previous runs.
	Load() (*InitialState, error)

	// Bootstrap persists an initial configuration entry at index 1. It
	// fails if state has already been persisted.
	Bootstrap(configuration *Configuration) error

	// SetTerm durably records the current term before returning.
	SetTerm(term uint64) error

	// SetVote durably records the vote for the current term before
	// returning. A zero ID clears the vote.
	SetVote(serverID uint64) error

	// Append durably appends entries to the log. The done callback is
	// invoked once the entries have been synced to stable storage.
	Append(entries []*LogEntry, done func(err error)) error

	// Send transmits a message to the server it is addressed to. The done
	// callback is invoked once the message has been handed to the network.
	Send(message *Message, done func(err error)) error

	// Stop terminates the collaborator. The done callback is invoked once
	// all in-flight work has drained. No further callbacks are delivered
	// after it fires.
	Stop(done func()) error
}
