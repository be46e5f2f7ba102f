package raft

import (
	"fmt"
	"sync"
)

// IOStub is an in-memory implementation of the IO interface used for
// deterministic tests and simulations. Time only advances when Advance is
// called and asynchronous operations only complete when Flush is called,
// so a test has full control over the interleaving of events.
//
// Stubs of different servers can be wired together with Connect, in which
// case flushed messages are delivered to the receiving server's engine.
type IOStub struct {
	// The ID and address of the server this stub belongs to.
	id      uint64
	address string

	// The callbacks registered by the engine.
	tickCb func(msec uint)
	recvCb func(message *Message)

	// The durable state.
	term       uint64
	votedFor   uint64
	startIndex uint64
	entries    []*LogEntry

	bootstrapped bool

	// Queued asynchronous operations, completed by Flush.
	pendingAppends []pendingAppend
	pendingSends   []pendingSend

	// Messages that have been flushed to the network.
	sent []*Message

	// Stubs of the other servers, keyed by address. Flushed messages
	// addressed to a connected stub are delivered to its engine.
	peers map[string]*IOStub

	// Errors injected by tests: when set, the next flushed append or
	// send completes with the error instead.
	appendErr error
	sendErr   error

	mu sync.Mutex
}

type pendingAppend struct {
	entries []*LogEntry
	done    func(err error)
}

type pendingSend struct {
	message *Message
	done    func(err error)
}

// NewIOStub creates a new I/O stub.
func NewIOStub() *IOStub {
	return &IOStub{startIndex: 1, peers: make(map[string]*IOStub)}
}

func (s *IOStub) Start(id uint64, address string, tickMillis uint, tick func(msec uint), recv func(message *Message)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
	s.address = address
	s.tickCb = tick
	s.recvCb = recv
	return nil
}

func (s *IOStub) Load() (*InitialState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := make([]*LogEntry, len(s.entries))
	for i, entry := range s.entries {
		entries[i] = NewLogEntry(entry.Index, entry.Term, entry.EntryType, append([]byte(nil), entry.Data...))
	}

	return &InitialState{
		Term:       s.term,
		VotedFor:   s.votedFor,
		StartIndex: s.startIndex,
		Entries:    entries,
	}, nil
}

func (s *IOStub) Bootstrap(configuration *Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.bootstrapped || len(s.entries) > 0 || s.term != 0 {
		return fmt.Errorf("stub has already been bootstrapped")
	}

	s.term = 1
	s.entries = []*LogEntry{
		NewLogEntry(1, 1, EntryConfiguration, encodeConfiguration(configuration)),
	}
	s.bootstrapped = true
	return nil
}

func (s *IOStub) SetTerm(term uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.term = term
	return nil
}

func (s *IOStub) SetVote(serverID uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.votedFor = serverID
	return nil
}

func (s *IOStub) Append(entries []*LogEntry, done func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingAppends = append(s.pendingAppends, pendingAppend{entries: entries, done: done})
	return nil
}

func (s *IOStub) Send(message *Message, done func(err error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingSends = append(s.pendingSends, pendingSend{message: message, done: done})
	return nil
}

func (s *IOStub) Stop(done func()) error {
	done()
	return nil
}

// Advance notifies the engine that the provided number of milliseconds
// has elapsed.
func (s *IOStub) Advance(msec uint) {
	s.mu.Lock()
	tick := s.tickCb
	s.mu.Unlock()
	if tick != nil {
		tick(msec)
	}
}

// Flush completes all queued appends and sends. Appended entries become
// part of the durable state; flushed messages are recorded and, if the
// destination stub is connected, delivered to its engine. The append
// callbacks run first, so messages they queue (such as a follower's reply
// to the request whose entries were just persisted) go out in the same
// call; appends they queue wait for the next Flush.
func (s *IOStub) Flush() {
	s.mu.Lock()
	appends := s.pendingAppends
	s.pendingAppends = nil
	appendErr := s.appendErr
	sendErr := s.sendErr
	s.appendErr = nil
	s.sendErr = nil

	if appendErr == nil {
		for _, pending := range appends {
			s.persist(pending.entries)
		}
	}
	s.mu.Unlock()

	for _, pending := range appends {
		pending.done(appendErr)
	}

	s.mu.Lock()
	sends := s.pendingSends
	s.pendingSends = nil
	s.mu.Unlock()

	for _, pending := range sends {
		s.mu.Lock()
		s.sent = append(s.sent, pending.message)
		peer := s.peers[pending.message.ToAddress]
		s.mu.Unlock()

		pending.done(sendErr)
		if sendErr == nil && peer != nil {
			// Deliver a deep copy, the way a real transport hands the
			// receiver its own buffers: the receiving engine takes
			// ownership of the entries it is given.
			peer.Deliver(cloneMessage(pending.message))
		}
	}
}

// cloneMessage deep-copies a message, giving the copy its own entry
// buffers.
func cloneMessage(message *Message) *Message {
	clone := *message
	if message.AppendEntries != nil {
		request := *message.AppendEntries
		request.Entries = make([]*LogEntry, len(message.AppendEntries.Entries))
		for i, entry := range message.AppendEntries.Entries {
			request.Entries[i] = NewLogEntry(entry.Index, entry.Term, entry.EntryType, append([]byte(nil), entry.Data...))
		}
		clone.AppendEntries = &request
	}
	if message.AppendEntriesResponse != nil {
		response := *message.AppendEntriesResponse
		clone.AppendEntriesResponse = &response
	}
	if message.RequestVote != nil {
		request := *message.RequestVote
		clone.RequestVote = &request
	}
	if message.RequestVoteResponse != nil {
		response := *message.RequestVoteResponse
		clone.RequestVoteResponse = &response
	}
	if message.InstallSnapshot != nil {
		request := *message.InstallSnapshot
		request.Configuration = append([]byte(nil), message.InstallSnapshot.Configuration...)
		request.Data = append([]byte(nil), message.InstallSnapshot.Data...)
		clone.InstallSnapshot = &request
	}
	if message.InstallSnapshotResponse != nil {
		response := *message.InstallSnapshotResponse
		clone.InstallSnapshotResponse = &response
	}
	return &clone
}

// persist stores copies of the provided entries, truncating any
// conflicting suffix first. Overlapping indices overwrite: appending an
// entry at an index that is already persisted discards that index and
// everything after it.
func (s *IOStub) persist(entries []*LogEntry) {
	for _, entry := range entries {
		if n := entry.Index - s.startIndex; n < uint64(len(s.entries)) {
			s.entries = s.entries[:n]
		}
		s.entries = append(s.entries,
			NewLogEntry(entry.Index, entry.Term, entry.EntryType, append([]byte(nil), entry.Data...)))
	}
}

// Sent returns the messages flushed to the network so far and clears the
// record.
func (s *IOStub) Sent() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	sent := s.sent
	s.sent = nil
	return sent
}

// Pending returns the number of queued asynchronous operations waiting
// for a Flush.
func (s *IOStub) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingAppends) + len(s.pendingSends)
}

// Deliver hands a message to the engine's receive callback.
func (s *IOStub) Deliver(message *Message) {
	s.mu.Lock()
	recv := s.recvCb
	s.mu.Unlock()
	if recv != nil {
		recv(message)
	}
}

// Connect wires this stub to a peer stub so that flushed messages
// addressed to it are delivered to its engine.
func (s *IOStub) Connect(peer *IOStub) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[peer.address] = peer
}

// FailAppends makes the next Flush complete all queued appends with the
// provided error instead of persisting.
func (s *IOStub) FailAppends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// FailSends makes the next Flush complete all queued sends with the
// provided error instead of delivering.
func (s *IOStub) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sendErr = err
}

// Term returns the durably stored term.
func (s *IOStub) Term() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.term
}

// VotedFor returns the durably stored vote.
func (s *IOStub) VotedFor() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.votedFor
}

// Entries returns the durably stored entries.
func (s *IOStub) Entries() []*LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries
}
