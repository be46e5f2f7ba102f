package raft

import (
	"fmt"
	"math/rand"
	"sync"

	"github.com/replicore/raft/internal/random"
	"github.com/replicore/raft/logging"
)

// Command is an operation that will be applied to the state machine.
type Command struct {
	// The bytes of the operation.
	Bytes []byte
}

// Status is a snapshot of the observable state of a Raft instance.
type Status struct {
	// The ID of the Raft instance.
	ID uint64

	// The current term.
	Term uint64

	// The current commit index.
	CommitIndex uint64

	// The index of the last log entry applied to the state machine.
	LastApplied uint64

	// The current role of the Raft instance.
	Role Role

	// The ID of the current leader as known to this server, or zero.
	LeaderID uint64
}

// Raft is the consensus engine in the replicated state machine
// architecture. It is a pure event-driven state machine: the I/O
// collaborator delivers events (elapsed time, received messages, I/O
// completions) and the engine reacts by recording state and handing
// intents back to the collaborator. The engine performs no I/O of its own
// and spawns no goroutines.
//
// Every entry point locks the engine, so events may be delivered from any
// goroutine; within the engine all work is synchronous.
type Raft struct {
	// The ID of this server. Non-zero.
	id uint64

	// The network address of this server. Opaque to the engine.
	address string

	// The configuration options for this Raft instance.
	options options

	// The I/O collaborator that performs persistence and networking on
	// behalf of the engine.
	io IO

	// The state machine provided by the client that committed commands
	// will be applied to.
	fsm StateMachine

	// The replicated log.
	log *Log

	// The active cluster configuration. Configuration entries take effect
	// as soon as they are appended.
	configuration *Configuration

	// The configuration as of the latest committed configuration entry.
	// Used to roll back when an uncommitted configuration entry is
	// truncated away.
	committedConfiguration *Configuration

	// The index of the uncommitted configuration entry, or zero if the
	// active configuration is committed.
	uncommittedConfigurationIndex uint64

	// The latest term this server has seen. Persisted before use.
	currentTerm uint64

	// The ID of the candidate that received this server's vote in the
	// current term, or zero if none. Persisted before use.
	votedFor uint64

	// The index of the highest log entry known to be committed.
	commitIndex uint64

	// The index of the highest log entry applied to the state machine.
	lastApplied uint64

	// The role of this server along with the per-role scratch state.
	role      Role
	follower  followerState
	candidate candidateState
	leader    leaderState

	// Milliseconds elapsed since the election or heartbeat timer was last
	// reset.
	timer uint

	// The current randomized election timeout in milliseconds, redrawn
	// from [electionTimeout, 2 * electionTimeout) on every timer reset.
	electionTimeoutRand uint

	// Set once the engine has detected corrupted state. Every subsequent
	// operation fails with ErrShutdown.
	errored bool

	// The source of randomness used to draw election timeouts.
	rand *rand.Rand

	// The watcher notified of engine state changes.
	watcher Watcher

	logger *logging.Logger

	mu sync.Mutex
}

// NewRaft creates a new Raft instance with the provided ID and address
// that uses the provided I/O collaborator and state machine. The instance
// starts in the unavailable role: call Bootstrap to create an initial
// configuration on first use and Start to begin operating.
func NewRaft(id uint64, address string, io IO, fsm StateMachine, opts ...Option) (*Raft, error) {
	if id == 0 {
		return nil, fmt.Errorf("could not create raft: ID must not be zero")
	}
	if io == nil {
		return nil, fmt.Errorf("could not create raft: I/O collaborator must not be nil")
	}
	if fsm == nil {
		return nil, fmt.Errorf("could not create raft: state machine must not be nil")
	}

	var options options
	for _, opt := range opts {
		if err := opt(&options); err != nil {
			return nil, fmt.Errorf("could not create raft: %w", err)
		}
	}
	if options.logger == nil {
		logger, err := logging.NewLogger()
		if err != nil {
			return nil, fmt.Errorf("could not create raft: %w", err)
		}
		options.logger = logger
	}
	if options.electionTimeout == 0 {
		options.electionTimeout = defaultElectionTimeout
	}
	if options.heartbeatInterval == 0 {
		options.heartbeatInterval = defaultHeartbeat
	}
	if options.maxEntriesPerRPC == 0 {
		options.maxEntriesPerRPC = defaultMaxEntriesPerRPC
	}
	if options.rand == nil {
		options.rand = random.NewTimeSource()
	}
	if options.watcher == nil {
		options.watcher = nopWatcher{}
	}

	r := &Raft{
		id:                     id,
		address:                address,
		options:                options,
		io:                     io,
		fsm:                    fsm,
		log:                    NewLog(),
		configuration:          NewConfiguration(),
		committedConfiguration: NewConfiguration(),
		role:                   Unavailable,
		rand:                   options.rand,
		watcher:                options.watcher,
		logger:                 options.logger,
	}

	return r, nil
}

// Bootstrap persists an initial configuration for a pristine server. The
// configuration must contain at least one voting member. All servers of a
// new cluster must be bootstrapped with an identical configuration before
// being started.
func (r *Raft) Bootstrap(configuration *Configuration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errored {
		return ErrShutdown
	}
	if r.role != Unavailable {
		return fmt.Errorf("could not bootstrap a running server: %w", ErrBadState)
	}
	if configuration.NVoting() == 0 {
		return fmt.Errorf("could not bootstrap without voting members: %w", ErrBadState)
	}

	if err := r.io.Bootstrap(configuration); err != nil {
		return wrapIO(err, "could not bootstrap server %d", r.id)
	}
	return nil
}

// Start loads the durable state persisted by previous runs and begins
// operating as a follower with a fresh randomized election timeout.
func (r *Raft) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errored {
		return ErrShutdown
	}
	if r.role != Unavailable {
		return nil
	}

	state, err := r.io.Load()
	if err != nil {
		return wrapIO(err, "could not load durable state of server %d", r.id)
	}

	r.currentTerm = state.Term
	r.votedFor = state.VotedFor
	r.commitIndex = 0
	r.lastApplied = 0
	r.committedConfiguration = NewConfiguration()
	r.uncommittedConfigurationIndex = 0
	r.log = NewLog()
	if state.StartIndex > 1 {
		r.log.firstIndex = state.StartIndex
		r.log.snapshotIndex = state.StartIndex - 1
	}
	if err := r.log.AppendEntries(state.Entries...); err != nil {
		return err
	}
	if err := r.restoreConfiguration(); err != nil {
		return err
	}

	tickMillis := uint(r.options.heartbeatInterval.Milliseconds())
	if err := r.io.Start(r.id, r.address, tickMillis, r.Tick, r.recv); err != nil {
		return wrapIO(err, "could not start I/O for server %d", r.id)
	}

	r.setRole(Follower)
	r.follower = followerState{}
	r.resetElectionTimer()

	r.logger.Infof("server %d started: term = %d, lastIndex = %d", r.id, r.currentTerm, r.log.LastIndex())
	return nil
}

// Stop stops the engine: it enters the unavailable role and tells the I/O
// collaborator to drain. The engine may be started again afterwards.
func (r *Raft) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.role == Unavailable {
		return nil
	}
	r.setRole(Unavailable)

	stopped := make(chan struct{})
	if err := r.io.Stop(func() { close(stopped) }); err != nil {
		return wrapIO(err, "could not stop I/O for server %d", r.id)
	}

	r.mu.Unlock()
	<-stopped
	r.mu.Lock()

	r.logger.Infof("server %d stopped", r.id)
	return nil
}

// SubmitCommand accepts a command from a client for replication and
// returns the log index and term assigned to it. ErrNotLeader is returned
// if this server is not the leader.
func (r *Raft) SubmitCommand(command Command) (uint64, uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errored {
		return 0, 0, ErrShutdown
	}
	if r.role != Leader {
		return 0, 0, fmt.Errorf("could not submit command to server %d: %w", r.id, ErrNotLeader)
	}

	index := r.log.LastIndex() + 1
	term := r.currentTerm
	if err := r.leaderAppend(EntryCommand, command.Bytes); err != nil {
		return 0, 0, err
	}
	r.triggerReplication()

	r.logger.Debugf("server %d submitted command: index = %d, term = %d", r.id, index, term)
	return index, term, nil
}

// Status returns the current status of this Raft instance.
func (r *Raft) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	leaderID := uint64(0)
	switch r.role {
	case Follower:
		leaderID = r.follower.currentLeaderID
	case Leader:
		leaderID = r.id
	}

	return Status{
		ID:          r.id,
		Term:        r.currentTerm,
		CommitIndex: r.commitIndex,
		LastApplied: r.lastApplied,
		Role:        r.role,
		LeaderID:    leaderID,
	}
}

// Step delivers a received message to the engine. It is the entry point
// that the I/O collaborator's receive callback feeds and may also be
// called directly by custom collaborators.
func (r *Raft) Step(message *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.step(message)
}

// recv is the receive callback handed to the I/O collaborator.
func (r *Raft) recv(message *Message) {
	if err := r.Step(message); err != nil {
		r.logger.Errorf("server %d failed handling %s message: %s", r.id, message.Type, err.Error())
	}
}

func (r *Raft) step(message *Message) error {
	if r.errored {
		return ErrShutdown
	}
	if r.role == Unavailable {
		return nil
	}

	switch message.Type {
	case MessageAppendEntries:
		return r.handleAppendEntries(message)
	case MessageAppendEntriesResponse:
		return r.handleAppendEntriesResult(message)
	case MessageRequestVote:
		return r.handleRequestVote(message)
	case MessageRequestVoteResponse:
		return r.handleRequestVoteResult(message)
	case MessageInstallSnapshot:
		return r.handleInstallSnapshot(message)
	case MessageInstallSnapshotResponse:
		return r.handleInstallSnapshotResult(message)
	default:
		return wrapInternal("unknown message type %d", message.Type)
	}
}

// shutdown latches the corrupted-state condition: the engine becomes
// unavailable, emits no further intents, and every subsequent operation
// fails with ErrShutdown.
func (r *Raft) shutdown(reason string) error {
	r.logger.Errorf("server %d is shutting down: %s", r.id, reason)
	r.errored = true
	r.setRole(Unavailable)
	return ErrShutdown
}

// send hands a message to the I/O collaborator for transmission.
func (r *Raft) send(message *Message) {
	message.From = r.id
	message.FromAddress = r.address
	to := message.To
	if err := r.io.Send(message, func(err error) { r.sendDone(to, err) }); err != nil {
		r.logger.Errorf("server %d could not send %s message to server %d: %s",
			r.id, message.Type, message.To, err.Error())
	}
}

// sendDone is invoked by the I/O collaborator when an outbound message has
// been handed to the network or has failed.
func (r *Raft) sendDone(to uint64, err error) {
	if err == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.logger.Debugf("server %d could not reach server %d: %s", r.id, to, err.Error())

	// An unreachable peer is demoted to probe so that replication backs
	// off to one request at a time until contact is re-established.
	if r.role != Leader {
		return
	}
	if p, ok := r.leader.progress[to]; ok {
		p.toProbe()
	}
}

// randomElectionTimeout draws a fresh random election timeout.
func (r *Raft) randomElectionTimeout() uint {
	timeout := uint(r.options.electionTimeout.Milliseconds())
	return random.Millis(r.rand, timeout, 2*timeout)
}

// restoreConfiguration rebuilds the active configuration from the log,
// falling back to the latest committed configuration when the log holds no
// configuration entry. Used at startup and after a truncation that may
// have discarded an uncommitted configuration entry.
func (r *Raft) restoreConfiguration() error {
	for index := r.log.LastIndex(); index >= r.log.FirstIndex() && index > 0; index-- {
		entry, err := r.log.GetEntry(index)
		if err != nil {
			return err
		}
		if entry.EntryType != EntryConfiguration {
			continue
		}

		configuration, err := decodeConfiguration(entry.Data)
		if err != nil {
			return r.shutdown(fmt.Sprintf("corrupt configuration entry at index %d: %s", index, err.Error()))
		}
		r.configuration = configuration
		if index > r.commitIndex {
			r.uncommittedConfigurationIndex = index
		} else {
			r.committedConfiguration = configuration.Clone()
			r.uncommittedConfigurationIndex = 0
		}
		return nil
	}

	r.configuration = r.committedConfiguration.Clone()
	r.uncommittedConfigurationIndex = 0
	return nil
}
