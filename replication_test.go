package raft

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendEntriesMessage builds an AppendEntries message from the request's
// leader to server 1.
func appendEntriesMessage(request *AppendEntriesRequest) *Message {
	return &Message{
		Type:          MessageAppendEntries,
		From:          request.LeaderID,
		FromAddress:   testAddress(request.LeaderID),
		To:            1,
		AppendEntries: request,
	}
}

// lastResponse flushes the stub and returns the single AppendEntries
// response it sent.
func lastResponse(t *testing.T, io *IOStub) *AppendEntriesResponse {
	io.Flush()
	var response *AppendEntriesResponse
	for _, message := range io.Sent() {
		if message.Type == MessageAppendEntriesResponse {
			require.Nil(t, response, "more than one AppendEntries response sent")
			response = message.AppendEntriesResponse
		}
	}
	require.NotNil(t, response, "no AppendEntries response sent")
	return response
}

func TestAppendEntriesRejectsStaleTerm(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	// Bump the local term by becoming candidate.
	tr.io.Advance(uint(2 * defaultElectionTimeout.Milliseconds()))
	require.Equal(t, uint64(2), tr.raft.currentTerm)
	tr.io.Flush()
	tr.io.Sent()

	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         1,
		PrevLogIndex: 0,
		PrevLogTerm:  0,
		LeaderCommit: 1,
	})))

	response := lastResponse(t, tr.io)
	assert.Equal(t, uint64(2), response.Term)
	assert.False(t, response.Success)
	assert.Equal(t, uint64(1), response.LastLogIndex)

	// The request changed nothing: still candidate in term 2.
	assert.Equal(t, Candidate, tr.raft.role)
	assert.Equal(t, uint64(2), tr.raft.currentTerm)
}

func TestAppendEntriesHigherTermStepsDown(t *testing.T) {
	tr := newTestRaft(t, 1, 2)
	tr.io.Advance(uint(2 * defaultElectionTimeout.Milliseconds()))
	require.Equal(t, Candidate, tr.raft.role)

	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         3,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		LeaderCommit: 1,
	})))

	assert.Equal(t, Follower, tr.raft.role)
	assert.Equal(t, uint64(3), tr.raft.currentTerm)
	assert.Equal(t, uint64(2), tr.raft.follower.currentLeaderID)
}

func TestAppendEntriesSameTermCandidateStepsDown(t *testing.T) {
	tr := newTestRaft(t, 1, 2)
	tr.io.Advance(uint(2 * defaultElectionTimeout.Milliseconds()))
	require.Equal(t, Candidate, tr.raft.role)
	require.Equal(t, uint64(2), tr.raft.currentTerm)

	// Another candidate won the election for the same term.
	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
	})))

	assert.Equal(t, Follower, tr.raft.role)
	assert.Equal(t, uint64(2), tr.raft.currentTerm)
	assert.Equal(t, uint64(2), tr.raft.follower.currentLeaderID)
}

func TestAppendEntriesOverwritesConflictingSuffix(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	// Replicate an entry at index 2 in term 1.
	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         1,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries:      []*LogEntry{NewLogEntry(2, 1, EntryCommand, []byte{1})},
		LeaderCommit: 1,
	})))
	response := lastResponse(t, tr.io)
	require.True(t, response.Success)
	require.Equal(t, uint64(2), response.LastLogIndex)

	// A new leader overwrites it with entries from term 2.
	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries: []*LogEntry{
			NewLogEntry(2, 2, EntryCommand, []byte{2}),
			NewLogEntry(3, 2, EntryCommand, []byte{3}),
		},
		LeaderCommit: 1,
	})))
	response = lastResponse(t, tr.io)
	require.True(t, response.Success)
	require.Equal(t, uint64(3), response.LastLogIndex)

	entry2, err := tr.raft.log.GetEntry(2)
	require.NoError(t, err)
	validateEntry(t, entry2, 2, 2, []byte{2})
	entry3, err := tr.raft.log.GetEntry(3)
	require.NoError(t, err)
	validateEntry(t, entry3, 3, 2, []byte{3})

	// The durable log was overwritten as well.
	persisted := tr.io.Entries()
	require.Equal(t, 3, len(persisted))
	validateEntry(t, persisted[1], 2, 2, []byte{2})
	validateEntry(t, persisted[2], 3, 2, []byte{3})
}

func TestAppendEntriesIdempotent(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	request := func() *AppendEntriesRequest {
		return &AppendEntriesRequest{
			LeaderID:     2,
			Term:         1,
			PrevLogIndex: 1,
			PrevLogTerm:  1,
			Entries:      []*LogEntry{NewLogEntry(2, 1, EntryCommand, []byte("cmd"))},
		}
	}

	require.NoError(t, tr.raft.Step(appendEntriesMessage(request())))
	response := lastResponse(t, tr.io)
	require.True(t, response.Success)
	require.Equal(t, 2, tr.raft.log.Size())

	// Replaying the identical request appends nothing new.
	require.NoError(t, tr.raft.Step(appendEntriesMessage(request())))
	response = lastResponse(t, tr.io)
	assert.True(t, response.Success)
	assert.Equal(t, uint64(2), response.LastLogIndex)
	assert.Equal(t, 2, tr.raft.log.Size())
}

func TestAppendEntriesCommittedConflictShutsDown(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	// Commit the bootstrap configuration entry at index 1.
	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         1,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		LeaderCommit: 1,
	})))
	require.Equal(t, uint64(1), tr.raft.commitIndex)

	// A request claiming a different term for the committed entry at
	// index 1 proves the state is corrupt.
	err := tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  2,
		LeaderCommit: 1,
	}))
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Equal(t, Unavailable, tr.raft.role)

	// Every subsequent operation fails.
	_, _, err = tr.raft.SubmitCommand(Command{Bytes: []byte("cmd")})
	assert.ErrorIs(t, err, ErrShutdown)
	err = tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{LeaderID: 2, Term: 2}))
	assert.ErrorIs(t, err, ErrShutdown)
}

func TestAppendEntriesReleasesEntriesOnShutdown(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         1,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		LeaderCommit: 1,
	})))

	// Entries handed to the engine are owned by it: on the shutdown path
	// every entry it will not retain is released, including shared
	// batches.
	batch, err := decodeBatch(encodeBatch([]*LogEntry{
		NewLogEntry(0, 2, EntryCommand, []byte("cmd")),
	}))
	require.NoError(t, err)
	// Releasing an entry clears its batch pointer, so keep the batch.
	shared := batch[0].batch

	err = tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  2,
		Entries:      batch,
		LeaderCommit: 1,
	}))
	require.ErrorIs(t, err, ErrShutdown)
	assert.Equal(t, 0, shared.refs)
}

func TestQuorumCommit(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)
	require.Equal(t, uint64(2), tr.raft.currentTerm)

	// One follower acknowledges the initial probe carrying the no-op:
	// together with the leader it forms a quorum of the three voters.
	tr.io.Flush()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 2},
	}))
	require.Equal(t, uint64(2), tr.raft.commitIndex)

	index, term, err := tr.raft.SubmitCommand(Command{Bytes: []byte("cmd")})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), index)
	assert.Equal(t, uint64(2), term)

	// Make the leader's own entry durable, then let the same follower
	// acknowledge it.
	tr.io.Flush()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 3},
	}))

	assert.Equal(t, uint64(3), tr.raft.commitIndex)

	// The command was applied; the no-op advanced silently.
	applied := tr.fsm.Applied()
	require.Equal(t, 1, len(applied))
	assert.Equal(t, []byte("cmd"), applied[0].Data)
	assert.Equal(t, uint64(3), applied[0].Index)
}

func TestLeaderBacksUpOnRejection(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)
	tr.io.Flush()
	tr.io.Sent()

	// The follower rejects with an empty log: the next request must start
	// from index 1.
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: false, LastLogIndex: 0},
	}))

	p := tr.raft.leader.progress[2]
	require.NotNil(t, p)
	assert.Equal(t, uint64(1), p.nextIndex)

	tr.io.Flush()
	sent := tr.io.Sent()
	var request *AppendEntriesRequest
	for _, message := range sent {
		if message.Type == MessageAppendEntries && message.To == 2 {
			request = message.AppendEntries
		}
	}
	require.NotNil(t, request)
	assert.Equal(t, uint64(0), request.PrevLogIndex)
	require.NotEmpty(t, request.Entries)
	assert.Equal(t, uint64(1), request.Entries[0].Index)
}

func TestNextIndexNeverBelowOne(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)

	for i := 0; i < 3; i++ {
		require.NoError(t, tr.raft.Step(&Message{
			Type:                  MessageAppendEntriesResponse,
			From:                  2,
			To:                    1,
			AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: false, LastLogIndex: 0},
		}))
	}

	assert.Equal(t, uint64(1), tr.raft.leader.progress[2].nextIndex)
}

func TestProbeTransitionsToPipeline(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)

	p := tr.raft.leader.progress[2]
	require.Equal(t, progressProbe, p.state)
	require.True(t, p.inFlight)

	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 2},
	}))

	assert.Equal(t, progressPipeline, p.state)
	assert.Equal(t, uint64(2), p.matchIndex)
	assert.Equal(t, uint64(3), p.nextIndex)
}

func TestDuplicateResultDiscarded(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)

	p := tr.raft.leader.progress[2]
	require.True(t, p.inFlight)

	// Demote back to probe so the in-flight marker is load-bearing, then
	// deliver a reply with no outstanding request.
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 2},
	}))
	require.Equal(t, progressPipeline, p.state)
	p.toProbe()
	require.False(t, p.inFlight)

	match := p.matchIndex
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 2},
	}))
	assert.Equal(t, match, p.matchIndex)
}

func TestLeaderStepsDownOnHigherTermResult(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)

	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 7, Success: false, LastLogIndex: 5},
	}))

	assert.Equal(t, Follower, tr.raft.role)
	assert.Equal(t, uint64(7), tr.raft.currentTerm)
}

func TestHeartbeatResetsElectionTimer(t *testing.T) {
	tr := newTestRaft(t, 1, 2)
	timeout := uint(defaultElectionTimeout.Milliseconds())

	// Heartbeats keep arriving just before the minimum timeout: the
	// follower must not start an election.
	for i := 0; i < 5; i++ {
		tr.io.Advance(timeout - 1)
		require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
			LeaderID:     2,
			Term:         1,
			PrevLogIndex: 1,
			PrevLogTerm:  1,
		})))
		require.Equal(t, Follower, tr.raft.role)
	}

	// Without heartbeats the election timeout eventually fires.
	tr.io.Advance(2 * timeout)
	assert.Equal(t, Candidate, tr.raft.role)
}

func TestFollowerAppendFailureRollsBack(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         1,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries:      []*LogEntry{NewLogEntry(2, 1, EntryCommand, []byte("cmd"))},
	})))
	require.Equal(t, uint64(2), tr.raft.log.LastIndex())

	// The first failure is retried; the retry fails too, so the
	// unpersisted suffix is rolled back and no reply is sent.
	tr.io.FailAppends(errors.New("disk failure"))
	tr.io.Flush()
	tr.io.FailAppends(errors.New("disk failure"))
	tr.io.Flush()

	assert.Equal(t, uint64(1), tr.raft.log.LastIndex())
	for _, message := range tr.io.Sent() {
		assert.NotEqual(t, MessageAppendEntriesResponse, message.Type)
	}
}

func TestSendFailureDemotesPeerToProbe(t *testing.T) {
	tr := newTestRaft(t, 1, 3)
	electLeader(t, tr, 3)

	p := tr.raft.leader.progress[2]
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 2},
	}))
	require.Equal(t, progressPipeline, p.state)

	// Submit a command so there is an outbound request to fail.
	_, _, err := tr.raft.SubmitCommand(Command{Bytes: []byte("cmd")})
	require.NoError(t, err)

	tr.io.FailSends(errors.New("connection refused"))
	tr.io.Flush()

	assert.Equal(t, progressProbe, p.state)
}
