package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLeader creates a started sole-voter engine and elects it.
func newTestLeader(t *testing.T) *testRaft {
	tr := newTestRaft(t, 1, 1)
	tr.io.Advance(1)
	require.Equal(t, Leader, tr.raft.role)
	tr.io.Flush()
	require.Equal(t, uint64(2), tr.raft.commitIndex)
	return tr
}

func TestAddNonVoting(t *testing.T) {
	tr := newTestLeader(t)

	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))

	// The configuration takes effect as soon as its entry is appended.
	server := tr.raft.configuration.Get(2)
	require.NotNil(t, server)
	assert.False(t, server.Voting)
	assert.NotNil(t, tr.raft.leader.progress[2])

	// Until the entry commits, further changes are rejected.
	err := tr.raft.AddNonVoting(3, testAddress(3))
	assert.ErrorIs(t, err, ErrConfigBusy)

	// The sole voter commits the entry on its own once it is durable.
	tr.io.Flush()
	assert.Equal(t, uint64(0), tr.raft.uncommittedConfigurationIndex)
	require.NoError(t, tr.raft.AddNonVoting(3, testAddress(3)))
}

func TestAddNonVotingNotLeader(t *testing.T) {
	tr := newTestRaft(t, 1, 2)
	err := tr.raft.AddNonVoting(3, testAddress(3))
	assert.ErrorIs(t, err, ErrNotLeader)
}

func TestAddNonVotingDuplicate(t *testing.T) {
	tr := newTestLeader(t)
	err := tr.raft.AddNonVoting(1, testAddress(1))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestPromoteUnknownServer(t *testing.T) {
	tr := newTestLeader(t)
	err := tr.raft.Promote(9)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestPromoteAlreadyVoting(t *testing.T) {
	tr := newTestLeader(t)
	err := tr.raft.Promote(1)
	assert.ErrorIs(t, err, ErrBadState)
}

func TestPromoteAfterCatchUp(t *testing.T) {
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()

	require.NoError(t, tr.raft.Promote(2))
	require.Equal(t, uint64(2), tr.raft.leader.promoteeID)
	require.Equal(t, uint(1), tr.raft.leader.roundNumber)

	// The non-voter acknowledges everything up to the leader's last
	// index: the round completes instantly, so the promotion proceeds.
	last := tr.raft.log.LastIndex()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: last},
	}))

	assert.Equal(t, uint64(0), tr.raft.leader.promoteeID)
	require.NotNil(t, tr.raft.configuration.Get(2))
	assert.True(t, tr.raft.configuration.Get(2).Voting)
}

func TestPromoteAlreadyCaughtUp(t *testing.T) {
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()

	// Catch the server up before requesting the promotion.
	last := tr.raft.log.LastIndex()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: last},
	}))
	require.Equal(t, last, tr.raft.leader.progress[2].matchIndex)

	require.NoError(t, tr.raft.Promote(2))

	// No catch-up phase: the configuration entry is appended right away.
	assert.Equal(t, uint64(0), tr.raft.leader.promoteeID)
	assert.True(t, tr.raft.configuration.Get(2).Voting)
}

func TestPromotionLastRoundAtTimeoutBoundary(t *testing.T) {
	electionTimeout := uint(defaultElectionTimeout.Milliseconds())

	// Catching up exactly at the election timeout on the final round
	// still promotes.
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()
	require.NoError(t, tr.raft.Promote(2))

	tr.raft.leader.roundNumber = maxCatchUpRounds
	tr.raft.leader.roundDuration = electionTimeout

	last := tr.raft.log.LastIndex()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: last},
	}))
	assert.True(t, tr.raft.configuration.Get(2).Voting)
	assert.Empty(t, tr.watcher.PromotionsAborted())

	// One millisecond past the timeout the promotion is aborted instead.
	tr = newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()
	require.NoError(t, tr.raft.Promote(2))

	tr.raft.leader.roundNumber = maxCatchUpRounds
	tr.raft.leader.roundDuration = electionTimeout
	tr.io.Advance(1)

	assert.Equal(t, []uint64{2}, tr.watcher.PromotionsAborted())
	assert.Equal(t, uint64(0), tr.raft.leader.promoteeID)
	assert.False(t, tr.raft.configuration.Get(2).Voting)
}

func TestPromotionStartsNewRound(t *testing.T) {
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()
	require.NoError(t, tr.raft.Promote(2))

	// The round took longer than an election timeout, but rounds remain:
	// a new round starts at the leader's current last index.
	tr.raft.leader.roundDuration = uint(defaultElectionTimeout.Milliseconds()) + 1

	last := tr.raft.log.LastIndex()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: last},
	}))

	assert.Equal(t, uint64(2), tr.raft.leader.promoteeID)
	assert.Equal(t, uint(2), tr.raft.leader.roundNumber)
	assert.Equal(t, uint(0), tr.raft.leader.roundDuration)
	assert.False(t, tr.raft.configuration.Get(2).Voting)
}

func TestPromotionUnresponsiveServerAborts(t *testing.T) {
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()
	require.NoError(t, tr.raft.Promote(2))

	// The promotee never responds: after thirty seconds across all
	// rounds the promotion is aborted.
	for i := 0; i < 31; i++ {
		tr.io.Advance(1000)
	}

	assert.Equal(t, []uint64{2}, tr.watcher.PromotionsAborted())
	assert.Equal(t, uint64(0), tr.raft.leader.promoteeID)
}

func TestRemoveServer(t *testing.T) {
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()

	require.NoError(t, tr.raft.Remove(2))
	assert.Nil(t, tr.raft.configuration.Get(2))
	assert.Nil(t, tr.raft.leader.progress[2])

	tr.io.Flush()
	assert.Equal(t, uint64(0), tr.raft.uncommittedConfigurationIndex)
}

func TestRemoveUnknownServer(t *testing.T) {
	tr := newTestLeader(t)
	err := tr.raft.Remove(9)
	assert.ErrorIs(t, err, ErrUnknownID)
}

func TestLeaderRemovingItselfStepsDown(t *testing.T) {
	tr := newTestRaft(t, 1, 2)
	electLeader(t, tr, 2)
	tr.io.Flush()

	// Catch the other server up so the removal entry can commit.
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 2},
	}))
	require.Equal(t, uint64(2), tr.raft.commitIndex)

	require.NoError(t, tr.raft.Remove(1))
	require.Equal(t, Leader, tr.raft.role)

	// Once the removal entry commits, the leader steps down.
	tr.io.Flush()
	require.NoError(t, tr.raft.Step(&Message{
		Type:                  MessageAppendEntriesResponse,
		From:                  2,
		To:                    1,
		AppendEntriesResponse: &AppendEntriesResponse{Term: 2, Success: true, LastLogIndex: 3},
	}))

	assert.Equal(t, uint64(3), tr.raft.commitIndex)
	assert.Equal(t, Follower, tr.raft.role)
}

func TestConfigurationRollbackOnTruncate(t *testing.T) {
	tr := newTestRaft(t, 1, 2)

	// An uncommitted configuration entry adding a third server arrives
	// and takes effect immediately.
	bigger := testConfiguration(t, 3)
	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         2,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries:      []*LogEntry{NewLogEntry(2, 2, EntryConfiguration, encodeConfiguration(bigger))},
		LeaderCommit: 1,
	})))
	tr.io.Flush()
	require.Equal(t, 3, len(tr.raft.configuration.Servers))
	require.Equal(t, uint64(2), tr.raft.uncommittedConfigurationIndex)

	// A newer leader truncates that entry away: the previous
	// configuration is restored.
	require.NoError(t, tr.raft.Step(appendEntriesMessage(&AppendEntriesRequest{
		LeaderID:     2,
		Term:         3,
		PrevLogIndex: 1,
		PrevLogTerm:  1,
		Entries:      []*LogEntry{NewLogEntry(2, 3, EntryCommand, []byte("cmd"))},
		LeaderCommit: 1,
	})))
	tr.io.Flush()

	assert.Equal(t, 2, len(tr.raft.configuration.Servers))
	assert.Equal(t, uint64(0), tr.raft.uncommittedConfigurationIndex)
}

func TestConfigBusyDuringPromotion(t *testing.T) {
	tr := newTestLeader(t)
	require.NoError(t, tr.raft.AddNonVoting(2, testAddress(2)))
	tr.io.Flush()
	require.NoError(t, tr.raft.Promote(2))

	err := tr.raft.AddNonVoting(3, testAddress(3))
	assert.ErrorIs(t, err, ErrConfigBusy)
	err = tr.raft.Remove(2)
	assert.ErrorIs(t, err, ErrConfigBusy)
}
