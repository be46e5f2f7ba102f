package raft

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/replicore/raft/internal/random"
	"github.com/replicore/raft/logging"
)

// testFSM is a state machine that records the entries applied to it.
type testFSM struct {
	applied []*LogEntry
	mu      sync.Mutex
}

func (f *testFSM) Apply(entry *LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, entry)
	return nil
}

func (f *testFSM) Applied() []*LogEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*LogEntry(nil), f.applied...)
}

// testWatcher records the notifications delivered to it.
type testWatcher struct {
	roleChanges       []Role
	committed         []uint64
	promotionsAborted []uint64
	mu                sync.Mutex
}

func (w *testWatcher) RoleChanged(old Role, new Role) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.roleChanges = append(w.roleChanges, new)
}

func (w *testWatcher) Committed(index uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.committed = append(w.committed, index)
}

func (w *testWatcher) PromotionAborted(id uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.promotionsAborted = append(w.promotionsAborted, id)
}

func (w *testWatcher) PromotionsAborted() []uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]uint64(nil), w.promotionsAborted...)
}

// testRaft bundles an engine with its stubbed collaborators.
type testRaft struct {
	raft    *Raft
	io      *IOStub
	fsm     *testFSM
	watcher *testWatcher
}

// testAddress returns the address used for the server with the provided
// ID in tests.
func testAddress(id uint64) string {
	return string(rune('0'+id)) + ".test"
}

// testConfiguration builds a configuration with n voting servers with IDs
// 1 through n.
func testConfiguration(t *testing.T, n int) *Configuration {
	configuration := NewConfiguration()
	for id := uint64(1); id <= uint64(n); id++ {
		require.NoError(t, configuration.Add(id, testAddress(id), true))
	}
	return configuration
}

// newTestRaft creates a started engine with the provided ID in a cluster
// of n voting servers, backed by an I/O stub. The random source is seeded
// so that timeout selection is deterministic.
func newTestRaft(t *testing.T, id uint64, n int) *testRaft {
	io := NewIOStub()
	fsm := &testFSM{}
	watcher := &testWatcher{}

	logger, err := logging.NewLogger(logging.WithLevel(logging.Error))
	require.NoError(t, err)

	r, err := NewRaft(id, testAddress(id), io, fsm,
		WithLogger(logger),
		WithRandom(random.NewSource(int64(id))),
		WithWatcher(watcher),
	)
	require.NoError(t, err)

	require.NoError(t, r.Bootstrap(testConfiguration(t, n)))
	require.NoError(t, r.Start())

	return &testRaft{raft: r, io: io, fsm: fsm, watcher: watcher}
}

// electLeader drives the provided engine through an election by advancing
// time past any possible timeout and delivering granted votes from a
// quorum of its peers.
func electLeader(t *testing.T, tr *testRaft, n int) {
	tr.io.Advance(uint(2 * defaultElectionTimeout.Milliseconds()))
	require.Equal(t, Candidate, tr.raft.role)

	term := tr.raft.currentTerm
	granted := 1
	for id := uint64(1); id <= uint64(n) && granted < n/2+1; id++ {
		if id == tr.raft.id {
			continue
		}
		require.NoError(t, tr.raft.Step(&Message{
			Type:                MessageRequestVoteResponse,
			From:                id,
			FromAddress:         testAddress(id),
			To:                  tr.raft.id,
			RequestVoteResponse: &RequestVoteResponse{Term: term, VoteGranted: true},
		}))
		granted++
	}

	require.Equal(t, Leader, tr.raft.role)
}

// pump flushes the provided stubs until no asynchronous operations remain
// queued on any of them.
func pump(t *testing.T, stubs ...*IOStub) {
	for round := 0; ; round++ {
		require.Less(t, round, 1000, "cluster did not quiesce")

		pending := 0
		for _, stub := range stubs {
			pending += stub.Pending()
		}
		if pending == 0 {
			return
		}
		for _, stub := range stubs {
			stub.Flush()
		}
	}
}

// validateEntry checks the index, term and payload of a log entry.
func validateEntry(t *testing.T, entry *LogEntry, expectedIndex uint64, expectedTerm uint64, expectedData []byte) {
	require.Equal(t, expectedIndex, entry.Index, "entry has incorrect index")
	require.Equal(t, expectedTerm, entry.Term, "entry has incorrect term")
	require.Equal(t, expectedData, entry.Data, "entry has incorrect data")
}

// waitFor polls the provided condition until it holds or the timeout
// expires.
func waitFor(t *testing.T, timeout time.Duration, condition func() bool, message string) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Fail(t, message)
}
