package raft

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replicore/raft/internal/random"
	"github.com/replicore/raft/logging"
)

func TestOptionsDefaults(t *testing.T) {
	io := NewIOStub()
	r, err := NewRaft(1, testAddress(1), io, &testFSM{})
	require.NoError(t, err)

	assert.Equal(t, defaultElectionTimeout, r.options.electionTimeout)
	assert.Equal(t, defaultHeartbeat, r.options.heartbeatInterval)
	assert.Equal(t, defaultMaxEntriesPerRPC, r.options.maxEntriesPerRPC)
	assert.NotNil(t, r.options.logger)
	assert.NotNil(t, r.options.rand)
}

func TestOptionsOverrides(t *testing.T) {
	io := NewIOStub()
	logger, err := logging.NewLogger(logging.WithLevel(logging.Error))
	require.NoError(t, err)
	watcher := &testWatcher{}

	r, err := NewRaft(1, testAddress(1), io, &testFSM{},
		WithElectionTimeout(500*time.Millisecond),
		WithHeartbeatInterval(100*time.Millisecond),
		WithMaxEntriesPerRPC(8),
		WithLogger(logger),
		WithRandom(random.NewSource(42)),
		WithWatcher(watcher),
	)
	require.NoError(t, err)

	assert.Equal(t, 500*time.Millisecond, r.options.electionTimeout)
	assert.Equal(t, 100*time.Millisecond, r.options.heartbeatInterval)
	assert.Equal(t, 8, r.options.maxEntriesPerRPC)
	assert.Equal(t, logger, r.options.logger)
	assert.Equal(t, Watcher(watcher), r.watcher)
}

func TestOptionsValidation(t *testing.T) {
	io := NewIOStub()

	_, err := NewRaft(1, testAddress(1), io, &testFSM{}, WithMaxEntriesPerRPC(0))
	assert.Error(t, err)
	_, err = NewRaft(1, testAddress(1), io, &testFSM{}, WithLogger(nil))
	assert.Error(t, err)
	_, err = NewRaft(1, testAddress(1), io, &testFSM{}, WithRandom(nil))
	assert.Error(t, err)
	_, err = NewRaft(1, testAddress(1), io, &testFSM{}, WithWatcher(nil))
	assert.Error(t, err)
}

func TestRandomizedElectionTimeoutRange(t *testing.T) {
	io := NewIOStub()
	r, err := NewRaft(1, testAddress(1), io, &testFSM{},
		WithRandom(random.NewSource(7)))
	require.NoError(t, err)

	timeout := uint(defaultElectionTimeout.Milliseconds())
	for i := 0; i < 100; i++ {
		drawn := r.randomElectionTimeout()
		assert.GreaterOrEqual(t, drawn, timeout)
		assert.Less(t, drawn, 2*timeout)
	}
}
