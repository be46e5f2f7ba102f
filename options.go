package raft

import (
	"errors"
	"math/rand"
	"time"

	"github.com/replicore/raft/logging"
)

const (
	defaultElectionTimeout  = time.Duration(300 * time.Millisecond)
	defaultHeartbeat        = time.Duration(50 * time.Millisecond)
	defaultMaxEntriesPerRPC = 64
)

type options struct {
	// Minimum election timeout. A random timeout between electionTimeout
	// and 2 * electionTimeout is drawn whenever the election timer is
	// reset.
	electionTimeout time.Duration

	// The interval between AppendEntries RPCs that the leader sends to
	// the followers.
	heartbeatInterval time.Duration

	// The maximum number of entries transmitted in a single
	// AppendEntries request.
	maxEntriesPerRPC int

	// A provided logger that can be used by raft.
	logger *logging.Logger

	// A provided source of randomness used to draw election timeouts.
	// Tests inject a seeded source for determinism.
	rand *rand.Rand

	// A provided watcher notified of engine state changes.
	watcher Watcher
}

// Option is a function that updates the options associated with Raft.
type Option func(options *options) error

// WithElectionTimeout sets the election timeout for raft.
func WithElectionTimeout(time time.Duration) Option {
	return func(options *options) error {
		options.electionTimeout = time
		return nil
	}
}

// WithHeartbeatInterval sets the heartbeat interval for raft.
func WithHeartbeatInterval(time time.Duration) Option {
	return func(options *options) error {
		options.heartbeatInterval = time
		return nil
	}
}

// WithMaxEntriesPerRPC sets the maximum number of entries that will be
// transmitted in a single AppendEntries request.
func WithMaxEntriesPerRPC(max int) Option {
	return func(options *options) error {
		if max < 1 {
			return errors.New("maximum entries per RPC must be at least one")
		}
		options.maxEntriesPerRPC = max
		return nil
	}
}

// WithLogger sets the logger that will be used by raft.
func WithLogger(logger *logging.Logger) Option {
	return func(options *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		options.logger = logger
		return nil
	}
}

// WithRandom sets the source of randomness used to draw election
// timeouts. This is useful for deterministic tests.
func WithRandom(rand *rand.Rand) Option {
	return func(options *options) error {
		if rand == nil {
			return errors.New("random source must not be nil")
		}
		options.rand = rand
		return nil
	}
}

// WithWatcher sets the watcher that will be notified of engine state
// changes.
func WithWatcher(watcher Watcher) Option {
	return func(options *options) error {
		if watcher == nil {
			return errors.New("watcher must not be nil")
		}
		options.watcher = watcher
		return nil
	}
}
