package raft

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) Storage {
	storage, err := NewStorage(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, storage.Open())
	t.Cleanup(func() { storage.Close() })
	return storage
}

func TestStorageBootstrap(t *testing.T) {
	storage := newTestStorage(t)

	configuration := testConfiguration(t, 3)
	require.NoError(t, storage.Bootstrap(configuration))

	state, err := storage.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), state.Term)
	assert.Equal(t, uint64(0), state.VotedFor)
	assert.Equal(t, uint64(1), state.StartIndex)
	require.Equal(t, 1, len(state.Entries))

	entry := state.Entries[0]
	assert.Equal(t, uint64(1), entry.Index)
	assert.Equal(t, uint64(1), entry.Term)
	assert.Equal(t, EntryConfiguration, entry.EntryType)

	decoded, err := decodeConfiguration(entry.Data)
	require.NoError(t, err)
	assert.Equal(t, configuration, decoded)

	// Bootstrapping twice fails.
	assert.Error(t, storage.Bootstrap(configuration))
}

func TestStorageTermAndVotePersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Open())

	require.NoError(t, storage.SetTerm(7))
	require.NoError(t, storage.SetVote(3))
	require.NoError(t, storage.Close())

	storage, err = NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Open())
	t.Cleanup(func() { storage.Close() })

	state, err := storage.Load()
	require.NoError(t, err)
	assert.Equal(t, uint64(7), state.Term)
	assert.Equal(t, uint64(3), state.VotedFor)
}

func TestStorageAppendAndLoad(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Open())

	require.NoError(t, storage.Append([]*LogEntry{
		NewLogEntry(1, 1, EntryCommand, []byte("one")),
		NewLogEntry(2, 1, EntryCommand, []byte("two")),
	}))
	require.NoError(t, storage.Append([]*LogEntry{
		NewLogEntry(3, 2, EntryCommand, []byte("three")),
	}))
	require.NoError(t, storage.Close())

	storage, err = NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Open())
	t.Cleanup(func() { storage.Close() })

	state, err := storage.Load()
	require.NoError(t, err)
	require.Equal(t, 3, len(state.Entries))
	validateEntry(t, state.Entries[0], 1, 1, []byte("one"))
	validateEntry(t, state.Entries[1], 2, 1, []byte("two"))
	validateEntry(t, state.Entries[2], 3, 2, []byte("three"))

	// Entries loaded from the same record share one backing buffer.
	assert.NotNil(t, state.Entries[0].batch)
	assert.Same(t, state.Entries[0].batch, state.Entries[1].batch)
	assert.NotSame(t, state.Entries[0].batch, state.Entries[2].batch)
}

func TestStorageAppendOverwritesSuffix(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Open())

	require.NoError(t, storage.Append([]*LogEntry{
		NewLogEntry(1, 1, EntryCommand, []byte("one")),
		NewLogEntry(2, 1, EntryCommand, []byte("two")),
		NewLogEntry(3, 1, EntryCommand, []byte("three")),
	}))

	// Appending at an existing index discards that index and everything
	// after it, even when the index lies inside an earlier record.
	require.NoError(t, storage.Append([]*LogEntry{
		NewLogEntry(2, 2, EntryCommand, []byte("two-prime")),
	}))

	state, err := storage.Load()
	require.NoError(t, err)
	require.Equal(t, 2, len(state.Entries))
	validateEntry(t, state.Entries[0], 1, 1, []byte("one"))
	validateEntry(t, state.Entries[1], 2, 2, []byte("two-prime"))

	// The overwrite survives a reopen.
	require.NoError(t, storage.Close())
	storage, err = NewStorage(dir)
	require.NoError(t, err)
	require.NoError(t, storage.Open())
	t.Cleanup(func() { storage.Close() })

	state, err = storage.Load()
	require.NoError(t, err)
	require.Equal(t, 2, len(state.Entries))
	validateEntry(t, state.Entries[1], 2, 2, []byte("two-prime"))
}

func TestStorageAppendRejectsGap(t *testing.T) {
	storage := newTestStorage(t)

	require.NoError(t, storage.Append([]*LogEntry{
		NewLogEntry(1, 1, EntryCommand, []byte("one")),
	}))
	err := storage.Append([]*LogEntry{
		NewLogEntry(5, 1, EntryCommand, []byte("five")),
	})
	assert.Error(t, err)
}
