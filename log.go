package raft

import (
	"fmt"
)

// Log is the in-memory replicated log of the engine. Entries are addressed
// by absolute index even after a prefix has been compacted away by a
// snapshot. The log does not perform I/O: durability is the responsibility
// of the I/O collaborator, which persists entries before the engine
// acknowledges them to the leader.
type Log struct {
	// The entries of the log. entries[0], if present, has index firstIndex.
	entries []*LogEntry

	// The index of the first entry in the log. Always snapshotIndex + 1.
	firstIndex uint64

	// The index and term of the last entry compacted into a snapshot.
	// Zero if no snapshot has been taken.
	snapshotIndex uint64
	snapshotTerm  uint64
}

// NewLog creates a new empty log whose first entry will have index 1.
func NewLog() *Log {
	return &Log{firstIndex: 1}
}

// Size returns the number of entries currently in the log.
func (l *Log) Size() int {
	return len(l.entries)
}

// FirstIndex returns the index of the first entry in the log. Entries below
// this index have been compacted into a snapshot.
func (l *Log) FirstIndex() uint64 {
	return l.firstIndex
}

// LastIndex returns the index of the last entry in the log, or the last
// index included in the snapshot if the log is empty.
func (l *Log) LastIndex() uint64 {
	if len(l.entries) == 0 {
		return l.snapshotIndex
	}
	return l.entries[len(l.entries)-1].Index
}

// LastTerm returns the term of the last entry in the log, or the last term
// included in the snapshot if the log is empty.
func (l *Log) LastTerm() uint64 {
	if len(l.entries) == 0 {
		return l.snapshotTerm
	}
	return l.entries[len(l.entries)-1].Term
}

// SnapshotIndex returns the last index compacted into a snapshot, or zero.
func (l *Log) SnapshotIndex() uint64 {
	return l.snapshotIndex
}

// SnapshotTerm returns the term of the last entry compacted into a
// snapshot, or zero.
func (l *Log) SnapshotTerm() uint64 {
	return l.snapshotTerm
}

// Contains checks whether the log currently holds an entry at the provided
// index.
func (l *Log) Contains(index uint64) bool {
	return l.firstIndex <= index && index <= l.LastIndex() && len(l.entries) != 0
}

// GetEntry returns the entry at the provided index. ErrCompacted is
// returned for indices below the first index and ErrOutOfRange for indices
// past the last index.
func (l *Log) GetEntry(index uint64) (*LogEntry, error) {
	if index < l.firstIndex {
		return nil, fmt.Errorf("could not get entry at index %d: %w", index, ErrCompacted)
	}
	if index > l.LastIndex() {
		return nil, fmt.Errorf("could not get entry at index %d: %w", index, ErrOutOfRange)
	}
	return l.entries[index-l.firstIndex], nil
}

// TermOf returns the term of the entry at the provided index. For the last
// index included in a snapshot the term is served from the snapshot
// metadata. ErrCompacted is returned for lower indices, telling the caller
// to fall back to the snapshot, and ErrOutOfRange for indices past the end
// of the log. An index of zero has term zero by convention.
func (l *Log) TermOf(index uint64) (uint64, error) {
	if index == 0 {
		return 0, nil
	}
	if index == l.snapshotIndex {
		return l.snapshotTerm, nil
	}
	entry, err := l.GetEntry(index)
	if err != nil {
		return 0, err
	}
	return entry.Term, nil
}

// AppendEntry creates an entry with the provided term, type and payload at
// the next index of the log and appends it.
func (l *Log) AppendEntry(term uint64, entryType EntryType, data []byte) *LogEntry {
	entry := NewLogEntry(l.LastIndex()+1, term, entryType, data)
	l.entries = append(l.entries, entry)
	return entry
}

// AppendEntries appends the provided entries to the log. The entries must
// continue the log: the first entry must have index LastIndex()+1 and the
// rest must follow contiguously.
func (l *Log) AppendEntries(entries ...*LogEntry) error {
	next := l.LastIndex() + 1
	for _, entry := range entries {
		if entry.Index != next {
			return fmt.Errorf("could not append entry with index %d: expected index %d: %w",
				entry.Index, next, ErrInternal)
		}
		next++
	}
	l.entries = append(l.entries, entries...)
	return nil
}

// TruncateSuffix removes all entries at and after the provided index,
// releasing their payload buffers. A batch buffer shared by several entries
// is freed only once all of its entries have been released.
func (l *Log) TruncateSuffix(from uint64) error {
	if from < l.firstIndex {
		return fmt.Errorf("could not truncate suffix from index %d: %w", from, ErrCompacted)
	}
	if from > l.LastIndex() {
		return fmt.Errorf("could not truncate suffix from index %d: %w", from, ErrOutOfRange)
	}

	for i := from - l.firstIndex; i < uint64(len(l.entries)); i++ {
		l.entries[i].release()
	}
	l.entries = l.entries[:from-l.firstIndex]

	return nil
}

// Reset discards the entire log after a snapshot with the provided last
// included index and term has been installed, releasing every entry.
func (l *Log) Reset(snapshotIndex uint64, snapshotTerm uint64) {
	for _, entry := range l.entries {
		entry.release()
	}
	l.entries = nil
	l.firstIndex = snapshotIndex + 1
	l.snapshotIndex = snapshotIndex
	l.snapshotTerm = snapshotTerm
}

// TruncatePrefix removes all entries up to and including the provided
// index after a snapshot has been taken at that index with the provided
// term. Entries are released as in TruncateSuffix.
func (l *Log) TruncatePrefix(upTo uint64, term uint64) error {
	if upTo < l.firstIndex {
		return fmt.Errorf("could not truncate prefix up to index %d: %w", upTo, ErrCompacted)
	}
	if upTo > l.LastIndex() {
		return fmt.Errorf("could not truncate prefix up to index %d: %w", upTo, ErrOutOfRange)
	}

	remaining := upTo + 1 - l.firstIndex
	for i := uint64(0); i < remaining; i++ {
		l.entries[i].release()
	}
	l.entries = append([]*LogEntry(nil), l.entries[remaining:]...)
	l.firstIndex = upTo + 1
	l.snapshotIndex = upTo
	l.snapshotTerm = term

	return nil
}
