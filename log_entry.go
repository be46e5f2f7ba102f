package raft

import (
	"encoding/binary"
	"fmt"
)

// EntryType is the type of a log entry.
type EntryType uint8

const (
	// EntryCommand is a log entry containing a client command. An entry
	// with an empty payload is a no-op appended by a new leader.
	EntryCommand EntryType = iota

	// EntryConfiguration is a log entry containing an encoded cluster
	// configuration.
	EntryConfiguration
)

// String provides a string representation of the entry type.
func (t EntryType) String() string {
	switch t {
	case EntryCommand:
		return "command"
	case EntryConfiguration:
		return "configuration"
	default:
		panic("invalid entry type")
	}
}

// The fixed size of a per-entry header in an encoded batch: the term,
// the entry type, three reserved bytes, and the payload length.
const batchHeaderSize = 8 + 1 + 3 + 4

// entryBatch is a reference-counted backing buffer shared by multiple log
// entries. The buffer is released only once every entry referencing it has
// been released.
type entryBatch struct {
	buf  []byte
	refs int
}

func (b *entryBatch) retain() {
	b.refs++
}

func (b *entryBatch) release() {
	b.refs--
	if b.refs == 0 {
		b.buf = nil
	}
}

// LogEntry is an entry in the replicated log.
type LogEntry struct {
	// The index of the entry. Indices are one-based and strictly
	// increasing by one.
	Index uint64

	// The term in which the entry was created.
	Term uint64

	// The type of the entry: command or configuration.
	EntryType EntryType

	// The payload of the entry. May be a slice into a shared batch buffer.
	Data []byte

	// The batch that owns the payload, if any.
	batch *entryBatch
}

// NewLogEntry creates a new log entry with the provided index, term, type
// and payload. The entry exclusively owns its payload.
func NewLogEntry(index uint64, term uint64, entryType EntryType, data []byte) *LogEntry {
	return &LogEntry{Index: index, Term: term, EntryType: entryType, Data: data}
}

// IsConflict checks whether this entry conflicts with another entry: two
// entries conflict if they have the same index but different terms.
func (e *LogEntry) IsConflict(other *LogEntry) bool {
	return e.Index == other.Index && e.Term != other.Term
}

// release drops this entry's reference to its backing batch, if it has one.
func (e *LogEntry) release() {
	if e.batch != nil {
		e.batch.release()
		e.batch = nil
	}
	e.Data = nil
}

// encodeBatch encodes the provided entries into a single buffer: the entry
// count, then the fixed-size per-entry headers, then the payload blobs. All
// integers are little-endian. Entry indices are not encoded: a batch always
// holds a contiguous run of entries and the receiver assigns indices from
// its own log.
func encodeBatch(entries []*LogEntry) []byte {
	size := 8 + len(entries)*batchHeaderSize
	for _, entry := range entries {
		size += len(entry.Data)
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint64(buf, uint64(len(entries)))

	header := buf[8:]
	payload := buf[8+len(entries)*batchHeaderSize:]
	for _, entry := range entries {
		binary.LittleEndian.PutUint64(header, entry.Term)
		header[8] = byte(entry.EntryType)
		binary.LittleEndian.PutUint32(header[12:], uint32(len(entry.Data)))
		header = header[batchHeaderSize:]

		copy(payload, entry.Data)
		payload = payload[len(entry.Data):]
	}

	return buf
}

// decodeBatch decodes a batch buffer into entries whose payloads are slices
// into the buffer. The returned entries share ownership of the buffer: each
// holds one reference to it. Entry indices are left zero for the caller to
// assign.
func decodeBatch(buf []byte) ([]*LogEntry, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("could not decode batch: buffer of %d bytes is too short", len(buf))
	}
	n := binary.LittleEndian.Uint64(buf)

	headerEnd := 8 + int(n)*batchHeaderSize
	if len(buf) < headerEnd {
		return nil, fmt.Errorf("could not decode batch: %d entry headers do not fit in %d bytes", n, len(buf))
	}

	batch := &entryBatch{buf: buf}
	entries := make([]*LogEntry, n)
	offset := headerEnd
	for i := range entries {
		header := buf[8+i*batchHeaderSize:]
		term := binary.LittleEndian.Uint64(header)
		entryType := EntryType(header[8])
		length := int(binary.LittleEndian.Uint32(header[12:]))

		if entryType != EntryCommand && entryType != EntryConfiguration {
			return nil, fmt.Errorf("could not decode batch: unknown entry type %d", entryType)
		}
		if offset+length > len(buf) {
			return nil, fmt.Errorf("could not decode batch: entry payload of %d bytes exceeds buffer", length)
		}

		entries[i] = &LogEntry{
			Term:      term,
			EntryType: entryType,
			Data:      buf[offset : offset+length],
			batch:     batch,
		}
		batch.retain()
		offset += length
	}

	return entries, nil
}
