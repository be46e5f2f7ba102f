package raft

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/protobuf/proto"
	"github.com/replicore/raft/internal/errors"
	pb "github.com/replicore/raft/internal/protobuf"
)

// Storage persists the durable state of the engine: the current term, the
// vote, and the log entries. It backs the synchronous and append halves of
// the IO interface.
type Storage interface {
	// Open prepares the storage for use, recovering any persisted state.
	Open() error

	// Close releases the resources held by the storage.
	Close() error

	// Bootstrap persists an initial configuration entry at index 1 along
	// with a term of one. It fails if any state has been persisted.
	Bootstrap(configuration *Configuration) error

	// Load returns the persisted state. The caller takes ownership of the
	// returned entries.
	Load() (*InitialState, error)

	// SetTerm durably records the term before returning.
	SetTerm(term uint64) error

	// SetVote durably records the vote before returning.
	SetVote(serverID uint64) error

	// Append durably appends entries to the log, syncing them to stable
	// storage before returning. Entries whose indices overlap the
	// persisted log overwrite it: the persisted suffix starting at the
	// first overlapping index is discarded.
	Append(entries []*LogEntry) error
}

// logRecord tracks a batch of entries persisted as a single record in the
// log file.
type logRecord struct {
	// The file offset the record starts at.
	offset int64

	// The index of the first entry in the record.
	firstIndex uint64
}

// persistentStorage is a file-backed implementation of the Storage
// interface. Term and vote are written to a state file with an atomic
// rename; entries are appended to a log file as length-prefixed batch
// records. This implementation is not concurrent safe: the default I/O
// collaborator serializes access to it.
type persistentStorage struct {
	// The directory where all files are kept.
	dir string

	// The open log file, nil when the storage is closed.
	logFile *os.File

	// The persisted records of the log file, in file order.
	records []logRecord

	// Private copies of the persisted entries, kept for append and
	// truncation bookkeeping.
	entries []*LogEntry

	// The index of the first persisted entry.
	startIndex uint64

	// The most recently persisted term and vote.
	term     uint64
	votedFor uint64
}

// NewStorage creates a file-backed storage rooted at the provided
// directory. The directory is created if it does not exist.
func NewStorage(dir string) (Storage, error) {
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return nil, errors.WrapError(err, "failed to create storage directory %s", dir)
	}
	return &persistentStorage{dir: dir, startIndex: 1}, nil
}

func (p *persistentStorage) statePath() string {
	return filepath.Join(p.dir, "state.bin")
}

func (p *persistentStorage) logPath() string {
	return filepath.Join(p.dir, "log.bin")
}

func (p *persistentStorage) Open() error {
	if p.logFile != nil {
		return errors.New("storage is already open")
	}

	if err := p.readState(); err != nil {
		return err
	}

	logFile, err := os.OpenFile(p.logPath(), os.O_CREATE|os.O_RDWR, 0666)
	if err != nil {
		return errors.WrapError(err, "failed to open log file")
	}
	p.logFile = logFile

	return p.readLog()
}

func (p *persistentStorage) Close() error {
	if p.logFile == nil {
		return nil
	}
	if err := p.logFile.Close(); err != nil {
		return errors.WrapError(err, "failed to close log file")
	}
	p.logFile = nil
	p.records = nil
	p.entries = nil
	p.startIndex = 1
	return nil
}

func (p *persistentStorage) Bootstrap(configuration *Configuration) error {
	if p.logFile == nil {
		return errors.New("storage is not open")
	}
	if p.term != 0 || len(p.entries) != 0 {
		return errors.New("storage has already been bootstrapped")
	}

	entry := NewLogEntry(1, 1, EntryConfiguration, encodeConfiguration(configuration))
	if err := p.Append([]*LogEntry{entry}); err != nil {
		return err
	}
	return p.SetTerm(1)
}

// Load re-reads the log file and returns freshly decoded entries: each
// record becomes one shared batch buffer that the returned entries slice
// into, and the caller takes ownership of them.
func (p *persistentStorage) Load() (*InitialState, error) {
	if p.logFile == nil {
		return nil, errors.New("storage is not open")
	}

	data, err := os.ReadFile(p.logPath())
	if err != nil {
		return nil, errors.WrapError(err, "failed to read log file")
	}

	var entries []*LogEntry
	startIndex := uint64(1)
	err = scanLog(data, func(offset int64, firstIndex uint64, batch []*LogEntry) {
		if len(entries) == 0 {
			startIndex = firstIndex
		} else if n := firstIndex - startIndex; n < uint64(len(entries)) {
			releaseEntries(entries[n:])
			entries = entries[:n]
		}
		entries = append(entries, batch...)
	})
	if err != nil {
		return nil, err
	}

	return &InitialState{
		Term:       p.term,
		VotedFor:   p.votedFor,
		StartIndex: startIndex,
		Entries:    entries,
	}, nil
}

func (p *persistentStorage) SetTerm(term uint64) error {
	p.term = term
	return p.writeState()
}

func (p *persistentStorage) SetVote(serverID uint64) error {
	p.votedFor = serverID
	return p.writeState()
}

func (p *persistentStorage) Append(entries []*LogEntry) error {
	if p.logFile == nil {
		return errors.New("storage is not open")
	}
	if len(entries) == 0 {
		return nil
	}

	if err := p.truncateConflicting(entries[0].Index); err != nil {
		return err
	}

	lastIndex := p.startIndex - 1
	if len(p.entries) > 0 {
		lastIndex = p.startIndex + uint64(len(p.entries)) - 1
	}
	if entries[0].Index != lastIndex+1 {
		return errors.New(fmt.Sprintf("appended entries start at index %d, expected %d",
			entries[0].Index, lastIndex+1))
	}

	offset, err := p.logFile.Seek(0, io.SeekEnd)
	if err != nil {
		return errors.WrapError(err, "failed to append to log file")
	}

	batch := encodeBatch(entries)
	record := make([]byte, 0, 4+8+len(batch))
	record = binary.LittleEndian.AppendUint32(record, uint32(8+len(batch)))
	record = binary.LittleEndian.AppendUint64(record, entries[0].Index)
	record = append(record, batch...)

	if _, err := p.logFile.Write(record); err != nil {
		return errors.WrapError(err, "failed to append to log file")
	}
	if err := p.logFile.Sync(); err != nil {
		return errors.WrapError(err, "failed to sync log file")
	}

	p.records = append(p.records, logRecord{offset: offset, firstIndex: entries[0].Index})
	for _, entry := range entries {
		p.entries = append(p.entries,
			NewLogEntry(entry.Index, entry.Term, entry.EntryType, append([]byte(nil), entry.Data...)))
	}

	return nil
}

// truncateConflicting discards the persisted suffix starting at the
// provided index, if any. When the index falls inside a record, the file
// is truncated at the record boundary and the surviving prefix of the
// record is re-appended.
func (p *persistentStorage) truncateConflicting(index uint64) error {
	if len(p.entries) == 0 || index > p.startIndex+uint64(len(p.entries))-1 {
		return nil
	}
	if index < p.startIndex {
		return errors.New(fmt.Sprintf("cannot truncate compacted index %d", index))
	}

	// Find the record containing the index.
	i := len(p.records) - 1
	for ; i >= 0; i-- {
		if p.records[i].firstIndex <= index {
			break
		}
	}
	record := p.records[i]

	surviving := append([]*LogEntry(nil), p.entries[record.firstIndex-p.startIndex:index-p.startIndex]...)
	p.entries = p.entries[:record.firstIndex-p.startIndex]
	p.records = p.records[:i]

	if err := p.logFile.Truncate(record.offset); err != nil {
		return errors.WrapError(err, "failed to truncate log file")
	}
	if _, err := p.logFile.Seek(0, io.SeekEnd); err != nil {
		return errors.WrapError(err, "failed to truncate log file")
	}

	if len(surviving) == 0 {
		return nil
	}
	return p.Append(surviving)
}

func (p *persistentStorage) readState() error {
	data, err := os.ReadFile(p.statePath())
	if os.IsNotExist(err) {
		p.term = 0
		p.votedFor = 0
		return nil
	}
	if err != nil {
		return errors.WrapError(err, "failed to read state file")
	}

	state := &pb.StorageState{}
	if err := proto.Unmarshal(data, state); err != nil {
		return errors.WrapError(err, "failed to decode state file")
	}
	p.term = state.GetTerm()
	p.votedFor = state.GetVotedFor()
	return nil
}

func (p *persistentStorage) writeState() error {
	data, err := proto.Marshal(&pb.StorageState{Term: p.term, VotedFor: p.votedFor})
	if err != nil {
		return errors.WrapError(err, "failed to encode state")
	}

	tmpFile, err := os.CreateTemp(p.dir, "tmp-")
	if err != nil {
		return errors.WrapError(err, "failed to write state")
	}
	if _, err := tmpFile.Write(data); err != nil {
		return errors.WrapError(err, "failed to write state")
	}
	if err := tmpFile.Sync(); err != nil {
		return errors.WrapError(err, "failed to write state")
	}
	if err := tmpFile.Close(); err != nil {
		return errors.WrapError(err, "failed to write state")
	}
	if err := os.Rename(tmpFile.Name(), p.statePath()); err != nil {
		return errors.WrapError(err, "failed to write state")
	}

	return nil
}

// readLog rebuilds the record table and the private entry copies from the
// log file.
func (p *persistentStorage) readLog() error {
	data, err := os.ReadFile(p.logPath())
	if err != nil {
		return errors.WrapError(err, "failed to read log file")
	}

	p.records = nil
	p.entries = nil
	p.startIndex = 1

	return scanLog(data, func(offset int64, firstIndex uint64, batch []*LogEntry) {
		if len(p.entries) == 0 {
			p.startIndex = firstIndex
		} else if n := firstIndex - p.startIndex; n < uint64(len(p.entries)) {
			p.entries = p.entries[:n]
		}
		for _, entry := range batch {
			p.entries = append(p.entries,
				NewLogEntry(entry.Index, entry.Term, entry.EntryType, append([]byte(nil), entry.Data...)))
			entry.release()
		}
		p.records = append(p.records, logRecord{offset: offset, firstIndex: firstIndex})
	})
}

// scanLog walks the records of a log file, decoding each record's batch
// and assigning entry indices from the record's first index.
func scanLog(data []byte, visit func(offset int64, firstIndex uint64, batch []*LogEntry)) error {
	reader := bytes.NewReader(data)
	offset := int64(0)
	for {
		header := make([]byte, 4+8)
		if _, err := io.ReadFull(reader, header); err == io.EOF {
			return nil
		} else if err != nil {
			return errors.WrapError(err, "failed to decode log file")
		}
		length := binary.LittleEndian.Uint32(header)
		firstIndex := binary.LittleEndian.Uint64(header[4:])

		body := make([]byte, length-8)
		if _, err := io.ReadFull(reader, body); err != nil {
			return errors.WrapError(err, "failed to decode log file")
		}

		batch, err := decodeBatch(body)
		if err != nil {
			return errors.WrapError(err, "failed to decode log file")
		}
		for i, entry := range batch {
			entry.Index = firstIndex + uint64(i)
		}

		visit(offset, firstIndex, batch)
		offset += int64(4 + length)
	}
}
