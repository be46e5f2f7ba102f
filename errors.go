package raft

import (
	"errors"
	"fmt"
)

// ErrorCode is the stable numeric identifier associated with an error
// returned by this package. The codes are part of the public API and
// will not change between releases.
type ErrorCode int

const (
	// CodeOK indicates that no error occurred.
	CodeOK ErrorCode = iota

	// CodeShutdown indicates that the engine has detected corrupted state
	// and has entered the unavailable state. Only a process restart with
	// repaired storage recovers from this condition.
	CodeShutdown

	// CodeIOErr indicates that a persistence or network operation failed.
	CodeIOErr

	// CodeNotLeader indicates that the operation requires leadership and
	// this server is not the leader.
	CodeNotLeader

	// CodeLeadershipLost indicates that leadership was lost before the
	// operation could complete.
	CodeLeadershipLost

	// CodeDuplicateID indicates that a server with the provided ID is
	// already a member of the configuration.
	CodeDuplicateID

	// CodeUnknownID indicates that no server with the provided ID is a
	// member of the configuration.
	CodeUnknownID

	// CodeBadState indicates that the operation is not valid in the
	// current state.
	CodeBadState

	// CodeConfigBusy indicates that a configuration change is already
	// in progress.
	CodeConfigBusy

	// CodeInternal indicates a violated internal invariant.
	CodeInternal
)

var (
	// ErrShutdown is returned by every operation after the engine has
	// detected corrupted state and become unavailable.
	ErrShutdown = errors.New("raft: engine has shut down due to corrupted state")

	// ErrIO is returned when a persistence or network operation fails.
	ErrIO = errors.New("raft: i/o failure")

	// ErrNotLeader is returned when an operation that requires leadership
	// is submitted to a server that is not the leader.
	ErrNotLeader = errors.New("raft: this server is not the leader")

	// ErrLeadershipLost is returned when leadership is lost while an
	// operation is in progress.
	ErrLeadershipLost = errors.New("raft: leadership was lost")

	// ErrDuplicateID is returned when adding a server whose ID is already
	// part of the configuration.
	ErrDuplicateID = errors.New("raft: a server with this ID already exists")

	// ErrUnknownID is returned when referencing a server that is not part
	// of the configuration.
	ErrUnknownID = errors.New("raft: no server with this ID exists")

	// ErrBadState is returned when an operation is invalid in the current
	// state, such as removing the last voting member.
	ErrBadState = errors.New("raft: operation is invalid in the current state")

	// ErrConfigBusy is returned when a configuration change is requested
	// while another one is still in progress.
	ErrConfigBusy = errors.New("raft: a configuration change is in progress")

	// ErrInternal indicates a violated internal invariant.
	ErrInternal = errors.New("raft: internal invariant violated")

	// ErrOutOfRange is returned when a log index past the end of the log
	// is referenced.
	ErrOutOfRange = errors.New("raft: log index is out of range")

	// ErrCompacted is returned when a log index below the first index of
	// the log is referenced. Callers should fall back to the metadata of
	// the most recent snapshot.
	ErrCompacted = errors.New("raft: log index has been compacted")
)

// wrapIO annotates a failed I/O operation and tags it with ErrIO so that
// callers can match it with errors.Is.
func wrapIO(err error, format string, args ...any) error {
	return fmt.Errorf(format+": %v: %w", append(args, err, ErrIO)...)
}

// wrapInternal reports a violated internal invariant tagged with
// ErrInternal.
func wrapInternal(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInternal)...)
}

// Code maps an error returned by this package to its stable numeric code.
// Errors that are not part of the public taxonomy map to CodeInternal and
// a nil error maps to CodeOK.
func Code(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrShutdown):
		return CodeShutdown
	case errors.Is(err, ErrIO):
		return CodeIOErr
	case errors.Is(err, ErrNotLeader):
		return CodeNotLeader
	case errors.Is(err, ErrLeadershipLost):
		return CodeLeadershipLost
	case errors.Is(err, ErrDuplicateID):
		return CodeDuplicateID
	case errors.Is(err, ErrUnknownID):
		return CodeUnknownID
	case errors.Is(err, ErrBadState):
		return CodeBadState
	case errors.Is(err, ErrConfigBusy):
		return CodeConfigBusy
	default:
		return CodeInternal
	}
}
