package raft

import (
	"fmt"
)

// SnapshotRestorer is implemented by state machines that support being
// restored from a snapshot received from the leader. A state machine that
// does not implement it cannot follow a leader that has compacted away
// entries the state machine still needs.
type SnapshotRestorer interface {
	// Restore replaces the state of the state machine with the state
	// captured in the provided snapshot data.
	Restore(data []byte) error
}

// sendInstallSnapshot sends the metadata of the leader's latest snapshot
// to a peer whose next entry has been compacted away. Replication to the
// peer pauses until the installation is acknowledged.
func (r *Raft) sendInstallSnapshot(server Server, p *progress) {
	index := r.log.SnapshotIndex()
	if index == 0 {
		r.logger.Errorf("server %d has compacted entries for server %d but no snapshot", r.id, server.ID)
		return
	}
	if p.state == progressSnapshot {
		return
	}
	p.toSnapshot(index)

	r.logger.Infof("server %d sending snapshot to server %d: lastIncludedIndex = %d", r.id, server.ID, index)
	r.send(&Message{
		Type:      MessageInstallSnapshot,
		To:        server.ID,
		ToAddress: server.Address,
		InstallSnapshot: &InstallSnapshotRequest{
			LeaderID:          r.id,
			Term:              r.currentTerm,
			LastIncludedIndex: index,
			LastIncludedTerm:  r.log.SnapshotTerm(),
			Configuration:     encodeConfiguration(r.committedConfiguration),
		},
	})
}

// handleInstallSnapshot handles a snapshot sent by the leader: the log is
// reset to the snapshot's last included index and term, the configuration
// carried by the snapshot becomes the committed configuration, and the
// state machine is restored if it supports restoration.
func (r *Raft) handleInstallSnapshot(message *Message) error {
	request := message.InstallSnapshot
	r.logger.Debugf("server %d received InstallSnapshot RPC: leaderID = %d, term = %d, lastIncludedIndex = %d, lastIncludedTerm = %d",
		r.id, request.LeaderID, request.Term, request.LastIncludedIndex, request.LastIncludedTerm)

	response := &InstallSnapshotResponse{Term: r.currentTerm}
	reply := func() {
		r.send(&Message{
			Type:                    MessageInstallSnapshotResponse,
			To:                      message.From,
			ToAddress:               message.FromAddress,
			InstallSnapshotResponse: response,
		})
	}

	if request.Term < r.currentTerm {
		reply()
		return nil
	}
	if request.Term > r.currentTerm || r.role != Follower {
		if err := r.becomeFollower(request.Term); err != nil {
			return err
		}
		response.Term = r.currentTerm
	}
	r.follower.currentLeaderID = request.LeaderID
	r.resetElectionTimer()

	// A snapshot that does not extend past the commit index adds nothing.
	if request.LastIncludedIndex <= r.commitIndex {
		reply()
		return nil
	}

	configuration, err := decodeConfiguration(request.Configuration)
	if err != nil {
		return r.shutdown(fmt.Sprintf("corrupt configuration in snapshot at index %d: %s",
			request.LastIncludedIndex, err.Error()))
	}

	if restorer, ok := r.fsm.(SnapshotRestorer); ok {
		if err := restorer.Restore(request.Data); err != nil {
			return r.shutdown(fmt.Sprintf("state machine could not restore snapshot at index %d: %s",
				request.LastIncludedIndex, err.Error()))
		}
	}

	r.log.Reset(request.LastIncludedIndex, request.LastIncludedTerm)
	r.configuration = configuration
	r.committedConfiguration = configuration.Clone()
	r.uncommittedConfigurationIndex = 0
	r.commitIndex = request.LastIncludedIndex
	r.lastApplied = request.LastIncludedIndex
	r.watcher.Committed(r.commitIndex)

	r.logger.Infof("server %d installed snapshot: lastIncludedIndex = %d, lastIncludedTerm = %d",
		r.id, request.LastIncludedIndex, request.LastIncludedTerm)
	reply()
	return nil
}

// handleInstallSnapshotResult handles a peer's acknowledgement of a
// snapshot installation: the peer's progress resumes probing right after
// the snapshot.
func (r *Raft) handleInstallSnapshotResult(message *Message) error {
	response := message.InstallSnapshotResponse

	if response.Term > r.currentTerm {
		return r.becomeFollower(response.Term)
	}
	if r.role != Leader || response.Term < r.currentTerm {
		return nil
	}

	p := r.leader.progress[message.From]
	if p == nil || p.state != progressSnapshot {
		return nil
	}

	p.matchIndex = p.pendingSnapshot
	p.nextIndex = p.pendingSnapshot + 1
	p.toProbe()

	server := r.configuration.Get(message.From)
	if server != nil {
		r.sendAppendEntries(*server, false)
	}
	return nil
}
