package raft

import (
	"fmt"

	"github.com/replicore/raft/internal/util"
)

// progressState is the replication mode of a single peer.
type progressState uint8

const (
	// progressProbe sends at most one outstanding AppendEntries request
	// at a time, probing for the point where the peer's log matches the
	// leader's.
	progressProbe progressState = iota

	// progressPipeline optimistically streams entries without waiting for
	// each reply. Entered once a probe has succeeded.
	progressPipeline

	// progressSnapshot pauses replication while the peer installs a
	// snapshot of entries the leader has already compacted away.
	progressSnapshot
)

// String provides a string representation of the progress state.
func (s progressState) String() string {
	switch s {
	case progressProbe:
		return "probe"
	case progressPipeline:
		return "pipeline"
	case progressSnapshot:
		return "snapshot"
	default:
		panic("invalid progress state")
	}
}

// progress is the leader's belief about the replication state of a single
// peer.
type progress struct {
	// The index of the next entry to send to the peer. At least one.
	nextIndex uint64

	// The index of the highest entry known to be replicated on the peer.
	// Always less than nextIndex.
	matchIndex uint64

	// The replication mode.
	state progressState

	// Whether an AppendEntries request is outstanding. Only meaningful in
	// the probe state, where it limits the pipeline to a single request
	// and detects out-of-order replies.
	inFlight bool

	// The highest log position covered by the most recent request:
	// prevLogIndex plus the number of entries sent. A successful reply
	// confirms the peer's log matches the leader's up to this point.
	lastSent uint64

	// The last included index of the snapshot being installed. Only
	// meaningful in the snapshot state.
	pendingSnapshot uint64
}

func newProgress(nextIndex uint64) *progress {
	return &progress{nextIndex: nextIndex, state: progressProbe}
}

// toProbe demotes the peer to the probe state, backing the pipeline off to
// one request at a time.
func (p *progress) toProbe() {
	p.state = progressProbe
	p.inFlight = false
	p.pendingSnapshot = 0
	p.nextIndex = util.Max(p.matchIndex+1, 1)
}

// toPipeline promotes the peer to the pipeline state after a successful
// probe.
func (p *progress) toPipeline() {
	p.state = progressPipeline
	p.inFlight = false
}

// toSnapshot pauses replication while the peer installs the snapshot with
// the provided last included index.
func (p *progress) toSnapshot(index uint64) {
	p.state = progressSnapshot
	p.inFlight = false
	p.pendingSnapshot = index
}

// leaderAppend appends an entry with the provided type and payload to the
// leader's own log in the current term and hands it to the I/O
// collaborator for persistence.
func (r *Raft) leaderAppend(entryType EntryType, data []byte) error {
	entry := r.log.AppendEntry(r.currentTerm, entryType, data)
	term := r.currentTerm

	attempts := 0
	var done func(err error)
	done = func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if err != nil && attempts == 0 {
			attempts++
			r.logger.Errorf("server %d retrying append of entry %d: %s", r.id, entry.Index, err.Error())
			if err := r.io.Append([]*LogEntry{entry}, done); err == nil {
				return
			}
		}
		if err != nil {
			// A leader that cannot persist its own log cannot safely
			// count itself towards commitment.
			r.shutdown(fmt.Sprintf("could not persist entry %d: %s", entry.Index, err.Error()))
			return
		}
		if r.role != Leader || r.currentTerm != term {
			return
		}
		r.updateCommitIndex()
	}

	if err := r.io.Append([]*LogEntry{entry}, done); err != nil {
		return wrapIO(err, "could not append entry %d", entry.Index)
	}
	return nil
}

// triggerReplication sends an AppendEntries request to every other member
// of the configuration, subject to each peer's send policy.
func (r *Raft) triggerReplication() {
	r.broadcastAppendEntries(false)
}

// heartbeat sends an AppendEntries request to every other member of the
// configuration regardless of send policy. Empty requests reset the
// followers' election timers and carry the leader's commit index.
func (r *Raft) heartbeat() {
	r.broadcastAppendEntries(true)
}

func (r *Raft) broadcastAppendEntries(heartbeat bool) {
	for _, server := range r.configuration.Servers {
		if server.ID == r.id {
			continue
		}
		r.sendAppendEntries(server, heartbeat)
	}
}

// sendAppendEntries sends a single AppendEntries request to the provided
// server. In the probe state at most one entry-carrying request may be
// outstanding; a heartbeat is still sent, but empty. In the pipeline
// state the next index advances optimistically past the entries sent.
func (r *Raft) sendAppendEntries(server Server, heartbeat bool) {
	if r.role != Leader {
		return
	}
	p := r.leader.progress[server.ID]
	if p == nil {
		return
	}
	if p.state == progressSnapshot {
		return
	}
	if p.state == progressProbe && p.inFlight && !heartbeat {
		return
	}

	// Entries below the first index have been compacted away and can only
	// be replicated by sending a snapshot.
	if p.nextIndex < r.log.FirstIndex() {
		r.sendInstallSnapshot(server, p)
		return
	}

	prevLogIndex := p.nextIndex - 1
	prevLogTerm, err := r.log.TermOf(prevLogIndex)
	if err != nil {
		r.sendInstallSnapshot(server, p)
		return
	}

	var entries []*LogEntry
	if !(p.state == progressProbe && p.inFlight) {
		last := util.Min(r.log.LastIndex(), p.nextIndex+uint64(r.options.maxEntriesPerRPC)-1)
		for index := p.nextIndex; index <= last; index++ {
			entry, err := r.log.GetEntry(index)
			if err != nil {
				r.logger.Errorf("server %d could not get entry %d for replication: %s", r.id, index, err.Error())
				return
			}
			entries = append(entries, entry)
		}
	}

	if !(p.state == progressProbe && p.inFlight) {
		p.lastSent = prevLogIndex + uint64(len(entries))
		if p.state == progressProbe {
			p.inFlight = true
		}
		if p.state == progressPipeline {
			p.nextIndex = prevLogIndex + uint64(len(entries)) + 1
		}
	}

	r.logger.Debugf("server %d sending AppendEntries to server %d: prevLogIndex = %d, prevLogTerm = %d, entries = %d, leaderCommit = %d",
		r.id, server.ID, prevLogIndex, prevLogTerm, len(entries), r.commitIndex)

	r.send(&Message{
		Type:      MessageAppendEntries,
		To:        server.ID,
		ToAddress: server.Address,
		AppendEntries: &AppendEntriesRequest{
			LeaderID:     r.id,
			Term:         r.currentTerm,
			LeaderCommit: r.commitIndex,
			PrevLogIndex: prevLogIndex,
			PrevLogTerm:  prevLogTerm,
			Entries:      entries,
		},
	})
}

// handleAppendEntries handles a replication request from a leader. The
// engine takes ownership of the entries in the request: every entry is
// either retained in the log or released before this function returns,
// including on the shutdown path.
func (r *Raft) handleAppendEntries(message *Message) error {
	request := message.AppendEntries
	r.logger.Debugf("server %d received AppendEntries RPC: leaderID = %d, leaderCommit = %d, term = %d, prevLogIndex = %d, prevLogTerm = %d, entries = %d",
		r.id, request.LeaderID, request.LeaderCommit, request.Term, request.PrevLogIndex, request.PrevLogTerm, len(request.Entries))

	response := &AppendEntriesResponse{Term: r.currentTerm, Success: false, LastLogIndex: r.log.LastIndex()}
	reply := func() {
		r.send(&Message{
			Type:                  MessageAppendEntriesResponse,
			To:                    message.From,
			ToAddress:             message.FromAddress,
			AppendEntriesResponse: response,
		})
	}

	// Reject any requests with an out-of-date term.
	if request.Term < r.currentTerm {
		r.logger.Debugf("server %d rejecting AppendEntries RPC: out of date term: %d > %d",
			r.id, r.currentTerm, request.Term)
		releaseEntries(request.Entries)
		reply()
		return nil
	}

	// If the request has a more up-to-date term, or this server is a
	// candidate or leader in the same term, step down: the request proves
	// there is a current leader.
	if request.Term > r.currentTerm || r.role != Follower {
		if err := r.becomeFollower(request.Term); err != nil {
			releaseEntries(request.Entries)
			return err
		}
		response.Term = r.currentTerm
	}
	r.follower.currentLeaderID = request.LeaderID

	r.resetElectionTimer()

	// Reject the request if this server's log does not contain an entry
	// matching prevLogIndex and prevLogTerm. The reply carries the local
	// last index so that the leader can back up past entire conflicting
	// terms in one step.
	if request.PrevLogIndex > 0 {
		if r.log.LastIndex() < request.PrevLogIndex {
			r.logger.Debugf("server %d rejecting AppendEntries RPC: no entry at prevLogIndex %d: lastIndex = %d",
				r.id, request.PrevLogIndex, r.log.LastIndex())
			releaseEntries(request.Entries)
			reply()
			return nil
		}

		prevLogTerm, err := r.log.TermOf(request.PrevLogIndex)
		if err != nil {
			releaseEntries(request.Entries)
			return r.shutdown(fmt.Sprintf("log has a gap below its first index at %d: %s",
				request.PrevLogIndex, err.Error()))
		}
		if prevLogTerm != request.PrevLogTerm {
			// A mismatch at or below the commit index means a committed
			// entry conflicts with the leader's log, which violates
			// leader completeness: local state is corrupt.
			if request.PrevLogIndex <= r.commitIndex {
				releaseEntries(request.Entries)
				return r.shutdown(fmt.Sprintf("committed entry at index %d conflicts with leader %d",
					request.PrevLogIndex, request.LeaderID))
			}
			r.logger.Debugf("server %d rejecting AppendEntries RPC: conflicting entry at prevLogIndex %d: localTerm = %d, remoteTerm = %d",
				r.id, request.PrevLogIndex, prevLogTerm, request.PrevLogTerm)
			releaseEntries(request.Entries)
			reply()
			return nil
		}
	}

	response.Success = true
	lastNewIndex := request.PrevLogIndex + uint64(len(request.Entries))

	// Skip entries that are already present with the same term; at the
	// first conflict, truncate the local suffix and append everything
	// from there on.
	var toAppend []*LogEntry
	for i, entry := range request.Entries {
		entry.Index = request.PrevLogIndex + 1 + uint64(i)

		if r.log.LastIndex() < entry.Index {
			toAppend = request.Entries[i:]
			break
		}
		if entry.Index < r.log.FirstIndex() {
			entry.release()
			continue
		}

		existing, err := r.log.GetEntry(entry.Index)
		if err != nil {
			releaseEntries(request.Entries[i:])
			return err
		}
		if !existing.IsConflict(entry) {
			entry.release()
			continue
		}

		if entry.Index <= r.commitIndex {
			releaseEntries(request.Entries[i:])
			return r.shutdown(fmt.Sprintf("committed entry at index %d conflicts with leader %d",
				entry.Index, request.LeaderID))
		}

		r.logger.Infof("server %d truncating log: index = %d", r.id, entry.Index)
		if err := r.truncateSuffix(entry.Index); err != nil {
			releaseEntries(request.Entries[i:])
			return err
		}
		toAppend = request.Entries[i:]
		break
	}

	if len(toAppend) == 0 {
		response.LastLogIndex = r.log.LastIndex()
		r.updateFollowerCommit(request.LeaderCommit, lastNewIndex)
		reply()
		return nil
	}

	if err := r.log.AppendEntries(toAppend...); err != nil {
		releaseEntries(toAppend)
		return err
	}

	// Configuration entries take effect as soon as they are appended.
	for _, entry := range toAppend {
		if entry.EntryType != EntryConfiguration {
			continue
		}
		if err := r.activateConfiguration(entry); err != nil {
			return err
		}
	}

	// The reply may only be sent once the entries are durable.
	term := r.currentTerm
	leaderCommit := request.LeaderCommit
	firstNewIndex := toAppend[0].Index
	response.LastLogIndex = lastNewIndex

	attempts := 0
	var done func(err error)
	done = func(err error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if err != nil && attempts == 0 {
			attempts++
			r.logger.Errorf("server %d retrying append of entries [%d, %d]: %s",
				r.id, firstNewIndex, lastNewIndex, err.Error())
			if err := r.io.Append(toAppend, done); err == nil {
				return
			}
		}
		if err != nil {
			r.followerAppendFailed(firstNewIndex, term, err)
			return
		}
		if r.errored || r.role == Unavailable {
			return
		}
		if r.currentTerm != term {
			return
		}
		r.updateFollowerCommit(leaderCommit, lastNewIndex)
		reply()
	}

	if err := r.io.Append(toAppend, done); err != nil {
		return wrapIO(err, "could not append entries [%d, %d]", firstNewIndex, lastNewIndex)
	}
	return nil
}

// followerAppendFailed rolls back an in-memory suffix whose persistence
// failed. No reply is sent: the leader will retry the request.
func (r *Raft) followerAppendFailed(firstNewIndex uint64, term uint64, err error) {
	r.logger.Errorf("server %d could not persist entries from index %d: %s", r.id, firstNewIndex, err.Error())

	if r.errored || r.role == Unavailable || r.currentTerm != term {
		return
	}
	if r.log.LastIndex() < firstNewIndex || firstNewIndex <= r.commitIndex {
		return
	}
	if err := r.truncateSuffix(firstNewIndex); err != nil {
		r.logger.Errorf("server %d could not roll back unpersisted entries from index %d: %s",
			r.id, firstNewIndex, err.Error())
	}
}

// updateFollowerCommit advances the commit index of a follower from the
// leader's commit index, bounded by the index of the last entry known to
// match the leader's log.
func (r *Raft) updateFollowerCommit(leaderCommit uint64, lastNewIndex uint64) {
	if leaderCommit <= r.commitIndex {
		return
	}
	r.setCommitIndex(util.Min(leaderCommit, lastNewIndex))
}

// handleAppendEntriesResult handles a reply to a replication request.
// Replies from dead terms and duplicate replies detected by the in-flight
// marker are discarded.
func (r *Raft) handleAppendEntriesResult(message *Message) error {
	response := message.AppendEntriesResponse

	if response.Term > r.currentTerm {
		return r.becomeFollower(response.Term)
	}
	if r.role != Leader || response.Term < r.currentTerm {
		r.logger.Debugf("server %d ignoring stale AppendEntries result from server %d: term = %d",
			r.id, message.From, response.Term)
		return nil
	}

	p := r.leader.progress[message.From]
	if p == nil {
		return nil
	}
	if p.state == progressSnapshot {
		return nil
	}
	if p.state == progressProbe && !p.inFlight {
		// A reply with no outstanding request is a duplicate or arrived
		// out of order.
		r.logger.Debugf("server %d ignoring out-of-order AppendEntries result from server %d", r.id, message.From)
		return nil
	}
	p.inFlight = false

	if !response.Success {
		// Back up towards the follower's log, using its last index as a
		// hint to skip entire conflicting terms in one step. Never below
		// one.
		next := p.nextIndex - 1
		if next > response.LastLogIndex {
			next = response.LastLogIndex + 1
		}
		p.nextIndex = util.Max(next, 1)
		p.state = progressProbe
		r.logger.Debugf("server %d backing up server %d: nextIndex = %d", r.id, message.From, p.nextIndex)

		server := r.configuration.Get(message.From)
		if server != nil {
			r.sendAppendEntries(*server, false)
		}
		return nil
	}

	match := util.Min(p.lastSent, response.LastLogIndex)
	if match > p.matchIndex {
		p.matchIndex = match
	}
	p.nextIndex = util.Max(p.nextIndex, p.matchIndex+1)
	if p.state == progressProbe {
		p.toPipeline()
	}

	if r.leader.promoteeID == message.From {
		if err := r.checkPromotion(message.From, p); err != nil {
			return err
		}
	}

	r.updateCommitIndex()

	// Keep streaming if the peer is still behind.
	if p.nextIndex <= r.log.LastIndex() {
		server := r.configuration.Get(message.From)
		if server != nil {
			r.sendAppendEntries(*server, false)
		}
	}
	return nil
}

// updateCommitIndex advances the leader's commit index to the highest
// index replicated on a quorum of voters whose entry was created in the
// current term. Entries from prior terms are never counted directly: they
// commit transitively once an entry of the current term does.
func (r *Raft) updateCommitIndex() {
	if r.role != Leader {
		return
	}
	for index := r.log.LastIndex(); index > r.commitIndex; index-- {
		term, err := r.log.TermOf(index)
		if err != nil {
			break
		}
		if term != r.currentTerm {
			break
		}

		matches := 0
		for _, server := range r.configuration.Servers {
			if !server.Voting {
				continue
			}
			if server.ID == r.id {
				matches++
				continue
			}
			if p := r.leader.progress[server.ID]; p != nil && p.matchIndex >= index {
				matches++
			}
		}

		if matches >= r.configuration.Quorum() {
			r.setCommitIndex(index)
			r.triggerReplication()
			break
		}
	}
}

// setCommitIndex advances the commit index and applies the newly
// committed entries.
func (r *Raft) setCommitIndex(index uint64) {
	if index <= r.commitIndex {
		return
	}
	r.commitIndex = index
	r.watcher.Committed(index)
	r.applyCommitted()
}

// applyCommitted hands committed entries to the state machine in strictly
// increasing index order, advancing the last applied index after each
// acknowledgement. Configuration entries rotate the committed
// configuration; no-op entries advance silently.
func (r *Raft) applyCommitted() {
	for r.lastApplied < r.commitIndex {
		index := r.lastApplied + 1
		entry, err := r.log.GetEntry(index)
		if err != nil {
			r.shutdown(fmt.Sprintf("could not get committed entry %d: %s", index, err.Error()))
			return
		}

		switch entry.EntryType {
		case EntryConfiguration:
			if r.uncommittedConfigurationIndex != 0 && r.uncommittedConfigurationIndex <= index {
				r.committedConfiguration = r.configuration.Clone()
				r.uncommittedConfigurationIndex = 0
			}
			// A leader that removed itself steps down once the removal
			// entry commits.
			if r.role == Leader && r.configuration.Get(r.id) == nil {
				r.lastApplied = index
				r.logger.Infof("server %d removed itself and is stepping down", r.id)
				if err := r.becomeFollower(r.currentTerm); err != nil {
					r.logger.Errorf("server %d could not step down: %s", r.id, err.Error())
				}
				continue
			}
		case EntryCommand:
			if len(entry.Data) > 0 {
				if err := r.fsm.Apply(entry); err != nil {
					r.shutdown(fmt.Sprintf("state machine could not apply entry %d: %s", index, err.Error()))
					return
				}
			}
		}

		r.lastApplied = index
		r.logger.Debugf("server %d applied entry: index = %d, term = %d", r.id, entry.Index, entry.Term)
	}
}

// truncateSuffix removes the log suffix starting at the provided index,
// rolling the active configuration back if an uncommitted configuration
// entry is discarded.
func (r *Raft) truncateSuffix(from uint64) error {
	configurationDropped := r.uncommittedConfigurationIndex != 0 && r.uncommittedConfigurationIndex >= from
	if err := r.log.TruncateSuffix(from); err != nil {
		return err
	}
	if configurationDropped {
		r.logger.Infof("server %d rolling back uncommitted configuration from index %d",
			r.id, r.uncommittedConfigurationIndex)
		r.uncommittedConfigurationIndex = 0
		return r.restoreConfiguration()
	}
	return nil
}

// activateConfiguration makes a freshly appended configuration entry the
// active configuration.
func (r *Raft) activateConfiguration(entry *LogEntry) error {
	configuration, err := decodeConfiguration(entry.Data)
	if err != nil {
		return r.shutdown(fmt.Sprintf("corrupt configuration entry at index %d: %s", entry.Index, err.Error()))
	}

	r.configuration = configuration
	r.uncommittedConfigurationIndex = entry.Index
	r.logger.Infof("server %d activated configuration from index %d: %d servers, %d voting",
		r.id, entry.Index, len(configuration.Servers), configuration.NVoting())

	// The leader keeps one progress per other member of the active
	// configuration.
	if r.role == Leader {
		for _, server := range configuration.Servers {
			if server.ID == r.id {
				continue
			}
			if _, ok := r.leader.progress[server.ID]; !ok {
				r.leader.progress[server.ID] = newProgress(r.log.LastIndex() + 1)
			}
		}
		for id := range r.leader.progress {
			if configuration.IndexOf(id) == -1 {
				delete(r.leader.progress, id)
			}
		}
	}
	return nil
}

// releaseEntries releases every entry the engine took ownership of but
// will not retain.
func releaseEntries(entries []*LogEntry) {
	for _, entry := range entries {
		entry.release()
	}
}
