package raft

// Role is the role of a server in the cluster.
type Role uint32

const (
	// Unavailable is the role of a server before it has been started,
	// after it has been stopped, and after the engine has shut down due
	// to corrupted state.
	Unavailable Role = iota

	// Follower is the role of a server that replicates entries received
	// from the leader.
	Follower

	// Candidate is the role of a server that is campaigning for
	// leadership.
	Candidate

	// Leader is the role of the server that accepts commands and drives
	// replication.
	Leader
)

// String provides a string representation of the role.
func (r Role) String() string {
	switch r {
	case Unavailable:
		return "unavailable"
	case Follower:
		return "follower"
	case Candidate:
		return "candidate"
	case Leader:
		return "leader"
	default:
		panic("invalid role")
	}
}

// followerState is the scratch state maintained while in the follower role.
type followerState struct {
	// The ID of the current leader, or zero if unknown.
	currentLeaderID uint64
}

// candidateState is the scratch state maintained while in the candidate
// role.
type candidateState struct {
	// The IDs of the servers that granted their vote in the current
	// election.
	votesGranted map[uint64]bool
}

// leaderState is the scratch state maintained while in the leader role.
type leaderState struct {
	// The replication progress of each other server, keyed by server ID.
	progress map[uint64]*progress

	// The ID of the non-voting server currently being promoted, or zero
	// if no promotion is in progress.
	promoteeID uint64

	// The number of the current catch-up round, starting at one.
	roundNumber uint

	// The leader's last log index as observed at the start of the current
	// catch-up round. The round completes when the promotee's match index
	// reaches it.
	roundIndex uint64

	// Milliseconds elapsed in the current catch-up round.
	roundDuration uint

	// Milliseconds elapsed since the promotion started, across all rounds.
	catchUpDuration uint
}

// setRole transitions the engine to a new role, notifying the watcher if
// the role actually changes.
func (r *Raft) setRole(role Role) {
	if r.role == role {
		return
	}
	old := r.role
	r.role = role
	r.watcher.RoleChanged(old, role)
}

// resetElectionTimer resets the election timer and draws a fresh random
// election timeout in [electionTimeout, 2 * electionTimeout).
func (r *Raft) resetElectionTimer() {
	r.timer = 0
	r.electionTimeoutRand = r.randomElectionTimeout()
}

// updateTerm persists and adopts a newly observed term, clearing the vote.
func (r *Raft) updateTerm(term uint64) error {
	if term <= r.currentTerm {
		return nil
	}
	if err := r.io.SetTerm(term); err != nil {
		return wrapIO(err, "could not persist term %d", term)
	}
	if err := r.io.SetVote(0); err != nil {
		return wrapIO(err, "could not clear vote for term %d", term)
	}
	r.currentTerm = term
	r.votedFor = 0
	return nil
}

// becomeFollower transitions the engine to the follower role. If the
// provided term is greater than the current term it is adopted and the
// vote is cleared. The election timer is reset with fresh jitter.
func (r *Raft) becomeFollower(term uint64) error {
	if err := r.updateTerm(term); err != nil {
		return err
	}
	r.follower = followerState{}
	r.setRole(Follower)
	r.resetElectionTimer()
	r.logger.Infof("server %d has entered the follower state: term = %d", r.id, r.currentTerm)
	return nil
}

// becomeCandidate transitions the engine to the candidate role: the term
// is incremented, this server votes for itself and the election timer is
// reset.
func (r *Raft) becomeCandidate() error {
	term := r.currentTerm + 1
	if err := r.io.SetTerm(term); err != nil {
		return wrapIO(err, "could not persist term %d", term)
	}
	if err := r.io.SetVote(r.id); err != nil {
		return wrapIO(err, "could not persist vote for term %d", term)
	}
	r.currentTerm = term
	r.votedFor = r.id

	r.candidate = candidateState{votesGranted: map[uint64]bool{r.id: true}}
	r.setRole(Candidate)
	r.resetElectionTimer()
	r.logger.Infof("server %d has entered the candidate state: term = %d", r.id, r.currentTerm)
	return nil
}

// becomeLeader transitions the engine from candidate to leader: the
// replication progress of every other server is initialized, a no-op
// entry is appended in the new term to force commitment of entries from
// prior terms, and initial heartbeats are sent.
func (r *Raft) becomeLeader() error {
	if r.role != Candidate {
		return wrapInternal("cannot become leader from the %s role", r.role)
	}

	r.leader = leaderState{progress: make(map[uint64]*progress)}
	for _, server := range r.configuration.Servers {
		if server.ID == r.id {
			continue
		}
		r.leader.progress[server.ID] = newProgress(r.log.LastIndex() + 1)
	}

	r.setRole(Leader)
	r.timer = 0
	r.logger.Infof("server %d has entered the leader state: term = %d", r.id, r.currentTerm)

	if err := r.leaderAppend(EntryCommand, nil); err != nil {
		return err
	}
	r.triggerReplication()
	return nil
}
