package raft

// Tick notifies the engine that a certain amount of time has elapsed. The
// I/O collaborator invokes it periodically; all time-dependent behavior of
// the engine (election timeouts, heartbeats, catch-up rounds) is driven by
// these events and nothing else.
func (r *Raft) Tick(msec uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.errored || r.role == Unavailable {
		return
	}

	r.timer += msec

	switch r.role {
	case Follower:
		r.tickFollower()
	case Candidate:
		r.tickCandidate()
	case Leader:
		r.tickLeader(msec)
	}
}

// tickFollower applies time-dependent rules for followers: a voting
// follower that has not heard from a leader within its randomized election
// timeout starts an election.
func (r *Raft) tickFollower() {
	server := r.configuration.Get(r.id)

	// If we have been removed from the configuration, or maybe we didn't
	// receive one yet, just stay follower.
	if server == nil {
		return
	}

	// If we are the only voting server, it's safe to convert to leader
	// straight away: no other server can be elected. If the single voter
	// is another server, we are either joining the cluster or configured
	// as a non-voter: wait for its messages.
	if r.configuration.NVoting() == 1 {
		if server.Voting {
			r.logger.Debugf("server %d is the only voter: self-electing", r.id)
			if err := r.startElection(); err != nil {
				r.logger.Errorf("server %d could not self-elect: %s", r.id, err.Error())
			}
		}
		return
	}

	if r.timer > r.electionTimeoutRand && server.Voting {
		r.logger.Infof("server %d election timeout elapsed: starting election", r.id)
		if err := r.startElection(); err != nil {
			r.logger.Errorf("server %d could not start election: %s", r.id, err.Error())
		}
	}
}

// tickCandidate applies time-dependent rules for candidates: if the
// election timed out without an outcome, likely because votes were split,
// a new election starts with an incremented term and a fresh randomized
// timeout.
func (r *Raft) tickCandidate() {
	if r.timer > r.electionTimeoutRand {
		r.logger.Infof("server %d election timed out: starting new election", r.id)
		if err := r.startElection(); err != nil {
			r.logger.Errorf("server %d could not start election: %s", r.id, err.Error())
		}
	}
}

// tickLeader applies time-dependent rules for leaders: heartbeats are
// broadcast whenever the heartbeat timeout elapses, and the clock of an
// in-progress promotion round advances.
func (r *Raft) tickLeader(msec uint) {
	if r.timer > uint(r.options.heartbeatInterval.Milliseconds()) {
		r.heartbeat()
		r.timer = 0
	}

	if r.leader.promoteeID == 0 {
		return
	}

	// A promotion is aborted if the server is still not caught up at the
	// end of the last round, or if it is altogether unresponsive.
	id := r.leader.promoteeID
	r.leader.roundDuration += msec
	r.leader.catchUpDuration += msec

	tooSlow := r.leader.roundNumber == maxCatchUpRounds &&
		r.leader.roundDuration > uint(r.options.electionTimeout.Milliseconds())
	unresponsive := r.leader.catchUpDuration > maxCatchUpDuration

	if tooSlow || unresponsive {
		r.abortPromotion(id)
	}
}
