package raft

// startElection transitions the engine to the candidate role and requests
// a vote from every other voting member of the configuration. A candidate
// whose timeout fires calls this again, incrementing the term and starting
// over with a fresh randomized timeout.
func (r *Raft) startElection() error {
	if err := r.becomeCandidate(); err != nil {
		return err
	}

	// A single-voter cluster elects itself without any messages.
	if len(r.candidate.votesGranted) >= r.configuration.Quorum() {
		return r.becomeLeader()
	}

	for _, server := range r.configuration.Servers {
		if server.ID == r.id || !server.Voting {
			continue
		}
		r.logger.Debugf("server %d requesting vote from server %d: term = %d", r.id, server.ID, r.currentTerm)
		r.send(&Message{
			Type:      MessageRequestVote,
			To:        server.ID,
			ToAddress: server.Address,
			RequestVote: &RequestVoteRequest{
				CandidateID:  r.id,
				Term:         r.currentTerm,
				LastLogIndex: r.log.LastIndex(),
				LastLogTerm:  r.log.LastTerm(),
			},
		})
	}

	return nil
}

// handleRequestVote handles a vote request from a candidate. The vote is
// granted if the candidate's term is current, this server has not yet
// voted for another candidate in this term, and the candidate's log is at
// least as up-to-date as this server's. The vote is persisted before the
// reply is sent.
func (r *Raft) handleRequestVote(message *Message) error {
	request := message.RequestVote
	r.logger.Debugf("server %d received RequestVote RPC: candidateID = %d, term = %d, lastLogIndex = %d, lastLogTerm = %d",
		r.id, request.CandidateID, request.Term, request.LastLogIndex, request.LastLogTerm)

	response := &RequestVoteResponse{Term: r.currentTerm, VoteGranted: false}
	reply := func() {
		r.send(&Message{
			Type:                MessageRequestVoteResponse,
			To:                  message.From,
			ToAddress:           message.FromAddress,
			RequestVoteResponse: response,
		})
	}

	// Reject the request if the term is out-of-date.
	if request.Term < r.currentTerm {
		r.logger.Debugf("server %d rejecting RequestVote RPC: out of date term: %d > %d",
			r.id, r.currentTerm, request.Term)
		reply()
		return nil
	}

	// If the request has a more up-to-date term, update current term and
	// become a follower.
	if request.Term > r.currentTerm {
		if err := r.becomeFollower(request.Term); err != nil {
			return err
		}
		response.Term = r.currentTerm
	}

	// Reject the request if this server has already voted for another
	// candidate in this term.
	if r.votedFor != 0 && r.votedFor != request.CandidateID {
		r.logger.Debugf("server %d rejecting RequestVote RPC: already voted: votedFor = %d", r.id, r.votedFor)
		reply()
		return nil
	}

	// Reject any requests with an out-of-date log. To determine which log
	// is more up-to-date:
	// 1. If the logs have last entries with different terms, then the log
	//    with the greater term is more up-to-date.
	// 2. If the logs end with the same term, the longer log is more
	//    up-to-date.
	if request.LastLogTerm < r.log.LastTerm() ||
		(request.LastLogTerm == r.log.LastTerm() && request.LastLogIndex < r.log.LastIndex()) {
		r.logger.Debugf("server %d rejecting RequestVote RPC: out of date log: lastTerm = %d, lastIndex = %d",
			r.id, r.log.LastTerm(), r.log.LastIndex())
		reply()
		return nil
	}

	// The vote must be durable before the candidate can count it.
	if err := r.io.SetVote(request.CandidateID); err != nil {
		return wrapIO(err, "could not persist vote for server %d", request.CandidateID)
	}
	r.votedFor = request.CandidateID
	r.resetElectionTimer()

	response.VoteGranted = true
	r.logger.Debugf("server %d granting vote to server %d: term = %d", r.id, request.CandidateID, r.currentTerm)
	reply()
	return nil
}

// handleRequestVoteResult handles a vote reply while campaigning. A reply
// from a newer term makes this server step down, replies from older terms
// are discarded; on reaching a quorum of granted votes the candidate
// becomes leader.
func (r *Raft) handleRequestVoteResult(message *Message) error {
	response := message.RequestVoteResponse

	if response.Term > r.currentTerm {
		return r.becomeFollower(response.Term)
	}
	if r.role != Candidate || response.Term < r.currentTerm {
		r.logger.Debugf("server %d ignoring stale RequestVote result from server %d: term = %d",
			r.id, message.From, response.Term)
		return nil
	}

	if !response.VoteGranted {
		return nil
	}
	r.candidate.votesGranted[message.From] = true

	if len(r.candidate.votesGranted) >= r.configuration.Quorum() {
		r.logger.Infof("server %d won the election: term = %d, votes = %d",
			r.id, r.currentTerm, len(r.candidate.votesGranted))
		return r.becomeLeader()
	}
	return nil
}
