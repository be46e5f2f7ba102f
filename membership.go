package raft

import (
	"fmt"
)

const (
	// The maximum number of catch-up rounds a non-voter may take before
	// its promotion is decided.
	maxCatchUpRounds = 10

	// The number of milliseconds after which a promotion is aborted if
	// the server has not caught up with the leader's log yet, across all
	// rounds.
	maxCatchUpDuration = 30 * 1000
)

// AddNonVoting adds a server with the provided ID and address to the
// cluster as a non-voting member. The new server receives log entries but
// does not count towards quorum until it is promoted.
func (r *Raft) AddNonVoting(id uint64, address string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkConfigurationChange(); err != nil {
		return err
	}

	configuration := r.configuration.Clone()
	if err := configuration.Add(id, address, false); err != nil {
		return err
	}

	r.logger.Infof("server %d adding non-voting server %d at %s", r.id, id, address)
	return r.appendConfiguration(configuration)
}

// Promote grants the non-voting server with the provided ID a voting
// role. The promotion is not immediate: the leader first runs up to ten
// catch-up rounds, and only appends the configuration entry once the
// server has caught up with its log within one election timeout. If the
// server cannot catch up the promotion is aborted and the watcher is
// notified.
func (r *Raft) Promote(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkConfigurationChange(); err != nil {
		return err
	}

	server := r.configuration.Get(id)
	if server == nil {
		return fmt.Errorf("could not promote server %d: %w", id, ErrUnknownID)
	}
	if server.Voting {
		return fmt.Errorf("could not promote server %d: already voting: %w", id, ErrBadState)
	}

	p := r.leader.progress[id]
	if p == nil {
		return wrapInternal("no replication progress for server %d", id)
	}

	// A server that is already caught up is promoted immediately.
	if p.matchIndex == r.log.LastIndex() {
		configuration := r.configuration.Clone()
		if err := configuration.Promote(id); err != nil {
			return err
		}
		r.logger.Infof("server %d promoting server %d", r.id, id)
		return r.appendConfiguration(configuration)
	}

	r.leader.promoteeID = id
	r.leader.roundNumber = 1
	r.leader.roundIndex = r.log.LastIndex()
	r.leader.roundDuration = 0
	r.leader.catchUpDuration = 0

	r.logger.Infof("server %d starting catch-up of server %d: roundIndex = %d", r.id, id, r.leader.roundIndex)

	server = r.configuration.Get(id)
	r.sendAppendEntries(*server, false)
	return nil
}

// Remove removes the server with the provided ID from the cluster. A
// leader may remove itself: it steps down once the removal entry commits.
func (r *Raft) Remove(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkConfigurationChange(); err != nil {
		return err
	}

	configuration := r.configuration.Clone()
	if err := configuration.Remove(id); err != nil {
		return err
	}

	r.logger.Infof("server %d removing server %d", r.id, id)
	return r.appendConfiguration(configuration)
}

// checkConfigurationChange verifies that a configuration change may start:
// this server must be the leader and no other change may be in progress. A
// change is in progress from the moment its configuration entry is
// appended until that entry is committed.
func (r *Raft) checkConfigurationChange() error {
	if r.errored {
		return ErrShutdown
	}
	if r.role != Leader {
		return fmt.Errorf("could not change configuration: %w", ErrNotLeader)
	}
	if r.uncommittedConfigurationIndex != 0 || r.leader.promoteeID != 0 {
		return fmt.Errorf("could not change configuration: %w", ErrConfigBusy)
	}
	return nil
}

// appendConfiguration appends a configuration entry encoding the provided
// configuration and activates it immediately.
func (r *Raft) appendConfiguration(configuration *Configuration) error {
	data := encodeConfiguration(configuration)
	index := r.log.LastIndex() + 1

	if err := r.leaderAppend(EntryConfiguration, data); err != nil {
		return err
	}

	entry, err := r.log.GetEntry(index)
	if err != nil {
		return err
	}
	if err := r.activateConfiguration(entry); err != nil {
		return err
	}

	r.triggerReplication()
	return nil
}

// checkPromotion checks whether the promotee has completed the current
// catch-up round and either finalizes the promotion, starts another
// round, or aborts. Invoked whenever the promotee's match index advances.
func (r *Raft) checkPromotion(id uint64, p *progress) error {
	if p.matchIndex < r.leader.roundIndex {
		return nil
	}

	electionTimeout := uint(r.options.electionTimeout.Milliseconds())

	// The server caught up within one election timeout: there are not
	// enough unreplicated entries left to create a significant
	// availability gap, so the promotion may proceed.
	if r.leader.roundDuration <= electionTimeout {
		configuration := r.configuration.Clone()
		if err := configuration.Promote(id); err != nil {
			return err
		}

		r.clearPromotion()
		r.logger.Infof("server %d promoting server %d after catch-up", r.id, id)
		return r.appendConfiguration(configuration)
	}

	if r.leader.roundNumber < maxCatchUpRounds {
		r.leader.roundNumber++
		r.leader.roundIndex = r.log.LastIndex()
		r.leader.roundDuration = 0
		r.logger.Debugf("server %d starting catch-up round %d of server %d: roundIndex = %d",
			r.id, r.leader.roundNumber, id, r.leader.roundIndex)
		return nil
	}

	r.abortPromotion(id)
	return nil
}

// abortPromotion abandons an in-progress promotion and notifies the
// watcher.
func (r *Raft) abortPromotion(id uint64) {
	r.logger.Warnf("server %d aborting promotion of server %d", r.id, id)
	r.clearPromotion()
	r.watcher.PromotionAborted(id)
}

func (r *Raft) clearPromotion() {
	r.leader.promoteeID = 0
	r.leader.roundNumber = 0
	r.leader.roundIndex = 0
	r.leader.roundDuration = 0
	r.leader.catchUpDuration = 0
}
