package raft

import pb "github.com/replicore/raft/internal/protobuf"

// AppendEntriesRequest is a request invoked by the leader to replicate log
// entries and also serves as a heartbeat.
type AppendEntriesRequest struct {
	// The leader's ID. Allows followers to redirect clients.
	LeaderID uint64

	// The leader's term.
	Term uint64

	// The leader's commit index.
	LeaderCommit uint64

	// The index of the log entry immediately preceding the new ones.
	PrevLogIndex uint64

	// The term of the log entry immediately preceding the new ones.
	PrevLogTerm uint64

	// Contains the log entries to store (empty for heartbeat).
	Entries []*LogEntry
}

// AppendEntriesResponse is a response to a request to replicate log entries.
type AppendEntriesResponse struct {
	// The term of the server that received the request.
	Term uint64

	// Indicates whether the request to append entries was successful.
	Success bool

	// The index of the last entry in the receiver's log. Lets a rejected
	// leader back up its next index past entire conflicting terms in one
	// step.
	LastLogIndex uint64
}

// RequestVoteRequest is a request invoked by candidates to gather votes.
type RequestVoteRequest struct {
	// The ID of the candidate requesting the vote.
	CandidateID uint64

	// The candidate's term.
	Term uint64

	// The index of the candidate's last log entry.
	LastLogIndex uint64

	// The term of the candidate's last log entry.
	LastLogTerm uint64
}

// RequestVoteResponse is a response to a request for a vote.
type RequestVoteResponse struct {
	// The term of the server that received the request.
	Term uint64

	// Indicates whether the vote was granted.
	VoteGranted bool
}

// InstallSnapshotRequest is invoked by the leader to send a snapshot to a
// follower whose required entries have been compacted away.
type InstallSnapshotRequest struct {
	// The leader's ID.
	LeaderID uint64

	// The leader's term.
	Term uint64

	// The snapshot replaces all entries up to and including this index.
	LastIncludedIndex uint64

	// The term associated with the last included index.
	LastIncludedTerm uint64

	// The encoded configuration as of the last included index.
	Configuration []byte

	// The state of the state machine in bytes.
	Data []byte
}

// InstallSnapshotResponse is a response to a snapshot installation.
type InstallSnapshotResponse struct {
	// The term of the server that received the request.
	Term uint64
}

// MessageType identifies the kind of payload a Message carries.
type MessageType uint8

const (
	MessageAppendEntries MessageType = iota
	MessageAppendEntriesResponse
	MessageRequestVote
	MessageRequestVoteResponse
	MessageInstallSnapshot
	MessageInstallSnapshotResponse
)

// String provides a string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageAppendEntries:
		return "AppendEntries"
	case MessageAppendEntriesResponse:
		return "AppendEntriesResponse"
	case MessageRequestVote:
		return "RequestVote"
	case MessageRequestVoteResponse:
		return "RequestVoteResponse"
	case MessageInstallSnapshot:
		return "InstallSnapshot"
	case MessageInstallSnapshotResponse:
		return "InstallSnapshotResponse"
	default:
		panic("invalid message type")
	}
}

// Message is the envelope that the engine exchanges with the I/O
// collaborator: the sender and destination of the message plus exactly one
// payload, selected by Type.
type Message struct {
	// The kind of payload this message carries.
	Type MessageType

	// The ID and address of the server this message is sent to.
	To        uint64
	ToAddress string

	// The ID and address of the server this message was sent by.
	From        uint64
	FromAddress string

	AppendEntries           *AppendEntriesRequest
	AppendEntriesResponse   *AppendEntriesResponse
	RequestVote             *RequestVoteRequest
	RequestVoteResponse     *RequestVoteResponse
	InstallSnapshot         *InstallSnapshotRequest
	InstallSnapshotResponse *InstallSnapshotResponse
}

// makeProtoEntries converts an array of LogEntry instances to an array of
// protobuf LogEntry instances.
func makeProtoEntries(entries []*LogEntry) []*pb.LogEntry {
	protoEntries := make([]*pb.LogEntry, len(entries))
	for i, entry := range entries {
		protoEntries[i] = &pb.LogEntry{
			Index:     entry.Index,
			Term:      entry.Term,
			EntryType: uint32(entry.EntryType),
			Data:      entry.Data,
		}
	}
	return protoEntries
}

// makeEntries converts an array of protobuf LogEntry instances to an array
// of LogEntry instances.
func makeEntries(protoEntries []*pb.LogEntry) []*LogEntry {
	entries := make([]*LogEntry, len(protoEntries))
	for i, protoEntry := range protoEntries {
		entries[i] = &LogEntry{
			Index:     protoEntry.GetIndex(),
			Term:      protoEntry.GetTerm(),
			EntryType: EntryType(protoEntry.GetEntryType()),
			Data:      protoEntry.GetData(),
		}
	}
	return entries
}

// makeProtoMessage converts a Message instance to a protobuf Message
// instance.
func makeProtoMessage(message *Message) *pb.Message {
	protoMessage := &pb.Message{
		Type:        uint32(message.Type),
		From:        message.From,
		FromAddress: message.FromAddress,
		To:          message.To,
		ToAddress:   message.ToAddress,
	}

	switch message.Type {
	case MessageAppendEntries:
		request := message.AppendEntries
		protoMessage.AppendEntries = &pb.AppendEntriesRequest{
			LeaderId:     request.LeaderID,
			Term:         request.Term,
			LeaderCommit: request.LeaderCommit,
			PrevLogIndex: request.PrevLogIndex,
			PrevLogTerm:  request.PrevLogTerm,
			Entries:      makeProtoEntries(request.Entries),
		}
	case MessageAppendEntriesResponse:
		response := message.AppendEntriesResponse
		protoMessage.AppendEntriesResponse = &pb.AppendEntriesResponse{
			Term:         response.Term,
			Success:      response.Success,
			LastLogIndex: response.LastLogIndex,
		}
	case MessageRequestVote:
		request := message.RequestVote
		protoMessage.RequestVote = &pb.RequestVoteRequest{
			CandidateId:  request.CandidateID,
			Term:         request.Term,
			LastLogIndex: request.LastLogIndex,
			LastLogTerm:  request.LastLogTerm,
		}
	case MessageRequestVoteResponse:
		response := message.RequestVoteResponse
		protoMessage.RequestVoteResponse = &pb.RequestVoteResponse{
			Term:        response.Term,
			VoteGranted: response.VoteGranted,
		}
	case MessageInstallSnapshot:
		request := message.InstallSnapshot
		protoMessage.InstallSnapshot = &pb.InstallSnapshotRequest{
			LeaderId:          request.LeaderID,
			Term:              request.Term,
			LastIncludedIndex: request.LastIncludedIndex,
			LastIncludedTerm:  request.LastIncludedTerm,
			Configuration:     request.Configuration,
			Data:              request.Data,
		}
	case MessageInstallSnapshotResponse:
		response := message.InstallSnapshotResponse
		protoMessage.InstallSnapshotResponse = &pb.InstallSnapshotResponse{
			Term: response.Term,
		}
	}

	return protoMessage
}

// makeMessage converts a protobuf Message instance to a Message instance.
func makeMessage(protoMessage *pb.Message) *Message {
	message := &Message{
		Type:        MessageType(protoMessage.GetType()),
		From:        protoMessage.GetFrom(),
		FromAddress: protoMessage.GetFromAddress(),
		To:          protoMessage.GetTo(),
		ToAddress:   protoMessage.GetToAddress(),
	}

	switch message.Type {
	case MessageAppendEntries:
		request := protoMessage.GetAppendEntries()
		message.AppendEntries = &AppendEntriesRequest{
			LeaderID:     request.GetLeaderId(),
			Term:         request.GetTerm(),
			LeaderCommit: request.GetLeaderCommit(),
			PrevLogIndex: request.GetPrevLogIndex(),
			PrevLogTerm:  request.GetPrevLogTerm(),
			Entries:      makeEntries(request.GetEntries()),
		}
	case MessageAppendEntriesResponse:
		response := protoMessage.GetAppendEntriesResponse()
		message.AppendEntriesResponse = &AppendEntriesResponse{
			Term:         response.GetTerm(),
			Success:      response.GetSuccess(),
			LastLogIndex: response.GetLastLogIndex(),
		}
	case MessageRequestVote:
		request := protoMessage.GetRequestVote()
		message.RequestVote = &RequestVoteRequest{
			CandidateID:  request.GetCandidateId(),
			Term:         request.GetTerm(),
			LastLogIndex: request.GetLastLogIndex(),
			LastLogTerm:  request.GetLastLogTerm(),
		}
	case MessageRequestVoteResponse:
		response := protoMessage.GetRequestVoteResponse()
		message.RequestVoteResponse = &RequestVoteResponse{
			Term:        response.GetTerm(),
			VoteGranted: response.GetVoteGranted(),
		}
	case MessageInstallSnapshot:
		request := protoMessage.GetInstallSnapshot()
		message.InstallSnapshot = &InstallSnapshotRequest{
			LeaderID:          request.GetLeaderId(),
			Term:              request.GetTerm(),
			LastIncludedIndex: request.GetLastIncludedIndex(),
			LastIncludedTerm:  request.GetLastIncludedTerm(),
			Configuration:     request.GetConfiguration(),
			Data:              request.GetData(),
		}
	case MessageInstallSnapshotResponse:
		response := protoMessage.GetInstallSnapshotResponse()
		message.InstallSnapshotResponse = &InstallSnapshotResponse{
			Term: response.GetTerm(),
		}
	}

	return message
}
