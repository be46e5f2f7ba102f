/*
This library provides an event-driven implementation of the Raft consensus
protocol using Go. Raft is a consensus protocol designed to manage replicated
logs in a distributed system. Its purpose is to ensure fault-tolerant
coordination and consistency among a group of servers, making it suitable for
building reliable systems. Potential use cases include distributed file
systems, consistent key-value stores, and service discovery.

The engine at the center of this library performs no I/O of its own: disk and
network operations are delegated to an I/O collaborator, and the engine only
reacts to the events the collaborator delivers (elapsed time, received
messages, completed writes). This makes the engine deterministic and fully
testable without real sockets or disks. There are two ways the library can be
used: with the provided I/O collaborator, which employs gRPC, protobuf and a
file-backed log, or with a custom implementation of the IO interface, which
may be useful if you wish to use a different communication protocol or storage
engine.

To set up a server, the first step is to define the state machine that is to
be replicated. This state machine must implement the StateMachine interface.
Here is an example of a type that implements the StateMachine interface.

	// StateMachine represents a simple counter.
	type StateMachine struct {
	    // The current count.
	    count int
	}

	func (sm *StateMachine) Apply(entry *raft.LogEntry) error {
	    // Decode the operation. For a counter, the payload is simply
	    // the amount to add.
	    delta := int(binary.LittleEndian.Uint64(entry.Data))

	    // Apply the operation.
	    sm.count += delta

	    return nil
	}

Next, create the I/O collaborator that the engine will use to persist its
state and to exchange messages with the other members of the cluster. The
default collaborator keeps its files under the provided directory.

	io, err := raft.NewIO("raft-1-data")
	if err != nil {
	    panic(err)
	}

A Raft instance may now be created as below.

	fsm := new(StateMachine)
	r, err := raft.NewRaft(1, "127.0.0.1:8080", io, fsm)

Note that you can also specify options such as the election timeout and the
heartbeat interval when creating a new Raft instance. For example, the below
code will create a Raft instance that uses 500 milliseconds as its election
timeout. If no options are provided, the default options are used.

	r, err := raft.NewRaft(1, "127.0.0.1:8080", io, fsm, raft.WithElectionTimeout(500*time.Millisecond))

The first time a cluster is brought up, every server must be bootstrapped
with the same initial configuration listing all of its members.

	configuration := raft.NewConfiguration()
	configuration.Add(1, "127.0.0.1:8080", true)
	configuration.Add(2, "127.0.0.2:8080", true)
	configuration.Add(3, "127.0.0.3:8080", true)
	if err := r.Bootstrap(configuration); err != nil {
	    panic(err)
	}

All that remains is to start the instance. It loads its durable state and
begins operating as a follower; an election is held automatically once the
election timeout expires.

	if err := r.Start(); err != nil {
	    panic(err)
	}

Here is how to submit a command to the instance once it is started. The
command is only accepted by the leader: other servers fail with ErrNotLeader
and the client should retry against the server indicated by Status.

	var buffer [8]byte
	binary.LittleEndian.PutUint64(buffer[:], 1)
	index, term, err := r.SubmitCommand(raft.Command{Bytes: buffer[:]})

The membership of a running cluster can be changed one server at a time. New
servers join as non-voting members so that they can catch up with the log
without affecting quorum, and are then promoted.

	if err := r.AddNonVoting(4, "127.0.0.4:8080"); err != nil {
	    panic(err)
	}
	// ... wait for the configuration change to commit ...
	if err := r.Promote(4); err != nil {
	    panic(err)
	}

Be warned that this is a highly simplified example that demonstrates how raft
may be used and some of its features. This implementation leaves out many
details that would typically be associated with a system that uses Raft such
as duplicate detection and retry mechanisms.
*/
package raft
