package raft

import (
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransportDeliversMessages(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	sender, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	receiver, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)

	received := make(chan *Message, 1)
	receiver.RegisterMessageHandler(func(message *Message) {
		received <- message
	})

	require.NoError(t, sender.Run())
	require.NoError(t, receiver.Run())
	defer sender.Shutdown()
	defer receiver.Shutdown()

	message := &Message{
		Type:        MessageRequestVote,
		From:        1,
		FromAddress: sender.Address(),
		To:          2,
		ToAddress:   receiver.Address(),
		RequestVote: &RequestVoteRequest{CandidateID: 1, Term: 4, LastLogIndex: 7, LastLogTerm: 2},
	}
	require.NoError(t, sender.Send(message))

	select {
	case got := <-received:
		assert.Equal(t, message.Type, got.Type)
		assert.Equal(t, message.From, got.From)
		assert.Equal(t, message.To, got.To)
		assert.Equal(t, *message.RequestVote, *got.RequestVote)
	case <-time.After(3 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestTransportRoundTripsEntries(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	sender, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	receiver, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)

	received := make(chan *Message, 1)
	receiver.RegisterMessageHandler(func(message *Message) {
		received <- message
	})

	require.NoError(t, sender.Run())
	require.NoError(t, receiver.Run())
	defer sender.Shutdown()
	defer receiver.Shutdown()

	message := &Message{
		Type:      MessageAppendEntries,
		From:      1,
		To:        2,
		ToAddress: receiver.Address(),
		AppendEntries: &AppendEntriesRequest{
			LeaderID:     1,
			Term:         3,
			LeaderCommit: 5,
			PrevLogIndex: 6,
			PrevLogTerm:  2,
			Entries: []*LogEntry{
				NewLogEntry(7, 3, EntryCommand, []byte("payload")),
				NewLogEntry(8, 3, EntryConfiguration, []byte{1, 2, 3}),
			},
		},
	}
	require.NoError(t, sender.Send(message))

	select {
	case got := <-received:
		request := got.AppendEntries
		require.NotNil(t, request)
		assert.Equal(t, uint64(6), request.PrevLogIndex)
		require.Equal(t, 2, len(request.Entries))
		validateEntry(t, request.Entries[0], 7, 3, []byte("payload"))
		assert.Equal(t, EntryConfiguration, request.Entries[1].EntryType)
	case <-time.After(3 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestTransportSendAfterShutdownFails(t *testing.T) {
	defer leaktest.CheckTimeout(t, 5*time.Second)()

	transport, err := NewTransport("127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, transport.Run())
	require.NoError(t, transport.Shutdown())

	err = transport.Send(&Message{Type: MessageRequestVote, ToAddress: "127.0.0.1:1"})
	assert.Error(t, err)
}
