package raft

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	pb "github.com/replicore/raft/internal/protobuf"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
)

const shutdownGracePeriod = 300 * time.Millisecond

// Transport represents the underlying transport mechanism used by a node
// in a cluster to send and receive messages. It acts as both a server for
// a node and a client of other nodes. Messages are one-way: a reply is
// just another message sent in the opposite direction, matching the
// engine's intent/completion model.
type Transport interface {
	// Run will start serving incoming messages received at the local
	// network address.
	Run() error

	// Shutdown will stop the serving of incoming messages.
	Shutdown() error

	// Send transmits a message to the address it is addressed to.
	Send(message *Message) error

	// RegisterMessageHandler registers the function that will be called
	// when a message is received.
	RegisterMessageHandler(handler func(message *Message))

	// Address returns the local network address.
	Address() string
}

// connectionManager handles creating new connections and closing existing
// ones. This implementation is concurrent safe.
type connectionManager struct {
	// The connections to the nodes in the cluster. Maps address to
	// connection.
	connections map[string]*grpc.ClientConn

	// The clients used to make RPCs. Maps address to client.
	clients map[string]pb.RaftClient

	// The credentials each client will use.
	creds credentials.TransportCredentials

	mu sync.Mutex
}

func newConnectionManager(creds credentials.TransportCredentials) *connectionManager {
	return &connectionManager{
		connections: make(map[string]*grpc.ClientConn),
		clients:     make(map[string]pb.RaftClient),
		creds:       creds,
	}
}

// getClient will retrieve a client for the provided address. If one does
// not exist, it will be created.
func (c *connectionManager) getClient(address string) (pb.RaftClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[address]; ok {
		return client, nil
	}

	conn, err := grpc.Dial(address, grpc.WithTransportCredentials(c.creds))
	if err != nil {
		return nil, fmt.Errorf("could not establish connection: %w", err)
	}
	c.connections[address] = conn
	c.clients[address] = pb.NewRaftClient(conn)

	return c.clients[address], nil
}

// closeAll closes all open connections.
func (c *connectionManager) closeAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for address, conn := range c.connections {
		conn.Close()
		delete(c.connections, address)
		delete(c.clients, address)
	}
}

// transport is an implementation of the Transport interface backed by
// gRPC.
type transport struct {
	// Indicates whether the transport is started.
	running bool

	// The local network address.
	address net.Addr

	// The RPC server for raft.
	server *grpc.Server

	// The function that is called when a message is received.
	messageHandler func(message *Message)

	// Manages connections to other members of the cluster.
	connManager *connectionManager

	mu sync.RWMutex
}

// NewTransport creates a new instance of Transport that can be used to
// send messages and serve incoming messages at the provided address.
func NewTransport(address string) (Transport, error) {
	resolvedAddress, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("could not resolve tcp address: %w", err)
	}
	creds := insecure.NewCredentials()
	connManager := newConnectionManager(creds)
	return &transport{address: resolvedAddress, connManager: connManager}, nil
}

func (t *transport) Run() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	listener, err := net.Listen(t.address.Network(), t.address.String())
	if err != nil {
		return fmt.Errorf("could not create listener: %w", err)
	}
	t.address = listener.Addr()

	t.server = grpc.NewServer()
	pb.RegisterRaftServer(t.server, t)
	go t.server.Serve(listener)
	t.running = true

	return nil
}

func (t *transport) Shutdown() error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	t.mu.Unlock()

	stopped := make(chan interface{})
	defer t.connManager.closeAll()

	go func() {
		t.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-time.After(shutdownGracePeriod):
		t.server.Stop()
	case <-stopped:
		t.server.Stop()
	}

	return nil
}

func (t *transport) Send(message *Message) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.running {
		return errors.New("could not send message: transport is closed")
	}

	client, err := t.connManager.getClient(message.ToAddress)
	if err != nil {
		return fmt.Errorf("could not get client connection: %w", err)
	}

	pbMessage := makeProtoMessage(message)
	if _, err := client.Deliver(context.Background(), pbMessage); err != nil {
		return fmt.Errorf("could not deliver %s message: %w", message.Type, err)
	}

	return nil
}

func (t *transport) RegisterMessageHandler(handler func(message *Message)) {
	t.messageHandler = handler
}

func (t *transport) Address() string {
	return t.address.String()
}

// Deliver handles the Deliver gRPC request. It converts the request to the
// internal representation and hands it to the registered message handler.
func (t *transport) Deliver(ctx context.Context, request *pb.Message) (*pb.DeliverAck, error) {
	message := makeMessage(request)
	if t.messageHandler != nil {
		t.messageHandler(message)
	}
	return &pb.DeliverAck{}, nil
}
