package raft

import (
	"fmt"
	"sync"
	"time"
)

// defaultIO is the default implementation of the IO interface: durable
// state lives in a file-backed Storage and messages travel over a gRPC
// Transport. All callbacks into the engine are serialized through a single
// mailbox goroutine, satisfying the engine's single-logical-thread
// delivery contract.
type defaultIO struct {
	// The durable half.
	storage Storage

	// The network half, created at Start once the address is known.
	transport Transport

	// The callbacks registered by the engine.
	tickCb func(msec uint)
	recvCb func(message *Message)

	// The mailbox: every callback into the engine is executed by the
	// goroutine draining this channel.
	events chan func()

	// Queued append operations, executed in order by the persistence
	// goroutine so that fsyncs do not block the mailbox.
	appends chan appendRequest

	// Closed to stop the background goroutines.
	stopped chan struct{}

	running bool
	wg      sync.WaitGroup
	mu      sync.Mutex
}

type appendRequest struct {
	entries []*LogEntry
	done    func(err error)
}

// NewIO creates the default I/O collaborator, persisting durable state
// under the provided directory. The network transport is created when the
// engine starts and provides its address.
func NewIO(dir string) (IO, error) {
	storage, err := NewStorage(dir)
	if err != nil {
		return nil, fmt.Errorf("could not create I/O: %w", err)
	}
	if err := storage.Open(); err != nil {
		return nil, fmt.Errorf("could not open storage: %w", err)
	}
	return &defaultIO{storage: storage}, nil
}

func (d *defaultIO) Start(id uint64, address string, tickMillis uint, tick func(msec uint), recv func(message *Message)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return fmt.Errorf("I/O is already started")
	}

	transport, err := NewTransport(address)
	if err != nil {
		return fmt.Errorf("could not create transport: %w", err)
	}
	transport.RegisterMessageHandler(func(message *Message) {
		d.post(func() { d.recvCb(message) })
	})
	if err := transport.Run(); err != nil {
		return fmt.Errorf("could not run transport: %w", err)
	}

	d.transport = transport
	d.tickCb = tick
	d.recvCb = recv
	d.events = make(chan func(), 1024)
	d.appends = make(chan appendRequest, 256)
	d.stopped = make(chan struct{})
	d.running = true

	d.wg.Add(3)
	go d.mailboxLoop()
	go d.appendLoop()
	go d.tickLoop(tickMillis)

	return nil
}

func (d *defaultIO) Load() (*InitialState, error) {
	return d.storage.Load()
}

func (d *defaultIO) Bootstrap(configuration *Configuration) error {
	return d.storage.Bootstrap(configuration)
}

func (d *defaultIO) SetTerm(term uint64) error {
	return d.storage.SetTerm(term)
}

func (d *defaultIO) SetVote(serverID uint64) error {
	return d.storage.SetVote(serverID)
}

func (d *defaultIO) Append(entries []*LogEntry, done func(err error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running {
		return fmt.Errorf("I/O is not started")
	}

	select {
	case d.appends <- appendRequest{entries: entries, done: done}:
	case <-d.stopped:
		return fmt.Errorf("I/O has been stopped")
	}
	return nil
}

func (d *defaultIO) Send(message *Message, done func(err error)) error {
	d.mu.Lock()
	transport := d.transport
	running := d.running
	if running {
		d.wg.Add(1)
	}
	d.mu.Unlock()
	if !running {
		return fmt.Errorf("I/O is not started")
	}

	go func() {
		defer d.wg.Done()
		err := transport.Send(message)
		d.post(func() { done(err) })
	}()
	return nil
}

func (d *defaultIO) Stop(done func()) error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		done()
		return nil
	}
	d.running = false
	close(d.stopped)
	transport := d.transport
	d.mu.Unlock()

	go func() {
		transport.Shutdown()
		d.wg.Wait()
		d.storage.Close()
		done()
	}()
	return nil
}

// post hands a callback to the mailbox goroutine. If the mailbox is full
// the hand-off is retried from a fresh goroutine so that callers are never
// blocked while holding locks.
func (d *defaultIO) post(f func()) {
	select {
	case <-d.stopped:
		return
	case d.events <- f:
		return
	default:
	}

	// The mailbox is full: hand off from a fresh goroutine so that the
	// caller is never blocked while holding locks. The goroutine exits on
	// stop without being waited for.
	go func() {
		select {
		case d.events <- f:
		case <-d.stopped:
		}
	}()
}

func (d *defaultIO) mailboxLoop() {
	defer d.wg.Done()
	for {
		select {
		case f := <-d.events:
			f()
		case <-d.stopped:
			return
		}
	}
}

func (d *defaultIO) appendLoop() {
	defer d.wg.Done()
	for {
		select {
		case request := <-d.appends:
			err := d.storage.Append(request.entries)
			d.post(func() { request.done(err) })
		case <-d.stopped:
			return
		}
	}
}

func (d *defaultIO) tickLoop(tickMillis uint) {
	defer d.wg.Done()

	if tickMillis == 0 {
		tickMillis = 1
	}
	ticker := time.NewTicker(time.Duration(tickMillis) * time.Millisecond)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			elapsed := uint(now.Sub(last).Milliseconds())
			last = now
			d.post(func() { d.tickCb(elapsed) })
		case <-d.stopped:
			return
		}
	}
}
