// Package eventbus implements the single-producer, single-drain-worker
// queue of spec.md §4.6: every RealtimeEvent an agent produces is appended
// to the session's durable event log and, if a client is attached, sent
// to it — but a client send failure only demotes the client, it never
// stops persistence. Grounded on the gateway's client-registry pattern in
// vanducng-goclaw's internal/gateway/server.go (Subscribe/Unsubscribe/
// Broadcast over a mutex-guarded client map), adapted from "broadcast to
// all clients" to "one queue, one drain worker, one client" per agent.
package eventbus

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/usamanadeem786/iiagentd/internal/event"
	"github.com/usamanadeem786/iiagentd/internal/observability"
)

// Store is the durable append-only sink the bus writes every event to. A
// minimal interface so this package does not import internal/persistence
// directly; persistence.EventStore satisfies it.
type Store interface {
	AppendEvent(ctx context.Context, sessionID uuid.UUID, e event.RealtimeEvent) error
}

// ClientSender delivers one event to whatever live connection is
// currently attached (typically a *session.wsSender wrapping a
// gorilla/websocket connection).
type ClientSender interface {
	Send(e event.RealtimeEvent) error
}

// Bus is one agent instance's event queue. Publish never blocks the
// caller for longer than it takes to append to an in-memory slice; the
// drain worker does all the (potentially slow) persistence/network I/O.
type Bus struct {
	store       Store
	sessionID   uuid.UUID
	haveSession bool

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []event.RealtimeEvent
	closed bool

	clientMu sync.RWMutex
	client   ClientSender

	done chan struct{}
}

// New starts a Bus and its drain goroutine. sessionID/haveSession may be
// zero/false for a run that has no durable session (e.g. a one-shot CLI
// invocation) — events are then only ever delivered to the client, never
// persisted.
func New(store Store, sessionID uuid.UUID, haveSession bool) *Bus {
	b := &Bus{
		store:       store,
		sessionID:   sessionID,
		haveSession: haveSession,
		done:        make(chan struct{}),
	}
	b.cond = sync.NewCond(&b.mu)
	go b.drain()
	return b
}

// Publish enqueues an event for the drain worker. Implements
// agent.Publisher.
func (b *Bus) Publish(e event.RealtimeEvent) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.queue = append(b.queue, e)
	b.mu.Unlock()
	b.cond.Signal()
}

// AttachClient sets the live connection events should be forwarded to.
func (b *Bus) AttachClient(c ClientSender) {
	b.clientMu.Lock()
	b.client = c
	b.clientMu.Unlock()
}

// DetachClient implements spec.md §4.6's cleanupConnection: the channel is
// set to "none" so further sends are silently dropped, but the drain
// worker keeps running and keeps persisting — only Close stops it.
func (b *Bus) DetachClient() {
	b.clientMu.Lock()
	b.client = nil
	b.clientMu.Unlock()
}

// Close stops the drain worker once the queue has fully drained. Call
// only when the owning agent has naturally terminated — never merely
// because a client disconnected.
func (b *Bus) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
	<-b.done
}

func (b *Bus) drain() {
	defer close(b.done)
	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}
		e := b.queue[0]
		b.queue = b.queue[1:]
		b.mu.Unlock()

		b.process(e)
	}
}

func (b *Bus) process(e event.RealtimeEvent) {
	if b.haveSession && b.store != nil {
		if err := b.store.AppendEvent(context.Background(), b.sessionID, e); err != nil {
			observability.LoggerWithTrace(context.Background()).Error().Err(err).
				Str("event_type", string(e.Type)).Msg("eventbus_persist_failed")
		}
	}
	if e.Type == event.TypeUserMessage {
		return
	}
	b.clientMu.RLock()
	c := b.client
	b.clientMu.RUnlock()
	if c == nil {
		return
	}
	if err := c.Send(e); err != nil {
		b.clientMu.Lock()
		if b.client == c {
			b.client = nil
		}
		b.clientMu.Unlock()
	}
}
