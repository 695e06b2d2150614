package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usamanadeem786/iiagentd/internal/event"
)

type fakeStore struct {
	mu     sync.Mutex
	events []event.RealtimeEvent
}

func (s *fakeStore) AppendEvent(_ context.Context, _ uuid.UUID, e event.RealtimeEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *fakeStore) snapshot() []event.RealtimeEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]event.RealtimeEvent, len(s.events))
	copy(out, s.events)
	return out
}

type fakeClient struct {
	mu   sync.Mutex
	sent []event.RealtimeEvent
	fail bool
}

func (c *fakeClient) Send(e event.RealtimeEvent) error {
	if c.fail {
		return errors.New("send failed")
	}
	c.mu.Lock()
	c.sent = append(c.sent, e)
	c.mu.Unlock()
	return nil
}

func (c *fakeClient) snapshot() []event.RealtimeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.RealtimeEvent, len(c.sent))
	copy(out, c.sent)
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestBusPersistsAndDeliversInOrder(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{}
	b := New(store, uuid.New(), true)
	b.AttachClient(client)
	defer b.Close()

	b.Publish(event.New(event.TypeToolCall, map[string]any{"n": 1}))
	b.Publish(event.New(event.TypeToolResult, map[string]any{"n": 2}))

	waitFor(t, func() bool { return len(client.snapshot()) == 2 })
	sent := client.snapshot()
	assert.Equal(t, event.TypeToolCall, sent[0].Type)
	assert.Equal(t, event.TypeToolResult, sent[1].Type)

	persisted := store.snapshot()
	require.Len(t, persisted, 2)
}

func TestBusSkipsClientDeliveryForUserMessageButStillPersists(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{}
	b := New(store, uuid.New(), true)
	b.AttachClient(client)
	defer b.Close()

	b.Publish(event.New(event.TypeUserMessage, map[string]any{"text": "hi"}))
	b.Publish(event.New(event.TypePong, nil))

	waitFor(t, func() bool { return len(store.snapshot()) == 2 })
	waitFor(t, func() bool { return len(client.snapshot()) == 1 })
	assert.Equal(t, event.TypePong, client.snapshot()[0].Type)
}

func TestDetachClientStopsDeliveryButKeepsPersisting(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{}
	b := New(store, uuid.New(), true)
	b.AttachClient(client)
	defer b.Close()

	b.Publish(event.New(event.TypePong, nil))
	waitFor(t, func() bool { return len(client.snapshot()) == 1 })

	b.DetachClient()
	b.Publish(event.New(event.TypeSystem, nil))
	waitFor(t, func() bool { return len(store.snapshot()) == 2 })
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, client.snapshot(), 1)
}

func TestClientSendFailureDemotesClientWithoutStoppingPersistence(t *testing.T) {
	store := &fakeStore{}
	client := &fakeClient{fail: true}
	b := New(store, uuid.New(), true)
	b.AttachClient(client)
	defer b.Close()

	b.Publish(event.New(event.TypeSystem, nil))
	waitFor(t, func() bool { return len(store.snapshot()) == 1 })

	b.Publish(event.New(event.TypeSystem, nil))
	waitFor(t, func() bool { return len(store.snapshot()) == 2 })
	assert.Empty(t, client.snapshot())
}
