package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rohseh303/Paper/internal/assist"
	"github.com/rohseh303/Paper/internal/protocol"
	"github.com/rohseh303/Paper/internal/session"
	"github.com/rohseh303/Paper/internal/store"
)

// fakeBus is an in-memory stand-in for the Redis pub/sub backplane. Each
// endpoint has its own origin and never hears its own publishes.
type fakeBus struct {
	mu   sync.Mutex
	subs map[int]*fakeSub
	next int
}

type fakeSub struct {
	docID   string
	origin  int
	deliver func([]byte)
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: make(map[int]*fakeSub)}
}

func (b *fakeBus) endpoint() *fakeEndpoint {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	return &fakeEndpoint{bus: b, origin: b.next}
}

func (b *fakeBus) activeSubs(docID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.subs {
		if s.docID == docID {
			n++
		}
	}
	return n
}

type fakeEndpoint struct {
	bus    *fakeBus
	origin int
}

func (e *fakeEndpoint) Publish(_ context.Context, docID string, frame []byte) error {
	e.bus.mu.Lock()
	var targets []func([]byte)
	for _, s := range e.bus.subs {
		if s.docID == docID && s.origin != e.origin {
			targets = append(targets, s.deliver)
		}
	}
	e.bus.mu.Unlock()
	for _, deliver := range targets {
		deliver(frame)
	}
	return nil
}

func (e *fakeEndpoint) Subscribe(docID string, deliver func([]byte)) (func(), error) {
	e.bus.mu.Lock()
	defer e.bus.mu.Unlock()
	e.bus.next++
	key := e.bus.next
	e.bus.subs[key] = &fakeSub{docID: docID, origin: e.origin, deliver: deliver}
	return func() {
		e.bus.mu.Lock()
		delete(e.bus.subs, key)
		e.bus.mu.Unlock()
	}, nil
}

func (e *fakeEndpoint) Close() error { return nil }

func newBusEngine(t *testing.T, strat Strategy, bp Backplane) *Engine {
	t.Helper()
	manager := assist.NewManager(assist.Static{Suggestion: "ok"}, time.Second, zap.NewNop())
	return New(store.NewMemory(), session.NewRegistry(), strat, manager, bp, zap.NewNop())
}

func TestBackplaneRelaysAcrossProcesses(t *testing.T) {
	bus := newFakeBus()
	eng1 := newBusEngine(t, Relay{}, bus.endpoint())
	eng2 := newBusEngine(t, Relay{}, bus.endpoint())

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	join(t, eng1, a, "doc1")
	join(t, eng2, b, "doc1")

	eng1.SendChanges(context.Background(), a, "doc1", insertDelta("cross-process"))

	got := b.received(protocol.ReceiveChanges)
	require.Len(t, got, 1)
	assert.JSONEq(t, string(insertDelta("cross-process")), string(got[0].Delta))
	assert.Empty(t, a.received(protocol.ReceiveChanges), "publisher's process must not re-deliver")
}

func TestBackplaneIsolatesDocuments(t *testing.T) {
	bus := newFakeBus()
	eng1 := newBusEngine(t, Relay{}, bus.endpoint())
	eng2 := newBusEngine(t, Relay{}, bus.endpoint())

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	join(t, eng1, a, "doc1")
	join(t, eng2, b, "doc2")

	eng1.SendChanges(context.Background(), a, "doc1", insertDelta("private"))

	assert.Empty(t, b.received(protocol.ReceiveChanges))
}

func TestBackplaneFeedsConvergeView(t *testing.T) {
	bus := newFakeBus()
	eng1 := newBusEngine(t, NewConverge(zap.NewNop()), bus.endpoint())
	eng2 := newBusEngine(t, NewConverge(zap.NewNop()), bus.endpoint())

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	join(t, eng1, a, "doc1")
	join(t, eng2, b, "doc1")

	// An edit on eng1 must reach eng2's server-side view, not just its
	// connections, or later joiners on eng2 load stale state.
	eng1.SendChanges(context.Background(), a, "doc1", insertDelta("hello"))

	c := &fakeConn{id: "c"}
	join(t, eng2, c, "doc1")

	loads := c.received(protocol.LoadDocument)
	require.Len(t, loads, 1)
	assert.JSONEq(t, string(insertDelta("hello")), string(loads[0].Snapshot))
}

func TestBackplaneUnsubscribesWithLastConnection(t *testing.T) {
	bus := newFakeBus()
	eng := newBusEngine(t, Relay{}, bus.endpoint())

	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}
	join(t, eng, a, "doc1")
	join(t, eng, b, "doc1")
	assert.Equal(t, 1, bus.activeSubs("doc1"), "one subscription per document, not per connection")

	eng.Disconnect(a)
	assert.Equal(t, 1, bus.activeSubs("doc1"))

	eng.Disconnect(b)
	assert.Equal(t, 0, bus.activeSubs("doc1"))
}
