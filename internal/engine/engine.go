// Package engine orchestrates document load, change relay, autosave and the
// assist channel across every connection sharing a document.
//
// Consistency model: the engine relays each delta to the sender's peers in
// the order received and never rebases it against other connections'
// concurrent edits; saves are unconditional last-writer-wins overwrites.
// Conflict resolution is delegated to the editor widgets (and optionally to
// a Converge strategy).
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/rohseh303/Paper/internal/assist"
	"github.com/rohseh303/Paper/internal/document"
	"github.com/rohseh303/Paper/internal/protocol"
	"github.com/rohseh303/Paper/internal/session"
	"github.com/rohseh303/Paper/internal/store"
)

// connState tracks one connection's view: unloaded until get-document,
// loading while the snapshot is fetched, ready once load-document was sent.
type connState struct {
	docID string
	ready bool
}

type Engine struct {
	store     store.Store
	registry  *session.Registry
	strategy  Strategy
	assist    *assist.Manager
	backplane Backplane
	log       *zap.Logger

	mu     sync.Mutex
	states map[string]*connState
	subs   map[string]func() // docID -> backplane unsubscribe
}

func New(st store.Store, reg *session.Registry, strat Strategy, am *assist.Manager, bp Backplane, log *zap.Logger) *Engine {
	return &Engine{
		store:     st,
		registry:  reg,
		strategy:  strat,
		assist:    am,
		backplane: bp,
		log:       log,
		states:    make(map[string]*connState),
		subs:      make(map[string]func()),
	}
}

// GetDocument loads (or lazily creates) the document and answers the
// requesting connection with a one-shot load-document. The connection joins
// the document's session set and becomes eligible to send and receive
// changes.
func (e *Engine) GetDocument(ctx context.Context, c session.Conn, docID string) error {
	e.mu.Lock()
	st := e.states[c.ID()]
	if st != nil && st.docID == docID {
		e.mu.Unlock()
		e.log.Warn("duplicate get-document ignored",
			zap.String("conn", c.ID()), zap.String("documentId", docID))
		return nil
	}
	e.mu.Unlock()

	// A repeat get-document with a new id switches the connection to the
	// other document.
	if st != nil {
		if prev, ok := e.leaveDocument(c); ok {
			e.log.Info("connection switching documents",
				zap.String("conn", c.ID()),
				zap.String("from", prev),
				zap.String("to", docID))
		}
	}

	e.mu.Lock()
	e.states[c.ID()] = &connState{docID: docID}
	e.mu.Unlock()

	snapshot, err := e.loadSnapshot(ctx, docID)
	if err != nil {
		e.mu.Lock()
		delete(e.states, c.ID())
		e.mu.Unlock()
		return err
	}

	first := e.registry.Register(docID, c) == 1
	if first {
		e.subscribeBackplane(docID)
	}
	e.strategy.Seed(docID, snapshot)

	c.Enqueue(protocol.Encode(protocol.NewLoadDocument(docID, snapshot)))

	e.mu.Lock()
	if st, ok := e.states[c.ID()]; ok {
		st.ready = true
	}
	e.mu.Unlock()

	e.log.Info("document loaded",
		zap.String("conn", c.ID()), zap.String("documentId", docID))
	return nil
}

// loadSnapshot prefers the strategy's in-memory view, falls back to the
// store, and initializes an empty document for an unseen id. An unknown id
// is not an error.
func (e *Engine) loadSnapshot(ctx context.Context, docID string) (json.RawMessage, error) {
	if snapshot, ok := e.strategy.Snapshot(docID); ok {
		return snapshot, nil
	}
	snapshot, err := e.store.Load(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		if err := e.store.Save(ctx, docID, document.EmptyJSON); err != nil {
			return nil, err
		}
		return document.EmptyJSON, nil
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// SendChanges relays a delta from c to every other connection on the same
// document. The sender never gets its own delta back; its widget already
// applied the edit locally. Deltas from a connection that has not finished
// loading are dropped.
func (e *Engine) SendChanges(ctx context.Context, c session.Conn, docID string, delta json.RawMessage) {
	e.mu.Lock()
	st, ok := e.states[c.ID()]
	ready := ok && st.ready && st.docID == docID
	e.mu.Unlock()
	if !ready {
		e.log.Warn("send-changes from a connection that is not ready, dropping",
			zap.String("conn", c.ID()), zap.String("documentId", docID))
		return
	}

	frame := protocol.Encode(protocol.NewReceiveChanges(delta))
	for _, peer := range e.registry.Peers(docID, c.ID()) {
		peer.Enqueue(frame)
	}
	e.strategy.Observe(docID, delta)

	if e.backplane != nil {
		if err := e.backplane.Publish(ctx, docID, frame); err != nil {
			e.log.Warn("backplane publish failed", zap.String("documentId", docID), zap.Error(err))
		}
	}
}

// SaveDocument overwrites the stored snapshot. Last writer wins: saves race
// freely across connections and no version is checked.
func (e *Engine) SaveDocument(ctx context.Context, docID string, snapshot json.RawMessage) {
	if err := e.store.Save(ctx, docID, snapshot); err != nil {
		e.log.Error("save failed", zap.String("documentId", docID), zap.Error(err))
	}
}

// TextSelection enqueues an assist request for the selected span. The
// suggestion, or an explicit failure, comes back later on the same
// connection as a text-suggestion frame. Empty selections are ignored.
func (e *Engine) TextSelection(c session.Conn, docID, text, instruction string) {
	if text == "" {
		return
	}
	req := assist.Request{
		DocumentID:  docID,
		ConnID:      c.ID(),
		Text:        text,
		Instruction: instruction,
	}
	requestID := e.assist.Submit(req, func(res assist.Result) {
		errMsg := ""
		if res.Err != nil {
			errMsg = res.Err.Error()
		}
		// Enqueue no-ops if the connection is gone; a late suggestion for a
		// departed client is dropped, not an error.
		c.Enqueue(protocol.Encode(protocol.NewSuggestion(res.RequestID, res.Suggestion, errMsg)))
	})
	e.log.Info("assist request submitted",
		zap.String("conn", c.ID()),
		zap.String("documentId", docID),
		zap.String("requestId", requestID))
}

// DocumentList answers with every document id the store knows.
func (e *Engine) DocumentList(ctx context.Context, c session.Conn) {
	ids, err := e.store.List(ctx)
	if err != nil {
		e.log.Error("document list failed", zap.Error(err))
		return
	}
	c.Enqueue(protocol.Encode(protocol.NewDocumentList(ids)))
}

// Disconnect removes c from its session set. Peers are not notified; they
// simply stop receiving the departed connection's deltas.
func (e *Engine) Disconnect(c session.Conn) {
	e.mu.Lock()
	delete(e.states, c.ID())
	e.mu.Unlock()

	docID, ok := e.leaveDocument(c)
	if !ok {
		return
	}
	e.log.Info("connection left",
		zap.String("conn", c.ID()), zap.String("documentId", docID))
}

// leaveDocument removes c from its session set. When the last connection on
// a document leaves, the backplane subscription and any strategy state for
// it are torn down.
func (e *Engine) leaveDocument(c session.Conn) (string, bool) {
	docID, remaining, ok := e.registry.Unregister(c)
	if !ok {
		return "", false
	}
	if remaining == 0 {
		e.mu.Lock()
		cancel := e.subs[docID]
		delete(e.subs, docID)
		e.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		e.strategy.Forget(docID)
	}
	return docID, true
}

// subscribeBackplane starts relaying remote processes' frames for docID to
// local connections.
func (e *Engine) subscribeBackplane(docID string) {
	if e.backplane == nil {
		return
	}
	cancel, err := e.backplane.Subscribe(docID, func(frame []byte) {
		// Remote edits feed the strategy too, or this process's view of the
		// document would fall behind the peers it is serving.
		var env protocol.Envelope
		if err := json.Unmarshal(frame, &env); err == nil && env.Type == protocol.ReceiveChanges {
			e.strategy.Observe(docID, env.Delta)
		}
		for _, peer := range e.registry.Peers(docID, "") {
			peer.Enqueue(frame)
		}
	})
	if err != nil {
		e.log.Warn("backplane subscribe failed", zap.String("documentId", docID), zap.Error(err))
		return
	}
	e.mu.Lock()
	e.subs[docID] = cancel
	e.mu.Unlock()
}
