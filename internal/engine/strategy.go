package engine

import (
	"encoding/json"
	"sync"

	"github.com/rohseh303/Paper/internal/document"
	"go.uber.org/zap"
)

// Strategy is the pluggable convergence policy. The engine always relays
// every change to the sender's peers; a strategy may additionally maintain a
// server-side view of the document so later joiners load fresher state than
// the last autosave.
type Strategy interface {
	// Seed installs the snapshot a document was loaded with.
	Seed(docID string, snapshot json.RawMessage)
	// Observe folds one relayed change into the server-side view.
	Observe(docID string, delta json.RawMessage)
	// Snapshot returns the server-side view, if the strategy keeps one.
	Snapshot(docID string) (json.RawMessage, bool)
	// Forget drops state once the last connection leaves the document.
	Forget(docID string)
}

// Relay is the default strategy: changes pass through untouched and no
// server-side document model exists. Convergence is delegated entirely to
// the editor widgets, and loads are served from the store.
type Relay struct{}

func (Relay) Seed(string, json.RawMessage)            {}
func (Relay) Observe(string, json.RawMessage)         {}
func (Relay) Snapshot(string) (json.RawMessage, bool) { return nil, false }
func (Relay) Forget(string)                           {}

// Converge composes every relayed change onto an in-memory snapshot, so
// get-document can serve state that includes edits the autosave timer has
// not flushed yet.
type Converge struct {
	log *zap.Logger

	mu   sync.Mutex
	docs map[string]document.Snapshot
}

func NewConverge(log *zap.Logger) *Converge {
	return &Converge{log: log, docs: make(map[string]document.Snapshot)}
}

func (c *Converge) Seed(docID string, snapshot json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.docs[docID]; ok {
		return
	}
	snap, err := document.Decode(snapshot)
	if err != nil {
		c.log.Warn("undecodable snapshot, seeding empty", zap.String("documentId", docID), zap.Error(err))
		snap = document.Empty()
	}
	c.docs[docID] = snap
}

func (c *Converge) Observe(docID string, raw json.RawMessage) {
	d, err := document.DecodeDelta(raw)
	if err != nil {
		c.log.Warn("undecodable delta, skipping", zap.String("documentId", docID), zap.Error(err))
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.docs[docID]
	if !ok {
		return
	}
	c.docs[docID] = snap.Apply(d)
}

func (c *Converge) Snapshot(docID string) (json.RawMessage, bool) {
	c.mu.Lock()
	snap, ok := c.docs[docID]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	raw, err := snap.Encode()
	if err != nil {
		c.log.Warn("unencodable snapshot", zap.String("documentId", docID), zap.Error(err))
		return nil, false
	}
	return raw, true
}

func (c *Converge) Forget(docID string) {
	c.mu.Lock()
	delete(c.docs, docID)
	c.mu.Unlock()
}
