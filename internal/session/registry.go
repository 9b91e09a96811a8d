// Package session tracks which connections are viewing which document.
// Pure bookkeeping: nothing here is persisted, and the registry is rebuilt
// from scratch on process restart.
package session

import "sync"

// Conn is the handle the registry holds for a connection. Enqueue must be
// non-blocking and must return false once the connection is closed.
type Conn interface {
	ID() string
	Enqueue(frame []byte) bool
}

// Registry maps document id -> set of connections viewing it. A connection
// belongs to at most one document.
type Registry struct {
	mu    sync.RWMutex
	byDoc map[string]map[string]Conn
	docOf map[string]string
}

func NewRegistry() *Registry {
	return &Registry{
		byDoc: make(map[string]map[string]Conn),
		docOf: make(map[string]string),
	}
}

// Register adds c to docID's session set. Returns the set's new size.
func (r *Registry) Register(docID string, c Conn) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.byDoc[docID]
	if !ok {
		set = make(map[string]Conn)
		r.byDoc[docID] = set
	}
	set[c.ID()] = c
	r.docOf[c.ID()] = docID
	return len(set)
}

// Unregister removes c from whatever session set it is in. Returns the
// document id it was viewing and the set's remaining size; ok is false if the
// connection was never registered.
func (r *Registry) Unregister(c Conn) (docID string, remaining int, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	docID, ok = r.docOf[c.ID()]
	if !ok {
		return "", 0, false
	}
	delete(r.docOf, c.ID())
	set := r.byDoc[docID]
	delete(set, c.ID())
	if len(set) == 0 {
		delete(r.byDoc, docID)
	}
	return docID, len(set), true
}

// Peers returns every connection viewing docID except the one with exceptID.
// Pass an empty exceptID to get the whole session set.
func (r *Registry) Peers(docID, exceptID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.byDoc[docID]
	peers := make([]Conn, 0, len(set))
	for id, c := range set {
		if id == exceptID {
			continue
		}
		peers = append(peers, c)
	}
	return peers
}

// DocumentOf reports which document a connection is registered under.
func (r *Registry) DocumentOf(c Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	docID, ok := r.docOf[c.ID()]
	return docID, ok
}
