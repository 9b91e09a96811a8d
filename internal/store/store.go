// Package store persists document snapshots keyed by document id.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned by Load for a document id the store has never seen.
var ErrNotFound = errors.New("store: document not found")

// Store is the document store. Save is an unconditional overwrite: the last
// writer wins, with no version check. Snapshots are opaque JSON in the Quill
// delta shape.
type Store interface {
	// Load returns the current snapshot for id, or ErrNotFound.
	Load(ctx context.Context, id string) (json.RawMessage, error)
	// Save overwrites the snapshot for id, creating the document if needed.
	Save(ctx context.Context, id string, snapshot json.RawMessage) error
	// List enumerates every known document id.
	List(ctx context.Context) ([]string, error)
	Close() error
}
