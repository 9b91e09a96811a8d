// Package document models document content as Quill deltas. A snapshot is
// the full materialized state (a delta that only inserts); applying a change
// is delta composition.
package document

import (
	"encoding/json"
	"fmt"

	"github.com/fmpwizard/go-quilljs-delta/delta"
)

// EmptyJSON is the snapshot of a document nobody has typed in yet, in the
// wire shape Quill produces.
var EmptyJSON = json.RawMessage(`{"ops":[]}`)

// Snapshot is the full content state of a document at a point in time.
type Snapshot struct {
	d delta.Delta
}

func Empty() Snapshot {
	return Snapshot{d: *delta.New(nil)}
}

func FromDelta(d delta.Delta) Snapshot {
	return Snapshot{d: d}
}

// Decode parses a snapshot from its wire form.
func Decode(raw []byte) (Snapshot, error) {
	var d delta.Delta
	if err := json.Unmarshal(raw, &d); err != nil {
		return Snapshot{}, fmt.Errorf("document: decode snapshot: %w", err)
	}
	return Snapshot{d: d}, nil
}

// DecodeDelta parses a change from its wire form.
func DecodeDelta(raw []byte) (delta.Delta, error) {
	var d delta.Delta
	if err := json.Unmarshal(raw, &d); err != nil {
		return delta.Delta{}, fmt.Errorf("document: decode delta: %w", err)
	}
	return d, nil
}

// Apply folds a change into the snapshot. Applying A then B is equivalent to
// applying Compose(A, B); deletions past the end truncate rather than fail,
// per quill-delta semantics.
func (s Snapshot) Apply(change delta.Delta) Snapshot {
	return Snapshot{d: *s.d.Compose(change)}
}

// Compose combines two changes into one equivalent change.
func Compose(a, b delta.Delta) delta.Delta {
	return *a.Compose(b)
}

func (s Snapshot) Delta() delta.Delta {
	return s.d
}

func (s Snapshot) Len() int {
	return s.d.Length()
}

// Encode renders the snapshot in its wire form.
func (s Snapshot) Encode() (json.RawMessage, error) {
	buf, err := json.Marshal(s.d)
	if err != nil {
		return nil, fmt.Errorf("document: encode snapshot: %w", err)
	}
	return buf, nil
}
