// Package protocol defines the wire messages exchanged over a sync
// connection. Every frame is a JSON envelope with a "type" discriminator;
// the remaining fields depend on the type. Delta and snapshot payloads are
// carried as raw JSON and never decoded on the relay path.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Event names. Client->server unless noted.
const (
	GetDocument    = "get-document"
	LoadDocument   = "load-document" // server->client
	SendChanges    = "send-changes"
	ReceiveChanges = "receive-changes" // server->client
	SaveDocument   = "save-document"
	TextSelection  = "text-selection"
	TextSuggestion = "text-suggestion" // server->client
	RequestDocList = "request-document-list"
	DocumentList   = "document-list" // server->client
)

var ErrUnknownType = errors.New("protocol: unknown message type")

// Envelope is the common frame shape. Only Type is guaranteed; which of the
// other fields are set depends on Type.
type Envelope struct {
	Type string `json:"type"`

	DocumentID string          `json:"documentId,omitempty"`
	Delta      json.RawMessage `json:"delta,omitempty"`
	Snapshot   json.RawMessage `json:"snapshot,omitempty"`

	// Assist fields. Text is the selected span, Changes the free-text
	// instruction typed into the prompt.
	Text      string `json:"text,omitempty"`
	Changes   string `json:"changes,omitempty"`
	RequestID string `json:"requestId,omitempty"`

	Suggestions string   `json:"suggestions,omitempty"`
	Error       string   `json:"error,omitempty"`
	Documents   []string `json:"documents,omitempty"`
}

// Decode parses a frame and checks the fields the given type requires.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("protocol: decode: %w", err)
	}
	switch env.Type {
	case GetDocument:
		if env.DocumentID == "" {
			return nil, errors.New("protocol: get-document without documentId")
		}
	case SendChanges:
		if env.DocumentID == "" || len(env.Delta) == 0 {
			return nil, errors.New("protocol: send-changes without documentId or delta")
		}
	case SaveDocument:
		if env.DocumentID == "" || len(env.Snapshot) == 0 {
			return nil, errors.New("protocol: save-document without documentId or snapshot")
		}
	case TextSelection:
		if env.DocumentID == "" {
			return nil, errors.New("protocol: text-selection without documentId")
		}
	case RequestDocList:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, env.Type)
	}
	return &env, nil
}

func Encode(env *Envelope) []byte {
	buf, err := json.Marshal(env)
	if err != nil {
		// Envelope contains only marshalable fields.
		panic(err)
	}
	return buf
}

// NewLoadDocument is the one-shot response to get-document.
func NewLoadDocument(docID string, snapshot json.RawMessage) *Envelope {
	return &Envelope{Type: LoadDocument, DocumentID: docID, Snapshot: snapshot}
}

// NewReceiveChanges relays a peer's delta.
func NewReceiveChanges(delta json.RawMessage) *Envelope {
	return &Envelope{Type: ReceiveChanges, Delta: delta}
}

// NewSuggestion carries an assist result; exactly one of suggestions or
// errMsg is set.
func NewSuggestion(requestID, suggestions, errMsg string) *Envelope {
	return &Envelope{Type: TextSuggestion, RequestID: requestID, Suggestions: suggestions, Error: errMsg}
}

func NewDocumentList(ids []string) *Envelope {
	return &Envelope{Type: DocumentList, Documents: ids}
}
