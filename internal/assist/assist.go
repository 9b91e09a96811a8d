// Package assist implements the suggestion sub-protocol: a selected span and
// a free-text instruction go in, a rewritten suggestion comes back to the
// requesting connection only.
package assist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Request is one suggestion request. ConnID identifies the originating
// connection; the result is delivered there and nowhere else.
type Request struct {
	ID          string
	DocumentID  string
	ConnID      string
	Text        string
	Instruction string
}

// Result is the outcome of a request: either Suggestion or Err is set.
type Result struct {
	RequestID  string
	Suggestion string
	Err        error
}

// Worker computes a suggestion. Implementations must honor ctx cancellation.
type Worker interface {
	Suggest(ctx context.Context, req Request) (string, error)
}

const DefaultTimeout = 30 * time.Second

// Manager runs assist requests asynchronously with a per-request deadline.
// A request that fails or times out produces a Result carrying the error
// rather than disappearing. Concurrent requests from one connection are not
// deduplicated; each gets its own id and its own delivery.
type Manager struct {
	worker  Worker
	timeout time.Duration
	log     *zap.Logger
}

func NewManager(worker Worker, timeout time.Duration, log *zap.Logger) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{worker: worker, timeout: timeout, log: log}
}

// Submit assigns the request an id and computes it in the background,
// calling deliver exactly once from the worker goroutine. Deliver must cope
// with the originating connection being gone by then.
func (m *Manager) Submit(req Request, deliver func(Result)) string {
	req.ID = uuid.NewString()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		defer cancel()
		suggestion, err := m.worker.Suggest(ctx, req)
		if err != nil {
			m.log.Warn("assist request failed",
				zap.String("requestId", req.ID),
				zap.String("documentId", req.DocumentID),
				zap.Error(err))
			deliver(Result{RequestID: req.ID, Err: err})
			return
		}
		deliver(Result{RequestID: req.ID, Suggestion: suggestion})
	}()
	return req.ID
}
