package assist

import "context"

// Static returns a fixed suggestion. Used in tests and when the server runs
// without an API key.
type Static struct {
	Suggestion string
}

func (s Static) Suggest(ctx context.Context, _ Request) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return s.Suggestion, nil
}
