package prompts

import (
	"context"
	"sync"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/evalapi"
)

// APISource claims prompts from the remote evaluation API. The server
// guarantees each evaluation is handed to at most one worker, which is
// what lets several evalloop processes share one queue.
type APISource struct {
	mu     sync.Mutex
	client *evalapi.Client
	closed bool
}

// NewAPISource wraps an evaluation API client as a prompt source.
func NewAPISource(client *evalapi.Client) *APISource {
	return &APISource{client: client}
}

// Poll claims the next pending evaluation. A nil prompt with nil error
// means the queue is currently empty.
func (s *APISource) Poll(ctx context.Context) (*eval.Prompt, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	resp, err := s.client.Poll(ctx)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		return nil, nil
	}

	p := &eval.Prompt{
		ID:   *resp.PromptID,
		Text: *resp.PromptText,
	}
	if resp.EvaluationID != nil {
		p.EvaluationID = *resp.EvaluationID
	}
	if resp.TopicID != nil {
		p.TopicID = *resp.TopicID
	}
	if resp.ClaimedAt != nil {
		p.ClaimedAt = *resp.ClaimedAt
	}
	return p, nil
}

// Exhausted is always false: the remote queue is unbounded.
func (s *APISource) Exhausted() bool { return false }

// Close marks the source closed. Safe to call multiple times.
func (s *APISource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
