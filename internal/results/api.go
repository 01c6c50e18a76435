package results

import (
	"context"
	"sync"
	"time"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/evalapi"
	"github.com/evalloop/evalloop/internal/logging"
)

// APISink reports outcomes back to the evaluation API: successes are
// submitted as answers, failures release the claim so another worker
// (or a later run) can take it. Prompts that never carried a claim are
// skipped with a warning.
type APISink struct {
	mu     sync.Mutex
	client *evalapi.Client
	closed bool
}

// NewAPISink wraps an evaluation API client as a result sink.
func NewAPISink(client *evalapi.Client) *APISink {
	return &APISink{client: client}
}

// Record submits a success or releases a failed claim. The client has
// already retried transient submit failures internally; an error here
// is fatal to the run. Release errors are only logged: the server
// re-offers expired claims on its own.
func (s *APISink) Record(ctx context.Context, prompt *eval.Prompt, outcome *eval.Outcome) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if prompt.EvaluationID == 0 {
		logging.Warnf("Prompt %s has no evaluation id, skipping API record", prompt.ID)
		return nil
	}

	if outcome.Success {
		answer := evalapi.SubmitAnswer{
			Response:  outcome.Response,
			Citations: make([]evalapi.SubmitCitation, 0, len(outcome.Citations)),
			Timestamp: outcome.Timestamp.Format(time.RFC3339),
		}
		for _, c := range outcome.Citations {
			answer.Citations = append(answer.Citations, evalapi.SubmitCitation{URL: c.URL, Text: c.Text})
		}
		return s.client.Submit(ctx, prompt.EvaluationID, answer)
	}

	if err := s.client.Release(ctx, prompt.EvaluationID, outcome.Error); err != nil {
		logging.Warnf("Releasing evaluation %d failed (non-critical): %v", prompt.EvaluationID, err)
	}
	return nil
}

// Close marks the sink closed. Safe to call multiple times.
func (s *APISink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Location returns the API base URL for logs.
func (s *APISink) Location() string { return s.client.BaseURL() }
