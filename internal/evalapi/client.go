// Package evalapi provides a typed REST client for the remote
// evaluation API: claim a prompt (poll), submit an answer, or release
// a claim back for another worker. One client instance is shared by
// the API-backed prompt source and result sink.
package evalapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/evalloop/evalloop/internal/logging"
)

// Sentinel errors for the failure classes callers dispatch on.
var (
	// ErrRejected: the API returned a 4xx. The request will not be retried.
	ErrRejected = errors.New("evaluation api rejected request")
	// ErrServer: a 5xx or transport failure persisted through every retry.
	ErrServer = errors.New("evaluation api server error")
	// ErrMalformed: a 200 whose body could not be decoded as JSON.
	ErrMalformed = errors.New("evaluation api malformed response")
)

// Options configures a Client. Zero fields fall back to defaults.
type Options struct {
	BaseURL       string
	AssistantName string
	PlanName      string
	RetryAttempts int           // attempts for 5xx/transport failures (default 3)
	RetryDelay    time.Duration // wait between retries (default 5s)
	Timeout       time.Duration // per-request timeout (default 30s)
}

// Client communicates with the evaluation API.
type Client struct {
	baseURL       string
	assistantName string
	planName      string
	retryAttempts int
	retryDelay    time.Duration
	httpClient    *http.Client
}

// NewClient validates options and builds a client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("api base url cannot be empty")
	}
	if opts.AssistantName == "" || opts.PlanName == "" {
		return nil, fmt.Errorf("assistant name and plan name are required")
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 5 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		baseURL:       strings.TrimRight(opts.BaseURL, "/"),
		assistantName: opts.AssistantName,
		planName:      opts.PlanName,
		retryAttempts: opts.RetryAttempts,
		retryDelay:    opts.RetryDelay,
		httpClient:    &http.Client{Timeout: opts.Timeout},
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// --------------------------------------------------------------------------
// Poll
// --------------------------------------------------------------------------

type pollRequest struct {
	AssistantName string `json:"assistant_name"`
	PlanName      string `json:"plan_name"`
}

// PollResponse is one claimed evaluation. All-null fields mean the
// queue had nothing to hand out.
type PollResponse struct {
	EvaluationID *int64  `json:"evaluation_id"`
	PromptID     *string `json:"prompt_id"`
	PromptText   *string `json:"prompt_text"`
	TopicID      *int64  `json:"topic_id"`
	ClaimedAt    *string `json:"claimed_at"`
}

// Empty reports whether the poll response carried no claim.
func (r *PollResponse) Empty() bool {
	return r.EvaluationID == nil && r.PromptID == nil && r.PromptText == nil
}

// Poll claims the next pending evaluation. A nil response with nil
// error means nothing was available.
func (c *Client) Poll(ctx context.Context) (*PollResponse, error) {
	req := pollRequest{AssistantName: c.assistantName, PlanName: c.planName}

	var resp PollResponse
	if err := c.postJSON(ctx, "/evaluations/api/v1/poll", req, &resp); err != nil {
		return nil, err
	}
	if resp.Empty() {
		return nil, nil
	}
	if resp.PromptID == nil || resp.PromptText == nil {
		return nil, fmt.Errorf("%w: poll carried evaluation_id without prompt", ErrMalformed)
	}
	return &resp, nil
}

// --------------------------------------------------------------------------
// Submit
// --------------------------------------------------------------------------

// SubmitCitation is the wire form of one citation.
type SubmitCitation struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// SubmitAnswer is the wire form of a successful evaluation.
type SubmitAnswer struct {
	Response  string           `json:"response"`
	Citations []SubmitCitation `json:"citations"`
	Timestamp string           `json:"timestamp"`
}

type submitRequest struct {
	EvaluationID int64        `json:"evaluation_id"`
	Answer       SubmitAnswer `json:"answer"`
}

// Submit uploads the answer for a claimed evaluation.
func (c *Client) Submit(ctx context.Context, evaluationID int64, answer SubmitAnswer) error {
	if answer.Citations == nil {
		answer.Citations = []SubmitCitation{}
	}
	req := submitRequest{EvaluationID: evaluationID, Answer: answer}
	var resp json.RawMessage
	return c.postJSON(ctx, "/evaluations/api/v1/submit", req, &resp)
}

// --------------------------------------------------------------------------
// Release
// --------------------------------------------------------------------------

// DefaultFailureReason is used when a release has no specific cause.
const DefaultFailureReason = "evaluation failed without specific reason"

type releaseRequest struct {
	EvaluationID  int64  `json:"evaluation_id"`
	MarkAsFailed  bool   `json:"mark_as_failed"`
	FailureReason string `json:"failure_reason"`
}

// Release returns a claimed evaluation marked as failed. It is a
// single best-effort request: the caller logs errors and moves on,
// because the server re-offers unreleased claims after a lease expiry
// anyway.
func (c *Client) Release(ctx context.Context, evaluationID int64, reason string) error {
	if reason == "" {
		reason = DefaultFailureReason
	}
	req := releaseRequest{EvaluationID: evaluationID, MarkAsFailed: true, FailureReason: reason}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal release request: %w", err)
	}
	resp, err := c.doOnce(ctx, "/evaluations/api/v1/release", body)
	if err != nil {
		return fmt.Errorf("release request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("release returned %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// --------------------------------------------------------------------------
// Transport
// --------------------------------------------------------------------------

// postJSON sends a JSON POST with bounded retries on 5xx and transport
// failures, then decodes the response into dest.
func (c *Client) postJSON(ctx context.Context, path string, reqBody, dest any) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		resp, err := c.doOnce(ctx, path, body)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			logging.Warnf("Request to %s failed (attempt %d/%d): %v", path, attempt, c.retryAttempts, err)
		} else {
			done, err := c.consume(resp, path, dest)
			if done {
				return err
			}
			lastErr = err
			logging.Warnf("Request to %s failed (attempt %d/%d): %v", path, attempt, c.retryAttempts, err)
		}

		if attempt < c.retryAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay):
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrServer, lastErr)
}

// consume reads one response. done=false means the failure is
// retryable (5xx).
func (c *Client) consume(resp *http.Response, path string, dest any) (done bool, err error) {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		b, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, string(b))
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(resp.Body)
		return true, fmt.Errorf("%w: %s returned %d: %s", ErrRejected, path, resp.StatusCode, string(b))
	}

	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return true, fmt.Errorf("%w: decode %s response: %v", ErrMalformed, path, err)
		}
	}
	return true, nil
}

func (c *Client) doOnce(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}
