package prompts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evalloop/evalloop/internal/evalapi"
)

func newAPISource(t *testing.T, handler http.HandlerFunc) (*APISource, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := evalapi.NewClient(evalapi.Options{
		BaseURL:       srv.URL,
		AssistantName: "ChatGPT",
		PlanName:      "Plus",
		RetryAttempts: 1,
		RetryDelay:    time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewAPISource(client), srv
}

func TestAPISourcePollMapsClaim(t *testing.T) {
	s, _ := newAPISource(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"evaluation_id": 42,
			"prompt_id":     "p-9",
			"prompt_text":   "question",
			"topic_id":      5,
			"claimed_at":    "2026-08-24T09:00:00Z",
		})
	})
	defer s.Close()

	p, err := s.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if p.ID != "p-9" || p.Text != "question" {
		t.Errorf("unexpected prompt: %+v", p)
	}
	if p.EvaluationID != 42 || p.TopicID != 5 || p.ClaimedAt != "2026-08-24T09:00:00Z" {
		t.Errorf("claim metadata lost: %+v", p)
	}
}

func TestAPISourceEmptyQueue(t *testing.T) {
	s, _ := newAPISource(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"evaluation_id": nil, "prompt_id": nil, "prompt_text": nil,
		})
	})
	defer s.Close()

	p, err := s.Poll(context.Background())
	if err != nil || p != nil {
		t.Fatalf("Poll = (%v, %v), want (nil, nil)", p, err)
	}
	if s.Exhausted() {
		t.Error("API source must never report exhaustion")
	}
}

func TestAPISourceCloseIdempotent(t *testing.T) {
	s, _ := newAPISource(t, func(w http.ResponseWriter, r *http.Request) {})

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if _, err := s.Poll(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("Poll after close = %v, want ErrClosed", err)
	}
}
