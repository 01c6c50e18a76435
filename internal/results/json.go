package results

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/logging"
)

// jsonEntry groups every answer produced for one prompt.
type jsonEntry struct {
	PromptID string       `json:"prompt_id"`
	Prompt   string       `json:"prompt"`
	Answers  []jsonAnswer `json:"answers"`
}

type jsonAnswer struct {
	RunNumber    int            `json:"run_number"`
	Response     string         `json:"response"`
	Citations    []jsonCitation `json:"citations"`
	Timestamp    string         `json:"timestamp"`
	Success      bool           `json:"success"`
	ErrorMessage string         `json:"error_message,omitempty"`
	EvaluationID int64          `json:"evaluation_id,omitempty"`
	TopicID      int64          `json:"topic_id,omitempty"`
	ClaimedAt    string         `json:"claimed_at,omitempty"`
}

type jsonCitation struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// JSONSink persists outcomes to a JSON file grouped by prompt. An
// existing file is loaded at construction so an interrupted batch can
// resume without losing earlier results; every Record writes the whole
// file eagerly for durability.
type JSONSink struct {
	mu     sync.Mutex
	path   string
	data   []*jsonEntry
	closed bool
}

// NewJSONSink creates the sink, loading any existing results file.
func NewJSONSink(path string) *JSONSink {
	s := &JSONSink{path: path}
	s.loadExisting()
	return s
}

func (s *JSONSink) loadExisting() {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return
	}
	if err := json.Unmarshal(raw, &s.data); err != nil {
		logging.Warnf("Could not load existing results from %s, starting fresh: %v", s.path, err)
		s.data = nil
		return
	}
	logging.Infof("Loaded %d existing entries from %s", len(s.data), s.path)
}

// Record persists one outcome. A failed outcome only ensures the
// prompt entry exists; a successful one appends an answer with the
// attempt count as its run number.
func (s *JSONSink) Record(ctx context.Context, prompt *eval.Prompt, outcome *eval.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	entry := s.findOrCreate(prompt)
	if outcome.Success {
		answer := jsonAnswer{
			RunNumber:    outcome.Attempts,
			Response:     outcome.Response,
			Citations:    make([]jsonCitation, 0, len(outcome.Citations)),
			Timestamp:    outcome.Timestamp.Format(time.RFC3339),
			Success:      true,
			EvaluationID: prompt.EvaluationID,
			TopicID:      prompt.TopicID,
			ClaimedAt:    prompt.ClaimedAt,
		}
		for _, c := range outcome.Citations {
			answer.Citations = append(answer.Citations, jsonCitation{URL: c.URL, Text: c.Text})
		}
		entry.Answers = append(entry.Answers, answer)
	} else {
		logging.Warnf("Saving empty result for prompt %s", prompt.ID)
	}

	return s.write()
}

func (s *JSONSink) findOrCreate(prompt *eval.Prompt) *jsonEntry {
	for _, e := range s.data {
		if e.PromptID == prompt.ID {
			return e
		}
	}
	entry := &jsonEntry{PromptID: prompt.ID, Prompt: prompt.Text, Answers: []jsonAnswer{}}
	s.data = append(s.data, entry)
	return entry
}

// write flushes the full data set to disk. Called with s.mu held.
func (s *JSONSink) write() error {
	if dir := filepath.Dir(s.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create results directory: %w", err)
		}
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	if err := os.WriteFile(s.path, raw, 0644); err != nil {
		return fmt.Errorf("write results to %s: %w", s.path, err)
	}
	return nil
}

// Close marks the sink closed. Data is already on disk. Safe to call
// multiple times.
func (s *JSONSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Location returns the output file path for logs.
func (s *JSONSink) Location() string { return s.path }
