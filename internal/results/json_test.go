package results

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/logging"
)

func TestMain(m *testing.M) {
	logging.Disable()
	os.Exit(m.Run())
}

func readEntries(t *testing.T, path string) []map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read results: %v", err)
	}
	var entries []map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		t.Fatalf("parse results: %v", err)
	}
	return entries
}

func TestJSONSinkSuccess(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	sink := NewJSONSink(path)
	defer sink.Close()

	prompt := &eval.Prompt{ID: "p1", Text: "question"}
	outcome := &eval.Outcome{
		PromptID: "p1",
		Response: "answer text",
		Citations: []eval.Citation{
			{URL: "https://example.com/a", Text: "Source A"},
			{URL: "https://example.com/b", Text: "Source B"},
		},
		Attempts:  2,
		Success:   true,
		Timestamp: time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC),
	}

	if err := sink.Record(context.Background(), prompt, outcome); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0]["prompt_id"] != "p1" || entries[0]["prompt"] != "question" {
		t.Errorf("unexpected entry header: %+v", entries[0])
	}

	answers := entries[0]["answers"].([]any)
	if len(answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(answers))
	}
	answer := answers[0].(map[string]any)
	if answer["run_number"] != float64(2) || answer["success"] != true {
		t.Errorf("unexpected answer: %+v", answer)
	}
	if answer["timestamp"] != "2026-08-24T10:00:00Z" {
		t.Errorf("timestamp = %v, want RFC3339", answer["timestamp"])
	}
	if len(answer["citations"].([]any)) != 2 {
		t.Errorf("citations lost: %+v", answer)
	}
	if _, present := answer["error_message"]; present {
		t.Error("successful answer should omit error_message")
	}
}

func TestJSONSinkFailureCreatesEmptyEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	sink := NewJSONSink(path)
	defer sink.Close()

	prompt := &eval.Prompt{ID: "p2", Text: "question"}
	outcome := eval.NewFailure("p2", 4, "no citations after retries")

	if err := sink.Record(context.Background(), prompt, outcome); err != nil {
		t.Fatalf("Record: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if answers := entries[0]["answers"].([]any); len(answers) != 0 {
		t.Errorf("failure should not append answers: %+v", answers)
	}
}

func TestJSONSinkResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")

	first := NewJSONSink(path)
	prompt := &eval.Prompt{ID: "p1", Text: "question"}
	if err := first.Record(context.Background(), prompt, eval.NewSuccess("p1", &eval.Answer{
		Response:  "answer",
		Citations: []eval.Citation{{URL: "https://example.com", Text: "src"}},
	}, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	first.Close()

	// A second sink on the same file keeps earlier results and groups
	// new answers under the existing prompt entry.
	second := NewJSONSink(path)
	defer second.Close()
	if err := second.Record(context.Background(), prompt, eval.NewSuccess("p1", &eval.Answer{
		Response:  "another answer",
		Citations: []eval.Citation{{URL: "https://example.com/2", Text: "src2"}},
	}, 3)); err != nil {
		t.Fatalf("Record after resume: %v", err)
	}

	entries := readEntries(t, path)
	if len(entries) != 1 {
		t.Fatalf("resume should group by prompt, got %d entries", len(entries))
	}
	if answers := entries[0]["answers"].([]any); len(answers) != 2 {
		t.Fatalf("got %d answers after resume, want 2", len(answers))
	}
}

func TestJSONSinkCorruptedFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	if err := os.WriteFile(path, []byte("{{{not json"), 0644); err != nil {
		t.Fatalf("write corrupted file: %v", err)
	}

	sink := NewJSONSink(path)
	defer sink.Close()

	prompt := &eval.Prompt{ID: "p1", Text: "q"}
	if err := sink.Record(context.Background(), prompt, eval.NewFailure("p1", 1, "x")); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if entries := readEntries(t, path); len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
}

func TestJSONSinkClaimMetadataSerialized(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	sink := NewJSONSink(path)
	defer sink.Close()

	prompt := &eval.Prompt{
		ID: "p1", Text: "q",
		EvaluationID: 42, TopicID: 7, ClaimedAt: "2026-08-24T09:00:00Z",
	}
	if err := sink.Record(context.Background(), prompt, eval.NewSuccess("p1", &eval.Answer{
		Response:  "a",
		Citations: []eval.Citation{{URL: "u", Text: "t"}},
	}, 1)); err != nil {
		t.Fatalf("Record: %v", err)
	}

	answer := readEntries(t, path)[0]["answers"].([]any)[0].(map[string]any)
	if answer["evaluation_id"] != float64(42) || answer["topic_id"] != float64(7) {
		t.Errorf("claim metadata missing: %+v", answer)
	}
	if answer["claimed_at"] != "2026-08-24T09:00:00Z" {
		t.Errorf("claimed_at = %v", answer["claimed_at"])
	}
}

func TestJSONSinkCloseIdempotentAndRejectsRecord(t *testing.T) {
	sink := NewJSONSink(filepath.Join(t.TempDir(), "results.json"))

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	err := sink.Record(context.Background(), &eval.Prompt{ID: "p"}, eval.NewFailure("p", 1, "x"))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Record after close = %v, want ErrClosed", err)
	}
}
