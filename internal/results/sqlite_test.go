package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/evalloop/evalloop/internal/eval"
)

func newSQLiteSink(t *testing.T) *SQLiteSink {
	t.Helper()
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink
}

func TestSQLiteSinkRoundTrip(t *testing.T) {
	sink := newSQLiteSink(t)

	prompt := &eval.Prompt{ID: "p1", Text: "question", EvaluationID: 42}
	outcome := &eval.Outcome{
		PromptID: "p1",
		Response: "answer",
		Citations: []eval.Citation{
			{URL: "https://example.com/a", Text: "Source A"},
			{URL: "https://example.com/b", Text: "Source B"},
		},
		Attempts:  2,
		Success:   true,
		Timestamp: time.Now(),
	}
	if err := sink.Record(context.Background(), prompt, outcome); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var rowID, promptText string
	var attempts int
	var success bool
	err := sink.db.QueryRow(
		"SELECT id, prompt_text, attempts, success FROM evaluations WHERE prompt_id = ?", "p1",
	).Scan(&rowID, &promptText, &attempts, &success)
	if err != nil {
		t.Fatalf("query evaluation: %v", err)
	}
	if promptText != "question" || attempts != 2 || !success {
		t.Errorf("unexpected row: %s %d %v", promptText, attempts, success)
	}

	rows, err := sink.db.Query(
		"SELECT position, url FROM citations WHERE evaluation_id = ? ORDER BY position", rowID,
	)
	if err != nil {
		t.Fatalf("query citations: %v", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var pos int
		var url string
		if err := rows.Scan(&pos, &url); err != nil {
			t.Fatalf("scan citation: %v", err)
		}
		urls = append(urls, url)
	}
	if len(urls) != 2 || urls[0] != "https://example.com/a" {
		t.Errorf("citations out of order or missing: %v", urls)
	}
}

func TestSQLiteSinkRecordsFailures(t *testing.T) {
	sink := newSQLiteSink(t)

	prompt := &eval.Prompt{ID: "p2", Text: "q"}
	if err := sink.Record(context.Background(), prompt, eval.NewFailure("p2", 4, "no citations")); err != nil {
		t.Fatalf("Record: %v", err)
	}

	var success bool
	var errMsg string
	err := sink.db.QueryRow(
		"SELECT success, error_message FROM evaluations WHERE prompt_id = ?", "p2",
	).Scan(&success, &errMsg)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if success || errMsg != "no citations" {
		t.Errorf("failure row = (%v, %q)", success, errMsg)
	}
}

func TestSQLiteSinkCloseIdempotent(t *testing.T) {
	sink, err := NewSQLiteSink(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewSQLiteSink: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	err = sink.Record(context.Background(), &eval.Prompt{ID: "p"}, eval.NewFailure("p", 1, "x"))
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("Record after close = %v, want ErrClosed", err)
	}
}
