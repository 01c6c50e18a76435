package prompts

import (
	"context"
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

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prompts.csv")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	return path
}

func drain(t *testing.T, s *CSVSource) []eval.Prompt {
	t.Helper()
	var out []eval.Prompt
	for {
		p, err := s.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if p == nil {
			return out
		}
		out = append(out, *p)
	}
}

func TestCSVBatch(t *testing.T) {
	path := writeCSV(t, "id,prompt\n1,What is Go?\n2,What is Rust?\n")

	s, err := NewCSVSource(path, false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	defer s.Close()

	if s.Exhausted() {
		t.Fatal("source with pending prompts should not be exhausted")
	}

	got := drain(t, s)
	if len(got) != 2 {
		t.Fatalf("drained %d prompts, want 2", len(got))
	}
	if got[0].ID != "1" || got[0].Text != "What is Go?" {
		t.Errorf("unexpected first prompt: %+v", got[0])
	}
	if !s.Exhausted() {
		t.Error("batch source should be exhausted after draining")
	}
}

func TestCSVExtraColumnsIgnored(t *testing.T) {
	path := writeCSV(t, "topic,id,prompt,notes\nx,7,question text,y\n")

	s, err := NewCSVSource(path, false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	defer s.Close()

	got := drain(t, s)
	if len(got) != 1 || got[0].ID != "7" || got[0].Text != "question text" {
		t.Fatalf("unexpected prompts: %+v", got)
	}
}

func TestCSVMissingColumns(t *testing.T) {
	path := writeCSV(t, "name,question\na,b\n")
	if _, err := NewCSVSource(path, false); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestCSVEmptyFile(t *testing.T) {
	path := writeCSV(t, "")
	if _, err := NewCSVSource(path, false); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestCSVMissingFile(t *testing.T) {
	if _, err := NewCSVSource(filepath.Join(t.TempDir(), "absent.csv"), false); err == nil {
		t.Fatal("missing file should fail")
	}
}

func TestCSVPollAfterClose(t *testing.T) {
	path := writeCSV(t, "id,prompt\n1,q\n")
	s, err := NewCSVSource(path, false)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}

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

func TestCSVWatchPicksUpAppendedRows(t *testing.T) {
	path := writeCSV(t, "id,prompt\n1,first\n")

	s, err := NewCSVSource(path, true)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	defer s.Close()

	got := drain(t, s)
	if len(got) != 1 {
		t.Fatalf("initial drain got %d prompts, want 1", len(got))
	}
	if s.Exhausted() {
		t.Fatal("watched source must never report exhaustion")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	if _, err := f.WriteString("2,second\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := s.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if p != nil {
			if p.ID != "2" || p.Text != "second" {
				t.Fatalf("unexpected appended prompt: %+v", p)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("appended row never surfaced")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestCSVWatchSkipsMalformedAppendedRows(t *testing.T) {
	path := writeCSV(t, "id,prompt\n1,first\n")

	s, err := NewCSVSource(path, true)
	if err != nil {
		t.Fatalf("NewCSVSource: %v", err)
	}
	defer s.Close()

	drain(t, s)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatalf("open for append: %v", err)
	}
	// One short row, then a good one.
	if _, err := f.WriteString("only-one-column\n3,third\n"); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.Close()

	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := s.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if p != nil {
			if p.ID != "3" {
				t.Fatalf("unexpected prompt after malformed row: %+v", p)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("good appended row never surfaced")
		}
		time.Sleep(20 * time.Millisecond)
	}
}
