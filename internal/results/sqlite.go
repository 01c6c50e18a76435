package results

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/evalloop/evalloop/internal/db"
	"github.com/evalloop/evalloop/internal/eval"
)

// SQLiteSink keeps a local history of every outcome in a SQLite
// database: one evaluations row per outcome, citations rows in
// extraction order.
type SQLiteSink struct {
	mu     sync.Mutex
	path   string
	db     *sql.DB
	closed bool
}

// NewSQLiteSink opens (and migrates) the database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	conn, err := db.Open(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteSink{path: path, db: conn}, nil
}

// Record inserts the outcome and its citations in one transaction.
func (s *SQLiteSink) Record(ctx context.Context, prompt *eval.Prompt, outcome *eval.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	rowID := uuid.NewString()
	var evaluationID, topicID any
	var claimedAt any
	if prompt.EvaluationID != 0 {
		evaluationID = prompt.EvaluationID
	}
	if prompt.TopicID != 0 {
		topicID = prompt.TopicID
	}
	if prompt.ClaimedAt != "" {
		claimedAt = prompt.ClaimedAt
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO evaluations (id, prompt_id, prompt_text, response, attempts, success, error_message, evaluation_id, topic_id, claimed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rowID, prompt.ID, prompt.Text, outcome.Response, outcome.Attempts,
		outcome.Success, outcome.Error, evaluationID, topicID, claimedAt,
		outcome.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}

	for i, c := range outcome.Citations {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO citations (id, evaluation_id, position, url, text)
			VALUES (?, ?, ?, ?, ?)`,
			uuid.NewString(), rowID, i+1, c.URL, c.Text,
		)
		if err != nil {
			return fmt.Errorf("insert citation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outcome: %w", err)
	}
	return nil
}

// Close closes the database. Safe to call multiple times.
func (s *SQLiteSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// Location returns the database path for logs.
func (s *SQLiteSink) Location() string { return s.path }
