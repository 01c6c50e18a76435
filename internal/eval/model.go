// Package eval defines the data model and attempt policy for prompt
// evaluations: what a prompt is, what an evaluation produced, and how
// many tries a prompt gets before the orchestrator gives up on it.
package eval

import "time"

// Prompt is a single unit of work obtained from a prompt source.
// EvaluationID, TopicID and ClaimedAt carry claim metadata when the
// prompt came from the evaluation API; they are zero for CSV prompts.
type Prompt struct {
	ID           string `json:"id"`
	Text         string `json:"text"`
	EvaluationID int64  `json:"evaluation_id,omitempty"`
	TopicID      int64  `json:"topic_id,omitempty"`
	ClaimedAt    string `json:"claimed_at,omitempty"`
}

// Citation is a source reference returned alongside an answer.
// Number is the extraction order on the page and is never serialized.
type Citation struct {
	URL    string `json:"url"`
	Text   string `json:"text"`
	Number int    `json:"-"`
}

// Answer is the fragment a single automation call produces: the
// response text and whatever citations could be scraped with it.
type Answer struct {
	Response  string
	Citations []Citation
}

// HasCitations reports whether the answer carries at least one citation.
func (a *Answer) HasCitations() bool {
	return a != nil && len(a.Citations) > 0
}

// Outcome is the final, immutable record for one prompt after the
// retry loop concludes. Attempts is the number of automation calls
// consumed, including the forced-rotation call when it was taken.
type Outcome struct {
	PromptID  string
	Response  string
	Citations []Citation
	Attempts  int
	Success   bool
	Error     string
	Timestamp time.Time
}

// NewSuccess builds a successful outcome from the answer that produced
// citations.
func NewSuccess(promptID string, answer *Answer, attempts int) *Outcome {
	return &Outcome{
		PromptID:  promptID,
		Response:  answer.Response,
		Citations: answer.Citations,
		Attempts:  attempts,
		Success:   true,
		Timestamp: time.Now(),
	}
}

// NewFailure builds a failed outcome with an empty response.
func NewFailure(promptID string, attempts int, reason string) *Outcome {
	return &Outcome{
		PromptID:  promptID,
		Attempts:  attempts,
		Success:   false,
		Error:     reason,
		Timestamp: time.Now(),
	}
}
