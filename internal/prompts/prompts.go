// Package prompts implements the prompt sources the orchestrator can
// pull work from: a CSV file (one-shot batch or tail-watched) and the
// remote evaluation API.
package prompts

import "errors"

var (
	// ErrClosed is returned by Poll after a source has been closed.
	ErrClosed = errors.New("prompt source is closed")
	// ErrMalformed is returned when source data cannot be parsed.
	ErrMalformed = errors.New("malformed prompt data")
)
