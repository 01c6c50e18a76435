package eval

import "errors"

// Failure kinds surfaced by automation clients. The orchestrator
// dispatches on these with errors.Is; everything else from the client
// is treated as a soft failure for the current attempt.
var (
	// ErrAuthExpired means the session's stored credentials no longer
	// authenticate. The session must be invalidated and replaced.
	ErrAuthExpired = errors.New("session authentication expired")

	// ErrBrowserUnavailable means the browser runtime itself could not
	// be started. No session rotation can fix this.
	ErrBrowserUnavailable = errors.New("browser runtime unavailable")
)
