// Package results implements the sinks evaluation outcomes are
// recorded to: a grouped JSON file, a local SQLite history database,
// and the remote evaluation API.
package results

import "errors"

// ErrClosed is returned by Record after a sink has been closed.
var ErrClosed = errors.New("result sink is closed")
