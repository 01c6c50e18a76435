package eval

// Verdict is the attempt policy's decision after one automation call.
type Verdict int

const (
	// Succeed: citations were obtained, stop and record success.
	Succeed Verdict = iota
	// RetrySameSession: reset the conversation and try again with the
	// session currently held.
	RetrySameSession
	// RotateAndRetry: close the client, acquire a fresh session, and
	// take the single extra attempt this prompt is allowed.
	RotateAndRetry
	// GiveUp: record a failure outcome and move on.
	GiveUp
)

// String returns the verdict name for logs.
func (v Verdict) String() string {
	switch v {
	case Succeed:
		return "succeed"
	case RetrySameSession:
		return "retry-same-session"
	case RotateAndRetry:
		return "rotate-and-retry"
	case GiveUp:
		return "give-up"
	default:
		return "unknown"
	}
}

// Decide applies the retry rules for one completed attempt.
//
// attemptNumber is 1-based. rotationUsed reports whether this prompt
// already consumed its forced-rotation retry (either by reaching the
// attempt limit earlier or through an auth-expiry rotation), keeping
// that retry at most-once per prompt. The total number of automation
// calls per prompt is therefore bounded by maxAttempts+1.
func Decide(attemptNumber, maxAttempts int, hasCitations, rotationUsed bool) Verdict {
	if hasCitations {
		return Succeed
	}
	if attemptNumber < maxAttempts {
		return RetrySameSession
	}
	if !rotationUsed {
		return RotateAndRetry
	}
	return GiveUp
}
