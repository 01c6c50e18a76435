// Package orchestrator drives the evaluation control loop: poll a
// prompt, acquire a session, evaluate with bounded retries, persist
// the outcome, rotate sessions, repeat until the source exhausts or
// shutdown is requested.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/logging"
	"github.com/evalloop/evalloop/internal/session"
	"github.com/evalloop/evalloop/internal/shutdown"
)

// AutomationClient is the browser-side collaborator. Every call is
// potentially slow; the orchestrator only inspects the returned answer
// or the failure kind (eval.ErrAuthExpired, eval.ErrBrowserUnavailable).
type AutomationClient interface {
	// Initialize launches the client with the given session's stored
	// credentials and verifies it is logged in.
	Initialize(ctx context.Context, desc session.Descriptor) error
	// Evaluate submits the prompt and returns the scraped answer.
	Evaluate(ctx context.Context, prompt string) (*eval.Answer, error)
	// ResetConversation starts a fresh conversation in the same browser.
	ResetConversation(ctx context.Context) error
	// Ready reports whether the client is initialized and usable.
	Ready() bool
	// Close releases the browser. Safe to call multiple times.
	Close() error
}

// PromptSource yields prompts. Poll must not block unboundedly: it
// returns (nil, nil) when nothing is currently available.
type PromptSource interface {
	Poll(ctx context.Context) (*eval.Prompt, error)
	// Exhausted is true only for finite sources that are fully consumed.
	Exhausted() bool
	Close() error
}

// ResultSink records outcomes. Sinks absorb transient persistence
// failures internally; an error from Record is fatal to the run.
type ResultSink interface {
	Record(ctx context.Context, prompt *eval.Prompt, outcome *eval.Outcome) error
	Close() error
	Location() string
}

// State names the loop's current phase, mostly for logs and tests.
type State string

const (
	StatePolling      State = "polling"
	StateEvaluating   State = "evaluating"
	StatePersisting   State = "persisting"
	StateShuttingDown State = "shutting-down"
)

// Options bound the retry loop and polling cadence.
type Options struct {
	MaxAttempts  int           // attempts per prompt before the forced rotation
	PollInterval time.Duration // wait between empty polls
	IdleTimeout  time.Duration // close the browser after this much idle polling (0 disables)
}

// errShutdown signals a shutdown observed mid-evaluation; the outcome
// is still recorded before the loop stops cleanly.
var errShutdown = errors.New("shutdown requested")

// Orchestrator is the single-worker control loop. It owns one
// automation client and one session at a time; horizontal scale means
// running more processes against a claim-atomic source.
type Orchestrator struct {
	pool   *session.Pool
	client AutomationClient
	source PromptSource
	sink   ResultSink
	coord  *shutdown.Coordinator
	opts   Options

	state        State
	current      session.Descriptor
	haveSession  bool
	starved      bool
	processed    int
	succeeded    int
	teardownOnce sync.Once
}

// New wires an orchestrator. All collaborators are required.
func New(pool *session.Pool, client AutomationClient, source PromptSource, sink ResultSink, coord *shutdown.Coordinator, opts Options) (*Orchestrator, error) {
	if pool == nil || client == nil || source == nil || sink == nil || coord == nil {
		return nil, errors.New("orchestrator requires pool, client, source, sink and shutdown coordinator")
	}
	if opts.MaxAttempts < 1 {
		return nil, fmt.Errorf("max attempts must be >= 1, got %d", opts.MaxAttempts)
	}
	if opts.PollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be > 0, got %v", opts.PollInterval)
	}
	return &Orchestrator{
		pool:   pool,
		client: client,
		source: source,
		sink:   sink,
		coord:  coord,
		opts:   opts,
		state:  StatePolling,
	}, nil
}

// State returns the loop's current phase.
func (o *Orchestrator) State() State { return o.state }

// Run executes the loop until the source exhausts (batch mode), the
// shutdown signal is set (continuous mode), or a fatal condition makes
// forward progress impossible. A nil return means a clean stop.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.teardown()

	var idleSince time.Time
	for {
		o.state = StatePolling

		if o.coord.Requested() {
			logging.Info("Shutdown requested, stopping")
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		prompt, err := o.source.Poll(ctx)
		if err != nil {
			return fmt.Errorf("poll prompts: %w", err)
		}

		if prompt == nil {
			if o.source.Exhausted() {
				logging.Info("Prompt source exhausted, stopping")
				return nil
			}
			if idleSince.IsZero() {
				idleSince = time.Now()
			}
			// Long stretches without work: release the browser so the
			// session is not held open doing nothing.
			if o.opts.IdleTimeout > 0 && o.client.Ready() && time.Since(idleSince) >= o.opts.IdleTimeout {
				logging.Infof("Idle for %v, releasing browser", o.opts.IdleTimeout)
				o.closeClient()
			}
			if o.coord.Wait(o.opts.PollInterval) {
				logging.Info("Shutdown requested while polling, stopping")
				return nil
			}
			continue
		}
		idleSince = time.Time{}

		logging.Infof("Evaluating prompt %s", prompt.ID)
		o.state = StateEvaluating
		outcome, evalErr := o.evaluatePrompt(ctx, prompt)

		o.state = StatePersisting
		if err := o.sink.Record(ctx, prompt, outcome); err != nil {
			return fmt.Errorf("record outcome for prompt %s: %w", prompt.ID, err)
		}
		o.processed++
		if outcome.Success {
			o.succeeded++
			logging.Infof("Prompt %s succeeded with %d citation(s) after %d attempt(s)",
				prompt.ID, len(outcome.Citations), outcome.Attempts)
		} else {
			logging.Warnf("Prompt %s failed after %d attempt(s): %s", prompt.ID, outcome.Attempts, outcome.Error)
		}

		switch {
		case evalErr == nil:
			o.starved = false
		case errors.Is(evalErr, errShutdown):
			logging.Info("Shutdown requested during evaluation, stopping")
			return nil
		case errors.Is(evalErr, eval.ErrBrowserUnavailable):
			return fmt.Errorf("browser runtime unavailable: %w", evalErr)
		case errors.Is(evalErr, session.ErrPoolExhausted):
			// Degrade once; a second starved prompt in a row with no
			// valid sessions left means the loop cannot progress.
			if o.starved && o.pool.ValidCount() == 0 {
				return fmt.Errorf("no valid sessions remain: %w", evalErr)
			}
			o.starved = true
		default:
			return fmt.Errorf("evaluate prompt %s: %w", prompt.ID, evalErr)
		}
	}
}

// evaluatePrompt runs the attempt loop for one prompt. The returned
// outcome is always non-nil and always recorded; the error classifies
// conditions the loop itself must react to (starvation, dead browser,
// shutdown).
func (o *Orchestrator) evaluatePrompt(ctx context.Context, prompt *eval.Prompt) (*eval.Outcome, error) {
	attempt := 0
	rotationUsed := false

	for {
		if o.coord.Requested() {
			return eval.NewFailure(prompt.ID, attempt, "shutdown requested"), errShutdown
		}
		if err := ctx.Err(); err != nil {
			return eval.NewFailure(prompt.ID, attempt, "context cancelled"), errShutdown
		}

		fresh := false
		if !o.client.Ready() {
			if err := o.ensureClient(ctx); err != nil {
				if errors.Is(err, session.ErrPoolExhausted) {
					return eval.NewFailure(prompt.ID, attempt, "no valid sessions available"), err
				}
				return eval.NewFailure(prompt.ID, attempt, err.Error()), err
			}
			fresh = true
		}

		// Re-attempts in the same browser need a clean conversation; a
		// freshly initialized client already has one.
		if attempt > 0 && !fresh {
			if err := o.client.ResetConversation(ctx); err != nil {
				logging.Warnf("Reset conversation failed, recycling browser: %v", err)
				o.closeClient()
				attempt++
				verdict := eval.Decide(attempt, o.opts.MaxAttempts, false, rotationUsed)
				if verdict == eval.GiveUp {
					return eval.NewFailure(prompt.ID, attempt, "could not start a new conversation"), nil
				}
				if verdict == eval.RotateAndRetry {
					rotationUsed = true
				}
				continue
			}
		}

		attempt++
		logging.Infof("Attempt %d/%d for prompt %s (session %s)", attempt, o.opts.MaxAttempts, prompt.ID, o.current.ID)

		answer, err := o.client.Evaluate(ctx, prompt.Text)
		o.recordUsage()

		if err != nil {
			if errors.Is(err, eval.ErrAuthExpired) {
				logging.Warnf("Session %s expired during evaluation", o.current.ID)
				o.pool.MarkInvalid(o.current.ID)
				o.closeClient()
				if rotationUsed {
					return eval.NewFailure(prompt.ID, attempt, "session authentication expired"), nil
				}
				// Auth expiry consumes the one forced rotation; the
				// attempt counter does not reset.
				rotationUsed = true
				continue
			}
			// Timeouts and automation errors are soft failures: the
			// attempt simply produced no citations.
			logging.Warnf("Attempt %d for prompt %s failed: %v", attempt, prompt.ID, err)
			answer = nil
		}

		verdict := eval.Decide(attempt, o.opts.MaxAttempts, answer.HasCitations(), rotationUsed)
		logging.Debugf("Attempt %d verdict: %s", attempt, verdict)

		switch verdict {
		case eval.Succeed:
			return eval.NewSuccess(prompt.ID, answer, attempt), nil
		case eval.RetrySameSession:
			continue
		case eval.RotateAndRetry:
			logging.Infof("All %d attempt(s) exhausted, trying a fresh session", o.opts.MaxAttempts)
			rotationUsed = true
			o.closeClient()
			continue
		default: // eval.GiveUp
			return eval.NewFailure(prompt.ID, attempt, "no citations obtained"), nil
		}
	}
}

// ensureClient acquires a session and initializes the automation
// client, invalidating sessions whose stored credentials no longer
// authenticate and moving on to the next one.
func (o *Orchestrator) ensureClient(ctx context.Context) error {
	for {
		desc, err := o.pool.Acquire()
		if err != nil {
			return err
		}
		logging.Infof("Loading session %s", desc.ID)

		if err := o.client.Initialize(ctx, desc); err != nil {
			if errors.Is(err, eval.ErrAuthExpired) {
				logging.Warnf("Session %s rejected at login", desc.ID)
				o.pool.MarkInvalid(desc.ID)
				continue
			}
			return err
		}

		o.current = desc
		o.haveSession = true
		return nil
	}
}

// recordUsage charges the current session for one automation call and
// closes the client when the session just hit its rotation threshold,
// so the next acquire moves on.
func (o *Orchestrator) recordUsage() {
	if !o.haveSession {
		return
	}
	remaining, err := o.pool.RecordEvaluation(o.current.ID)
	if err != nil {
		logging.Warnf("Recording evaluation for session %s: %v", o.current.ID, err)
		return
	}
	logging.Debugf("Session %s has %d evaluation(s) remaining", o.current.ID, remaining)
	if remaining == 0 && o.client.Ready() {
		logging.Infof("Session %s exhausted, rotating", o.current.ID)
		o.closeClient()
	}
}

func (o *Orchestrator) closeClient() {
	if err := o.client.Close(); err != nil {
		logging.Warnf("Closing automation client: %v", err)
	}
	o.haveSession = false
}

// teardown closes collaborators in order, tolerating each failing
// independently. Runs exactly once.
func (o *Orchestrator) teardown() {
	o.teardownOnce.Do(func() {
		o.state = StateShuttingDown
		o.closeClient()
		if err := o.source.Close(); err != nil {
			logging.Warnf("Closing prompt source: %v", err)
		}
		if err := o.sink.Close(); err != nil {
			logging.Warnf("Closing result sink: %v", err)
		}
		logging.Infof("Processed %d prompt(s), %d succeeded. Results in %s",
			o.processed, o.succeeded, o.sink.Location())
	})
}
