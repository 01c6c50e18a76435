// Package shutdown provides the process-wide cooperative shutdown
// signal: set at most once, observed by the orchestrator at its
// suspension points, never cleared.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/evalloop/evalloop/internal/logging"
)

// Coordinator is a monotonically-settable shutdown flag with an
// interruptible wait. Construct it at process start, Install to bind
// OS signals, Stop during teardown.
type Coordinator struct {
	done        chan struct{}
	once        sync.Once
	installOnce sync.Once
	sigCh       chan os.Signal
}

// New creates an unset coordinator.
func New() *Coordinator {
	return &Coordinator{done: make(chan struct{})}
}

// Install binds SIGINT and SIGTERM to the shutdown flag. Idempotent.
func (c *Coordinator) Install() {
	c.installOnce.Do(func() {
		c.sigCh = make(chan os.Signal, 1)
		signal.Notify(c.sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			sig, ok := <-c.sigCh
			if !ok {
				return
			}
			logging.Infof("Received %v, initiating graceful shutdown...", sig)
			c.Request()
		}()
	})
}

// Request sets the shutdown flag. Safe to call any number of times
// from any goroutine; only the first call has an effect.
func (c *Coordinator) Request() {
	c.once.Do(func() { close(c.done) })
}

// Requested reports whether shutdown has been requested.
func (c *Coordinator) Requested() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when shutdown is requested.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Wait blocks for d or until shutdown is requested, whichever comes
// first. It returns true when shutdown was requested.
func (c *Coordinator) Wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done:
		return true
	case <-timer.C:
		return c.Requested()
	}
}

// Stop unbinds the OS signal handlers. The flag itself is never reset.
func (c *Coordinator) Stop() {
	if c.sigCh != nil {
		signal.Stop(c.sigCh)
		close(c.sigCh)
		c.sigCh = nil
	}
}
