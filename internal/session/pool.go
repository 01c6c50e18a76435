// Package session manages the pool of pre-authenticated browser
// sessions. Each session is a Playwright storage-state JSON file; the
// pool hands them out round-robin and rotates them after a configured
// number of evaluations so no single account absorbs all the load.
package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/evalloop/evalloop/internal/logging"
)

// ErrPoolExhausted is returned by Acquire when no valid session remains.
var ErrPoolExhausted = errors.New("no valid sessions available")

// Descriptor describes one session in the pool. The pool owns all
// mutation; callers receive value copies.
type Descriptor struct {
	ID         string
	Path       string
	UsageCount int
	MaxUsage   int
	Valid      bool
}

// Remaining returns how many evaluations this descriptor can still
// serve before rotation.
func (d Descriptor) Remaining() int {
	r := d.MaxUsage - d.UsageCount
	if r < 0 {
		return 0
	}
	return r
}

// NeedsRotation reports whether the descriptor reached its usage limit.
func (d Descriptor) NeedsRotation() bool {
	return d.UsageCount >= d.MaxUsage
}

// Pool hands out sessions round-robin and tracks per-session usage.
// A single orchestrator drives one pool, but the mutation surface is
// guarded so a pool shared across workers stays consistent.
type Pool struct {
	mu     sync.Mutex
	byID   map[string]*Descriptor
	order  []string
	cursor int
}

// NewPool builds a pool from descriptors in insertion order.
func NewPool(descriptors []Descriptor) (*Pool, error) {
	if len(descriptors) == 0 {
		return nil, errors.New("at least one session is required")
	}
	p := &Pool{byID: make(map[string]*Descriptor, len(descriptors))}
	for i := range descriptors {
		d := descriptors[i]
		if _, dup := p.byID[d.ID]; dup {
			return nil, fmt.Errorf("duplicate session id %q", d.ID)
		}
		p.byID[d.ID] = &d
		p.order = append(p.order, d.ID)
	}
	return p, nil
}

// LoadDir builds a pool from the *.json storage-state files in dir,
// sorted by name. The file stem becomes the session id.
func LoadDir(dir string, perSessionRuns int) (*Pool, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("sessions directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sessions path is not a directory: %s", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("scan sessions directory: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no .json session files in %s", dir)
	}
	sort.Strings(matches)

	descriptors := make([]Descriptor, 0, len(matches))
	for _, path := range matches {
		id := strings.TrimSuffix(filepath.Base(path), ".json")
		descriptors = append(descriptors, Descriptor{
			ID:       id,
			Path:     path,
			MaxUsage: perSessionRuns,
			Valid:    true,
		})
	}

	pool, err := NewPool(descriptors)
	if err != nil {
		return nil, err
	}
	logging.Infof("Loaded %d session(s) from %s", len(descriptors), dir)
	for i, d := range descriptors {
		logging.Infof("  %d. %s", i+1, d.ID)
	}
	return pool, nil
}

// Acquire returns the next usable session in rotation order. The usage
// counter is not touched; call RecordEvaluation after each automation
// call. When every valid session has hit its usage limit the one under
// the cursor is recycled (usage reset to zero) so a count-based
// rotation cycle never starves. Fails with ErrPoolExhausted only when
// zero valid sessions remain.
func (p *Pool) Acquire() (Descriptor, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for range p.order {
		d := p.byID[p.order[p.cursor]]
		if d.Valid {
			if d.NeedsRotation() {
				// Cycled back to an exhausted session: reset and reuse.
				d.UsageCount = 0
			}
			return *d, nil
		}
		p.cursor = (p.cursor + 1) % len(p.order)
	}
	return Descriptor{}, ErrPoolExhausted
}

// RecordEvaluation increments usage for the named session and returns
// how many evaluations remain before rotation. Reaching zero advances
// the cursor so the next Acquire moves on.
func (p *Pool) RecordEvaluation(id string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.byID[id]
	if !ok {
		return 0, fmt.Errorf("unknown session: %s", id)
	}
	d.UsageCount++
	remaining := d.Remaining()
	if remaining == 0 {
		p.cursor = (p.cursor + 1) % len(p.order)
	}
	return remaining, nil
}

// MarkInvalid excludes the named session from all future acquires and
// advances the cursor past it. Unknown ids are ignored.
func (p *Pool) MarkInvalid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.byID[id]
	if !ok {
		return
	}
	if d.Valid {
		d.Valid = false
		logging.Warnf("Session %s marked invalid (%d valid remaining)", id, p.validCountLocked())
	}
	p.cursor = (p.cursor + 1) % len(p.order)
}

// ValidCount returns the number of sessions still usable.
func (p *Pool) ValidCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.validCountLocked()
}

func (p *Pool) validCountLocked() int {
	n := 0
	for _, d := range p.byID {
		if d.Valid {
			n++
		}
	}
	return n
}

// Size returns the total number of sessions, valid or not.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
