package prompts

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"

	"github.com/evalloop/evalloop/internal/eval"
	"github.com/evalloop/evalloop/internal/logging"
)

// CSVSource reads prompts from a CSV file with `id` and `prompt`
// columns. In batch mode the file is read once and the source reports
// exhaustion when every row has been consumed. In watch mode the file
// is tailed: appended rows become new prompts, and the source never
// reports exhaustion.
type CSVSource struct {
	mu sync.Mutex

	path     string
	watch    bool
	prompts  []eval.Prompt
	next     int
	fileSize int64
	closed   bool

	watcher *fsnotify.Watcher
	dirty   atomic.Bool
	done    chan struct{}
}

// NewCSVSource loads the file and, in watch mode, starts tailing it.
func NewCSVSource(path string, watch bool) (*CSVSource, error) {
	s := &CSVSource{path: path, watch: watch}
	if err := s.loadInitial(); err != nil {
		return nil, err
	}
	logging.Infof("Loaded %d prompts from %s", len(s.prompts), path)

	if watch {
		if err := s.startWatcher(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Poll returns the next prompt, or nil when none is currently
// available. In watch mode a nil result is temporary: rows appended
// later will be picked up by subsequent polls.
func (s *CSVSource) Poll(ctx context.Context) (*eval.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	if s.watch && s.dirty.Swap(false) {
		s.reloadAppended()
	}
	// The size probe catches appends the watcher missed (e.g. writes
	// via rename on platforms where the directory event is ambiguous).
	if s.watch && s.next >= len(s.prompts) {
		s.reloadAppended()
	}

	if s.next < len(s.prompts) {
		p := s.prompts[s.next]
		s.next++
		return &p, nil
	}
	return nil, nil
}

// Exhausted reports whether the source can never yield another prompt.
// A watched file is unbounded, so it never exhausts.
func (s *CSVSource) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watch {
		return false
	}
	return s.next >= len(s.prompts)
}

// Close stops the watcher. Safe to call multiple times.
func (s *CSVSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.watcher != nil {
		err := s.watcher.Close()
		<-s.done
		s.watcher = nil
		return err
	}
	return nil
}

func (s *CSVSource) loadInitial() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open prompts csv: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat prompts csv: %w", err)
	}
	s.fileSize = info.Size()

	prompts, err := parsePrompts(f, 0, true)
	if err != nil {
		return err
	}
	s.prompts = prompts
	return nil
}

// reloadAppended re-reads the file and appends rows past the ones
// already loaded. Malformed appended rows are skipped with a warning.
// Called with s.mu held.
func (s *CSVSource) reloadAppended() {
	info, err := os.Stat(s.path)
	if err != nil {
		logging.Warnf("Checking %s for new rows: %v", s.path, err)
		return
	}
	if info.Size() <= s.fileSize {
		return
	}

	f, err := os.Open(s.path)
	if err != nil {
		logging.Warnf("Re-reading %s: %v", s.path, err)
		return
	}
	defer f.Close()

	fresh, err := parsePrompts(f, len(s.prompts), false)
	if err != nil {
		logging.Warnf("Parsing appended rows in %s: %v", s.path, err)
		return
	}
	for _, p := range fresh {
		logging.Infof("Detected new prompt in CSV: %s", p.ID)
	}
	s.prompts = append(s.prompts, fresh...)
	s.fileSize = info.Size()
}

// parsePrompts reads CSV rows into prompts, skipping the first `skip`
// data rows. With strict=true a malformed row aborts the parse;
// otherwise it is skipped with a warning.
func parsePrompts(r io.Reader, skip int, strict bool) ([]eval.Prompt, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: csv file is empty", ErrMalformed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read csv header: %v", ErrMalformed, err)
	}

	idCol, promptCol := -1, -1
	for i, name := range header {
		switch name {
		case "id":
			idCol = i
		case "prompt":
			promptCol = i
		}
	}
	if idCol < 0 || promptCol < 0 {
		return nil, fmt.Errorf("%w: csv must have 'id' and 'prompt' columns, found %v", ErrMalformed, header)
	}

	var prompts []eval.Prompt
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			if strict {
				return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, row, err)
			}
			logging.Warnf("Skipping malformed csv row %d: %v", row, err)
			continue
		}
		if len(record) <= idCol || len(record) <= promptCol {
			if strict {
				return nil, fmt.Errorf("%w: row %d has %d columns", ErrMalformed, row, len(record))
			}
			logging.Warnf("Skipping short csv row %d", row)
			continue
		}
		if row-1 <= skip {
			continue
		}
		prompts = append(prompts, eval.Prompt{ID: record[idCol], Text: record[promptCol]})
	}
	return prompts, nil
}

func (s *CSVSource) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create csv watcher: %w", err)
	}
	// Watch the directory: editors replace files, which drops a watch
	// placed on the file itself.
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch csv directory: %w", err)
	}

	s.watcher = watcher
	s.done = make(chan struct{})
	target := filepath.Base(s.path)

	go func() {
		defer close(s.done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != target {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					s.dirty.Store(true)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnf("CSV watcher error: %v", err)
			}
		}
	}()

	logging.Infof("Watching %s for appended prompts", s.path)
	return nil
}
