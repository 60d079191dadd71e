package pigeon

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns the durable task list. It keeps an in-memory mirror of the
// backing file and rewrites the whole file synchronously on every mutation,
// so a crash between calls loses at most the in-flight mutation, never
// prior state.
//
// All methods are safe for concurrent use; the worker loop, the dispatcher
// and transport handler goroutines all reach the store.
type Store struct {
	mu      sync.Mutex
	path    string
	tasks   []*Task
	encoder Encoder
	log     Logger
}

// NewStore opens the task store backed by the given file. A missing,
// unreadable or corrupt backing file is treated as an empty store and
// logged, not returned as an error: availability is preferred over
// alerting on corruption here.
func NewStore(path string, log Logger) *Store {
	if log == nil {
		log = NewFmtLogger()
	}
	s := &Store{path: path, encoder: &JSONEncoder{}, log: log}
	s.load()
	return s
}

func (s *Store) load() {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warnf("store: cannot read %s, starting empty: %v", s.path, err)
		}
		return
	}
	var tasks []*Task
	if err := s.encoder.Decode(data, &tasks); err != nil {
		s.log.Warnf("store: corrupt task file %s, starting empty: %v", s.path, err)
		return
	}
	s.tasks = tasks
}

// flush rewrites the full task list to disk. Callers must hold s.mu.
func (s *Store) flush() error {
	data, err := s.encoder.Encode(s.tasks)
	if err != nil {
		return fmt.Errorf("pigeon: encode task list: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("pigeon: create store dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("pigeon: write task file: %w", err)
	}
	return nil
}

// Add constructs a pending task with a fresh id and persists it immediately.
// It returns a copy of the new record.
func (s *Store) Add(description string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Task{
		ID:          uuid.NewString(),
		Description: description,
		Status:      StatusPending,
		CreatedAt:   time.Now().UnixMilli(),
	}
	s.tasks = append(s.tasks, t)
	if err := s.flush(); err != nil {
		return *t, err
	}
	return *t, nil
}

// Next returns a copy of the oldest-inserted pending task, or false when no
// task is pending. It never mutates state.
func (s *Store) Next() (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tasks {
		if t.Status == StatusPending {
			return *t, true
		}
	}
	return Task{}, false
}

// MarkRunning transitions a pending task to running. An absent id is a
// no-op, not an error: the caller is expected to have just obtained the id
// from Next.
func (s *Store) MarkRunning(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(id)
	if t == nil {
		return nil
	}
	if t.Status.Final() {
		return ErrFinalState
	}
	if t.Status != StatusPending {
		return nil
	}
	t.Status = StatusRunning
	return s.flush()
}

// Complete transitions a running task to done, recording its result.
func (s *Store) Complete(id, result string) error {
	return s.finish(id, StatusDone, result)
}

// Fail transitions a running task to failed, recording the error message.
func (s *Store) Fail(id, errMsg string) error {
	return s.finish(id, StatusFailed, errMsg)
}

func (s *Store) finish(id string, status Status, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := s.find(id)
	if t == nil {
		return ErrTaskNotFound
	}
	if t.Status.Final() {
		return ErrFinalState
	}
	if t.Status != StatusRunning {
		return ErrNotRunning
	}
	t.Status = status
	t.CompletedAt = time.Now().UnixMilli()
	if status == StatusDone {
		t.Result = text
	} else {
		t.Error = text
	}
	return s.flush()
}

// List returns a snapshot copy of tasks in insertion order, optionally
// filtered by status. Pass an empty status to list everything.
func (s *Store) List(status Status) []Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	return out
}

// Prune removes done and failed tasks whose CompletedAt is older than
// maxAge. Pending and running tasks are never pruned regardless of age.
// It returns the number of tasks removed.
func (s *Store) Prune(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge).UnixMilli()
	kept := s.tasks[:0]
	removed := 0
	for _, t := range s.tasks {
		if t.Status.Final() && t.CompletedAt < cutoff {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	if removed == 0 {
		return 0, nil
	}
	s.tasks = kept
	return removed, s.flush()
}

// find returns the task with the given id. Callers must hold s.mu.
func (s *Store) find(id string) *Task {
	for _, t := range s.tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
