package pigeon

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/siosw/pigeon/internal/weekid"
)

// Memory manages the week-partitioned append-only memory log shared by the
// interactive and background agents. Each ISO week gets one markdown file
// (memory/2026-W07.md) with a fixed header and timestamped bullet entries.
// Weeks are never edited or deleted, only appended to.
type Memory struct {
	mu  sync.Mutex
	dir string
	log Logger

	// now is swapped in tests to pin the week and entry timestamps.
	now func() time.Time
}

// NewMemory creates a memory store rooted at dir, creating it if needed.
func NewMemory(dir string, log Logger) (*Memory, error) {
	if log == nil {
		log = NewFmtLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("pigeon: create memory dir: %w", err)
	}
	return &Memory{dir: dir, log: log, now: time.Now}, nil
}

// CurrentWeekID returns the ISO week id of the current week.
func (m *Memory) CurrentWeekID() string {
	return weekid.At(m.now())
}

func (m *Memory) weekFile(week string) string {
	return filepath.Join(m.dir, week+".md")
}

// Append adds one timestamped entry to the current week's file, creating it
// with a week header on first write. Embedded newlines are collapsed so one
// entry stays one line.
func (m *Memory) Append(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	week := weekid.At(now)
	path := m.weekFile(week)

	line := strings.Join(strings.Fields(text), " ")
	entry := fmt.Sprintf("- [%s] %s\n", now.Format("2006-01-02 15:04"), line)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("pigeon: open week file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("pigeon: stat week file: %w", err)
	}
	if info.Size() == 0 {
		if _, err := fmt.Fprintf(f, "# Week %s\n\n", week); err != nil {
			return fmt.Errorf("pigeon: write week header: %w", err)
		}
	}
	if _, err := f.WriteString(entry); err != nil {
		return fmt.Errorf("pigeon: append memory entry: %w", err)
	}
	return nil
}

// Read returns the full contents of one week's file. A missing week reads
// as empty, not an error. A malformed week id is rejected so callers cannot
// escape the memory directory.
func (m *Memory) Read(week string) (string, error) {
	if !weekid.Valid(week) {
		return "", ErrBadWeekID
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	data, err := os.ReadFile(m.weekFile(week))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("pigeon: read week file: %w", err)
	}
	return string(data), nil
}

// ReadCurrent returns the contents of the current week's file.
func (m *Memory) ReadCurrent() (string, error) {
	return m.Read(m.CurrentWeekID())
}

// Weeks lists the week ids that have a memory file, sorted ascending.
// The lexical order of week ids is also their chronological order.
func (m *Memory) Weeks() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("pigeon: list memory dir: %w", err)
	}
	var weeks []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".md")
		if e.IsDir() || name == e.Name() || !weekid.Valid(name) {
			continue
		}
		weeks = append(weeks, name)
	}
	sort.Strings(weeks)
	return weeks, nil
}
