package pigeon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// DeliverFunc carries a finished task's notification text to the outside
// world. Delivery failures are logged and swallowed; they never re-fail or
// reprocess the task.
type DeliverFunc func(text string)

// WorkerConfig defines the configuration for the background worker.
type WorkerConfig struct {
	// IdleInterval is the poll interval while no task is pending.
	IdleInterval time.Duration
	// DrainInterval is the much shorter pause between tasks while a
	// backlog exists, so it drains quickly without busy-spinning.
	DrainInterval time.Duration
	// ContextTail is how many trailing transcript entries of the
	// interactive conversation are folded into a task's prompt.
	ContextTail int
	// PruneMaxAge is the retention for completed and failed tasks,
	// applied once at startup.
	PruneMaxAge time.Duration
	// Logger is the logger used for worker events.
	Logger Logger
}

func (cfg *WorkerConfig) fillDefaults() {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = 5 * time.Second
	}
	if cfg.DrainInterval <= 0 {
		cfg.DrainInterval = 500 * time.Millisecond
	}
	if cfg.ContextTail <= 0 {
		cfg.ContextTail = 12
	}
	if cfg.PruneMaxAge == 0 {
		cfg.PruneMaxAge = 7 * 24 * time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = NewFmtLogger()
	}
}

// noTaskOutput is recorded as the result when the background agent returns
// an empty response for a task.
const noTaskOutput = "(task produced no output)"

// Worker polls the store for pending tasks and executes them one at a time
// against the background agent context. It is a polling loop by design:
// the task volume here does not justify a wake-up channel, and the cost is
// bounded pickup latency equal to the idle interval.
type Worker struct {
	store      *Store
	background *SessionCell
	transcript TranscriptSource
	deliver    DeliverFunc
	cfg        WorkerConfig
	log        Logger

	mu      sync.Mutex
	started bool
	stop    chan struct{}
	done    chan struct{}
}

// NewWorker creates a background worker. transcript supplies the
// interactive conversation used for task context and may be nil.
func NewWorker(store *Store, background *SessionCell, transcript TranscriptSource, deliver DeliverFunc, cfg WorkerConfig) *Worker {
	cfg.fillDefaults()
	return &Worker{
		store:      store,
		background: background,
		transcript: transcript,
		deliver:    deliver,
		cfg:        cfg,
		log:        cfg.Logger,
	}
}

// Start prunes stale finished tasks and launches the polling loop. It is
// idempotent and non-blocking.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.started {
		w.log.Warnf("worker already started; ignoring Start()")
		w.mu.Unlock()
		return
	}
	w.started = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.mu.Unlock()

	if n, err := w.store.Prune(w.cfg.PruneMaxAge); err != nil {
		w.log.Warnf("worker: prune failed: %v", err)
	} else if n > 0 {
		w.log.Infof("worker: pruned %d stale task(s)", n)
	}

	w.log.Infof("worker: starting, idle poll %s", w.cfg.IdleInterval)
	go w.loop()
}

// Stop halts scheduling of further ticks and waits for the loop to exit. A
// task already executing is allowed to finish; the agent boundary exposes
// no cooperative cancellation handle.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.log.Warnf("worker not started; ignoring Stop()")
		w.mu.Unlock()
		return
	}
	w.started = false
	stop, done := w.stop, w.done
	w.mu.Unlock()

	close(stop)
	<-done
	w.log.Infof("worker: stopped")
}

func (w *Worker) loop() {
	defer close(w.done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-timer.C:
		}

		busy := w.runOnce()

		next := w.cfg.IdleInterval
		if busy {
			next = w.cfg.DrainInterval
		}
		timer.Reset(next)
	}
}

// runOnce executes at most one pending task and reports whether it found
// one.
func (w *Worker) runOnce() bool {
	task, ok := w.store.Next()
	if !ok {
		return false
	}

	if err := w.store.MarkRunning(task.ID); err != nil {
		w.log.Warnf("worker: cannot mark %s running: %v", task.ID, err)
		return false
	}
	w.log.Infof("worker: executing task %s", task.ID)

	prompt := w.buildPrompt(task)
	out, err := w.background.Prompt(context.Background(), prompt)

	var notice string
	switch {
	case err != nil:
		w.log.Warnf("worker: task %s failed: %v", task.ID, err)
		if storeErr := w.store.Fail(task.ID, err.Error()); storeErr != nil {
			w.log.Warnf("worker: cannot record failure of %s: %v", task.ID, storeErr)
		}
		notice = fmt.Sprintf("Background task failed: %s\n\n%v", task.Description, err)
	default:
		if strings.TrimSpace(out) == "" {
			out = noTaskOutput
		}
		if storeErr := w.store.Complete(task.ID, out); storeErr != nil {
			w.log.Warnf("worker: cannot record completion of %s: %v", task.ID, storeErr)
		}
		notice = fmt.Sprintf("Background task finished: %s\n\n%s", task.Description, out)
	}

	// A failed notification must not re-fail or reprocess the task.
	w.deliverQuietly(notice)
	return true
}

func (w *Worker) deliverQuietly(text string) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorf("worker: delivery panicked: %v", r)
		}
	}()
	if w.deliver != nil {
		w.deliver(text)
	}
}

// buildPrompt combines the trailing interactive conversation with the task
// description. With no transcript available the bare description is used.
func (w *Worker) buildPrompt(task Task) string {
	var entries []TranscriptEntry
	if w.transcript != nil {
		entries = w.transcript.Transcript()
	}
	if len(entries) > w.cfg.ContextTail {
		entries = entries[len(entries)-w.cfg.ContextTail:]
	}
	if len(entries) == 0 {
		return task.Description
	}

	var b strings.Builder
	b.WriteString("## Recent conversation\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: %s\n", e.Role, e.Content)
	}
	b.WriteString("\n## Task\n\n")
	b.WriteString(task.Description)
	return b.String()
}
