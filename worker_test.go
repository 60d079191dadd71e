package pigeon

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeAgent is a scriptable Agent for tests.
type fakeAgent struct {
	mu      sync.Mutex
	reply   func(text string) (string, error)
	prompts []string
	history []TranscriptEntry
	resets  int
}

func (f *fakeAgent) Prompt(_ context.Context, text string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, text)
	reply := f.reply
	f.mu.Unlock()
	if reply == nil {
		return "ok: " + text, nil
	}
	return reply(text)
}

func (f *fakeAgent) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
	f.history = nil
}

func (f *fakeAgent) Dispose() {}

func (f *fakeAgent) Transcript() []TranscriptEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]TranscriptEntry, len(f.history))
	copy(out, f.history)
	return out
}

func (f *fakeAgent) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeAgent) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

type testDelivery struct {
	mu    sync.Mutex
	texts []string
}

func (d *testDelivery) deliver(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.texts = append(d.texts, text)
}

func (d *testDelivery) all() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.texts))
	copy(out, d.texts)
	return out
}

func newTestWorker(t *testing.T, agent *fakeAgent, interactive *fakeAgent) (*Worker, *Store, *testDelivery) {
	t.Helper()
	store := NewStore(filepath.Join(t.TempDir(), "tasks.json"), NopLogger{})
	cell := NewSessionCell(func() Agent { return agent })
	delivery := &testDelivery{}
	var src TranscriptSource
	if interactive != nil {
		src = interactive
	}
	w := NewWorker(store, cell, src, delivery.deliver, WorkerConfig{
		IdleInterval:  10 * time.Millisecond,
		DrainInterval: time.Millisecond,
		Logger:        NopLogger{},
	})
	return w, store, delivery
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestWorker_CompletesPendingTask(t *testing.T) {
	agent := &fakeAgent{reply: func(string) (string, error) { return "summary text", nil }}
	w, store, delivery := newTestWorker(t, agent, nil)

	task, err := store.Add("summarize the notes")
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(store.List(StatusDone)) == 1 })

	done := store.List(StatusDone)[0]
	require.Equal(t, task.ID, done.ID)
	require.Equal(t, "summary text", done.Result)
	require.NotZero(t, done.CompletedAt)

	waitFor(t, func() bool { return len(delivery.all()) == 1 })
	require.Contains(t, delivery.all()[0], "finished")
	require.Contains(t, delivery.all()[0], "summary text")
}

func TestWorker_FailsTaskOnAgentError(t *testing.T) {
	agent := &fakeAgent{reply: func(string) (string, error) { return "", errors.New("model unavailable") }}
	w, store, delivery := newTestWorker(t, agent, nil)

	_, err := store.Add("doomed work")
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(store.List(StatusFailed)) == 1 })
	failed := store.List(StatusFailed)[0]
	require.Equal(t, "model unavailable", failed.Error)
	require.Empty(t, failed.Result)

	waitFor(t, func() bool { return len(delivery.all()) == 1 })
	require.Contains(t, delivery.all()[0], "failed")
}

func TestWorker_EmptyOutputSentinel(t *testing.T) {
	agent := &fakeAgent{reply: func(string) (string, error) { return "  \n", nil }}
	w, store, _ := newTestWorker(t, agent, nil)

	_, err := store.Add("quiet task")
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(store.List(StatusDone)) == 1 })
	require.Equal(t, noTaskOutput, store.List(StatusDone)[0].Result)
}

func TestWorker_DeliversExactlyOncePerTask(t *testing.T) {
	agent := &fakeAgent{}
	w, store, delivery := newTestWorker(t, agent, nil)

	for _, d := range []string{"one", "two", "three"} {
		_, err := store.Add(d)
		require.NoError(t, err)
	}

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(store.List(StatusDone)) == 3 })
	waitFor(t, func() bool { return len(delivery.all()) == 3 })

	// FIFO creation order.
	texts := delivery.all()
	require.Contains(t, texts[0], "one")
	require.Contains(t, texts[1], "two")
	require.Contains(t, texts[2], "three")
}

func TestWorker_PromptCarriesTranscriptTail(t *testing.T) {
	interactive := &fakeAgent{history: []TranscriptEntry{
		{Role: RoleUser, Content: "remember the venue is booked"},
		{Role: RoleAssistant, Content: "noted"},
	}}
	agent := &fakeAgent{}
	w, store, _ := newTestWorker(t, agent, interactive)

	_, err := store.Add("write the invitation")
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return agent.promptCount() == 1 })
	prompt := agent.lastPrompt()
	require.Contains(t, prompt, "## Recent conversation")
	require.Contains(t, prompt, "user: remember the venue is booked")
	require.Contains(t, prompt, "assistant: noted")
	require.Contains(t, prompt, "## Task")
	require.Contains(t, prompt, "write the invitation")
}

func TestWorker_BarePromptWithoutTranscript(t *testing.T) {
	agent := &fakeAgent{}
	w, store, _ := newTestWorker(t, agent, nil)

	_, err := store.Add("standalone job")
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return agent.promptCount() == 1 })
	require.Equal(t, "standalone job", agent.lastPrompt())
}

func TestWorker_PrunesOnStart(t *testing.T) {
	agent := &fakeAgent{}
	store := NewStore(filepath.Join(t.TempDir(), "tasks.json"), NopLogger{})

	old, err := store.Add("ancient")
	require.NoError(t, err)
	require.NoError(t, store.MarkRunning(old.ID))
	require.NoError(t, store.Complete(old.ID, "r"))

	cell := NewSessionCell(func() Agent { return agent })
	w := NewWorker(store, cell, nil, nil, WorkerConfig{
		IdleInterval:  10 * time.Millisecond,
		DrainInterval: time.Millisecond,
		PruneMaxAge:   -time.Hour, // everything completed counts as stale
		Logger:        NopLogger{},
	})
	w.Start()
	defer w.Stop()

	require.Empty(t, store.List(""))
}

func TestWorker_StartStopIdempotent(t *testing.T) {
	agent := &fakeAgent{}
	w, _, _ := newTestWorker(t, agent, nil)

	w.Start()
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWorker_StopHaltsScheduling(t *testing.T) {
	agent := &fakeAgent{}
	w, store, _ := newTestWorker(t, agent, nil)

	w.Start()
	w.Stop()

	_, err := store.Add("after stop")
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)
	require.Len(t, store.List(StatusPending), 1)
	require.Zero(t, agent.promptCount())
}

func TestWorker_DeliveryPanicDoesNotKillLoop(t *testing.T) {
	agent := &fakeAgent{}
	store := NewStore(filepath.Join(t.TempDir(), "tasks.json"), NopLogger{})
	cell := NewSessionCell(func() Agent { return agent })

	w := NewWorker(store, cell, nil, func(string) { panic("transport down") }, WorkerConfig{
		IdleInterval:  10 * time.Millisecond,
		DrainInterval: time.Millisecond,
		Logger:        NopLogger{},
	})

	_, err := store.Add("first")
	require.NoError(t, err)
	_, err = store.Add("second")
	require.NoError(t, err)

	w.Start()
	defer w.Stop()

	waitFor(t, func() bool { return len(store.List(StatusDone)) == 2 })
}

func TestWorker_PruneDefaultNeverPrunesFreshWork(t *testing.T) {
	agent := &fakeAgent{}
	store := NewStore(filepath.Join(t.TempDir(), "tasks.json"), NopLogger{})
	_, err := store.Add("fresh")
	require.NoError(t, err)

	cell := NewSessionCell(func() Agent { return agent })
	w := NewWorker(store, cell, nil, nil, WorkerConfig{Logger: NopLogger{}})
	// Prune runs in Start; a pending task must survive any max age.
	w.Start()
	w.Stop()

	require.True(t, len(store.List("")) >= 1)
	require.False(t, strings.Contains(store.List("")[0].Status.String(), "failed"))
}
