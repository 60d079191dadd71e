package pigeon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeSender records sent texts and presence signals.
type fakeSender struct {
	mu        sync.Mutex
	sent      []string
	chats     []int64
	presence  int
	sendErr   error
	sendDelay time.Duration
}

func (s *fakeSender) Send(_ context.Context, chatID int64, text string) error {
	if s.sendDelay > 0 {
		time.Sleep(s.sendDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, text)
	s.chats = append(s.chats, chatID)
	return nil
}

func (s *fakeSender) SendPresence(_ context.Context, _ int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presence++
}

func (s *fakeSender) allSent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.sent))
	copy(out, s.sent)
	return out
}

func (s *fakeSender) presenceCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence
}

func newTestDispatcher(agent *fakeAgent, sender *fakeSender) *Dispatcher {
	cell := NewSessionCell(func() Agent { return agent })
	return NewDispatcher(cell, sender, DispatcherConfig{
		PresenceInterval: 5 * time.Millisecond,
		Logger:           NopLogger{},
	})
}

func TestDispatcher_ProcessesInArrivalOrder(t *testing.T) {
	// A slow agent forces every enqueue to land while the previous prompt
	// is still in flight.
	agent := &fakeAgent{reply: func(text string) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return "echo " + text, nil
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(agent, sender)

	const n = 10
	for i := 0; i < n; i++ {
		require.NoError(t, d.Enqueue(7, fmt.Sprintf("msg-%02d", i)))
	}

	waitFor(t, func() bool { return len(sender.allSent()) == n })

	sent := sender.allSent()
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("echo msg-%02d", i), sent[i])
	}
	// Each processed exactly once.
	require.Equal(t, n, agent.promptCount())
}

func TestDispatcher_ErrorBecomesTextReply(t *testing.T) {
	agent := &fakeAgent{reply: func(string) (string, error) {
		return "", errors.New("upstream timeout")
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(agent, sender)

	require.NoError(t, d.Enqueue(1, "hi"))
	waitFor(t, func() bool { return len(sender.allSent()) == 1 })
	require.Contains(t, sender.allSent()[0], "Something went wrong")
	require.Contains(t, sender.allSent()[0], "upstream timeout")
}

func TestDispatcher_EmptyResponseFallback(t *testing.T) {
	agent := &fakeAgent{reply: func(string) (string, error) { return "  ", nil }}
	sender := &fakeSender{}
	d := newTestDispatcher(agent, sender)

	require.NoError(t, d.Enqueue(1, "hi"))
	waitFor(t, func() bool { return len(sender.allSent()) == 1 })
	require.Equal(t, emptyReply, sender.allSent()[0])
}

func TestDispatcher_PresenceSignalRefreshes(t *testing.T) {
	agent := &fakeAgent{reply: func(string) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "done", nil
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(agent, sender)

	require.NoError(t, d.Enqueue(1, "think hard"))
	waitFor(t, func() bool { return len(sender.allSent()) == 1 })
	// Immediate signal plus at least one refresh during the slow prompt.
	require.GreaterOrEqual(t, sender.presenceCount(), 2)
}

func TestDispatcher_DeliveryErrorSwallowed(t *testing.T) {
	agent := &fakeAgent{}
	sender := &fakeSender{sendErr: errors.New("chat gone")}
	d := newTestDispatcher(agent, sender)

	require.NoError(t, d.Enqueue(1, "first"))
	// The dispatcher must keep going after a failed delivery.
	waitFor(t, func() bool { return agent.promptCount() == 1 })

	sender.mu.Lock()
	sender.sendErr = nil
	sender.mu.Unlock()

	require.NoError(t, d.Enqueue(1, "second"))
	waitFor(t, func() bool { return len(sender.allSent()) == 1 })
	require.Contains(t, sender.allSent()[0], "second")
}

func TestDispatcher_StopDrainsThenRefuses(t *testing.T) {
	agent := &fakeAgent{reply: func(text string) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return text, nil
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(agent, sender)

	require.NoError(t, d.Enqueue(1, "a"))
	require.NoError(t, d.Enqueue(1, "b"))
	d.Stop()

	// Stop waited for the queue to drain.
	require.Len(t, sender.allSent(), 2)
	require.ErrorIs(t, d.Enqueue(1, "c"), ErrStopped)
}

func TestDispatcher_PendingCount(t *testing.T) {
	release := make(chan struct{})
	agent := &fakeAgent{reply: func(text string) (string, error) {
		<-release
		return text, nil
	}}
	sender := &fakeSender{}
	d := newTestDispatcher(agent, sender)

	require.Zero(t, d.Pending())
	require.NoError(t, d.Enqueue(1, "a"))
	require.NoError(t, d.Enqueue(1, "b"))
	waitFor(t, func() bool { return agent.promptCount() == 1 })
	require.Equal(t, 2, d.Pending())

	close(release)
	waitFor(t, func() bool { return len(sender.allSent()) == 2 })
	require.Zero(t, d.Pending())
}

func TestSessionCell_ResetSwapsAgent(t *testing.T) {
	var built int
	cell := NewSessionCell(func() Agent {
		built++
		return &fakeAgent{}
	})
	require.Equal(t, 1, built)

	first := cell.Current()
	cell.Reset()
	require.Equal(t, 2, built)
	require.NotSame(t, first, cell.Current())
}
