package pigeon

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Sender is the outbound slice of the transport gateway the dispatcher and
// worker need: chunked text delivery and a best-effort presence signal.
type Sender interface {
	// Send delivers text to the chat, split into transport-sized chunks.
	Send(ctx context.Context, chatID int64, text string) error
	// SendPresence signals "working" to the chat. Best effort; errors are
	// swallowed by the implementation.
	SendPresence(ctx context.Context, chatID int64)
}

// QueuedMessage is one inbound user text waiting for the interactive agent.
// The queue lives only in memory and is lost on crash by design.
type QueuedMessage struct {
	ChatID int64
	Text   string
}

// emptyReply is sent when the interactive agent returns a blank response,
// so the user is never left without an answer.
const emptyReply = "(the agent returned an empty response)"

// DispatcherConfig defines the configuration for the interactive
// dispatcher.
type DispatcherConfig struct {
	// PresenceInterval is how often the "working" signal is refreshed
	// while a prompt is outstanding. It must stay below the transport's
	// own presence expiry window. Defaults to 4 seconds.
	PresenceInterval time.Duration
	// Logger is the logger used for dispatcher events.
	Logger Logger
}

// Dispatcher serializes all interactive prompts: it keeps a strict FIFO of
// inbound messages and guarantees at most one prompt is in flight at any
// time. Bursts queue up and are processed in exact arrival order.
type Dispatcher struct {
	session *SessionCell
	sender  Sender
	cfg     DispatcherConfig
	log     Logger

	mu         sync.Mutex
	queue      []QueuedMessage
	processing bool
	stopped    bool
	idle       chan struct{} // closed whenever the drain loop goes idle
}

// NewDispatcher creates a dispatcher over the interactive session handle.
func NewDispatcher(session *SessionCell, sender Sender, cfg DispatcherConfig) *Dispatcher {
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = 4 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = NewFmtLogger()
	}
	idle := make(chan struct{})
	close(idle)
	return &Dispatcher{
		session: session,
		sender:  sender,
		cfg:     cfg,
		log:     cfg.Logger,
		idle:    idle,
	}
}

// Enqueue appends a message to the FIFO and starts draining if no drain is
// already in progress. It returns ErrStopped after Stop.
func (d *Dispatcher) Enqueue(chatID int64, text string) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return ErrStopped
	}
	d.queue = append(d.queue, QueuedMessage{ChatID: chatID, Text: text})
	if !d.processing {
		d.processing = true
		d.idle = make(chan struct{})
		go d.drain()
	}
	d.mu.Unlock()
	return nil
}

// Stop refuses further enqueues and waits for the queue to drain. The
// prompt currently in flight is allowed to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	idle := d.idle
	d.mu.Unlock()
	<-idle
}

// Pending returns the number of queued messages, including the one being
// processed.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.queue)
	if d.processing {
		n++
	}
	return n
}

func (d *Dispatcher) drain() {
	for {
		d.mu.Lock()
		if len(d.queue) == 0 {
			d.processing = false
			close(d.idle)
			d.mu.Unlock()
			return
		}
		msg := d.queue[0]
		d.queue = d.queue[1:]
		d.mu.Unlock()

		d.process(msg)
	}
}

// process runs one message to completion, including delivery. Every exit
// path stops the presence ticker and sends some textual reply.
func (d *Dispatcher) process(msg QueuedMessage) {
	ctx := context.Background()

	stopPresence := d.startPresence(ctx, msg.ChatID)
	out, err := d.session.Prompt(ctx, msg.Text)
	stopPresence()

	var reply string
	switch {
	case err != nil:
		d.log.Warnf("dispatcher: prompt failed: %v", err)
		reply = fmt.Sprintf("Something went wrong: %v", err)
	case strings.TrimSpace(out) == "":
		reply = emptyReply
	default:
		reply = out
	}

	if err := d.sender.Send(ctx, msg.ChatID, reply); err != nil {
		d.log.Warnf("dispatcher: delivery failed: %v", err)
	}
}

// startPresence emits the working signal immediately and keeps refreshing
// it until the returned stop function is called.
func (d *Dispatcher) startPresence(ctx context.Context, chatID int64) func() {
	d.sender.SendPresence(ctx, chatID)

	ticker := time.NewTicker(d.cfg.PresenceInterval)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				d.sender.SendPresence(ctx, chatID)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			ticker.Stop()
			close(stop)
		})
	}
}
