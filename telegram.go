package pigeon

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
)

// telegramMaxMessageChars stays below Telegram's 4096-char message cap to
// leave headroom for formatting.
const telegramMaxMessageChars = 3900

// GatewayConfig defines the configuration for the Telegram gateway.
type GatewayConfig struct {
	// Token is the bot token.
	Token string
	// AuthorizedUser is the single Telegram user id whose messages are
	// accepted. Everything else is logged and dropped without a reply.
	AuthorizedUser int64
	// ChunkLimit overrides the outbound chunk size. Defaults to 3900.
	ChunkLimit int
	// PrevShutdown is the previous run's shutdown description, shown by
	// /status ("unknown" when no clean record exists).
	PrevShutdown string
	// Logger is the logger used for gateway events.
	Logger Logger
}

// Gateway connects the orchestrator to Telegram: it authenticates inbound
// traffic against the single authorized identity, routes commands, forwards
// plain text to OnText, and delivers outbound text in chunks.
type Gateway struct {
	bot       *telego.Bot
	cfg       GatewayConfig
	log       Logger
	store     *Store
	memory    *Memory
	session   *SessionCell
	startedAt time.Time

	// OnText receives each authorized plain-text message. Set before
	// Start.
	OnText func(chatID int64, text string)
}

// NewGateway creates the Telegram gateway over the shared store, memory and
// interactive session handle.
func NewGateway(cfg GatewayConfig, store *Store, memory *Memory, session *SessionCell) (*Gateway, error) {
	if cfg.Logger == nil {
		cfg.Logger = NewFmtLogger()
	}
	if cfg.ChunkLimit <= 0 {
		cfg.ChunkLimit = telegramMaxMessageChars
	}
	if cfg.PrevShutdown == "" {
		cfg.PrevShutdown = "unknown"
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("pigeon: create telegram bot: %w", err)
	}

	return &Gateway{
		bot:     bot,
		cfg:     cfg,
		log:     cfg.Logger,
		store:   store,
		memory:  memory,
		session: session,
	}, nil
}

// Start begins long polling and registers the command surface. It is
// non-blocking; cancel ctx to stop receiving updates.
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.log.Infof("gateway: starting long polling")

	updates, err := g.bot.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{Timeout: 30})
	if err != nil {
		return fmt.Errorf("pigeon: start long polling: %w", err)
	}

	bh, err := th.NewBotHandler(g.bot, updates)
	if err != nil {
		return fmt.Errorf("pigeon: create bot handler: %w", err)
	}

	bh.HandleMessage(g.authorized(g.cmdStart), th.CommandEqual("start"))
	bh.HandleMessage(g.authorized(g.cmdReset), th.CommandEqual("reset"))
	bh.HandleMessage(g.authorized(g.cmdTasks), th.CommandEqual("tasks"))
	bh.HandleMessage(g.authorized(g.cmdMemory), th.CommandEqual("memory"))
	bh.HandleMessage(g.authorized(g.cmdWeeks), th.CommandEqual("weeks"))
	bh.HandleMessage(g.authorized(g.cmdStatus), th.CommandEqual("status"))
	bh.HandleMessage(g.authorized(g.handleText), th.AnyMessage())

	go bh.Start()

	go func() {
		<-ctx.Done()
		bh.Stop()
	}()

	return nil
}

// authorized wraps a handler with the single-identity auth filter.
// Rejected traffic gets a log line and no response.
func (g *Gateway) authorized(next func(ctx *th.Context, message telego.Message) error) func(ctx *th.Context, message telego.Message) error {
	return func(ctx *th.Context, message telego.Message) error {
		if message.From == nil || message.From.ID != g.cfg.AuthorizedUser {
			from := int64(0)
			if message.From != nil {
				from = message.From.ID
			}
			g.log.Warnf("gateway: dropping message from unauthorized user %d", from)
			return nil
		}
		return next(ctx, message)
	}
}

func (g *Gateway) handleText(ctx *th.Context, message telego.Message) error {
	if message.Text == "" {
		return nil
	}
	g.log.Debugf("gateway: inbound message (%d chars)", len(message.Text))
	if g.OnText != nil {
		g.OnText(message.Chat.ID, message.Text)
	}
	return nil
}

func (g *Gateway) cmdStart(ctx *th.Context, message telego.Message) error {
	return g.reply(ctx, message, "Hello! Send me anything and I will get to work. "+
		"Deferred tasks run in the background and report back here.\n\n"+
		"/tasks — queued work\n/memory — this week's notes\n/weeks — all memory weeks\n"+
		"/reset — fresh conversation\n/status — uptime and health")
}

func (g *Gateway) cmdReset(ctx *th.Context, message telego.Message) error {
	g.session.Reset()
	return g.reply(ctx, message, "Started a fresh conversation.")
}

func (g *Gateway) cmdTasks(ctx *th.Context, message telego.Message) error {
	return g.reply(ctx, message, formatTaskList(g.store.List(StatusRunning), g.store.List(StatusPending)))
}

func (g *Gateway) cmdMemory(ctx *th.Context, message telego.Message) error {
	content, err := g.memory.ReadCurrent()
	if err != nil {
		return g.reply(ctx, message, fmt.Sprintf("Cannot read memory: %v", err))
	}
	if content == "" {
		content = "No memory recorded for " + g.memory.CurrentWeekID() + " yet."
	}
	return g.reply(ctx, message, content)
}

func (g *Gateway) cmdWeeks(ctx *th.Context, message telego.Message) error {
	weeks, err := g.memory.Weeks()
	if err != nil {
		return g.reply(ctx, message, fmt.Sprintf("Cannot list memory weeks: %v", err))
	}
	if len(weeks) == 0 {
		return g.reply(ctx, message, "No memory weeks yet.")
	}
	return g.reply(ctx, message, strings.Join(weeks, "\n"))
}

func (g *Gateway) cmdStatus(ctx *th.Context, message telego.Message) error {
	return g.reply(ctx, message, formatStatus(
		time.Since(g.startedAt),
		g.cfg.PrevShutdown,
		len(g.store.List(StatusPending)),
		len(g.store.List(StatusRunning)),
	))
}

func (g *Gateway) reply(ctx context.Context, message telego.Message, text string) error {
	if err := g.Send(ctx, message.Chat.ID, text); err != nil {
		g.log.Warnf("gateway: reply failed: %v", err)
	}
	return nil
}

// Send delivers text to the chat, split into transport-sized chunks sent
// in order.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		text = "(empty response)"
	}
	for _, chunk := range SplitMessage(text, g.cfg.ChunkLimit) {
		if _, err := g.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), chunk)); err != nil {
			return fmt.Errorf("pigeon: send message: %w", err)
		}
	}
	return nil
}

// SendPresence signals "typing" to the chat. Best effort; failures are
// logged and swallowed.
func (g *Gateway) SendPresence(ctx context.Context, chatID int64) {
	err := g.bot.SendChatAction(ctx, tu.ChatAction(tu.ID(chatID), telego.ChatActionTyping))
	if err != nil {
		g.log.Debugf("gateway: chat action failed: %v", err)
	}
}

// formatTaskList renders running and pending tasks for /tasks.
func formatTaskList(running, pending []Task) string {
	if len(running) == 0 && len(pending) == 0 {
		return "No queued work."
	}
	var b strings.Builder
	for _, t := range running {
		fmt.Fprintf(&b, "▶ %s — %s\n", shortID(t.ID), truncate(t.Description, 120))
	}
	for i, t := range pending {
		fmt.Fprintf(&b, "%d. %s — %s\n", i+1, shortID(t.ID), truncate(t.Description, 120))
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatStatus renders the /status summary.
func formatStatus(uptime time.Duration, prevShutdown string, pending, running int) string {
	return fmt.Sprintf(
		"Uptime: %s\nPending tasks: %d\nRunning tasks: %d\nPrevious shutdown: %s",
		uptime.Round(time.Second), pending, running, prevShutdown,
	)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
