package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/leojscalabrin/glorpinia-AI/ledger"
	"github.com/leojscalabrin/glorpinia-AI/llm"
	"github.com/leojscalabrin/glorpinia-AI/telemetry"
)

const (
	// CommandPrefix starts every bot command.
	CommandPrefix = "!glorp"
	// MaxReplyBytes keeps replies under the Twitch message limit.
	MaxReplyBytes = 480
	topLimit      = 5
)

// Message is one chat line.
type Message struct {
	ID      string
	Channel string
	User    string
	Text    string
}

// Sender posts a message to a channel.
type Sender interface {
	Say(channel, text string)
}

// Ledger is the part of the cookie ledger chat commands use.
type Ledger interface {
	GetBalance(ctx context.Context, principal string) int64
	HandleInteraction(ctx context.Context, principal string)
	GetLeaderboard(ctx context.Context, limit int) []ledger.Entry
}

// Slots plays a slot round and renders the reply.
type Slots interface {
	Play(ctx context.Context, channel, player, stakeText string) string
}

// Bridge executes directives in generated text.
type Bridge interface {
	ProcessGeneratedText(ctx context.Context, text, current string) string
}

// HandlerOptions wires a Handler. Generator and Bridge may be nil to disable replies
// to mentions.
type HandlerOptions struct {
	BotName   string
	Ledger    Ledger
	Slots     Slots
	Bridge    Bridge
	Generator llm.Generator
	Sender    Sender
	Pool      *Pool
	Logger    *slog.Logger
}

// Handler dispatches chat messages to the cookie features.
type Handler struct {
	botName string
	ledger  Ledger
	slots   Slots
	bridge  Bridge
	gen     llm.Generator
	sender  Sender
	pool    *Pool
	log     *slog.Logger
}

// NewHandler returns a Handler. A nil Pool gets a single slot.
func NewHandler(opts HandlerOptions) *Handler {
	h := &Handler{
		botName: ledger.Normalize(opts.BotName),
		ledger:  opts.Ledger,
		slots:   opts.Slots,
		bridge:  opts.Bridge,
		gen:     opts.Generator,
		sender:  opts.Sender,
		pool:    opts.Pool,
		log:     opts.Logger,
	}
	if h.pool == nil {
		h.pool = NewPool(1)
	}
	if h.log == nil {
		h.log = slog.Default()
	}
	h.log = h.log.With(slog.String("component", "chat"))
	return h
}

// Pool returns the pool running mention replies.
func (h *Handler) Pool() *Pool { return h.pool }

// Handle processes one message. Commands reply synchronously, mentions are answered
// from the pool and every other message earns the author an interaction cookie.
func (h *Handler) Handle(ctx context.Context, msg Message) {
	user := ledger.Normalize(msg.User)
	if user == "" || user == h.botName {
		telemetry.RecordChatMessage("self")
		return
	}
	corr := msg.ID
	if corr == "" {
		corr = uuid.NewString()
	}
	ctx = telemetry.WithCorrelation(ctx, corr)

	fields := strings.Fields(msg.Text)
	if len(fields) > 0 && strings.EqualFold(fields[0], CommandPrefix) {
		h.command(ctx, msg.Channel, user, fields[1:])
		return
	}

	h.ledger.HandleInteraction(ctx, user)
	if query, ok := h.mention(msg.Text); ok {
		telemetry.RecordChatMessage("mention")
		h.reply(ctx, msg.Channel, user, query)
		return
	}
	telemetry.RecordChatMessage("interaction")
}

func (h *Handler) command(ctx context.Context, channel, user string, args []string) {
	sub := ""
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
	}
	switch sub {
	case "cookies":
		telemetry.RecordChatMessage("command_cookies")
		target := user
		if len(args) > 1 {
			target = ledger.Normalize(args[1])
		}
		bal := h.ledger.GetBalance(ctx, target)
		if target == user {
			h.say(channel, fmt.Sprintf("@%s, você tem %d 🍪", user, bal))
		} else {
			h.say(channel, fmt.Sprintf("@%s, %s tem %d 🍪", user, target, bal))
		}
	case "slots":
		telemetry.RecordChatMessage("command_slots")
		if h.slots == nil {
			return
		}
		stake := ""
		if len(args) > 1 {
			stake = args[1]
		}
		h.say(channel, h.slots.Play(ctx, channel, user, stake))
	case "top":
		telemetry.RecordChatMessage("command_top")
		h.say(channel, FormatLeaderboard(h.ledger.GetLeaderboard(ctx, topLimit)))
	default:
		telemetry.RecordChatMessage("command_help")
		h.say(channel, fmt.Sprintf("@%s, comandos: %s cookies [@user] | %s slots [valor] | %s top", user, CommandPrefix, CommandPrefix, CommandPrefix))
	}
}

// FormatLeaderboard renders entries as "1. alice (120) | 2. bob (80)".
func FormatLeaderboard(entries []ledger.Entry) string {
	if len(entries) == 0 {
		return "Ninguém tem cookies ainda. Sadge"
	}
	parts := make([]string, 0, len(entries))
	for i, e := range entries {
		parts = append(parts, fmt.Sprintf("%d. %s (%d)", i+1, e.Principal, e.Balance))
	}
	return strings.Join(parts, " | ")
}

// mention reports whether text addresses the bot and returns the text without the
// first mention.
func (h *Handler) mention(text string) (string, bool) {
	if h.botName == "" || h.gen == nil {
		return "", false
	}
	lower := strings.ToLower(text)
	i := strings.Index(lower, h.botName)
	if i < 0 {
		return "", false
	}
	start, end := i, i+len(h.botName)
	if start > 0 && lower[start-1] == '@' {
		start--
	}
	query := strings.TrimSpace(text[:start] + text[end:])
	query = strings.Join(strings.Fields(query), " ")
	return query, query != ""
}

func (h *Handler) reply(ctx context.Context, channel, user, query string) {
	h.pool.Go(ctx, func(ctx context.Context) {
		log := telemetry.WithCorr(ctx, h.log)
		text, err := h.gen.Generate(ctx, user, query)
		if err != nil {
			log.Warn("generation failed", slog.String("user", user), slog.Any("err", err))
			return
		}
		if h.bridge != nil {
			text = h.bridge.ProcessGeneratedText(ctx, text, user)
		}
		if text == "" {
			return
		}
		h.say(channel, Truncate("@"+user+" "+text, MaxReplyBytes))
	})
}

func (h *Handler) say(channel, text string) {
	if h.sender == nil || text == "" {
		return
	}
	h.sender.Say(channel, text)
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
