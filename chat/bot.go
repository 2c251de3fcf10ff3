package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	twitch "github.com/gempir/go-twitch-irc/v4"
)

// Bot connects a Handler to Twitch IRC.
type Bot struct {
	client   *twitch.Client
	channels []string
	log      *slog.Logger
}

// NewBot builds an IRC client for username. token may carry the "oauth:" prefix.
func NewBot(username, token string, channels []string, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{
		client:   twitch.NewClient(username, ircToken(token)),
		channels: channels,
		log:      logger.With(slog.String("component", "bot")),
	}
}

// Say sends text to channel.
func (b *Bot) Say(channel, text string) {
	b.client.Say(strings.TrimPrefix(channel, "#"), text)
}

// SetToken swaps the OAuth token used on the next (re)connect.
func (b *Bot) SetToken(token string) {
	b.client.SetIRCToken(ircToken(token))
}

// Run joins the channels and feeds every message to h until ctx is done. Connection
// errors are logged and end the bot without stopping the process.
func (b *Bot) Run(ctx context.Context, h *Handler) error {
	if len(b.channels) == 0 {
		b.log.Info("no channels configured; chat bot disabled")
		return nil
	}
	b.client.OnConnect(func() {
		b.log.Info("connected to twitch chat", slog.Any("channels", b.channels))
	})
	b.client.OnPrivateMessage(func(m twitch.PrivateMessage) {
		h.Handle(ctx, Message{ID: m.ID, Channel: m.Channel, User: m.User.Name, Text: m.Message})
	})
	b.client.Join(b.channels...)

	errc := make(chan error, 1)
	go func() { errc <- b.client.Connect() }()

	select {
	case <-ctx.Done():
		if err := b.client.Disconnect(); err != nil {
			b.log.Debug("twitch chat disconnect", slog.Any("err", err))
		}
		<-errc
		h.Pool().Wait()
		return nil
	case err := <-errc:
		if err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
			b.log.Error("twitch chat connect error", slog.Any("err", err))
		}
		return nil
	}
}

func ircToken(token string) string {
	token = strings.TrimSpace(token)
	if token == "" || strings.HasPrefix(token, "oauth:") {
		return token
	}
	return "oauth:" + token
}
