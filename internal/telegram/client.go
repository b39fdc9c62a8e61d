// Package telegram connects gatekeeper to the Telegram Bot API: outbound
// messages, user lookups and the long-polling update loop.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/dukerupert/gatekeeper/internal/command"
)

// Dispatcher turns an inbound command or attachment into a reply. An empty reply sends
// nothing.
type Dispatcher interface {
	Dispatch(ctx context.Context, req command.Request) string
}

type Config struct {
	Token string
	// ServerURL overrides the Bot API endpoint.
	ServerURL string
	// SkipGetMe avoids the identity call at construction.
	SkipGetMe bool
	Timeout   time.Duration
}

type Client struct {
	bot      *bot.Bot
	identity string
	timeout  time.Duration
	logger   *slog.Logger

	dispatcher Dispatcher
}

func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{timeout: cfg.Timeout, logger: logger}

	opts := []bot.Option{
		bot.WithDefaultHandler(c.handle),
		bot.WithErrorsHandler(func(err error) {
			logger.Error("telegram polling error", "error", err)
		}),
		bot.WithAllowedUpdates(bot.AllowedUpdates{"message"}),
	}
	if cfg.ServerURL != "" {
		opts = append(opts, bot.WithServerURL(cfg.ServerURL))
	}
	if cfg.SkipGetMe {
		opts = append(opts, bot.WithSkipGetMe())
	}

	b, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}
	c.bot = b
	return c, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// SendText sends a plain text message to a user or chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	if _, err := c.bot.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// DisplayName returns "First Last" for a user, or "User <id>" when the
// user cannot be looked up.
func (c *Client) DisplayName(ctx context.Context, userID int64) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	fallback := fmt.Sprintf("User %d", userID)
	chat, err := c.bot.GetChat(ctx, &bot.GetChatParams{ChatID: userID})
	if err != nil {
		return fallback, fmt.Errorf("get chat %d: %w", userID, err)
	}
	name := strings.TrimSpace(strings.TrimSpace(chat.FirstName) + " " + strings.TrimSpace(chat.LastName))
	if name == "" {
		return fallback, nil
	}
	return name, nil
}

// Identity returns the bot's username, which keys every record it owns.
func (c *Client) Identity(ctx context.Context) (string, error) {
	if c.identity != "" {
		return c.identity, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	me, err := c.bot.GetMe(ctx)
	if err != nil {
		return "", fmt.Errorf("get me: %w", err)
	}
	if me.Username == "" {
		return "", errors.New("bot has no username")
	}
	c.identity = me.Username
	return c.identity, nil
}

// SetIdentity pins the bot identity, skipping the getMe lookup.
func (c *Client) SetIdentity(identity string) {
	c.identity = strings.TrimPrefix(identity, "@")
}

// Run long-polls for updates and hands each message to d until ctx is done.
func (c *Client) Run(ctx context.Context, d Dispatcher) error {
	c.dispatcher = d
	c.logger.Info("telegram polling started", "bot", c.identity)
	c.bot.Start(ctx)
	c.logger.Info("telegram polling stopped")
	return nil
}

func (c *Client) handle(ctx context.Context, _ *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || msg.From == nil || c.dispatcher == nil {
		return
	}
	media := mediaKind(msg)
	if msg.Text == "" && media == "" {
		return
	}

	reply := c.dispatcher.Dispatch(ctx, command.Request{
		UserID:      msg.From.ID,
		ChatID:      msg.Chat.ID,
		BotIdentity: c.identity,
		Text:        msg.Text,
		Media:       media,
	})
	if reply == "" {
		return
	}
	if err := c.SendText(ctx, msg.Chat.ID, reply); err != nil {
		c.logger.Warn("reply not delivered", "chat_id", msg.Chat.ID, "user_id", msg.From.ID, "error", err)
	}
}

func mediaKind(msg *models.Message) string {
	switch {
	case msg.Document != nil:
		return "document"
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Video != nil:
		return "video"
	case msg.Audio != nil:
		return "audio"
	case msg.Voice != nil:
		return "voice message"
	case msg.VideoNote != nil:
		return "video note"
	case msg.Animation != nil:
		return "animation"
	}
	return ""
}
