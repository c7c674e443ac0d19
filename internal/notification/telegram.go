package notification

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// ErrNoModeratorChat is returned for moderator messages when no chat is configured.
var ErrNoModeratorChat = errors.New("moderator chat not configured")

// TelegramNotifier delivers messages through the Telegram Bot API.
type TelegramNotifier struct {
	bot       *bot.Bot
	moderator int64
}

// NewTelegramNotifier connects a bot with token. Extra options are passed to
// bot.New.
func NewTelegramNotifier(token string, moderatorChat int64, opts ...bot.Option) (*TelegramNotifier, error) {
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &TelegramNotifier{bot: b, moderator: moderatorChat}, nil
}

// Send posts message as HTML with link previews disabled.
func (n *TelegramNotifier) Send(ctx context.Context, message Message) error {
	chatID := message.ChatID
	if message.Moderators {
		if n.moderator == 0 {
			return ErrNoModeratorChat
		}
		chatID = n.moderator
	}

	disablePreview := true
	_, err := n.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      message.Body,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	})
	if err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}
