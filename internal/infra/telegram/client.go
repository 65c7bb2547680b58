// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"time"

	"gopkg.in/telebot.v3"
)

// TelebotAdapter implements the Client interface using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot *telebot.Bot
}

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

// SendMessage sends a text message to the specified recipient.
func (tba *TelebotAdapter) SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error {
	if options == nil {
		options = &telebot.SendOptions{}
	}

	recipient := &telebot.Chat{ID: recipientChatID} // private chat or group, both addressed by ID
	_, err := tba.bot.Send(recipient, text, options)
	return err
}

// SetPresence publishes text as the bot's short description, the closest thing
// Telegram has to a status line.
func (tba *TelebotAdapter) SetPresence(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tba.bot.SetMyShortDescription(text, ""); err != nil {
		return fmt.Errorf("set short description: %w", err)
	}
	return nil
}

// Ping times a getMe round trip.
func (tba *TelebotAdapter) Ping(ctx context.Context) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	start := time.Now()
	if _, err := tba.bot.Raw("getMe", struct{}{}); err != nil {
		return 0, fmt.Errorf("getMe: %w", err)
	}
	return time.Since(start), nil
}
