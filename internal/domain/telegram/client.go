package telegram

import (
	"context"
	"time"

	"gopkg.in/telebot.v3"
)

// Client defines an interface for talking to the chat platform.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	SendMessage(recipientChatID int64, text string, options *telebot.SendOptions) error
	// SetPresence updates the bot's public status line.
	SetPresence(ctx context.Context, text string) error
	// Ping performs a cheap round trip and returns its duration.
	Ping(ctx context.Context) (time.Duration, error)
}
