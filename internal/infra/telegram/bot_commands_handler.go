// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"party_notification_bot/internal/app"
	"party_notification_bot/internal/domain/mode"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// publicCommands is the menu shown by Telegram clients. /updating stays hidden.
var publicCommands = []telebot.Command{
	{Text: "start", Description: "Say hello and see your next party"},
	{Text: "help", Description: "What can this bot do"},
	{Text: "done", Description: "Log your Robo Party"},
	{Text: "sleep", Description: "Pause reminders: /sleep 2h, /sleep 23:00, or /sleep to wake"},
	{Text: "status", Description: "Bot mode, uptime and latency"},
}

// CommandHandlers serves /start, /help and /status.
type CommandHandlers struct {
	ctx    context.Context
	party  *app.PartyService
	admin  *app.AdminService
	status *app.StatusService
	logger *logrus.Entry
}

func NewCommandHandlers(ctx context.Context, party *app.PartyService, admin *app.AdminService, status *app.StatusService, baseLogger *logrus.Entry) *CommandHandlers {
	return &CommandHandlers{
		ctx:    ctx,
		party:  party,
		admin:  admin,
		status: status,
		logger: baseLogger.WithField("handler_group", "start_help"),
	}
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	party *app.PartyService,
	admin *app.AdminService,
	status *app.StatusService,
	baseLogger *logrus.Entry, // For contextual logging
) {
	h := NewCommandHandlers(ctx, party, admin, status, baseLogger)
	b.Handle("/start", h.handleStart)
	b.Handle("/help", h.handleHelp)
	b.Handle("/status", h.handleStatus)

	if err := b.SetCommands(publicCommands); err != nil {
		baseLogger.WithError(err).Warn("Failed to publish command menu")
	}
}

func (h *CommandHandlers) handleStart(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithField("command", "/start").WithField("sender_id", senderID)
	logCtx.Info("Processing /start command")

	greeting := fmt.Sprintf("Hi %s! 🐝 I'm the Robo Party bot.", c.Sender().FirstName)
	if h.admin.IsAdmin(senderID) {
		greeting += " You can manage the party list, see /help."
	}

	rec, err := h.party.Lookup(senderID)
	switch {
	case err == nil:
		now := h.party.Now()
		reply := greeting + "\nYour next Robo Party is " + formatUntil(rec.DueAt, now) + "."
		if rec.IsDue(now) {
			reply = greeting + "\nYour Robo Party is ready now! Send /done once you've done it."
		}
		if n, err := h.party.PartiesLogged(h.ctx, senderID); err != nil {
			logCtx.WithError(err).Warn("Could not count logged parties")
		} else {
			reply += fmt.Sprintf("\nParties logged so far: %d", n)
		}
		return c.Send(reply)
	case errors.Is(err, app.ErrNotFound):
		logCtx.Info("User is not registered")
		return c.Send(greeting + "\nYou are not on the party list yet. Ask an admin to add you.")
	default:
		logCtx.WithError(err).Error("Error checking registration for /start command")
		return c.Send(msgInternalError)
	}
}

func (h *CommandHandlers) handleHelp(c telebot.Context) error {
	senderID := c.Sender().ID
	h.logger.WithField("command", "/help").WithField("sender_id", senderID).Info("Processing /help command")

	var helpText strings.Builder
	helpText.WriteString("Every few hours I remind you that your Robo Party is ready.\n\n")
	helpText.WriteString("/done - log your party and start the next cycle\n")
	helpText.WriteString("/sleep [1h30m | 23:15 | RFC3339] - pause reminders; /sleep alone wakes you up\n")
	helpText.WriteString("/status - bot mode, uptime and latency\n")

	if h.admin.IsAdmin(senderID) {
		helpText.WriteString("\nAdmin commands:\n")
		helpText.WriteString("/adduser <user_id> [channel_id] [username] - add someone to the party list\n")
		helpText.WriteString("/removeuser <user_id> - remove someone from the party list\n")
		helpText.WriteString("/listusers [active|all] - show the party list\n")
	}
	if h.admin.IsOwner(senderID) {
		helpText.WriteString("/away [duration] - show yourself as away on the status page\n")
	}
	return c.Send(helpText.String())
}

func (h *CommandHandlers) handleStatus(c telebot.Context) error {
	snap := h.status.Snapshot()

	var b strings.Builder
	if snap.Mode == mode.StateMaintenance {
		b.WriteString("🔧 Updating...\n")
	} else {
		b.WriteString("🐝 Online\n")
	}
	b.WriteString(fmt.Sprintf("Mode: %s\n", snap.Mode))
	b.WriteString(fmt.Sprintf("Uptime: %s\n", snap.Uptime))
	if snap.LatencyMs != nil {
		b.WriteString(fmt.Sprintf("Latency: %.0f ms\n", *snap.LatencyMs))
	} else {
		b.WriteString("Latency: n/a\n")
	}
	b.WriteString(fmt.Sprintf("Party list: %d active / %d registered\n", snap.ActiveUsers, snap.RegisteredUsers))
	if snap.OwnerAwayUntil != nil {
		b.WriteString("Owner is away until " + snap.OwnerAwayUntil.Format("2006-01-02 15:04 MST") + "\n")
	}
	return c.Send(b.String())
}
