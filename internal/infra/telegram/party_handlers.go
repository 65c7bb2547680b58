// internal/infra/telegram/party_handlers.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"party_notification_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const (
	msgNotRegistered      = "You are not on the party list. Ask an admin to add you with /adduser."
	msgForbidden          = "You are not allowed to do that."
	msgStorageUnavailable = "Storage is unavailable right now, nothing was changed. Please try again later."
	msgInternalError      = "Something went wrong, please try again."
)

// replyForError maps core errors onto user-facing text.
func replyForError(err error) string {
	switch {
	case errors.Is(err, app.ErrNotFound):
		return msgNotRegistered
	case errors.Is(err, app.ErrForbidden):
		return msgForbidden
	case errors.Is(err, app.ErrPersistenceUnavailable):
		return msgStorageUnavailable
	default:
		return msgInternalError
	}
}

// PartyHandlers serves the commands and buttons of tracked users.
type PartyHandlers struct {
	ctx    context.Context
	party  *app.PartyService
	logger *logrus.Entry
}

func NewPartyHandlers(ctx context.Context, party *app.PartyService, baseLogger *logrus.Entry) *PartyHandlers {
	return &PartyHandlers{ctx: ctx, party: party, logger: baseLogger.WithField("handler_group", "party")}
}

// RegisterPartyHandlers registers /done, /sleep and the inline buttons of due notices.
func RegisterPartyHandlers(ctx context.Context, b *telebot.Bot, party *app.PartyService, baseLogger *logrus.Entry) {
	h := NewPartyHandlers(ctx, party, baseLogger)
	b.Handle("/done", h.handleDone)
	b.Handle("/sleep", h.handleSleep)
	b.Handle(&telebot.Btn{Unique: app.ButtonPartyDone}, h.handleDoneButton)
	b.Handle(&telebot.Btn{Unique: app.ButtonPartySnooze}, h.handleSnoozeButton)
}

func (h *PartyHandlers) handleDone(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithFields(logrus.Fields{"command": "/done", "sender_id": senderID})

	rec, err := h.party.Done(h.ctx, senderID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to complete party")
		return c.Send(replyForError(err))
	}

	logCtx.WithField("next_due_at", rec.DueAt).Info("Party completed")
	return c.Send(fmt.Sprintf("🎉 Party logged! Your next Robo Party is %s.", formatUntil(rec.DueAt, h.party.Now())))
}

func (h *PartyHandlers) handleSleep(c telebot.Context) error {
	senderID := c.Sender().ID
	logCtx := h.logger.WithFields(logrus.Fields{"command": "/sleep", "sender_id": senderID})
	now := h.party.Now()

	args := c.Args()
	if len(args) == 0 {
		if _, err := h.party.Wake(h.ctx, senderID); err != nil {
			logCtx.WithError(err).Warn("Failed to clear sleep")
			return c.Send(replyForError(err))
		}
		logCtx.Info("Sleep cleared")
		return c.Send("☀️ Welcome back! Party reminders are on again.")
	}

	until, err := parseSleepArg(strings.Join(args, " "), now)
	if err != nil {
		logCtx.WithField("args", args).Warn("Invalid /sleep argument")
		return c.Send("Usage: /sleep [1h30m | 23:15 | 2024-05-12T08:00:00Z]\n" + err.Error())
	}

	rec, err := h.party.SleepUntil(h.ctx, senderID, until)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to set sleep")
		return c.Send(replyForError(err))
	}
	logCtx.WithField("sleep_until", until).Info("Sleep set")

	if !rec.SleepUntil.Valid {
		return c.Send("That time has already passed, reminders stay on.")
	}
	return c.Send(fmt.Sprintf("😴 Reminders paused until %s.", formatUntil(rec.SleepUntil.Time, now)))
}

// buttonOwner checks that the callback came from the user the notice was for.
func buttonOwner(c telebot.Context) (int64, bool) {
	cb := c.Callback()
	if cb == nil {
		return 0, false
	}
	userID, err := strconv.ParseInt(strings.TrimSpace(cb.Data), 10, 64)
	if err != nil || c.Sender() == nil || c.Sender().ID != userID {
		return 0, false
	}
	return userID, true
}

func (h *PartyHandlers) handleDoneButton(c telebot.Context) error {
	userID, ok := buttonOwner(c)
	if !ok {
		return c.Respond(&telebot.CallbackResponse{Text: "This button is not for you."})
	}
	logCtx := h.logger.WithFields(logrus.Fields{"button": app.ButtonPartyDone, "sender_id": userID})

	rec, err := h.party.Done(h.ctx, userID)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to complete party from button")
		return c.Respond(&telebot.CallbackResponse{Text: replyForError(err), ShowAlert: true})
	}
	logCtx.WithField("next_due_at", rec.DueAt).Info("Party completed")

	if err := c.Edit(fmt.Sprintf("✅ Party done! Next one %s.", formatUntil(rec.DueAt, h.party.Now()))); err != nil {
		logCtx.WithError(err).Debug("Could not edit notice message")
	}
	return c.Respond(&telebot.CallbackResponse{Text: "Party logged 🎉"})
}

func (h *PartyHandlers) handleSnoozeButton(c telebot.Context) error {
	userID, ok := buttonOwner(c)
	if !ok {
		return c.Respond(&telebot.CallbackResponse{Text: "This button is not for you."})
	}
	logCtx := h.logger.WithFields(logrus.Fields{"button": app.ButtonPartySnooze, "sender_id": userID})

	rec, err := h.party.SleepFor(h.ctx, userID, app.SnoozeDuration)
	if err != nil {
		logCtx.WithError(err).Warn("Failed to snooze from button")
		return c.Respond(&telebot.CallbackResponse{Text: replyForError(err), ShowAlert: true})
	}
	logCtx.WithField("sleep_until", rec.SleepUntil.Time).Info("Party snoozed")

	if err := c.Edit(fmt.Sprintf("😴 Snoozed. I'll remind you again %s.", formatUntil(rec.SleepUntil.Time, h.party.Now()))); err != nil {
		logCtx.WithError(err).Debug("Could not edit notice message")
	}
	return c.Respond(&telebot.CallbackResponse{Text: "Snoozed for an hour"})
}
