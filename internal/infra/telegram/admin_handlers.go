package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"party_notification_bot/internal/app"
	"party_notification_bot/internal/domain/schedule"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// AdminHandlers serves user management and the owner-only commands.
type AdminHandlers struct {
	ctx          context.Context
	adminService *app.AdminService
	clock        app.Clock
	logger       *logrus.Entry
}

func NewAdminHandlers(ctx context.Context, adminService *app.AdminService, clock app.Clock, baseLogger *logrus.Entry) *AdminHandlers {
	return &AdminHandlers{
		ctx:          ctx,
		adminService: adminService,
		clock:        clock,
		logger:       baseLogger.WithField("handler_group", "admin"),
	}
}

// RegisterAdminHandlers registers handlers for admin and owner commands.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, adminService *app.AdminService, clock app.Clock, baseLogger *logrus.Entry) {
	h := NewAdminHandlers(ctx, adminService, clock, baseLogger)
	b.Handle("/adduser", h.handleAddUser)
	b.Handle("/removeuser", h.handleRemoveUser)
	b.Handle("/listusers", h.handleListUsers)
	b.Handle("/updating", h.handleUpdating)
	b.Handle("/away", h.handleAway)
}

func (h *AdminHandlers) commandLogger(c telebot.Context, command string) *logrus.Entry {
	return h.logger.WithFields(logrus.Fields{
		"handler":   command,
		"sender_id": c.Sender().ID,
	})
}

func (h *AdminHandlers) handleAddUser(c telebot.Context) error {
	handlerLogger := h.commandLogger(c, "/adduser")
	handlerLogger.Info("Command received")

	if !h.adminService.IsAdmin(c.Sender().ID) {
		handlerLogger.Warn("Unauthorized access attempt")
		return c.Send(msgForbidden)
	}

	args := c.Args()
	// Expected format: /adduser <UserID> [ChannelID] [Username]
	if len(args) < 1 || len(args) > 3 {
		handlerLogger.WithField("args_count", len(args)).Warn("Invalid command format")
		return c.Send("Usage: /adduser <user_id> [channel_id] [username]")
	}

	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return c.Send("Error: user_id must be a number.")
	}
	var channelRef int64
	if len(args) >= 2 {
		channelRef, err = strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return c.Send("Error: channel_id must be a number.")
		}
	}
	var username string
	if len(args) == 3 {
		username = strings.TrimPrefix(args[2], "@")
	}

	handlerLogger = handlerLogger.WithFields(logrus.Fields{
		"target_user_id": userID,
		"channel_ref":    channelRef,
	})

	rec, err := h.adminService.RegisterUser(h.ctx, c.Sender().ID, userID, channelRef, username)
	if err != nil {
		if errors.Is(err, app.ErrAlreadyActive) {
			handlerLogger.Warn("User already registered")
			return c.Send(fmt.Sprintf("User %d is already on the party list.", userID))
		}
		handlerLogger.WithError(err).Error("Failed to register user")
		return c.Send(replyForError(err))
	}

	handlerLogger.WithField("due_at", rec.DueAt).Info("User registered")
	return c.Send(fmt.Sprintf("✅ %s is on the party list. First reminder %s.", describeUser(*rec), formatUntil(rec.DueAt, h.clock.Now())))
}

func (h *AdminHandlers) handleRemoveUser(c telebot.Context) error {
	handlerLogger := h.commandLogger(c, "/removeuser")
	handlerLogger.Info("Command received")

	if !h.adminService.IsAdmin(c.Sender().ID) {
		handlerLogger.Warn("Unauthorized access attempt")
		return c.Send(msgForbidden)
	}

	args := c.Args()
	if len(args) != 1 {
		return c.Send("Usage: /removeuser <user_id>")
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		handlerLogger.WithField("arg", args[0]).Warn("Invalid user ID format")
		return c.Send("Error: user_id must be a number.")
	}
	handlerLogger = handlerLogger.WithField("target_user_id", userID)

	rec, err := h.adminService.RemoveUser(h.ctx, c.Sender().ID, userID)
	if err != nil {
		if errors.Is(err, app.ErrNotFound) {
			handlerLogger.Warn("User to remove not found")
			return c.Send(fmt.Sprintf("User %d is not on the party list.", userID))
		}
		handlerLogger.WithError(err).Error("Failed to remove user")
		return c.Send(replyForError(err))
	}

	handlerLogger.Info("User removed (deactivated)")
	return c.Send(fmt.Sprintf("🗑 %s was removed from the party list.", describeUser(*rec)))
}

func (h *AdminHandlers) handleListUsers(c telebot.Context) error {
	handlerLogger := h.commandLogger(c, "/listusers")

	args := c.Args()
	listType := "active" // Default to active
	if len(args) > 0 {
		listType = strings.ToLower(args[0])
	}
	if listType != "active" && listType != "all" {
		return c.Send("Invalid argument. Use 'active' or 'all'.")
	}
	handlerLogger = handlerLogger.WithField("list_type", listType)

	records, err := h.adminService.ListUsers(c.Sender().ID, listType == "active")
	if err != nil {
		handlerLogger.WithError(err).Warn("Failed to list users")
		return c.Send(replyForError(err))
	}
	if len(records) == 0 {
		return c.Send("The party list is empty.")
	}

	now := h.clock.Now()
	var response strings.Builder
	response.WriteString(fmt.Sprintf("--- Party list (%s) ---\n", listType))
	for _, r := range records {
		status := "inactive"
		switch {
		case !r.Active:
		case r.IsSleeping(now):
			status = "sleeping until " + r.SleepUntil.Time.Format("2006-01-02 15:04")
		case r.IsDue(now):
			status = "due now"
		default:
			status = "next " + formatUntil(r.DueAt, now)
		}
		response.WriteString(fmt.Sprintf("%s, chat %d: %s\n", describeUser(r), r.ChannelRef, status))
	}
	handlerLogger.WithField("users_count", len(records)).Info("Party list sent")
	return c.Send(response.String())
}

// handleUpdating is the hidden maintenance toggle. Anyone but the owner is
// ignored, and the command message is removed either way.
func (h *AdminHandlers) handleUpdating(c telebot.Context) error {
	handlerLogger := h.commandLogger(c, "/updating")

	if err := c.Delete(); err != nil {
		handlerLogger.WithError(err).Debug("Could not delete command message")
	}

	m, err := h.adminService.ToggleMode(h.ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, app.ErrForbidden) {
			handlerLogger.Warn("Mode toggle by non-owner ignored")
			return nil
		}
		handlerLogger.WithError(err).Error("Failed to toggle mode")
		return c.Send(replyForError(err))
	}

	if m.InMaintenance() {
		return c.Send("🔧 Maintenance mode ON. Notices are suppressed and the status page reports 503.")
	}
	return c.Send("🐝 Maintenance mode OFF. Back to normal.")
}

func (h *AdminHandlers) handleAway(c telebot.Context) error {
	handlerLogger := h.commandLogger(c, "/away")

	if !h.adminService.IsOwner(c.Sender().ID) {
		handlerLogger.Warn("Unauthorized access attempt")
		return c.Send(msgForbidden)
	}

	var d time.Duration
	if args := c.Args(); len(args) > 0 {
		var err error
		d, err = time.ParseDuration(args[0])
		if err != nil || d < 0 {
			return c.Send("Usage: /away [duration, e.g. 8h]. Without a duration the flag is cleared.")
		}
	}

	if err := h.adminService.SetAway(c.Sender().ID, d); err != nil {
		handlerLogger.WithError(err).Warn("Failed to set away flag")
		return c.Send(replyForError(err))
	}
	if d == 0 {
		handlerLogger.Info("Away flag cleared")
		return c.Send("Away flag cleared.")
	}
	handlerLogger.WithField("duration", d).Info("Away flag set")
	return c.Send(fmt.Sprintf("💤 Marked as away for %s.", d))
}

func describeUser(r schedule.Record) string {
	if r.Username != "" {
		return fmt.Sprintf("@%s (%d)", r.Username, r.UserID)
	}
	return fmt.Sprintf("User %d", r.UserID)
}
