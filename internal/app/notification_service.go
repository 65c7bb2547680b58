// internal/app/notification_service.go
package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	domainTelegram "party_notification_bot/internal/domain/telegram"
	"party_notification_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"
)

// Unique names of the inline buttons attached to due notices. The telegram
// handlers register callbacks under the same names.
const (
	ButtonPartyDone   = "party_done"
	ButtonPartySnooze = "party_snooze"
)

// SnoozeDuration is how long the Snooze button sleeps the user.
const SnoozeDuration = time.Hour

// NoticeKind distinguishes the due notice from the optional advisory.
type NoticeKind string

const (
	NoticeDue  NoticeKind = "due"
	NoticeLead NoticeKind = "lead"
)

// NotificationIntent is everything the sink needs to deliver one notice.
type NotificationIntent struct {
	UserID     int64
	ChannelRef int64
	Kind       NoticeKind
	DueAt      time.Time
}

// NotificationSink delivers notices. Errors wrap ErrDeliveryFailed.
type NotificationSink interface {
	Deliver(ctx context.Context, intent NotificationIntent) error
}

// NotificationServiceOptions tunes outbound delivery.
type NotificationServiceOptions struct {
	RatePerSec int // Telegram allows roughly 30 msg/s per bot
	// BreakerFailures consecutive failures open the circuit for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// NotificationService implements NotificationSink on top of the chat client.
// Sends are rate limited and guarded by a circuit breaker so a platform outage
// fails fast instead of stalling every sweep for the full delivery timeout.
type NotificationService struct {
	telegramClient domainTelegram.Client
	limiter        *rate.Limiter
	breaker        *gobreaker.CircuitBreaker[struct{}]
	logger         *logrus.Entry
}

func NewNotificationService(tc domainTelegram.Client, opts NotificationServiceOptions, logger *logrus.Entry) *NotificationService {
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 20
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	s := &NotificationService{
		telegramClient: tc,
		limiter:        rate.NewLimiter(rate.Limit(opts.RatePerSec), opts.RatePerSec),
		logger:         logger,
	}
	s.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "telegram-delivery",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= opts.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Delivery circuit breaker changed state")
		},
	})
	return s
}

// Deliver sends the notice for intent and returns once Telegram acknowledged
// it or ctx expired.
func (s *NotificationService) Deliver(ctx context.Context, intent NotificationIntent) error {
	logCtx := s.logger.WithFields(logrus.Fields{
		"user_id": intent.UserID,
		"chat_id": intent.ChannelRef,
		"kind":    intent.Kind,
	})

	if err := s.limiter.Wait(ctx); err != nil {
		metrics.NotificationFailures.WithLabelValues(string(intent.Kind)).Inc()
		return fmt.Errorf("%w: rate limiter: %w", ErrDeliveryFailed, err)
	}

	text, opts := renderNotice(intent)
	_, err := s.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, s.sendWithContext(ctx, intent.ChannelRef, text, opts)
	})
	if err != nil {
		metrics.NotificationFailures.WithLabelValues(string(intent.Kind)).Inc()
		logCtx.WithError(err).Warn("Failed to deliver notice")
		return fmt.Errorf("%w: user %d: %w", ErrDeliveryFailed, intent.UserID, err)
	}

	metrics.NotificationsSent.WithLabelValues(string(intent.Kind)).Inc()
	logCtx.Info("Notice delivered")
	return nil
}

// sendWithContext bounds a blocking telebot send by ctx. An abandoned send
// finishes in the background under telebot's own HTTP timeout.
func (s *NotificationService) sendWithContext(ctx context.Context, chatID int64, text string, opts *telebot.SendOptions) error {
	done := make(chan error, 1)
	go func() {
		done <- s.telegramClient.SendMessage(chatID, text, opts)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func renderNotice(intent NotificationIntent) (string, *telebot.SendOptions) {
	if intent.Kind == NoticeLead {
		text := "🤖🎉 *ROBO PARTY ALERT!* 🎉🤖\n\n" +
			"Your Robo Party is available in approximately " + formatMinutes(time.Until(intent.DueAt)) + "!\n" +
			"Get ready to party! 🐝✨"
		return text, &telebot.SendOptions{ParseMode: telebot.ModeMarkdown}
	}

	text := "🤖🎉 *ROBO PARTY TIME!* 🎉🤖\n\n" +
		"Your Robo Party is ready now! Tap ✅ once you've done it."

	replyMarkup := &telebot.ReplyMarkup{}
	uid := strconv.FormatInt(intent.UserID, 10)
	btnDone := replyMarkup.Data("✅ Done", ButtonPartyDone, uid)
	btnSnooze := replyMarkup.Data("😴 Snooze 1h", ButtonPartySnooze, uid)
	replyMarkup.Inline(replyMarkup.Row(btnDone, btnSnooze))

	return text, &telebot.SendOptions{ReplyMarkup: replyMarkup, ParseMode: telebot.ModeMarkdown}
}

func formatMinutes(d time.Duration) string {
	m := int(d.Round(time.Minute) / time.Minute)
	if m <= 1 {
		return "1 minute"
	}
	return strconv.Itoa(m) + " minutes"
}
