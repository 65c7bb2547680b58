package app

import (
	"context"
	"errors"
	"time"

	"party_notification_bot/internal/domain/schedule"
	"party_notification_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// SweepOptions configures the due-check.
type SweepOptions struct {
	DeliveryTimeout time.Duration // bound on a single delivery inside a tick
	LeadNotice      bool          // send the advisory REMINDER_LEAD before DueAt
	ReminderLead    time.Duration
}

// SweepReport summarises one tick.
type SweepReport struct {
	At          time.Time
	Due         int
	Notified    int
	Failed      int
	Sleeping    int
	Suppressed  int // advanced silently because of maintenance
	Stale       int // record changed while its notice was in flight
	LeadNotices int
}

// SweepEngine scans due records once per tick and emits notices.
type SweepEngine struct {
	store  *ScheduleStore
	modes  *ModeController
	sink   NotificationSink
	clock  Clock
	opts   SweepOptions
	logger *logrus.Entry
}

func NewSweepEngine(store *ScheduleStore, modes *ModeController, sink NotificationSink, clock Clock, opts SweepOptions, logger *logrus.Entry) *SweepEngine {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	return &SweepEngine{
		store:  store,
		modes:  modes,
		sink:   sink,
		clock:  clock,
		opts:   opts,
		logger: logger,
	}
}

// Tick runs one sweep:
//   - sleeping users are skipped and stay due;
//   - in maintenance every due cycle advances without a notice;
//   - otherwise the notice is delivered and, only on success, the cycle advances.
//
// A failed delivery leaves DueAt untouched so the next tick retries it.
func (e *SweepEngine) Tick(ctx context.Context) SweepReport {
	start := time.Now()
	now := e.clock.Now()
	current := e.modes.Current()
	records := e.store.Due(now)

	report := SweepReport{At: now, Due: len(records)}
	for i := range records {
		rec := &records[i]
		logCtx := e.logger.WithFields(logrus.Fields{
			"user_id": rec.UserID,
			"due_at":  rec.DueAt,
		})

		if rec.IsSleeping(now) {
			report.Sleeping++
			metrics.SweepRecords.WithLabelValues("sleeping").Inc()
			logCtx.WithField("sleep_until", rec.SleepUntil.Time).Debug("User sleeping, notice held")
			continue
		}

		if current.InMaintenance() {
			if e.advance(ctx, rec, false, schedule.HistorySourceSkipped, logCtx) {
				report.Suppressed++
				metrics.SweepRecords.WithLabelValues("suppressed").Inc()
			} else {
				report.Stale++
			}
			continue
		}

		err := e.deliver(ctx, NotificationIntent{
			UserID:     rec.UserID,
			ChannelRef: rec.ChannelRef,
			Kind:       NoticeDue,
			DueAt:      rec.DueAt,
		})
		if err != nil {
			report.Failed++
			metrics.SweepRecords.WithLabelValues("failed").Inc()
			logCtx.WithError(err).Warn("Due notice not delivered, will retry next sweep")
			continue
		}

		if e.advance(ctx, rec, true, schedule.HistorySourceSweep, logCtx) {
			report.Notified++
			metrics.SweepRecords.WithLabelValues("notified").Inc()
		} else {
			report.Stale++
		}
	}

	if e.opts.LeadNotice && !current.InMaintenance() {
		report.LeadNotices = e.sendLeadNotices(ctx, now)
	}

	metrics.SweepRuns.Inc()
	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	if report.Due > 0 || report.LeadNotices > 0 {
		e.logger.WithFields(logrus.Fields{
			"due":        report.Due,
			"notified":   report.Notified,
			"failed":     report.Failed,
			"sleeping":   report.Sleeping,
			"suppressed": report.Suppressed,
			"stale":      report.Stale,
			"lead":       report.LeadNotices,
			"mode":       current.State,
		}).Info("Sweep finished")
	}
	return report
}

func (e *SweepEngine) deliver(ctx context.Context, intent NotificationIntent) error {
	dctx, cancel := context.WithTimeout(ctx, e.opts.DeliveryTimeout)
	defer cancel()
	return e.sink.Deliver(dctx, intent)
}

// advance closes the observed cycle and reports whether it did so.
func (e *SweepEngine) advance(ctx context.Context, rec *schedule.Record, notified bool, source schedule.HistorySource, logCtx *logrus.Entry) bool {
	next, err := e.store.Advance(ctx, rec.UserID, rec.DueAt, notified, source)
	switch {
	case err == nil:
		logCtx.WithFields(logrus.Fields{
			"next_due_at": next.DueAt,
			"source":      source,
		}).Info("Cycle advanced")
		return true
	case errors.Is(err, errCycleMoved), errors.Is(err, ErrNotFound):
		metrics.SweepRecords.WithLabelValues("stale").Inc()
		logCtx.Info("Record changed during sweep, leaving it as is")
	default:
		logCtx.WithError(err).Error("Failed to advance cycle, user stays due")
	}
	return false
}

func (e *SweepEngine) sendLeadNotices(ctx context.Context, now time.Time) int {
	sent := 0
	for _, rec := range e.store.Upcoming(now, e.opts.ReminderLead) {
		if rec.IsSleeping(now) {
			continue
		}
		logCtx := e.logger.WithField("user_id", rec.UserID)
		err := e.deliver(ctx, NotificationIntent{
			UserID:     rec.UserID,
			ChannelRef: rec.ChannelRef,
			Kind:       NoticeLead,
			DueAt:      rec.DueAt,
		})
		if err != nil {
			logCtx.WithError(err).Warn("Advisory notice not delivered, will retry inside the lead window")
			continue
		}
		if err := e.store.MarkLeadSent(ctx, rec.UserID, rec.DueAt); err != nil && !errors.Is(err, errCycleMoved) {
			logCtx.WithError(err).Error("Failed to remember advisory notice")
			continue
		}
		sent++
	}
	return sent
}
