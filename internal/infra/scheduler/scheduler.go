package scheduler

import (
	"context"
	"fmt"
	"time"

	"party_notification_bot/internal/app"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const (
	sweepJobTimeout = 5 * time.Minute
	probeJobTimeout = 30 * time.Second
	pruneSpec       = "@every 10m"
)

// Sweeper runs one due-check.
type Sweeper interface {
	Tick(ctx context.Context) app.SweepReport
}

// Prober measures latency and refreshes presence.
type Prober interface {
	Run(ctx context.Context)
}

// SessionPruner drops expired dashboard sessions.
type SessionPruner interface {
	Prune() int
}

// PartyScheduler drives the periodic jobs. Overlapping runs of the same job are
// skipped and panics are recovered, so a slow sweep never stacks up behind itself.
type PartyScheduler struct {
	cronEngine *cron.Cron
	sweeper    Sweeper
	prober     Prober
	pruner     SessionPruner
	logger     *logrus.Entry
	sweepSpec  string
	probeSpec  string
}

func NewPartyScheduler(
	sweeper Sweeper,
	prober Prober,
	pruner SessionPruner, // optional
	logger *logrus.Entry,
	sweepSpec string, // e.g. "@every 60s"
	probeSpec string, // e.g. "@every 120s"
) *PartyScheduler {
	cronLogger := cron.PrintfLogger(logger)
	return &PartyScheduler{
		cronEngine: cron.New(
			cron.WithLocation(time.Local), // Use server's local time for cron
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		sweeper:   sweeper,
		prober:    prober,
		pruner:    pruner,
		logger:    logger,
		sweepSpec: sweepSpec,
		probeSpec: probeSpec,
	}
}

// Start registers the jobs and starts the cron engine. Nothing runs if any
// spec is invalid.
func (s *PartyScheduler) Start() error {
	s.logger.Info("Starting party scheduler...")

	if _, err := s.cronEngine.AddFunc(s.sweepSpec, s.runSweep); err != nil {
		return fmt.Errorf("could not add sweep job (%q): %w", s.sweepSpec, err)
	}

	if s.prober != nil {
		if _, err := s.cronEngine.AddFunc(s.probeSpec, s.runProbe); err != nil {
			return fmt.Errorf("could not add probe job (%q): %w", s.probeSpec, err)
		}
	}

	if s.pruner != nil {
		if _, err := s.cronEngine.AddFunc(pruneSpec, s.runPrune); err != nil {
			return fmt.Errorf("could not add session prune job: %w", err)
		}
	}

	s.cronEngine.Start()
	s.logger.WithFields(logrus.Fields{
		"sweep_spec": s.sweepSpec,
		"probe_spec": s.probeSpec,
		"jobs":       len(s.cronEngine.Entries()),
	}).Info("Party scheduler started")
	return nil
}

func (s *PartyScheduler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepJobTimeout)
	defer cancel()
	report := s.sweeper.Tick(ctx)
	s.logger.WithFields(logrus.Fields{
		"due":      report.Due,
		"notified": report.Notified,
		"failed":   report.Failed,
	}).Debug("Sweep job finished")
}

func (s *PartyScheduler) runProbe() {
	ctx, cancel := context.WithTimeout(context.Background(), probeJobTimeout)
	defer cancel()
	s.prober.Run(ctx)
}

func (s *PartyScheduler) runPrune() {
	if n := s.pruner.Prune(); n > 0 {
		s.logger.WithField("sessions", n).Info("Expired dashboard sessions pruned")
	}
}

// Stop stops scheduling new runs and waits for an in-flight job to finish.
func (s *PartyScheduler) Stop() {
	s.logger.Info("Stopping party scheduler...")
	ctx := s.cronEngine.Stop() // Stops the scheduler from adding new jobs, waits for running jobs.
	<-ctx.Done()               // Wait for graceful shutdown
	s.logger.Info("Party scheduler gracefully stopped")
}
