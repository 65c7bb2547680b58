package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"party_notification_bot/internal/app"
	"party_notification_bot/internal/infra/config"
	idb "party_notification_bot/internal/infra/database"
	"party_notification_bot/internal/infra/logger"
	"party_notification_bot/internal/infra/scheduler"
	"party_notification_bot/internal/infra/telegram"
	"party_notification_bot/internal/infra/web"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
	"gopkg.in/telebot.v3/middleware"
)

const (
	bootTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}
	logger.Init(cfg)

	mainLogger := logger.Component("main")
	mainLogger.WithFields(logrus.Fields{
		"environment":    cfg.Environment,
		"owner_id":       cfg.OwnerTelegramID,
		"admins":         len(cfg.AdminTelegramIDs),
		"cycle_interval": cfg.CycleInterval,
		"lead_notice":    cfg.LeadNoticeEnabled,
	}).Info("Party Notification Bot starting")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Database Connection
	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not connect to database")
	}
	defer db.Close()

	bootCtx, cancelBoot := context.WithTimeout(rootCtx, bootTimeout)
	defer cancelBoot()
	if err := idb.EnsureSchema(bootCtx, db); err != nil {
		mainLogger.WithError(err).Fatal("Could not apply database schema")
	}
	mainLogger.Info("Database connection established and schema applied")

	// Initialize Repositories
	scheduleRepo := idb.NewPostgresScheduleRepository(db)
	modeRepo := idb.NewPostgresModeRepository(db)

	clock := app.SystemClock{}

	// Core state
	modes := app.NewModeController(modeRepo, clock, cfg.OwnerTelegramID, nil, logger.Component("mode"))
	currentMode, err := modes.Load(bootCtx)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not load global mode")
	}
	mainLogger.WithField("mode", currentMode.State).Info("Global mode loaded")

	store := app.NewScheduleStore(scheduleRepo, clock, app.ScheduleStoreOptions{
		Interval:           cfg.CycleInterval,
		StrictRegistration: cfg.StrictRegistration,
	}, logger.Component("schedule"))
	if err := store.Load(bootCtx); err != nil {
		mainLogger.WithError(err).Fatal("Could not load schedule records")
	}

	if cfg.SeedUserID != 0 {
		rec, err := store.Register(bootCtx, cfg.SeedUserID, 0, "")
		if err != nil && !errors.Is(err, app.ErrAlreadyActive) {
			mainLogger.WithError(err).Fatal("Could not register seed user")
		}
		mainLogger.WithFields(logrus.Fields{
			"user_id": cfg.SeedUserID,
			"due_at":  rec.DueAt,
		}).Info("Seed user registered")
	}

	// Initialize Telegram Bot
	botLogger := logger.Component("telebot")
	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) { // Global error handler
			entry := botLogger.WithError(err)
			if c != nil && c.Sender() != nil {
				entry = entry.WithFields(logrus.Fields{
					"sender_id": c.Sender().ID,
					"text":      c.Text(),
				})
			}
			entry.Error("Telegram handler error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		mainLogger.WithError(err).Fatal("Could not create Telegram bot")
	}
	bot.Use(middleware.Recover())

	tgClient := telegram.NewTelebotAdapter(bot)
	modes.SetPresenceUpdater(tgClient)
	modes.SyncPresence(bootCtx)

	// Services
	latency := app.NewLatencyRecorder(cfg.LatencyCapacity, clock)
	notificationService := app.NewNotificationService(tgClient, app.NotificationServiceOptions{
		RatePerSec: cfg.NotifyRatePerSec,
	}, logger.Component("notify"))
	adminService := app.NewAdminService(store, modes, cfg.AdminTelegramIDs)
	partyService := app.NewPartyService(store, clock)
	statusService := app.NewStatusService(modes, store, latency, clock)
	sweep := app.NewSweepEngine(store, modes, notificationService, clock, app.SweepOptions{
		DeliveryTimeout: cfg.DeliveryTimeout,
		LeadNotice:      cfg.LeadNoticeEnabled,
		ReminderLead:    cfg.ReminderLead,
	}, logger.Component("sweep"))
	probe := app.NewProbe(tgClient, latency, modes, logger.Component("probe"))

	// Register Handlers
	handlerLogger := logger.Component("telegram")
	telegram.RegisterAdminHandlers(rootCtx, bot, adminService, clock, handlerLogger)
	telegram.RegisterPartyHandlers(rootCtx, bot, partyService, handlerLogger)
	telegram.RegisterBotCommands(rootCtx, bot, partyService, adminService, statusService, handlerLogger)
	mainLogger.Info("Telegram handlers registered")

	// HTTP status server
	sessions := web.NewSessionStore(cfg.SessionTTL, clock)
	var creds *web.Credentials
	if cfg.DashboardAuthEnabled() {
		creds, err = web.NewCredentials(cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			mainLogger.WithError(err).Fatal("Could not prepare dashboard credentials")
		}
	} else {
		mainLogger.Warn("ADMIN_USERNAME/ADMIN_PASSWORD not set, dashboard is served without login")
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           web.NewServer(statusService, sessions, creds, logger.Component("web")).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
	}

	// Scheduler
	partyScheduler := scheduler.NewPartyScheduler(sweep, probe, sessions, logger.Component("scheduler"), cfg.SweepSpec, cfg.ProbeSpec)
	if err := partyScheduler.Start(); err != nil {
		mainLogger.WithError(err).Fatal("Could not start scheduler")
	}
	probe.Run(bootCtx)

	go func() {
		mainLogger.WithField("addr", cfg.HTTPAddr).Info("Status server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			mainLogger.WithError(err).Error("Status server failed")
			stop()
		}
	}()

	// Start bot in a goroutine so it doesn't block graceful shutdown handling
	go bot.Start()
	mainLogger.Info("Application setup complete, bot and scheduler are running")

	<-rootCtx.Done() // Block until a signal is received
	mainLogger.Info("Shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mainLogger.WithError(err).Warn("Status server did not shut down cleanly")
	}
	bot.Stop()
	partyScheduler.Stop() // waits for an in-flight sweep
	mainLogger.Info("Application shut down gracefully")
}
