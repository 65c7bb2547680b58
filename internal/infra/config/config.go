package config

import (
	"fmt"
	"os"
	"strconv"
	"strings" // For LogLevel normalization
	"time"

	"github.com/joho/godotenv"
)

// AppConfig holds all configuration for the application
type AppConfig struct {
	TelegramToken    string
	DatabaseURL      string
	OwnerTelegramID  int64
	AdminTelegramIDs []int64
	LogLevel         string
	Environment      string

	HTTPAddr      string
	AdminUsername string
	AdminPassword string
	SessionTTL    time.Duration

	CycleInterval      time.Duration
	ReminderLead       time.Duration
	LeadNoticeEnabled  bool
	StrictRegistration bool
	SeedUserID         int64

	SweepSpec string // cron spec of the due-check
	ProbeSpec string // cron spec of the presence/latency probe

	LatencyCapacity  int
	DeliveryTimeout  time.Duration
	NotifyRatePerSec int
}

// Load reads configuration from environment variables and .env file (if present).
func Load() (*AppConfig, error) {
	// Attempt to load .env file. Errors are ignored if the file doesn't exist.
	// godotenv.Load will not override existing env variables.
	_ = godotenv.Load()

	cfg := &AppConfig{}
	var err error

	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")
	if cfg.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_TOKEN is not set")
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}

	ownerIDStr := os.Getenv("OWNER_TELEGRAM_ID")
	if ownerIDStr == "" {
		return nil, fmt.Errorf("OWNER_TELEGRAM_ID is not set")
	}
	cfg.OwnerTelegramID, err = strconv.ParseInt(ownerIDStr, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid OWNER_TELEGRAM_ID: %w", err)
	}

	cfg.AdminTelegramIDs, err = parseIDList(os.Getenv("ADMIN_TELEGRAM_IDS"))
	if err != nil {
		return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_IDS: %w", err)
	}

	cfg.LogLevel = strings.ToLower(os.Getenv("LOG_LEVEL"))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info" // Default log level
	}

	cfg.Environment = strings.ToLower(os.Getenv("ENVIRONMENT"))
	if cfg.Environment == "" {
		cfg.Environment = "development" // Default environment
	}

	cfg.HTTPAddr = os.Getenv("HTTP_ADDR")
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":10000"
		}
	}
	cfg.AdminUsername = os.Getenv("ADMIN_USERNAME")
	cfg.AdminPassword = os.Getenv("ADMIN_PASSWORD")

	if cfg.SessionTTL, err = durationEnv("SESSION_TTL", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.CycleInterval, err = durationEnv("CYCLE_INTERVAL", 3*time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReminderLead, err = durationEnv("REMINDER_LEAD", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.ReminderLead >= cfg.CycleInterval {
		return nil, fmt.Errorf("REMINDER_LEAD (%s) must be shorter than CYCLE_INTERVAL (%s)", cfg.ReminderLead, cfg.CycleInterval)
	}
	if cfg.DeliveryTimeout, err = durationEnv("DELIVERY_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if cfg.LeadNoticeEnabled, err = boolEnv("LEAD_NOTICE_ENABLED", false); err != nil {
		return nil, err
	}
	if cfg.StrictRegistration, err = boolEnv("STRICT_REGISTRATION", false); err != nil {
		return nil, err
	}

	if seed := os.Getenv("SEED_USER_ID"); seed != "" {
		cfg.SeedUserID, err = strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SEED_USER_ID: %w", err)
		}
	}

	cfg.SweepSpec = os.Getenv("SWEEP_SPEC")
	if cfg.SweepSpec == "" {
		cfg.SweepSpec = "@every 60s" // Default: once a minute
	}
	cfg.ProbeSpec = os.Getenv("PROBE_SPEC")
	if cfg.ProbeSpec == "" {
		cfg.ProbeSpec = "@every 120s" // Default: every two minutes
	}

	if cfg.LatencyCapacity, err = intEnv("LATENCY_CAPACITY", 60); err != nil {
		return nil, err
	}
	if cfg.NotifyRatePerSec, err = intEnv("NOTIFY_RATE_PER_SEC", 20); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DashboardAuthEnabled reports whether the dashboard requires a login.
func (c *AppConfig) DashboardAuthEnabled() bool {
	return c.AdminUsername != "" && c.AdminPassword != ""
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %s", key, v)
	}
	return d, nil
}

func intEnv(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive, got %d", key, n)
	}
	return n, nil
}

func boolEnv(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseIDList(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
