package app

import (
	"fmt"
	"time"

	"party_notification_bot/internal/domain/mode"
)

// StatusSnapshot is the read-only view rendered by the status surfaces.
type StatusSnapshot struct {
	Mode            mode.State      `json:"mode"`
	ModeChangedAt   time.Time       `json:"mode_changed_at"`
	HTTPStatus      int             `json:"-"`
	Uptime          string          `json:"uptime"`
	UptimeSeconds   float64         `json:"uptime_seconds"`
	LatencyMs       *float64        `json:"latency_ms"`
	LatencyHistory  []LatencySample `json:"latency_history"`
	ActiveUsers     int             `json:"active_users"`
	RegisteredUsers int             `json:"registered_users"`
	OwnerAwayUntil  *time.Time      `json:"owner_away_until,omitempty"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

// StatusService assembles StatusSnapshots. It never mutates core state.
type StatusService struct {
	modes     *ModeController
	store     *ScheduleStore
	latency   *LatencyRecorder
	clock     Clock
	startedAt time.Time
}

func NewStatusService(modes *ModeController, store *ScheduleStore, latency *LatencyRecorder, clock Clock) *StatusService {
	return &StatusService{
		modes:     modes,
		store:     store,
		latency:   latency,
		clock:     clock,
		startedAt: clock.Now(),
	}
}

// Snapshot captures the current status.
func (s *StatusService) Snapshot() StatusSnapshot {
	now := s.clock.Now()
	m := s.modes.Current()
	active, registered := s.store.Counts()
	uptime := now.Sub(s.startedAt)

	snap := StatusSnapshot{
		Mode:            m.State,
		ModeChangedAt:   m.ChangedAt,
		HTTPStatus:      m.HTTPStatus(),
		Uptime:          FormatUptime(uptime),
		UptimeSeconds:   uptime.Seconds(),
		LatencyHistory:  s.latency.Snapshot(),
		ActiveUsers:     active,
		RegisteredUsers: registered,
		GeneratedAt:     now,
	}
	if latest, ok := s.latency.Latest(); ok {
		v := latest.ValueMs
		snap.LatencyMs = &v
	}
	if until, ok := s.modes.OwnerAwayUntil(); ok {
		snap.OwnerAwayUntil = &until
	}
	return snap
}

// FormatUptime renders d as "1d 2h 3m 4s", dropping leading zero units down to minutes.
func FormatUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	default:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}
