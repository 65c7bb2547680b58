package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"party_notification_bot/internal/domain/mode"
	idb "party_notification_bot/internal/infra/database"
	"party_notification_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

const presenceTimeout = 10 * time.Second

// PresenceUpdater publishes the bot's status line on the chat platform.
type PresenceUpdater interface {
	SetPresence(ctx context.Context, text string) error
}

// ModeController owns the global mode singleton and the owner's away flag.
// Toggles are serialized by a single mutex and committed durably before the
// new value becomes readable, so Current never observes an uncommitted state.
type ModeController struct {
	repo     mode.Repository
	clock    Clock
	ownerID  int64
	presence PresenceUpdater
	logger   *logrus.Entry

	mu      sync.Mutex // serializes writes
	current atomic.Pointer[mode.GlobalMode]

	awayMu sync.RWMutex
	away   map[int64]time.Time
}

func NewModeController(repo mode.Repository, clock Clock, ownerID int64, presence PresenceUpdater, logger *logrus.Entry) *ModeController {
	mc := &ModeController{
		repo:     repo,
		clock:    clock,
		ownerID:  ownerID,
		presence: presence,
		logger:   logger,
		away:     make(map[int64]time.Time),
	}
	mc.current.Store(&mode.GlobalMode{State: mode.StateNormal, ChangedAt: clock.Now()})
	return mc
}

// SetPresenceUpdater attaches the chat platform once the bot exists.
func (mc *ModeController) SetPresenceUpdater(p PresenceUpdater) {
	mc.mu.Lock()
	mc.presence = p
	mc.mu.Unlock()
}

// Load reads the persisted mode, creating the NORMAL row on first boot.
func (mc *ModeController) Load(ctx context.Context) (mode.GlobalMode, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m, err := mc.repo.Get(ctx)
	if errors.Is(err, idb.ErrModeNotFound) {
		m = &mode.GlobalMode{State: mode.StateNormal, ChangedAt: mc.clock.Now()}
		if err := mc.repo.Save(ctx, m); err != nil {
			return mode.GlobalMode{}, fmt.Errorf("%w: create initial mode: %w", ErrPersistenceUnavailable, err)
		}
		mc.logger.Info("Global mode initialised to NORMAL")
	} else if err != nil {
		return mode.GlobalMode{}, fmt.Errorf("%w: load mode: %w", ErrPersistenceUnavailable, err)
	}

	mc.current.Store(m)
	metrics.MaintenanceMode.Set(metrics.BoolGauge(m.InMaintenance()))
	return *m, nil
}

// Current returns the last committed mode.
func (mc *ModeController) Current() mode.GlobalMode {
	return *mc.current.Load()
}

// IsOwner reports whether actorID is the privileged identity.
func (mc *ModeController) IsOwner(actorID int64) bool {
	return mc.ownerID != 0 && actorID == mc.ownerID
}

// ToggleAs flips the mode on behalf of actorID, which must be the owner.
func (mc *ModeController) ToggleAs(ctx context.Context, actorID int64) (mode.GlobalMode, error) {
	if !mc.IsOwner(actorID) {
		return mc.Current(), ErrForbidden
	}
	return mc.Toggle(ctx)
}

// Toggle flips NORMAL<->MAINTENANCE, persists the result and returns it.
// Each call produces exactly one committed flip.
func (mc *ModeController) Toggle(ctx context.Context) (mode.GlobalMode, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	cur := mc.current.Load()
	next := &mode.GlobalMode{State: cur.State.Flip(), ChangedAt: mc.clock.Now()}
	if err := mc.repo.Save(ctx, next); err != nil {
		mc.logger.WithError(err).Error("Failed to persist mode toggle")
		return *cur, fmt.Errorf("%w: save mode: %w", ErrPersistenceUnavailable, err)
	}
	mc.current.Store(next)

	metrics.ModeToggles.Inc()
	metrics.MaintenanceMode.Set(metrics.BoolGauge(next.InMaintenance()))
	mc.logger.WithFields(logrus.Fields{
		"from": cur.State,
		"to":   next.State,
	}).Info("Global mode toggled")

	// Presence is published under the lock so racing toggles reach the
	// platform in commit order.
	mc.publishPresenceLocked(ctx, *next)
	return *next, nil
}

// SyncPresence re-publishes the presence derived from the current mode.
func (mc *ModeController) SyncPresence(ctx context.Context) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.publishPresenceLocked(ctx, *mc.current.Load())
}

func (mc *ModeController) publishPresenceLocked(ctx context.Context, m mode.GlobalMode) {
	if mc.presence == nil {
		return
	}
	pctx, cancel := context.WithTimeout(ctx, presenceTimeout)
	defer cancel()
	if err := mc.presence.SetPresence(pctx, m.Presence()); err != nil {
		mc.logger.WithError(err).WithField("state", m.State).Warn("Failed to update presence")
	}
}

// SetUserSleep marks actorID as away until the given time. The flag is purely
// informational: it annotates the status surface and never affects delivery.
func (mc *ModeController) SetUserSleep(actorID int64, until time.Time) error {
	if !mc.IsOwner(actorID) {
		return ErrForbidden
	}
	if !until.After(mc.clock.Now()) {
		return mc.ClearUserSleep(actorID)
	}
	mc.awayMu.Lock()
	mc.away[actorID] = until
	mc.awayMu.Unlock()
	return nil
}

// ClearUserSleep removes actorID's away flag.
func (mc *ModeController) ClearUserSleep(actorID int64) error {
	if !mc.IsOwner(actorID) {
		return ErrForbidden
	}
	mc.awayMu.Lock()
	delete(mc.away, actorID)
	mc.awayMu.Unlock()
	return nil
}

// OwnerAwayUntil returns the owner's away deadline if it has not passed.
func (mc *ModeController) OwnerAwayUntil() (time.Time, bool) {
	mc.awayMu.RLock()
	until, ok := mc.away[mc.ownerID]
	mc.awayMu.RUnlock()
	if !ok || !until.After(mc.clock.Now()) {
		return time.Time{}, false
	}
	return until, true
}
