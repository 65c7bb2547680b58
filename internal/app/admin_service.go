package app

import (
	"context"
	"time"

	"party_notification_bot/internal/domain/mode"
	"party_notification_bot/internal/domain/schedule"
)

// AdminService handles the privileged operations: managing tracked users and
// the owner-only mode switch.
type AdminService struct {
	store    *ScheduleStore
	modes    *ModeController
	adminIDs map[int64]struct{}
}

func NewAdminService(store *ScheduleStore, modes *ModeController, adminIDs []int64) *AdminService {
	ids := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &AdminService{
		store:    store,
		modes:    modes,
		adminIDs: ids,
	}
}

// IsAdmin reports whether actorID may manage tracked users. The owner always can.
func (s *AdminService) IsAdmin(actorID int64) bool {
	if s.modes.IsOwner(actorID) {
		return true
	}
	_, ok := s.adminIDs[actorID]
	return ok
}

// IsOwner reports whether actorID is the single privileged identity.
func (s *AdminService) IsOwner(actorID int64) bool {
	return s.modes.IsOwner(actorID)
}

// RegisterUser creates or reactivates targetUserID's schedule.
func (s *AdminService) RegisterUser(ctx context.Context, performingAdminID, targetUserID, channelRef int64, username string) (*schedule.Record, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrForbidden
	}
	return s.store.Register(ctx, targetUserID, channelRef, username)
}

// RemoveUser deactivates targetUserID's schedule.
func (s *AdminService) RemoveUser(ctx context.Context, performingAdminID, targetUserID int64) (*schedule.Record, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrForbidden
	}
	return s.store.Remove(ctx, targetUserID)
}

// ListUsers returns tracked users ordered by ID.
func (s *AdminService) ListUsers(performingAdminID int64, activeOnly bool) ([]schedule.Record, error) {
	if !s.IsAdmin(performingAdminID) {
		return nil, ErrForbidden
	}
	return s.store.List(activeOnly), nil
}

// ToggleMode flips the global mode. Only the owner may do this.
func (s *AdminService) ToggleMode(ctx context.Context, performingUserID int64) (mode.GlobalMode, error) {
	return s.modes.ToggleAs(ctx, performingUserID)
}

// SetAway sets or, with a zero duration, clears the owner's away annotation.
func (s *AdminService) SetAway(performingUserID int64, d time.Duration) error {
	if d <= 0 {
		return s.modes.ClearUserSleep(performingUserID)
	}
	return s.modes.SetUserSleep(performingUserID, s.modes.clock.Now().Add(d))
}
