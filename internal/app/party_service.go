package app

import (
	"context"
	"time"

	"party_notification_bot/internal/domain/schedule"
)

// PartyService exposes the self-service operations of a tracked user.
type PartyService struct {
	store *ScheduleStore
	clock Clock
}

func NewPartyService(store *ScheduleStore, clock Clock) *PartyService {
	return &PartyService{store: store, clock: clock}
}

// Done marks the user's party complete and starts the next cycle.
func (s *PartyService) Done(ctx context.Context, userID int64) (*schedule.Record, error) {
	return s.store.Complete(ctx, userID)
}

// SleepFor suppresses the user's notices for d from now.
func (s *PartyService) SleepFor(ctx context.Context, userID int64, d time.Duration) (*schedule.Record, error) {
	return s.store.Sleep(ctx, userID, s.clock.Now().Add(d))
}

// SleepUntil suppresses the user's notices until t.
func (s *PartyService) SleepUntil(ctx context.Context, userID int64, t time.Time) (*schedule.Record, error) {
	return s.store.Sleep(ctx, userID, t)
}

// Wake clears the user's sleep window.
func (s *PartyService) Wake(ctx context.Context, userID int64) (*schedule.Record, error) {
	return s.store.Sleep(ctx, userID, time.Time{})
}

// Lookup returns the user's record if it is active.
func (s *PartyService) Lookup(userID int64) (*schedule.Record, error) {
	rec, err := s.store.Get(userID)
	if err != nil {
		return nil, err
	}
	if !rec.Active {
		return rec, ErrNotFound
	}
	return rec, nil
}

// PartiesLogged returns the number of completed cycles recorded for the user.
func (s *PartyService) PartiesLogged(ctx context.Context, userID int64) (int, error) {
	return s.store.CompletedCount(ctx, userID)
}

// Now exposes the service clock to front ends that render relative times.
func (s *PartyService) Now() time.Time {
	return s.clock.Now()
}
