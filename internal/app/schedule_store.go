package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"party_notification_bot/internal/domain/schedule"
	idb "party_notification_bot/internal/infra/database"
	"party_notification_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// ScheduleStore keeps every tracked user's cycle in memory and writes each
// mutation through to the repository before it becomes visible.
//
// Operations on the same user are serialized by that user's entry lock; the
// map lock only guards membership, so a slow write for one user never blocks
// another.
type ScheduleStore struct {
	repo     schedule.Repository
	clock    Clock
	interval time.Duration
	strict   bool
	logger   *logrus.Entry

	mu      sync.RWMutex
	entries map[int64]*scheduleEntry
}

type scheduleEntry struct {
	mu     sync.Mutex
	exists bool // false until the first durable write succeeds
	rec    schedule.Record
}

// ScheduleStoreOptions configures a ScheduleStore.
type ScheduleStoreOptions struct {
	Interval           time.Duration
	StrictRegistration bool
}

func NewScheduleStore(repo schedule.Repository, clock Clock, opts ScheduleStoreOptions, logger *logrus.Entry) *ScheduleStore {
	return &ScheduleStore{
		repo:     repo,
		clock:    clock,
		interval: opts.Interval,
		strict:   opts.StrictRegistration,
		logger:   logger,
		entries:  make(map[int64]*scheduleEntry),
	}
}

// Interval returns the fixed cycle length.
func (s *ScheduleStore) Interval() time.Duration {
	return s.interval
}

// Load replaces the in-memory view with the repository contents.
func (s *ScheduleStore) Load(ctx context.Context) error {
	records, err := s.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("%w: load schedule records: %w", ErrPersistenceUnavailable, err)
	}

	entries := make(map[int64]*scheduleEntry, len(records))
	for _, r := range records {
		entries[r.UserID] = &scheduleEntry{exists: true, rec: *r}
	}

	s.mu.Lock()
	s.entries = entries
	s.mu.Unlock()

	s.refreshGauge()
	s.logger.WithField("records", len(records)).Info("Schedule records loaded")
	return nil
}

// Register creates a record due one interval from now, or reactivates a
// removed one. Registering an active user is a no-op unless strict
// registration is enabled, in which case ErrAlreadyActive is returned along
// with the existing record.
func (s *ScheduleStore) Register(ctx context.Context, userID, channelRef int64, username string) (*schedule.Record, error) {
	if channelRef == 0 {
		channelRef = userID
	}

	e := s.entry(userID, true)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists {
		// A row written outside this process is adopted instead of overwritten.
		stored, err := s.repo.GetByUserID(ctx, userID)
		switch {
		case err == nil:
			e.rec = *stored
			e.exists = true
		case !errors.Is(err, idb.ErrScheduleNotFound):
			return nil, fmt.Errorf("%w: look up user %d: %w", ErrPersistenceUnavailable, userID, err)
		}
	}

	if e.exists && e.rec.Active {
		current := e.rec
		if s.strict {
			return &current, ErrAlreadyActive
		}
		return &current, nil
	}

	now := s.clock.Now()
	next := schedule.Record{
		UserID:     userID,
		ChannelRef: channelRef,
		Username:   username,
		DueAt:      now.Add(s.interval),
		Active:     true,
		AddedAt:    now,
		UpdatedAt:  now,
	}
	if e.exists {
		// Reactivation keeps the row's identity and sleep window but starts a fresh cycle.
		next.AddedAt = e.rec.AddedAt
		next.SleepUntil = e.rec.SleepUntil
		if username == "" {
			next.Username = e.rec.Username
		}
	}

	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	e.rec = next
	e.exists = true
	s.refreshGauge()

	out := next
	return &out, nil
}

// Complete starts a new cycle for the user: DueAt becomes now + interval and
// the notified marker is cleared. The completed cycle is appended to history
// in the same durable write.
func (s *ScheduleStore) Complete(ctx context.Context, userID int64) (*schedule.Record, error) {
	e := s.entry(userID, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists || !e.rec.Active {
		return nil, ErrNotFound
	}

	now := s.clock.Now()
	next := e.rec
	next.DueAt = now.Add(s.interval)
	next.LastNotifiedAt = sql.NullTime{}
	next.UpdatedAt = now

	entry := &schedule.HistoryEntry{UserID: userID, CompletedAt: now, Source: schedule.HistorySourceCommand}
	if err := s.saveWithHistory(ctx, &next, entry); err != nil {
		return nil, err
	}
	e.rec = next

	out := next
	return &out, nil
}

// Sleep suppresses notices for the user until the given time. A time that is
// not strictly in the future clears the sleep window instead.
func (s *ScheduleStore) Sleep(ctx context.Context, userID int64, until time.Time) (*schedule.Record, error) {
	e := s.entry(userID, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists || !e.rec.Active {
		return nil, ErrNotFound
	}

	now := s.clock.Now()
	next := e.rec
	if until.After(now) {
		next.SleepUntil = sql.NullTime{Time: until, Valid: true}
	} else {
		next.SleepUntil = sql.NullTime{}
	}
	next.UpdatedAt = now

	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	e.rec = next

	out := next
	return &out, nil
}

// Remove deactivates the user's record. The row is kept for audit.
func (s *ScheduleStore) Remove(ctx context.Context, userID int64) (*schedule.Record, error) {
	e := s.entry(userID, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists || !e.rec.Active {
		return nil, ErrNotFound
	}

	next := e.rec
	next.Active = false
	next.UpdatedAt = s.clock.Now()

	if err := s.save(ctx, &next); err != nil {
		return nil, err
	}
	e.rec = next
	s.refreshGauge()

	out := next
	return &out, nil
}

// Get returns a copy of the user's record, active or not.
func (s *ScheduleStore) Get(userID int64) (*schedule.Record, error) {
	e := s.entry(userID, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.exists {
		return nil, ErrNotFound
	}
	out := e.rec
	return &out, nil
}

// Due returns copies of all active records with DueAt <= now, oldest first and
// by ascending user ID on ties. It does not mutate anything.
func (s *ScheduleStore) Due(now time.Time) []schedule.Record {
	return s.collect(func(r *schedule.Record) bool { return r.IsDue(now) }, byDueThenUser)
}

// Upcoming returns active records whose advisory notice is due at now.
func (s *ScheduleStore) Upcoming(now time.Time, lead time.Duration) []schedule.Record {
	return s.collect(func(r *schedule.Record) bool { return r.InLeadWindow(now, lead) }, byDueThenUser)
}

// List returns records ordered by user ID.
func (s *ScheduleStore) List(activeOnly bool) []schedule.Record {
	return s.collect(func(r *schedule.Record) bool { return r.Active || !activeOnly }, func(a, b *schedule.Record) bool {
		return a.UserID < b.UserID
	})
}

// CompletedCount returns how many cycles the user has closed, from history.
func (s *ScheduleStore) CompletedCount(ctx context.Context, userID int64) (int, error) {
	n, err := s.repo.CountHistory(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: count history for user %d: %w", ErrPersistenceUnavailable, userID, err)
	}
	return n, nil
}

// Counts returns the number of active and of all known records.
func (s *ScheduleStore) Counts() (active, registered int) {
	for _, r := range s.List(false) {
		registered++
		if r.Active {
			active++
		}
	}
	return active, registered
}

// Advance closes the cycle whose due time was observedDue on behalf of the
// sweep. It returns errCycleMoved when the record no longer has that due time.
func (s *ScheduleStore) Advance(ctx context.Context, userID int64, observedDue time.Time, notified bool, source schedule.HistorySource) (*schedule.Record, error) {
	e := s.entry(userID, false)
	if e == nil {
		return nil, ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists || !e.rec.Active {
		return nil, ErrNotFound
	}
	if !e.rec.DueAt.Equal(observedDue) {
		return nil, errCycleMoved
	}

	now := s.clock.Now()
	next := e.rec
	next.DueAt = now.Add(s.interval)
	if notified {
		next.LastNotifiedAt = sql.NullTime{Time: now, Valid: true}
	}
	next.UpdatedAt = now

	entry := &schedule.HistoryEntry{UserID: userID, CompletedAt: now, Source: source}
	if err := s.saveWithHistory(ctx, &next, entry); err != nil {
		return nil, err
	}
	e.rec = next

	out := next
	return &out, nil
}

// MarkLeadSent remembers that the advisory for observedDue went out.
func (s *ScheduleStore) MarkLeadSent(ctx context.Context, userID int64, observedDue time.Time) error {
	e := s.entry(userID, false)
	if e == nil {
		return ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.exists || !e.rec.Active {
		return ErrNotFound
	}
	if !e.rec.DueAt.Equal(observedDue) {
		return errCycleMoved
	}

	next := e.rec
	next.LeadSentFor = sql.NullTime{Time: observedDue, Valid: true}
	next.UpdatedAt = s.clock.Now()
	if err := s.save(ctx, &next); err != nil {
		return err
	}
	e.rec = next
	return nil
}

func (s *ScheduleStore) entry(userID int64, create bool) *scheduleEntry {
	s.mu.RLock()
	e, ok := s.entries[userID]
	s.mu.RUnlock()
	if ok || !create {
		return e
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[userID]; ok {
		return e
	}
	e = &scheduleEntry{}
	s.entries[userID] = e
	return e
}

func (s *ScheduleStore) collect(keep func(*schedule.Record) bool, less func(a, b *schedule.Record) bool) []schedule.Record {
	s.mu.RLock()
	entries := make([]*scheduleEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]schedule.Record, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		if e.exists && keep(&e.rec) {
			out = append(out, e.rec)
		}
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

func byDueThenUser(a, b *schedule.Record) bool {
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	return a.UserID < b.UserID
}

func (s *ScheduleStore) save(ctx context.Context, rec *schedule.Record) error {
	if err := s.repo.Save(ctx, rec); err != nil {
		s.logger.WithError(err).WithField("user_id", rec.UserID).Error("Failed to persist schedule record")
		return fmt.Errorf("%w: save schedule for user %d: %w", ErrPersistenceUnavailable, rec.UserID, err)
	}
	return nil
}

func (s *ScheduleStore) saveWithHistory(ctx context.Context, rec *schedule.Record, entry *schedule.HistoryEntry) error {
	if err := s.repo.SaveWithHistory(ctx, rec, entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"user_id": rec.UserID,
			"source":  entry.Source,
		}).Error("Failed to persist completed cycle")
		return fmt.Errorf("%w: complete cycle for user %d: %w", ErrPersistenceUnavailable, rec.UserID, err)
	}
	return nil
}

func (s *ScheduleStore) refreshGauge() {
	active, _ := s.Counts()
	metrics.ActiveUsers.Set(float64(active))
}

// IsPersistenceError reports whether err came from the durable store.
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistenceUnavailable)
}
