// Package apptest holds in-memory stand-ins for the clock and the repositories,
// shared by the tests of the core and of the front ends.
package apptest

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"party_notification_bot/internal/domain/mode"
	"party_notification_bot/internal/domain/schedule"
	idb "party_notification_bot/internal/infra/database"

	"github.com/sirupsen/logrus"
)

// ErrInjected is returned by repositories whose failure switch is on.
var ErrInjected = errors.New("injected repository failure")

// Epoch is the default start of a FakeClock.
var Epoch = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

// FakeClock only moves when told to.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// QuietLogger discards everything.
func QuietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

// ScheduleRepo is a schedule.Repository kept in a map.
type ScheduleRepo struct {
	mu      sync.Mutex
	records map[int64]schedule.Record
	history []schedule.HistoryEntry
	fail    bool
	saves   int
}

func NewScheduleRepo(seed ...schedule.Record) *ScheduleRepo {
	r := &ScheduleRepo{records: make(map[int64]schedule.Record)}
	for _, rec := range seed {
		r.records[rec.UserID] = rec
	}
	return r
}

// SetFailing makes every call return ErrInjected until switched off.
func (r *ScheduleRepo) SetFailing(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

func (r *ScheduleRepo) Save(_ context.Context, rec *schedule.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrInjected
	}
	r.records[rec.UserID] = *rec
	r.saves++
	return nil
}

func (r *ScheduleRepo) SaveWithHistory(_ context.Context, rec *schedule.Record, entry *schedule.HistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrInjected
	}
	r.records[rec.UserID] = *rec
	r.saves++
	entry.ID = int64(len(r.history) + 1)
	r.history = append(r.history, *entry)
	return nil
}

func (r *ScheduleRepo) GetByUserID(_ context.Context, userID int64) (*schedule.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, ErrInjected
	}
	rec, ok := r.records[userID]
	if !ok {
		return nil, idb.ErrScheduleNotFound
	}
	return &rec, nil
}

func (r *ScheduleRepo) ListAll(context.Context) ([]*schedule.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, ErrInjected
	}
	out := make([]*schedule.Record, 0, len(r.records))
	for _, rec := range r.records {
		rec := rec
		out = append(out, &rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *ScheduleRepo) CountHistory(_ context.Context, userID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return 0, ErrInjected
	}
	n := 0
	for _, h := range r.history {
		if h.UserID == userID {
			n++
		}
	}
	return n, nil
}

// Stored returns the persisted copy of a record.
func (r *ScheduleRepo) Stored(userID int64) (schedule.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[userID]
	return rec, ok
}

// History returns the appended history entries in order.
func (r *ScheduleRepo) History() []schedule.HistoryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schedule.HistoryEntry(nil), r.history...)
}

// Saves counts successful writes.
func (r *ScheduleRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// ModeRepo is a mode.Repository holding the singleton in memory.
type ModeRepo struct {
	mu    sync.Mutex
	row   *mode.GlobalMode
	fail  bool
	saves int
}

func NewModeRepo(initial *mode.GlobalMode) *ModeRepo {
	return &ModeRepo{row: initial}
}

func (r *ModeRepo) SetFailing(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

func (r *ModeRepo) Get(context.Context) (*mode.GlobalMode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return nil, ErrInjected
	}
	if r.row == nil {
		return nil, idb.ErrModeNotFound
	}
	m := *r.row
	return &m, nil
}

func (r *ModeRepo) Save(_ context.Context, m *mode.GlobalMode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return ErrInjected
	}
	row := *m
	r.row = &row
	r.saves++
	return nil
}

// Stored returns the persisted mode, if any.
func (r *ModeRepo) Stored() (mode.GlobalMode, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.row == nil {
		return mode.GlobalMode{}, false
	}
	return *r.row, true
}

func (r *ModeRepo) Saves() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

// PresenceRecorder captures every published presence line.
type PresenceRecorder struct {
	mu    sync.Mutex
	lines []string
	err   error
}

func (p *PresenceRecorder) SetPresence(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, text)
	return p.err
}

func (p *PresenceRecorder) SetError(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *PresenceRecorder) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.lines...)
}
