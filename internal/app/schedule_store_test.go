package app

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"party_notification_bot/internal/app/apptest"
	"party_notification_bot/internal/domain/schedule"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleStore_RegisterSetsFirstDue(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()

	rec, err := f.store.Register(ctx, 10, 0, "alice")
	require.NoError(t, err)

	assert.Equal(t, apptest.Epoch.Add(testInterval), rec.DueAt)
	assert.Equal(t, int64(10), rec.ChannelRef, "channel defaults to the private chat")
	assert.True(t, rec.Active)

	stored, ok := f.repo.Stored(10)
	require.True(t, ok)
	assert.Equal(t, rec.DueAt, stored.DueAt)
}

func TestScheduleStore_RegisterIsIdempotent(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()

	first, err := f.store.Register(ctx, 10, 55, "")
	require.NoError(t, err)
	f.clock.Advance(time.Hour)
	second, err := f.store.Register(ctx, 10, 55, "")
	require.NoError(t, err)

	assert.Equal(t, first.DueAt, second.DueAt)
	assert.Equal(t, 1, f.repo.Saves())
	active, registered := f.store.Counts()
	assert.Equal(t, 1, active)
	assert.Equal(t, 1, registered)
}

func TestScheduleStore_StrictRegistration(t *testing.T) {
	clock := apptest.NewFakeClock(apptest.Epoch)
	store := NewScheduleStore(apptest.NewScheduleRepo(), clock, ScheduleStoreOptions{Interval: testInterval, StrictRegistration: true}, apptest.QuietLogger())
	ctx := context.Background()

	_, err := store.Register(ctx, 10, 0, "")
	require.NoError(t, err)

	rec, err := store.Register(ctx, 10, 0, "")
	assert.ErrorIs(t, err, ErrAlreadyActive)
	require.NotNil(t, rec)
	assert.Equal(t, int64(10), rec.UserID)
}

func TestScheduleStore_ReactivationStartsFreshCycle(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()

	created := f.register(t, 10)
	_, err := f.store.Remove(ctx, 10)
	require.NoError(t, err)

	now := f.clock.Advance(10 * time.Hour)
	rec, err := f.store.Register(ctx, 10, 0, "")
	require.NoError(t, err)

	assert.True(t, rec.Active)
	assert.Equal(t, now.Add(testInterval), rec.DueAt)
	assert.Equal(t, created.AddedAt, rec.AddedAt)
}

func TestScheduleStore_RegisterAdoptsRowMissingFromMemory(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	external := schedule.Record{
		UserID:     10,
		ChannelRef: -500,
		DueAt:      apptest.Epoch.Add(time.Hour),
		Active:     true,
		AddedAt:    apptest.Epoch.Add(-time.Hour),
	}
	require.NoError(t, f.repo.Save(ctx, &external))

	rec, err := f.store.Register(ctx, 10, 0, "")
	require.NoError(t, err)

	assert.Equal(t, external.DueAt, rec.DueAt, "existing cycle is kept")
	assert.Equal(t, int64(-500), rec.ChannelRef)
	assert.Equal(t, 1, f.repo.Saves(), "nothing is rewritten")
}

func TestScheduleStore_CompletedCount(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	f.register(t, 10)

	n, err := f.store.CompletedCount(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = f.store.Complete(ctx, 10)
	require.NoError(t, err)
	n, err = f.store.CompletedCount(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	f.repo.SetFailing(true)
	_, err = f.store.CompletedCount(ctx, 10)
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}

func TestScheduleStore_CompleteSetsDueExactlyOneIntervalAhead(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	f.register(t, 10)

	now := f.clock.Advance(95 * time.Minute)
	rec, err := f.store.Complete(ctx, 10)
	require.NoError(t, err)

	assert.Equal(t, now.Add(testInterval), rec.DueAt)
	assert.False(t, rec.LastNotifiedAt.Valid)

	history := f.repo.History()
	require.Len(t, history, 1)
	assert.Equal(t, schedule.HistorySourceCommand, history[0].Source)
	assert.Equal(t, now, history[0].CompletedAt)
}

func TestScheduleStore_MutationsRequireActiveRecord(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()

	_, err := f.store.Complete(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.Sleep(ctx, 99, f.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.Remove(ctx, 99)
	assert.ErrorIs(t, err, ErrNotFound)

	f.register(t, 10)
	_, err = f.store.Remove(ctx, 10)
	require.NoError(t, err)

	_, err = f.store.Complete(ctx, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.store.Remove(ctx, 10)
	assert.ErrorIs(t, err, ErrNotFound)

	rec, err := f.store.Get(10)
	require.NoError(t, err, "removed rows are retained")
	assert.False(t, rec.Active)
}

func TestScheduleStore_SleepAndWake(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	f.register(t, 10)
	now := f.clock.Now()

	rec, err := f.store.Sleep(ctx, 10, now.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, rec.SleepUntil.Valid)
	assert.True(t, rec.IsSleeping(now))

	rec, err = f.store.Sleep(ctx, 10, now)
	require.NoError(t, err)
	assert.False(t, rec.SleepUntil.Valid, "a non-future time wakes the user")
}

func TestScheduleStore_DueOrdering(t *testing.T) {
	base := apptest.Epoch
	seed := []schedule.Record{
		{UserID: 30, ChannelRef: 30, DueAt: base.Add(-time.Minute), Active: true},
		{UserID: 20, ChannelRef: 20, DueAt: base.Add(-2 * time.Minute), Active: true},
		{UserID: 10, ChannelRef: 10, DueAt: base.Add(-time.Minute), Active: true},
		{UserID: 40, ChannelRef: 40, DueAt: base.Add(time.Minute), Active: true},
		{UserID: 50, ChannelRef: 50, DueAt: base.Add(-time.Hour), Active: false},
	}
	f := newFixture(t, SweepOptions{}, seed...)

	due := f.store.Due(base)

	ids := make([]int64, 0, len(due))
	for _, r := range due {
		ids = append(ids, r.UserID)
	}
	assert.Equal(t, []int64{20, 10, 30}, ids)
}

func TestScheduleStore_FailedWriteLeavesMemoryUnchanged(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	before := f.register(t, 10)

	f.repo.SetFailing(true)
	f.clock.Advance(time.Hour)

	_, err := f.store.Complete(ctx, 10)
	require.Error(t, err)
	assert.True(t, IsPersistenceError(err))
	assert.ErrorIs(t, err, apptest.ErrInjected)

	_, err = f.store.Sleep(ctx, 10, f.clock.Now().Add(time.Hour))
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)

	after := f.mustGet(t, 10)
	assert.Equal(t, before.DueAt, after.DueAt)
	assert.False(t, after.SleepUntil.Valid)
	assert.Empty(t, f.repo.History())
}

func TestScheduleStore_FailedRegisterLeavesNoRecord(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	f.repo.SetFailing(true)

	_, err := f.store.Register(context.Background(), 10, 0, "")
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)

	_, err = f.store.Get(10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, registered := f.store.Counts()
	assert.Zero(t, registered)
}

func TestScheduleStore_LoadFailure(t *testing.T) {
	repo := apptest.NewScheduleRepo()
	repo.SetFailing(true)
	store := NewScheduleStore(repo, apptest.NewFakeClock(apptest.Epoch), ScheduleStoreOptions{Interval: testInterval}, apptest.QuietLogger())

	err := store.Load(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceUnavailable)
}

func TestScheduleStore_AdvanceRejectsMovedCycle(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	rec := f.register(t, 10)

	f.clock.Advance(testInterval)
	_, err := f.store.Complete(ctx, 10)
	require.NoError(t, err)

	_, err = f.store.Advance(ctx, 10, rec.DueAt, true, schedule.HistorySourceSweep)
	assert.ErrorIs(t, err, errCycleMoved)
	assert.Len(t, f.repo.History(), 1)
}

func TestScheduleStore_ConcurrentCompletesSerialize(t *testing.T) {
	f := newFixture(t, SweepOptions{})
	ctx := context.Background()
	f.register(t, 10)
	f.register(t, 11)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = f.store.Complete(ctx, 10)
		}()
		go func() {
			defer wg.Done()
			_, _ = f.store.Sleep(ctx, 11, f.clock.Now().Add(time.Minute))
		}()
	}
	wg.Wait()

	rec := f.mustGet(t, 10)
	assert.Equal(t, f.clock.Now().Add(testInterval), rec.DueAt)
	assert.Len(t, f.repo.History(), n)

	stored, _ := f.repo.Stored(10)
	assert.Equal(t, rec, stored, "memory and repository agree")
}

func TestScheduleStore_LoadRestoresState(t *testing.T) {
	seed := schedule.Record{
		UserID:     10,
		ChannelRef: -100200,
		DueAt:      apptest.Epoch.Add(time.Hour),
		SleepUntil: sql.NullTime{Time: apptest.Epoch.Add(30 * time.Minute), Valid: true},
		Active:     true,
	}
	f := newFixture(t, SweepOptions{}, seed)

	rec := f.mustGet(t, 10)
	assert.Equal(t, seed.ChannelRef, rec.ChannelRef)
	assert.True(t, rec.IsSleeping(apptest.Epoch))
	assert.Equal(t, []schedule.Record{seed}, f.store.List(true))
}
