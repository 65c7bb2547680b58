package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"party_notification_bot/internal/app/apptest"
	"party_notification_bot/internal/domain/mode"
	"party_notification_bot/internal/domain/schedule"

	"gopkg.in/telebot.v3"
)

const (
	testInterval = 3 * time.Hour
	testOwnerID  = int64(1)
)

var errSinkDown = errors.New("sink down")

// fakeSink records intents and can be told to fail.
type fakeSink struct {
	mu        sync.Mutex
	delivered []NotificationIntent
	attempts  int
	failNext  int
	onDeliver func(NotificationIntent)
	block     bool
}

func (s *fakeSink) Deliver(ctx context.Context, intent NotificationIntent) error {
	s.mu.Lock()
	s.attempts++
	hook := s.onDeliver
	if s.failNext > 0 {
		s.failNext--
		s.mu.Unlock()
		return errSinkDown
	}
	block := s.block
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if hook != nil {
		hook(intent)
	}

	s.mu.Lock()
	s.delivered = append(s.delivered, intent)
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) Delivered() []NotificationIntent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]NotificationIntent(nil), s.delivered...)
}

func (s *fakeSink) FailNext(n int) {
	s.mu.Lock()
	s.failNext = n
	s.mu.Unlock()
}

// fakeChatClient implements the telegram Client.
type fakeChatClient struct {
	mu       sync.Mutex
	sent     []sentMessage
	sendErr  error
	delay    time.Duration
	pingRTT  time.Duration
	pingErr  error
	presence []string
}

type sentMessage struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
}

func (c *fakeChatClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return nil
}

func (c *fakeChatClient) SetPresence(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.presence = append(c.presence, text)
	return nil
}

func (c *fakeChatClient) Ping(context.Context) (time.Duration, error) {
	return c.pingRTT, c.pingErr
}

func (c *fakeChatClient) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentMessage(nil), c.sent...)
}

// fixture wires the core over in-memory repositories.
type fixture struct {
	clock    *apptest.FakeClock
	repo     *apptest.ScheduleRepo
	modeRepo *apptest.ModeRepo
	presence *apptest.PresenceRecorder
	store    *ScheduleStore
	modes    *ModeController
	sink     *fakeSink
	sweep    *SweepEngine
}

func newFixture(t *testing.T, opts SweepOptions, seed ...schedule.Record) *fixture {
	t.Helper()
	f := &fixture{
		clock:    apptest.NewFakeClock(apptest.Epoch),
		repo:     apptest.NewScheduleRepo(seed...),
		modeRepo: apptest.NewModeRepo(nil),
		presence: &apptest.PresenceRecorder{},
		sink:     &fakeSink{},
	}
	log := apptest.QuietLogger()
	f.store = NewScheduleStore(f.repo, f.clock, ScheduleStoreOptions{Interval: testInterval}, log)
	f.modes = NewModeController(f.modeRepo, f.clock, testOwnerID, f.presence, log)
	if err := f.store.Load(context.Background()); err != nil {
		t.Fatalf("load store: %v", err)
	}
	if _, err := f.modes.Load(context.Background()); err != nil {
		t.Fatalf("load modes: %v", err)
	}
	f.sweep = NewSweepEngine(f.store, f.modes, f.sink, f.clock, opts, log)
	return f
}

func (f *fixture) register(t *testing.T, userID int64) *schedule.Record {
	t.Helper()
	rec, err := f.store.Register(context.Background(), userID, 0, "")
	if err != nil {
		t.Fatalf("register %d: %v", userID, err)
	}
	return rec
}

func (f *fixture) mustGet(t *testing.T, userID int64) schedule.Record {
	t.Helper()
	rec, err := f.store.Get(userID)
	if err != nil {
		t.Fatalf("get %d: %v", userID, err)
	}
	return *rec
}

func (f *fixture) toggle(t *testing.T) mode.GlobalMode {
	t.Helper()
	m, err := f.modes.Toggle(context.Background())
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	return m
}
