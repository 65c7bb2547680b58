package app

import (
	"context"
	"sync"
	"time"

	"party_notification_bot/internal/infra/metrics"

	"github.com/sirupsen/logrus"
)

// DefaultLatencyCapacity is the number of samples kept when none is configured.
const DefaultLatencyCapacity = 60

// LatencySample is one probe measurement.
type LatencySample struct {
	ValueMs    float64   `json:"value_ms"`
	CapturedAt time.Time `json:"captured_at"`
}

// LatencyRecorder is a fixed-capacity ring of recent samples. It has its own
// lock and never touches schedule state.
type LatencyRecorder struct {
	clock Clock

	mu    sync.RWMutex
	buf   []LatencySample
	next  int // slot the next sample is written to
	count int
}

func NewLatencyRecorder(capacity int, clock Clock) *LatencyRecorder {
	if capacity <= 0 {
		capacity = DefaultLatencyCapacity
	}
	return &LatencyRecorder{
		clock: clock,
		buf:   make([]LatencySample, capacity),
	}
}

// Capacity returns C.
func (l *LatencyRecorder) Capacity() int {
	return len(l.buf)
}

// Record appends a sample, evicting the oldest once the ring is full.
// Negative values are clamped to zero.
func (l *LatencyRecorder) Record(sampleMs float64) {
	if sampleMs < 0 {
		sampleMs = 0
	}
	s := LatencySample{ValueMs: sampleMs, CapturedAt: l.clock.Now()}

	l.mu.Lock()
	l.buf[l.next] = s
	l.next = (l.next + 1) % len(l.buf)
	if l.count < len(l.buf) {
		l.count++
	}
	l.mu.Unlock()
}

// Snapshot returns a copy of the samples in capture order.
func (l *LatencyRecorder) Snapshot() []LatencySample {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]LatencySample, 0, l.count)
	start := (l.next - l.count + len(l.buf)) % len(l.buf)
	for i := 0; i < l.count; i++ {
		out = append(out, l.buf[(start+i)%len(l.buf)])
	}
	return out
}

// Latest returns the most recent sample.
func (l *LatencyRecorder) Latest() (LatencySample, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.count == 0 {
		return LatencySample{}, false
	}
	return l.buf[(l.next-1+len(l.buf))%len(l.buf)], true
}

// Pinger measures a round trip to the chat platform.
type Pinger interface {
	Ping(ctx context.Context) (time.Duration, error)
}

// Probe is the periodic presence/latency job.
type Probe struct {
	pinger   Pinger
	recorder *LatencyRecorder
	modes    *ModeController
	logger   *logrus.Entry
}

func NewProbe(pinger Pinger, recorder *LatencyRecorder, modes *ModeController, logger *logrus.Entry) *Probe {
	return &Probe{pinger: pinger, recorder: recorder, modes: modes, logger: logger}
}

// Run measures latency once and re-asserts the presence for the current mode.
// A failed ping records nothing.
func (p *Probe) Run(ctx context.Context) {
	rtt, err := p.pinger.Ping(ctx)
	if err != nil {
		p.logger.WithError(err).Warn("Latency probe failed")
	} else {
		ms := float64(rtt.Microseconds()) / 1000
		p.recorder.Record(ms)
		metrics.PlatformLatency.Set(ms)
		p.logger.WithField("latency_ms", ms).Debug("Latency sample recorded")
	}

	if p.modes != nil {
		p.modes.SyncPresence(ctx)
	}
}
