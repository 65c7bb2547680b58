// Package mode holds the global NORMAL/MAINTENANCE switch.
package mode

import (
	"context"
	"net/http"
	"time"
)

// State is the global bot mode.
type State string

const (
	StateNormal      State = "NORMAL"
	StateMaintenance State = "MAINTENANCE"
)

// Flip returns the opposite state.
func (s State) Flip() State {
	if s == StateMaintenance {
		return StateNormal
	}
	return StateMaintenance
}

// GlobalMode is the process-wide mode singleton.
// Corresponds to the single row of the 'party_mode' table.
type GlobalMode struct {
	State     State
	ChangedAt time.Time
}

// InMaintenance reports whether notification emission is suppressed.
func (m GlobalMode) InMaintenance() bool {
	return m.State == StateMaintenance
}

// HTTPStatus is the code served by the status surface for this mode.
func (m GlobalMode) HTTPStatus() int {
	if m.InMaintenance() {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Presence is the status line shown on the chat platform for this mode.
func (m GlobalMode) Presence() string {
	if m.InMaintenance() {
		return "🔧 Updating..."
	}
	return "🐝 Party Bot online"
}

// Repository persists the mode singleton.
type Repository interface {
	Get(ctx context.Context) (*GlobalMode, error)
	Save(ctx context.Context, m *GlobalMode) error
}
