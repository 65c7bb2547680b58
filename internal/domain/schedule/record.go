package schedule

import (
	"database/sql"
	"time"
)

// Record is one tracked user's party cycle.
// Corresponds to the 'party_users' table.
type Record struct {
	UserID         int64
	ChannelRef     int64 // Chat the notices are delivered to
	Username       string
	DueAt          time.Time    // Earliest moment the next due notice may fire
	SleepUntil     sql.NullTime // Notices are suppressed while now < SleepUntil
	Active         bool         // Inactive records are never swept
	LastNotifiedAt sql.NullTime
	LeadSentFor    sql.NullTime // DueAt value the advisory notice was already sent for
	AddedAt        time.Time
	UpdatedAt      time.Time
}

// IsSleeping reports whether notices for the record are suppressed at now.
func (r *Record) IsSleeping(now time.Time) bool {
	return r.SleepUntil.Valid && now.Before(r.SleepUntil.Time)
}

// IsDue reports whether the record is eligible for its due notice at now.
func (r *Record) IsDue(now time.Time) bool {
	return r.Active && !r.DueAt.After(now)
}

// InLeadWindow reports whether now falls inside [DueAt-lead, DueAt) and the
// advisory for the current DueAt has not been sent yet.
func (r *Record) InLeadWindow(now time.Time, lead time.Duration) bool {
	if !r.Active || lead <= 0 || !now.Before(r.DueAt) {
		return false
	}
	if r.LeadSentFor.Valid && r.LeadSentFor.Time.Equal(r.DueAt) {
		return false
	}
	return !now.Before(r.DueAt.Add(-lead))
}

// HistoryEntry is one completed cycle, appended to 'party_history'.
type HistoryEntry struct {
	ID          int64
	UserID      int64
	CompletedAt time.Time
	Source      HistorySource
}

// HistorySource tells who closed the cycle.
type HistorySource string

const (
	HistorySourceCommand HistorySource = "COMMAND" // /done or the Done button
	HistorySourceSweep   HistorySource = "SWEEP"   // due notice delivered by the sweep
	HistorySourceSkipped HistorySource = "SKIPPED" // cycle advanced silently in maintenance
)
