package app

import "errors"

// Error taxonomy shared by the core and the front ends.
var (
	// ErrNotFound means the referenced user has no record or the record is inactive.
	ErrNotFound = errors.New("schedule record not found or inactive")
	// ErrForbidden means the acting user lacks the required privilege.
	ErrForbidden = errors.New("actor is not allowed to perform this operation")
	// ErrAlreadyActive is returned by strict registration for an already active user.
	ErrAlreadyActive = errors.New("user is already registered and active")
	// ErrDeliveryFailed means the notice could not reach its destination. The sweep
	// swallows it and retries on the next tick.
	ErrDeliveryFailed = errors.New("notification delivery failed")
	// ErrPersistenceUnavailable means the durable store did not acknowledge a write
	// or read. The in-memory state is left untouched when it is returned.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
)

// errCycleMoved tells the sweep that the record's due time changed while its
// notice was in flight (e.g. /done raced the sweep), so it must not advance again.
var errCycleMoved = errors.New("cycle already advanced")
