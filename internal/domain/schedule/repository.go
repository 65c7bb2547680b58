package schedule

import (
	"context"
)

// Repository defines the durable storage of schedule records and cycle history.
type Repository interface {
	// Save inserts or fully overwrites the record keyed by UserID.
	Save(ctx context.Context, rec *Record) error
	// SaveWithHistory saves the record and appends the history entry atomically.
	SaveWithHistory(ctx context.Context, rec *Record, entry *HistoryEntry) error
	GetByUserID(ctx context.Context, userID int64) (*Record, error)
	ListAll(ctx context.Context) ([]*Record, error) // Used to warm the in-memory store at boot
	CountHistory(ctx context.Context, userID int64) (int, error)
}
