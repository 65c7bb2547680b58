package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"party_notification_bot/internal/domain/schedule"
)

// Custom errors
var ErrScheduleNotFound = errors.New("schedule record not found")

type PostgresScheduleRepository struct {
	db *sql.DB
}

func NewPostgresScheduleRepository(db *sql.DB) *PostgresScheduleRepository {
	return &PostgresScheduleRepository{db: db}
}

const upsertScheduleQuery = `INSERT INTO party_users (user_id, channel_ref, username, due_at, sleep_until, active, last_notified_at, lead_sent_for, added_at, updated_at)
               VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
               ON CONFLICT (user_id) DO UPDATE
               SET channel_ref = EXCLUDED.channel_ref,
                   username = EXCLUDED.username,
                   due_at = EXCLUDED.due_at,
                   sleep_until = EXCLUDED.sleep_until,
                   active = EXCLUDED.active,
                   last_notified_at = EXCLUDED.last_notified_at,
                   lead_sent_for = EXCLUDED.lead_sent_for,
                   updated_at = EXCLUDED.updated_at`

const selectScheduleColumns = `SELECT user_id, channel_ref, username, due_at, sleep_until, active, last_notified_at, lead_sent_for, added_at, updated_at
               FROM party_users`

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSchedule(ctx context.Context, ex execer, rec *schedule.Record) error {
	_, err := ex.ExecContext(ctx, upsertScheduleQuery,
		rec.UserID, rec.ChannelRef, rec.Username, rec.DueAt, rec.SleepUntil, rec.Active,
		rec.LastNotifiedAt, rec.LeadSentFor, rec.AddedAt, rec.UpdatedAt,
	)
	return err
}

func (r *PostgresScheduleRepository) Save(ctx context.Context, rec *schedule.Record) error {
	if err := upsertSchedule(ctx, r.db, rec); err != nil {
		return fmt.Errorf("error saving schedule record: %w", err)
	}
	return nil
}

func (r *PostgresScheduleRepository) SaveWithHistory(ctx context.Context, rec *schedule.Record, entry *schedule.HistoryEntry) error {
	txn, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for cycle completion: %w", err)
	}
	defer txn.Rollback() // Rollback if not committed

	if err := upsertSchedule(ctx, txn, rec); err != nil {
		return fmt.Errorf("error saving schedule record (user %d): %w", rec.UserID, err)
	}

	query := `INSERT INTO party_history (user_id, completed_at, source)
               VALUES ($1, $2, $3)
               RETURNING id`
	if err := txn.QueryRowContext(ctx, query, entry.UserID, entry.CompletedAt, entry.Source).Scan(&entry.ID); err != nil {
		return fmt.Errorf("error appending party history (user %d): %w", entry.UserID, err)
	}

	if err := txn.Commit(); err != nil {
		return fmt.Errorf("error committing cycle completion: %w", err)
	}
	return nil
}

func (r *PostgresScheduleRepository) GetByUserID(ctx context.Context, userID int64) (*schedule.Record, error) {
	query := selectScheduleColumns + ` WHERE user_id = $1`
	rec := &schedule.Record{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&rec.UserID, &rec.ChannelRef, &rec.Username, &rec.DueAt, &rec.SleepUntil, &rec.Active,
		&rec.LastNotifiedAt, &rec.LeadSentFor, &rec.AddedAt, &rec.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("error getting schedule record by user ID: %w", err)
	}
	return rec, nil
}

func (r *PostgresScheduleRepository) ListAll(ctx context.Context) ([]*schedule.Record, error) {
	query := selectScheduleColumns + ` ORDER BY user_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error listing schedule records: %w", err)
	}
	defer rows.Close()

	records := make([]*schedule.Record, 0)
	for rows.Next() {
		rec := &schedule.Record{}
		if err := rows.Scan(
			&rec.UserID, &rec.ChannelRef, &rec.Username, &rec.DueAt, &rec.SleepUntil, &rec.Active,
			&rec.LastNotifiedAt, &rec.LeadSentFor, &rec.AddedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning schedule record: %w", err)
		}
		records = append(records, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating schedule records: %w", err)
	}
	return records, nil
}

func (r *PostgresScheduleRepository) CountHistory(ctx context.Context, userID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM party_history WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("error counting party history: %w", err)
	}
	return n, nil
}
