package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"party_notification_bot/internal/domain/mode"
)

var ErrModeNotFound = errors.New("global mode row not found")

// PostgresModeRepository stores the singleton row (id = 1) of party_mode.
type PostgresModeRepository struct {
	db *sql.DB
}

func NewPostgresModeRepository(db *sql.DB) *PostgresModeRepository {
	return &PostgresModeRepository{db: db}
}

func (r *PostgresModeRepository) Get(ctx context.Context) (*mode.GlobalMode, error) {
	m := &mode.GlobalMode{}
	err := r.db.QueryRowContext(ctx, `SELECT state, changed_at FROM party_mode WHERE id = 1`).Scan(&m.State, &m.ChangedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModeNotFound
		}
		return nil, fmt.Errorf("error getting global mode: %w", err)
	}
	return m, nil
}

func (r *PostgresModeRepository) Save(ctx context.Context, m *mode.GlobalMode) error {
	query := `INSERT INTO party_mode (id, state, changed_at)
               VALUES (1, $1, $2)
               ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, changed_at = EXCLUDED.changed_at`
	if _, err := r.db.ExecContext(ctx, query, m.State, m.ChangedAt); err != nil {
		return fmt.Errorf("error saving global mode: %w", err)
	}
	return nil
}
