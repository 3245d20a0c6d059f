package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"microblog/internal/domain"
)

type SchedulerStateStore struct {
	db *sqlx.DB
}

func NewSchedulerStateStore(db *sqlx.DB) *SchedulerStateStore {
	return &SchedulerStateStore{db: db}
}

func (s *SchedulerStateStore) Get(ctx context.Context) (*domain.SchedulerState, error) {
	var state domain.SchedulerState
	query := `SELECT last_publish_at FROM scheduler_state WHERE id = 1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &state, query)
	if errors.Is(err, sql.ErrNoRows) {
		// Never published
		return &domain.SchedulerState{}, nil
	}
	if err != nil {
		return nil, domain.NewStorageError("get scheduler state", err)
	}
	return &state, nil
}

// Update stores the last publish time; it never moves backwards.
func (s *SchedulerStateStore) Update(ctx context.Context, state *domain.SchedulerState) error {
	query := `
		INSERT INTO scheduler_state (id, last_publish_at)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET
			last_publish_at = GREATEST(scheduler_state.last_publish_at, EXCLUDED.last_publish_at)`

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, state.LastPublishAt); err != nil {
		return domain.NewStorageError("update scheduler state", err)
	}
	return nil
}
