package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"microblog/internal/domain"
)

type DigestStateStore struct {
	db *sqlx.DB
}

func NewDigestStateStore(db *sqlx.DB) *DigestStateStore {
	return &DigestStateStore{db: db}
}

// Get reads the digest mark. Inside a transaction the row stays locked until commit,
// so two digests never cover the same posts.
func (s *DigestStateStore) Get(ctx context.Context) (*domain.DigestState, error) {
	var last sql.NullTime
	query := `SELECT last_digest_at FROM digest_state WHERE id = 1 FOR UPDATE`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &last, query)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewStorageError("get digest state", err)
	}
	return &domain.DigestState{LastDigestAt: last.Time}, nil
}

// Update moves the digest mark forward; it never moves backwards.
func (s *DigestStateStore) Update(ctx context.Context, state *domain.DigestState) error {
	query := `
		INSERT INTO digest_state (id, last_digest_at)
		VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET
			last_digest_at = GREATEST(digest_state.last_digest_at, EXCLUDED.last_digest_at)`

	if _, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, state.LastDigestAt); err != nil {
		return domain.NewStorageError("update digest state", err)
	}
	return nil
}
