package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"microblog/internal/domain"
)

const queueColumns = `id, text, image_ref, link_url, post_to_bluesky, post_to_mastodon, created_at`

type QueueStore struct {
	db *sqlx.DB
}

func NewQueueStore(db *sqlx.DB) *QueueStore {
	return &QueueStore{db: db}
}

func (s *QueueStore) Enqueue(ctx context.Context, entry *domain.QueueEntry) (int64, error) {
	query := `
		INSERT INTO queue_entries (text, image_ref, link_url, post_to_bluesky, post_to_mastodon)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.Text,
		entry.ImageRef,
		entry.LinkURL,
		entry.PostToBluesky,
		entry.PostToMastodon,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return 0, domain.NewStorageError("enqueue", err)
	}
	return entry.ID, nil
}

// List returns queued entries oldest first.
func (s *QueueStore) List(ctx context.Context) ([]domain.QueueEntry, error) {
	var entries []domain.QueueEntry
	query := `SELECT ` + queueColumns + ` FROM queue_entries ORDER BY id`

	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, query); err != nil {
		return nil, domain.NewStorageError("list queue", err)
	}
	return entries, nil
}

func (s *QueueStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &n, `SELECT COUNT(*) FROM queue_entries`); err != nil {
		return 0, domain.NewStorageError("count queue", err)
	}
	return n, nil
}

func (s *QueueStore) Remove(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM queue_entries WHERE id = $1`, id)
	if err != nil {
		return domain.NewStorageError("remove queue entry", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("remove queue entry", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// PopOldest deletes and returns the earliest entry. Rows locked by a concurrent
// pop are skipped, so an entry is handed to at most one caller.
func (s *QueueStore) PopOldest(ctx context.Context) (*domain.QueueEntry, error) {
	query := `
		DELETE FROM queue_entries
		WHERE id = (
			SELECT id FROM queue_entries
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + queueColumns

	var entry domain.QueueEntry
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &entry, query)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrQueueEmpty
	}
	if err != nil {
		return nil, domain.NewStorageError("pop queue entry", err)
	}
	return &entry, nil
}

// Requeue puts a popped entry back under its original id, which restores its position.
func (s *QueueStore) Requeue(ctx context.Context, entry *domain.QueueEntry) error {
	query := `
		INSERT INTO queue_entries (id, text, image_ref, link_url, post_to_bluesky, post_to_mastodon, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		entry.ID,
		entry.Text,
		entry.ImageRef,
		entry.LinkURL,
		entry.PostToBluesky,
		entry.PostToMastodon,
		entry.CreatedAt,
	)
	if err != nil {
		return domain.NewStorageError("requeue entry", err)
	}
	return nil
}
