package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"microblog/internal/domain"
)

const uniqueViolation = "23505"

type FeedStore struct {
	db *sqlx.DB
}

func NewFeedStore(db *sqlx.DB) *FeedStore {
	return &FeedStore{db: db}
}

func (s *FeedStore) Add(ctx context.Context, feed *domain.Feed) (int64, error) {
	query := `INSERT INTO rss_feeds (url, name) VALUES ($1, $2) RETURNING id, added_at`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, feed.URL, feed.Name).Scan(&feed.ID, &feed.AddedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return 0, domain.ErrDuplicate
		}
		return 0, domain.NewStorageError("add feed", err)
	}
	return feed.ID, nil
}

// List returns feeds most recently added first.
func (s *FeedStore) List(ctx context.Context) ([]domain.Feed, error) {
	var feeds []domain.Feed
	query := `SELECT id, url, name, added_at FROM rss_feeds ORDER BY added_at DESC, id DESC`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &feeds, query); err != nil {
		return nil, domain.NewStorageError("list feeds", err)
	}
	return feeds, nil
}

func (s *FeedStore) Get(ctx context.Context, id int64) (*domain.Feed, error) {
	var feed domain.Feed
	query := `SELECT id, url, name, added_at FROM rss_feeds WHERE id = $1`
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &feed, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.NewStorageError("get feed", err)
	}
	return &feed, nil
}

func (s *FeedStore) Delete(ctx context.Context, id int64) error {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, `DELETE FROM rss_feeds WHERE id = $1`, id)
	if err != nil {
		return domain.NewStorageError("delete feed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.NewStorageError("delete feed", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
