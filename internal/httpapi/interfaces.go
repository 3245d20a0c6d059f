package httpapi

import (
	"context"

	"microblog/internal/domain"
	"microblog/internal/scheduler"
)

type Posts interface {
	Enqueue(ctx context.Context, entry domain.QueueEntry) (*domain.QueueEntry, error)
	Queue(ctx context.Context) ([]domain.QueueEntry, error)
	RemoveFromQueue(ctx context.Context, id int64) error
	PostLocal(ctx context.Context, entry domain.QueueEntry) (*domain.ArchiveEntry, error)
	ArchivePage(ctx context.Context, query string, page, perPage int) (domain.Page, error)
}

type Scheduler interface {
	PublishNext(ctx context.Context) (*domain.ArchiveEntry, error)
	PublishNow(ctx context.Context, draft domain.QueueEntry) (*domain.ArchiveEntry, error)
	Status() scheduler.Status
}

type Feeds interface {
	AddFeed(ctx context.Context, url string, name *string) (*domain.Feed, error)
	Feeds(ctx context.Context) ([]domain.Feed, error)
	Feed(ctx context.Context, id int64) (*domain.Feed, error)
	DeleteFeed(ctx context.Context, id int64) error
	Browse(ctx context.Context, id int64) (*domain.Feed, []domain.FeedItem, error)
}

type Digests interface {
	Digest(ctx context.Context) (*domain.Digest, error)
}
