package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"microblog/internal/domain"
)

type QueueStore interface {
	Enqueue(ctx context.Context, entry *domain.QueueEntry) (int64, error)
	List(ctx context.Context) ([]domain.QueueEntry, error)
	Count(ctx context.Context) (int, error)
	Remove(ctx context.Context, id int64) error
	PopOldest(ctx context.Context) (*domain.QueueEntry, error)
	Requeue(ctx context.Context, entry *domain.QueueEntry) error
}

type ArchiveStore interface {
	Append(ctx context.Context, entry *domain.ArchiveEntry) (int64, error)
	Search(ctx context.Context, query string) ([]domain.ArchiveEntry, error)
	Page(ctx context.Context, query string, page, perPage int) (domain.Page, error)
	Since(ctx context.Context, t time.Time) ([]domain.ArchiveEntry, error)
}

type SchedulerStateStore interface {
	Get(ctx context.Context) (*domain.SchedulerState, error)
	Update(ctx context.Context, state *domain.SchedulerState) error
}

type DigestStateStore interface {
	Get(ctx context.Context) (*domain.DigestState, error)
	Update(ctx context.Context, state *domain.DigestState) error
}

type FeedStore interface {
	Add(ctx context.Context, feed *domain.Feed) (int64, error)
	List(ctx context.Context) ([]domain.Feed, error)
	Get(ctx context.Context, id int64) (*domain.Feed, error)
	Delete(ctx context.Context, id int64) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Renderer interface {
	Render(ctx context.Context, content domain.Content) (*domain.Rendered, error)
}

type Publisher interface {
	Publish(ctx context.Context, post *domain.Rendered, targets domain.TargetSet) domain.Outcomes
}

type EventPublisher interface {
	PublishPosted(ctx context.Context, entry *domain.ArchiveEntry) error
	Close() error
}

type FeedSource interface {
	Fetch(ctx context.Context, url string, limit int) ([]domain.FeedItem, error)
}

type Metrics interface {
	ObserveOutcomes(outcomes domain.Outcomes)
	SetQueueDepth(n int)
}
