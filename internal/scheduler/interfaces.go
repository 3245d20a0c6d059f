package scheduler

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"microblog/internal/domain"
)

// Publisher runs one pop, publish and archive sequence.
type Publisher interface {
	PublishNext(ctx context.Context) (*domain.ArchiveEntry, error)
	PublishEntry(ctx context.Context, entry domain.QueueEntry) (*domain.ArchiveEntry, error)
	LastPublished(ctx context.Context) (time.Time, error)
}

type Metrics interface {
	ObservePublish(trigger, result string)
}
