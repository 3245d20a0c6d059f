package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"microblog/internal/config"
	"microblog/internal/domain"
	"microblog/internal/render"
)

const bookkeepingTimeout = 30 * time.Second

// PostService owns the queue and archive and sequences a publish:
// render, publish to each target, archive the outcomes, record the publish time.
type PostService struct {
	queue     QueueStore
	archive   ArchiveStore
	state     SchedulerStateStore
	txManager TransactionManager
	renderer  Renderer
	publisher Publisher
	events    EventPublisher
	metrics   Metrics
	logger    *slog.Logger
	retry     config.RetryConfig
	now       func() time.Time
}

func NewPostService(
	queue QueueStore,
	archive ArchiveStore,
	state SchedulerStateStore,
	txManager TransactionManager,
	renderer Renderer,
	publisher Publisher,
	events EventPublisher,
	metrics Metrics,
	logger *slog.Logger,
	cfg config.PublishConfig,
) *PostService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &PostService{
		queue:     queue,
		archive:   archive,
		state:     state,
		txManager: txManager,
		renderer:  renderer,
		publisher: publisher,
		events:    events,
		metrics:   metrics,
		logger:    logger.With("component", "posts"),
		retry:     cfg.Retry,
		now:       time.Now,
	}
}

func validate(entry *domain.QueueEntry) error {
	entry.Text = strings.TrimSpace(entry.Text)
	if entry.Text == "" {
		return domain.ErrEmptyPost
	}
	if entry.LinkURL != nil && strings.TrimSpace(*entry.LinkURL) == "" {
		entry.LinkURL = nil
	}
	if entry.ImageRef != nil && strings.TrimSpace(*entry.ImageRef) == "" {
		entry.ImageRef = nil
	}
	return nil
}

func (s *PostService) Enqueue(ctx context.Context, entry domain.QueueEntry) (*domain.QueueEntry, error) {
	if err := validate(&entry); err != nil {
		return nil, err
	}
	entry.ID = 0
	if _, err := s.queue.Enqueue(ctx, &entry); err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	s.logger.Info("post queued", "queue_id", entry.ID)
	s.refreshQueueDepth(ctx)
	return &entry, nil
}

// Queue lists pending entries oldest first.
func (s *PostService) Queue(ctx context.Context) ([]domain.QueueEntry, error) {
	return s.queue.List(ctx)
}

func (s *PostService) RemoveFromQueue(ctx context.Context, id int64) error {
	if err := s.queue.Remove(ctx, id); err != nil {
		return fmt.Errorf("remove queue entry %d: %w", id, err)
	}
	s.logger.Info("queue entry removed", "queue_id", id)
	s.refreshQueueDepth(ctx)
	return nil
}

// PublishNext pops the oldest queue entry and publishes it.
// It returns domain.ErrQueueEmpty when there is nothing to publish.
func (s *PostService) PublishNext(ctx context.Context) (*domain.ArchiveEntry, error) {
	entry, err := s.queue.PopOldest(ctx)
	if errors.Is(err, domain.ErrQueueEmpty) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("pop queue: %w", err)
	}
	s.refreshQueueDepth(ctx)

	return s.publish(ctx, *entry, true, true)
}

// PublishEntry publishes an entry that was never queued.
func (s *PostService) PublishEntry(ctx context.Context, entry domain.QueueEntry) (*domain.ArchiveEntry, error) {
	if err := validate(&entry); err != nil {
		return nil, err
	}
	entry.ID = 0
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	return s.publish(ctx, entry, false, true)
}

// PostLocal archives an entry without sending it anywhere. The publish timer is untouched.
func (s *PostService) PostLocal(ctx context.Context, entry domain.QueueEntry) (*domain.ArchiveEntry, error) {
	if err := validate(&entry); err != nil {
		return nil, err
	}
	entry.ID = 0
	entry.PostToBluesky = false
	entry.PostToMastodon = false
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	return s.publish(ctx, entry, false, false)
}

// LastPublished returns the persisted time of the last publish, zero if none.
func (s *PostService) LastPublished(ctx context.Context) (time.Time, error) {
	state, err := s.state.Get(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("get scheduler state: %w", err)
	}
	return state.LastPublishAt, nil
}

func (s *PostService) SearchArchive(ctx context.Context, query string) ([]domain.ArchiveEntry, error) {
	return s.archive.Search(ctx, query)
}

func (s *PostService) ArchivePage(ctx context.Context, query string, page, perPage int) (domain.Page, error) {
	return s.archive.Page(ctx, query, page, perPage)
}

func (s *PostService) publish(ctx context.Context, entry domain.QueueEntry, popped, recordPublish bool) (*domain.ArchiveEntry, error) {
	logger := s.logger.With("queue_id", entry.ID)
	targets := entry.Targets()

	rendered, renderErr := s.renderer.Render(ctx, entry.Content())
	if renderErr != nil {
		logger.Warn("failed to render post", "error", renderErr)
	}

	var outcomes domain.Outcomes
	switch {
	case targets.Empty():
		outcomes = domain.Outcomes{}
	case renderErr != nil:
		outcomes = failAll(targets, renderErr)
	default:
		outcomes = s.publishWithRetry(ctx, logger, rendered, targets)
	}
	s.metrics.ObserveOutcomes(outcomes)

	record := domain.NewArchiveEntry(entry, s.now(), outcomes)
	if rendered != nil && rendered.Card != nil {
		record.Headline = &rendered.Card.Title
		record.Thumbnail = rendered.Card.Preview
		if rendered.Card.Description != "" {
			summary := render.ArchiveSummary(rendered.Card.Description)
			record.Summary = &summary
		}
	}

	// The remote calls are done; bookkeeping must not inherit their deadline.
	bookCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	err := s.txManager.WithTransaction(bookCtx, func(txCtx context.Context) error {
		if _, err := s.archive.Append(txCtx, &record); err != nil {
			return fmt.Errorf("append archive: %w", err)
		}
		if !recordPublish {
			return nil
		}
		if err := s.state.Update(txCtx, &domain.SchedulerState{LastPublishAt: record.PublishedAt}); err != nil {
			return fmt.Errorf("update scheduler state: %w", err)
		}
		return nil
	})
	if err != nil {
		if popped {
			s.restore(bookCtx, logger, &entry)
		}
		return nil, domain.NewStorageError("archive post", err)
	}

	logger.Info("post archived",
		"archive_id", record.ID,
		"outcome", outcomes.Summary(),
	)

	if s.events != nil {
		if err := s.events.PublishPosted(bookCtx, &record); err != nil {
			logger.Warn("failed to publish post event", "archive_id", record.ID, "error", err)
		}
	}

	return &record, nil
}

// restore puts a popped entry back so a storage failure never loses it.
func (s *PostService) restore(ctx context.Context, logger *slog.Logger, entry *domain.QueueEntry) {
	if err := s.queue.Requeue(ctx, entry); err != nil {
		logger.Error("failed to requeue entry after storage error, entry lost",
			"text", entry.Text,
			"error", err,
		)
		return
	}
	logger.Warn("entry requeued after storage error")
	s.refreshQueueDepth(ctx)
}

func (s *PostService) publishWithRetry(ctx context.Context, logger *slog.Logger, post *domain.Rendered, targets domain.TargetSet) domain.Outcomes {
	outcomes := s.publisher.Publish(ctx, post, targets)

	for attempt := 1; attempt < s.retry.MaxAttempts; attempt++ {
		failed := failedTargets(outcomes)
		if failed.Empty() {
			break
		}

		backoff := s.calculateBackoff(attempt)
		logger.Warn("publish failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"targets", failed.List(),
		)

		select {
		case <-ctx.Done():
			return outcomes
		case <-time.After(backoff):
		}

		for t, out := range s.publisher.Publish(ctx, post, failed) {
			outcomes[t] = out
		}
	}

	return outcomes
}

func (s *PostService) calculateBackoff(attempt int) time.Duration {
	backoff := s.retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.retry.MaxBackoff {
		backoff = s.retry.MaxBackoff
	}
	return backoff
}

func (s *PostService) refreshQueueDepth(ctx context.Context) {
	n, err := s.queue.Count(ctx)
	if err != nil {
		s.logger.Debug("failed to count queue", "error", err)
		return
	}
	s.metrics.SetQueueDepth(n)
}

func failedTargets(outcomes domain.Outcomes) domain.TargetSet {
	failed := domain.TargetSet{}
	for t, out := range outcomes {
		if !out.Success {
			failed[t] = true
		}
	}
	return failed
}

func failAll(targets domain.TargetSet, err error) domain.Outcomes {
	outcomes := domain.Outcomes{}
	for _, t := range targets.List() {
		outcomes[t] = domain.Outcome{Success: false, Error: err.Error()}
	}
	return outcomes
}

type noopMetrics struct{}

func (noopMetrics) ObserveOutcomes(domain.Outcomes) {}
func (noopMetrics) SetQueueDepth(int)              {}
