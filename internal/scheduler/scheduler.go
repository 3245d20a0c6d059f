package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"microblog/internal/config"
	"microblog/internal/domain"
)

type State string

const (
	StateIdle       State = "idle"
	StatePublishing State = "publishing"
)

const (
	TriggerAuto   = "auto"
	TriggerManual = "manual"
)

const (
	ResultPublished = "published"
	ResultEmpty     = "empty"
	ResultFailed    = "failed"
)

// Status is a snapshot of the scheduler for display.
type Status struct {
	State       State     `json:"state"`
	LastPublish time.Time `json:"last_publish"`
	NextDue     time.Time `json:"next_due"`
	Interval    string    `json:"interval"`
}

// Scheduler publishes the oldest queued entry once the interval has passed
// since the last publish. Manual publishes go through the same lock and reset the timer.
type Scheduler struct {
	publisher Publisher
	metrics   Metrics
	cfg       config.SchedulerConfig
	logger    *slog.Logger
	now       func() time.Time

	// publishMu is held for a whole pop, publish and archive sequence.
	publishMu sync.Mutex

	mu          sync.RWMutex
	lastPublish time.Time
	publishing  bool
}

func NewScheduler(publisher Publisher, metrics Metrics, logger *slog.Logger, cfg config.SchedulerConfig) *Scheduler {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Scheduler{
		publisher: publisher,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// Init loads the last publish time. With nothing persisted the timer starts now,
// so a fresh process waits a full interval before its first automatic publish.
func (s *Scheduler) Init(ctx context.Context) error {
	last, err := s.publisher.LastPublished(ctx)
	if err != nil {
		return fmt.Errorf("load last publish time: %w", err)
	}
	if last.IsZero() {
		last = s.now()
	}
	s.markPublished(last)

	s.logger.Info("scheduler initialized",
		"last_publish", s.LastPublish(),
		"next_due", s.NextDue(),
	)
	return nil
}

// Start runs the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.cfg.Interval,
		"poll_interval", s.cfg.PollInterval,
	)

	s.runTick(ctx)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runTick(ctx)
		}
	}
}

func (s *Scheduler) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduler loop fault",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	entry, err := s.Tick(ctx)
	switch {
	case errors.Is(err, domain.ErrQueueEmpty):
		s.logger.Debug("queue empty, nothing to publish")
	case errors.Is(err, domain.ErrPublishInFlight):
		s.logger.Debug("publish in flight, tick skipped")
	case err != nil:
		s.logger.Error("auto publish failed", "error", err)
	case entry == nil:
		s.logger.Debug("not due", "next_due", s.NextDue())
	}
}

// Tick publishes the oldest queue entry if the interval has elapsed.
// It returns nil, nil when not due.
func (s *Scheduler) Tick(ctx context.Context) (*domain.ArchiveEntry, error) {
	if !s.Due() {
		return nil, nil
	}

	if !s.publishMu.TryLock() {
		return nil, domain.ErrPublishInFlight
	}
	defer s.publishMu.Unlock()

	// A manual publish may have reset the timer while we waited.
	if !s.Due() {
		return nil, nil
	}

	return s.publish(ctx, TriggerAuto, s.publisher.PublishNext)
}

// PublishNext publishes the oldest queue entry now and resets the timer.
func (s *Scheduler) PublishNext(ctx context.Context) (*domain.ArchiveEntry, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	return s.publish(ctx, TriggerManual, s.publisher.PublishNext)
}

// PublishNow publishes a draft that was never queued and resets the timer.
func (s *Scheduler) PublishNow(ctx context.Context, draft domain.QueueEntry) (*domain.ArchiveEntry, error) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()

	return s.publish(ctx, TriggerManual, func(ctx context.Context) (*domain.ArchiveEntry, error) {
		return s.publisher.PublishEntry(ctx, draft)
	})
}

func (s *Scheduler) publish(
	ctx context.Context,
	trigger string,
	fn func(ctx context.Context) (*domain.ArchiveEntry, error),
) (*domain.ArchiveEntry, error) {
	s.setPublishing(true)
	defer s.setPublishing(false)

	publishCtx, cancel := context.WithTimeout(ctx, s.cfg.PublishTimeout)
	defer cancel()

	entry, err := fn(publishCtx)
	if errors.Is(err, domain.ErrQueueEmpty) {
		s.metrics.ObservePublish(trigger, ResultEmpty)
		return nil, err
	}
	if err != nil {
		s.metrics.ObservePublish(trigger, ResultFailed)
		return nil, fmt.Errorf("%s publish: %w", trigger, err)
	}

	s.markPublished(s.now())
	s.metrics.ObservePublish(trigger, ResultPublished)

	s.logger.Info("post published",
		"trigger", trigger,
		"archive_id", entry.ID,
		"outcome", entry.Outcomes.Summary(),
		"next_due", s.NextDue(),
	)
	return entry, nil
}

// Due reports whether an automatic publish is due.
func (s *Scheduler) Due() bool {
	return !s.now().Before(s.NextDue())
}

func (s *Scheduler) LastPublish() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastPublish
}

func (s *Scheduler) NextDue() time.Time {
	return s.LastPublish().Add(s.cfg.Interval)
}

func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.publishing {
		return StatePublishing
	}
	return StateIdle
}

func (s *Scheduler) Status() Status {
	return Status{
		State:       s.State(),
		LastPublish: s.LastPublish(),
		NextDue:     s.NextDue(),
		Interval:    s.cfg.Interval.String(),
	}
}

// markPublished never moves the timestamp backwards.
func (s *Scheduler) markPublished(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastPublish) {
		s.lastPublish = t
	}
}

func (s *Scheduler) setPublishing(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publishing = v
}

type noopMetrics struct{}

func (noopMetrics) ObservePublish(string, string) {}
