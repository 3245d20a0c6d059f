package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"microblog/internal/config"
	"microblog/internal/domain"
	"microblog/internal/scheduler/mocks"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type SchedulerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	publisher *mocks.MockPublisher
	metrics   *mocks.MockMetrics

	sched *Scheduler
	clock *clock
	cfg   config.SchedulerConfig
	start time.Time
}

func (s *SchedulerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.metrics = mocks.NewMockMetrics(s.ctrl)

	s.cfg = config.SchedulerConfig{
		Interval:       time.Hour,
		PollInterval:   time.Minute,
		PublishTimeout: time.Minute,
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.start = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s.clock = &clock{now: s.start}

	s.sched = NewScheduler(s.publisher, s.metrics, logger, s.cfg)
	s.sched.now = s.clock.Now

	s.publisher.EXPECT().LastPublished(gomock.Any()).Return(s.start, nil)
	s.Require().NoError(s.sched.Init(context.Background()))
}

func (s *SchedulerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) published(id int64) *domain.ArchiveEntry {
	return &domain.ArchiveEntry{
		ID:       id,
		Outcomes: domain.Outcomes{domain.TargetMastodon: {Success: true}},
	}
}

func (s *SchedulerTestSuite) TestTick_NotDueBeforeInterval() {
	s.clock.Set(s.start.Add(3599 * time.Second))

	entry, err := s.sched.Tick(context.Background())

	s.NoError(err)
	s.Nil(entry)
	s.Equal(s.start, s.sched.LastPublish())
}

func (s *SchedulerTestSuite) TestTick_PublishesAfterInterval() {
	now := s.start.Add(3601 * time.Second)
	s.clock.Set(now)

	s.publisher.EXPECT().PublishNext(gomock.Any()).Return(s.published(1), nil)
	s.metrics.EXPECT().ObservePublish(TriggerAuto, ResultPublished)

	entry, err := s.sched.Tick(context.Background())

	s.Require().NoError(err)
	s.Equal(int64(1), entry.ID)
	s.Equal(now, s.sched.LastPublish())
	s.Equal(StateIdle, s.sched.State())
}

func (s *SchedulerTestSuite) TestTick_EmptyQueueKeepsTimer() {
	s.clock.Set(s.start.Add(2 * time.Hour))

	s.publisher.EXPECT().PublishNext(gomock.Any()).Return(nil, domain.ErrQueueEmpty).Times(2)
	s.metrics.EXPECT().ObservePublish(TriggerAuto, ResultEmpty).Times(2)

	for range 2 {
		entry, err := s.sched.Tick(context.Background())
		s.Nil(entry)
		s.ErrorIs(err, domain.ErrQueueEmpty)
	}
	s.Equal(s.start, s.sched.LastPublish())
	s.True(s.sched.Due())
}

func (s *SchedulerTestSuite) TestTick_FailureKeepsTimer() {
	s.clock.Set(s.start.Add(2 * time.Hour))

	storageErr := domain.NewStorageError("append archive", errors.New("connection refused"))
	s.publisher.EXPECT().PublishNext(gomock.Any()).Return(nil, storageErr)
	s.metrics.EXPECT().ObservePublish(TriggerAuto, ResultFailed)

	_, err := s.sched.Tick(context.Background())

	s.ErrorIs(err, domain.ErrStorage)
	s.Equal(s.start, s.sched.LastPublish())
}

func (s *SchedulerTestSuite) TestTick_SkipsWhilePublishing() {
	s.clock.Set(s.start.Add(2 * time.Hour))

	s.sched.publishMu.Lock()
	defer s.sched.publishMu.Unlock()

	_, err := s.sched.Tick(context.Background())

	s.ErrorIs(err, domain.ErrPublishInFlight)
}

func (s *SchedulerTestSuite) TestPublishNow_ResetsTimer() {
	manual := s.start.Add(10 * time.Minute)
	s.clock.Set(manual)

	draft := domain.QueueEntry{Text: "breaking", PostToMastodon: true}
	s.publisher.EXPECT().PublishEntry(gomock.Any(), draft).Return(s.published(2), nil)
	s.metrics.EXPECT().ObservePublish(TriggerManual, ResultPublished)

	_, err := s.sched.PublishNow(context.Background(), draft)
	s.Require().NoError(err)
	s.Equal(manual, s.sched.LastPublish())

	// The original due time has passed but the manual publish moved it.
	s.clock.Set(s.start.Add(time.Hour + time.Second))
	entry, err := s.sched.Tick(context.Background())
	s.NoError(err)
	s.Nil(entry)

	s.clock.Set(manual.Add(3599 * time.Second))
	entry, err = s.sched.Tick(context.Background())
	s.NoError(err)
	s.Nil(entry)

	s.clock.Set(manual.Add(time.Hour))
	s.publisher.EXPECT().PublishNext(gomock.Any()).Return(s.published(3), nil)
	s.metrics.EXPECT().ObservePublish(TriggerAuto, ResultPublished)

	entry, err = s.sched.Tick(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(3), entry.ID)
}

func (s *SchedulerTestSuite) TestPublishNext_IgnoresInterval() {
	manual := s.start.Add(time.Minute)
	s.clock.Set(manual)

	s.publisher.EXPECT().PublishNext(gomock.Any()).Return(s.published(4), nil)
	s.metrics.EXPECT().ObservePublish(TriggerManual, ResultPublished)

	entry, err := s.sched.PublishNext(context.Background())

	s.Require().NoError(err)
	s.Equal(int64(4), entry.ID)
	s.Equal(manual, s.sched.LastPublish())
	s.Equal(manual.Add(time.Hour), s.sched.NextDue())
}

func (s *SchedulerTestSuite) TestRunTick_RecoversLoopFault() {
	s.clock.Set(s.start.Add(2 * time.Hour))

	s.publisher.EXPECT().PublishNext(gomock.Any()).DoAndReturn(
		func(context.Context) (*domain.ArchiveEntry, error) {
			panic("boom")
		},
	)

	s.NotPanics(func() { s.sched.runTick(context.Background()) })
	s.Equal(StateIdle, s.sched.State())

	// The lock was released so the next tick runs.
	s.publisher.EXPECT().PublishNext(gomock.Any()).Return(s.published(5), nil)
	s.metrics.EXPECT().ObservePublish(TriggerAuto, ResultPublished)

	entry, err := s.sched.Tick(context.Background())
	s.Require().NoError(err)
	s.Equal(int64(5), entry.ID)
}

func (s *SchedulerTestSuite) TestStart_StopsOnCancel() {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.sched.Start(ctx)

	s.ErrorIs(err, context.Canceled)
}

func (s *SchedulerTestSuite) TestInit_NothingPersistedStartsTimerNow() {
	now := s.start.Add(5 * time.Hour)
	s.clock.Set(now)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	sched := NewScheduler(s.publisher, s.metrics, logger, s.cfg)
	sched.now = s.clock.Now

	s.publisher.EXPECT().LastPublished(gomock.Any()).Return(time.Time{}, nil)

	s.Require().NoError(sched.Init(context.Background()))
	s.Equal(now, sched.LastPublish())
	s.False(sched.Due())
}

func (s *SchedulerTestSuite) TestStatus() {
	status := s.sched.Status()

	s.Equal(StateIdle, status.State)
	s.Equal(s.start, status.LastPublish)
	s.Equal(s.start.Add(time.Hour), status.NextDue)
	s.Equal("1h0m0s", status.Interval)
}
