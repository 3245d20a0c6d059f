package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/internal/config"
	"microblog/internal/domain"
	"microblog/internal/service"
	"microblog/internal/storage/memory"
)

type passthroughRenderer struct{}

func (passthroughRenderer) Render(_ context.Context, content domain.Content) (*domain.Rendered, error) {
	return &domain.Rendered{Content: content}, nil
}

type countingPublisher struct {
	calls atomic.Int32
}

func (p *countingPublisher) Publish(_ context.Context, _ *domain.Rendered, targets domain.TargetSet) domain.Outcomes {
	p.calls.Add(1)
	outcomes := domain.Outcomes{}
	for _, t := range targets.List() {
		outcomes[t] = domain.Outcome{Success: true}
	}
	return outcomes
}

type flow struct {
	queue     *memory.QueueStore
	archive   *memory.ArchiveStore
	state     *memory.SchedulerStateStore
	publisher *countingPublisher
	posts     *service.PostService
	sched     *Scheduler
	clock     *clock
}

func newFlow(t *testing.T) *flow {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	f := &flow{
		queue:     memory.NewQueueStore(),
		archive:   memory.NewArchiveStore(),
		state:     memory.NewSchedulerStateStore(),
		publisher: &countingPublisher{},
		clock:     &clock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)},
	}

	f.posts = service.NewPostService(
		f.queue,
		f.archive,
		f.state,
		memory.TransactionManager{},
		passthroughRenderer{},
		f.publisher,
		nil,
		nil,
		logger,
		config.PublishConfig{Retry: config.RetryConfig{MaxAttempts: 1}},
	)

	f.sched = NewScheduler(f.posts, nil, logger, config.SchedulerConfig{
		Interval:       time.Hour,
		PollInterval:   time.Minute,
		PublishTimeout: time.Minute,
	})
	f.sched.now = f.clock.Now
	require.NoError(t, f.sched.Init(context.Background()))

	return f
}

func TestFlow_EmptyQueueTickIsIdempotent(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	before := f.sched.LastPublish()

	f.clock.Set(before.Add(3 * time.Hour))
	for range 3 {
		_, err := f.sched.Tick(ctx)
		assert.ErrorIs(t, err, domain.ErrQueueEmpty)
	}

	assert.Equal(t, before, f.sched.LastPublish())
	archived, err := f.archive.Search(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, archived)

	state, err := f.state.Get(ctx)
	require.NoError(t, err)
	assert.True(t, state.LastPublishAt.IsZero())
}

func TestFlow_ConcurrentPublishIsAtMostOnce(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()

	_, err := f.posts.Enqueue(ctx, domain.QueueEntry{Text: "only one", PostToBluesky: true})
	require.NoError(t, err)
	f.clock.Set(f.sched.LastPublish().Add(2 * time.Hour))

	var (
		wg        sync.WaitGroup
		published atomic.Int32
	)
	for i := range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var entry *domain.ArchiveEntry
			if i%2 == 0 {
				entry, _ = f.sched.PublishNext(ctx)
			} else {
				entry, _ = f.sched.Tick(ctx)
			}
			if entry != nil {
				published.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), published.Load())
	assert.Equal(t, int32(1), f.publisher.calls.Load())

	archived, err := f.archive.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	n, err := f.queue.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlow_LocalOnlyPublishNowSkipsAdapter(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	now := f.sched.LastPublish().Add(10 * time.Minute)
	f.clock.Set(now)

	entry, err := f.sched.PublishNow(ctx, domain.QueueEntry{Text: "notes to self"})
	require.NoError(t, err)

	assert.Empty(t, entry.Outcomes)
	assert.Equal(t, int32(0), f.publisher.calls.Load())
	assert.Equal(t, now, f.sched.LastPublish())
}

func TestFlow_PostLocalLeavesTimer(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()
	before := f.sched.LastPublish()

	_, err := f.posts.PostLocal(ctx, domain.QueueEntry{Text: "draft", PostToMastodon: true})
	require.NoError(t, err)

	assert.Equal(t, before, f.sched.LastPublish())
	assert.Equal(t, int32(0), f.publisher.calls.Load())

	archived, err := f.archive.Search(ctx, "draft")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "local only", archived[0].Outcomes.Summary())
}

func TestFlow_QueueDrainsInOrder(t *testing.T) {
	f := newFlow(t)
	ctx := context.Background()

	for _, text := range []string{"first", "second"} {
		_, err := f.posts.Enqueue(ctx, domain.QueueEntry{Text: text, PostToMastodon: true})
		require.NoError(t, err)
	}

	f.clock.Set(f.sched.LastPublish().Add(time.Hour))
	entry, err := f.sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", entry.Text)

	f.clock.Set(f.sched.LastPublish().Add(time.Hour))
	entry, err = f.sched.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", entry.Text)
	assert.True(t, entry.Outcomes[domain.TargetMastodon].Success)
}
