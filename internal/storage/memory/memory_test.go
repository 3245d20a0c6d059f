package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/internal/domain"
)

func TestQueueStore_FIFO(t *testing.T) {
	ctx := context.Background()
	store := NewQueueStore()

	for i := 0; i < 5; i++ {
		_, err := store.Enqueue(ctx, &domain.QueueEntry{Text: fmt.Sprintf("post %d", i)})
		require.NoError(t, err)
	}

	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 5)
	for i, e := range listed {
		assert.Equal(t, fmt.Sprintf("post %d", i), e.Text)
	}

	for i := 0; i < 5; i++ {
		e, err := store.PopOldest(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("post %d", i), e.Text)
	}

	_, err = store.PopOldest(ctx)
	assert.ErrorIs(t, err, domain.ErrQueueEmpty)
}

func TestQueueStore_Remove(t *testing.T) {
	ctx := context.Background()
	store := NewQueueStore()

	a, _ := store.Enqueue(ctx, &domain.QueueEntry{Text: "a"})
	b, _ := store.Enqueue(ctx, &domain.QueueEntry{Text: "b"})

	require.NoError(t, store.Remove(ctx, a))
	assert.ErrorIs(t, store.Remove(ctx, a), domain.ErrNotFound)

	e, err := store.PopOldest(ctx)
	require.NoError(t, err)
	assert.Equal(t, b, e.ID)
}

func TestQueueStore_RequeueRestoresPosition(t *testing.T) {
	ctx := context.Background()
	store := NewQueueStore()

	_, _ = store.Enqueue(ctx, &domain.QueueEntry{Text: "first"})
	_, _ = store.Enqueue(ctx, &domain.QueueEntry{Text: "second"})

	popped, err := store.PopOldest(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Requeue(ctx, popped))
	require.NoError(t, store.Requeue(ctx, popped))

	listed, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "first", listed[0].Text)
	assert.Equal(t, "second", listed[1].Text)
}

func TestQueueStore_ConcurrentPopIsExactlyOnce(t *testing.T) {
	ctx := context.Background()
	store := NewQueueStore()

	const n = 100
	for i := 0; i < n; i++ {
		_, _ = store.Enqueue(ctx, &domain.QueueEntry{Text: "x"})
	}

	var (
		mu   sync.Mutex
		seen = map[int64]int{}
		wg   sync.WaitGroup
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				e, err := store.PopOldest(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[e.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
	for id, count := range seen {
		assert.Equal(t, 1, count, "entry %d popped more than once", id)
	}
}

func TestArchiveStore_SearchAndPage(t *testing.T) {
	ctx := context.Background()
	store := NewArchiveStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		text := fmt.Sprintf("note %d", i)
		if i%2 == 0 {
			text = fmt.Sprintf("Golang note %d", i)
		}
		_, err := store.Append(ctx, &domain.ArchiveEntry{Text: text, PublishedAt: base.Add(time.Duration(i) * time.Hour)})
		require.NoError(t, err)
	}

	found, err := store.Search(ctx, "golang")
	require.NoError(t, err)
	require.Len(t, found, 3)
	assert.Equal(t, "Golang note 4", found[0].Text)
	assert.Equal(t, "Golang note 0", found[2].Text)

	page, err := store.Page(ctx, "", 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, "Golang note 2", page.Entries[0].Text)
	assert.Equal(t, "note 1", page.Entries[1].Text)

	page, err = store.Page(ctx, "", 9, 2)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)

	_, err = store.Page(ctx, "", 1, 0)
	assert.Error(t, err)
}

func TestSchedulerStateStore_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := NewSchedulerStateStore()
	now := time.Now()

	require.NoError(t, store.Update(ctx, &domain.SchedulerState{LastPublishAt: now}))
	require.NoError(t, store.Update(ctx, &domain.SchedulerState{LastPublishAt: now.Add(-time.Hour)}))

	state, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, state.LastPublishAt.Equal(now))
}

func TestArchiveStore_SinceReturnsLinkPostsOldestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewArchiveStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	link := func(s string) *string { return &s }

	entries := []domain.ArchiveEntry{
		{Text: "old link", LinkURL: link("https://example.com/old"), PublishedAt: base},
		{Text: "plain note", PublishedAt: base.Add(time.Hour)},
		{Text: "late link", LinkURL: link("https://example.com/late"), PublishedAt: base.Add(3 * time.Hour)},
		{Text: "empty link", LinkURL: link(""), PublishedAt: base.Add(3 * time.Hour)},
		{Text: "early link", LinkURL: link("https://example.com/early"), PublishedAt: base.Add(2 * time.Hour)},
	}
	for i := range entries {
		_, err := store.Append(ctx, &entries[i])
		require.NoError(t, err)
	}

	all, err := store.Since(ctx, time.Time{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"old link", "early link", "late link"}, []string{all[0].Text, all[1].Text, all[2].Text})

	recent, err := store.Since(ctx, base)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "early link", recent[0].Text)

	none, err := store.Since(ctx, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDigestStateStore_NeverMovesBackwards(t *testing.T) {
	ctx := context.Background()
	store := NewDigestStateStore()

	state, err := store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, state.LastDigestAt.IsZero())

	now := time.Now()
	require.NoError(t, store.Update(ctx, &domain.DigestState{LastDigestAt: now}))
	require.NoError(t, store.Update(ctx, &domain.DigestState{LastDigestAt: now.Add(-time.Hour)}))

	state, err = store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, state.LastDigestAt.Equal(now))
}

func TestFeedStore_Duplicate(t *testing.T) {
	ctx := context.Background()
	store := NewFeedStore()

	_, err := store.Add(ctx, &domain.Feed{URL: "https://example.com/rss"})
	require.NoError(t, err)
	_, err = store.Add(ctx, &domain.Feed{URL: "https://example.com/rss"})
	assert.ErrorIs(t, err, domain.ErrDuplicate)
}
