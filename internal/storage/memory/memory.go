// Package memory holds process-local stores with the same contracts as the
// postgres package. Nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"microblog/internal/domain"
)

type QueueStore struct {
	mu      sync.Mutex
	entries []domain.QueueEntry
	nextID  int64
	now     func() time.Time
}

func NewQueueStore() *QueueStore {
	return &QueueStore{nextID: 1, now: time.Now}
}

func (s *QueueStore) Enqueue(_ context.Context, entry *domain.QueueEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	s.nextID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = s.now()
	}
	s.entries = append(s.entries, *entry)
	return entry.ID, nil
}

func (s *QueueStore) List(_ context.Context) ([]domain.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.QueueEntry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *QueueStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

func (s *QueueStore) Remove(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *QueueStore) PopOldest(_ context.Context) (*domain.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) == 0 {
		return nil, domain.ErrQueueEmpty
	}
	entry := s.entries[0]
	s.entries = s.entries[1:]
	return &entry, nil
}

// Requeue reinserts entry at the position its id dictates.
func (s *QueueStore) Requeue(_ context.Context, entry *domain.QueueEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].ID >= entry.ID })
	if i < len(s.entries) && s.entries[i].ID == entry.ID {
		return nil
	}
	s.entries = append(s.entries, domain.QueueEntry{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = *entry
	if entry.ID >= s.nextID {
		s.nextID = entry.ID + 1
	}
	return nil
}

type ArchiveStore struct {
	mu      sync.RWMutex
	entries []domain.ArchiveEntry
	nextID  int64
}

func NewArchiveStore() *ArchiveStore {
	return &ArchiveStore{nextID: 1}
}

func (s *ArchiveStore) Append(_ context.Context, entry *domain.ArchiveEntry) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.nextID
	s.nextID++
	if entry.Outcomes == nil {
		entry.Outcomes = domain.Outcomes{}
	}
	s.entries = append(s.entries, *entry)
	return entry.ID, nil
}

// Search returns matching entries newest first.
func (s *ArchiveStore) Search(_ context.Context, query string) ([]domain.ArchiveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matching(query), nil
}

// Since returns link posts published after t, oldest first.
func (s *ArchiveStore) Since(_ context.Context, t time.Time) ([]domain.ArchiveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.ArchiveEntry
	for _, e := range s.entries {
		if e.LinkURL != nil && *e.LinkURL != "" && e.PublishedAt.After(t) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt.Before(out[j].PublishedAt)
	})
	return out, nil
}

func (s *ArchiveStore) Page(_ context.Context, query string, page, perPage int) (domain.Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		return domain.Page{}, fmt.Errorf("page size must be positive, got %d", perPage)
	}

	s.mu.RLock()
	matched := s.matching(query)
	s.mu.RUnlock()

	start := (page - 1) * perPage
	if start > len(matched) {
		start = len(matched)
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return domain.NewPage(matched[start:end], len(matched), page, perPage), nil
}

func (s *ArchiveStore) matching(query string) []domain.ArchiveEntry {
	query = strings.TrimSpace(query)
	out := make([]domain.ArchiveEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		if query == "" || s.entries[i].Matches(query) {
			out = append(out, s.entries[i])
		}
	}
	return out
}

type SchedulerStateStore struct {
	mu    sync.Mutex
	state domain.SchedulerState
}

func NewSchedulerStateStore() *SchedulerStateStore {
	return &SchedulerStateStore{}
}

func (s *SchedulerStateStore) Get(_ context.Context) (*domain.SchedulerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	return &state, nil
}

func (s *SchedulerStateStore) Update(_ context.Context, state *domain.SchedulerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.LastPublishAt.After(s.state.LastPublishAt) {
		s.state.LastPublishAt = state.LastPublishAt
	}
	return nil
}

type DigestStateStore struct {
	mu    sync.Mutex
	state domain.DigestState
}

func NewDigestStateStore() *DigestStateStore {
	return &DigestStateStore{}
}

func (s *DigestStateStore) Get(_ context.Context) (*domain.DigestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	return &state, nil
}

func (s *DigestStateStore) Update(_ context.Context, state *domain.DigestState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state.LastDigestAt.After(s.state.LastDigestAt) {
		s.state.LastDigestAt = state.LastDigestAt
	}
	return nil
}

type FeedStore struct {
	mu     sync.Mutex
	feeds  []domain.Feed
	nextID int64
}

func NewFeedStore() *FeedStore {
	return &FeedStore{nextID: 1}
}

func (s *FeedStore) Add(_ context.Context, feed *domain.Feed) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.feeds {
		if f.URL == feed.URL {
			return 0, domain.ErrDuplicate
		}
	}
	feed.ID = s.nextID
	s.nextID++
	feed.AddedAt = time.Now()
	s.feeds = append(s.feeds, *feed)
	return feed.ID, nil
}

func (s *FeedStore) List(_ context.Context) ([]domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Feed, 0, len(s.feeds))
	for i := len(s.feeds) - 1; i >= 0; i-- {
		out = append(out, s.feeds[i])
	}
	return out, nil
}

func (s *FeedStore) Get(_ context.Context, id int64) (*domain.Feed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.feeds {
		if f.ID == id {
			feed := f
			return &feed, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *FeedStore) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.feeds {
		if f.ID == id {
			s.feeds = append(s.feeds[:i], s.feeds[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// TransactionManager runs fn directly; memory stores apply writes immediately.
type TransactionManager struct{}

func (TransactionManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
