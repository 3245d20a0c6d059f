package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"microblog/internal/domain"
)

// BrowseLimit caps the items shown when browsing a subscribed feed.
const BrowseLimit = 15

type FeedService struct {
	feeds  FeedStore
	source FeedSource
	logger *slog.Logger
}

func NewFeedService(feeds FeedStore, source FeedSource, logger *slog.Logger) *FeedService {
	return &FeedService{
		feeds:  feeds,
		source: source,
		logger: logger.With("component", "feeds"),
	}
}

// AddFeed subscribes to url after checking that it parses as a feed.
func (s *FeedService) AddFeed(ctx context.Context, url string, name *string) (*domain.Feed, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, fmt.Errorf("%w: feed url is required", domain.ErrInvalidInput)
	}

	if _, err := s.source.Fetch(ctx, url, 1); err != nil {
		return nil, fmt.Errorf("%w: feed %s: %w", domain.ErrInvalidInput, url, err)
	}

	feed := &domain.Feed{URL: url, Name: name}
	if _, err := s.feeds.Add(ctx, feed); err != nil {
		return nil, fmt.Errorf("add feed: %w", err)
	}

	s.logger.Info("feed added", "feed_id", feed.ID, "url", url)
	return feed, nil
}

func (s *FeedService) Feeds(ctx context.Context) ([]domain.Feed, error) {
	return s.feeds.List(ctx)
}

func (s *FeedService) Feed(ctx context.Context, id int64) (*domain.Feed, error) {
	feed, err := s.feeds.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", id, err)
	}
	return feed, nil
}

func (s *FeedService) DeleteFeed(ctx context.Context, id int64) error {
	if err := s.feeds.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete feed %d: %w", id, err)
	}
	s.logger.Info("feed deleted", "feed_id", id)
	return nil
}

// Browse returns the feed and its latest items.
func (s *FeedService) Browse(ctx context.Context, id int64) (*domain.Feed, []domain.FeedItem, error) {
	feed, err := s.Feed(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	items, err := s.source.Fetch(ctx, feed.URL, BrowseLimit)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch feed %s: %w", feed.URL, err)
	}
	return feed, items, nil
}

// FeedItemEntry turns a feed item into a post draft linking to it.
// The commentary becomes the post text, falling back to the item title.
func FeedItemEntry(link, title, commentary string, targets domain.TargetSet) domain.QueueEntry {
	text := strings.TrimSpace(commentary)
	if text == "" {
		text = strings.TrimSpace(title)
	}
	entry := domain.QueueEntry{
		Text:           text,
		PostToBluesky:  targets.Has(domain.TargetBluesky),
		PostToMastodon: targets.Has(domain.TargetMastodon),
	}
	if link = strings.TrimSpace(link); link != "" {
		entry.LinkURL = &link
	}
	return entry
}
