package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/samber/lo"

	"microblog/internal/domain"
)

type Config struct {
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Source fetches repost candidates from RSS and Atom feeds.
type Source struct {
	httpClient     *http.Client
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Source {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Source{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "rss"),
	}
}

// errPermanent marks failures a retry cannot fix.
var errPermanent = errors.New("permanent")

// Fetch returns up to limit items of the feed at feedURL, in feed order.
// A limit of zero or less returns every item.
func (s *Source) Fetch(ctx context.Context, feedURL string, limit int) ([]domain.FeedItem, error) {
	if err := validateURL(feedURL); err != nil {
		return nil, err
	}

	var feed *gofeed.Feed
	var err error

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		feed, err = s.doRequest(ctx, feedURL)
		if err == nil || errors.Is(err, errPermanent) {
			break
		}

		if attempt == s.maxAttempts {
			err = fmt.Errorf("after %d attempts: %w", s.maxAttempts, err)
			break
		}

		backoff := s.calculateBackoff(attempt)
		s.logger.Warn("feed request failed, retrying",
			"url", feedURL,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
	if err != nil {
		return nil, err
	}

	items := lo.Filter(feed.Items, func(item *gofeed.Item, _ int) bool {
		return item != nil && strings.TrimSpace(item.Link) != ""
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	s.logger.Debug("feed fetched",
		"url", feedURL,
		"title", feed.Title,
		"items", len(items),
	)

	return lo.Map(items, func(item *gofeed.Item, _ int) domain.FeedItem {
		return domain.FeedItem{
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			Published: item.Published,
			Summary:   strings.TrimSpace(item.Description),
			Author:    authorName(item),
		}
	}), nil
}

func (s *Source) doRequest(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", errPermanent, err)
	}

	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")
	req.Header.Set("User-Agent", "Microblog/1.0")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: unexpected status: %d", errPermanent, resp.StatusCode)
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %w", errPermanent, err)
	}

	return feed, nil
}

func (s *Source) calculateBackoff(attempt int) time.Duration {
	backoff := s.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > s.maxBackoff {
		backoff = s.maxBackoff
	}
	return backoff
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse feed url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid feed url scheme %q: must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host in feed url")
	}
	return nil
}

func authorName(item *gofeed.Item) string {
	author, ok := lo.Find(item.Authors, func(p *gofeed.Person) bool {
		return p != nil && p.Name != ""
	})
	if !ok {
		return ""
	}
	return author.Name
}
