package domain

import (
	"strings"
	"time"
)

// DigestState remembers where the last link digest stopped.
type DigestState struct {
	LastDigestAt time.Time `db:"last_digest_at"`
}

type DigestItem struct {
	ArchiveID   int64     `json:"archive_id"`
	URL         string    `json:"url"`
	Headline    string    `json:"headline"`
	Summary     string    `json:"summary,omitempty"`
	Commentary  string    `json:"commentary,omitempty"`
	PublishedAt time.Time `json:"published_at"`
	Thumbnail   []byte    `json:"thumbnail,omitempty"`
}

// Digest is the list of link posts archived after Since, oldest first.
type Digest struct {
	Title       string       `json:"title"`
	Since       *time.Time   `json:"since,omitempty"`
	GeneratedAt time.Time    `json:"generated_at"`
	Items       []DigestItem `json:"items"`
}

// NewDigestItem builds a digest card from an archived link post.
// The headline falls back to the URL; text equal to the headline is not repeated as commentary.
func NewDigestItem(e ArchiveEntry) DigestItem {
	item := DigestItem{
		ArchiveID:   e.ID,
		PublishedAt: e.PublishedAt,
		Thumbnail:   e.Thumbnail,
	}
	if e.LinkURL != nil {
		item.URL = *e.LinkURL
	}

	item.Headline = item.URL
	if e.Headline != nil && strings.TrimSpace(*e.Headline) != "" {
		item.Headline = *e.Headline
	}
	if e.Summary != nil {
		item.Summary = *e.Summary
	}
	if text := strings.TrimSpace(e.Text); text != item.Headline {
		item.Commentary = text
	}
	return item
}
