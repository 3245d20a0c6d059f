package domain

import "time"

type Feed struct {
	ID      int64     `db:"id" json:"id"`
	URL     string    `db:"url" json:"url"`
	Name    *string   `db:"name" json:"name,omitempty"`
	AddedAt time.Time `db:"added_at" json:"added_at"`
}

// FeedItem is one repost candidate read from a feed.
type FeedItem struct {
	Title     string `json:"title"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
	Summary   string `json:"summary,omitempty"`
	Author    string `json:"author,omitempty"`
}
