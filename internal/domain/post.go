package domain

import (
	"sort"
	"strings"
	"time"
)

type Target string

const (
	TargetBluesky  Target = "bluesky"
	TargetMastodon Target = "mastodon"
)

// AllTargets lists every supported platform in publish order.
var AllTargets = []Target{TargetBluesky, TargetMastodon}

func (t Target) Valid() bool {
	return t == TargetBluesky || t == TargetMastodon
}

// TargetSet is the set of platforms a post is sent to. An empty set means local-only.
type TargetSet map[Target]bool

func NewTargetSet(postToBluesky, postToMastodon bool) TargetSet {
	set := TargetSet{}
	if postToBluesky {
		set[TargetBluesky] = true
	}
	if postToMastodon {
		set[TargetMastodon] = true
	}
	return set
}

func (s TargetSet) Has(t Target) bool {
	return s[t]
}

func (s TargetSet) Empty() bool {
	for _, enabled := range s {
		if enabled {
			return false
		}
	}
	return true
}

// List returns the enabled targets in AllTargets order.
func (s TargetSet) List() []Target {
	var out []Target
	for _, t := range AllTargets {
		if s[t] {
			out = append(out, t)
		}
	}
	return out
}

// Content is the publishable payload shared by queue and archive entries.
type Content struct {
	Text     string  `json:"text"`
	ImageRef *string `json:"image_ref,omitempty"`
	LinkURL  *string `json:"link_url,omitempty"`
}

type QueueEntry struct {
	ID             int64     `db:"id" json:"id"`
	Text           string    `db:"text" json:"text"`
	ImageRef       *string   `db:"image_ref" json:"image_ref,omitempty"`
	LinkURL        *string   `db:"link_url" json:"link_url,omitempty"`
	PostToBluesky  bool      `db:"post_to_bluesky" json:"post_to_bluesky"`
	PostToMastodon bool      `db:"post_to_mastodon" json:"post_to_mastodon"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

func (e QueueEntry) Content() Content {
	return Content{Text: e.Text, ImageRef: e.ImageRef, LinkURL: e.LinkURL}
}

func (e QueueEntry) Targets() TargetSet {
	return NewTargetSet(e.PostToBluesky, e.PostToMastodon)
}

// Outcome is the result of one publish attempt on one target.
type Outcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type Outcomes map[Target]Outcome

// Summary renders outcomes as e.g. "posted to bluesky, failed on mastodon: timeout",
// targets in name order.
func (o Outcomes) Summary() string {
	if len(o) == 0 {
		return "local only"
	}
	targets := make([]string, 0, len(o))
	for t := range o {
		targets = append(targets, string(t))
	}
	sort.Strings(targets)

	parts := make([]string, 0, len(targets))
	for _, t := range targets {
		out := o[Target(t)]
		if out.Success {
			parts = append(parts, "posted to "+t)
		} else {
			parts = append(parts, "failed on "+t+": "+out.Error)
		}
	}
	return strings.Join(parts, ", ")
}

type ArchiveEntry struct {
	ID             int64     `json:"id"`
	QueueID        *int64    `json:"queue_id,omitempty"`
	Text           string    `json:"text"`
	ImageRef       *string   `json:"image_ref,omitempty"`
	LinkURL        *string   `json:"link_url,omitempty"`
	Headline       *string   `json:"headline,omitempty"`
	Summary        *string   `json:"summary,omitempty"`
	Thumbnail      []byte    `json:"-"`
	PostToBluesky  bool      `json:"post_to_bluesky"`
	PostToMastodon bool      `json:"post_to_mastodon"`
	CreatedAt      time.Time `json:"created_at"`
	PublishedAt    time.Time `json:"published_at"`
	Outcomes       Outcomes  `json:"outcomes"`
}

// NewArchiveEntry copies the payload of a queue entry into an archive record.
func NewArchiveEntry(e QueueEntry, publishedAt time.Time, outcomes Outcomes) ArchiveEntry {
	if outcomes == nil {
		outcomes = Outcomes{}
	}
	var queueID *int64
	if e.ID != 0 {
		id := e.ID
		queueID = &id
	}
	return ArchiveEntry{
		QueueID:        queueID,
		Text:           e.Text,
		ImageRef:       e.ImageRef,
		LinkURL:        e.LinkURL,
		PostToBluesky:  e.PostToBluesky,
		PostToMastodon: e.PostToMastodon,
		CreatedAt:      e.CreatedAt,
		PublishedAt:    publishedAt,
		Outcomes:       outcomes,
	}
}

// Matches reports whether the entry contains query, case-insensitively.
func (e ArchiveEntry) Matches(query string) bool {
	q := strings.ToLower(query)
	fields := []*string{&e.Text, e.Headline, e.Summary, e.LinkURL}
	for _, f := range fields {
		if f != nil && strings.Contains(strings.ToLower(*f), q) {
			return true
		}
	}
	return false
}

type Page struct {
	Entries    []ArchiveEntry `json:"entries"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	PerPage    int            `json:"per_page"`
	TotalPages int            `json:"total_pages"`
}

func NewPage(entries []ArchiveEntry, total, page, perPage int) Page {
	totalPages := 0
	if total > 0 && perPage > 0 {
		totalPages = (total + perPage - 1) / perPage
	}
	if entries == nil {
		entries = []ArchiveEntry{}
	}
	return Page{
		Entries:    entries,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: totalPages,
	}
}

// SchedulerState is the persisted half of the auto-poster: the time of the last publish.
type SchedulerState struct {
	LastPublishAt time.Time `db:"last_publish_at"`
}
