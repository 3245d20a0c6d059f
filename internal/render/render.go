// Package render turns stored posts into platform payloads: it resolves link
// cards and images and applies each platform's length limits.
package render

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"microblog/internal/domain"
)

const (
	BlueskyMaxChars     = 300
	BlueskyCardTitleMax = 300
	BlueskyCardDescMax  = 1000
	MastodonMaxChars    = 500
	ArchiveSummaryMax   = 200
	ellipsis            = "…"
)

type Config struct {
	ImagesDir       string
	MaxImageSize    int
	MetadataTimeout time.Duration
	MetadataRate    time.Duration
}

type Renderer struct {
	metadata     *MetadataFetcher
	httpClient   *http.Client
	imagesDir    string
	maxImageSize int
	logger       *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Renderer {
	return &Renderer{
		metadata:     NewMetadataFetcher(cfg.MetadataTimeout, cfg.MetadataRate),
		httpClient:   &http.Client{Timeout: cfg.MetadataTimeout},
		imagesDir:    cfg.ImagesDir,
		maxImageSize: cfg.MaxImageSize,
		logger:       logger.With("component", "render"),
	}
}

// Render resolves attachments. A link whose metadata or thumbnail cannot be
// fetched still renders, with the URL as title; a missing local image is an error.
func (r *Renderer) Render(ctx context.Context, content domain.Content) (*domain.Rendered, error) {
	out := &domain.Rendered{Content: content}

	switch {
	case content.LinkURL != nil && *content.LinkURL != "":
		card, err := r.metadata.Fetch(ctx, *content.LinkURL)
		if err != nil {
			r.logger.Warn("failed to fetch link metadata", "url", *content.LinkURL, "error", err)
		}
		if card.ImageURL != "" {
			thumb, err := downloadImage(ctx, r.httpClient, card.ImageURL, r.maxImageSize)
			if err != nil {
				r.logger.Warn("failed to fetch link image, posting without it", "url", card.ImageURL, "error", err)
			} else {
				card.Thumb = thumb
				if card.Preview, err = Preview(thumb); err != nil {
					r.logger.Warn("failed to crop link preview", "url", card.ImageURL, "error", err)
				}
			}
		}
		out.Card = card

	case content.ImageRef != nil && *content.ImageRef != "":
		img, err := loadLocalImage(r.imagesDir, *content.ImageRef, r.maxImageSize)
		if err != nil {
			return nil, fmt.Errorf("load image %s: %w", *content.ImageRef, err)
		}
		out.Image = img
	}

	return out, nil
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	return strings.TrimSpace(string(runes[:max-1])) + ellipsis
}

// BlueskyText is the post body; the link travels in the embed card.
func BlueskyText(r *domain.Rendered) string {
	return Truncate(r.Content.Text, BlueskyMaxChars)
}

// MastodonText appends the link after a blank line, keeping the link intact.
// A link too long to leave room for any text is cut along with the text.
func MastodonText(r *domain.Rendered) string {
	link := ""
	if r.Content.LinkURL != nil && *r.Content.LinkURL != "" {
		link = *r.Content.LinkURL
	}
	if link == "" {
		return Truncate(r.Content.Text, MastodonMaxChars)
	}
	budget := MastodonMaxChars - len([]rune(link)) - 2
	if budget < 1 {
		return Truncate(r.Content.Text+"\n\n"+link, MastodonMaxChars)
	}
	return Truncate(r.Content.Text, budget) + "\n\n" + link
}

// CardTitle and CardDescription cap link card fields to Bluesky's limits.
func CardTitle(c *domain.LinkCard) string {
	return Truncate(c.Title, BlueskyCardTitleMax)
}

func CardDescription(c *domain.LinkCard) string {
	return Truncate(c.Description, BlueskyCardDescMax)
}

// ArchiveSummary shortens a link description for the archive record.
func ArchiveSummary(description string) string {
	runes := []rune(description)
	if len(runes) <= ArchiveSummaryMax {
		return description
	}
	return string(runes[:ArchiveSummaryMax]) + "..."
}
