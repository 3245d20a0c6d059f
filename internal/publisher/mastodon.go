package publisher

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mattn/go-mastodon"

	"microblog/internal/domain"
	"microblog/internal/render"
)

type MastodonConfig struct {
	Server      string
	AccessToken string
	Timeout     time.Duration
}

type Mastodon struct {
	client *mastodon.Client
}

func NewMastodon(cfg MastodonConfig) *Mastodon {
	client := mastodon.NewClient(&mastodon.Config{
		Server:      cfg.Server,
		AccessToken: cfg.AccessToken,
	})
	client.Client = http.Client{Timeout: cfg.Timeout}
	return &Mastodon{client: client}
}

func (m *Mastodon) Name() domain.Target {
	return domain.TargetMastodon
}

// Post uploads the link thumbnail or the local image, then posts the status.
func (m *Mastodon) Post(ctx context.Context, post *domain.Rendered) error {
	toot := &mastodon.Toot{Status: render.MastodonText(post)}

	media := post.Image
	if post.Card != nil && len(post.Card.Thumb) > 0 {
		media = post.Card.Thumb
	}
	if len(media) > 0 {
		attachment, err := m.client.UploadMediaFromReader(ctx, bytes.NewReader(media))
		if err != nil {
			return fmt.Errorf("upload media: %w", err)
		}
		toot.MediaIDs = []mastodon.ID{attachment.ID}
	}

	if _, err := m.client.PostStatus(ctx, toot); err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	return nil
}
