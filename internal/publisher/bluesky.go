package publisher

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/api/atproto"
	"github.com/bluesky-social/indigo/api/bsky"
	lexutil "github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"

	"microblog/internal/domain"
	"microblog/internal/render"
)

const feedPostCollection = "app.bsky.feed.post"

type BlueskyConfig struct {
	Service     string
	Handle      string
	AppPassword string
	Timeout     time.Duration
}

// Bluesky posts through the XRPC endpoints of a PDS, logging in with an app password per post.
type Bluesky struct {
	httpClient *http.Client
	service    string
	handle     string
	password   string
	logger     *slog.Logger
}

func NewBluesky(cfg BlueskyConfig, logger *slog.Logger) *Bluesky {
	return &Bluesky{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		service:    strings.TrimRight(cfg.Service, "/"),
		handle:     cfg.Handle,
		password:   cfg.AppPassword,
		logger:     logger.With("target", domain.TargetBluesky),
	}
}

func (b *Bluesky) Name() domain.Target {
	return domain.TargetBluesky
}

func (b *Bluesky) Post(ctx context.Context, post *domain.Rendered) error {
	client, err := b.login(ctx)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	record := &bsky.FeedPost{
		LexiconTypeID: feedPostCollection,
		Text:          render.BlueskyText(post),
		CreatedAt:     time.Now().UTC().Format(time.RFC3339),
	}

	switch {
	case post.Card != nil:
		external := &bsky.EmbedExternal_External{
			Uri:         post.Card.URL,
			Title:       render.CardTitle(post.Card),
			Description: render.CardDescription(post.Card),
		}
		if len(post.Card.Thumb) > 0 {
			blob, err := b.uploadBlob(ctx, client, post.Card.Thumb)
			if err != nil {
				b.logger.Warn("failed to upload thumbnail, posting without it", "error", err)
			} else {
				external.Thumb = blob
			}
		}
		record.Embed = &bsky.FeedPost_Embed{
			EmbedExternal: &bsky.EmbedExternal{External: external},
		}

	case len(post.Image) > 0:
		blob, err := b.uploadBlob(ctx, client, post.Image)
		if err != nil {
			return fmt.Errorf("upload image: %w", err)
		}
		record.Embed = &bsky.FeedPost_Embed{
			EmbedImages: &bsky.EmbedImages{
				Images: []*bsky.EmbedImages_Image{{Image: blob}},
			},
		}
	}

	_, err = atproto.RepoCreateRecord(ctx, client, &atproto.RepoCreateRecord_Input{
		Repo:       client.Auth.Did,
		Collection: feedPostCollection,
		Record:     &lexutil.LexiconTypeDecoder{Val: record},
	})
	if err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// login opens a session and returns a client authorized for it.
func (b *Bluesky) login(ctx context.Context) (*xrpc.Client, error) {
	client := &xrpc.Client{
		Client: b.httpClient,
		Host:   b.service,
	}

	session, err := atproto.ServerCreateSession(ctx, client, &atproto.ServerCreateSession_Input{
		Identifier: b.handle,
		Password:   b.password,
	})
	if err != nil {
		return nil, err
	}

	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return client, nil
}

func (b *Bluesky) uploadBlob(ctx context.Context, client *xrpc.Client, data []byte) (*lexutil.LexBlob, error) {
	out, err := atproto.RepoUploadBlob(ctx, client, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if out.Blob == nil {
		return nil, fmt.Errorf("upload returned no blob")
	}
	// Images are always re-encoded as JPEG before upload.
	out.Blob.MimeType = "image/jpeg"
	return out.Blob, nil
}
