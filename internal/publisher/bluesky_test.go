package publisher

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"microblog/internal/domain"
	"microblog/testdata/utils"
)

const testBlobCID = "bafkreiadsbmmn4waznesyuz3bjgrj33xzqhxrk6mz3ksq7meugrachh3qe"

type fakePDS struct {
	mu        sync.Mutex
	records   []map[string]interface{}
	uploads    int
	failLogin  bool
	failUpload bool
}

func (p *fakePDS) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		if p.failLogin {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":"AuthenticationRequired"}`)
			return
		}
		_, _ = io.WriteString(w, `{"accessJwt":"jwt-1","refreshJwt":"jwt-r","handle":"me.bsky.social","did":"did:plc:abc"}`)
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.uploadBlob", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		if p.failUpload {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"error":"BlobTooLarge","message":"too big"}`)
			return
		}
		p.mu.Lock()
		p.uploads++
		p.mu.Unlock()
		_, _ = io.WriteString(w, `{"blob":{"$type":"blob","ref":{"$link":"`+testBlobCID+`"},"mimeType":"*/*","size":3}}`)
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		var body map[string]interface{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		p.mu.Lock()
		p.records = append(p.records, body)
		p.mu.Unlock()
		_, _ = io.WriteString(w, `{"uri":"at://did:plc:abc/app.bsky.feed.post/1","cid":"`+testBlobCID+`"}`)
	})
	return mux
}

func newTestBluesky(url string) *Bluesky {
	return NewBluesky(BlueskyConfig{
		Service:     url + "/",
		Handle:      "me.bsky.social",
		AppPassword: "app-pass",
		Timeout:     time.Second,
	}, discardLogger())
}

func TestBluesky_PostText(t *testing.T) {
	pds := &fakePDS{}
	srv := httptest.NewServer(pds.handler(t))
	defer srv.Close()

	err := newTestBluesky(srv.URL).Post(context.Background(), &domain.Rendered{
		Content: domain.Content{Text: "hello sky"},
	})
	require.NoError(t, err)

	require.Len(t, pds.records, 1)
	assert.Equal(t, "did:plc:abc", pds.records[0]["repo"])
	assert.Equal(t, "app.bsky.feed.post", pds.records[0]["collection"])
	record := pds.records[0]["record"].(map[string]interface{})
	assert.Equal(t, "app.bsky.feed.post", record["$type"])
	assert.Equal(t, "hello sky", record["text"])
	assert.NotEmpty(t, record["createdAt"])
	assert.NotContains(t, record, "embed")
	assert.Equal(t, 0, pds.uploads)
}

func TestBluesky_PostLinkCard(t *testing.T) {
	pds := &fakePDS{}
	srv := httptest.NewServer(pds.handler(t))
	defer srv.Close()

	err := newTestBluesky(srv.URL).Post(context.Background(), &domain.Rendered{
		Content: domain.Content{Text: "worth reading", LinkURL: utils.Ptr("https://example.com/a")},
		Card: &domain.LinkCard{
			URL:         "https://example.com/a",
			Title:       "A title",
			Description: "A description",
			Thumb:       []byte{1, 2, 3},
		},
	})
	require.NoError(t, err)

	require.Len(t, pds.records, 1)
	record := pds.records[0]["record"].(map[string]interface{})
	embed := record["embed"].(map[string]interface{})
	assert.Equal(t, "app.bsky.embed.external", embed["$type"])
	external := embed["external"].(map[string]interface{})
	assert.Equal(t, "https://example.com/a", external["uri"])
	assert.Equal(t, "A title", external["title"])
	assert.Equal(t, "A description", external["description"])
	thumb := external["thumb"].(map[string]interface{})
	assert.Equal(t, "image/jpeg", thumb["mimeType"])
	assert.Equal(t, map[string]interface{}{"$link": testBlobCID}, thumb["ref"])
	assert.Equal(t, 1, pds.uploads)
}

func TestBluesky_PostImage(t *testing.T) {
	pds := &fakePDS{}
	srv := httptest.NewServer(pds.handler(t))
	defer srv.Close()

	err := newTestBluesky(srv.URL).Post(context.Background(), &domain.Rendered{
		Content: domain.Content{Text: "photo"},
		Image:   []byte{9, 9, 9},
	})
	require.NoError(t, err)

	record := pds.records[0]["record"].(map[string]interface{})
	embed := record["embed"].(map[string]interface{})
	assert.Equal(t, "app.bsky.embed.images", embed["$type"])
	images := embed["images"].([]interface{})
	require.Len(t, images, 1)
	image := images[0].(map[string]interface{})["image"].(map[string]interface{})
	assert.Equal(t, "blob", image["$type"])
	assert.Equal(t, "image/jpeg", image["mimeType"])
}

func TestBluesky_LoginFailure(t *testing.T) {
	pds := &fakePDS{failLogin: true}
	srv := httptest.NewServer(pds.handler(t))
	defer srv.Close()

	err := newTestBluesky(srv.URL).Post(context.Background(), &domain.Rendered{
		Content: domain.Content{Text: "hello"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "login")
	assert.Contains(t, err.Error(), "401")
	assert.Empty(t, pds.records)
}

func TestBluesky_UploadFailure(t *testing.T) {
	pds := &fakePDS{failUpload: true}
	srv := httptest.NewServer(pds.handler(t))
	defer srv.Close()
	client := newTestBluesky(srv.URL)

	err := client.Post(context.Background(), &domain.Rendered{
		Content: domain.Content{Text: "card", LinkURL: utils.Ptr("https://example.com/a")},
		Card:    &domain.LinkCard{URL: "https://example.com/a", Title: "A", Thumb: []byte{1}},
	})
	require.NoError(t, err)
	require.Len(t, pds.records, 1)
	external := pds.records[0]["record"].(map[string]interface{})["embed"].(map[string]interface{})["external"].(map[string]interface{})
	assert.NotContains(t, external, "thumb")

	err = client.Post(context.Background(), &domain.Rendered{
		Content: domain.Content{Text: "photo"},
		Image:   []byte{9},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload image")
	assert.Contains(t, err.Error(), "BlobTooLarge")
	assert.Len(t, pds.records, 1)
}
