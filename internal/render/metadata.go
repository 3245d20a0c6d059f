package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"microblog/internal/domain"
)

const userAgent = "Mozilla/5.0 (compatible; Microblog/1.0)"

// MetadataFetcher reads Open Graph metadata for link cards.
type MetadataFetcher struct {
	httpClient *http.Client
	limiter    *hostLimiter
}

func NewMetadataFetcher(timeout, perHost time.Duration) *MetadataFetcher {
	return &MetadataFetcher{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    newHostLimiter(perHost),
	}
}

// Fetch returns the card for pageURL. Title falls back to the URL itself.
func (f *MetadataFetcher) Fetch(ctx context.Context, pageURL string) (*domain.LinkCard, error) {
	card := &domain.LinkCard{URL: pageURL, Title: pageURL}

	if err := f.limiter.wait(ctx, pageURL); err != nil {
		return card, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return card, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return card, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return card, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return card, fmt.Errorf("parse html: %w", err)
	}

	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		card.Title = t
	}
	if t := metaContent(doc, `meta[property="og:title"]`); t != "" {
		card.Title = t
	}

	card.Description = metaContent(doc, `meta[property="og:description"]`)
	if card.Description == "" {
		card.Description = metaContent(doc, `meta[name="description"]`)
	}

	image := metaContent(doc, `meta[property="og:image"]`)
	if image == "" {
		image = metaContent(doc, `meta[name="twitter:image"]`)
	}
	if image != "" {
		card.ImageURL = resolve(pageURL, image)
	}

	return card, nil
}

func metaContent(doc *goquery.Document, selector string) string {
	v, _ := doc.Find(selector).First().Attr("content")
	return strings.TrimSpace(v)
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

type hostLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	interval time.Duration
}

func newHostLimiter(interval time.Duration) *hostLimiter {
	return &hostLimiter{
		limiters: make(map[string]*rate.Limiter),
		interval: interval,
	}
}

func (h *hostLimiter) wait(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	if u.Host == "" {
		return &url.Error{Op: "parse", URL: rawURL, Err: errors.New("missing host in URL")}
	}

	h.mu.Lock()
	limiter, ok := h.limiters[u.Host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(h.interval), 1)
		h.limiters[u.Host] = limiter
	}
	h.mu.Unlock()

	return limiter.Wait(ctx)
}
