package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"microblog/internal/domain"
	"microblog/internal/service"
)

type postRequest struct {
	Text           string  `json:"text"`
	ImageRef       *string `json:"image_ref,omitempty"`
	LinkURL        *string `json:"link_url,omitempty"`
	PostToBluesky  bool    `json:"post_to_bluesky"`
	PostToMastodon bool    `json:"post_to_mastodon"`
	Mode           string  `json:"mode,omitempty"`
}

func (p postRequest) entry() domain.QueueEntry {
	return domain.QueueEntry{
		Text:           p.Text,
		ImageRef:       p.ImageRef,
		LinkURL:        p.LinkURL,
		PostToBluesky:  p.PostToBluesky,
		PostToMastodon: p.PostToMastodon,
	}
}

type feedRequest struct {
	URL  string  `json:"url"`
	Name *string `json:"name,omitempty"`
}

type feedEntryRequest struct {
	Link           string `json:"link"`
	Title          string `json:"title"`
	Commentary     string `json:"commentary"`
	PostToBluesky  bool   `json:"post_to_bluesky"`
	PostToMastodon bool   `json:"post_to_mastodon"`
	Mode           string `json:"mode"`
}

type feedEntriesResponse struct {
	Feed    *domain.Feed      `json:"feed"`
	Entries []domain.FeedItem `json:"entries"`
}

func (s *Server) listQueue(w http.ResponseWriter, r *http.Request) {
	entries, err := s.posts.Queue(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.QueueEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) enqueue(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	entry, err := s.posts.Enqueue(r.Context(), req.entry())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) removeFromQueue(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.posts.RemoveFromQueue(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) publishNext(w http.ResponseWriter, r *http.Request) {
	entry, err := s.sched.PublishNext(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// createPost publishes a draft immediately, or archives it locally.
func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeNow
	}
	s.dispatch(w, r, mode, req.entry(), false)
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	page := intQuery(r, "page", 1)
	perPage := min(intQuery(r, "per_page", defaultPerPage), maxPerPage)

	result, err := s.posts.ArchivePage(r.Context(), query, page, perPage)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// digest returns the link posts archived since the previous digest and moves the mark past them.
func (s *Server) digest(w http.ResponseWriter, r *http.Request) {
	digest, err := s.digests.Digest(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, digest)
}

func (s *Server) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.sched.Status())
}

func (s *Server) listFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.feeds.Feeds(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if feeds == nil {
		feeds = []domain.Feed{}
	}
	writeJSON(w, http.StatusOK, feeds)
}

func (s *Server) addFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	feed, err := s.feeds.AddFeed(r.Context(), req.URL, req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, feed)
}

func (s *Server) deleteFeed(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.feeds.DeleteFeed(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) feedEntries(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	feed, items, err := s.feeds.Browse(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if items == nil {
		items = []domain.FeedItem{}
	}
	writeJSON(w, http.StatusOK, feedEntriesResponse{Feed: feed, Entries: items})
}

// postFeedEntry reposts a feed item: queued by default, or published now or locally.
func (s *Server) postFeedEntry(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.feeds.Feed(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	var req feedEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.Link) == "" {
		s.writeError(w, r, fmt.Errorf("%w: link is required", domain.ErrInvalidInput))
		return
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeQueue
	}
	targets := domain.NewTargetSet(req.PostToBluesky, req.PostToMastodon)
	s.dispatch(w, r, mode, service.FeedItemEntry(req.Link, req.Title, req.Commentary, targets), true)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, mode string, entry domain.QueueEntry, allowQueue bool) {
	switch {
	case mode == ModeQueue && allowQueue:
		queued, err := s.posts.Enqueue(r.Context(), entry)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, queued)
	case mode == ModeNow:
		published, err := s.sched.PublishNow(r.Context(), entry)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, published)
	case mode == ModeLocal:
		archived, err := s.posts.PostLocal(r.Context(), entry)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, archived)
	default:
		s.writeError(w, r, fmt.Errorf("%w: unknown mode %q", domain.ErrInvalidInput, mode))
	}
}
