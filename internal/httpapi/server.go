package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"microblog/internal/domain"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

const (
	ModeQueue = "queue"
	ModeNow   = "now"
	ModeLocal = "local"
)

// Server exposes the queue, archive, scheduler, feeds and digest as a JSON API.
type Server struct {
	posts   Posts
	sched   Scheduler
	feeds   Feeds
	digests Digests
	metrics http.Handler
	logger  *slog.Logger
}

func NewServer(posts Posts, sched Scheduler, feeds Feeds, digests Digests, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{
		posts:   posts,
		sched:   sched,
		feeds:   feeds,
		digests: digests,
		metrics: metrics,
		logger:  logger.With("component", "http"),
	}
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/queue", s.listQueue)
		r.Post("/queue", s.enqueue)
		r.Delete("/queue/{id}", s.removeFromQueue)
		r.Post("/queue/publish", s.publishNext)

		r.Post("/posts", s.createPost)
		r.Get("/archive", s.archive)
		r.Get("/digest", s.digest)
		r.Get("/scheduler", s.schedulerStatus)

		r.Get("/feeds", s.listFeeds)
		r.Post("/feeds", s.addFeed)
		r.Delete("/feeds/{id}", s.deleteFeed)
		r.Get("/feeds/{id}/entries", s.feedEntries)
		r.Post("/feeds/{id}/entries", s.postFeedEntry)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrEmptyPost), errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate), errors.Is(err, domain.ErrQueueEmpty),
		errors.Is(err, domain.ErrNothingToDigest):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrStorage):
		status = http.StatusServiceUnavailable
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: decode body: %w", domain.ErrInvalidInput, err)
	}
	return nil
}

func idParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: id must be a positive integer", domain.ErrInvalidInput)
	}
	return id, nil
}

func intQuery(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
